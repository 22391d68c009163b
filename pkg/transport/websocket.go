package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coldwave/flake-go/pkg/version"
	"github.com/coldwave/flake-go/pkg/wire"
)

// DefaultWebSocketPath is where the router upgrades WebSocket peers.
const DefaultWebSocketPath = "/flake"

// NewWebSocketWire returns a client wire for a ws:// or wss:// URL. Each
// binary message carries one frame.
func NewWebSocketWire(url string, tlsConf *tls.Config) Wire {
	return &wsWire{
		id:  uuid.NewString(),
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
			TLSClientConfig:  tlsConf,
			Subprotocols:     version.SupportedALPNProtocols(),
		},
		secure: tlsConf != nil,
	}
}

type wsWire struct {
	id     string
	url    string
	dialer *websocket.Dialer
	secure bool

	mu     sync.Mutex
	conn   *websocket.Conn
	remote string
	open   atomic.Bool
	done   chan struct{}
}

func acceptedWSWire(conn *websocket.Conn, secure bool) *wsWire {
	w := &wsWire{
		id:     uuid.NewString(),
		secure: secure,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		done:   make(chan struct{}),
	}
	w.open.Store(true)
	return w
}

func (w *wsWire) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open.Load() {
		return nil
	}
	if w.dialer == nil {
		return ErrWireClosed
	}
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	w.conn = conn
	w.remote = conn.RemoteAddr().String()
	w.done = make(chan struct{})
	w.open.Store(true)
	return nil
}

func (w *wsWire) current() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Load() {
		return nil
	}
	return w.conn
}

func (w *wsWire) Read() ([]byte, error) {
	for {
		conn := w.current()
		if conn == nil {
			return nil, ErrNotOpen
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !w.open.Load() {
				return nil, ErrWireClosed
			}
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsWire) Write(frame []byte) error {
	conn := w.current()
	if conn == nil {
		return ErrNotOpen
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Swap(false) {
		return nil
	}
	close(w.done)
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return w.conn.Close()
}

func (w *wsWire) IsOpen() bool        { return w.open.Load() }
func (w *wsWire) ID() string          { return w.id }
func (w *wsWire) Secure() bool        { return w.secure }
func (w *wsWire) Authenticated() bool { return false }

func (w *wsWire) RemoteAddr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remote
}

// WebSocketServerWire upgrades HTTP requests on a path to wires.
type WebSocketServerWire struct {
	address string
	path    string
	tlsConf *tls.Config

	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	queue    *acceptQueue
	done     chan struct{}
}

// NewWebSocketServerWire serves path on address. A nil tlsConf serves ws://.
func NewWebSocketServerWire(address, path string, tlsConf *tls.Config) *WebSocketServerWire {
	if path == "" {
		path = DefaultWebSocketPath
	}
	return &WebSocketServerWire{
		address: address,
		path:    path,
		tlsConf: tlsConf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    version.SupportedALPNProtocols(),
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the upgrade handler, for mounting on an existing mux.
// Init must have been called.
func (s *WebSocketServerWire) Handler() http.Handler {
	return http.HandlerFunc(s.upgrade)
}

func (s *WebSocketServerWire) upgrade(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil || q.closed() {
		http.Error(rw, "not accepting", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(int64(wire.MaxFrameSize))
	q.push(acceptedWSWire(conn, r.TLS != nil))
}

// Init starts the HTTP server.
func (s *WebSocketServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.tlsConf != nil {
		ln = tls.NewListener(ln, s.tlsConf)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.upgrade)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: DefaultHandshakeTimeout}
	s.listener = ln
	s.queue = newAcceptQueue()
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.queue.close()
		}
	}(s.server, s.done)
	return nil
}

// Accept returns the next upgraded peer.
func (s *WebSocketServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the server is accepting.
func (s *WebSocketServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Addr returns the bound address, or nil before Init.
func (s *WebSocketServerWire) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Describe names the endpoint.
func (s *WebSocketServerWire) Describe() string {
	scheme := "ws"
	if s.tlsConf != nil {
		scheme = "wss"
	}
	addr := s.address
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	return scheme + "://" + addr + s.path
}

// Close shuts the HTTP server down.
func (s *WebSocketServerWire) Close() error {
	s.mu.Lock()
	srv, q, done := s.server, s.queue, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	q.close()
	err := srv.Close()
	<-done
	return err
}
