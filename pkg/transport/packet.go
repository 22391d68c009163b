package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/coldwave/flake-go/pkg/wire"
)

// packetWire carries one frame per datagram over a connected net.Conn.
// Used for UDP clients and both ends of DTLS.
type packetWire struct {
	id            string
	dial          func(ctx context.Context) (net.Conn, error)
	secure        bool
	authenticated bool

	mu   sync.Mutex
	conn net.Conn
	open atomic.Bool
	buf  []byte
}

func newPacketWire(dial func(ctx context.Context) (net.Conn, error), secure bool) *packetWire {
	return &packetWire{
		id:     uuid.NewString(),
		dial:   dial,
		secure: secure,
		buf:    make([]byte, wire.MaxFrameSize),
	}
}

func acceptedPacketWire(conn net.Conn, secure, authenticated bool) *packetWire {
	w := &packetWire{
		id:            uuid.NewString(),
		secure:        secure,
		authenticated: authenticated,
		conn:          conn,
		buf:           make([]byte, wire.MaxFrameSize),
	}
	w.open.Store(true)
	return w
}

func (w *packetWire) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open.Load() {
		return nil
	}
	if w.dial == nil {
		return ErrWireClosed
	}
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	w.conn = conn
	w.open.Store(true)
	return nil
}

func (w *packetWire) current() net.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Load() {
		return nil
	}
	return w.conn
}

func (w *packetWire) Read() ([]byte, error) {
	conn := w.current()
	if conn == nil {
		return nil, ErrNotOpen
	}
	n, err := conn.Read(w.buf)
	if err != nil {
		if !w.open.Load() {
			return nil, ErrWireClosed
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, w.buf[:n])
	return out, nil
}

func (w *packetWire) Write(frame []byte) error {
	conn := w.current()
	if conn == nil {
		return ErrNotOpen
	}
	if len(frame) > wire.MaxFrameSize {
		return ErrMessageTooLarge
	}
	_, err := conn.Write(frame)
	return err
}

func (w *packetWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Swap(false) {
		return nil
	}
	return w.conn.Close()
}

func (w *packetWire) IsOpen() bool        { return w.open.Load() }
func (w *packetWire) ID() string          { return w.id }
func (w *packetWire) Secure() bool        { return w.secure }
func (w *packetWire) Authenticated() bool { return w.authenticated }

func (w *packetWire) RemoteAddr() string {
	conn := w.current()
	if conn == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
