package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultPort is the default flake TCP port.
const DefaultPort = 9986

// DefaultHandshakeTimeout bounds the TLS handshake of accepted connections.
const DefaultHandshakeTimeout = 10 * time.Second

// NewTCPWire returns a client wire that dials address on Open.
func NewTCPWire(address string) Wire {
	return newStreamWire(func(ctx context.Context) (io.ReadWriteCloser, string, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, "", fmt.Errorf("dial %s: %w", address, err)
		}
		return conn, conn.RemoteAddr().String(), nil
	}, false)
}

// NewTLSWire returns a client wire that dials address and performs a TLS
// handshake with conf on Open. Without a ServerName in conf the router
// certificate is verified against the host of address.
func NewTLSWire(address string, conf *tls.Config) Wire {
	conf = tlsConfigFor(conf, address)
	return newStreamWire(func(ctx context.Context) (io.ReadWriteCloser, string, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, "", fmt.Errorf("dial %s: %w", address, err)
		}
		tlsConn := tls.Client(conn, conf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("TLS handshake failed: %w", err)
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, "", err
		}
		return tlsConn, conn.RemoteAddr().String(), nil
	}, true)
}

// TCPServerWire accepts plain or TLS TCP connections.
type TCPServerWire struct {
	address string
	tlsConf *tls.Config

	mu       sync.Mutex
	listener net.Listener
	queue    *acceptQueue
	wg       sync.WaitGroup
}

// NewTCPServerWire listens on address. A nil tlsConf accepts plain TCP.
func NewTCPServerWire(address string, tlsConf *tls.Config) *TCPServerWire {
	if address == "" {
		address = fmt.Sprintf(":%d", DefaultPort)
	}
	return &TCPServerWire{address: address, tlsConf: tlsConf}
}

// Init binds the listener and starts accepting.
func (s *TCPServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.queue = newAcceptQueue()

	s.wg.Add(1)
	go s.acceptLoop(ln, s.queue)
	return nil
}

func (s *TCPServerWire) acceptLoop(ln net.Listener, q *acceptQueue) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			q.close()
			return
		}
		if s.tlsConf == nil {
			q.push(acceptedStreamWire(conn, conn.RemoteAddr().String(), false, false))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if w := s.handshake(conn); w != nil {
				q.push(w)
			}
		}()
	}
}

func (s *TCPServerWire) handshake(conn net.Conn) Wire {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
	defer cancel()

	tlsConn := tls.Server(conn, s.tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil
	}
	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		tlsConn.Close()
		return nil
	}
	return acceptedStreamWire(tlsConn, conn.RemoteAddr().String(), true, len(state.VerifiedChains) > 0)
}

// Accept returns the next connected peer.
func (s *TCPServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the listener is accepting.
func (s *TCPServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Addr returns the bound address, or nil before Init.
func (s *TCPServerWire) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Describe names the listener.
func (s *TCPServerWire) Describe() string {
	scheme := "tcp"
	if s.tlsConf != nil {
		scheme = "tls"
	}
	addr := s.address
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	return scheme + "://" + addr
}

// Close stops the listener and waits for pending handshakes.
func (s *TCPServerWire) Close() error {
	s.mu.Lock()
	ln, q := s.listener, s.queue
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	q.close()
	return err
}
