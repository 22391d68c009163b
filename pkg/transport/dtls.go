package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/dtls/v2"
)

// NewDTLSWire returns a client wire that performs a DTLS handshake with
// address on Open. Without a ServerName in conf the router certificate is
// verified against the host of address.
func NewDTLSWire(address string, conf *dtls.Config) Wire {
	conf = dtlsConfigFor(conf, address)
	return newPacketWire(func(ctx context.Context) (net.Conn, error) {
		raddr, err := net.ResolveUDPAddr("udp", address)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", address, err)
		}
		conn, err := dtls.DialWithContext(ctx, "udp", raddr, conf)
		if err != nil {
			return nil, fmt.Errorf("DTLS handshake failed: %w", err)
		}
		return conn, nil
	}, true)
}

// DTLSServerWire accepts DTLS sessions on a UDP port.
type DTLSServerWire struct {
	address string
	conf    *dtls.Config

	mu       sync.Mutex
	listener net.Listener
	queue    *acceptQueue
	done     chan struct{}
	closing  atomic.Bool
}

// NewDTLSServerWire listens on address with conf.
func NewDTLSServerWire(address string, conf *dtls.Config) *DTLSServerWire {
	if address == "" {
		address = fmt.Sprintf(":%d", DefaultPort)
	}
	return &DTLSServerWire{address: address, conf: conf}
}

// Init binds the listener.
func (s *DTLSServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyListening
	}
	laddr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.address, err)
	}
	ln, err := dtls.Listen("udp", laddr, s.conf)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.queue = newAcceptQueue()
	s.done = make(chan struct{})
	go s.acceptLoop(ln, s.queue, s.done)
	return nil
}

func (s *DTLSServerWire) acceptLoop(ln net.Listener, q *acceptQueue, done chan struct{}) {
	defer close(done)
	for {
		// A failed handshake also surfaces here; only a closed listener
		// ends the loop.
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				q.close()
				return
			}
			continue
		}
		authenticated := false
		if dc, ok := conn.(*dtls.Conn); ok {
			authenticated = len(dc.ConnectionState().PeerCertificates) > 0 &&
				s.conf.ClientAuth >= dtls.VerifyClientCertIfGiven
		}
		q.push(acceptedPacketWire(conn, true, authenticated))
	}
}

// Accept returns the next peer that completed the handshake.
func (s *DTLSServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the listener is accepting.
func (s *DTLSServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Addr returns the bound address, or nil before Init.
func (s *DTLSServerWire) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Describe names the listener.
func (s *DTLSServerWire) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return "dtls://" + s.listener.Addr().String()
	}
	return "dtls://" + s.address
}

// Close stops the listener.
func (s *DTLSServerWire) Close() error {
	s.mu.Lock()
	ln, done := s.listener, s.done
	s.mu.Unlock()
	if ln == nil || s.closing.Swap(true) {
		return nil
	}
	err := ln.Close()
	<-done
	return err
}
