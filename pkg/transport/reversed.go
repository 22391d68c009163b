package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"
)

// ReversedTCPServerWire lets a router behind NAT serve a peer by dialing
// out to it. The dialed connection is handed to Accept like an incoming
// one. When that wire closes the next Accept dials again with backoff.
type ReversedTCPServerWire struct {
	address string
	tlsConf *tls.Config
	backoff *Backoff

	mu      sync.Mutex
	started bool
	current Wire
	closed  chan struct{}
}

// NewReversedTCPServerWire dials host:port, optionally with TLS.
func NewReversedTCPServerWire(host string, port int, tlsConf *tls.Config) *ReversedTCPServerWire {
	return &ReversedTCPServerWire{
		address: net.JoinHostPort(host, fmt.Sprint(port)),
		tlsConf: tlsConf,
		backoff: NewBackoff(),
		closed:  make(chan struct{}),
	}
}

// SetBackoff replaces the redial backoff.
func (s *ReversedTCPServerWire) SetBackoff(cfg BackoffConfig) {
	s.backoff = NewBackoffWithConfig(cfg)
}

// Init marks the server wire ready.
func (s *ReversedTCPServerWire) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyListening
	}
	s.started = true
	return nil
}

// Accept dials the remote end once the previous wire is closed.
func (s *ReversedTCPServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	started, prev := s.started, s.current
	s.mu.Unlock()
	if !started {
		return nil, ErrNotInitialized
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for prev != nil && prev.IsOpen() {
		if err := s.pause(ctx); err != nil {
			return nil, err
		}
	}

	for {
		var w Wire
		if s.tlsConf != nil {
			w = NewTLSWire(s.address, s.tlsConf)
		} else {
			w = NewTCPWire(s.address)
		}
		if err := w.Open(ctx); err == nil {
			s.backoff.Reset()
			s.mu.Lock()
			s.current = w
			s.mu.Unlock()
			return w, nil
		}
		if err := s.backoff.Wait(ctx); err != nil {
			return nil, s.closedErr(err)
		}
	}
}

// reversedPollInterval paces the check for the active wire closing.
const reversedPollInterval = 200 * time.Millisecond

func (s *ReversedTCPServerWire) pause(ctx context.Context) error {
	t := time.NewTimer(reversedPollInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return s.closedErr(ctx.Err())
	}
}

func (s *ReversedTCPServerWire) closedErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-s.closed:
		return ErrServerClosed
	default:
		return err
	}
}

// Available reports whether Accept can still succeed.
func (s *ReversedTCPServerWire) Available() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Describe names the remote end.
func (s *ReversedTCPServerWire) Describe() string {
	if s.tlsConf != nil {
		return "reversed+tls://" + s.address
	}
	return "reversed+tcp://" + s.address
}

// Close stops redialing and closes the active wire.
func (s *ReversedTCPServerWire) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		return cur.Close()
	}
	return nil
}
