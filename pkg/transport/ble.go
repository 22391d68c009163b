package transport

import (
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultBLEMTU is the ATT payload size assumed when a link reports none.
const DefaultBLEMTU = 20

// BLELink is one connected GATT channel. Read returns notification
// payloads in arrival order; Write sends one characteristic write of at
// most MTU bytes.
type BLELink interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	MTU() int
	Address() string
}

// BLEListener yields links from centrals connecting to our peripheral.
type BLEListener interface {
	Accept(ctx context.Context) (BLELink, error)
	Close() error
}

// BLEBackend abstracts the platform Bluetooth stack.
type BLEBackend interface {
	// Connect opens a link to the peripheral at address.
	Connect(ctx context.Context, address string) (BLELink, error)

	// Listen advertises the flake GATT service.
	Listen(ctx context.Context) (BLEListener, error)
}

// bleStream turns a link into a byte stream by splitting writes at the MTU.
type bleStream struct {
	link BLELink
	mu   sync.Mutex
}

func (s *bleStream) Read(p []byte) (int, error) { return s.link.Read(p) }

func (s *bleStream) Write(p []byte) (int, error) {
	mtu := s.link.MTU()
	if mtu <= 0 {
		mtu = DefaultBLEMTU
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for written < len(p) {
		end := min(written+mtu, len(p))
		n, err := s.link.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *bleStream) Close() error { return s.link.Close() }

// NewBLEWire returns a client wire to the peripheral at address.
func NewBLEWire(backend BLEBackend, address string) Wire {
	return newStreamWire(func(ctx context.Context) (io.ReadWriteCloser, string, error) {
		link, err := backend.Connect(ctx, address)
		if err != nil {
			return nil, "", err
		}
		return &bleStream{link: link}, link.Address(), nil
	}, false)
}

// BLEServerWire accepts centrals through a BLEBackend.
type BLEServerWire struct {
	backend BLEBackend

	mu       sync.Mutex
	listener BLEListener
	queue    *acceptQueue
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewBLEServerWire creates a server wire on backend.
func NewBLEServerWire(backend BLEBackend) *BLEServerWire {
	return &BLEServerWire{backend: backend}
}

// Init starts advertising.
func (s *BLEServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyListening
	}
	l, err := s.backend.Listen(ctx)
	if err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.listener = l
	s.queue = newAcceptQueue()
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.acceptLoop(loopCtx, l, s.queue, s.done)
	return nil
}

func (s *BLEServerWire) acceptLoop(ctx context.Context, l BLEListener, q *acceptQueue, done chan struct{}) {
	defer close(done)
	for {
		link, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrServerClosed) {
				q.close()
				return
			}
			continue
		}
		q.push(acceptedStreamWire(&bleStream{link: link}, link.Address(), false, false))
	}
}

// Accept returns the next connected central.
func (s *BLEServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the peripheral is advertising.
func (s *BLEServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Describe names the transport.
func (s *BLEServerWire) Describe() string { return "ble://" }

// Close stops advertising.
func (s *BLEServerWire) Close() error {
	s.mu.Lock()
	l, q, cancel, done := s.listener, s.queue, s.cancel, s.done
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	cancel()
	err := l.Close()
	<-done
	q.close()
	return err
}
