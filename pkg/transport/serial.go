package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when SerialConfig.BaudRate is zero.
const DefaultBaudRate = 115200

// SerialConfig selects a serial device. The line is always 8N1.
type SerialConfig struct {
	Port     string
	BaudRate int
}

func (c SerialConfig) mode() *serial.Mode {
	baud := c.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// openSerial is replaced in tests.
var openSerial = func(cfg SerialConfig) (io.ReadWriteCloser, error) {
	port, err := serial.Open(cfg.Port, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	return port, nil
}

// ListSerialPorts returns the serial devices present on this host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// NewSerialWire returns a client wire on a serial device.
func NewSerialWire(cfg SerialConfig) Wire {
	return newStreamWire(func(context.Context) (io.ReadWriteCloser, string, error) {
		rwc, err := openSerial(cfg)
		if err != nil {
			return nil, "", err
		}
		return rwc, cfg.Port, nil
	}, false)
}

// SerialServerWire serves one peer at a time on a serial device. Accept
// opens the device, and after that wire closes the next Accept opens it
// again, retrying with backoff while the device is absent.
type SerialServerWire struct {
	cfg          SerialConfig
	onConnect    func(Wire)
	onDisconnect func(Wire)

	mu      sync.Mutex
	active  *serialSession
	started bool
	closed  chan struct{}
	backoff *Backoff
}

// NewSerialServerWire creates a serial server wire. Either callback may
// be nil.
func NewSerialServerWire(cfg SerialConfig, onConnect, onDisconnect func(Wire)) *SerialServerWire {
	return &SerialServerWire{
		cfg:          cfg,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
		closed:       make(chan struct{}),
		backoff: NewBackoffWithConfig(BackoffConfig{
			Initial: 500 * time.Millisecond,
			Max:     10 * time.Second,
		}),
	}
}

// Init marks the server wire ready. The device is opened by Accept.
func (s *SerialServerWire) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyListening
	}
	s.started = true
	return nil
}

// Accept waits for the previous session to end, then opens the device.
func (s *SerialServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	started, prev := s.started, s.active
	s.mu.Unlock()
	if !started {
		return nil, ErrNotInitialized
	}

	if prev != nil {
		select {
		case <-prev.done:
		case <-s.closed:
			return nil, ErrServerClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for {
		rwc, err := openSerial(s.cfg)
		if err == nil {
			s.backoff.Reset()
			return s.start(rwc)
		}
		select {
		case <-time.After(s.backoff.Next()):
		case <-s.closed:
			return nil, ErrServerClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *SerialServerWire) start(rwc io.ReadWriteCloser) (Wire, error) {
	sess := &serialSession{
		streamWire: acceptedStreamWire(rwc, s.cfg.Port, false, false),
		done:       make(chan struct{}),
		onClose:    s.onDisconnect,
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		rwc.Close()
		return nil, ErrServerClosed
	default:
	}
	s.active = sess
	s.mu.Unlock()

	if s.onConnect != nil {
		s.onConnect(sess)
	}
	return sess, nil
}

// Available reports whether Accept can still succeed.
func (s *SerialServerWire) Available() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Describe names the device.
func (s *SerialServerWire) Describe() string {
	return fmt.Sprintf("serial://%s@%d", s.cfg.Port, s.cfg.mode().BaudRate)
}

// Close stops accepting and closes the active session.
func (s *SerialServerWire) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	active := s.active
	s.mu.Unlock()

	if active != nil {
		return active.Close()
	}
	return nil
}

// serialSession is one open period of the device.
type serialSession struct {
	*streamWire
	once    sync.Once
	done    chan struct{}
	onClose func(Wire)
}

func (w *serialSession) Close() error {
	err := w.streamWire.Close()
	w.once.Do(func() {
		if w.onClose != nil {
			w.onClose(w)
		}
		close(w.done)
	})
	return err
}
