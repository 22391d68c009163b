package transport

import (
	"context"
	"net"
	"sync"
)

// Pipe returns two connected in-memory wires.
func Pipe() (Wire, Wire) {
	a, b := net.Pipe()
	return acceptedStreamWire(a, "pipe", false, false), acceptedStreamWire(b, "pipe", false, false)
}

// PipeServerWire is an in-process ServerWire. Dial creates a connected
// pair and queues the server half for Accept.
type PipeServerWire struct {
	name string

	mu    sync.Mutex
	queue *acceptQueue
}

// NewPipeServerWire creates an in-process server wire.
func NewPipeServerWire(name string) *PipeServerWire {
	return &PipeServerWire{name: name}
}

// Init enables Dial and Accept.
func (s *PipeServerWire) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return ErrAlreadyListening
	}
	s.queue = newAcceptQueue()
	return nil
}

// Dial returns the client half of a new pair.
func (s *PipeServerWire) Dial() (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	client, server := Pipe()
	if !q.push(server) {
		client.Close()
		return nil, ErrServerClosed
	}
	return client, nil
}

// Accept returns the server half of the next Dial.
func (s *PipeServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether Dial and Accept still work.
func (s *PipeServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Describe names the pipe.
func (s *PipeServerWire) Describe() string { return "pipe://" + s.name }

// Close stops accepting.
func (s *PipeServerWire) Close() error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q != nil {
		q.close()
	}
	return nil
}
