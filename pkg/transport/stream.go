package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// dialFunc opens the byte stream behind a client wire and names the
// remote end.
type dialFunc func(ctx context.Context) (io.ReadWriteCloser, string, error)

// streamWire carries frames over a byte stream, delimited by a Framer.
type streamWire struct {
	id            string
	dial          dialFunc
	secure        bool
	authenticated bool

	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	framer *Framer
	remote string
	open   atomic.Bool
}

func newStreamWire(dial dialFunc, secure bool) *streamWire {
	return &streamWire{id: uuid.NewString(), dial: dial, secure: secure}
}

// acceptedStreamWire wraps an already established stream.
func acceptedStreamWire(rwc io.ReadWriteCloser, remote string, secure, authenticated bool) *streamWire {
	w := &streamWire{
		id:            uuid.NewString(),
		secure:        secure,
		authenticated: authenticated,
		rwc:           rwc,
		framer:        NewFramer(rwc),
		remote:        remote,
	}
	w.open.Store(true)
	return w
}

func (w *streamWire) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open.Load() {
		return nil
	}
	if w.dial == nil {
		return ErrWireClosed
	}
	rwc, remote, err := w.dial(ctx)
	if err != nil {
		return err
	}
	w.rwc = rwc
	w.framer = NewFramer(rwc)
	w.remote = remote
	w.open.Store(true)
	return nil
}

func (w *streamWire) current() *Framer {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Load() {
		return nil
	}
	return w.framer
}

func (w *streamWire) Read() ([]byte, error) {
	fr := w.current()
	if fr == nil {
		return nil, ErrNotOpen
	}
	data, err := fr.ReadFrame()
	if err != nil && !w.open.Load() {
		return nil, ErrWireClosed
	}
	return data, err
}

func (w *streamWire) Write(frame []byte) error {
	fr := w.current()
	if fr == nil {
		return ErrNotOpen
	}
	return fr.WriteFrame(frame)
}

func (w *streamWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Swap(false) {
		return nil
	}
	return w.rwc.Close()
}

func (w *streamWire) IsOpen() bool        { return w.open.Load() }
func (w *streamWire) ID() string          { return w.id }
func (w *streamWire) Secure() bool        { return w.secure }
func (w *streamWire) Authenticated() bool { return w.authenticated }

func (w *streamWire) RemoteAddr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remote
}
