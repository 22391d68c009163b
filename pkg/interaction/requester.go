package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Request limits and timeout.
const (
	MaxPendingSyncRequests  = 5
	MaxPendingAsyncRequests = 5
	DefaultTimeout          = 10 * time.Second
)

// Sender writes a frame to the peer. transport.FrameConn implements it.
type Sender interface {
	Send(f *wire.Frame) error
}

// Requester issues requests over one wire and matches their confirmations.
type Requester struct {
	sender Sender

	mu       sync.Mutex
	timeout  time.Duration
	next     wire.Token
	pending  map[wire.Token]*pendingRequest
	numSync  int
	numAsync int
	closed   bool
}

type result struct {
	conf *Confirmation
	err  error
}

type pendingRequest struct {
	msg      wire.MessageType
	src, dst wire.Addr
	token    wire.Token

	async bool
	done  chan result
	cb    func(*Confirmation)
	timer *time.Timer
}

// synthesize builds the confirmation handed to async callbacks when no
// real one arrives.
func (p *pendingRequest) synthesize(status wire.Status) *Confirmation {
	return &Confirmation{
		Message:     p.msg,
		Source:      p.dst,
		Destination: p.src,
		Token:       p.token,
		Status:      status,
	}
}

// NewRequester creates a requester. A zero timeout selects DefaultTimeout.
func NewRequester(s Sender, timeout time.Duration) *Requester {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Requester{
		sender:  s,
		timeout: timeout,
		pending: make(map[wire.Token]*pendingRequest),
	}
}

// SetTimeout changes the timeout for later requests.
func (r *Requester) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Timeout returns the current request timeout.
func (r *Requester) Timeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeout
}

// nextTokenLocked returns a token no outstanding request uses. Token 0 is
// never handed out.
func (r *Requester) nextTokenLocked() wire.Token {
	for {
		r.next++
		if r.next == 0 {
			continue
		}
		if _, used := r.pending[r.next]; !used {
			return r.next
		}
	}
}

func (r *Requester) register(f *wire.Frame, p *pendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return wire.StatusNotConnected
	}
	if p.async {
		if r.numAsync >= MaxPendingAsyncRequests {
			return wire.StatusPending
		}
		r.numAsync++
	} else {
		if r.numSync >= MaxPendingSyncRequests {
			return wire.StatusPending
		}
		r.numSync++
	}

	p.token = r.nextTokenLocked()
	p.msg, p.src, p.dst = f.Type.Base(), f.Source, f.Destination
	f.Token = p.token
	r.pending[p.token] = p
	return nil
}

// release removes p if it is still waiting. Only the caller that gets
// true may complete p.
func (r *Requester) release(p *pendingRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(p)
}

func (r *Requester) releaseLocked(p *pendingRequest) bool {
	if r.pending[p.token] != p {
		return false
	}
	delete(r.pending, p.token)
	if p.async {
		r.numAsync--
	} else {
		r.numSync--
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

// Do sends f and blocks until its confirmation arrives, the request times
// out or ctx ends. A received confirmation is returned with a nil error
// whatever its status; errors report requests that got no answer.
func (r *Requester) Do(ctx context.Context, f *wire.Frame) (*Confirmation, error) {
	p := &pendingRequest{done: make(chan result, 1)}
	if err := r.register(f, p); err != nil {
		return nil, err
	}

	if err := r.sender.Send(f); err != nil {
		r.release(p)
		return nil, err
	}

	t := time.NewTimer(r.Timeout())
	defer t.Stop()

	select {
	case res := <-p.done:
		return res.conf, res.err
	case <-t.C:
		if r.release(p) {
			return nil, wire.StatusTimeout
		}
	case <-ctx.Done():
		if r.release(p) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", wire.StatusTimeout, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}
	// Resolved while we were giving up.
	res := <-p.done
	return res.conf, res.err
}

// Go sends f and returns at once. cb runs exactly once: with the
// confirmation on the reader goroutine, or with a synthesized one carrying
// StatusTimeout or the FailAll status.
func (r *Requester) Go(f *wire.Frame, cb func(*Confirmation)) error {
	if cb == nil {
		cb = func(*Confirmation) {}
	}
	p := &pendingRequest{async: true, cb: cb}
	if err := r.register(f, p); err != nil {
		return err
	}

	r.mu.Lock()
	p.timer = time.AfterFunc(r.timeout, func() {
		if r.release(p) {
			p.cb(p.synthesize(wire.StatusTimeout))
		}
	})
	r.mu.Unlock()

	if err := r.sender.Send(f); err != nil {
		r.release(p)
		return err
	}
	return nil
}

// Post sends f with a fresh token and forgets it. The confirmation, if
// any, is dropped by Resolve.
func (r *Requester) Post(f *wire.Frame) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return wire.StatusNotConnected
	}
	f.Token = r.nextTokenLocked()
	r.mu.Unlock()
	return r.sender.Send(f)
}

// Resolve completes the request matching the confirmation f. It returns
// false when no request waits for f.Token; the frame is then dropped.
func (r *Requester) Resolve(f *wire.Frame) bool {
	r.mu.Lock()
	p, ok := r.pending[f.Token]
	if !ok || p.msg != f.Type.Base() {
		r.mu.Unlock()
		return false
	}
	r.releaseLocked(p)
	r.mu.Unlock()

	conf := NewConfirmation(f)
	if p.async {
		p.cb(conf)
	} else {
		p.done <- result{conf: conf}
	}
	return true
}

// FailAll resolves every outstanding request with status, typically
// wire.StatusNotConnected after the wire dropped.
func (r *Requester) FailAll(status wire.Status) {
	r.mu.Lock()
	waiting := make([]*pendingRequest, 0, len(r.pending))
	for _, p := range r.pending {
		waiting = append(waiting, p)
	}
	for _, p := range waiting {
		r.releaseLocked(p)
	}
	r.mu.Unlock()

	for _, p := range waiting {
		if p.async {
			p.cb(p.synthesize(status))
		} else {
			p.done <- result{err: status}
		}
	}
}

// Close fails everything outstanding with wire.StatusNotConnected and
// rejects later requests.
func (r *Requester) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.FailAll(wire.StatusNotConnected)
}

// Pending returns the number of outstanding blocking and non-blocking
// requests.
func (r *Requester) Pending() (blocking, async int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numSync, r.numAsync
}
