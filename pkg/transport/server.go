package transport

import (
	"context"
	"sync"
)

// acceptBacklog bounds wires waiting for Accept.
const acceptBacklog = 16

// acceptQueue hands wires from listener goroutines to Accept callers.
type acceptQueue struct {
	ch        chan Wire
	done      chan struct{}
	closeOnce sync.Once
}

func newAcceptQueue() *acceptQueue {
	return &acceptQueue{
		ch:   make(chan Wire, acceptBacklog),
		done: make(chan struct{}),
	}
}

// push queues w. If the queue is closed w is closed and false returned.
func (q *acceptQueue) push(w Wire) bool {
	select {
	case <-q.done:
		w.Close()
		return false
	default:
	}
	select {
	case q.ch <- w:
		return true
	case <-q.done:
		w.Close()
		return false
	}
}

func (q *acceptQueue) accept(ctx context.Context) (Wire, error) {
	select {
	case w := <-q.ch:
		return w, nil
	case <-q.done:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops the queue and closes wires nobody accepted.
func (q *acceptQueue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
		for {
			select {
			case w := <-q.ch:
				w.Close()
			default:
				return
			}
		}
	})
}

func (q *acceptQueue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
