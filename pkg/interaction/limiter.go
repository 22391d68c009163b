package interaction

import "context"

// MaxPendingIndications bounds indications handled concurrently per
// connection.
const MaxPendingIndications = 20

// Limiter bounds in-flight indication handlers.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter with n slots; n <= 0 selects
// MaxPendingIndications.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = MaxPendingIndications
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// TryAcquire takes a slot if one is free.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for a slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by TryAcquire or Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Go runs fn on its own goroutine if a slot is free and reports whether
// it did.
func (l *Limiter) Go(fn func()) bool {
	if !l.TryAcquire() {
		return false
	}
	go func() {
		defer l.Release()
		fn()
	}()
	return true
}

// InFlight returns the number of taken slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

// Cap returns the number of slots.
func (l *Limiter) Cap() int {
	return cap(l.slots)
}
