package subscription

import (
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Config holds coalescing configuration.
type Config struct {
	// MinInterval is the coalescing window. Zero sends every change
	// immediately.
	MinInterval time.Duration

	// SuppressBounceBack enables bounce-back suppression.
	SuppressBounceBack bool
}

// DefaultConfig returns the default configuration: no coalescing.
func DefaultConfig() Config {
	return Config{SuppressBounceBack: true}
}

// Window accumulates the changes of one object between two broadcasts.
type Window struct {
	mu sync.Mutex

	// Object is the object whose changes are collected.
	Object wire.Addr

	// MinInterval is the minimum time between broadcasts.
	MinInterval time.Duration

	// lastValues holds the last broadcast values for bounce-back detection.
	lastValues wire.PropArray

	// pending accumulates changes during the window.
	pending wire.PropArray

	// windowStart is when the first change of the current window occurred.
	windowStart time.Time
}

// NewWindow creates an empty window for obj.
func NewWindow(obj wire.Addr, minInterval time.Duration) *Window {
	return &Window{Object: obj, MinInterval: minInterval}
}

// Prime records values as already broadcast, the baseline for bounce-back
// detection.
func (w *Window) Prime(values wire.PropArray) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastValues.Merge(values)
}

// RecordChange adds changed values to the window. It returns true if this
// change opened the window.
func (w *Window) RecordChange(changed wire.PropArray) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	isNewWindow := w.pending.IsEmpty()
	if isNewWindow {
		w.windowStart = time.Now()
	}
	w.pending.Merge(changed)
	return isNewWindow && !changed.IsEmpty()
}

// HasChanges reports whether changes wait for the next broadcast.
func (w *Window) HasChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.pending.IsEmpty()
}

// Pending returns the values to broadcast and clears the window. It
// returns an empty array while the window is still open or when every
// change bounced back.
func (w *Window) Pending(suppressBounceBack bool) wire.PropArray {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending.IsEmpty() || time.Since(w.windowStart) < w.MinInterval {
		return wire.PropArray{}
	}

	var out wire.PropArray
	for _, p := range w.pending.Props() {
		if suppressBounceBack {
			if last, ok := w.lastValues.Lookup(p.Tag); ok && last.Equal(p) {
				continue
			}
		}
		out.Set(p)
		w.lastValues.Set(p)
	}

	w.pending.Clear()
	return out
}
