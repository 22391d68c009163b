package subscription

import (
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/wire"
)

// EmitFunc sends one changed broadcast for obj.
type EmitFunc func(obj wire.Addr, changed wire.PropArray)

// Coalescer turns property changes into changed broadcasts, merging the
// changes of one object that fall into the same window.
type Coalescer struct {
	mu sync.Mutex

	config  Config
	emit    EmitFunc
	windows map[wire.Addr]*Window
	timers  map[wire.Addr]*time.Timer
	closed  bool
}

// NewCoalescer creates a coalescer that hands broadcasts to emit.
func NewCoalescer(config Config, emit EmitFunc) *Coalescer {
	return &Coalescer{
		config:  config,
		emit:    emit,
		windows: make(map[wire.Addr]*Window),
		timers:  make(map[wire.Addr]*time.Timer),
	}
}

// Prime sets the bounce-back baseline of obj, typically its properties at
// creation.
func (c *Coalescer) Prime(obj wire.Addr, values wire.PropArray) {
	if c.config.MinInterval <= 0 {
		return
	}
	c.window(obj).Prime(values)
}

func (c *Coalescer) window(obj wire.Addr) *Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.windows[obj]
	if w == nil {
		w = NewWindow(obj, c.config.MinInterval)
		c.windows[obj] = w
	}
	return w
}

// NotifyChange records changed values of obj. Without a window they are
// emitted at once.
func (c *Coalescer) NotifyChange(obj wire.Addr, changed wire.PropArray) {
	if changed.IsEmpty() {
		return
	}
	if c.config.MinInterval <= 0 {
		c.emit(obj, changed)
		return
	}

	w := c.window(obj)
	if !w.RecordChange(changed) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.timers[obj] = time.AfterFunc(c.config.MinInterval, func() { c.flush(obj) })
}

func (c *Coalescer) flush(obj wire.Addr) {
	c.mu.Lock()
	w := c.windows[obj]
	delete(c.timers, obj)
	closed := c.closed
	c.mu.Unlock()
	if w == nil || closed {
		return
	}
	if out := w.Pending(c.config.SuppressBounceBack); !out.IsEmpty() {
		c.emit(obj, out)
	}
}

// Forget drops the window of obj without emitting it.
func (c *Coalescer) Forget(obj wire.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.timers[obj]; t != nil {
		t.Stop()
	}
	delete(c.timers, obj)
	delete(c.windows, obj)
}

// Count returns the number of objects with a window.
func (c *Coalescer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Close stops all windows. Pending changes are dropped.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for obj, t := range c.timers {
		t.Stop()
		delete(c.timers, obj)
	}
	c.windows = make(map[wire.Addr]*Window)
}
