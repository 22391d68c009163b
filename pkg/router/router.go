package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldwave/flake-go/pkg/persistence"
	"github.com/coldwave/flake-go/pkg/subscription"
	"github.com/coldwave/flake-go/pkg/transport"
	"github.com/coldwave/flake-go/pkg/wire"
)

// Router errors.
var (
	ErrRouterClosed   = errors.New("router: closed")
	ErrAlreadyServing = errors.New("router: already serving")
)

// Router accepts peers on any number of server wires, hands out
// addresses, hosts objects and routes requests between sessions.
type Router struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics
	gatherer   prometheus.Gatherer
	alloc      *allocator
	objects    *registry
	groups     *subscription.Groups
	changes    *subscription.Coalescer
	snapshot   *persistence.Store
	handshakes *handshakeTracker

	mu       sync.RWMutex
	wires    []transport.ServerWire
	sessions map[wire.Addr]*session
	all      map[*session]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	closed   bool
	wg       sync.WaitGroup
}

// New creates a router. With Config.SnapshotPath set, the objects saved
// there are restored before New returns.
func New(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()

	reg := cfg.Registerer
	var gatherer prometheus.Gatherer
	if reg == nil {
		pr := prometheus.NewRegistry()
		reg, gatherer = pr, pr
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	r := &Router{
		cfg:        cfg,
		logger:     cfg.Logger.With("router", cfg.Name),
		metrics:    newMetrics(reg),
		gatherer:   gatherer,
		alloc:      newAllocator(),
		objects:    newRegistry(),
		groups:     subscription.NewGroups(),
		handshakes: newHandshakeTracker(),
		sessions:   make(map[wire.Addr]*session),
		all:        make(map[*session]struct{}),
	}
	r.changes = subscription.NewCoalescer(subscription.Config{
		MinInterval:        cfg.ChangeInterval,
		SuppressBounceBack: cfg.SuppressBounceBack,
	}, r.emitChanged)

	if cfg.SnapshotPath != "" {
		r.snapshot = persistence.NewStore(cfg.SnapshotPath)
		if err := r.restore(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Router) Config() Config { return r.cfg }

// Gatherer exposes the router metrics for a /metrics handler. It is nil
// when Config.Registerer cannot gather.
func (r *Router) Gatherer() prometheus.Gatherer { return r.gatherer }

// AddServerWire adds a listener. Wires added after Start begin accepting
// at once.
func (r *Router) AddServerWire(sw transport.ServerWire) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	r.wires = append(r.wires, sw)
	started := r.started
	r.mu.Unlock()

	if started {
		return r.serveWire(sw)
	}
	return nil
}

// ServerWires returns the listeners in the order they were added.
func (r *Router) ServerWires() []transport.ServerWire {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.wires)
}

// Start initializes every server wire and starts accepting. It returns
// once all listeners are bound.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyServing
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	wires := slices.Clone(r.wires)
	r.mu.Unlock()

	for _, sw := range wires {
		if err := r.serveWire(sw); err != nil {
			r.Close()
			return err
		}
	}

	if r.cfg.ConnectTimeout > 0 {
		r.wg.Add(1)
		go r.reap()
	}
	r.logger.Info("router started", "wires", len(wires), "objects", r.objects.len())
	return nil
}

// Serve starts the router and blocks until ctx ends or Close is called.
func (r *Router) Serve(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-r.ctx.Done()
	return r.Close()
}

func (r *Router) serveWire(sw transport.ServerWire) error {
	if err := sw.Init(r.ctx); err != nil {
		return fmt.Errorf("init %s: %w", sw.Describe(), err)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sw.Close()
		return ErrRouterClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("listening", "wire", sw.Describe())
	go r.acceptLoop(sw)
	return nil
}

func (r *Router) acceptLoop(sw transport.ServerWire) {
	defer r.wg.Done()
	backoff := transport.NewBackoff()
	for {
		w, err := sw.Accept(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil || errors.Is(err, transport.ErrServerClosed) || !sw.Available() {
				r.logger.Debug("accept loop stopped", "wire", sw.Describe(), "error", err)
				return
			}
			r.logger.Debug("accept failed", "wire", sw.Describe(), "error", err)
			if backoff.Wait(r.ctx) != nil {
				return
			}
			continue
		}
		backoff.Reset()
		r.open(w)
	}
}

// open starts a session on an accepted wire.
func (r *Router) open(w transport.Wire) {
	s := newSession(r, w)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		w.Close()
		return
	}
	r.all[s] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	if r.cfg.ConnectTimeout > 0 {
		r.handshakes.Add(s)
	}
	r.logger.Debug("wire accepted", "wire", w.ID(), "remote", w.RemoteAddr())
	go func() {
		defer r.wg.Done()
		s.readLoop()
	}()
}

// session returns the connected session at addr.
func (r *Router) session(addr wire.Addr) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[addr]
}

// Sessions returns the number of connected sessions.
func (r *Router) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Objects returns the number of registered objects.
func (r *Router) Objects() int { return r.objects.len() }

// drop runs the cleanup for a closed session: it leaves every group,
// destroys the objects the session hosted and frees its address.
func (r *Router) drop(s *session, wasConnected bool) {
	r.handshakes.Remove(s)
	addr := s.Addr()

	r.mu.Lock()
	delete(r.all, s)
	if wasConnected && r.sessions[addr] == s {
		delete(r.sessions, addr)
	}
	r.mu.Unlock()

	if !wasConnected {
		return
	}
	r.metrics.sessions.Dec()

	for _, g := range r.groups.LeaveAll(addr) {
		if g != wire.AnnounceAddr {
			r.fanout(wire.NewFrame(wire.MsgLeft, addr, g, wire.PropArray{}), addr)
		}
	}
	for _, o := range r.objects.hostedBy(s) {
		r.destroy(o)
	}
	r.alloc.Release(addr)
	r.logger.Info("session closed", "peer", addr)
}

func (r *Router) reap() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if n := r.handshakes.CloseStale(r.cfg.ConnectTimeout); n > 0 {
				r.logger.Debug("closed wires without connect", "count", n)
			}
		}
	}
}

// Close stops every listener, closes all sessions and waits for them to
// finish their cleanup.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	wires := slices.Clone(r.wires)
	sessions := make([]*session, 0, len(r.all))
	for s := range r.all {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, sw := range wires {
		if err := sw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sw.Describe(), err))
		}
	}
	for _, s := range sessions {
		s.Close()
	}
	r.wg.Wait()
	r.changes.Close()
	r.logger.Info("router stopped")
	return errors.Join(errs...)
}
