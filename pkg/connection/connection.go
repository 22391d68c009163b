package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/transport"
	"github.com/coldwave/flake-go/pkg/wire"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrBadConfirmation  = errors.New("confirmation lacks required properties")
)

// Config configures a Connection.
type Config struct {
	// Timeout bounds every blocking request and the handshake.
	Timeout time.Duration

	// MaxPendingIndications bounds concurrently running service handlers.
	MaxPendingIndications int

	// KeepAlive enables ping probing after connect when non-nil.
	KeepAlive *transport.KeepAliveConfig

	// Logger receives operational logs. Nil selects slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures frames and state changes. May be nil.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:               interaction.DefaultTimeout,
		MaxPendingIndications: interaction.MaxPendingIndications,
	}
}

// Sink is told about connection-level events.
type Sink interface {
	// OnDisconnected runs once after the wire is gone. err is nil after
	// Disconnect or Close.
	OnDisconnected(c *Connection, err error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c *Connection, err error)

func (f SinkFunc) OnDisconnected(c *Connection, err error) { f(c, err) }

// Connection is the peer side of one wire to a router.
type Connection struct {
	cfg     Config
	logger  *slog.Logger
	fc      *transport.FrameConn
	req     *interaction.Requester
	limiter *interaction.Limiter

	mu        sync.RWMutex
	addr      wire.Addr
	connected bool
	objects   map[wire.Addr]*Object
	services  map[wire.Addr]*serviceHost
	watchers  []func(*interaction.Indication)
	sinks     []Sink
	keepAlive *transport.KeepAlive

	closing   bool
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial opens w and starts a connection on it. The handshake still has to
// be run with Connect.
func Dial(ctx context.Context, w transport.Wire, cfg Config) (*Connection, error) {
	if !w.IsOpen() {
		if err := w.Open(ctx); err != nil {
			return nil, err
		}
	}
	return New(w, cfg), nil
}

// New starts a connection on the open wire w.
func New(w transport.Wire, cfg Config) *Connection {
	if cfg.Timeout <= 0 {
		cfg.Timeout = interaction.DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fc := transport.NewFrameConn(w, cfg.ProtocolLogger, log.RolePeer)
	c := &Connection{
		cfg:      cfg,
		logger:   logger.With("wire", w.ID()),
		fc:       fc,
		req:      interaction.NewRequester(fc, cfg.Timeout),
		limiter:  interaction.NewLimiter(cfg.MaxPendingIndications),
		objects:  make(map[wire.Addr]*Object),
		services: make(map[wire.Addr]*serviceHost),
		done:     make(chan struct{}),
	}
	fc.LogState(log.StateEntityConnection, "", "OPEN", w.RemoteAddr())
	go c.readLoop()
	return c
}

// Addr returns the address the router assigned on connect.
func (c *Connection) Addr() wire.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Connected reports whether the handshake completed and the wire is up.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Wire returns the underlying wire.
func (c *Connection) Wire() transport.Wire { return c.fc.Wire() }

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, or nil.
func (c *Connection) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// AddSink registers s for connection-level events.
func (c *Connection) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// SetTimeout changes the timeout of later requests.
func (c *Connection) SetTimeout(d time.Duration) {
	c.req.SetTimeout(d)
}

// Requester exposes the request correlator, mainly for tools that build
// raw frames.
func (c *Connection) Requester() *interaction.Requester { return c.req }

func (c *Connection) readLoop() {
	for {
		f, err := c.fc.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrMalformedFrame) {
				c.logger.Debug("dropping malformed frame", "error", err)
				continue
			}
			c.shutdown(err)
			return
		}
		c.dispatch(f)
	}
}

func (c *Connection) dispatch(f *wire.Frame) {
	switch {
	case f.Type.IsConfirmation():
		if !c.req.Resolve(f) {
			c.logger.Debug("dropping unmatched confirmation", "msg_type", f.Type, "token", f.Token)
		}
	case f.Type == wire.MsgPing:
		c.reply(f, wire.StatusOK, f.Payload)
	case f.Type.IsBroadcast():
		c.deliver(interaction.NewIndication(f, nil))
	case f.Type.IsIndication():
		c.handleIndication(f)
	default:
		if f.Type.ExpectsAnswer() {
			c.reply(f, wire.StatusUnsupported, wire.PropArray{})
		}
	}
}

func (c *Connection) reply(f *wire.Frame, status wire.Status, payload wire.PropArray) {
	conf := f.Reply(status, payload)
	conf.FitPayload()
	if err := c.fc.Send(conf); err != nil {
		c.logger.Debug("reply failed", "msg_type", f.Type, "error", err)
	}
}

// handleIndication routes a request-half indication to the service
// hosting its destination. Indications without token are group messages
// and go to subscribers instead.
func (c *Connection) handleIndication(f *wire.Frame) {
	ind := interaction.NewIndication(f, c.fc.Send)

	c.mu.RLock()
	h := c.services[f.Destination]
	c.mu.RUnlock()

	switch {
	case h != nil:
		if !c.limiter.Go(func() { h.handle(ind) }) {
			c.logger.Warn("indication workers exhausted", "msg_type", f.Type, "object", f.Destination)
			ind.Ack(wire.StatusPending, wire.PropArray{})
		}
	case !ind.NeedsAck():
		c.deliver(ind)
	default:
		ind.Ack(wire.StatusNotFound, wire.PropArray{})
	}
}

// deliver hands a broadcast to the proxies it concerns and to object
// watchers. It runs on the reader goroutine.
func (c *Connection) deliver(ind *interaction.Indication) {
	c.mu.RLock()
	var targets []*Object
	for _, o := range c.objects {
		if o.bcast == ind.Destination || (ind.Destination == wire.AnnounceAddr && o.addr == ind.Source) {
			targets = append(targets, o)
		}
	}
	var watchers []func(*interaction.Indication)
	if ind.Destination == wire.AnnounceAddr {
		watchers = c.watchers
	}
	c.mu.RUnlock()

	for _, o := range targets {
		o.deliver(ind)
	}
	for _, fn := range watchers {
		fn(ind)
	}
}

// do runs one blocking request and maps a missing connection to
// wire.StatusNotConnected.
func (c *Connection) do(ctx context.Context, f *wire.Frame) (*interaction.Confirmation, error) {
	if f.Source == wire.EmptyAddr {
		f.Source = c.Addr()
	}
	return c.req.Do(ctx, f)
}

// Ping measures one round trip to the router.
func (c *Connection) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgPing, 0, wire.RouterAddr, wire.PropArray{}))
	if err != nil {
		return 0, err
	}
	return time.Since(start), conf.Err()
}

// SaveChanges asks the router to persist its hosted objects.
func (c *Connection) SaveChanges(ctx context.Context) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgSaveChanges, 0, wire.RouterAddr, wire.PropArray{}))
	if err != nil {
		return err
	}
	return conf.Err()
}

// Configure sets per-session options on the router.
func (c *Connection) Configure(ctx context.Context, options wire.PropArray) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgConfigure, 0, wire.RouterAddr, options))
	if err != nil {
		return err
	}
	return conf.Err()
}

// Disconnect says goodbye to the router and closes the wire.
func (c *Connection) Disconnect(ctx context.Context) error {
	if c.Connected() {
		if _, err := c.do(ctx, wire.NewFrame(wire.MsgDisconnect, 0, wire.RouterAddr, wire.PropArray{})); err != nil {
			c.logger.Debug("disconnect not confirmed", "error", err)
		}
	}
	return c.Close()
}

// Close closes the wire without a disconnect request and waits for the
// reader to stop.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	err := c.fc.Close()
	<-c.done
	return err
}

func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.closing {
			cause = nil
		}
		c.err = cause
		c.connected = false
		ka := c.keepAlive
		c.keepAlive = nil
		sinks := c.sinks
		objects := make([]*Object, 0, len(c.objects))
		for _, o := range c.objects {
			objects = append(objects, o)
		}
		c.mu.Unlock()

		if ka != nil {
			ka.Stop()
		}
		c.req.Close()
		c.fc.Close()
		for _, o := range objects {
			o.invalidate()
		}

		reason := "closed"
		if cause != nil {
			reason = cause.Error()
			c.logger.Info("connection lost", "error", cause)
		}
		c.fc.LogState(log.StateEntityConnection, "OPEN", "CLOSED", reason)
		close(c.done)

		for _, s := range sinks {
			s.OnDisconnected(c, cause)
		}
	})
}

func (c *Connection) startKeepAlive() {
	if c.cfg.KeepAlive == nil {
		return
	}
	ka := transport.NewKeepAlive(*c.cfg.KeepAlive, c.ping, func() {
		c.fc.LogControl(log.ControlMsgTimeout, 0, log.DirectionOut)
		c.logger.Warn("keep-alive timeout, closing wire")
		c.fc.Close()
	})
	c.mu.Lock()
	c.keepAlive = ka
	c.mu.Unlock()
	ka.Start(context.Background())
}

func (c *Connection) ping(ctx context.Context, seq uint32) error {
	c.fc.LogControl(log.ControlMsgPing, seq, log.DirectionOut)
	if _, err := c.Ping(ctx); err != nil {
		return err
	}
	c.fc.LogControl(log.ControlMsgPong, seq, log.DirectionIn)
	return nil
}
