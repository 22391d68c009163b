package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/wire"
)

// MaxLogFrameDataSize is the largest frame body copied into a log event.
const MaxLogFrameDataSize = 4096

// ErrMalformedFrame wraps a frame that arrived intact but failed to decode.
// The link stays usable.
var ErrMalformedFrame = errors.New("transport: malformed frame")

// FrameConn encodes and decodes frames on a Wire and serializes writers.
type FrameConn struct {
	w       Wire
	writeMu sync.Mutex

	logger log.Logger
	role   log.Role
	peer   atomic.Uint32
}

// NewFrameConn wraps w. logger may be nil.
func NewFrameConn(w Wire, logger log.Logger, role log.Role) *FrameConn {
	return &FrameConn{w: w, logger: logger, role: role}
}

// Wire returns the underlying wire.
func (c *FrameConn) Wire() Wire { return c.w }

// SetPeerAddr tags later log events with the peer's flake address.
func (c *FrameConn) SetPeerAddr(a wire.Addr) { c.peer.Store(uint32(a)) }

// PeerAddr returns the address set with SetPeerAddr.
func (c *FrameConn) PeerAddr() wire.Addr { return wire.Addr(c.peer.Load()) }

// Send encodes and writes f.
func (c *FrameConn) Send(f *wire.Frame) error {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		c.logError("encode", err)
		return err
	}

	c.writeMu.Lock()
	err = c.w.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.logError("write", err)
		return fmt.Errorf("send %s: %w", f.Type, err)
	}

	c.logFrame(data, f, log.DirectionOut)
	return nil
}

// Receive blocks for the next frame. A decode failure is reported as
// ErrMalformedFrame and leaves the connection usable; any other error
// means the wire is gone.
func (c *FrameConn) Receive() (*wire.Frame, error) {
	data, err := c.w.Read()
	if err != nil {
		return nil, err
	}
	f, err := wire.DecodeFrame(data)
	if err != nil {
		c.logFrame(data, nil, log.DirectionIn)
		c.logError("decode", err)
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	c.logFrame(data, f, log.DirectionIn)
	return f, nil
}

// Close closes the wire.
func (c *FrameConn) Close() error { return c.w.Close() }

// LogState records a lifecycle change.
func (c *FrameConn) LogState(entity log.StateEntity, oldState, newState, reason string) {
	if c.logger == nil {
		return
	}
	e := c.event(log.DirectionIn, log.LayerService, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	c.logger.Log(e)
}

// LogControl records a keepalive event.
func (c *FrameConn) LogControl(t log.ControlMsgType, seq uint32, dir log.Direction) {
	if c.logger == nil {
		return
	}
	e := c.event(dir, log.LayerTransport, log.CategoryControl)
	e.ControlMsg = &log.ControlMsgEvent{Type: t, Sequence: seq}
	c.logger.Log(e)
}

func (c *FrameConn) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.w.ID(),
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		LocalRole:    c.role,
		RemoteAddr:   c.w.RemoteAddr(),
		PeerAddr:     c.PeerAddr(),
	}
}

func (c *FrameConn) logFrame(data []byte, f *wire.Frame, dir log.Direction) {
	if c.logger == nil {
		return
	}

	raw := c.event(dir, log.LayerTransport, log.CategoryMessage)
	raw.Frame = &log.FrameEvent{Size: len(data), Data: data}
	if len(data) > MaxLogFrameDataSize {
		raw.Frame.Data = data[:MaxLogFrameDataSize]
		raw.Frame.Truncated = true
	}
	c.logger.Log(raw)

	if f == nil {
		return
	}
	cat := log.CategoryMessage
	if f.Type.Base().IsControl() {
		cat = log.CategoryControl
	}
	msg := c.event(dir, log.LayerWire, cat)
	msg.Message = log.NewMessageEvent(f)
	c.logger.Log(msg)
}

func (c *FrameConn) logError(context string, err error) {
	if c.logger == nil {
		return
	}
	e := c.event(log.DirectionIn, log.LayerWire, log.CategoryError)
	e.Error = log.NewErrorEvent(log.LayerWire, context, err)
	c.logger.Log(e)
}
