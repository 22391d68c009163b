package connection

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

// CreateObject asks the router to create and host an object of type typ
// with the initial properties props.
func (c *Connection) CreateObject(ctx context.Context, typ wire.UniqueID, props wire.PropArray) (*Object, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	req := props.Clone()
	req.Set(wire.NewUUID(wire.TagObjectType, typ))

	conf, err := c.do(ctx, wire.NewFrame(wire.MsgCreateObject, 0, wire.RouterAddr, req))
	if err != nil {
		return nil, err
	}
	if err := conf.Err(); err != nil {
		return nil, err
	}
	addr, bcast, err := objectAddrs(conf.Payload)
	if err != nil {
		return nil, fmt.Errorf("createObject: %w", err)
	}

	initial := props.Clone()
	initial.Merge(conf.Payload)
	return c.track(addr, bcast, typ, initial), nil
}

func objectAddrs(props wire.PropArray) (addr, bcast wire.Addr, err error) {
	addr, ok := props.Get(wire.TagObjectAddr).AsAddr()
	if !ok || addr == wire.EmptyAddr {
		return 0, 0, ErrBadConfirmation
	}
	bcast, ok = props.Get(wire.TagBroadcastAddr).AsAddr()
	if !ok {
		return 0, 0, ErrBadConfirmation
	}
	return addr, bcast, nil
}

// track returns the proxy for addr, creating it when needed.
func (c *Connection) track(addr, bcast wire.Addr, typ wire.UniqueID, props wire.PropArray) *Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.objects[addr]; ok {
		return o
	}
	o := newObject(c, addr, bcast, typ, props)
	c.objects[addr] = o
	c.fc.LogState(log.StateEntityObject, "", "OPEN", addr.String())
	return o
}

func (c *Connection) forget(addr wire.Addr) {
	c.mu.Lock()
	_, ok := c.objects[addr]
	delete(c.objects, addr)
	delete(c.services, addr)
	c.mu.Unlock()
	if ok {
		c.fc.LogState(log.StateEntityObject, "OPEN", "DESTROYED", addr.String())
	}
}

// Object returns the proxy already open for addr.
func (c *Connection) Object(addr wire.Addr) (*Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.objects[addr]
	return o, ok
}

// OpenObject returns a proxy for the existing object at addr, reading its
// type and broadcast address from the object.
func (c *Connection) OpenObject(ctx context.Context, addr wire.Addr) (*Object, error) {
	if o, ok := c.Object(addr); ok {
		return o, nil
	}
	req := wire.NewPropArray(wire.Zero(wire.TagObjectType), wire.Zero(wire.TagBroadcastAddr))
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgGetProperties, 0, addr, req))
	if err != nil {
		return nil, err
	}
	if err := conf.Err(); err != nil {
		return nil, err
	}
	bcast, ok := conf.Payload.Get(wire.TagBroadcastAddr).AsAddr()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", addr, ErrBadConfirmation)
	}
	typ, _ := conf.Payload.Get(wire.TagObjectType).AsUniqueID()
	return c.track(addr, bcast, typ, conf.Payload), nil
}

// QueryObjects lists the objects known to the router. A nil typ lists all
// types. columns selects the properties reported per object; without
// columns the router reports address, broadcast address and type.
func (c *Connection) QueryObjects(ctx context.Context, typ wire.UniqueID, columns ...wire.Tag) (*model.Table, error) {
	var req wire.PropArray
	if !typ.IsNil() {
		req.Set(wire.NewUUID(wire.TagObjectType, typ))
	}
	if len(columns) > 0 {
		ids := make([]uint16, len(columns))
		for i, t := range columns {
			ids[i] = t.ID()
		}
		req.Set(wire.NewUint16Array(wire.TagColumnSet, ids))
	}

	conf, err := c.do(ctx, wire.NewFrame(wire.MsgQueryObjects, 0, wire.RouterAddr, req))
	if err != nil {
		return nil, err
	}
	if err := conf.Err(); err != nil {
		return nil, err
	}
	return model.TableFromProps(conf.Payload)
}

// DestroyObject asks the router to remove the object at addr.
func (c *Connection) DestroyObject(ctx context.Context, addr wire.Addr) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgDestroyObject, 0, addr, wire.PropArray{}))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	c.forget(addr)
	return nil
}

// DeleteObject asks the host of the object at addr to delete it. The host
// may refuse.
func (c *Connection) DeleteObject(ctx context.Context, addr wire.Addr) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgDeleteObject, 0, addr, wire.PropArray{}))
	if err != nil {
		return err
	}
	return conf.Err()
}

// JoinGroup joins the broadcast group addr.
func (c *Connection) JoinGroup(ctx context.Context, addr wire.Addr) error {
	return c.joinGroup(ctx, addr)
}

// LeaveGroup leaves the broadcast group addr.
func (c *Connection) LeaveGroup(ctx context.Context, addr wire.Addr) error {
	return c.leaveGroup(ctx, addr)
}

func (c *Connection) joinGroup(ctx context.Context, addr wire.Addr) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgJoinGroup, 0, addr, wire.PropArray{}))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	c.fc.LogState(log.StateEntityGroup, "", "JOINED", addr.String())
	return nil
}

func (c *Connection) leaveGroup(ctx context.Context, addr wire.Addr) error {
	conf, err := c.do(ctx, wire.NewFrame(wire.MsgLeaveGroup, 0, addr, wire.PropArray{}))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	c.fc.LogState(log.StateEntityGroup, "JOINED", "LEFT", addr.String())
	return nil
}

// WatchObjects joins the announcement group and calls fn for every
// objectCreated and destroyed broadcast. fn runs on the reader goroutine.
func (c *Connection) WatchObjects(ctx context.Context, fn func(*interaction.Indication)) error {
	c.mu.Lock()
	first := len(c.watchers) == 0
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
	if !first {
		return nil
	}
	if err := c.joinGroup(ctx, wire.AnnounceAddr); err != nil {
		c.mu.Lock()
		c.watchers = nil
		c.mu.Unlock()
		return err
	}
	return nil
}

// RegisterService creates an object hosted by this connection and backed
// by svc. Requests for the object are dispatched to svc from then on.
// With requiresAuth set, the router only lets authenticated peers reach
// the object.
func (c *Connection) RegisterService(ctx context.Context, svc model.Service, requiresAuth bool) (*Object, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	props := svc.DefaultPropset().Clone()
	props.Set(wire.NewUUID(wire.TagObjectType, svc.Type()))
	if requiresAuth {
		props.Set(wire.NewBool(wire.TagRequiresAuth, true))
	}

	// The host is installed on the reader goroutine before any request for
	// the new address can be read.
	type outcome struct {
		host *serviceHost
		err  error
	}
	var abandoned atomic.Bool
	done := make(chan outcome, 1)
	f := wire.NewFrame(wire.MsgCreateObject, c.Addr(), c.Addr(), props)
	err := c.req.Go(f, func(conf *interaction.Confirmation) {
		if err := conf.Err(); err != nil {
			done <- outcome{err: err}
			return
		}
		addr, bcast, err := objectAddrs(conf.Payload)
		if err != nil {
			done <- outcome{err: fmt.Errorf("createObject: %w", err)}
			return
		}
		if abandoned.Load() {
			done <- outcome{err: ctx.Err()}
			return
		}
		obj := c.track(addr, bcast, svc.Type(), props)
		h := newServiceHost(c, obj, svc)
		c.mu.Lock()
		c.services[addr] = h
		c.mu.Unlock()
		done <- outcome{host: h}
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		svc.Attach(out.host)
		c.logger.Debug("service registered", "object", out.host.Addr(), "type", svc.Type())
		return out.host.obj, nil
	case <-ctx.Done():
		abandoned.Store(true)
		return nil, ctx.Err()
	}
}
