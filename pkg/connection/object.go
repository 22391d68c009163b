package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

// ErrObjectDestroyed is returned by operations on a destroyed object.
var ErrObjectDestroyed = errors.New("object destroyed")

// IndicationFunc receives broadcasts for a subscribed object.
type IndicationFunc func(*interaction.Indication)

// Object is the local proxy of a remote object.
type Object struct {
	conn  *Connection
	addr  wire.Addr
	bcast wire.Addr
	typ   wire.UniqueID
	store *model.PropertyStore

	mu         sync.Mutex
	callbacks  []IndicationFunc
	subscribed bool
	destroyed  bool
}

func newObject(c *Connection, addr, bcast wire.Addr, typ wire.UniqueID, props wire.PropArray) *Object {
	return &Object{
		conn:  c,
		addr:  addr,
		bcast: bcast,
		typ:   typ,
		store: model.NewPropertyStore(props),
	}
}

// Addr returns the object address.
func (o *Object) Addr() wire.Addr { return o.addr }

// BroadcastAddr returns the group subscribers join.
func (o *Object) BroadcastAddr() wire.Addr { return o.bcast }

// Type returns the object type.
func (o *Object) Type() wire.UniqueID { return o.typ }

// UUID returns the router-assigned object id, if known.
func (o *Object) UUID() wire.UniqueID {
	p, _ := o.store.Get(wire.TagObjectUUID)
	id, _ := p.AsUniqueID()
	return id
}

// Destroyed reports whether a destroyed broadcast arrived for the object.
func (o *Object) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

func (o *Object) frame(t wire.MessageType, payload wire.PropArray) *wire.Frame {
	return wire.NewFrame(t, o.conn.Addr(), o.addr, payload)
}

func (o *Object) check() error {
	if o.Destroyed() {
		return ErrObjectDestroyed
	}
	return nil
}

// GetProperties returns the values of tags; no tags means all. A
// subscribed object answers from its cache when it holds every tag.
// Missing properties come back as error properties together with
// wire.StatusPartialSuccess.
func (o *Object) GetProperties(ctx context.Context, tags ...wire.Tag) (wire.PropArray, error) {
	if err := o.check(); err != nil {
		return wire.PropArray{}, err
	}
	if len(tags) > 0 && o.store.Covers(tags) {
		return o.store.Select(tags), nil
	}

	var req wire.PropArray
	for _, t := range tags {
		req.Set(wire.Zero(t))
	}
	conf, err := o.conn.do(ctx, o.frame(wire.MsgGetProperties, req))
	if err != nil {
		return wire.PropArray{}, err
	}
	if conf.Status.IsSuccess() || conf.Status == wire.StatusPartialSuccess {
		o.store.Apply(conf.Payload)
	}
	return conf.Payload, conf.Err()
}

// GetProperty returns one property value.
func (o *Object) GetProperty(ctx context.Context, tag wire.Tag) (wire.Property, error) {
	props, err := o.GetProperties(ctx, tag)
	if err != nil && !errors.Is(err, wire.StatusPartialSuccess) {
		return wire.NotFound, err
	}
	p := props.Get(tag)
	if p.IsError() {
		return p, p.Err()
	}
	return p, nil
}

// SetProperties writes props in one request and applies the per-property
// results. It returns nil, wire.StatusPartialSuccess or the failure.
func (o *Object) SetProperties(ctx context.Context, props wire.PropArray) error {
	if err := o.check(); err != nil {
		return err
	}
	if props.IsEmpty() {
		return wire.StatusNoChanges
	}
	conf, err := o.conn.do(ctx, o.frame(wire.MsgSetProperties, props))
	if err != nil {
		return err
	}
	return o.applyConfirmation(props, conf)
}

func (o *Object) applyConfirmation(sent wire.PropArray, conf *interaction.Confirmation) error {
	if !conf.Status.IsSuccess() && conf.Status != wire.StatusPartialSuccess {
		return conf.Status
	}
	return o.store.ApplyResults(sent, conf.Payload)
}

// SetProperty writes one property. Inside BeginUpdate it only stages the
// value.
func (o *Object) SetProperty(ctx context.Context, p wire.Property) error {
	if o.store.Stage(p) {
		return nil
	}
	return o.SetProperties(ctx, wire.NewPropArray(p))
}

// BeginUpdate starts staging SetProperty calls. Calling it again before
// CommitUpdate extends the same staged set.
func (o *Object) BeginUpdate() { o.store.BeginUpdate() }

// PendingProperty returns a staged value.
func (o *Object) PendingProperty(tag wire.Tag) (wire.Property, bool) {
	return o.store.PendingProperty(tag)
}

// PendingProperties returns all staged values.
func (o *Object) PendingProperties() wire.PropArray { return o.store.Pending() }

// CommitUpdate sends the staged values as one setProperties request and
// waits for the result. With nothing staged it returns
// wire.StatusNoChanges without sending anything.
func (o *Object) CommitUpdate(ctx context.Context) error {
	pending, ok := o.store.TakePending()
	if !ok {
		return wire.StatusNoChanges
	}
	return o.SetProperties(ctx, pending)
}

// CancelUpdate ends staging and drops the staged values without sending
// them.
func (o *Object) CancelUpdate() { o.store.Discard() }

// CommitUpdateAsync sends the staged values without waiting. done, if not
// nil, runs on the reader goroutine with the outcome.
func (o *Object) CommitUpdateAsync(done func(error)) error {
	pending, ok := o.store.TakePending()
	if !ok {
		return wire.StatusNoChanges
	}
	if err := o.check(); err != nil {
		return err
	}
	return o.conn.req.Go(o.frame(wire.MsgSetProperties, pending), func(conf *interaction.Confirmation) {
		err := o.applyConfirmation(pending, conf)
		if done != nil {
			done(err)
		}
	})
}

// Invoke sends a custom message and waits for the answer.
func (o *Object) Invoke(ctx context.Context, name string, params wire.PropArray) (wire.PropArray, error) {
	if err := o.check(); err != nil {
		return wire.PropArray{}, err
	}
	conf, err := o.conn.do(ctx, o.frame(wire.MsgCustom, customPayload(name, params)))
	if err != nil {
		return wire.PropArray{}, err
	}
	return conf.Payload, conf.Err()
}

// InvokeAsync sends a custom message and returns at once. cb runs on the
// reader goroutine with the confirmation, or a synthesized one on timeout.
func (o *Object) InvokeAsync(name string, params wire.PropArray, cb func(*interaction.Confirmation)) error {
	if err := o.check(); err != nil {
		return err
	}
	return o.conn.req.Go(o.frame(wire.MsgCustom, customPayload(name, params)), cb)
}

// Broadcast sends a custom message to every subscriber of the object.
func (o *Object) Broadcast(name string, params wire.PropArray) error {
	f := wire.NewFrame(wire.MsgCustom, o.conn.Addr(), o.bcast, customPayload(name, params))
	return o.conn.req.Post(f)
}

func customPayload(name string, params wire.PropArray) wire.PropArray {
	out := params.Clone()
	out.Set(wire.NewString(wire.TagMessageName, name))
	return out
}

// CreateProperties adds properties to the object.
func (o *Object) CreateProperties(ctx context.Context, props wire.PropArray) error {
	conf, err := o.conn.do(ctx, o.frame(wire.MsgCreateProperty, props))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	o.store.Apply(props)
	return nil
}

// DeleteProperty removes a property from the object.
func (o *Object) DeleteProperty(ctx context.Context, tag wire.Tag) error {
	conf, err := o.conn.do(ctx, o.frame(wire.MsgDeleteProperty, wire.NewPropArray(wire.Zero(tag))))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	o.store.Remove(tag)
	return nil
}

// Subscribe registers cb for the object's broadcasts and joins its group
// on the first call. The cache is seeded with all properties and kept up
// to date from changed broadcasts.
func (o *Object) Subscribe(ctx context.Context, cb IndicationFunc) error {
	if err := o.check(); err != nil {
		return err
	}
	o.mu.Lock()
	o.callbacks = append(o.callbacks, cb)
	joined := o.subscribed
	o.subscribed = true
	o.mu.Unlock()
	if joined {
		return nil
	}

	if err := o.conn.joinGroup(ctx, o.bcast); err != nil {
		o.mu.Lock()
		o.subscribed = false
		o.callbacks = nil
		o.mu.Unlock()
		return err
	}
	if _, err := o.GetProperties(ctx); err != nil && !errors.Is(err, wire.StatusPartialSuccess) {
		return err
	}
	o.store.SetFresh(true)
	return nil
}

// Unsubscribe leaves the object's group and drops every callback.
func (o *Object) Unsubscribe(ctx context.Context) error {
	o.mu.Lock()
	joined := o.subscribed
	o.subscribed = false
	o.callbacks = nil
	o.mu.Unlock()
	o.store.SetFresh(false)
	if !joined {
		return nil
	}
	return o.conn.leaveGroup(ctx, o.bcast)
}

// Subscribed reports whether the object is subscribed.
func (o *Object) Subscribed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subscribed
}

// Destroy asks the router to destroy the object.
func (o *Object) Destroy(ctx context.Context) error {
	return o.conn.DestroyObject(ctx, o.addr)
}

// deliver runs on the reader goroutine.
func (o *Object) deliver(ind *interaction.Indication) {
	switch ind.Message {
	case wire.MsgChanged, wire.MsgPropertyCreated:
		if ind.Source == o.addr {
			o.store.Apply(ind.Payload)
		}
	case wire.MsgDestroyed:
		if ind.Source == o.addr {
			o.mu.Lock()
			seen := o.destroyed
			o.destroyed = true
			o.mu.Unlock()
			if seen {
				return
			}
			o.store.SetFresh(false)
			o.conn.forget(o.addr)
		}
	}

	o.mu.Lock()
	cbs := o.callbacks
	o.mu.Unlock()
	for _, cb := range cbs {
		cb(ind)
	}
}

// invalidate marks the cache stale after the wire dropped.
func (o *Object) invalidate() {
	o.mu.Lock()
	o.subscribed = false
	o.mu.Unlock()
	o.store.SetFresh(false)
	o.store.Discard()
}
