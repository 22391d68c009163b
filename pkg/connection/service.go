package connection

import (
	"context"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

// serviceHost connects a model.Service to the object it backs.
type serviceHost struct {
	conn *Connection
	obj  *Object
	svc  model.Service
}

func newServiceHost(c *Connection, obj *Object, svc model.Service) *serviceHost {
	return &serviceHost{conn: c, obj: obj, svc: svc}
}

func (h *serviceHost) Addr() wire.Addr          { return h.obj.addr }
func (h *serviceHost) BroadcastAddr() wire.Addr { return h.obj.bcast }

// Publish sends the service's own changes to the router, which stores
// them and tells subscribers.
func (h *serviceHost) Publish(ctx context.Context, props wire.PropArray) error {
	conf, err := h.conn.do(ctx, wire.NewFrame(wire.MsgSetProperties, 0, h.obj.addr, props))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	h.obj.store.Apply(props)
	return nil
}

// Broadcast sends a custom message to the object's subscribers.
func (h *serviceHost) Broadcast(name string, props wire.PropArray) error {
	return h.obj.Broadcast(name, props)
}

// handle runs on an indication worker and always acknowledges ind.
func (h *serviceHost) handle(ind *interaction.Indication) {
	var (
		out    wire.PropArray
		status wire.Status
	)
	switch ind.Message {
	case wire.MsgSetPropertiesReq:
		out, status = h.setProperties(ind.Payload)
	case wire.MsgGetPropertiesReq:
		out, status = h.getProperties(ind.Payload)
	case wire.MsgCustomMsgReceived:
		params := ind.Payload.Clone()
		params.Remove(wire.TagMessageName)
		out, status = h.svc.HandleMessage(ind.Name(), params)
	case wire.MsgObjectDeleted:
		status = wire.StatusOK
		if d, ok := h.svc.(model.Deleter); ok {
			status = d.ObjectDeleted()
		}
	case wire.MsgPropertyDeleted:
		for _, t := range ind.Payload.Tags() {
			h.obj.store.Remove(t)
		}
		status = wire.StatusOK
	default:
		status = wire.StatusUnsupported
	}

	if err := ind.Ack(status, out); err != nil {
		h.conn.logger.Debug("ack failed", "msg_type", ind.Message, "object", ind.Destination, "error", err)
	}
}

// setProperties asks the service about every property and reports the
// refused ones as error properties. The router applies the accepted
// values and notifies subscribers.
func (h *serviceHost) setProperties(req wire.PropArray) (wire.PropArray, wire.Status) {
	var out wire.PropArray
	accepted := 0
	for _, p := range req.Props() {
		st := h.svc.SetPropertyRequested(&p, req, false)
		if st != wire.StatusOK {
			out.Set(wire.NewError(p.Tag, st))
			continue
		}
		out.Set(p)
		accepted++
	}
	switch {
	case accepted == req.Len():
		return out, wire.StatusOK
	case accepted == 0 && req.Len() == 1:
		return out, out.At(0).Err()
	default:
		return out, wire.StatusPartialSuccess
	}
}

func (h *serviceHost) getProperties(req wire.PropArray) (wire.PropArray, wire.Status) {
	var out wire.PropArray
	tags := req.Tags()
	if len(tags) == 0 {
		tags = h.svc.DefaultPropset().Tags()
	}
	partial := false
	for _, t := range tags {
		p, st := h.svc.GetPropertyRequested(t)
		if st != wire.StatusOK {
			p = wire.NewError(t, st)
			partial = true
		}
		out.Set(p)
	}
	if partial {
		return out, wire.StatusPartialSuccess
	}
	return out, wire.StatusOK
}

var _ model.Host = (*serviceHost)(nil)
