package router

import (
	"github.com/coldwave/flake-go/pkg/wire"
)

// audience returns the sessions a broadcast to group reaches: its
// members and, for an object's group, the object's host. skip is left
// out.
func (r *Router) audience(group, skip wire.Addr) []*session {
	var out []*session
	seen := map[wire.Addr]bool{skip: true}
	add := func(a wire.Addr) {
		if seen[a] {
			return
		}
		seen[a] = true
		if s := r.session(a); s != nil {
			out = append(out, s)
		}
	}
	for _, m := range r.groups.Members(group) {
		add(m)
	}
	if o := r.objects.byGroup(group); o != nil && o.host != nil {
		add(o.host.Addr())
	}
	return out
}

// fanout sends f to the audience of f.Destination and returns how many
// sessions it reached.
func (r *Router) fanout(f *wire.Frame, skip wire.Addr) int {
	targets := r.audience(f.Destination, skip)
	for _, s := range targets {
		s.send(f)
	}
	r.metrics.broadcast(f.Type, len(targets))
	return len(targets)
}

// notify queues a changed broadcast for the properties of o that changed.
func (r *Router) notify(o *object, changed wire.PropArray) {
	r.changes.NotifyChange(o.addr, changed)
}

// emitChanged is the coalescer's output.
func (r *Router) emitChanged(obj wire.Addr, changed wire.PropArray) {
	o := r.objects.get(obj)
	if o == nil {
		return
	}
	r.fanout(wire.NewFrame(wire.MsgChanged, obj, o.bcast, changed), wire.EmptyAddr)
}

// destroy removes o, tells its group and the announcement group, and
// frees both of its addresses. Every session hears about it once.
func (r *Router) destroy(o *object) {
	targets := r.audience(o.bcast, wire.EmptyAddr)
	if r.objects.remove(o.addr) == nil {
		return
	}
	r.changes.Forget(o.addr)
	r.metrics.objects.WithLabelValues(hostLabel(o)).Dec()

	payload := wire.NewPropArray(
		wire.NewUint16(wire.TagObjectAddr, uint16(o.addr)),
		wire.NewUUID(wire.TagObjectType, o.typ),
	)
	told := make(map[wire.Addr]bool, len(targets))
	for _, s := range targets {
		s.send(wire.NewFrame(wire.MsgDestroyed, o.addr, o.bcast, payload))
		told[s.Addr()] = true
	}
	n := len(targets)
	for _, m := range r.groups.Members(wire.AnnounceAddr) {
		if told[m] {
			continue
		}
		if s := r.session(m); s != nil {
			s.send(wire.NewFrame(wire.MsgDestroyed, o.addr, wire.AnnounceAddr, payload))
			n++
		}
	}
	r.metrics.broadcast(wire.MsgDestroyed, n)

	r.groups.Drop(o.bcast)
	r.alloc.Release(o.addr)
	r.alloc.Release(o.bcast)
	r.logger.Debug("object destroyed", "object", o.addr, "type", o.typ)
}
