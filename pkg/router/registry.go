package router

import (
	"slices"
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

// object is the router's record of one object. A nil host means the
// router hosts it and owns the property table; otherwise props mirrors
// what the hosting session published.
type object struct {
	addr         wire.Addr
	bcast        wire.Addr
	typ          wire.UniqueID
	id           wire.UniqueID
	host         *session
	creator      wire.Addr
	requiresAuth bool
	created      time.Time
	props        *model.PropertyStore
}

func (o *object) routerHosted() bool { return o.host == nil }

// baseProps are the properties every object answers from the registry.
func (o *object) baseProps() wire.PropArray {
	return wire.NewPropArray(
		wire.NewUUID(wire.TagObjectType, o.typ),
		wire.NewUint16(wire.TagObjectAddr, uint16(o.addr)),
		wire.NewUint16(wire.TagBroadcastAddr, uint16(o.bcast)),
		wire.NewUUID(wire.TagObjectUUID, o.id),
		wire.NewDateTime(wire.TagCreationTime, o.created),
	)
}

// row returns the object's properties for queryObjects.
func (o *object) row() wire.PropArray {
	row := o.props.Live()
	row.Merge(o.baseProps())
	return row
}

// lookup returns tag from the registry fields or the property table.
func (o *object) lookup(tag wire.Tag) (wire.Property, bool) {
	if p, ok := o.baseProps().Lookup(tag); ok {
		return p, true
	}
	return o.props.Get(tag)
}

// registry indexes objects by address and broadcast address.
type registry struct {
	mu      sync.RWMutex
	objects map[wire.Addr]*object
	groups  map[wire.Addr]*object
}

func newRegistry() *registry {
	return &registry{
		objects: make(map[wire.Addr]*object),
		groups:  make(map[wire.Addr]*object),
	}
}

func (r *registry) add(o *object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[o.addr] = o
	r.groups[o.bcast] = o
}

func (r *registry) remove(addr wire.Addr) *object {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.objects[addr]
	if o == nil {
		return nil
	}
	delete(r.objects, addr)
	delete(r.groups, o.bcast)
	return o
}

func (r *registry) get(addr wire.Addr) *object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects[addr]
}

// byGroup returns the object whose broadcast address is addr.
func (r *registry) byGroup(addr wire.Addr) *object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[addr]
}

// hostedBy returns the objects hosted by s in address order.
func (r *registry) hostedBy(s *session) []*object {
	return r.filter(func(o *object) bool { return o.host == s })
}

// all returns every object in address order.
func (r *registry) all() []*object {
	return r.filter(func(*object) bool { return true })
}

func (r *registry) filter(keep func(*object) bool) []*object {
	r.mu.RLock()
	var out []*object
	for _, o := range r.objects {
		if keep(o) {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *object) int { return int(a.addr) - int(b.addr) })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// query builds the queryObjects table. A nil typ matches every type.
// Without columns the table has address, broadcast address and type.
func (r *registry) query(typ wire.UniqueID, columns model.ColumnSet) *model.Table {
	if len(columns) == 0 {
		columns = model.ColumnSet{wire.TagObjectAddr, wire.TagBroadcastAddr, wire.TagObjectType}
	}
	var match model.Restriction
	if !typ.IsNil() {
		match = model.Equal(wire.NewUUID(wire.TagObjectType, typ))
	}
	t := model.NewTable(columns)
	for _, o := range r.all() {
		if row := o.row(); match.Match(row) {
			t.AddRow(row)
		}
	}
	return t
}
