package router

import (
	"fmt"
	"time"

	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/persistence"
	"github.com/coldwave/flake-go/pkg/wire"
)

// save writes every router-hosted object to the snapshot file.
// Service-hosted objects live only as long as their host and are left
// out.
func (r *Router) save() error {
	state := &persistence.RouterState{
		Version: persistence.StateVersion,
		SavedAt: time.Now(),
	}
	for _, o := range r.objects.all() {
		if !o.routerHosted() {
			continue
		}
		rec, err := persistence.NewObjectRecord(o.addr, o.bcast, o.typ, o.id, o.created, o.props.Live())
		if err != nil {
			return err
		}
		state.Objects = append(state.Objects, rec)
	}
	if err := r.snapshot.Save(state); err != nil {
		return err
	}
	r.logger.Info("snapshot saved", "path", r.snapshot.Path(), "objects", len(state.Objects))
	return nil
}

// restore registers the objects of the snapshot file. Records whose
// addresses are already taken are skipped.
func (r *Router) restore() error {
	state, err := r.snapshot.Load()
	if err != nil {
		return fmt.Errorf("restore %s: %w", r.snapshot.Path(), err)
	}
	if state == nil {
		return nil
	}

	for _, rec := range state.Objects {
		o, err := restoredObject(rec)
		if err != nil {
			return fmt.Errorf("restore %s: %w", r.snapshot.Path(), err)
		}
		if !r.alloc.Reserve(o.addr) {
			r.logger.Warn("skipping restored object", "object", o.addr, "reason", "address taken")
			continue
		}
		if !r.alloc.Reserve(o.bcast) {
			r.alloc.Release(o.addr)
			r.logger.Warn("skipping restored object", "object", o.addr, "reason", "broadcast address taken")
			continue
		}
		r.objects.add(o)
		r.metrics.objects.WithLabelValues(hostLabel(o)).Inc()
		r.changes.Prime(o.addr, o.props.Live())
	}
	r.logger.Info("snapshot restored", "path", r.snapshot.Path(), "objects", len(state.Objects), "saved_at", state.SavedAt)
	return nil
}

func restoredObject(rec persistence.ObjectRecord) (*object, error) {
	typ, err := rec.ObjectType()
	if err != nil {
		return nil, fmt.Errorf("object 0x%04x type: %w", rec.Addr, err)
	}
	id, err := rec.ObjectUUID()
	if err != nil {
		return nil, fmt.Errorf("object 0x%04x uuid: %w", rec.Addr, err)
	}
	props, err := rec.PropArray()
	if err != nil {
		return nil, fmt.Errorf("object 0x%04x properties: %w", rec.Addr, err)
	}
	if id.IsNil() {
		id = wire.NewUniqueID()
	}
	requiresAuth, _ := props.Get(wire.TagRequiresAuth).AsBool()
	return &object{
		addr:         wire.Addr(rec.Addr),
		bcast:        wire.Addr(rec.BroadcastAddr),
		typ:          typ,
		id:           id,
		requiresAuth: requiresAuth,
		created:      rec.CreatedAt,
		props:        model.NewPropertyStore(props),
	}, nil
}
