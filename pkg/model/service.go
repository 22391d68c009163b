package model

import (
	"context"
	"errors"
	"sync"

	"github.com/coldwave/flake-go/pkg/wire"
)

// ErrNotAttached is returned by service operations that need the hosting
// connection before the object has been registered.
var ErrNotAttached = errors.New("model: service not attached")

// Host is the connection-side handle of a registered service object.
type Host interface {
	// Addr is the object address assigned by the router.
	Addr() wire.Addr

	// BroadcastAddr is the group subscribers of the object join.
	BroadcastAddr() wire.Addr

	// Publish pushes properties the service changed itself. The router
	// stores them and notifies subscribers.
	Publish(ctx context.Context, props wire.PropArray) error

	// Broadcast sends a named message to all subscribers of the object.
	Broadcast(name string, props wire.PropArray) error
}

// Service is the local implementation behind one object. A Connection
// calls it from its indication workers, so implementations must be safe
// for concurrent use.
type Service interface {
	// Type is the object type announced on registration.
	Type() wire.UniqueID

	// DefaultPropset is the initial property set sent with createObject.
	DefaultPropset() wire.PropArray

	// Attach is called once the router has created the object.
	Attach(h Host)

	// SetPropertyRequested decides on one property of a setProperties
	// request. tx is the whole request; internal is true for changes the
	// service makes itself. The handler may rewrite *p to the value
	// actually stored.
	SetPropertyRequested(p *wire.Property, tx wire.PropArray, internal bool) wire.Status

	// GetPropertyRequested returns the current value of tag.
	GetPropertyRequested(tag wire.Tag) (wire.Property, wire.Status)

	// HandleMessage answers a custom message.
	HandleMessage(name string, in wire.PropArray) (wire.PropArray, wire.Status)
}

// Deleter is implemented by services that want to veto or observe the
// deletion of their object.
type Deleter interface {
	ObjectDeleted() wire.Status
}

// PropertyHandler handles requested writes of one property.
type PropertyHandler func(p *wire.Property, tx wire.PropArray, internal bool) wire.Status

// MessageHandler handles one custom message and fills out.
type MessageHandler func(in wire.PropArray, out *wire.PropArray) wire.Status

// BaseService implements Service on a PropertyStore with per-property and
// per-message handlers. Embed it and register handlers with On and
// OnMessage.
type BaseService struct {
	typ   wire.UniqueID
	store *PropertyStore

	mu       sync.RWMutex
	host     Host
	props    map[uint16]PropertyHandler
	messages map[string]MessageHandler
	onInit   []func()
}

// NewBaseService creates a service of type typ with the given initial
// properties.
func NewBaseService(typ wire.UniqueID, defaults wire.PropArray) *BaseService {
	return &BaseService{
		typ:      typ,
		store:    NewPropertyStore(defaults),
		props:    make(map[uint16]PropertyHandler),
		messages: make(map[string]MessageHandler),
	}
}

// Type returns the object type.
func (s *BaseService) Type() wire.UniqueID { return s.typ }

// DefaultPropset returns the current properties.
func (s *BaseService) DefaultPropset() wire.PropArray { return s.store.Live() }

// Attach binds the service to its host and runs OnInitialized hooks.
func (s *BaseService) Attach(h Host) {
	s.mu.Lock()
	s.host = h
	hooks := s.onInit
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// OnInitialized registers fn to run when the object has been created.
func (s *BaseService) OnInitialized(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInit = append(s.onInit, fn)
}

// IsInitialized reports whether Attach has been called.
func (s *BaseService) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host != nil
}

// Addr returns the object address, or wire.EmptyAddr before Attach.
func (s *BaseService) Addr() wire.Addr {
	if h := s.attached(); h != nil {
		return h.Addr()
	}
	return wire.EmptyAddr
}

func (s *BaseService) attached() Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// On registers h for writes of tag's property. A later call replaces it.
func (s *BaseService) On(tag wire.Tag, h PropertyHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[wire.NormalizeTag(uint32(tag)).ID()] = h
}

// OnMessage registers h for the custom message name.
func (s *BaseService) OnMessage(name string, h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[name] = h
}

// SetPropertyRequested runs the handler registered for p's id and stores
// the value if it succeeds. Read-only properties are only writable
// internally; properties without handler are accepted as is.
func (s *BaseService) SetPropertyRequested(p *wire.Property, tx wire.PropArray, internal bool) wire.Status {
	if !internal {
		if cur, ok := s.store.Get(p.Tag); (ok && cur.Tag.IsReadOnly()) || p.Tag.IsReadOnly() {
			return wire.StatusReadOnly
		}
	}

	s.mu.RLock()
	h := s.props[p.Tag.ID()]
	s.mu.RUnlock()

	status := wire.StatusOK
	if h != nil {
		status = h(p, tx, internal)
	}
	if status == wire.StatusOK {
		s.store.Set(*p)
	}
	return status
}

// GetPropertyRequested returns the stored value of tag.
func (s *BaseService) GetPropertyRequested(tag wire.Tag) (wire.Property, wire.Status) {
	if p, ok := s.store.Get(tag); ok {
		return p, wire.StatusOK
	}
	return wire.NewError(tag, wire.StatusNotFound), wire.StatusNotFound
}

// HandleMessage dispatches to the handler registered for name.
func (s *BaseService) HandleMessage(name string, in wire.PropArray) (wire.PropArray, wire.Status) {
	s.mu.RLock()
	h := s.messages[name]
	s.mu.RUnlock()
	if h == nil {
		return wire.PropArray{}, wire.StatusNotImpl
	}
	var out wire.PropArray
	status := h(in, &out)
	return out, status
}

// Get returns the stored value of tag or the NotFound sentinel.
func (s *BaseService) Get(tag wire.Tag) wire.Property {
	p, _ := s.GetPropertyRequested(tag)
	return p
}

// Set changes one property from inside the service. While an update is
// open the value is staged; otherwise it is stored and published.
func (s *BaseService) Set(ctx context.Context, p wire.Property) error {
	if s.store.Stage(p) {
		return nil
	}
	return s.SetProperties(ctx, wire.NewPropArray(p))
}

// SetProperties stores props through the property handlers and publishes
// the accepted values. It returns wire.StatusPartialSuccess when a handler
// refused some of them.
func (s *BaseService) SetProperties(ctx context.Context, props wire.PropArray) error {
	var accepted wire.PropArray
	var refused wire.Status
	for _, p := range props.Props() {
		if st := s.SetPropertyRequested(&p, props, true); st != wire.StatusOK {
			refused = st
			continue
		}
		accepted.Set(p)
	}
	if accepted.IsEmpty() {
		if refused != wire.StatusOK {
			return refused
		}
		return wire.StatusNoChanges
	}

	if h := s.attached(); h != nil {
		if err := h.Publish(ctx, accepted); err != nil {
			return err
		}
	}
	if refused != wire.StatusOK {
		return wire.StatusPartialSuccess
	}
	return nil
}

// BeginUpdate starts staging Set calls.
func (s *BaseService) BeginUpdate() { s.store.BeginUpdate() }

// CommitUpdate stores and publishes everything staged since BeginUpdate.
// It returns wire.StatusNoChanges when nothing was staged.
func (s *BaseService) CommitUpdate(ctx context.Context) error {
	pending, ok := s.store.TakePending()
	if !ok {
		return wire.StatusNoChanges
	}
	return s.SetProperties(ctx, pending)
}

// Broadcast sends a named message to the subscribers of the object.
func (s *BaseService) Broadcast(name string, props wire.PropArray) error {
	h := s.attached()
	if h == nil {
		return ErrNotAttached
	}
	return h.Broadcast(name, props)
}

// Store exposes the property tables.
func (s *BaseService) Store() *PropertyStore { return s.store }

var _ Service = (*BaseService)(nil)
