package model

import (
	"sync"

	"github.com/coldwave/flake-go/pkg/wire"
)

// PropertyStore holds the live and pending property tables of one object.
//
// Writes go through a staged transaction: BeginUpdate opens it, Stage
// records values in the pending table, TakePending hands the pending set to
// the committer and ApplyResults folds the answer into the live table.
// Pending values are never visible through Get.
type PropertyStore struct {
	mu      sync.RWMutex
	live    wire.PropArray
	pending wire.PropArray
	staging bool

	// fresh is set while the live table mirrors the remote object, i.e.
	// while a subscription delivers its changes.
	fresh bool
}

// NewPropertyStore creates a store whose live table starts as a copy of
// initial.
func NewPropertyStore(initial wire.PropArray) *PropertyStore {
	return &PropertyStore{live: initial.Clone()}
}

// Get returns the live value of tag.
func (s *PropertyStore) Get(tag wire.Tag) (wire.Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Lookup(tag)
}

// Live returns a copy of the live table.
func (s *PropertyStore) Live() wire.PropArray {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Clone()
}

// Set writes p to the live table, bypassing staging.
func (s *PropertyStore) Set(p wire.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Set(p)
}

// Apply merges every non-error property of props into the live table and
// returns the properties that changed.
func (s *PropertyStore) Apply(props wire.PropArray) wire.PropArray {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed wire.PropArray
	for _, p := range props.Props() {
		if p.IsError() {
			continue
		}
		if old, ok := s.live.Lookup(p.Tag); ok && old.Equal(p) {
			continue
		}
		s.live.Set(p)
		changed.Set(p)
	}
	return changed
}

// Remove drops tag from both tables.
func (s *PropertyStore) Remove(tag wire.Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Remove(tag)
	return s.live.Remove(tag)
}

// BeginUpdate opens a transaction. Calling it again while staging keeps
// the values staged so far.
func (s *PropertyStore) BeginUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = true
}

// Staging reports whether a transaction is open.
func (s *PropertyStore) Staging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staging
}

// Stage records p in the pending table. It reports false when no
// transaction is open.
func (s *PropertyStore) Stage(p wire.Property) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.staging {
		return false
	}
	s.pending.Set(p)
	return true
}

// PendingProperty returns the staged value of tag.
func (s *PropertyStore) PendingProperty(tag wire.Tag) (wire.Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.Lookup(tag)
}

// Pending returns a copy of the pending table.
func (s *PropertyStore) Pending() wire.PropArray {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.Clone()
}

// TakePending closes the transaction and returns what was staged. ok is
// false when nothing was staged.
func (s *PropertyStore) TakePending() (props wire.PropArray, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props = s.pending
	s.pending = wire.PropArray{}
	s.staging = false
	return props, !props.IsEmpty()
}

// Discard closes the transaction and drops staged values.
func (s *PropertyStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = wire.PropArray{}
	s.staging = false
}

// ApplyResults folds the answer to a committed set into the live table.
// For every sent property the result either carries the accepted value, an
// error property, or nothing (accepted as sent). It returns nil when all
// were accepted, wire.StatusPartialSuccess when some were, and the first
// per-property error when none were.
func (s *PropertyStore) ApplyResults(sent, results wire.PropArray) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, rejected := 0, 0
	var first wire.Status
	for _, p := range sent.Props() {
		r, ok := results.Lookup(p.Tag)
		switch {
		case ok && r.IsError():
			if rejected == 0 {
				first = r.Err()
			}
			rejected++
		case ok:
			s.live.Set(r)
			accepted++
		default:
			s.live.Set(p)
			accepted++
		}
	}

	switch {
	case rejected == 0:
		return nil
	case accepted > 0:
		return wire.StatusPartialSuccess
	default:
		return first
	}
}

// Covers reports whether every tag has a live value and the table is
// fresh.
func (s *PropertyStore) Covers(tags wire.TagArray) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fresh {
		return false
	}
	for _, t := range tags {
		if !s.live.Has(t) {
			return false
		}
	}
	return true
}

// Select returns the live values of tags. Missing tags come back as
// error properties with wire.StatusNotFound.
func (s *PropertyStore) Select(tags wire.TagArray) wire.PropArray {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out wire.PropArray
	for _, t := range tags {
		if p, ok := s.live.Lookup(t); ok {
			out.Set(p)
		} else {
			out.Set(wire.NewError(t, wire.StatusNotFound))
		}
	}
	return out
}

// SetFresh marks whether the live table mirrors the remote object.
func (s *PropertyStore) SetFresh(fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fresh = fresh
}

// Fresh reports the value last passed to SetFresh.
func (s *PropertyStore) Fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fresh
}
