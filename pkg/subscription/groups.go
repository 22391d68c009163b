package subscription

import (
	"slices"
	"sync"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Groups tracks group membership. Members are session addresses.
type Groups struct {
	mu      sync.RWMutex
	members map[wire.Addr]map[wire.Addr]struct{}
}

// NewGroups creates an empty membership table.
func NewGroups() *Groups {
	return &Groups{members: make(map[wire.Addr]map[wire.Addr]struct{})}
}

// Join adds member to group. It returns false if it already was one.
func (g *Groups) Join(group, member wire.Addr) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.members[group]
	if m == nil {
		m = make(map[wire.Addr]struct{})
		g.members[group] = m
	}
	if _, ok := m[member]; ok {
		return false
	}
	m[member] = struct{}{}
	return true
}

// Leave removes member from group. It returns false if it was not one.
func (g *Groups) Leave(group, member wire.Addr) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaveLocked(group, member)
}

func (g *Groups) leaveLocked(group, member wire.Addr) bool {
	m := g.members[group]
	if _, ok := m[member]; !ok {
		return false
	}
	delete(m, member)
	if len(m) == 0 {
		delete(g.members, group)
	}
	return true
}

// IsMember reports whether member joined group.
func (g *Groups) IsMember(group, member wire.Addr) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[group][member]
	return ok
}

// Members returns the members of group in address order.
func (g *Groups) Members(group wire.Addr) []wire.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]wire.Addr, 0, len(g.members[group]))
	for a := range g.members[group] {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// LeaveAll removes member from every group and returns the groups it
// left, in address order.
func (g *Groups) LeaveAll(member wire.Addr) []wire.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	var left []wire.Addr
	for group := range g.members {
		if g.leaveLocked(group, member) {
			left = append(left, group)
		}
	}
	slices.Sort(left)
	return left
}

// Drop deletes group and returns its former members.
func (g *Groups) Drop(group wire.Addr) []wire.Addr {
	members := g.Members(group)
	g.mu.Lock()
	delete(g.members, group)
	g.mu.Unlock()
	return members
}

// Count returns the number of non-empty groups.
func (g *Groups) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Clear removes every group.
func (g *Groups) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = make(map[wire.Addr]map[wire.Addr]struct{})
}
