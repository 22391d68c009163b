package router

import (
	"errors"
	"sync"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Address range handed out to sessions and objects. 0 addresses the
// router and 0xffff is the announcement group.
const (
	FirstAddr wire.Addr = 0x0001
	LastAddr  wire.Addr = 0xfffe
)

// ErrAddressSpaceExhausted is returned when every address is taken.
var ErrAddressSpaceExhausted = errors.New("router: address space exhausted")

// allocator hands out addresses. Freed addresses are reused only after
// the never-used ones ran out, oldest first, so a stale address reaches a
// new owner as late as possible.
type allocator struct {
	mu    sync.Mutex
	next  wire.Addr
	used  map[wire.Addr]struct{}
	freed []wire.Addr
}

func newAllocator() *allocator {
	return &allocator{next: FirstAddr, used: make(map[wire.Addr]struct{})}
}

// Allocate returns a free address.
func (a *allocator) Allocate() (wire.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for a.next != 0 && a.next <= LastAddr {
		addr := a.next
		a.next++
		if _, taken := a.used[addr]; !taken {
			a.used[addr] = struct{}{}
			return addr, nil
		}
	}
	for len(a.freed) > 0 {
		addr := a.freed[0]
		a.freed = a.freed[1:]
		if _, taken := a.used[addr]; !taken {
			a.used[addr] = struct{}{}
			return addr, nil
		}
	}
	return wire.EmptyAddr, ErrAddressSpaceExhausted
}

// Reserve marks addr as used, for objects restored from a snapshot.
func (a *allocator) Reserve(addr wire.Addr) bool {
	if addr < FirstAddr || addr > LastAddr {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.used[addr]; taken {
		return false
	}
	a.used[addr] = struct{}{}
	return true
}

// Release returns addr to the pool.
func (a *allocator) Release(addr wire.Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.used[addr]; !ok {
		return
	}
	delete(a.used, addr)
	a.freed = append(a.freed, addr)
}

// InUse returns the number of allocated addresses.
func (a *allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used)
}
