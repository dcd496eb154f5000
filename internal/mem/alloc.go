package mem

import (
	"fmt"

	"github.com/you-not-fish/emplace/internal/types"
)

// Allocator hands out heap blocks of a Memory.
type Allocator interface {
	// Allocate returns the address of a block with layout l, or
	// ErrOutOfMemory.
	Allocate(l types.Layout) (Addr, error)

	// Free releases a block previously returned by Allocate.
	Free(a Addr, l types.Layout)
}

// Arena is a bump allocator over the heap region of a Memory. Free only
// reclaims the most recent block.
type Arena struct {
	mem   *Memory
	next  Addr
	limit Addr
	live  int
}

// NewArena creates an arena covering the whole heap of m.
func NewArena(m *Memory) *Arena {
	return &Arena{mem: m, next: m.HeapBase(), limit: Addr(m.Size())}
}

// Allocate implements Allocator.
func (a *Arena) Allocate(l types.Layout) (Addr, error) {
	if l.Align <= 0 || l.Align&(l.Align-1) != 0 {
		return Null, fmt.Errorf("invalid alignment %d", l.Align)
	}
	p := Addr(types.AlignUp(int64(a.next), l.Align))
	if int64(p)+l.Size > int64(a.limit) {
		return Null, fmt.Errorf("%w: %d bytes requested, %d available", ErrOutOfMemory, l.Size, int64(a.limit)-int64(a.next))
	}
	a.next = p + Addr(l.Size)
	a.live++
	return p, nil
}

// Free implements Allocator.
func (a *Arena) Free(p Addr, l types.Layout) {
	if p+Addr(l.Size) == a.next {
		a.next = p
	}
	a.live--
}

// Live returns the number of blocks allocated and not freed.
func (a *Arena) Live() int { return a.live }

// Failing wraps an Allocator and fails every allocation after the first
// Budget successful ones. It exists to exercise out-of-memory paths.
type Failing struct {
	Allocator
	Budget int
	Fails  int // number of allocations refused so far
}

// Allocate implements Allocator.
func (f *Failing) Allocate(l types.Layout) (Addr, error) {
	if f.Budget <= 0 {
		f.Fails++
		return Null, ErrOutOfMemory
	}
	f.Budget--
	return f.Allocator.Allocate(l)
}
