// Package container implements heap containers whose append operation
// accepts either a constructed value or a deferred one.
package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/you-not-fish/emplace/internal/inplace"
	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/types"
)

// DstArray is an array of heap blocks, one per element. Elements may be
// unsized: each block is exactly as large as its value.
type DstArray struct {
	elem  types.Type    // nil accepts any element type
	alloc mem.Allocator // nil uses the machine's allocator
	items []inplace.Object
	fails int
}

// New returns an empty array of elem values whose blocks come from
// alloc. alloc must allocate from the memory of the machine that
// appends to the array.
func New(elem types.Type, alloc mem.Allocator) *DstArray {
	return &DstArray{elem: elem, alloc: alloc}
}

// Len returns the number of elements.
func (a *DstArray) Len() int { return len(a.items) }

// At returns element i.
func (a *DstArray) At(i int) inplace.Object { return a.items[i] }

// Fails returns the number of appends refused for lack of memory.
func (a *DstArray) Fails() int { return a.fails }

func (a *DstArray) allocator(mc *inplace.Machine) mem.Allocator {
	if a.alloc != nil {
		return a.alloc
	}
	return mc.Allocator()
}

// Append moves d into a new block at the end of a. A deferred value is
// materialized directly into the block; a constructed one is copied
// once. If the block cannot be allocated or cannot hold the value, d is
// dropped and Append returns false.
func Append[D inplace.Dual](mc *inplace.Machine, a *DstArray, d D) (bool, error) {
	if a.elem != nil && !types.Identical(d.Type(), a.elem) {
		return false, errors.Join(fmt.Errorf("cannot append %s to array of %s", d.Type(), a.elem), d.Drop())
	}
	l := inplace.LayoutOfDual(mc.Sizes(), d)
	alloc := a.allocator(mc)
	p, err := alloc.Allocate(l)
	if err != nil {
		derr := d.Drop()
		if errors.Is(err, mem.ErrOutOfMemory) {
			a.fails++
			return false, derr
		}
		return false, errors.Join(err, derr)
	}
	if err := d.MaterializeInto(p); err != nil {
		alloc.Free(p, l)
		if errors.Is(err, inplace.ErrMisaligned) || errors.Is(err, inplace.ErrOutOfBounds) {
			return false, errors.Join(err, d.Drop())
		}
		return false, err
	}
	a.items = append(a.items, inplace.Object{Addr: p, Type: d.Type(), Len: d.Len()})
	return true, nil
}

// PushOp returns a dual operation that appends its argument to a and
// returns whether it was stored.
func (a *DstArray) PushOp(name string) *inplace.DualOp {
	result := func(ok bool, err error) (inplace.Value, error) {
		if err != nil {
			return nil, err
		}
		return inplace.BoolWord(ok), nil
	}
	op := inplace.NewDualOp(name, a.elem, types.Typ[types.Bool],
		func(mc *inplace.Machine, d *inplace.Direct) (inplace.Value, error) {
			return result(Append(mc, a, d))
		},
		func(mc *inplace.Machine, dv *inplace.DeferredValue) (inplace.Value, error) {
			return result(Append(mc, a, dv))
		})
	op.Effects = true
	return op
}

// Release drops every element in reverse order and frees its block.
func (a *DstArray) Release(mc *inplace.Machine) error {
	alloc := a.allocator(mc)
	var errs []error
	for i := len(a.items) - 1; i >= 0; i-- {
		obj := a.items[i]
		errs = append(errs, mc.DropObject(obj))
		alloc.Free(obj.Addr, mc.Sizes().LayoutUnsized(obj.Type, obj.Len))
	}
	a.items = nil
	return errors.Join(errs...)
}

// Format renders the elements, one per line.
func (a *DstArray) Format(mc *inplace.Machine) string {
	var b strings.Builder
	for i, obj := range a.items {
		fmt.Fprintf(&b, "[%d] %s\n", i, mc.Format(obj.Type, obj))
	}
	return b.String()
}
