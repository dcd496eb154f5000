package inplace

import (
	"errors"
	"fmt"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/types"
)

// Variant is the form a ?inplace T argument takes at a call site.
type Variant int

const (
	// FormDirect is an already constructed value.
	FormDirect Variant = iota

	// FormDeferred is a deferred value.
	FormDeferred
)

func (v Variant) String() string {
	if v == FormDeferred {
		return "deferred"
	}
	return "direct"
}

// Dual is a ?inplace T argument: either a constructed value or a deferred
// one. Code written against Dual handles both, and a generic function
// constrained by Dual is instantiated once per form.
type Dual interface {
	Variant() Variant
	Type() types.Type
	Len() int64 // element count of the unsized tail
	MaterializeInto(dest mem.Addr) error
	Drop() error
}

// DualOp is a host operation with a ?inplace T parameter. It has one
// implementation per form.
type DualOp struct {
	Name   string
	Elem   types.Type // nil accepts any element type
	Result types.Type // nil for no result

	Effects   bool
	MayUnwind bool

	Direct   func(mc *Machine, d *Direct) (Value, error)
	Deferred func(mc *Machine, dv *DeferredValue) (Value, error)
}

// NewDualOp returns a dual operation whose two forms are instantiations
// of the same generic body.
func NewDualOp(name string, elem, result types.Type,
	direct func(mc *Machine, d *Direct) (Value, error),
	deferred func(mc *Machine, dv *DeferredValue) (Value, error)) *DualOp {
	return &DualOp{Name: name, Elem: elem, Result: result, Direct: direct, Deferred: deferred}
}

// ErrNoForm is returned when a dual operation lacks the form a call
// site resolved to.
var ErrNoForm = errors.New("dual operation has no implementation for this form")

// Resolve decides which form of op a call with an argument of type arg
// uses, and the element type.
func Resolve(op *DualOp, arg types.Type) (Variant, types.Type, error) {
	form, elem := FormDirect, arg
	if in, ok := arg.(*types.Inplace); ok {
		form, elem = FormDeferred, in.Elem()
	}
	if op.Elem != nil && !types.Identical(elem, op.Elem) {
		return form, elem, fmt.Errorf("element type %s does not match %s", elem, op.Elem)
	}
	switch elem.(type) {
	case *types.Result, *types.Pointer:
		return form, elem, fmt.Errorf("%s cannot be passed as ?inplace", elem)
	}
	if form == FormDirect && !types.IsSized(elem) {
		return form, elem, fmt.Errorf("unsized %s must be passed as a deferred value", elem)
	}
	if form == FormDirect && op.Direct == nil || form == FormDeferred && op.Deferred == nil {
		return form, elem, ErrNoForm
	}
	return form, elem, nil
}

// Direct is the constructed form of a dual argument. It owns the object
// until it is materialized or dropped.
type Direct struct {
	obj  Object
	mc   *Machine
	done bool
}

func (d *Direct) Variant() Variant { return FormDirect }
func (d *Direct) Type() types.Type { return d.obj.Type }
func (d *Direct) Len() int64       { return d.obj.Len }

// Object returns the value's location.
func (d *Direct) Object() Object { return d.obj }

// MaterializeInto moves the value to dest with a single copy.
func (d *Direct) MaterializeInto(dest mem.Addr) error {
	if d.done {
		return ErrConsumed
	}
	size := d.mc.sizes.LayoutUnsized(d.obj.Type, d.obj.Len).Size
	if err := d.mc.checkDest(dest, d.obj.Type, d.obj.Len); err != nil {
		return err
	}
	d.done = true
	return d.mc.mem.Copy(dest, d.obj.Addr, size)
}

// Drop drops the value without moving it anywhere.
func (d *Direct) Drop() error {
	if d.done {
		return ErrConsumed
	}
	d.done = true
	return d.mc.dropObject(d.obj)
}

var (
	_ Dual = (*Direct)(nil)
	_ Dual = (*DeferredValue)(nil)
)
