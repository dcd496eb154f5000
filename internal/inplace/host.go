package inplace

import (
	"github.com/you-not-fish/emplace/internal/types"
)

// HostFunc is a function implemented by the embedding program.
type HostFunc struct {
	Name string

	// Params are the parameter types. A nil entry accepts any sized
	// value. If Variadic is set the last entry repeats.
	Params   []types.Type
	Variadic bool

	// Result is the result type, or nil. If it is a Result, an error
	// returned by Fn becomes the failure value; otherwise it traps.
	Result types.Type

	// Effects marks a function whose calls are observable, so deferring
	// them past other effects is rejected.
	Effects bool

	// MayUnwind marks a function that may trap. Initializers may not
	// call it under the unwind policy.
	MayUnwind bool

	Fn func(mc *Machine, args []Arg) (Value, error)
}

// Arg is an argument passed to a host function. Aggregates arrive as an
// Object in a temporary that is dropped when the call returns.
type Arg struct {
	Type  types.Type
	Value Value
}

// DropFunc is a drop hook implemented by the host. It runs before the
// fields of obj are dropped.
type DropFunc func(mc *Machine, obj Object) error

// Host holds the host functions, drop hooks and dual operations visible
// to a program.
type Host struct {
	Funcs   map[string]*HostFunc
	Drops   map[string]DropFunc // keyed by type name
	DualOps map[string]*DualOp
}

var emptyHost = &Host{}

// NewHost returns an empty host.
func NewHost() *Host {
	return &Host{
		Funcs:   make(map[string]*HostFunc),
		Drops:   make(map[string]DropFunc),
		DualOps: make(map[string]*DualOp),
	}
}

// Define adds a host function.
func (h *Host) Define(f *HostFunc) {
	h.Funcs[f.Name] = f
}

// DefineDual adds a dual operation.
func (h *Host) DefineDual(op *DualOp) {
	h.DualOps[op.Name] = op
}

// DefineDrop installs a drop hook for the source type with the given
// name.
func (h *Host) DefineDrop(typeName string, fn DropFunc) {
	h.Drops[typeName] = fn
}

// lookup reports whether name is a host function or dual operation.
func (h *Host) lookup(name string) bool {
	if _, ok := h.Funcs[name]; ok {
		return true
	}
	_, ok := h.DualOps[name]
	return ok
}
