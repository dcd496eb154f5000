// Package types implements the type representation shared by the checker,
// the conversion engine, and the evaluator. It has no AST dependencies
// beyond source positions.
package types

// A Type is one of *Basic, *Pointer, *Array, *Slice, *Struct, *Named,
// *Inplace, *Dual, *Result or *Func. Only this package implements it.
type Type interface {
	// Underlying returns the type a *Named stands for, and the receiver
	// for every other type.
	Underlying() Type
	String() string
	aType()
}

type typ struct{}

func (typ) aType() {}
