// Package inplace implements checking and evaluation of in-place
// construction: the inplace T deferred value type, its conversion and
// composition rules, the unwind-safety check for initializers, and the
// runtime that materializes deferred values into caller-supplied memory.
package inplace

import (
	"fmt"

	"github.com/you-not-fish/emplace/internal/syntax"
)

// Error is a compile-time error: a type error, a rejected deferral, or an
// initializer that may unwind.
type Error struct {
	Pos syntax.Pos
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ErrorHandler is called for each compile-time error.
type ErrorHandler func(pos syntax.Pos, msg string)

// errorf reports an error at the given position.
func (c *Checker) errorf(pos syntax.Pos, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if c.errors == 0 {
		c.first = &Error{Pos: pos, Msg: msg}
	}
	c.errors++

	if c.conf.Error != nil {
		c.conf.Error(pos, msg)
	}
}

// invalidOp reports an invalid operation error.
func (c *Checker) invalidOp(x *operand, format string, args ...interface{}) {
	c.errorf(x.pos, "invalid operation: "+format, args...)
}
