package inplace

import (
	"go/constant"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// operandMode describes the mode of an operand.
type operandMode int

const (
	invalid   operandMode = iota // operand is invalid
	novalue                      // operand has no value (void function call)
	builtin                      // operand is a built-in function
	typexpr                      // operand is a type expression
	constant_                    // operand is a constant value
	variable                     // operand is an addressable location
	value                        // operand is a computed value (not addressable)
	hostfunc                     // operand is a host function or dual operation
)

// operand represents the result of evaluating an expression.
type operand struct {
	mode operandMode
	pos  syntax.Pos
	typ  types.Type
	val  constant.Value // constant value (only valid when mode == constant_)
	expr syntax.Expr    // source expression (for error reporting)

	host *HostFunc // set when mode == hostfunc
	dual *DualOp   // set when mode == hostfunc
}

// String returns a string representation of the operand for debugging.
func (x *operand) String() string {
	if x.mode == invalid {
		return "invalid operand"
	}
	if x.typ == nil {
		return "operand without type"
	}
	return x.typ.String()
}

// setConst sets the operand to a constant value.
func (x *operand) setConst(typ types.Type, val constant.Value) {
	x.mode = constant_
	x.typ = typ
	x.val = val
}

// setValue sets the operand to a computed value.
func (x *operand) setValue(typ types.Type) {
	x.mode = value
	x.typ = typ
	x.val = nil
}
