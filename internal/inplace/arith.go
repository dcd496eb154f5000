package inplace

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// operation evaluates a unary or binary operation of result type T.
func (m *Machine) operation(e *syntax.Operation, T types.Type) (Word, error) {
	if e.Y == nil {
		return m.unaryOp(e, T)
	}

	switch e.Op {
	case syntax.AndAnd, syntax.OrOr:
		x, err := m.evalWord(e.X, m.operandType(e.X, e.Y))
		if err != nil {
			return 0, err
		}
		if x.Bool() == (e.Op == syntax.OrOr) {
			return x, nil
		}
		return m.evalWord(e.Y, m.operandType(e.Y, e.X))

	case syntax.Shl, syntax.Shr:
		x, err := m.evalWord(e.X, T)
		if err != nil {
			return 0, err
		}
		CT := m.info.Types[e.Y].Type
		n, err := m.evalWord(e.Y, CT)
		if err != nil {
			return 0, err
		}
		if !types.IsUnsigned(CT) && n.Int(CT) < 0 {
			return 0, m.trapf(e.Pos(), nil, "negative shift amount")
		}
		return shift(e.Op, T, x, uint64(n)), nil
	}

	OT := m.operandType(e.X, e.Y)
	x, err := m.evalWord(e.X, OT)
	if err != nil {
		return 0, err
	}
	y, err := m.evalWord(e.Y, OT)
	if err != nil {
		return 0, err
	}
	if e.Op.IsComparison() {
		return BoolWord(compare(e.Op, OT, x, y)), nil
	}
	return m.arith(e, OT, x, y)
}

// operandType returns the type both operands of a binary operation have.
// An untyped constant takes the type of the other operand.
func (m *Machine) operandType(x, y syntax.Expr) types.Type {
	T := m.info.Types[x].Type
	if types.IsUntyped(T) {
		if YT := m.info.Types[y].Type; !types.IsUntyped(YT) {
			return YT
		}
		return types.DefaultType(T)
	}
	return T
}

func (m *Machine) unaryOp(e *syntax.Operation, T types.Type) (Word, error) {
	switch e.Op {
	case syntax.Not:
		x, err := m.evalWord(e.X, types.Typ[types.Bool])
		return BoolWord(!x.Bool()), err

	case syntax.Sub:
		x, err := m.evalWord(e.X, T)
		if err != nil {
			return 0, err
		}
		if types.IsFloat(T) {
			return FloatWord(T, -x.Float(T)), nil
		}
		return m.arith(e, T, 0, x)

	case syntax.Mul:
		p, err := m.evalWord(e.X, m.info.Types[e.X].Type)
		if err != nil {
			return 0, err
		}
		return m.load(mem.Addr(p), T)

	case syntax.And:
		a, err := m.addr(e.X)
		return Word(a), err
	}
	return 0, fmt.Errorf("internal error: unary %s", e.Op)
}

// arith computes x op y in type T. Under checked overflow + - * trap
// when the result does not fit; division by zero always traps.
func (m *Machine) arith(e *syntax.Operation, T types.Type, x, y Word) (Word, error) {
	if types.IsFloat(T) {
		return floatArith(e.Op, T, x.Float(T), y.Float(T)), nil
	}

	switch e.Op {
	case syntax.And:
		return x & y, nil
	case syntax.Or:
		return x | y, nil
	case syntax.Xor:
		return x ^ y, nil
	}

	checked := m.conf.Overflow == OverflowChecked
	if types.IsUnsigned(T) {
		r, overflow, err := unsignedArith(e.Op, T, uint64(x), uint64(y))
		if err != "" {
			return 0, m.trapf(e.Pos(), nil, "%s", err)
		}
		if overflow && checked {
			return 0, m.trapf(e.Pos(), nil, "%s overflow in %s", T, syntax.ExprString(e))
		}
		return Word(r) & mask(T), nil
	}

	r, overflow, err := signedArith(e.Op, widthOf(T), x.Int(T), y.Int(T))
	if err != "" {
		return 0, m.trapf(e.Pos(), nil, "%s", err)
	}
	if overflow && checked {
		return 0, m.trapf(e.Pos(), nil, "%s overflow in %s", T, syntax.ExprString(e))
	}
	return IntWord(T, r), nil
}

// signedArith computes x op y for an n-bit signed type and reports
// whether the exact result does not fit in n bits.
func signedArith(op syntax.Token, n int, x, y int64) (r int64, overflow bool, err string) {
	switch op {
	case syntax.Add:
		r = x + y
		overflow = n == 64 && (x > 0 && y > 0 && r < 0 || x < 0 && y < 0 && r >= 0)
	case syntax.Sub:
		r = x - y
		overflow = n == 64 && (x >= 0 && y < 0 && r < 0 || x < 0 && y > 0 && r >= 0)
	case syntax.Mul:
		r = x * y
		overflow = n == 64 && x != 0 && (r/x != y || x == -1 && y == math.MinInt64)
	case syntax.Div, syntax.Rem:
		if y == 0 {
			return 0, false, "integer divide by zero"
		}
		if y == -1 && x == minInt(n) {
			return 0, false, "integer overflow in division"
		}
		if op == syntax.Div {
			r = x / y
		} else {
			r = x % y
		}
		return r, false, ""
	default:
		return 0, false, fmt.Sprintf("invalid operator %s", op)
	}
	if n < 64 {
		overflow = r < minInt(n) || r > -(minInt(n)+1)
	}
	return r, overflow, ""
}

// unsignedArith computes x op y for an unsigned type T.
func unsignedArith(op syntax.Token, T types.Type, x, y uint64) (r uint64, overflow bool, err string) {
	limit := uint64(mask(T))
	switch op {
	case syntax.Add:
		var carry uint64
		r, carry = bits.Add64(x, y, 0)
		overflow = carry != 0 || r > limit
	case syntax.Sub:
		r = x - y
		overflow = y > x
	case syntax.Mul:
		var hi uint64
		hi, r = bits.Mul64(x, y)
		overflow = hi != 0 || r > limit
	case syntax.Div, syntax.Rem:
		if y == 0 {
			return 0, false, "integer divide by zero"
		}
		if op == syntax.Div {
			return x / y, false, ""
		}
		return x % y, false, ""
	default:
		return 0, false, fmt.Sprintf("invalid operator %s", op)
	}
	return r, overflow, ""
}

func minInt(n int) int64 {
	return -1 << (n - 1)
}

func floatArith(op syntax.Token, T types.Type, x, y float64) Word {
	var r float64
	switch op {
	case syntax.Add:
		r = x + y
	case syntax.Sub:
		r = x - y
	case syntax.Mul:
		r = x * y
	case syntax.Div:
		r = x / y
	}
	return FloatWord(T, r)
}

// compare evaluates a comparison of two operands of type T.
func compare(op syntax.Token, T types.Type, x, y Word) bool {
	var c int // -1, 0, +1
	switch {
	case types.IsFloat(T):
		a, b := x.Float(T), y.Float(T)
		if math.IsNaN(a) || math.IsNaN(b) {
			return op == syntax.Neq
		}
		c = cmp3(a < b, a > b)
	case types.IsInteger(T) && !types.IsUnsigned(T):
		a, b := x.Int(T), y.Int(T)
		c = cmp3(a < b, a > b)
	default:
		c = cmp3(x < y, x > y)
	}
	switch op {
	case syntax.Eql:
		return c == 0
	case syntax.Neq:
		return c != 0
	case syntax.Lss:
		return c < 0
	case syntax.Leq:
		return c <= 0
	case syntax.Gtr:
		return c > 0
	case syntax.Geq:
		return c >= 0
	}
	return false
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// shift computes x << n or x >> n in type T. Shifting by the width or
// more gives 0, or -1 for a negative signed value shifted right.
func shift(op syntax.Token, T types.Type, x Word, n uint64) Word {
	w := uint64(widthOf(T))
	signed := types.IsInteger(T) && !types.IsUnsigned(T)
	if op == syntax.Shl {
		if n >= w {
			return 0
		}
		return (x << n) & mask(T)
	}
	if signed {
		v := x.Int(T)
		if n >= w {
			n = w - 1
		}
		return IntWord(T, v>>n)
	}
	if n >= w {
		return 0
	}
	return (x & mask(T)) >> n
}
