package inplace

import (
	"fmt"
	"go/constant"
	"math"
	"strings"

	"code.hybscloud.com/kont"
	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/types"
)

// Value is a run-time value as host code sees it:
//
//	Word            basic and pointer values
//	Object          arrays and structs, by location
//	*DeferredValue  inplace T
//	Result          Result[T]
//
// A nil Value is the result of a call without one.
type Value any

// Word holds the bits of a basic or pointer value, zero-extended.
// Floats are stored as their IEEE 754 bits.
type Word uint64

// Object is an aggregate in memory. Len is the element count of an
// unsized tail.
type Object struct {
	Addr mem.Addr
	Type types.Type
	Len  int64
}

// Result is the value of a Result[T]: the error on the left, the value
// (a Word or a *DeferredValue) on the right.
type Result = kont.Either[error, Value]

// Ok returns a successful Result.
func Ok(v Value) Result { return kont.Right[error, Value](v) }

// Fail returns a failed Result.
func Fail(err error) Result { return kont.Left[error, Value](err) }

// Int returns w as a signed integer of type T.
func (w Word) Int(T types.Type) int64 {
	switch widthOf(T) {
	case 8:
		return int64(int8(w))
	case 16:
		return int64(int16(w))
	case 32:
		return int64(int32(w))
	}
	return int64(w)
}

// Float returns w as a float of type T.
func (w Word) Float(T types.Type) float64 {
	if widthOf(T) == 32 {
		return float64(math.Float32frombits(uint32(w)))
	}
	return math.Float64frombits(uint64(w))
}

// Bool returns w as a bool.
func (w Word) Bool() bool { return w != 0 }

// IntWord returns the word for the integer v of type T, truncated to
// the width of T.
func IntWord(T types.Type, v int64) Word {
	return Word(uint64(v)) & mask(T)
}

// FloatWord returns the word for the float v of type T.
func FloatWord(T types.Type, v float64) Word {
	if widthOf(T) == 32 {
		return Word(math.Float32bits(float32(v)))
	}
	return Word(math.Float64bits(v))
}

// BoolWord returns the word for b.
func BoolWord(b bool) Word {
	if b {
		return 1
	}
	return 0
}

// widthOf returns the width of the basic type T.
func widthOf(T types.Type) int {
	if b, ok := T.Underlying().(*types.Basic); ok && b.Kind() != types.Bool {
		return b.Kind().Bits()
	}
	return 64
}

func mask(T types.Type) Word {
	n := widthOf(T)
	if n >= 64 {
		return ^Word(0)
	}
	return Word(1)<<n - 1
}

// constWord converts a checked constant of type T to its word.
func constWord(v constant.Value, T types.Type) Word {
	switch {
	case v.Kind() == constant.Bool:
		return BoolWord(constant.BoolVal(v))
	case types.IsFloat(T):
		f, _ := constant.Float64Val(v)
		return FloatWord(T, f)
	case types.IsUnsigned(T):
		u, _ := constant.Uint64Val(v)
		return Word(u) & mask(T)
	}
	i, _ := constant.Int64Val(constant.ToInt(v))
	return IntWord(T, i)
}

// isScalar reports whether values of type T fit in a Word.
func isScalar(T types.Type) bool {
	switch T.Underlying().(type) {
	case *types.Basic, *types.Pointer:
		return true
	}
	return false
}

// isHandle reports whether values of type T live outside memory.
func isHandle(T types.Type) bool {
	switch T.(type) {
	case *types.Inplace, *types.Result:
		return true
	}
	return false
}

// ----------------------------------------------------------------------------
// Formatting

// Format renders v of type T the way print shows it.
func (m *Machine) Format(T types.Type, v Value) string {
	var b strings.Builder
	m.format(&b, T, v)
	return b.String()
}

func (m *Machine) format(b *strings.Builder, T types.Type, v Value) {
	switch v := v.(type) {
	case nil:
		b.WriteString("()")
	case Word:
		m.formatWord(b, T, v)
	case Object:
		m.formatObject(b, v.Type, v.Addr, v.Len)
	case *DeferredValue:
		fmt.Fprintf(b, "inplace %s#%d", v.typ, v.id)
	case Result:
		if err, ok := v.GetLeft(); ok {
			fmt.Fprintf(b, "Err(%v)", err)
			return
		}
		r, _ := v.GetRight()
		var elem types.Type
		if rt, ok := T.(*types.Result); ok {
			elem = rt.Elem()
		}
		b.WriteString("Ok(")
		m.format(b, elem, r)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func (m *Machine) formatWord(b *strings.Builder, T types.Type, w Word) {
	if T == nil {
		fmt.Fprintf(b, "%d", uint64(w))
		return
	}
	switch {
	case types.IsPointer(T):
		fmt.Fprintf(b, "%#x", uint64(w))
	case types.IsBoolean(T):
		fmt.Fprintf(b, "%t", w.Bool())
	case types.IsFloat(T):
		fmt.Fprintf(b, "%g", w.Float(T))
	case types.IsUnsigned(T):
		fmt.Fprintf(b, "%d", uint64(w))
	default:
		fmt.Fprintf(b, "%d", w.Int(T))
	}
}

func (m *Machine) formatObject(b *strings.Builder, T types.Type, a mem.Addr, n int64) {
	if isScalar(T) {
		w, err := m.load(a, T)
		if err != nil {
			b.WriteString("?")
			return
		}
		m.formatWord(b, T, w)
		return
	}
	switch u := T.Underlying().(type) {
	case *types.Struct:
		m.sizes.ComputeLayout(u)
		if nt, ok := T.(*types.Named); ok {
			b.WriteString(nt.Obj().Name())
		}
		b.WriteString("{")
		for i, f := range u.Fields() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: ", f.Name())
			m.formatObject(b, f.Type(), a+mem.Addr(u.Offset(i)), n)
		}
		b.WriteString("}")
	case *types.Array:
		m.formatElems(b, u.Elem(), a, u.Len())
	case *types.Slice:
		m.formatElems(b, u.Elem(), a, n)
	}
}

func (m *Machine) formatElems(b *strings.Builder, elem types.Type, a mem.Addr, n int64) {
	size := m.sizes.Sizeof(elem)
	b.WriteString("[")
	for i := int64(0); i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		m.formatObject(b, elem, a+mem.Addr(i*size), 0)
	}
	b.WriteString("]")
}
