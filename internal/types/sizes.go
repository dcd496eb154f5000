package types

import (
	"fmt"

	"github.com/you-not-fish/emplace/internal/rtabi"
)

// Layout is the storage requirement of a value: size and alignment in
// bytes. Align is always a power of two.
type Layout struct {
	Size  int64
	Align int64
}

// String renders the layout for diagnostics and -emit-layout.
func (l Layout) String() string {
	return fmt.Sprintf("size=%d align=%d", l.Size, l.Align)
}

// Sizes provides size and alignment calculations for types.
// It uses the rtabi constants so every component agrees on the data layout.
type Sizes struct{}

// DefaultSizes is the default Sizes implementation.
var DefaultSizes = &Sizes{}

// Layout returns the layout of a sized type. For an unsized type it
// returns the layout with zero trailing elements.
func (s *Sizes) Layout(T Type) Layout {
	return Layout{Size: s.Sizeof(T), Align: s.Alignof(T)}
}

// LayoutUnsized returns the layout of a value of type T whose unsized
// tail holds n elements. For sized types n is ignored.
func (s *Sizes) LayoutUnsized(T Type, n int64) Layout {
	switch t := T.Underlying().(type) {
	case *Slice:
		return Layout{Size: n * s.Sizeof(t.Elem()), Align: s.Alignof(t.Elem())}
	case *Struct:
		if IsSized(t) {
			break
		}
		s.ComputeLayout(t)
		last := len(t.fields) - 1
		tail := s.LayoutUnsized(t.fields[last].Type(), n)
		return Layout{Size: align(t.Offset(last)+tail.Size, t.Align()), Align: t.Align()}
	}
	return s.Layout(T)
}

// Sizeof returns the size of type T in bytes.
func (s *Sizes) Sizeof(T Type) int64 {
	switch t := T.Underlying().(type) {
	case *Basic:
		return s.basicSize(t.Kind())
	case *Array:
		return t.Len() * s.Sizeof(t.Elem())
	case *Slice:
		return 0
	case *Struct:
		s.ComputeLayout(t)
		return t.Size()
	case *Pointer:
		if !IsSized(t.Elem()) {
			return rtabi.SizeFatPtr
		}
		return rtabi.SizePtr
	case *Inplace, *Func:
		return rtabi.SizePtr
	case *Result:
		// one-byte tag followed by the payload
		a := s.Alignof(t.Elem())
		return align(align(1, a)+s.Sizeof(t.Elem()), a)
	}
	return 0
}

// Alignof returns the alignment of type T in bytes.
func (s *Sizes) Alignof(T Type) int64 {
	switch t := T.Underlying().(type) {
	case *Basic:
		return s.basicAlign(t.Kind())
	case *Array:
		if t.Len() == 0 {
			return 1
		}
		return s.Alignof(t.Elem())
	case *Slice:
		return s.Alignof(t.Elem())
	case *Struct:
		s.ComputeLayout(t)
		return t.Align()
	case *Pointer:
		if !IsSized(t.Elem()) {
			return rtabi.AlignFatPtr
		}
		return rtabi.AlignPtr
	case *Inplace, *Func:
		return rtabi.AlignPtr
	case *Result:
		return s.Alignof(t.Elem())
	}
	return 1
}

// Offsetof returns the offset of field i in struct type T.
func (s *Sizes) Offsetof(T *Struct, i int) int64 {
	s.ComputeLayout(T)
	return T.Offset(i)
}

// ComputeLayout computes the size, alignment, and field offsets for a struct.
// This function is idempotent and safe to call multiple times.
// For a struct with an unsized tail the recorded size covers the sized
// prefix only.
func (s *Sizes) ComputeLayout(st *Struct) {
	if st.LayoutDone() {
		return
	}

	var offset int64
	var maxAlign int64 = 1
	offsets := make([]int64, len(st.fields))

	for i, f := range st.fields {
		fieldSize := s.Sizeof(f.Type())
		fieldAlign := s.Alignof(f.Type())

		offset = align(offset, fieldAlign)
		offsets[i] = offset
		offset += fieldSize

		if fieldAlign > maxAlign {
			maxAlign = fieldAlign
		}
	}

	// Add padding at end for struct alignment
	size := align(offset, maxAlign)

	st.SetLayout(size, maxAlign, offsets)
}

func (s *Sizes) basicSize(kind BasicKind) int64 {
	switch kind {
	case Bool:
		return rtabi.SizeBool
	case Int8, Uint8:
		return rtabi.SizeI8
	case Int16, Uint16:
		return rtabi.SizeI16
	case Int32, Uint32:
		return rtabi.SizeI32
	case Int64, Uint64:
		return rtabi.SizeI64
	case Float32:
		return rtabi.SizeF32
	case Float64:
		return rtabi.SizeF64
	default:
		// Untyped types have no concrete size
		return 0
	}
}

func (s *Sizes) basicAlign(kind BasicKind) int64 {
	switch kind {
	case Bool:
		return rtabi.AlignBool
	case Int8, Uint8:
		return rtabi.AlignI8
	case Int16, Uint16:
		return rtabi.AlignI16
	case Int32, Uint32:
		return rtabi.AlignI32
	case Int64, Uint64:
		return rtabi.AlignI64
	case Float32:
		return rtabi.AlignF32
	case Float64:
		return rtabi.AlignF64
	default:
		return 1
	}
}

// align returns x rounded up to a multiple of a.
func align(x, a int64) int64 {
	return (x + a - 1) &^ (a - 1)
}

// AlignUp returns x rounded up to a multiple of the power of two a.
func AlignUp(x, a int64) int64 {
	return align(x, a)
}
