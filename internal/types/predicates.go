package types

// Identical reports whether x and y are identical types.
func Identical(x, y Type) bool {
	if x == y {
		return true
	}
	if x == nil || y == nil {
		return false
	}
	return identical(x, y)
}

func identical(x, y Type) bool {
	xn, xNamed := x.(*Named)
	yn, yNamed := y.(*Named)
	if xNamed && yNamed {
		// Two named types are identical only if they are the same named type
		return xn.obj == yn.obj
	}
	if xNamed != yNamed {
		return false
	}

	switch x := x.(type) {
	case *Basic:
		if y, ok := y.(*Basic); ok {
			return x.kind == y.kind
		}
	case *Array:
		if y, ok := y.(*Array); ok {
			return x.len == y.len && Identical(x.elem, y.elem)
		}
	case *Slice:
		if y, ok := y.(*Slice); ok {
			return Identical(x.elem, y.elem)
		}
	case *Struct:
		if y, ok := y.(*Struct); ok {
			return identicalStructs(x, y)
		}
	case *Pointer:
		if y, ok := y.(*Pointer); ok {
			return Identical(x.base, y.base)
		}
	case *Inplace:
		if y, ok := y.(*Inplace); ok {
			return Identical(x.elem, y.elem)
		}
	case *Dual:
		if y, ok := y.(*Dual); ok {
			return Identical(x.elem, y.elem)
		}
	case *Result:
		if y, ok := y.(*Result); ok {
			return Identical(x.elem, y.elem)
		}
	case *Func:
		if y, ok := y.(*Func); ok {
			return identicalFuncs(x, y)
		}
	}
	return false
}

func identicalStructs(x, y *Struct) bool {
	if len(x.fields) != len(y.fields) {
		return false
	}
	for i := range x.fields {
		if x.fields[i].Name() != y.fields[i].Name() {
			return false
		}
		if !Identical(x.fields[i].Type(), y.fields[i].Type()) {
			return false
		}
	}
	return true
}

func identicalFuncs(x, y *Func) bool {
	if len(x.params) != len(y.params) {
		return false
	}
	for i := range x.params {
		if !Identical(x.params[i].Type(), y.params[i].Type()) {
			return false
		}
	}
	if (x.result == nil) != (y.result == nil) {
		return false
	}
	return x.result == nil || Identical(x.result, y.result)
}

// AssignableTo reports whether a value of type V is assignable to type T
// without conversion. Deferred values are not assignable to their element
// type here; the conversion engine handles that case.
func AssignableTo(V, T Type) bool {
	if Identical(V, T) {
		return true
	}
	if isUntyped(V) {
		return isRepresentableAs(V, T)
	}
	return false
}

// isRepresentableAs reports whether an untyped value can be represented as type T.
func isRepresentableAs(V, T Type) bool {
	Vb, ok := V.(*Basic)
	if !ok {
		return false
	}
	Tb, ok := T.Underlying().(*Basic)
	if !ok {
		return false
	}

	switch Vb.kind {
	case UntypedBool:
		return Tb.kind == Bool
	case UntypedInt:
		// Untyped int can be assigned to any integer or float type
		return Tb.info&InfoNumeric != 0
	case UntypedFloat:
		return Tb.info&InfoFloat != 0
	}
	return false
}

func isUntyped(T Type) bool {
	b, ok := T.(*Basic)
	return ok && b.info&InfoUntyped != 0
}

// IsUntyped reports whether T is an untyped constant type.
func IsUntyped(T Type) bool {
	return isUntyped(T)
}

// IsBoolean reports whether T is a boolean type.
func IsBoolean(T Type) bool {
	b, ok := T.Underlying().(*Basic)
	return ok && b.info&InfoBoolean != 0
}

// IsInteger reports whether T is an integer type.
func IsInteger(T Type) bool {
	b, ok := T.Underlying().(*Basic)
	return ok && b.info&InfoInteger != 0
}

// IsUnsigned reports whether T is an unsigned integer type.
func IsUnsigned(T Type) bool {
	b, ok := T.Underlying().(*Basic)
	return ok && b.info&InfoUnsigned != 0
}

// IsFloat reports whether T is a floating-point type.
func IsFloat(T Type) bool {
	b, ok := T.Underlying().(*Basic)
	return ok && b.info&InfoFloat != 0
}

// IsNumeric reports whether T is a numeric type (integer or float).
func IsNumeric(T Type) bool {
	b, ok := T.Underlying().(*Basic)
	return ok && b.info&InfoNumeric != 0
}

// IsBasic reports whether T's underlying type is a basic type.
func IsBasic(T Type) bool {
	_, ok := T.Underlying().(*Basic)
	return ok
}

// IsPointer reports whether T is a pointer type (*T).
func IsPointer(T Type) bool {
	_, ok := T.Underlying().(*Pointer)
	return ok
}

// IsInplace reports whether T is a deferred value type.
func IsInplace(T Type) bool {
	_, ok := T.(*Inplace)
	return ok
}

// DefaultType returns the default type for an untyped type.
// For typed types, returns the type itself.
func DefaultType(T Type) Type {
	b, ok := T.(*Basic)
	if !ok {
		return T
	}
	switch b.kind {
	case UntypedBool:
		return Typ[Bool]
	case UntypedInt:
		return Typ[Int64]
	case UntypedFloat:
		return Typ[Float64]
	default:
		return T
	}
}

// Comparable reports whether values of type T can be compared with == or !=.
func Comparable(T Type) bool {
	switch t := T.Underlying().(type) {
	case *Basic:
		return t.kind != Invalid
	case *Pointer:
		return true
	default:
		return false
	}
}

// Ordered reports whether values of type T can be ordered with <, <=, >, >=.
func Ordered(T Type) bool {
	return IsNumeric(T)
}

// IsSized reports whether every value of type T has the same size known
// at compile time. []T and structs ending in an unsized field are not.
func IsSized(T Type) bool {
	switch t := T.Underlying().(type) {
	case *Slice:
		return false
	case *Struct:
		if n := len(t.fields); n > 0 {
			return IsSized(t.fields[n-1].Type())
		}
	}
	return true
}

// UnsizedElem returns the element type of T's unsized tail, or nil when T
// is sized.
func UnsizedElem(T Type) Type {
	switch t := T.Underlying().(type) {
	case *Slice:
		return t.elem
	case *Struct:
		if n := len(t.fields); n > 0 {
			return UnsizedElem(t.fields[n-1].Type())
		}
	}
	return nil
}

// NeedsDrop reports whether destroying a value of type T has an
// observable effect: running a drop hook or releasing a deferred value.
func NeedsDrop(T Type) bool {
	if n, ok := T.(*Named); ok && n.HasDrop() {
		return true
	}
	switch t := T.Underlying().(type) {
	case *Array:
		return t.len > 0 && NeedsDrop(t.elem)
	case *Slice:
		return NeedsDrop(t.elem)
	case *Struct:
		for _, f := range t.fields {
			if NeedsDrop(f.Type()) {
				return true
			}
		}
	case *Inplace:
		return true
	case *Result:
		return NeedsDrop(t.elem)
	}
	return false
}

// IsCopy reports whether a value of type T may be duplicated bitwise.
// Values that need dropping and deferred values are move-only.
func IsCopy(T Type) bool {
	if NeedsDrop(T) {
		return false
	}
	switch T.Underlying().(type) {
	case *Inplace, *Dual, *Func:
		return false
	}
	return IsSized(T)
}
