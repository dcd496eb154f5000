package types

// BasicKind describes the kind of basic type.
type BasicKind int

const (
	Invalid BasicKind = iota // invalid type

	// Concrete basic types
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64

	// Untyped basic types (for constant expressions)
	UntypedBool
	UntypedInt
	UntypedFloat
)

// BasicInfo describes properties of a basic type.
type BasicInfo int

const (
	InfoBoolean BasicInfo = 1 << iota
	InfoInteger
	InfoUnsigned
	InfoFloat
	InfoUntyped
	InfoNumeric = InfoInteger | InfoFloat
)

// Basic represents a basic type: bool, the sized integers and floats,
// and their untyped constant variants.
type Basic struct {
	typ
	kind BasicKind
	info BasicInfo
	name string
}

// Kind returns the kind of the basic type.
func (b *Basic) Kind() BasicKind {
	return b.kind
}

// Info returns information about the basic type.
func (b *Basic) Info() BasicInfo {
	return b.info
}

// Name returns the name of the basic type.
func (b *Basic) Name() string {
	return b.name
}

// Underlying implements Type.
func (b *Basic) Underlying() Type {
	return b
}

// String implements Type.
func (b *Basic) String() string {
	return b.name
}

// Typ holds the predeclared basic types, indexed by BasicKind.
// Typ[Invalid] is nil, representing an invalid type.
var Typ = []*Basic{
	Invalid:      nil,
	Bool:         {kind: Bool, info: InfoBoolean, name: "bool"},
	Int8:         {kind: Int8, info: InfoInteger, name: "i8"},
	Int16:        {kind: Int16, info: InfoInteger, name: "i16"},
	Int32:        {kind: Int32, info: InfoInteger, name: "i32"},
	Int64:        {kind: Int64, info: InfoInteger, name: "i64"},
	Uint8:        {kind: Uint8, info: InfoInteger | InfoUnsigned, name: "u8"},
	Uint16:       {kind: Uint16, info: InfoInteger | InfoUnsigned, name: "u16"},
	Uint32:       {kind: Uint32, info: InfoInteger | InfoUnsigned, name: "u32"},
	Uint64:       {kind: Uint64, info: InfoInteger | InfoUnsigned, name: "u64"},
	Float32:      {kind: Float32, info: InfoFloat, name: "f32"},
	Float64:      {kind: Float64, info: InfoFloat, name: "f64"},
	UntypedBool:  {kind: UntypedBool, info: InfoBoolean | InfoUntyped, name: "untyped bool"},
	UntypedInt:   {kind: UntypedInt, info: InfoInteger | InfoUntyped, name: "untyped int"},
	UntypedFloat: {kind: UntypedFloat, info: InfoFloat | InfoUntyped, name: "untyped float"},
}

// Bits returns the width of a concrete numeric kind in bits, or 0.
func (k BasicKind) Bits() int {
	switch k {
	case Bool, Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64:
		return 64
	}
	return 0
}
