package types

import (
	"testing"

	"github.com/you-not-fish/emplace/internal/syntax"
)

func TestBasicTypes(t *testing.T) {
	tests := []struct {
		kind BasicKind
		name string
		info BasicInfo
		bits int
	}{
		{Bool, "bool", InfoBoolean, 8},
		{Int8, "i8", InfoInteger, 8},
		{Int32, "i32", InfoInteger, 32},
		{Int64, "i64", InfoInteger, 64},
		{Uint8, "u8", InfoInteger | InfoUnsigned, 8},
		{Uint16, "u16", InfoInteger | InfoUnsigned, 16},
		{Uint64, "u64", InfoInteger | InfoUnsigned, 64},
		{Float32, "f32", InfoFloat, 32},
		{Float64, "f64", InfoFloat, 64},
		{UntypedBool, "untyped bool", InfoBoolean | InfoUntyped, 0},
		{UntypedInt, "untyped int", InfoInteger | InfoUntyped, 0},
		{UntypedFloat, "untyped float", InfoFloat | InfoUntyped, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := Typ[tt.kind]
			if typ == nil {
				t.Fatalf("Typ[%d] is nil", tt.kind)
			}
			if typ.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", typ.Kind(), tt.kind)
			}
			if typ.Info() != tt.info {
				t.Errorf("Info() = %v, want %v", typ.Info(), tt.info)
			}
			if typ.String() != tt.name {
				t.Errorf("String() = %q, want %q", typ.String(), tt.name)
			}
			if typ.Kind().Bits() != tt.bits {
				t.Errorf("Bits() = %d, want %d", typ.Kind().Bits(), tt.bits)
			}
			if typ.Underlying() != typ {
				t.Errorf("Underlying() != self")
			}
		})
	}
}

func TestCompositeStrings(t *testing.T) {
	point := newPoint()
	tests := []struct {
		typ  Type
		want string
	}{
		{NewArray(4, Typ[Uint8]), "[4]u8"},
		{NewSlice(Typ[Uint32]), "[]u32"},
		{NewPointer(point), "*Point"},
		{NewInplace(point), "inplace Point"},
		{NewDual(point), "?inplace Point"},
		{NewResult(NewInplace(point)), "Result[inplace Point]"},
		{point.Underlying(), "struct{x i32; y i32}"},
		{NewFunc(nil, []*Var{NewVar(NoPos, "a", Typ[Int32])}, NewInplace(point)), "func(a i32) inplace Point"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNamedType(t *testing.T) {
	point := newPoint()
	if point.Obj().Name() != "Point" || point.Obj().Type() != point {
		t.Errorf("type name object not linked")
	}
	st := point.Underlying().(*Struct)
	if st.FieldIndex("y") != 1 || st.FieldIndex("z") != -1 {
		t.Errorf("FieldIndex is wrong")
	}
	if point.HasDrop() {
		t.Error("Point has no drop hook")
	}
}

func TestDropHooks(t *testing.T) {
	guard := NewNamed(NewTypeName(NoPos, "Guard", nil), NewStruct([]*Var{
		NewField(NoPos, "id", Typ[Int32]),
	}))
	drop := NewFuncObj(syntax.Pos{}, "drop")
	drop.SetSignature(NewFunc(NewVar(NoPos, "g", NewPointer(guard)), nil, nil))
	guard.AddMethod(drop)
	if !guard.HasDrop() || guard.LookupMethod("drop") != drop {
		t.Error("drop method not found")
	}

	host := NewNamed(NewTypeName(NoPos, "File", nil), NewStruct(nil))
	if host.HasDrop() {
		t.Error("File has no drop hook yet")
	}
	host.SetHostDrop()
	if !host.HasDrop() {
		t.Error("host drop hook not recorded")
	}
}

func TestHostFunc(t *testing.T) {
	f := NewHostFunc("tick", NewFunc(nil, nil, Typ[Int64]))
	if !f.IsHost() || f.Signature().Result() != Typ[Int64] || f.Type() != f.Signature() {
		t.Errorf("host func not set up: %v", f.Type())
	}
}

// newPoint returns type Point struct { x i32; y i32 }.
func newPoint() *Named {
	return NewNamed(NewTypeName(NoPos, "Point", nil), NewStruct([]*Var{
		NewField(NoPos, "x", Typ[Int32]),
		NewField(NoPos, "y", Typ[Int32]),
	}))
}
