package types

import "testing"

func TestIdentical(t *testing.T) {
	p1, p2 := newPoint(), newPoint()
	tests := []struct {
		x, y Type
		want bool
	}{
		{Typ[Int32], Typ[Int32], true},
		{Typ[Int32], Typ[Uint32], false},
		{NewArray(3, Typ[Int8]), NewArray(3, Typ[Int8]), true},
		{NewArray(3, Typ[Int8]), NewArray(4, Typ[Int8]), false},
		{NewSlice(Typ[Int8]), NewSlice(Typ[Int8]), true},
		{NewSlice(Typ[Int8]), NewArray(0, Typ[Int8]), false},
		{NewInplace(p1), NewInplace(p1), true},
		{NewInplace(p1), NewInplace(p2), false}, // distinct declarations
		{NewInplace(p1), p1, false},
		{NewDual(p1), NewDual(p1), true},
		{NewResult(Typ[Int64]), NewResult(Typ[Int64]), true},
		{p1.Underlying(), p2.Underlying(), true},
		{nil, Typ[Bool], false},
	}
	for _, tt := range tests {
		if got := Identical(tt.x, tt.y); got != tt.want {
			t.Errorf("Identical(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestAssignableTo(t *testing.T) {
	tests := []struct {
		v, t Type
		want bool
	}{
		{Typ[UntypedInt], Typ[Uint8], true},
		{Typ[UntypedInt], Typ[Float32], true},
		{Typ[UntypedFloat], Typ[Int32], false},
		{Typ[UntypedBool], Typ[Bool], true},
		{Typ[Int32], Typ[Int64], false},
		{NewInplace(newPoint()), NewPointer(Typ[Int8]), false},
	}
	for _, tt := range tests {
		if got := AssignableTo(tt.v, tt.t); got != tt.want {
			t.Errorf("AssignableTo(%v, %v) = %v, want %v", tt.v, tt.t, got, tt.want)
		}
	}
}

func TestDefaultType(t *testing.T) {
	if DefaultType(Typ[UntypedInt]) != Typ[Int64] ||
		DefaultType(Typ[UntypedFloat]) != Typ[Float64] ||
		DefaultType(Typ[UntypedBool]) != Typ[Bool] ||
		DefaultType(Typ[Int8]) != Typ[Int8] {
		t.Error("DefaultType")
	}
}

func TestClassification(t *testing.T) {
	if !IsInteger(Typ[Uint8]) || IsInteger(Typ[Float32]) || !IsUnsigned(Typ[Uint64]) || IsUnsigned(Typ[Int64]) {
		t.Error("integer classification")
	}
	if !IsFloat(Typ[Float32]) || !IsNumeric(Typ[Int8]) || IsNumeric(Typ[Bool]) || !IsBoolean(Typ[UntypedBool]) {
		t.Error("numeric classification")
	}
	if !IsUntyped(Typ[UntypedInt]) || IsUntyped(Typ[Int64]) {
		t.Error("IsUntyped")
	}
	if !IsPointer(NewPointer(Typ[Int8])) || !IsInplace(NewInplace(Typ[Int8])) || !IsBasic(Typ[Bool]) {
		t.Error("composite classification")
	}
	if !Comparable(NewPointer(Typ[Int8])) || Comparable(newPoint()) || !Ordered(Typ[Float64]) || Ordered(Typ[Bool]) {
		t.Error("Comparable/Ordered")
	}
}

func TestMoveSemantics(t *testing.T) {
	guard := NewNamed(NewTypeName(NoPos, "Guard", nil), NewStruct([]*Var{NewField(NoPos, "id", Typ[Int32])}))
	guard.SetHostDrop()
	holder := NewStruct([]*Var{NewField(NoPos, "g", guard)})

	tests := []struct {
		typ       Type
		needsDrop bool
		isCopy    bool
	}{
		{Typ[Int32], false, true},
		{newPoint(), false, true},
		{NewArray(4, Typ[Uint8]), false, true},
		{NewPointer(guard), false, true},
		{guard, true, false},
		{holder, true, false},
		{NewArray(2, guard), true, false},
		{NewArray(0, guard), false, true},
		{NewInplace(Typ[Int32]), true, false},
		{NewResult(guard), true, false},
		{NewSlice(Typ[Int32]), false, false},
	}
	for _, tt := range tests {
		if got := NeedsDrop(tt.typ); got != tt.needsDrop {
			t.Errorf("NeedsDrop(%v) = %v, want %v", tt.typ, got, tt.needsDrop)
		}
		if got := IsCopy(tt.typ); got != tt.isCopy {
			t.Errorf("IsCopy(%v) = %v, want %v", tt.typ, got, tt.isCopy)
		}
	}
}

func TestUnsizedElem(t *testing.T) {
	tail := NewStruct([]*Var{
		NewField(NoPos, "n", Typ[Uint32]),
		NewField(NoPos, "data", NewSlice(Typ[Uint8])),
	})
	if UnsizedElem(tail) != Typ[Uint8] || UnsizedElem(newPoint()) != nil {
		t.Error("UnsizedElem")
	}
	if IsSized(NewSlice(Typ[Int8])) || !IsSized(NewPointer(NewSlice(Typ[Int8]))) {
		t.Error("IsSized")
	}
}
