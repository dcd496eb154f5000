package types

import (
	"testing"

	"github.com/you-not-fish/emplace/internal/syntax"
)

func testScope(parent *Scope, kind ScopeKind) *Scope {
	return NewScope(parent, kind, syntax.Pos{}, syntax.Pos{}, "")
}

func TestScopeInsertAndLookup(t *testing.T) {
	scope := testScope(nil, BlockScope)

	obj := NewVar(syntax.Pos{}, "x", Typ[Int64])
	existing := scope.Insert(obj)

	if existing != nil {
		t.Errorf("Insert() returned non-nil for first insert")
	}

	found := scope.Lookup("x")
	if found != obj {
		t.Errorf("Lookup() did not return inserted object")
	}

	// Insert duplicate
	obj2 := NewVar(syntax.Pos{}, "x", Typ[Float64])
	existing = scope.Insert(obj2)
	if existing != obj {
		t.Errorf("Insert() should return first object for duplicate")
	}
}

func TestScopeLookupParent(t *testing.T) {
	parent := testScope(nil, BlockScope)
	child := testScope(parent, BlockScope)

	obj := NewVar(syntax.Pos{}, "x", Typ[Int64])
	parent.Insert(obj)

	// Lookup in child should find parent's object
	found, foundScope := child.LookupParent("x")
	if found != obj {
		t.Errorf("LookupParent() did not find parent's object")
	}
	if foundScope != parent {
		t.Errorf("LookupParent() returned wrong scope")
	}

	// Direct lookup in child should fail
	if child.Lookup("x") != nil {
		t.Errorf("Lookup() should not find parent's object")
	}
}

func TestScopeShadowing(t *testing.T) {
	parent := testScope(nil, BlockScope)
	child := testScope(parent, BlockScope)

	parentObj := NewVar(syntax.Pos{}, "x", Typ[Int64])
	parent.Insert(parentObj)

	childObj := NewVar(syntax.Pos{}, "x", Typ[Float64])
	child.Insert(childObj)

	// LookupParent in child should find child's object (shadowing)
	found, foundScope := child.LookupParent("x")
	if found != childObj {
		t.Errorf("LookupParent() should find child's shadowing object")
	}
	if foundScope != child {
		t.Errorf("LookupParent() should return child scope")
	}
}

func TestScopeHierarchy(t *testing.T) {
	// Universe -> Package -> Function -> Block
	universe := testScope(nil, UniverseScope)
	pkg := testScope(universe, PackageScope)
	fn := testScope(pkg, FuncScope)
	block := testScope(fn, BlockScope)

	// Insert at different levels
	universe.Insert(NewTypeName(syntax.Pos{}, "i64", Typ[Int64]))
	pkg.Insert(NewVar(syntax.Pos{}, "globalX", Typ[Int64]))
	fn.Insert(NewVar(syntax.Pos{}, "param", Typ[Int64]))
	block.Insert(NewVar(syntax.Pos{}, "local", Typ[Int64]))

	// All should be visible from block
	tests := []string{"i64", "globalX", "param", "local"}
	for _, name := range tests {
		found, _ := block.LookupParent(name)
		if found == nil {
			t.Errorf("LookupParent(%q) failed from block", name)
		}
	}
}

func TestScopeNames(t *testing.T) {
	scope := testScope(nil, BlockScope)

	scope.Insert(NewVar(syntax.Pos{}, "a", Typ[Int64]))
	scope.Insert(NewVar(syntax.Pos{}, "b", Typ[Float64]))
	scope.Insert(NewVar(syntax.Pos{}, "c", Typ[Bool]))

	names := scope.Names()
	if len(names) != 3 {
		t.Errorf("Names() returned %d names, want 3", len(names))
	}

	// Names should be sorted
	expected := []string{"a", "b", "c"}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestScopeParent(t *testing.T) {
	parent := testScope(nil, BlockScope)
	child := testScope(parent, BlockScope)

	if child.Parent() != parent {
		t.Errorf("Parent() != expected parent")
	}
	if parent.Parent() != nil {
		t.Errorf("Parent() should be nil for root scope")
	}
}

func TestScopeString(t *testing.T) {
	pkg := testScope(nil, PackageScope)
	fn := NewScope(pkg, FuncScope, syntax.Pos{}, syntax.Pos{}, "make")
	fn.Insert(NewVar(syntax.Pos{}, "x", Typ[Int32]))
	testScope(fn, DeferredScope)

	want := "package {\n  function make {\n    x: i32\n    deferred block {\n    }\n  }\n}\n"
	if got := pkg.String(); got != want {
		t.Errorf("String() =\n%s\nwant:\n%s", got, want)
	}
}

func TestScopeCaptures(t *testing.T) {
	pkg := testScope(Universe, PackageScope)
	fn := testScope(pkg, FuncScope)
	outer := testScope(fn, BlockScope)
	d := testScope(outer, DeferredScope)
	inner := testScope(d, BlockScope)
	nested := testScope(inner, DeferredScope)

	tests := []struct {
		name string
		s    *Scope
		decl *Scope
		want bool
	}{
		{"function local", d, fn, true},
		{"enclosing block", d, outer, true},
		{"declared in block", d, d, false},
		{"declared in nested block", d, inner, false},
		{"package level", d, pkg, false},
		{"universe", d, Universe, false},
		{"not deferred", inner, fn, false},
		{"nested sees outer block", nested, inner, true},
		{"nested sees function", nested, fn, true},
	}
	for _, tt := range tests {
		if got := tt.s.Captures(tt.decl); got != tt.want {
			t.Errorf("%s: Captures = %v, want %v", tt.name, got, tt.want)
		}
	}

	if inner.Deferred() != d || nested.Deferred() != nested || outer.Deferred() != nil {
		t.Error("Deferred returned the wrong scope")
	}
}

func TestObjectParentScope(t *testing.T) {
	scope := testScope(nil, BlockScope)
	obj := NewVar(syntax.Pos{}, "x", Typ[Int64])

	if obj.Parent() != nil {
		t.Errorf("Parent() should be nil before insertion")
	}

	scope.Insert(obj)

	if obj.Parent() != scope {
		t.Errorf("Parent() should be set after insertion")
	}
}

func TestScopeChildren(t *testing.T) {
	parent := testScope(nil, BlockScope)
	child1 := testScope(parent, BlockScope)
	child2 := testScope(parent, BlockScope)

	children := parent.Children()
	if len(children) != 2 {
		t.Errorf("Children() returned %d, want 2", len(children))
	}
	if children[0] != child1 {
		t.Errorf("Children()[0] != child1")
	}
	if children[1] != child2 {
		t.Errorf("Children()[1] != child2")
	}
}

func TestUniverse(t *testing.T) {
	if Universe == nil {
		t.Fatal("Universe is nil")
	}

	for _, name := range []string{"bool", "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64"} {
		tn, ok := Universe.Lookup(name).(*TypeName)
		if !ok {
			t.Errorf("Universe.Lookup(%q) is not a TypeName", name)
			continue
		}
		if tn.Name() != name || tn.Type().String() != name {
			t.Errorf("TypeName %q has type %s", tn.Name(), tn.Type())
		}
	}

	for name, want := range map[string]bool{"true": true, "false": false} {
		c, ok := Universe.Lookup(name).(*Const)
		if !ok {
			t.Fatalf("Universe.Lookup(%q) is not a Const", name)
		}
		if c.Value() != want {
			t.Errorf("%s = %v", name, c.Value())
		}
	}

	if b, ok := Universe.Lookup("panic").(*Builtin); !ok || b != UniversePanic() || b.Kind() != BuiltinPanic {
		t.Error("panic builtin missing")
	}
	for _, name := range []string{"int", "string", "nil", "println", "new"} {
		if Universe.Lookup(name) != nil {
			t.Errorf("unexpected predeclared %q", name)
		}
	}
}
