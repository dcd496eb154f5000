package types

import "github.com/you-not-fish/emplace/internal/syntax"

// NoPos is the zero position value, used for predeclared objects.
var NoPos syntax.Pos

// Universe is the root scope containing all predeclared objects.
var Universe *Scope

var universePanic *Builtin

func init() {
	Universe = NewScope(nil, UniverseScope, NoPos, NoPos, "")

	for _, kind := range []BasicKind{Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64} {
		typ := Typ[kind]
		Universe.Insert(NewTypeName(NoPos, typ.name, typ))
	}

	Universe.Insert(&Const{object: object{name: "true", typ: Typ[UntypedBool]}, val: true})
	Universe.Insert(&Const{object: object{name: "false", typ: Typ[UntypedBool]}, val: false})

	universePanic = NewBuiltin("panic", BuiltinPanic)
	Universe.Insert(universePanic)
}

// UniversePanic returns the predeclared panic builtin.
func UniversePanic() *Builtin { return universePanic }
