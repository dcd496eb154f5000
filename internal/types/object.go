package types

import "github.com/you-not-fish/emplace/internal/syntax"

// Object represents a declared entity: variable, type, function, or builtin.
type Object interface {
	Name() string    // object name
	Type() Type      // object type
	Pos() syntax.Pos // declaration position
	Parent() *Scope  // enclosing scope

	setParent(*Scope) // internal: set parent scope
	aObject()         // marker method to restrict implementations
}

// object is the base struct for all objects.
type object struct {
	name   string
	typ    Type
	pos    syntax.Pos
	parent *Scope
}

func (o *object) Name() string       { return o.name }
func (o *object) Type() Type         { return o.typ }
func (o *object) Pos() syntax.Pos    { return o.pos }
func (o *object) Parent() *Scope     { return o.parent }
func (o *object) setParent(s *Scope) { o.parent = s }
func (*object) aObject()             {}

// Var represents a variable, parameter, or struct field.
type Var struct {
	object
	isField bool // true if this is a struct field
}

// NewVar creates a new variable object.
func NewVar(pos syntax.Pos, name string, typ Type) *Var {
	return &Var{object: object{name: name, typ: typ, pos: pos}}
}

// NewField creates a new struct field object.
func NewField(pos syntax.Pos, name string, typ Type) *Var {
	return &Var{object: object{name: name, typ: typ, pos: pos}, isField: true}
}

// IsField reports whether this variable is a struct field.
func (v *Var) IsField() bool {
	return v.isField
}

// SetType sets the variable's type.
// This is called during type checking once the type is resolved.
func (v *Var) SetType(typ Type) {
	v.typ = typ
}

// TypeName represents a declared type name.
type TypeName struct {
	object
}

// NewTypeName creates a new type name object.
func NewTypeName(pos syntax.Pos, name string, typ Type) *TypeName {
	return &TypeName{object: object{name: name, typ: typ, pos: pos}}
}

// FuncObj represents a declared function, a drop hook, or a host function.
type FuncObj struct {
	object
	sig  *Func // function signature (set after construction)
	host bool  // implemented by the host rather than in source
}

// NewFuncObj creates a new function object.
// The signature should be set later using SetSignature.
func NewFuncObj(pos syntax.Pos, name string) *FuncObj {
	return &FuncObj{object: object{name: name, pos: pos}}
}

// NewHostFunc creates a function object implemented by the host.
func NewHostFunc(name string, sig *Func) *FuncObj {
	f := &FuncObj{object: object{name: name}, host: true}
	f.SetSignature(sig)
	return f
}

// Signature returns the function signature.
func (f *FuncObj) Signature() *Func {
	return f.sig
}

// SetSignature sets the function signature.
func (f *FuncObj) SetSignature(sig *Func) {
	f.sig = sig
	f.typ = sig
}

// IsHost reports whether the function is implemented by the host.
func (f *FuncObj) IsHost() bool {
	return f.host
}

// BuiltinKind identifies a builtin function.
type BuiltinKind int

const (
	BuiltinPanic BuiltinKind = iota
)

// Builtin represents a built-in function.
type Builtin struct {
	object
	kind BuiltinKind
}

// NewBuiltin creates a new builtin function object.
func NewBuiltin(name string, kind BuiltinKind) *Builtin {
	return &Builtin{object: object{name: name}, kind: kind}
}

// Kind returns the builtin function kind.
func (b *Builtin) Kind() BuiltinKind {
	return b.kind
}

// Const represents a predeclared constant (true, false).
type Const struct {
	object
	val bool
}

// Value returns the constant's boolean value.
func (c *Const) Value() bool {
	return c.val
}
