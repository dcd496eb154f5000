package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/you-not-fish/emplace/internal/syntax"
)

// ScopeKind classifies a scope.
type ScopeKind int

const (
	UniverseScope ScopeKind = iota
	PackageScope
	FuncScope
	BlockScope
	DeferredScope // body of inplace { ... }
)

var scopeKindNames = [...]string{
	UniverseScope: "universe",
	PackageScope:  "package",
	FuncScope:     "function",
	BlockScope:    "block",
	DeferredScope: "deferred block",
}

func (k ScopeKind) String() string {
	if int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}
	return fmt.Sprintf("ScopeKind(%d)", int(k))
}

// Scope is a lexical scope. Scopes form a tree rooted at Universe.
// A deferred block scope separates the variables its block declares from
// the free variables it captures.
type Scope struct {
	parent   *Scope
	children []*Scope
	kind     ScopeKind
	elems    map[string]Object
	pos, end syntax.Pos
	name     string // function name, or "" for other scopes
}

// NewScope creates a scope of the given kind nested in parent.
func NewScope(parent *Scope, kind ScopeKind, pos, end syntax.Pos, name string) *Scope {
	s := &Scope{
		parent: parent,
		kind:   kind,
		elems:  make(map[string]Object),
		pos:    pos,
		end:    end,
		name:   name,
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

func (s *Scope) Parent() *Scope     { return s.parent }
func (s *Scope) Children() []*Scope { return s.children }
func (s *Scope) Kind() ScopeKind    { return s.kind }
func (s *Scope) Pos() syntax.Pos    { return s.pos }
func (s *Scope) End() syntax.Pos    { return s.end }

// Lookup returns the object named name in s itself, or nil.
func (s *Scope) Lookup(name string) Object {
	return s.elems[name]
}

// LookupParent looks name up in s and its parents. It returns the object
// and the scope that declares it, or (nil, nil).
func (s *Scope) LookupParent(name string) (Object, *Scope) {
	for scope := s; scope != nil; scope = scope.parent {
		if obj := scope.elems[name]; obj != nil {
			return obj, scope
		}
	}
	return nil, nil
}

// Insert inserts obj into s. If s already holds an object with the same
// name, Insert leaves s unchanged and returns that object.
func (s *Scope) Insert(obj Object) Object {
	name := obj.Name()
	if existing := s.elems[name]; existing != nil {
		return existing
	}
	s.elems[name] = obj
	obj.setParent(s)
	return nil
}

// Deferred returns the innermost deferred block scope enclosing s within
// its function, or nil.
func (s *Scope) Deferred() *Scope {
	for scope := s; scope != nil; scope = scope.parent {
		switch scope.kind {
		case DeferredScope:
			return scope
		case FuncScope, PackageScope, UniverseScope:
			return nil
		}
	}
	return nil
}

// Captures reports whether a variable declared in scope decl is free in
// the deferred block scope s, that is, declared outside it but inside the
// same function.
func (s *Scope) Captures(decl *Scope) bool {
	if s.kind != DeferredScope || decl == nil {
		return false
	}
	for scope := s.parent; scope != nil; scope = scope.parent {
		if scope == decl {
			return decl.kind != PackageScope && decl.kind != UniverseScope
		}
	}
	return false
}

// Names returns the names declared in s in sorted order.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.elems))
	for name := range s.elems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the scope tree rooted at s, for debugging.
func (s *Scope) String() string {
	var buf strings.Builder
	s.writeTo(&buf, 0)
	return buf.String()
}

func (s *Scope) writeTo(buf *strings.Builder, indent int) {
	prefix := strings.Repeat("  ", indent)
	fmt.Fprintf(buf, "%s%s", prefix, s.kind)
	if s.name != "" {
		fmt.Fprintf(buf, " %s", s.name)
	}
	buf.WriteString(" {\n")
	for _, name := range s.Names() {
		fmt.Fprintf(buf, "%s  %s: %s\n", prefix, name, s.elems[name].Type())
	}
	for _, child := range s.children {
		child.writeTo(buf, indent+1)
	}
	fmt.Fprintf(buf, "%s}\n", prefix)
}
