package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// typExpr evaluates a type expression and sets x to the resulting type.
// It only resolves; where a type may appear is checked by validType.
func (c *Checker) typExpr(x *operand, e syntax.Expr) {
	x.mode = typexpr
	x.pos = e.Pos()
	x.expr = e

	switch e := e.(type) {
	case *syntax.Name:
		c.typeName(x, e)
	case *syntax.ArrayType:
		c.arrayType(x, e)
	case *syntax.SliceType:
		elem := c.resolveType(e.Elem)
		if elem == nil {
			x.mode = invalid
			return
		}
		x.typ = types.NewSlice(elem)
	case *syntax.PointerType:
		base := c.resolveType(e.Base)
		if base == nil {
			x.mode = invalid
			return
		}
		x.typ = types.NewPointer(base)
	case *syntax.StructType:
		c.structType(x, e)
	case *syntax.InplaceType:
		elem := c.resolveType(e.Elem)
		if elem == nil {
			x.mode = invalid
			return
		}
		x.typ = types.NewInplace(elem)
	case *syntax.DualType:
		elem := c.resolveType(e.Elem)
		if elem == nil {
			x.mode = invalid
			return
		}
		x.typ = types.NewDual(elem)
	case *syntax.ResultType:
		elem := c.resolveType(e.Elem)
		if elem == nil {
			x.mode = invalid
			return
		}
		x.typ = types.NewResult(elem)
	default:
		c.errorf(e.Pos(), "%s is not a type", syntax.ExprString(e))
		x.mode = invalid
	}
}

// typeName resolves a type name.
func (c *Checker) typeName(x *operand, name *syntax.Name) {
	obj := c.resolve(name)
	if obj == nil {
		x.mode = invalid
		return
	}

	tn, ok := obj.(*types.TypeName)
	if !ok || tn.Type() == nil {
		c.errorf(name.Pos(), "%s is not a type", name.Value)
		x.mode = invalid
		return
	}
	x.typ = tn.Type()
}

// arrayType resolves an array type [N]Elem.
func (c *Checker) arrayType(x *operand, e *syntax.ArrayType) {
	var length int64
	var lenOp operand
	c.expr(&lenOp, e.Len)
	switch {
	case lenOp.mode == invalid:
	case lenOp.mode != constant_:
		c.errorf(e.Len.Pos(), "array length must be a constant expression")
	default:
		if n, ok := c.constInt64(&lenOp); ok {
			if n < 0 {
				c.errorf(e.Len.Pos(), "array length must be non-negative")
			} else {
				length = n
			}
		}
	}

	elem := c.resolveType(e.Elem)
	if elem == nil {
		x.mode = invalid
		return
	}
	x.typ = types.NewArray(length, elem)
}

// structType resolves a struct type.
func (c *Checker) structType(x *operand, e *syntax.StructType) {
	fields := make([]*types.Var, len(e.Fields))
	seen := make(map[string]bool)

	for i, field := range e.Fields {
		fieldType := c.resolveType(field.Type)
		if fieldType == nil {
			x.mode = invalid
			return
		}

		name := field.Name.Value
		if seen[name] {
			c.errorf(field.Name.Pos(), "duplicate field %s", name)
		}
		seen[name] = true

		fields[i] = types.NewField(field.Pos(), name, fieldType)
	}

	x.typ = types.NewStruct(fields)
}

// typeCtx names the places a type can appear.
type typeCtx int

const (
	ctxField  typeCtx = iota // struct field or array element
	ctxTail                  // last struct field: may be unsized
	ctxParam                 // function parameter
	ctxResult                // function result
	ctxLocal                 // local variable
	ctxTarget                // target of inplace T
)

// validType reports whether T may appear in context ctx, reporting an
// error at pos if not. Named types are validated at their declaration.
func (c *Checker) validType(pos syntax.Pos, T types.Type, ctx typeCtx) bool {
	switch t := T.(type) {
	case *types.Pointer:
		if ctx != ctxParam && ctx != ctxLocal {
			c.errorf(pos, "pointer type %s not allowed here (pointers may only be locals or parameters)", T)
			return false
		}
		if !types.IsSized(t.Elem()) {
			c.errorf(pos, "pointer to unsized type %s", t.Elem())
			return false
		}
		return c.validType(pos, t.Elem(), ctxField)

	case *types.Inplace:
		if ctx == ctxField || ctx == ctxTail || ctx == ctxTarget {
			c.errorf(pos, "inplace type %s not allowed here", T)
			return false
		}
		return c.validType(pos, t.Elem(), ctxTarget)

	case *types.Dual:
		c.errorf(pos, "%s is only valid as a parameter of a host dual operation", T)
		return false

	case *types.Result:
		if ctx != ctxResult && ctx != ctxLocal {
			c.errorf(pos, "result type %s not allowed here", T)
			return false
		}
		switch e := t.Elem().(type) {
		case *types.Inplace:
			return c.validType(pos, e.Elem(), ctxTarget)
		case *types.Basic:
			return true
		}
		c.errorf(pos, "invalid result type %s (element must be a basic type or inplace type)", T)
		return false

	case *types.Named:
		if !types.IsSized(t) && ctx != ctxTail && ctx != ctxTarget {
			c.errorf(pos, "unsized type %s not allowed here", T)
			return false
		}
		return true
	}

	switch t := T.Underlying().(type) {
	case *types.Basic:
		return true

	case *types.Array:
		if !types.IsSized(t.Elem()) {
			c.errorf(pos, "array element type %s is unsized", t.Elem())
			return false
		}
		return c.validType(pos, t.Elem(), ctxField)

	case *types.Slice:
		if ctx != ctxTail && ctx != ctxTarget {
			c.errorf(pos, "unsized type %s not allowed here", T)
			return false
		}
		if !types.IsSized(t.Elem()) {
			c.errorf(pos, "array element type %s is unsized", t.Elem())
			return false
		}
		return c.validType(pos, t.Elem(), ctxField)

	case *types.Struct:
		ok := true
		for i, f := range t.Fields() {
			fctx := ctxField
			if i == t.NumFields()-1 {
				fctx = ctxTail
			}
			if !c.validType(f.Pos(), f.Type(), fctx) {
				ok = false
			}
		}
		if ok && !types.IsSized(t) && ctx != ctxTail && ctx != ctxTarget {
			c.errorf(pos, "unsized type %s not allowed here", T)
			return false
		}
		return ok
	}

	c.errorf(pos, "invalid type %s", T)
	return false
}

// checkTypeCycles reports named types that contain themselves by value,
// then validates and lays out the remaining ones.
func (c *Checker) checkTypeCycles(named []*types.Named) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*types.Named]int)
	bad := make(map[*types.Named]bool)

	var visit func(n *types.Named) bool
	var walk func(T types.Type) bool
	visit = func(n *types.Named) bool {
		switch state[n] {
		case visiting:
			return false
		case done:
			return !bad[n]
		}
		state[n] = visiting
		ok := n.Underlying() != nil && walk(n.Underlying())
		state[n] = done
		if !ok {
			bad[n] = true
		}
		return ok
	}
	walk = func(T types.Type) bool {
		switch t := T.(type) {
		case *types.Named:
			return visit(t)
		case *types.Array:
			return walk(t.Elem())
		case *types.Slice:
			return walk(t.Elem())
		case *types.Struct:
			for _, f := range t.Fields() {
				if !walk(f.Type()) {
					return false
				}
			}
		}
		return true
	}

	for _, n := range named {
		if !visit(n) && n.Underlying() != nil {
			c.errorf(n.Obj().Pos(), "invalid recursive type %s", n)
		}
	}
	for _, n := range named {
		if bad[n] {
			// keep later layout queries finite
			n.SetUnderlying(types.NewStruct(nil))
			continue
		}
		if c.validType(n.Obj().Pos(), n.Underlying(), ctxTarget) {
			if st, ok := n.Underlying().(*types.Struct); ok {
				c.conf.Sizes.ComputeLayout(st)
			}
		}
	}
}
