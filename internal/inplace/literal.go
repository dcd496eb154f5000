package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// compositeLit type-checks a struct, array, or slice literal.
func (c *Checker) compositeLit(x *operand, e *syntax.CompositeLit) {
	T := c.resolveType(e.Type)
	if T == nil || !c.validType(e.Type.Pos(), T, ctxTarget) {
		c.useElems(e.Elems)
		return
	}

	switch u := T.Underlying().(type) {
	case *types.Struct:
		if !c.structLit(e, T, u) {
			return
		}
	case *types.Array:
		if !c.arrayLit(e, u.Elem(), u.Len()) {
			return
		}
	case *types.Slice:
		if !c.arrayLit(e, u.Elem(), -1) {
			return
		}
	default:
		c.errorf(e.Pos(), "invalid composite literal type %s", T)
		c.useElems(e.Elems)
		return
	}
	x.setValue(T)
}

// structLit checks the elements of a struct literal. Keyed literals may
// omit fields; positional ones must list all of them.
func (c *Checker) structLit(e *syntax.CompositeLit, T types.Type, st *types.Struct) bool {
	if len(e.Elems) == 0 {
		return true
	}
	ok := true
	fields := st.Fields()

	if _, keyed := e.Elems[0].(*syntax.KeyValueExpr); keyed {
		seen := make(map[int]bool)
		for _, el := range e.Elems {
			kv, isKV := el.(*syntax.KeyValueExpr)
			if !isKV {
				c.errorf(el.Pos(), "mixture of field:value and value elements in struct literal")
				ok = false
				continue
			}
			key, isName := kv.Key.(*syntax.Name)
			if !isName {
				c.errorf(kv.Key.Pos(), "invalid field name %s in struct literal", syntax.ExprString(kv.Key))
				c.useElems([]syntax.Expr{kv.Value})
				ok = false
				continue
			}
			i := st.FieldIndex(key.Value)
			if i < 0 {
				c.errorf(key.Pos(), "unknown field %s in struct literal of type %s", key.Value, T)
				c.useElems([]syntax.Expr{kv.Value})
				ok = false
				continue
			}
			if seen[i] {
				c.errorf(key.Pos(), "duplicate field name %s in struct literal", key.Value)
				ok = false
				continue
			}
			seen[i] = true
			c.recordUse(key, fields[i])

			var v operand
			c.expr(&v, kv.Value)
			c.assignment(&v, fields[i].Type(), "struct literal")
			ok = ok && v.mode != invalid
		}
		return ok
	}

	for i, el := range e.Elems {
		if _, isKV := el.(*syntax.KeyValueExpr); isKV {
			c.errorf(el.Pos(), "mixture of field:value and value elements in struct literal")
			ok = false
			continue
		}
		if i >= len(fields) {
			c.errorf(el.Pos(), "too many values in struct literal of type %s", T)
			return false
		}
		var v operand
		c.expr(&v, el)
		c.assignment(&v, fields[i].Type(), "struct literal")
		ok = ok && v.mode != invalid
	}
	if len(e.Elems) < len(fields) {
		c.errorf(e.Pos(), "too few values in struct literal of type %s", T)
		return false
	}
	return ok
}

// arrayLit checks the elements of an array literal of length n, or of a
// slice literal if n < 0.
func (c *Checker) arrayLit(e *syntax.CompositeLit, elem types.Type, n int64) bool {
	ok := true
	for i, el := range e.Elems {
		if _, isKV := el.(*syntax.KeyValueExpr); isKV {
			c.errorf(el.Pos(), "keyed elements are not supported in array literals")
			ok = false
			continue
		}
		if n >= 0 && int64(i) >= n {
			c.errorf(el.Pos(), "index %d out of bounds [0:%d]", i, n)
			return false
		}
		var v operand
		c.expr(&v, el)
		c.assignment(&v, elem, "array literal")
		ok = ok && v.mode != invalid
	}
	return ok
}

// repeatLit type-checks T{value; count}.
func (c *Checker) repeatLit(x *operand, e *syntax.RepeatLit) {
	T := c.resolveType(e.Type)
	if T == nil || !c.validType(e.Type.Pos(), T, ctxTarget) {
		c.useElems([]syntax.Expr{e.Value, e.Count})
		return
	}

	var elem types.Type
	length := int64(-1)
	switch u := T.Underlying().(type) {
	case *types.Array:
		elem, length = u.Elem(), u.Len()
	case *types.Slice:
		elem = u.Elem()
	default:
		c.errorf(e.Pos(), "invalid repeat literal type %s", T)
		c.useElems([]syntax.Expr{e.Value, e.Count})
		return
	}

	var v operand
	c.expr(&v, e.Value)
	c.assignment(&v, elem, "repeat literal")
	if v.mode == invalid {
		c.useElems([]syntax.Expr{e.Count})
		return
	}
	if c.info.Conversions[e.Value]&ConvMaterialize != 0 {
		c.errorf(e.Value.Pos(), "cannot repeat deferred value %s", syntax.ExprString(e.Value))
		return
	}
	if !types.IsCopy(elem) {
		c.errorf(e.Value.Pos(), "repeat of non-copyable element type %s", elem)
		return
	}

	var n operand
	c.expr(&n, e.Count)
	if !c.isValueOperand(&n) {
		return
	}
	if !types.IsInteger(n.typ) {
		c.errorf(e.Count.Pos(), "repeat count %s must be integer", syntax.ExprString(e.Count))
		return
	}
	if n.mode == constant_ {
		count, ok := c.constInt64(&n)
		if !ok {
			return
		}
		if count < 0 {
			c.errorf(e.Count.Pos(), "negative repeat count %d", count)
			return
		}
		if length >= 0 && count != length {
			c.errorf(e.Count.Pos(), "repeat count %d does not match array length %d", count, length)
			return
		}
		if types.IsUntyped(n.typ) {
			c.convertUntyped(&n, types.Typ[types.Int64])
		}
	} else if length >= 0 {
		c.errorf(e.Count.Pos(), "repeat count of array literal must be constant")
		return
	}
	x.setValue(T)
}

// useElems checks the elements of an invalid literal for errors.
func (c *Checker) useElems(elems []syntax.Expr) {
	for _, el := range elems {
		if kv, ok := el.(*syntax.KeyValueExpr); ok {
			el = kv.Value
		}
		var a operand
		c.expr(&a, el)
	}
}
