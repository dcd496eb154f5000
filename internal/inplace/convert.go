package inplace

import (
	"fmt"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// inplaceExpr type-checks inplace e. Deferring a value that is already
// deferred yields it unchanged.
func (c *Checker) inplaceExpr(x *operand, e *syntax.InplaceExpr) {
	if b, ok := e.X.(*syntax.BlockExpr); ok {
		c.deferredBlock(x, e, b)
		return
	}

	c.expr(x, e.X)
	if !c.isValueOperand(x) {
		return
	}
	if _, ok := x.typ.(*types.Inplace); ok {
		c.consume(x)
		x.setValue(x.typ)
		x.expr = e
		x.pos = e.Pos()
		return
	}
	if types.IsUntyped(x.typ) {
		c.convertUntyped(x, types.DefaultType(x.typ))
		if x.mode == invalid {
			return
		}
	}

	T := x.typ
	if !c.validType(e.Pos(), T, ctxTarget) {
		x.mode = invalid
		return
	}
	if p := c.convert(e, e.X, T); p != nil {
		c.addPlan(p)
	}
	x.setValue(types.NewInplace(T))
	x.expr = e
	x.pos = e.Pos()
}

// deferredBlock type-checks inplace { ... }. Free variables used by value
// are moved into the deferred value; those only borrowed with & stay
// borrowed for the rest of the function.
func (c *Checker) deferredBlock(x *operand, e *syntax.InplaceExpr, b *syntax.BlockExpr) {
	ctx := &blockCtx{
		outer: c.block,
		uses:  make(map[*types.Var]*capture),
	}
	c.block = ctx
	hasReturn := c.hasReturn
	c.hasReturn = false
	ctx.scope = c.openScope(b, types.DeferredScope, b.Body.Rbrace, "")

	c.stmts(b.Body.Init())

	var T types.Type
	if tail := b.Body.Tail(); tail == nil {
		c.errorf(b.Body.Rbrace, "deferred block must end with an expression")
	} else {
		var t operand
		c.expr(&t, tail)
		if t.mode == novalue {
			c.errorf(tail.Pos(), "deferred block must end with an expression, not %s", syntax.ExprString(tail))
		} else if c.isValueOperand(&t) {
			if types.IsUntyped(t.typ) {
				c.convertUntyped(&t, types.DefaultType(t.typ))
			}
			if t.mode != invalid {
				T = t.typ
				if in, ok := T.(*types.Inplace); ok {
					T = in.Elem()
					c.recordConversion(tail, ConvMaterialize)
				}
				c.consume(&t)
			}
		}
	}

	c.closeScope()
	c.hasReturn = hasReturn
	c.block = ctx.outer

	ok := T != nil
	for _, v := range ctx.order {
		cp := ctx.uses[v]
		st := c.vars[v]
		switch v.Type().(type) {
		case *types.Inplace, *types.Result:
			c.errorf(cp.pos, "deferred block cannot capture %s of type %s", v.Name(), v.Type())
			ok = false
			continue
		}
		if cp.byValue {
			if !types.IsCopy(v.Type()) && !st.moved.IsValid() {
				st.moved = e.Pos()
			}
		} else if !st.borrowed.IsValid() {
			st.borrowed = e.Pos()
		}
	}
	if !ok {
		return
	}
	if !c.validType(e.Pos(), T, ctxTarget) {
		return
	}
	if !types.IsSized(T) {
		c.errorf(e.Pos(), "cannot defer block of unsized type %s: its element count must be known when the deferred value is created", T)
		return
	}

	c.addPlan(c.convertBlock(e, b, ctx, T))
	x.setValue(types.NewInplace(T))
	x.expr = e
	x.pos = e.Pos()
}

// convertBlock builds the plan of a deferred block: capture the free
// variables, then run the block at materialization.
func (c *Checker) convertBlock(site *syntax.InplaceExpr, b *syntax.BlockExpr, ctx *blockCtx, T types.Type) *Plan {
	p := c.newPlan(site, T)
	binds := make([]Bind, 0, len(ctx.order))
	for _, v := range ctx.order {
		cp := ctx.uses[v]
		kind, mode := StepVar, Owned
		if !cp.byValue {
			kind, mode = StepAddr, Borrowed
		}
		id := p.Captures.Add(v.Name(), v.Type(), mode)
		p.Steps = append(p.Steps, Step{Kind: kind, ID: id, Var: v})
		binds = append(binds, Bind{Var: v, ID: id, Borrowed: mode == Borrowed})
	}
	p.Ops = []Op{&ExecOp{Block: b, Type: T, Binds: binds}}
	return p
}

// convert builds the plan that constructs e of type T in place for the
// deferral site. It reports an error and returns nil if e has a shape
// that cannot be deferred.
func (c *Checker) convert(site, e syntax.Expr, T types.Type) *Plan {
	u := unparen(e)
	switch u.(type) {
	case *syntax.CompositeLit, *syntax.RepeatLit:
	default:
		if c.info.Types[e].Value == nil {
			if name, ok := u.(*syntax.Name); ok {
				c.errorf(e.Pos(), "cannot defer variable %s: its value is already constructed", name.Value)
				return nil
			}
			if !types.IsBasic(T) {
				c.errorf(e.Pos(), "cannot defer %s: a %s that is already constructed cannot be built in place", syntax.ExprString(e), T)
				return nil
			}
		}
	}

	p := c.newPlan(site, T)
	count, ok := c.decompose(p, e, T, 0, "")
	if !ok {
		return nil
	}
	p.Count = count
	return p
}

// decompose appends the steps and ops that construct e of type T at
// offset off. It returns the element count when T is unsized.
func (c *Checker) decompose(p *Plan, e syntax.Expr, T types.Type, off int64, hint string) (Count, bool) {
	switch u := unparen(e).(type) {
	case *syntax.CompositeLit:
		return c.decomposeLit(p, u, T, off, hint)
	case *syntax.RepeatLit:
		return c.decomposeRepeat(p, u, T, off, hint)
	}

	if !types.IsSized(T) {
		c.errorf(e.Pos(), "unsized value %s must be a literal or a deferred value", syntax.ExprString(e))
		return Count{}, false
	}
	if hint == "" {
		hint = "v"
	}
	id := p.value(hint, e, T)
	p.Ops = append(p.Ops, &StoreOp{Offset: off, ID: id, Type: T})
	return Count{}, true
}

// decomposeField constructs the value v of a field or element. A
// deferred value is composed statically when its plan is known here and
// absorbed when the enclosing deferred value is created otherwise.
func (c *Checker) decomposeField(p *Plan, v syntax.Expr, F types.Type, off int64, hint string) (Count, bool) {
	if c.info.Conversions[v]&ConvMaterialize == 0 {
		return c.decompose(p, v, F, off, hint)
	}
	if sub := c.planOf[unparen(v)]; sub != nil {
		sub.nested = true
		p.Steps = append(p.Steps, Step{Kind: StepNested, Nested: sub})
		p.Ops = append(p.Ops, &NestedOp{Offset: off, Plan: sub})
		return Count{From: sub}, true
	}
	id := p.Captures.Add(hint, types.NewInplace(F), Owned)
	p.Steps = append(p.Steps, Step{Kind: StepInit, ID: id, Expr: v})
	p.Ops = append(p.Ops, &InitOp{Offset: off, ID: id, Type: F, Expr: v})
	return Count{Init: id}, true
}

// decomposeLit constructs an aggregate literal field by field. Omitted
// fields and trailing array elements are zeroed.
func (c *Checker) decomposeLit(p *Plan, lit *syntax.CompositeLit, T types.Type, off int64, hint string) (Count, bool) {
	sizes := c.conf.Sizes
	ok := true
	var count Count

	switch u := T.Underlying().(type) {
	case *types.Struct:
		sizes.ComputeLayout(u)
		last := u.NumFields() - 1
		set := make([]bool, u.NumFields())
		for i, el := range lit.Elems {
			idx, v := i, el
			if kv, isKV := el.(*syntax.KeyValueExpr); isKV {
				idx = u.FieldIndex(kv.Key.(*syntax.Name).Value)
				v = kv.Value
			}
			set[idx] = true
			f := u.Field(idx)
			n, fok := c.decomposeField(p, v, f.Type(), off+u.Offset(idx), f.Name())
			ok = ok && fok
			if idx == last {
				count = n
			}
		}
		for i, f := range u.Fields() {
			if set[i] {
				continue
			}
			if size := sizes.Sizeof(f.Type()); size > 0 {
				p.Ops = append(p.Ops, &ZeroOp{Offset: off + u.Offset(i), Size: size})
			}
		}

	case *types.Array:
		esize := sizes.Sizeof(u.Elem())
		for i, el := range lit.Elems {
			_, eok := c.decomposeField(p, el, u.Elem(), off+int64(i)*esize, fmt.Sprintf("%s[%d]", hint, i))
			ok = ok && eok
		}
		if n := int64(len(lit.Elems)); n < u.Len() && esize > 0 {
			p.Ops = append(p.Ops, &ZeroOp{Offset: off + n*esize, Size: (u.Len() - n) * esize})
		}

	case *types.Slice:
		esize := sizes.Sizeof(u.Elem())
		for i, el := range lit.Elems {
			_, eok := c.decomposeField(p, el, u.Elem(), off+int64(i)*esize, fmt.Sprintf("%s[%d]", hint, i))
			ok = ok && eok
		}
		count = Count{N: int64(len(lit.Elems))}

	default:
		c.errorf(lit.Pos(), "invalid composite literal type %s", T)
		return Count{}, false
	}
	return count, ok
}

// decomposeRepeat constructs T{value; count}. The element is evaluated
// once; a slice count that is not constant is captured.
func (c *Checker) decomposeRepeat(p *Plan, r *syntax.RepeatLit, T types.Type, off int64, hint string) (Count, bool) {
	var elem types.Type
	var count Count
	switch u := T.Underlying().(type) {
	case *types.Array:
		elem = u.Elem()
		count = Count{N: u.Len()}
	case *types.Slice:
		elem = u.Elem()
	default:
		c.errorf(r.Pos(), "invalid repeat literal type %s", T)
		return Count{}, false
	}
	if hint != "" {
		hint += "."
	}

	id := p.value(hint+"elem", r.Value, elem)
	if _, isSlice := T.Underlying().(*types.Slice); isSlice {
		tv := c.info.Types[r.Count]
		if tv.Value != nil {
			n, _ := constantInt64(tv.Value)
			count = Count{N: n}
		} else {
			cid := p.Captures.Add(hint+"len", tv.Type, Owned)
			p.Steps = append(p.Steps, Step{Kind: StepCount, ID: cid, Expr: r.Count})
			count = Count{ID: cid}
		}
	}
	p.Ops = append(p.Ops, &RepeatOp{Offset: off, ID: id, Elem: elem, Count: count})

	if _, isArray := T.Underlying().(*types.Array); isArray {
		return Count{}, true
	}
	return count, true
}
