package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// funcFacts holds what is known about calling a source function. Facts
// are computed on demand once all bodies have been checked. Recursive
// calls see the facts computed so far.
type funcFacts struct {
	done, busy bool
	effects    bool // calling it runs observable effects
	deferred   bool // a deferred value it returns runs effects when materialized

	unwindDone, unwindBusy bool
	unwind                 []unwindSite
}

// facts returns the effect facts of fn.
func (c *Checker) facts(fn *types.FuncObj) *funcFacts {
	f := c.fx[fn]
	if f == nil {
		f = &funcFacts{}
		c.fx[fn] = f
	}
	if f.done || f.busy {
		return f
	}
	f.busy = true
	if decl := c.funcs[fn]; decl != nil && decl.Body != nil {
		f.effects = c.nodeFx(decl.Body)
		if returnsDeferred(fn.Signature()) {
			syntax.Walk(decl.Body, func(n syntax.Node) bool {
				switch n := n.(type) {
				case *syntax.BlockExpr:
					return false
				case *syntax.ReturnStmt:
					if n.Result != nil && c.inplaceFx(n.Result) {
						f.deferred = true
					}
				}
				return !f.deferred
			})
		}
	}
	f.busy = false
	f.done = true
	return f
}

// returnsDeferred reports whether sig returns a deferred value, possibly
// wrapped in a Result.
func returnsDeferred(sig *types.Func) bool {
	if sig == nil {
		return false
	}
	T := sig.Result()
	if r, ok := T.(*types.Result); ok {
		T = r.Elem()
	}
	return types.IsInplace(T)
}

// nodeFx reports whether evaluating n runs observable effects: calls of
// effectful functions, dual operations, panic, ?, or materializing a
// deferred value that has deferred effects. Deferred blocks inside n do
// not run.
func (c *Checker) nodeFx(n syntax.Node) bool {
	found := false
	syntax.Walk(n, func(n syntax.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *syntax.BlockExpr:
			return false
		case *syntax.TryExpr:
			found = true
		case *syntax.CallExpr:
			found = c.callFx(n)
		}
		if e, ok := n.(syntax.Expr); ok && !found {
			found = c.info.Conversions[e]&ConvMaterialize != 0 && c.inplaceFx(e)
		}
		return !found
	})
	return found
}

// callFx reports whether the call itself runs observable effects.
// Deferred values passed to a call may be materialized by it.
func (c *Checker) callFx(e *syntax.CallExpr) bool {
	for _, arg := range e.Args {
		if types.IsInplace(c.typeOf(arg)) && c.inplaceFx(arg) {
			return true
		}
	}
	name, ok := unparen(e.Fun).(*syntax.Name)
	if !ok {
		return false
	}
	switch obj := c.info.Uses[name].(type) {
	case *types.Builtin:
		return true
	case *types.FuncObj:
		return c.facts(obj).effects
	case nil:
		if op := c.host().DualOps[name.Value]; op != nil {
			return op.Effects
		}
		if hf := c.host().Funcs[name.Value]; hf != nil {
			return hf.Effects
		}
	}
	return false
}

// inplaceFx reports whether materializing the deferred value e runs
// observable effects. Values whose origin is unknown are assumed to.
func (c *Checker) inplaceFx(e syntax.Expr) bool {
	e = unparen(e)
	if p := c.planOf[e]; p != nil {
		return c.planFx(p)
	}
	switch e := e.(type) {
	case *syntax.InplaceExpr:
		return c.inplaceFx(e.X)
	case *syntax.TryExpr:
		return c.inplaceFx(e.X)
	case *syntax.Name:
		v, ok := c.info.Uses[e].(*types.Var)
		if !ok {
			return true
		}
		st := c.vars[v]
		if st == nil || st.param {
			return true
		}
		for _, src := range st.srcs {
			if c.inplaceFx(src) {
				return true
			}
		}
		return false
	case *syntax.CallExpr:
		if name, ok := unparen(e.Fun).(*syntax.Name); ok {
			if fn, ok := c.info.Uses[name].(*types.FuncObj); ok {
				return c.facts(fn).deferred
			}
		}
	}
	return true
}

// planFx reports whether materializing a value built by p runs
// observable effects.
func (c *Checker) planFx(p *Plan) bool {
	for _, op := range p.Ops {
		switch op := op.(type) {
		case *InitOp:
			if c.inplaceFx(op.Expr) {
				return true
			}
		case *NestedOp:
			if c.planFx(op.Plan) {
				return true
			}
		case *ExecOp:
			if c.nodeFx(op.Block.Body) {
				return true
			}
		}
	}
	return false
}

// execFx reports whether the deferred blocks of p itself have effects.
func (c *Checker) execFx(p *Plan) bool {
	for _, op := range p.Ops {
		if op, ok := op.(*ExecOp); ok && c.nodeFx(op.Block.Body) {
			return true
		}
	}
	return false
}

// checkOrder reports eager steps with effects that follow a part whose
// deferred effects would run, in source order, before them. Deferring
// the value would run them the other way around.
func (c *Checker) checkOrder(p *Plan) {
	var first syntax.Expr
	var walk func(q *Plan)
	walk = func(q *Plan) {
		for _, st := range q.Steps {
			switch st.Kind {
			case StepNested:
				walk(st.Nested)
				if first == nil && c.execFx(st.Nested) {
					first = st.Nested.Expr
				}
				continue
			case StepVar, StepAddr:
				continue
			}
			if first != nil && c.nodeFx(st.Expr) {
				c.errorf(st.Expr.Pos(), "deferral would reorder side effects: %s would run before the deferred effects of %s",
					syntax.ExprString(st.Expr), syntax.ExprString(first))
			}
			if st.Kind == StepInit && first == nil && c.inplaceFx(st.Expr) {
				first = st.Expr
			}
		}
	}
	walk(p)
}
