package inplace

import (
	"fmt"
	"go/constant"
	"go/token"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// unwindSite is an operation that may trap.
type unwindSite struct {
	pos    syntax.Pos
	reason string
	expr   syntax.Expr
}

// checkUnwindSafety returns an error for every operation that may trap
// while p is materialized. Under Abort no partial value can be observed
// after a trap, so nothing is reported.
func (c *Checker) checkUnwindSafety(p *Plan, policy Policy) []*Error {
	if policy == Abort {
		return nil
	}
	var errs []*Error
	for _, op := range p.Ops {
		ex, ok := op.(*ExecOp)
		if !ok {
			continue
		}
		for _, s := range c.unwindSites(ex.Block.Body) {
			errs = append(errs, &Error{
				Pos: s.pos,
				Msg: fmt.Sprintf("initializer may unwind: %s: %s", s.reason, syntax.ExprString(s.expr)),
			})
		}
	}
	return errs
}

// unwindSites returns the operations in n that may trap, in source
// order. Nested deferred blocks are checked at their own site.
func (c *Checker) unwindSites(n syntax.Node) []unwindSite {
	var sites []unwindSite
	add := func(e syntax.Expr, format string, args ...any) {
		sites = append(sites, unwindSite{pos: e.Pos(), reason: fmt.Sprintf(format, args...), expr: e})
	}
	syntax.Walk(n, func(n syntax.Node) bool {
		if e, ok := n.(syntax.Expr); ok {
			c.creationSites(e, add)
		}
		switch n := n.(type) {
		case *syntax.BlockExpr:
			return false

		case *syntax.Operation:
			if c.info.Types[n].Value != nil {
				return false // folded
			}
			c.operationSites(n, add)

		case *syntax.IndexExpr:
			if c.info.Types[n.Index].Value == nil {
				add(n, "index may be out of bounds")
			}

		case *syntax.CallExpr:
			c.callSites(n, add)
		}
		return true
	})
	return sites
}

// creationSites reports a deferral site at e whose deferred value may
// fail to be created: its environment is allocated from the heap and a
// captured length may be negative. Nested plans are created with the
// enclosing deferred value.
func (c *Checker) creationSites(e syntax.Expr, add func(syntax.Expr, string, ...any)) {
	p := c.planOf[e]
	if p == nil || p.nested {
		return
	}
	env, count := planNeeds(p)
	if env {
		add(e, "allocating the deferred value environment may fail")
	}
	if count {
		add(e, "deferred value length may be negative")
	}
}

// planNeeds reports whether creating p stores values in an environment
// and whether it reads an element count at run time.
func planNeeds(p *Plan) (env, count bool) {
	for _, st := range p.Steps {
		switch st.Kind {
		case StepNested:
			e, n := planNeeds(st.Nested)
			env, count = env || e, count || n
		case StepCount:
			env, count = true, true
		case StepInit:
			// absorbed, not stored
		default:
			env = true
		}
	}
	return env, count
}

// operationSites reports arithmetic that may trap.
func (c *Checker) operationSites(e *syntax.Operation, add func(syntax.Expr, string, ...any)) {
	T := c.typeOf(e.X)
	if T == nil || !types.IsInteger(T) {
		return
	}
	checked := c.conf.Overflow == OverflowChecked
	switch e.Op {
	case syntax.Add, syntax.Mul:
		if e.Y != nil && checked {
			add(e, "checked %s may overflow", e.Op)
		}
	case syntax.Sub:
		if checked {
			add(e, "checked %s may overflow", e.Op)
		}
	case syntax.Div, syntax.Rem:
		d := c.info.Types[e.Y].Value
		switch {
		case d == nil:
			add(e, "%s may divide by zero", e.Op)
		case !types.IsUnsigned(T) && constant.Compare(d, token.EQL, constant.MakeInt64(-1)):
			add(e, "%s by -1 may overflow", e.Op)
		}
	}
}

// callSites reports calls that may trap.
func (c *Checker) callSites(e *syntax.CallExpr, add func(syntax.Expr, string, ...any)) {
	name, ok := unparen(e.Fun).(*syntax.Name)
	if !ok {
		return
	}
	switch obj := c.info.Uses[name].(type) {
	case *types.Builtin:
		add(e, "panic")
	case *types.FuncObj:
		if inner := c.funcUnwind(obj); len(inner) > 0 {
			add(e, "call of %s may unwind (%s at %s)", obj.Name(), inner[0].reason, inner[0].pos)
		}
	case nil:
		if op := c.host().DualOps[name.Value]; op != nil && op.MayUnwind {
			add(e, "dual operation %s may unwind", name.Value)
		} else if hf := c.host().Funcs[name.Value]; hf != nil && hf.MayUnwind {
			add(e, "host function %s may unwind", name.Value)
		}
	}
}

// funcUnwind returns the operations of fn's body that may trap, including
// those of its callees.
func (c *Checker) funcUnwind(fn *types.FuncObj) []unwindSite {
	f := c.fx[fn]
	if f == nil {
		f = &funcFacts{}
		c.fx[fn] = f
	}
	if f.unwindDone || f.unwindBusy {
		return f.unwind
	}
	f.unwindBusy = true
	if decl := c.funcs[fn]; decl != nil && decl.Body != nil {
		f.unwind = c.unwindSites(decl.Body)
	}
	f.unwindBusy = false
	f.unwindDone = true
	return f.unwind
}
