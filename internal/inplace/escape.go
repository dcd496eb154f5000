package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// checkReturnEscape reports a returned deferred value that holds a
// pointer into the returning function's frame.
func (c *Checker) checkReturnEscape(s *syntax.ReturnStmt, T types.Type) {
	if r, ok := T.(*types.Result); ok {
		T = r.Elem()
	}
	if !types.IsInplace(T) {
		return
	}
	if name, ok := c.pointerCapture(s.Result); ok {
		c.errorf(s.Result.Pos(), "cannot return %s: deferred value holds a pointer to local %s",
			syntax.ExprString(s.Result), name)
	}
}

// pointerCapture reports whether the deferred value e captures an
// address, and the variable it came from.
func (c *Checker) pointerCapture(e syntax.Expr) (string, bool) {
	e = unparen(e)
	if p := c.planOf[e]; p != nil {
		return c.planPointer(p)
	}
	switch e := e.(type) {
	case *syntax.InplaceExpr:
		return c.pointerCapture(e.X)
	case *syntax.TryExpr:
		return c.pointerCapture(e.X)
	case *syntax.Name:
		v, ok := c.info.Uses[e].(*types.Var)
		if !ok {
			return "", false
		}
		st := c.vars[v]
		if st == nil {
			return "", false
		}
		for _, src := range st.srcs {
			if name, ok := c.pointerCapture(src); ok {
				return name, true
			}
		}
	case *syntax.CallExpr:
		for _, arg := range e.Args {
			if T := c.typeOf(arg); T != nil && types.IsPointer(T) {
				if root := rootName(arg); root != nil {
					return root.Value, true
				}
				return syntax.ExprString(arg), true
			}
			if types.IsInplace(c.typeOf(arg)) {
				if name, ok := c.pointerCapture(arg); ok {
					return name, true
				}
			}
		}
	}
	return "", false
}

// planPointer reports whether a plan captures an address.
func (c *Checker) planPointer(p *Plan) (string, bool) {
	for _, st := range p.Steps {
		switch st.Kind {
		case StepAddr:
			return st.Var.Name(), true
		case StepVar:
			if types.IsPointer(st.Var.Type()) {
				return st.Var.Name(), true
			}
		case StepInit:
			if name, ok := c.pointerCapture(st.Expr); ok {
				return name, true
			}
		case StepNested:
			if name, ok := c.planPointer(st.Nested); ok {
				return name, true
			}
		}
	}
	return "", false
}
