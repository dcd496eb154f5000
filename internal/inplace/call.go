package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// call type-checks a call of a source function, a host function, a dual
// operation, or panic.
func (c *Checker) call(x *operand, e *syntax.CallExpr) {
	if sel, ok := unparen(e.Fun).(*syntax.SelectorExpr); ok {
		c.errorf(sel.Sel.Pos(), "methods are not supported: cannot call %s", syntax.ExprString(sel))
		c.useArgs(e.Args)
		return
	}

	c.expr(x, e.Fun)
	switch x.mode {
	case invalid:
		c.useArgs(e.Args)
		return

	case builtin:
		c.panicCall(x, e)

	case hostfunc:
		if x.dual != nil {
			c.dualCall(x, e, x.dual)
		} else {
			c.hostCall(x, e, x.host)
		}

	default:
		sig, ok := x.typ.(*types.Func)
		if !ok {
			c.invalidOp(x, "cannot call non-function %s", syntax.ExprString(e.Fun))
			x.mode = invalid
			c.useArgs(e.Args)
			return
		}
		c.funcCall(x, e, sig)
	}
	x.expr = e
	x.pos = e.Pos()
}

// funcCall checks the arguments of a source function call.
func (c *Checker) funcCall(x *operand, e *syntax.CallExpr, sig *types.Func) {
	if len(e.Args) != sig.NumParams() {
		c.errorf(e.Pos(), "wrong number of arguments in call to %s: have %d, want %d",
			syntax.ExprString(e.Fun), len(e.Args), sig.NumParams())
		c.useArgs(e.Args)
		x.mode = invalid
		return
	}
	ok := true
	for i, arg := range e.Args {
		var a operand
		c.expr(&a, arg)
		c.assignment(&a, sig.Param(i).Type(), "argument")
		if a.mode == invalid {
			ok = false
		}
	}
	if !ok {
		x.mode = invalid
		return
	}
	if sig.Result() == nil {
		x.mode = novalue
		x.typ = nil
		return
	}
	x.setValue(sig.Result())
}

// hostCall checks the arguments of a host function call. A nil parameter
// type accepts any sized value.
func (c *Checker) hostCall(x *operand, e *syntax.CallExpr, hf *HostFunc) {
	n := len(hf.Params)
	if len(e.Args) != n && !(hf.Variadic && n > 0 && len(e.Args) >= n-1) {
		c.errorf(e.Pos(), "wrong number of arguments in call to %s: have %d, want %d", hf.Name, len(e.Args), n)
		c.useArgs(e.Args)
		x.mode = invalid
		return
	}
	ok := true
	for i, arg := range e.Args {
		var a operand
		c.expr(&a, arg)
		var T types.Type
		if i < n {
			T = hf.Params[i]
		} else {
			T = hf.Params[n-1]
		}
		if T == nil {
			c.anyArg(&a)
		} else {
			c.assignment(&a, T, "argument")
		}
		if a.mode == invalid {
			ok = false
		}
	}
	if !ok {
		x.mode = invalid
		return
	}
	if hf.Result == nil {
		x.mode = novalue
		x.typ = nil
		return
	}
	x.setValue(hf.Result)
}

// anyArg checks an argument passed to a parameter accepting any sized
// value.
func (c *Checker) anyArg(a *operand) {
	if !c.isValueOperand(a) {
		return
	}
	if types.IsUntyped(a.typ) {
		c.convertUntyped(a, types.DefaultType(a.typ))
		return
	}
	switch a.typ.(type) {
	case *types.Inplace, *types.Result:
		c.errorf(a.pos, "cannot pass %s of type %s to a host function", syntax.ExprString(a.expr), a.typ)
		a.mode = invalid
		return
	}
	if !types.IsSized(a.typ) {
		c.errorf(a.pos, "unsized value of type %s must be constructed in place", a.typ)
		a.mode = invalid
		return
	}
	c.consume(a)
}

// dualCall checks a call of a dual operation and records which form the
// call site resolves to.
func (c *Checker) dualCall(x *operand, e *syntax.CallExpr, op *DualOp) {
	if len(e.Args) != 1 {
		c.errorf(e.Pos(), "wrong number of arguments in call to %s: have %d, want 1", op.Name, len(e.Args))
		c.useArgs(e.Args)
		x.mode = invalid
		return
	}
	var a operand
	c.expr(&a, e.Args[0])
	if !c.isValueOperand(&a) {
		x.mode = invalid
		return
	}
	if types.IsUntyped(a.typ) {
		T := op.Elem
		if T == nil {
			T = types.DefaultType(a.typ)
		}
		c.convertUntyped(&a, T)
		if a.mode == invalid {
			x.mode = invalid
			return
		}
	}
	form, _, err := Resolve(op, a.typ)
	if err != nil {
		c.errorf(a.pos, "cannot use %s in call to %s: %v", syntax.ExprString(a.expr), op.Name, err)
		x.mode = invalid
		return
	}
	c.consume(&a)
	c.info.Dispatch[e] = form

	if op.Result == nil {
		x.mode = novalue
		x.typ = nil
		return
	}
	x.setValue(op.Result)
}

// panicCall checks a call of the panic builtin.
func (c *Checker) panicCall(x *operand, e *syntax.CallExpr) {
	if len(e.Args) > 1 {
		c.errorf(e.Pos(), "too many arguments in call to panic")
		c.useArgs(e.Args)
		x.mode = invalid
		return
	}
	if len(e.Args) == 1 {
		var a operand
		c.expr(&a, e.Args[0])
		if !c.isValueOperand(&a) {
			x.mode = invalid
			return
		}
		if types.IsUntyped(a.typ) {
			c.convertUntyped(&a, types.DefaultType(a.typ))
		}
		if a.mode != invalid && !types.IsBasic(a.typ) {
			c.errorf(a.pos, "panic argument must be a basic value, not %s", a.typ)
			x.mode = invalid
			return
		}
	}
	x.mode = novalue
	x.typ = nil
}

// useArgs checks arguments of an invalid call for errors.
func (c *Checker) useArgs(args []syntax.Expr) {
	for _, arg := range args {
		var a operand
		c.expr(&a, arg)
	}
}
