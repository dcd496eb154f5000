package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// stmts checks a list of statements.
func (c *Checker) stmts(list []syntax.Stmt) {
	reported := false
	for _, s := range list {
		if c.hasReturn && !reported {
			if _, empty := s.(*syntax.EmptyStmt); !empty {
				c.errorf(s.Pos(), "unreachable code after return")
				reported = true
			}
		}
		c.stmt(s)
	}
}

// stmt checks a single statement.
func (c *Checker) stmt(s syntax.Stmt) {
	switch s := s.(type) {
	case *syntax.EmptyStmt:
		// Nothing to check

	case *syntax.ExprStmt:
		c.exprStmt(s)

	case *syntax.AssignStmt:
		c.assignStmt(s)

	case *syntax.VarStmt:
		c.varStmt(s)

	case *syntax.BlockStmt:
		c.openScope(s, types.BlockScope, s.Rbrace, "")
		c.stmts(s.Stmts)
		c.closeScope()

	case *syntax.ReturnStmt:
		c.returnStmt(s)

	default:
		c.errorf(s.Pos(), "unexpected statement %T", s)
	}
}

// exprStmt checks an expression statement. Its value, if any, is dropped.
func (c *Checker) exprStmt(s *syntax.ExprStmt) {
	var x operand
	c.expr(&x, s.X)
	switch x.mode {
	case invalid, novalue:
		return
	case typexpr, builtin, hostfunc:
		c.errorf(s.X.Pos(), "%s is not used", syntax.ExprString(s.X))
		return
	}
	if !c.isValueOperand(&x) {
		return
	}
	if !types.IsInplace(x.typ) && !types.IsSized(x.typ) {
		c.errorf(s.X.Pos(), "unsized value of type %s must be constructed in place", x.typ)
		return
	}
	c.consume(&x)
}

// varStmt checks a local variable declaration.
func (c *Checker) varStmt(s *syntax.VarStmt) {
	var typ types.Type
	if s.Type != nil {
		typ = c.resolveType(s.Type)
		if typ == nil || !c.validType(s.Type.Pos(), typ, ctxLocal) {
			c.declareLocal(s.Name, types.NewVar(s.Name.Pos(), s.Name.Value, nil), nil)
			return
		}
	}

	if s.Value != nil {
		var x operand
		c.expr(&x, s.Value)
		if typ == nil {
			typ = c.inferType(&x, s.Value)
		} else {
			c.assignment(&x, typ, "variable declaration")
		}
	} else if typ != nil && !isZeroable(typ) {
		c.errorf(s.Name.Pos(), "variable %s of type %s requires an initializer", s.Name.Value, typ)
	}

	if typ == nil && s.Value == nil {
		c.errorf(s.Pos(), "missing type or initializer in variable declaration")
	}
	c.declareLocal(s.Name, types.NewVar(s.Name.Pos(), s.Name.Value, typ), s.Value)
}

// inferType returns the type of a variable initialized with x.
func (c *Checker) inferType(x *operand, e syntax.Expr) types.Type {
	if !c.isValueOperand(x) {
		return nil
	}
	if types.IsUntyped(x.typ) {
		c.convertUntyped(x, types.DefaultType(x.typ))
	}
	if !c.validType(e.Pos(), x.typ, ctxLocal) {
		return nil
	}
	c.consume(x)
	return x.typ
}

// isValueOperand reports whether x can be used as a value, reporting an
// error if not.
func (c *Checker) isValueOperand(x *operand) bool {
	switch x.mode {
	case invalid:
		return false
	case novalue:
		c.errorf(x.pos, "%s (no value) used as value", syntax.ExprString(x.expr))
	case typexpr:
		c.errorf(x.pos, "%s is not an expression", syntax.ExprString(x.expr))
	case builtin, hostfunc:
		c.errorf(x.pos, "%s must be called", syntax.ExprString(x.expr))
	default:
		if _, ok := x.typ.(*types.Func); ok {
			c.errorf(x.pos, "cannot use function %s as value", syntax.ExprString(x.expr))
			break
		}
		return true
	}
	x.mode = invalid
	return false
}

// assignStmt checks an assignment or short variable declaration.
func (c *Checker) assignStmt(s *syntax.AssignStmt) {
	if s.Op == syntax.Define {
		name, ok := s.LHS.(*syntax.Name)
		if !ok {
			c.errorf(s.LHS.Pos(), "non-name %s on left side of :=", syntax.ExprString(s.LHS))
			return
		}
		var x operand
		c.expr(&x, s.RHS)
		typ := c.inferType(&x, s.RHS)
		c.declareLocal(name, types.NewVar(name.Pos(), name.Value, typ), s.RHS)
		return
	}

	var left operand
	whole := c.lhs(&left, s.LHS)

	var right operand
	c.expr(&right, s.RHS)
	if left.mode == invalid {
		return
	}
	c.assignment(&right, left.typ, "assignment")

	if whole != nil {
		st := c.vars[whole]
		st.moved = syntax.Pos{}
		st.srcs = append(st.srcs, s.RHS)
	}
}

// lhs checks the left side of an assignment. It returns the variable
// when the whole variable is assigned.
func (c *Checker) lhs(x *operand, e syntax.Expr) *types.Var {
	x.mode = invalid
	x.pos = e.Pos()
	x.expr = e

	root := rootName(e)
	var rootVar *types.Var
	if root != nil {
		rootVar, _ = c.lookup(root.Value).(*types.Var)
	}
	if rootVar != nil && c.vars[rootVar] != nil {
		st := c.vars[rootVar]
		if b := c.block; b != nil && b.scope.Captures(rootVar.Parent()) {
			c.errorf(e.Pos(), "cannot assign to %s: captured by deferred block", root.Value)
			return nil
		}
		if st.borrowed.IsValid() {
			c.errorf(e.Pos(), "cannot assign to %s: borrowed by deferred block at %s", root.Value, st.borrowed)
			return nil
		}
	}

	if name, ok := unparen(e).(*syntax.Name); ok {
		obj := c.resolve(name)
		if obj == nil {
			return nil
		}
		v, ok := obj.(*types.Var)
		if !ok || c.vars[v] == nil {
			c.errorf(e.Pos(), "cannot assign to %s", name.Value)
			return nil
		}
		if v.Type() == nil {
			return nil
		}
		x.mode = variable
		x.typ = v.Type()
		c.recordType(e, x)
		return v
	}

	c.expr(x, e)
	if x.mode == invalid {
		return nil
	}
	if x.mode != variable {
		c.errorf(e.Pos(), "cannot assign to %s", syntax.ExprString(e))
		x.mode = invalid
	}
	return nil
}

// returnStmt checks a return statement.
func (c *Checker) returnStmt(s *syntax.ReturnStmt) {
	if c.scope.Deferred() != nil {
		c.errorf(s.Pos(), "return in deferred block")
		return
	}
	c.hasReturn = true

	resultType := c.sig.Result()
	if s.Result == nil {
		if resultType != nil {
			c.errorf(s.Pos(), "missing return value")
		}
		return
	}

	var x operand
	c.expr(&x, s.Result)
	if x.mode == invalid {
		return
	}
	if resultType == nil {
		c.errorf(s.Result.Pos(), "unexpected return value in function without result")
		return
	}

	c.assignment(&x, resultType, "return statement")
	if x.mode != invalid {
		c.checkReturnEscape(s, resultType)
	}
}

// isZeroable reports whether a variable of type T may start out as all
// zero bytes.
func isZeroable(T types.Type) bool {
	switch T.(type) {
	case *types.Pointer, *types.Inplace, *types.Result:
		return false
	}
	return true
}

// rootName returns the variable name at the root of a selector or index
// chain, or nil.
func rootName(e syntax.Expr) *syntax.Name {
	for {
		switch x := e.(type) {
		case *syntax.Name:
			return x
		case *syntax.ParenExpr:
			e = x.X
		case *syntax.SelectorExpr:
			e = x.X
		case *syntax.IndexExpr:
			e = x.X
		default:
			return nil
		}
	}
}
