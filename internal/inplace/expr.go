package inplace

import (
	"go/constant"
	"go/token"
	"math"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// expr type-checks expression e and stores the result in x.
func (c *Checker) expr(x *operand, e syntax.Expr) {
	c.exprInternal(x, e)
	if x.mode != invalid && x.mode != novalue {
		c.recordType(e, x)
	} else if x.mode == novalue {
		c.info.Types[e] = TypeAndValue{mode: novalue}
	}
}

func (c *Checker) exprInternal(x *operand, e syntax.Expr) {
	x.mode = invalid
	x.typ = nil
	x.val = nil
	x.pos = e.Pos()
	x.expr = e
	x.host = nil
	x.dual = nil

	switch e := e.(type) {
	case *syntax.Name:
		c.ident(x, e)

	case *syntax.BasicLit:
		c.basicLit(x, e)

	case *syntax.Operation:
		if e.Y == nil {
			c.unary(x, e)
		} else {
			c.binary(x, e)
		}

	case *syntax.CallExpr:
		c.call(x, e)

	case *syntax.IndexExpr:
		c.index(x, e)

	case *syntax.SelectorExpr:
		c.selector(x, e)

	case *syntax.ParenExpr:
		c.exprInternal(x, e.X)
		x.expr = e

	case *syntax.CompositeLit:
		c.compositeLit(x, e)

	case *syntax.RepeatLit:
		c.repeatLit(x, e)

	case *syntax.InplaceExpr:
		c.inplaceExpr(x, e)

	case *syntax.TryExpr:
		c.tryExpr(x, e)

	case *syntax.BlockExpr:
		c.errorf(e.Pos(), "block expression must be deferred with inplace")

	case *syntax.KeyValueExpr:
		c.errorf(e.Pos(), "unexpected key:value expression")

	case *syntax.ArrayType, *syntax.SliceType, *syntax.PointerType, *syntax.StructType,
		*syntax.InplaceType, *syntax.DualType, *syntax.ResultType:
		c.typExpr(x, e)

	default:
		c.errorf(e.Pos(), "unexpected expression %T", e)
	}
}

// ident type-checks an identifier.
func (c *Checker) ident(x *operand, name *syntax.Name) {
	if name.Value == "_" {
		c.errorf(name.Pos(), "cannot use _ as value")
		return
	}
	obj := c.lookup(name.Value)
	if obj == nil {
		if op := c.host().DualOps[name.Value]; op != nil {
			x.mode = hostfunc
			x.dual = op
			return
		}
		if hf := c.host().Funcs[name.Value]; hf != nil {
			x.mode = hostfunc
			x.host = hf
			return
		}
	}
	obj = c.resolve(name)
	if obj == nil {
		return
	}

	switch obj := obj.(type) {
	case *types.Var:
		if obj.Type() == nil {
			return // declaration already reported
		}
		x.mode = variable
		x.typ = obj.Type()
		if st := c.vars[obj]; st != nil {
			if st.moved.IsValid() {
				c.errorf(name.Pos(), "use of moved value %s (moved at %s)", name.Value, st.moved)
				x.mode = invalid
				return
			}
			c.noteFree(obj, name)
		}

	case *types.Const:
		x.setConst(types.Typ[types.UntypedBool], constant.MakeBool(obj.Value()))

	case *types.TypeName:
		if obj.Type() == nil {
			return
		}
		x.mode = typexpr
		x.typ = obj.Type()

	case *types.FuncObj:
		if obj.Signature() == nil {
			return // signature error already reported
		}
		x.setValue(obj.Signature())

	case *types.Builtin:
		x.mode = builtin

	default:
		c.errorf(name.Pos(), "unexpected object %s", name.Value)
	}
}

// noteFree records a use of v inside every enclosing deferred block that
// v is free in.
func (c *Checker) noteFree(v *types.Var, name *syntax.Name) {
	for b := c.block; b != nil && b.scope.Captures(v.Parent()); b = b.outer {
		cp := b.uses[v]
		if cp == nil {
			cp = &capture{v: v, pos: name.Pos()}
			b.uses[v] = cp
			b.order = append(b.order, v)
		}
		if name != c.borrowing {
			cp.byValue = true
		}
	}
}

// basicLit type-checks a numeric literal.
func (c *Checker) basicLit(x *operand, lit *syntax.BasicLit) {
	switch lit.Kind {
	case syntax.IntLit:
		val := constant.MakeFromLiteral(lit.Value, token.INT, 0)
		if val.Kind() == constant.Unknown {
			c.errorf(lit.Pos(), "invalid integer literal %s", lit.Value)
			return
		}
		x.setConst(types.Typ[types.UntypedInt], val)
	case syntax.FloatLit:
		val := constant.MakeFromLiteral(lit.Value, token.FLOAT, 0)
		if val.Kind() == constant.Unknown {
			c.errorf(lit.Pos(), "invalid float literal %s", lit.Value)
			return
		}
		x.setConst(types.Typ[types.UntypedFloat], val)
	default:
		c.errorf(lit.Pos(), "unknown literal kind %s", lit.Kind)
	}
}

// unary type-checks a unary operation.
func (c *Checker) unary(x *operand, e *syntax.Operation) {
	if e.Op == syntax.And {
		c.addressOf(x, e)
		return
	}

	c.expr(x, e.X)
	if !c.isValueOperand(x) {
		return
	}
	x.expr = e
	x.pos = e.Pos()

	switch e.Op {
	case syntax.Not:
		if !types.IsBoolean(x.typ) {
			c.invalidOp(x, "operator ! not defined on %s", x)
			x.mode = invalid
			return
		}
		if x.mode == constant_ {
			x.val = constant.UnaryOp(token.NOT, x.val, 0)
			return
		}

	case syntax.Sub:
		if !types.IsNumeric(x.typ) || types.IsUnsigned(x.typ) && !types.IsUntyped(x.typ) {
			c.invalidOp(x, "operator - not defined on %s", x)
			x.mode = invalid
			return
		}
		if x.mode == constant_ {
			x.val = constant.UnaryOp(token.SUB, x.val, 0)
			return
		}

	case syntax.Mul:
		p, ok := x.typ.Underlying().(*types.Pointer)
		if !ok {
			c.invalidOp(x, "cannot indirect %s", syntax.ExprString(e.X))
			x.mode = invalid
			return
		}
		x.mode = variable
		x.typ = p.Elem()
		return

	default:
		c.invalidOp(x, "unknown unary operator %s", e.Op)
		x.mode = invalid
		return
	}
	x.setValue(x.typ)
}

// addressOf type-checks &x. The operand must be a location rooted at a
// variable.
func (c *Checker) addressOf(x *operand, e *syntax.Operation) {
	root := rootName(e.X)
	if root == nil {
		c.errorf(e.Pos(), "cannot take address of %s", syntax.ExprString(e.X))
		return
	}
	saved := c.borrowing
	c.borrowing = root
	c.expr(x, e.X)
	c.borrowing = saved
	if x.mode == invalid {
		return
	}
	if x.mode != variable {
		c.errorf(e.Pos(), "cannot take address of %s", syntax.ExprString(e.X))
		x.mode = invalid
		return
	}
	if !types.IsSized(x.typ) || types.IsInplace(x.typ) {
		c.errorf(e.Pos(), "cannot take address of %s of type %s", syntax.ExprString(e.X), x.typ)
		x.mode = invalid
		return
	}
	if _, ok := x.typ.(*types.Result); ok {
		c.errorf(e.Pos(), "cannot take address of %s of type %s", syntax.ExprString(e.X), x.typ)
		x.mode = invalid
		return
	}
	x.setValue(types.NewPointer(x.typ))
	x.expr = e
	x.pos = e.Pos()
}

// binary type-checks a binary operation.
func (c *Checker) binary(x *operand, e *syntax.Operation) {
	var y operand
	c.expr(x, e.X)
	c.expr(&y, e.Y)
	if !c.isValueOperand(x) || !c.isValueOperand(&y) {
		x.mode = invalid
		return
	}

	op := e.Op
	if op == syntax.Shl || op == syntax.Shr {
		c.shift(x, &y, e)
		return
	}

	c.matchTypes(x, &y)
	if x.mode == invalid {
		return
	}
	if !types.Identical(x.typ, y.typ) {
		c.invalidOp(x, "mismatched types %s and %s in %s", x.typ, y.typ, syntax.ExprString(e))
		x.mode = invalid
		return
	}

	switch {
	case op.IsComparison():
		c.comparison(x, &y, e)
		return

	case op.IsLogical():
		if !types.IsBoolean(x.typ) {
			c.invalidOp(x, "operator %s not defined on %s", op, x)
			x.mode = invalid
			return
		}

	case op == syntax.Rem || op == syntax.And || op == syntax.Or || op == syntax.Xor:
		if !types.IsInteger(x.typ) {
			c.invalidOp(x, "operator %s not defined on %s", op, x)
			x.mode = invalid
			return
		}

	default:
		if !types.IsNumeric(x.typ) {
			c.invalidOp(x, "operator %s not defined on %s", op, x)
			x.mode = invalid
			return
		}
	}

	if (op == syntax.Div || op == syntax.Rem) && y.mode == constant_ && constant.Sign(y.val) == 0 {
		c.errorf(y.pos, "invalid operation: division by zero")
		x.mode = invalid
		return
	}

	if x.mode == constant_ && y.mode == constant_ {
		tok := gotoken(op)
		if op == syntax.Div && types.IsInteger(x.typ) {
			tok = token.QUO_ASSIGN // integer division
		}
		x.val = constant.BinaryOp(x.val, tok, y.val)
		x.expr = e
		x.pos = e.Pos()
		if !types.IsUntyped(x.typ) {
			c.representable(x, x.typ.Underlying().(*types.Basic))
		}
		return
	}
	x.setValue(x.typ)
	x.expr = e
	x.pos = e.Pos()
}

// matchTypes converts an untyped operand to the type of the other one.
func (c *Checker) matchTypes(x, y *operand) {
	switch xu, yu := types.IsUntyped(x.typ), types.IsUntyped(y.typ); {
	case xu && !yu:
		c.convertUntyped(x, y.typ)
	case !xu && yu:
		c.convertUntyped(y, x.typ)
	case xu && yu:
		// Mixed untyped constants take the larger kind.
		if x.typ != y.typ {
			if types.IsFloat(x.typ) || types.IsFloat(y.typ) {
				if types.IsNumeric(x.typ) && types.IsNumeric(y.typ) {
					x.typ = types.Typ[types.UntypedFloat]
					y.typ = types.Typ[types.UntypedFloat]
				}
			}
		}
	}
	if y.mode == invalid {
		x.mode = invalid
	}
}

// comparison type-checks a comparison. The result is an untyped boolean
// constant or a bool value.
func (c *Checker) comparison(x, y *operand, e *syntax.Operation) {
	op := e.Op
	ok := types.Comparable(x.typ)
	if op != syntax.Eql && op != syntax.Neq {
		ok = types.Ordered(x.typ)
	}
	if !ok {
		c.invalidOp(x, "operator %s not defined on %s", op, x)
		x.mode = invalid
		return
	}

	if x.mode == constant_ && y.mode == constant_ {
		x.setConst(types.Typ[types.UntypedBool], constant.MakeBool(constant.Compare(x.val, gotoken(op), y.val)))
	} else {
		x.setValue(types.Typ[types.Bool])
	}
	x.expr = e
	x.pos = e.Pos()
}

// shift type-checks a shift. The count must be unsigned or a
// non-negative constant.
func (c *Checker) shift(x, y *operand, e *syntax.Operation) {
	if !types.IsInteger(x.typ) {
		c.invalidOp(x, "shifted operand %s must be integer", syntax.ExprString(e.X))
		x.mode = invalid
		return
	}
	if !types.IsInteger(y.typ) {
		c.invalidOp(y, "shift count %s must be integer", syntax.ExprString(e.Y))
		x.mode = invalid
		return
	}

	if y.mode == constant_ {
		n, ok := c.constInt64(y)
		if !ok {
			x.mode = invalid
			return
		}
		if n < 0 {
			c.invalidOp(y, "negative shift count %s", syntax.ExprString(e.Y))
			x.mode = invalid
			return
		}
		if x.mode == constant_ && n > 1023 {
			c.invalidOp(y, "shift count %d too large", n)
			x.mode = invalid
			return
		}
		if types.IsUntyped(y.typ) {
			c.convertUntyped(y, types.Typ[types.Uint64])
		}
		if x.mode == constant_ {
			tok := token.SHL
			if e.Op == syntax.Shr {
				tok = token.SHR
			}
			x.val = constant.Shift(constant.ToInt(x.val), tok, uint(n))
			x.expr = e
			x.pos = e.Pos()
			if !types.IsUntyped(x.typ) {
				c.representable(x, x.typ.Underlying().(*types.Basic))
			}
			return
		}
	} else if !types.IsUnsigned(y.typ) {
		c.invalidOp(y, "shift count %s must be unsigned", syntax.ExprString(e.Y))
		x.mode = invalid
		return
	}

	if types.IsUntyped(x.typ) {
		c.convertUntyped(x, types.DefaultType(x.typ))
		if x.mode == invalid {
			return
		}
	}
	x.setValue(x.typ)
	x.expr = e
	x.pos = e.Pos()
}

// index type-checks x[i] on an array or a pointer to an array.
func (c *Checker) index(x *operand, e *syntax.IndexExpr) {
	c.expr(x, e.X)
	if !c.isValueOperand(x) {
		return
	}

	mode := x.mode
	typ := x.typ.Underlying()
	if p, ok := typ.(*types.Pointer); ok {
		typ = p.Elem().Underlying()
		mode = variable
	}
	arr, ok := typ.(*types.Array)
	if !ok {
		c.invalidOp(x, "cannot index %s of type %s", syntax.ExprString(e.X), x.typ)
		x.mode = invalid
		return
	}

	var i operand
	c.expr(&i, e.Index)
	if !c.isValueOperand(&i) {
		x.mode = invalid
		return
	}
	if !types.IsInteger(i.typ) {
		c.invalidOp(&i, "index %s must be integer", syntax.ExprString(e.Index))
		x.mode = invalid
		return
	}
	if i.mode == constant_ {
		n, ok := c.constInt64(&i)
		if !ok {
			x.mode = invalid
			return
		}
		if n < 0 || n >= arr.Len() {
			c.errorf(e.Index.Pos(), "index %d out of bounds [0:%d]", n, arr.Len())
			x.mode = invalid
			return
		}
		if types.IsUntyped(i.typ) {
			c.convertUntyped(&i, types.Typ[types.Int64])
		}
	}

	if mode == constant_ {
		mode = value
	}
	x.mode = mode
	x.typ = arr.Elem()
	x.val = nil
	x.expr = e
	x.pos = e.Pos()
}

// selector type-checks x.f on a struct or a pointer to a struct.
func (c *Checker) selector(x *operand, e *syntax.SelectorExpr) {
	c.expr(x, e.X)
	if !c.isValueOperand(x) {
		return
	}

	mode := x.mode
	typ := x.typ
	if p, ok := typ.Underlying().(*types.Pointer); ok {
		typ = p.Elem()
		mode = variable
	}
	if n, ok := typ.(*types.Named); ok && n.LookupMethod(e.Sel.Value) != nil {
		c.errorf(e.Sel.Pos(), "cannot call drop hook %s.%s directly", n, e.Sel.Value)
		x.mode = invalid
		return
	}
	st, ok := typ.Underlying().(*types.Struct)
	if !ok {
		c.errorf(e.Sel.Pos(), "%s.%s undefined (type %s has no fields)", syntax.ExprString(e.X), e.Sel.Value, x.typ)
		x.mode = invalid
		return
	}
	idx := st.FieldIndex(e.Sel.Value)
	if idx < 0 {
		c.errorf(e.Sel.Pos(), "%s.%s undefined (type %s has no field %s)", syntax.ExprString(e.X), e.Sel.Value, typ, e.Sel.Value)
		x.mode = invalid
		return
	}
	field := st.Field(idx)
	c.recordUse(e.Sel, field)

	x.mode = mode
	x.typ = field.Type()
	x.expr = e
	x.pos = e.Pos()
}

// tryExpr type-checks x?.
func (c *Checker) tryExpr(x *operand, e *syntax.TryExpr) {
	c.expr(x, e.X)
	if !c.isValueOperand(x) {
		return
	}
	if c.scope.Deferred() != nil {
		c.errorf(e.Pos(), "? operator in deferred block")
		x.mode = invalid
		return
	}
	r, ok := x.typ.(*types.Result)
	if !ok {
		c.invalidOp(x, "%s is not a Result", syntax.ExprString(e.X))
		x.mode = invalid
		return
	}
	if _, ok := c.sig.Result().(*types.Result); !ok {
		c.errorf(e.Pos(), "? used in function %s that does not return a Result", c.fn.Name())
		x.mode = invalid
		return
	}
	c.consume(x)
	x.setValue(r.Elem())
	x.expr = e
	x.pos = e.Pos()
}

// constInt64 returns the value of an integer constant.
func (c *Checker) constInt64(x *operand) (int64, bool) {
	if x.mode != constant_ || !types.IsInteger(x.typ) {
		c.errorf(x.pos, "%s is not an integer constant", syntax.ExprString(x.expr))
		return 0, false
	}
	n, exact := constant.Int64Val(constant.ToInt(x.val))
	if !exact {
		c.errorf(x.pos, "constant %s overflows i64", x.val)
		return 0, false
	}
	return n, true
}

// constantInt64 returns the integer value of a constant.
func constantInt64(v constant.Value) (int64, bool) {
	return constant.Int64Val(constant.ToInt(v))
}

// ----------------------------------------------------------------------------
// Assignability and conversions

// assignment checks that x can be stored in a location of type T and
// records the implicit conversion needed, if any. On return x.typ is T.
func (c *Checker) assignment(x *operand, T types.Type, context string) {
	if !c.isValueOperand(x) {
		return
	}
	if T == nil {
		x.mode = invalid
		return
	}

	switch t := T.(type) {
	case *types.Result:
		if _, ok := x.typ.(*types.Result); ok {
			c.identical(x, T, context)
			return
		}
		c.assignment(x, t.Elem(), context)
		if x.mode != invalid {
			c.recordConversion(x.expr, ConvWrap)
			x.typ = T
		}
		return

	case *types.Inplace:
		if _, ok := x.typ.(*types.Inplace); ok {
			c.identical(x, T, context)
			return
		}
		elem := t.Elem()
		if types.IsUntyped(x.typ) {
			c.convertUntyped(x, elem)
			if x.mode == invalid {
				return
			}
		}
		if !types.Identical(x.typ, elem) {
			c.errorf(x.pos, "cannot use %s (type %s) as %s in %s", syntax.ExprString(x.expr), x.typ, T, context)
			x.mode = invalid
			return
		}
		if p := c.convert(x.expr, x.expr, elem); p != nil {
			c.addPlan(p)
			c.recordConversion(x.expr, ConvDefer)
		}
		x.setValue(T)
		return
	}

	if xi, ok := x.typ.(*types.Inplace); ok && types.Identical(xi.Elem(), T) {
		if !types.IsSized(T) {
			c.errorf(x.pos, "cannot materialize %s (unsized type %s) into a fixed location", syntax.ExprString(x.expr), T)
			x.mode = invalid
			return
		}
		c.consume(x)
		c.recordConversion(x.expr, ConvMaterialize)
		x.setValue(T)
		return
	}

	if types.IsUntyped(x.typ) {
		c.convertUntyped(x, T)
		return
	}
	c.identical(x, T, context)
}

// identical requires x to have type T exactly and moves it.
func (c *Checker) identical(x *operand, T types.Type, context string) {
	if !types.Identical(x.typ, T) {
		c.errorf(x.pos, "cannot use %s (type %s) as %s in %s", syntax.ExprString(x.expr), x.typ, T, context)
		x.mode = invalid
		return
	}
	c.consume(x)
}

// consume marks the variable x denotes as moved if its type is not
// copyable. Moving out of a field, element, or pointer is an error.
func (c *Checker) consume(x *operand) {
	if x.mode == invalid || x.typ == nil || types.IsCopy(x.typ) {
		return
	}
	switch e := unparen(x.expr).(type) {
	case *syntax.Name:
		v, ok := c.info.Uses[e].(*types.Var)
		if !ok {
			return
		}
		st := c.vars[v]
		if st == nil {
			return
		}
		if st.borrowed.IsValid() {
			c.errorf(e.Pos(), "cannot move %s: borrowed by deferred block at %s", e.Value, st.borrowed)
			return
		}
		st.moved = e.Pos()
	case *syntax.SelectorExpr, *syntax.IndexExpr:
		c.errorf(e.Pos(), "cannot move out of %s", syntax.ExprString(e))
	case *syntax.Operation:
		if e.Op == syntax.Mul && e.Y == nil {
			c.errorf(e.Pos(), "cannot move out of %s", syntax.ExprString(e))
		}
	}
}

// convertUntyped converts an untyped constant x to type T and records the
// new type.
func (c *Checker) convertUntyped(x *operand, T types.Type) {
	if x.mode == invalid || !types.IsUntyped(x.typ) {
		return
	}
	b, ok := T.Underlying().(*types.Basic)
	if !ok || !types.AssignableTo(x.typ, T) {
		c.errorf(x.pos, "cannot use %s (%s constant) as %s", syntax.ExprString(x.expr), x.typ, T)
		x.mode = invalid
		return
	}
	if x.mode == constant_ && !types.IsUntyped(b) {
		if !c.representable(x, b) {
			return
		}
	}
	x.typ = T
	c.recordType(x.expr, x)
}

// representable checks that the constant x fits in b and rounds floats
// to their precision.
func (c *Checker) representable(x *operand, b *types.Basic) bool {
	ok := false
	switch {
	case b.Info()&types.InfoBoolean != 0:
		ok = x.val.Kind() == constant.Bool
	case b.Info()&types.InfoInteger != 0:
		v := constant.ToInt(x.val)
		if v.Kind() != constant.Int {
			break
		}
		bits := b.Kind().Bits()
		if b.Info()&types.InfoUnsigned != 0 {
			u, exact := constant.Uint64Val(v)
			ok = exact && (bits == 64 || u < 1<<uint(bits))
		} else {
			i, exact := constant.Int64Val(v)
			ok = exact && (bits == 64 || (i >= -1<<uint(bits-1) && i < 1<<uint(bits-1)))
		}
		if ok {
			x.val = v
		}
	case b.Info()&types.InfoFloat != 0:
		v := constant.ToFloat(x.val)
		if v.Kind() != constant.Float && v.Kind() != constant.Int {
			break
		}
		if b.Kind() == types.Float32 {
			f, _ := constant.Float32Val(v)
			ok = !math.IsInf(float64(f), 0)
		} else {
			f, _ := constant.Float64Val(v)
			ok = !math.IsInf(f, 0)
		}
		if ok {
			x.val = v
		}
	}
	if !ok {
		c.errorf(x.pos, "constant %s overflows %s", x.val, b)
		x.mode = invalid
	}
	return ok
}

// gotoken maps an operator to its go/token equivalent for constant
// folding.
func gotoken(op syntax.Token) token.Token {
	switch op {
	case syntax.Add:
		return token.ADD
	case syntax.Sub:
		return token.SUB
	case syntax.Mul:
		return token.MUL
	case syntax.Div:
		return token.QUO
	case syntax.Rem:
		return token.REM
	case syntax.And:
		return token.AND
	case syntax.Or:
		return token.OR
	case syntax.Xor:
		return token.XOR
	case syntax.AndAnd:
		return token.LAND
	case syntax.OrOr:
		return token.LOR
	case syntax.Eql:
		return token.EQL
	case syntax.Neq:
		return token.NEQ
	case syntax.Lss:
		return token.LSS
	case syntax.Leq:
		return token.LEQ
	case syntax.Gtr:
		return token.GTR
	case syntax.Geq:
		return token.GEQ
	}
	return token.ILLEGAL
}
