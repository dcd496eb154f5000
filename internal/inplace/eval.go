package inplace

import (
	"errors"
	"fmt"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// ----------------------------------------------------------------------------
// Statements

func (m *Machine) stmts(list []syntax.Stmt) error {
	for _, s := range list {
		if err := m.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) stmt(s syntax.Stmt) error {
	switch s := s.(type) {
	case *syntax.EmptyStmt:
		return nil

	case *syntax.ExprStmt:
		return m.exprStmt(s.X)

	case *syntax.VarStmt:
		return m.define(s.Name, s.Value)

	case *syntax.AssignStmt:
		if s.Op == syntax.Define {
			return m.define(s.LHS.(*syntax.Name), s.RHS)
		}
		return m.assign(s)

	case *syntax.BlockStmt:
		// Locals of inner blocks live until the function returns.
		return m.stmts(s.Stmts)

	case *syntax.ReturnStmt:
		return m.returnStmt(s)
	}
	return fmt.Errorf("internal error: unexpected statement %T", s)
}

// exprStmt evaluates e and drops its value.
func (m *Machine) exprStmt(e syntax.Expr) error {
	tv := m.info.Types[e]
	if tv.IsVoid() {
		call, ok := unparen(e).(*syntax.CallExpr)
		if !ok {
			return fmt.Errorf("internal error: void expression %s", syntax.ExprString(e))
		}
		_, err := m.callExpr(call, mem.Null)
		return err
	}
	v, err := m.evalValue(e, types.DefaultType(tv.Type))
	if err != nil {
		return err
	}
	return m.dropHandle(v)
}

// define declares the local named by name and initializes it in place.
func (m *Machine) define(name *syntax.Name, init syntax.Expr) error {
	v, ok := m.info.Defs[name].(*types.Var)
	if !ok {
		return fmt.Errorf("internal error: %s is not a variable", name.Value)
	}
	T := v.Type()
	fr := m.frame
	if isHandle(T) {
		val, err := m.evalValue(init, T)
		if err != nil {
			return err
		}
		fr.vals[v] = val
	} else {
		slot, err := m.declare(v)
		if err != nil {
			return err
		}
		if init == nil {
			err = m.mem.Zero(slot, m.sizes.Sizeof(T))
		} else {
			err = m.evalInto(init, slot, T)
		}
		if err != nil {
			return err
		}
	}
	fr.owned = append(fr.owned, v)
	return nil
}

// assign evaluates the right-hand side, then the location, then drops
// the old value and stores the new one. A deferred value is materialized
// directly into the location.
func (m *Machine) assign(s *syntax.AssignStmt) error {
	T := m.info.Types[s.LHS].Type
	fr := m.frame

	var whole *types.Var
	if name, ok := unparen(s.LHS).(*syntax.Name); ok {
		whole, _ = m.info.Uses[name].(*types.Var)
	}

	if isHandle(T) {
		val, err := m.evalValue(s.RHS, T)
		if err != nil {
			return err
		}
		var derr error
		if !fr.moved[whole] {
			derr = m.dropHandle(fr.vals[whole])
		}
		fr.vals[whole] = val
		fr.moved[whole] = false
		return derr
	}

	dropOld := func(a mem.Addr) error {
		if whole != nil {
			moved := fr.moved[whole]
			fr.moved[whole] = false
			if moved {
				return nil
			}
		}
		return m.drop(a, T, 0)
	}

	if isScalar(T) {
		w, err := m.evalWord(s.RHS, T)
		if err != nil {
			return err
		}
		a, err := m.addr(s.LHS)
		if err != nil {
			return err
		}
		if err := dropOld(a); err != nil {
			return err
		}
		return m.store(a, T, w)
	}

	conv := m.info.Conversions[s.RHS]
	if conv&ConvMaterialize != 0 {
		v, err := m.value(s.RHS, types.NewInplace(T), conv&^ConvMaterialize)
		if err != nil {
			return err
		}
		dv := v.(*DeferredValue)
		a, err := m.addr(s.LHS)
		if err == nil {
			err = dropOld(a)
		}
		if err != nil {
			return errors.Join(err, dv.Drop())
		}
		return dv.MaterializeInto(a)
	}

	v, err := m.evalValue(s.RHS, T)
	if err != nil {
		return err
	}
	obj := v.(Object)
	a, err := m.addr(s.LHS)
	if err == nil {
		err = dropOld(a)
	}
	if err != nil {
		return errors.Join(err, m.dropObject(obj))
	}
	return m.mem.Copy(a, obj.Addr, m.sizes.Sizeof(T))
}

func (m *Machine) returnStmt(s *syntax.ReturnStmt) error {
	fr := m.frame
	if s.Result == nil {
		return nil
	}
	T := fr.result
	switch {
	case isHandle(T):
		v, err := m.evalValue(s.Result, T)
		fr.ret = v
		return err
	case isScalar(T):
		w, err := m.evalWord(s.Result, T)
		fr.ret = w
		return err
	}
	return m.evalInto(s.Result, fr.dest, T)
}

// ----------------------------------------------------------------------------
// Calls

func (m *Machine) callExpr(e *syntax.CallExpr, dest mem.Addr) (Value, error) {
	name, ok := unparen(e.Fun).(*syntax.Name)
	if !ok {
		return nil, fmt.Errorf("internal error: cannot call %s", syntax.ExprString(e.Fun))
	}
	if form, ok := m.info.Dispatch[e]; ok {
		return m.dualCall(e, m.host().DualOps[name.Value], form, dest)
	}
	switch obj := m.info.Uses[name].(type) {
	case *types.Builtin:
		return nil, m.panicCall(e)
	case *types.FuncObj:
		return m.callFunc(obj, e.Args, dest)
	}
	if hf, ok := m.host().Funcs[name.Value]; ok {
		return m.hostCall(e, hf, dest)
	}
	return nil, fmt.Errorf("internal error: cannot call %s", name.Value)
}

// callFunc calls a source function. Arguments are evaluated in the
// caller's frame directly into the parameter slots of the callee.
func (m *Machine) callFunc(fn *types.FuncObj, args []syntax.Expr, dest mem.Addr) (Value, error) {
	sig := fn.Signature()
	params := func(fr *frame) error {
		for i, p := range sig.Params() {
			T := p.Type()
			if isHandle(T) {
				v, err := m.evalValue(args[i], T)
				if err != nil {
					return err
				}
				fr.vals[p] = v
			} else {
				slot, err := m.mem.Push(m.sizes.Layout(T))
				if err != nil {
					return m.trapf(args[i].Pos(), err, "call of %s", fn.Name())
				}
				fr.slots[p] = slot
				if err := m.evalInto(args[i], slot, T); err != nil {
					return err
				}
			}
			fr.owned = append(fr.owned, p)
		}
		return nil
	}
	return m.invoke(fn, params, dest)
}

// invoke runs the body of fn in a new frame after params has bound the
// parameters. A ? failure inside fn becomes its failed result.
func (m *Machine) invoke(fn *types.FuncObj, params func(fr *frame) error, dest mem.Addr) (Value, error) {
	decl := m.prog.funcs[fn]
	if decl == nil || decl.Body == nil {
		return nil, fmt.Errorf("internal error: %s has no body", fn.Name())
	}
	if m.depth >= maxDepth {
		return nil, m.trapf(decl.Pos(), mem.ErrStackOverflow, "call of %s", fn.Name())
	}

	fr := m.newFrame(fn.Name())
	fr.dest = dest
	fr.result = fn.Signature().Result()
	if err := params(fr); err != nil {
		return nil, errors.Join(err, m.exitFrame(fr))
	}

	saved := m.frame
	m.frame = fr
	m.depth++
	err := m.stmts(decl.Body.Stmts)
	m.depth--
	m.frame = saved

	var p *propagation
	if errors.As(err, &p) {
		fr.ret = Fail(p.err)
		err = nil
	}
	if xerr := m.exitFrame(fr); xerr != nil {
		return nil, errors.Join(err, xerr, m.dropHandle(fr.ret))
	}
	if err != nil {
		return nil, err
	}
	return fr.ret, nil
}

// hostCall evaluates the arguments, calls the host and drops the
// arguments afterwards. A deferred argument the host did not consume is
// dropped with them.
func (m *Machine) hostCall(e *syntax.CallExpr, hf *HostFunc, dest mem.Addr) (Value, error) {
	args := make([]Arg, 0, len(e.Args))
	release := func() error {
		var errs []error
		for _, a := range args {
			errs = append(errs, m.dropHandle(a.Value))
		}
		return errors.Join(errs...)
	}
	for i, a := range e.Args {
		T := hostParam(hf, i)
		if T == nil {
			T = types.DefaultType(m.info.Types[a].Type)
		}
		v, err := m.evalValue(a, T)
		if err != nil {
			return nil, errors.Join(err, release())
		}
		args = append(args, Arg{Type: T, Value: v})
	}

	res, err := hf.Fn(m, args)
	rerr := release()
	return m.hostResult(e, hf.Name, hf.Result, res, err, rerr, dest)
}

func hostParam(hf *HostFunc, i int) types.Type {
	n := len(hf.Params)
	if hf.Variadic && i >= n-1 {
		return hf.Params[n-1]
	}
	if i < n {
		return hf.Params[i]
	}
	return nil
}

// hostResult turns what a host function returned into the value of the
// call. An error becomes the failure of a Result, or a trap.
func (m *Machine) hostResult(e *syntax.CallExpr, name string, T types.Type, res Value, err, rerr error, dest mem.Addr) (Value, error) {
	_, fallible := T.(*types.Result)
	if err != nil {
		var trap *Trap
		if fallible && !errors.As(err, &trap) {
			return Fail(err), rerr
		}
		if !errors.As(err, &trap) {
			err = m.trapf(e.Pos(), err, "%s failed", name)
		}
		return nil, errors.Join(err, rerr)
	}
	if fallible {
		if _, ok := res.(Result); !ok {
			res = Ok(res)
		}
	}
	if obj, ok := res.(Object); ok && dest != mem.Null {
		if cerr := m.mem.Copy(dest, obj.Addr, m.sizes.LayoutUnsized(obj.Type, obj.Len).Size); cerr != nil {
			return nil, errors.Join(cerr, rerr)
		}
	}
	return res, rerr
}

// dualCall calls the form of op the checker resolved for this call site.
// A direct argument is built in a temporary; a deferred one is handed
// over unconstructed.
func (m *Machine) dualCall(e *syntax.CallExpr, op *DualOp, form Variant, dest mem.Addr) (Value, error) {
	a := e.Args[0]
	T := types.DefaultType(m.info.Types[a].Type)

	var res Value
	var err, derr error
	if form == FormDeferred {
		v, verr := m.evalValue(a, T)
		if verr != nil {
			return nil, verr
		}
		dv := v.(*DeferredValue)
		res, err = op.Deferred(m, dv)
		if dv.State() == Pending {
			derr = dv.Drop()
		}
	} else {
		tmp, perr := m.mem.PushTemp(m.sizes.Layout(T))
		if perr != nil {
			return nil, m.trapf(a.Pos(), perr, "argument of %s", op.Name)
		}
		if verr := m.evalInto(a, tmp, T); verr != nil {
			return nil, verr
		}
		d := &Direct{obj: Object{Addr: tmp, Type: T}, mc: m}
		res, err = op.Direct(m, d)
		if !d.done {
			derr = d.Drop()
		}
	}
	return m.hostResult(e, op.Name, op.Result, res, err, derr, dest)
}

func (m *Machine) panicCall(e *syntax.CallExpr) error {
	if len(e.Args) == 0 {
		return m.trapf(e.Pos(), nil, "panic")
	}
	a := e.Args[0]
	T := types.DefaultType(m.info.Types[a].Type)
	w, err := m.evalWord(a, T)
	if err != nil {
		return err
	}
	return m.trapf(e.Pos(), nil, "panic(%s)", m.Format(T, w))
}

// ----------------------------------------------------------------------------
// Expressions

// evalValue evaluates e as a value of type T after the conversions
// recorded for e. Aggregates are built in a stack temporary.
func (m *Machine) evalValue(e syntax.Expr, T types.Type) (Value, error) {
	return m.value(e, T, m.info.Conversions[e])
}

// evalInto evaluates e into the memory at dest.
func (m *Machine) evalInto(e syntax.Expr, dest mem.Addr, T types.Type) error {
	return m.into(e, dest, T, m.info.Conversions[e])
}

// evalWord evaluates e of basic or pointer type T.
func (m *Machine) evalWord(e syntax.Expr, T types.Type) (Word, error) {
	return m.word(e, T, m.info.Conversions[e])
}

func (m *Machine) value(e syntax.Expr, T types.Type, conv Conversion) (Value, error) {
	switch {
	case conv&ConvWrap != 0:
		v, err := m.value(e, T.(*types.Result).Elem(), conv&^ConvWrap)
		if err != nil {
			return nil, err
		}
		return Ok(v), nil
	case conv&ConvDefer != 0:
		return m.newDeferred(m.info.Plans[e])
	case isHandle(T):
		return m.handle(e, T)
	case isScalar(T):
		w, err := m.word(e, T, conv)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	tmp, err := m.mem.PushTemp(m.sizes.Layout(T))
	if err != nil {
		return nil, m.trapf(e.Pos(), err, "temporary for %s", syntax.ExprString(e))
	}
	if err := m.into(e, tmp, T, conv); err != nil {
		return nil, err
	}
	return Object{Addr: tmp, Type: T}, nil
}

// handle evaluates e of type inplace T or Result[T].
func (m *Machine) handle(e syntax.Expr, T types.Type) (Value, error) {
	switch e := e.(type) {
	case *syntax.ParenExpr:
		return m.value(e.X, T, m.info.Conversions[e.X])

	case *syntax.Name:
		v, ok := m.info.Uses[e].(*types.Var)
		if !ok {
			return nil, fmt.Errorf("internal error: %s is not a variable", e.Value)
		}
		m.frame.moved[v] = true
		return m.frame.vals[v], nil

	case *syntax.InplaceExpr:
		if p, ok := m.info.Plans[e]; ok {
			return m.newDeferred(p)
		}
		return m.value(e.X, T, m.info.Conversions[e.X])

	case *syntax.CallExpr:
		return m.callExpr(e, mem.Null)

	case *syntax.TryExpr:
		return m.try(e)
	}
	return nil, fmt.Errorf("internal error: %T of type %s", e, T)
}

// into evaluates e into dest. Aggregate literals and calls write their
// fields straight into dest.
func (m *Machine) into(e syntax.Expr, dest mem.Addr, T types.Type, conv Conversion) error {
	if conv&ConvMaterialize != 0 {
		v, err := m.value(e, types.NewInplace(T), conv&^ConvMaterialize)
		if err != nil {
			return err
		}
		return v.(*DeferredValue).MaterializeInto(dest)
	}
	if isScalar(T) {
		w, err := m.word(e, T, conv)
		if err != nil {
			return err
		}
		return m.store(dest, T, w)
	}

	switch e := e.(type) {
	case *syntax.ParenExpr:
		return m.into(e.X, dest, T, m.info.Conversions[e.X])

	case *syntax.Name:
		v, ok := m.info.Uses[e].(*types.Var)
		if !ok {
			return fmt.Errorf("internal error: %s is not a variable", e.Value)
		}
		src, err := m.varAddr(v)
		if err != nil {
			return err
		}
		if !types.IsCopy(T) {
			m.frame.moved[v] = true
		}
		return m.mem.Copy(dest, src, m.sizes.Sizeof(T))

	case *syntax.CompositeLit:
		return m.compositeInto(e, dest)

	case *syntax.RepeatLit:
		return m.repeatInto(e, dest)

	case *syntax.CallExpr:
		_, err := m.callExpr(e, dest)
		return err
	}

	src, err := m.addr(e)
	if err != nil {
		return err
	}
	return m.mem.Copy(dest, src, m.sizes.Sizeof(T))
}

// compositeInto builds a struct or array literal at dest, field by field
// in source order. On failure the fields already built are dropped.
func (m *Machine) compositeInto(e *syntax.CompositeLit, dest mem.Addr) error {
	T := m.info.Types[e].Type
	type part struct {
		off int64
		typ types.Type
	}
	var done []part
	fail := func(err error) error {
		for i := len(done) - 1; i >= 0; i-- {
			err = errors.Join(err, m.drop(dest+mem.Addr(done[i].off), done[i].typ, 0))
		}
		return err
	}

	switch u := T.Underlying().(type) {
	case *types.Struct:
		m.sizes.ComputeLayout(u)
		set := make([]bool, u.NumFields())
		for i, el := range e.Elems {
			idx, v := i, el
			if kv, ok := el.(*syntax.KeyValueExpr); ok {
				idx = u.FieldIndex(kv.Key.(*syntax.Name).Value)
				v = kv.Value
			}
			f := u.Field(idx)
			if err := m.evalInto(v, dest+mem.Addr(u.Offset(idx)), f.Type()); err != nil {
				return fail(err)
			}
			set[idx] = true
			done = append(done, part{u.Offset(idx), f.Type()})
		}
		for i, f := range u.Fields() {
			if !set[i] {
				if err := m.mem.Zero(dest+mem.Addr(u.Offset(i)), m.sizes.Sizeof(f.Type())); err != nil {
					return fail(err)
				}
			}
		}
		return nil

	case *types.Array:
		esize := m.sizes.Sizeof(u.Elem())
		for i, el := range e.Elems {
			off := int64(i) * esize
			if err := m.evalInto(el, dest+mem.Addr(off), u.Elem()); err != nil {
				return fail(err)
			}
			done = append(done, part{off, u.Elem()})
		}
		if n := int64(len(e.Elems)); n < u.Len() {
			return m.mem.Zero(dest+mem.Addr(n*esize), (u.Len()-n)*esize)
		}
		return nil
	}
	return fmt.Errorf("internal error: eager literal of type %s", T)
}

// repeatInto builds [N]T{v; N}: v is evaluated once into the first
// element and its bytes stored into the rest.
func (m *Machine) repeatInto(e *syntax.RepeatLit, dest mem.Addr) error {
	T := m.info.Types[e].Type
	u, ok := T.Underlying().(*types.Array)
	if !ok {
		return fmt.Errorf("internal error: eager repeat of type %s", T)
	}
	if u.Len() == 0 {
		return nil
	}
	if err := m.evalInto(e.Value, dest, u.Elem()); err != nil {
		return err
	}
	esize := m.sizes.Sizeof(u.Elem())
	b, err := m.mem.Bytes(dest, esize)
	if err != nil {
		return err
	}
	for i := int64(1); i < u.Len(); i++ {
		if err := m.mem.Write(dest+mem.Addr(i*esize), b); err != nil {
			return err
		}
	}
	return nil
}

// word evaluates e of basic or pointer type T.
func (m *Machine) word(e syntax.Expr, T types.Type, conv Conversion) (Word, error) {
	if conv&ConvMaterialize != 0 {
		v, err := m.value(e, types.NewInplace(T), conv&^ConvMaterialize)
		if err != nil {
			return 0, err
		}
		tmp, err := m.mem.PushTemp(m.sizes.Layout(T))
		if err != nil {
			return 0, errors.Join(m.trapf(e.Pos(), err, "temporary for %s", syntax.ExprString(e)), v.(*DeferredValue).Drop())
		}
		if err := v.(*DeferredValue).MaterializeInto(tmp); err != nil {
			return 0, err
		}
		return m.load(tmp, T)
	}

	tv := m.info.Types[e]
	if tv.Value != nil {
		CT := tv.Type
		if CT == nil || types.IsUntyped(CT) {
			CT = T
		}
		return constWord(tv.Value, CT), nil
	}

	switch e := e.(type) {
	case *syntax.ParenExpr:
		return m.word(e.X, T, m.info.Conversions[e.X])

	case *syntax.Name:
		v, ok := m.info.Uses[e].(*types.Var)
		if !ok {
			return 0, fmt.Errorf("internal error: %s is not a variable", e.Value)
		}
		a, err := m.varAddr(v)
		if err != nil {
			return 0, err
		}
		if !types.IsCopy(T) {
			m.frame.moved[v] = true
		}
		return m.load(a, T)

	case *syntax.Operation:
		return m.operation(e, T)

	case *syntax.CallExpr:
		v, err := m.callExpr(e, mem.Null)
		if err != nil {
			return 0, err
		}
		w, ok := v.(Word)
		if !ok {
			return 0, fmt.Errorf("internal error: call of %s returned %T", syntax.ExprString(e.Fun), v)
		}
		return w, nil

	case *syntax.TryExpr:
		v, err := m.try(e)
		if err != nil {
			return 0, err
		}
		return v.(Word), nil
	}

	a, err := m.addr(e)
	if err != nil {
		return 0, err
	}
	return m.load(a, T)
}

// try evaluates e? and unwraps the result. A failure leaves the
// enclosing function.
func (m *Machine) try(e *syntax.TryExpr) (Value, error) {
	RT := m.info.Types[e.X].Type
	v, err := m.value(e.X, RT, m.info.Conversions[e.X])
	if err != nil {
		return nil, err
	}
	r := v.(Result)
	if lerr, ok := r.GetLeft(); ok {
		return nil, &propagation{err: lerr}
	}
	rv, _ := r.GetRight()
	return rv, nil
}

// addr returns the location e denotes. An expression that is not a
// location is evaluated into a temporary.
func (m *Machine) addr(e syntax.Expr) (mem.Addr, error) {
	switch e := e.(type) {
	case *syntax.ParenExpr:
		return m.addr(e.X)

	case *syntax.Name:
		if v, ok := m.info.Uses[e].(*types.Var); ok {
			return m.varAddr(v)
		}

	case *syntax.SelectorExpr:
		base, T, err := m.base(e.X)
		if err != nil {
			return mem.Null, err
		}
		st := T.Underlying().(*types.Struct)
		m.sizes.ComputeLayout(st)
		return base + mem.Addr(st.Offset(st.FieldIndex(e.Sel.Value))), nil

	case *syntax.IndexExpr:
		base, T, err := m.base(e.X)
		if err != nil {
			return mem.Null, err
		}
		arr := T.Underlying().(*types.Array)
		IT := m.info.Types[e.Index].Type
		w, err := m.evalWord(e.Index, IT)
		if err != nil {
			return mem.Null, err
		}
		var i int64
		if types.IsUnsigned(IT) {
			if uint64(w) >= uint64(arr.Len()) {
				return mem.Null, m.trapf(e.Pos(), nil, "index out of range [%d] with length %d", uint64(w), arr.Len())
			}
			i = int64(w)
		} else if i = w.Int(IT); i < 0 || i >= arr.Len() {
			return mem.Null, m.trapf(e.Pos(), nil, "index out of range [%d] with length %d", i, arr.Len())
		}
		return base + mem.Addr(i*m.sizes.Sizeof(arr.Elem())), nil

	case *syntax.Operation:
		if e.Op == syntax.Mul && e.Y == nil {
			w, err := m.evalWord(e.X, m.info.Types[e.X].Type)
			return mem.Addr(w), err
		}
	}

	T := m.info.Types[e].Type
	if isScalar(T) {
		w, err := m.evalWord(e, T)
		if err != nil {
			return mem.Null, err
		}
		tmp, err := m.mem.PushTemp(m.sizes.Layout(T))
		if err == nil {
			err = m.store(tmp, T, w)
		}
		return tmp, err
	}
	v, err := m.value(e, T, m.info.Conversions[e])
	if err != nil {
		return mem.Null, err
	}
	return v.(Object).Addr, nil
}

// base returns the address and type of the struct or array x denotes,
// following a pointer.
func (m *Machine) base(x syntax.Expr) (mem.Addr, types.Type, error) {
	T := m.info.Types[x].Type
	if p, ok := T.Underlying().(*types.Pointer); ok {
		w, err := m.evalWord(x, T)
		return mem.Addr(w), p.Elem(), err
	}
	a, err := m.addr(x)
	return a, T, err
}
