package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// checkTypeDecls resolves the underlying types of all type declarations.
// A declaration may name a type declared later in the file.
func (c *Checker) checkTypeDecls(decls []*syntax.TypeDecl) []*types.Named {
	var named []*types.Named
	resolved := make(map[*types.Named]types.Type)
	for _, td := range decls {
		obj, ok := c.info.Defs[td.Name].(*types.TypeName)
		if !ok {
			continue // already reported in collectDecls
		}
		n := obj.Type().(*types.Named)
		named = append(named, n)
		if u := c.resolveType(td.Type); u != nil {
			resolved[n] = u
		}
	}

	for _, n := range named {
		u, ok := resolved[n]
		if !ok {
			continue
		}
		// Follow type A B chains to a type literal.
		seen := map[*types.Named]bool{n: true}
		for {
			nn, ok := u.(*types.Named)
			if !ok {
				break
			}
			if seen[nn] {
				c.errorf(n.Obj().Pos(), "invalid recursive type %s", n)
				u = nil
				break
			}
			seen[nn] = true
			if r, ok := resolved[nn]; ok {
				u = r
				continue
			}
			u = nn.Underlying()
			break
		}
		if u != nil {
			n.SetUnderlying(u.Underlying())
		}
	}
	return named
}

// checkFuncSignature type-checks a function signature. A receiver is
// only allowed on a drop hook: func (v *T) drop().
func (c *Checker) checkFuncSignature(fn *types.FuncObj, decl *syntax.FuncDecl) {
	ok := true

	params := make([]*types.Var, len(decl.Params))
	for i, p := range decl.Params {
		ptype := c.resolveType(p.Type)
		if ptype == nil || !c.validType(p.Type.Pos(), ptype, ctxParam) {
			ok = false
			continue
		}
		params[i] = types.NewVar(p.Pos(), p.Name.Value, ptype)
	}

	var result types.Type
	if decl.Result != nil {
		result = c.resolveType(decl.Result)
		if result == nil || !c.validType(decl.Result.Pos(), result, ctxResult) {
			ok = false
		}
	}

	var recv *types.Var
	if decl.Recv != nil {
		recv = c.checkDropHook(fn, decl)
		if recv == nil {
			ok = false
		}
	}

	if ok {
		fn.SetSignature(types.NewFunc(recv, params, result))
	}
}

// checkDropHook validates a drop hook declaration and attaches it to its
// receiver type.
func (c *Checker) checkDropHook(fn *types.FuncObj, decl *syntax.FuncDecl) *types.Var {
	if decl.Name.Value != "drop" {
		c.errorf(decl.Name.Pos(), "methods are not supported; only a drop hook may have a receiver")
		return nil
	}
	if len(decl.Params) != 0 || decl.Result != nil {
		c.errorf(decl.Name.Pos(), "drop hook must have signature func (v *T) drop()")
		return nil
	}
	rtype := c.resolveType(decl.Recv.Type)
	if rtype == nil {
		return nil
	}
	ptr, ok := rtype.(*types.Pointer)
	var named *types.Named
	if ok {
		named, ok = ptr.Elem().(*types.Named)
	}
	if !ok || named.Obj().Parent() != c.pkg {
		c.errorf(decl.Recv.Type.Pos(), "drop hook receiver must be a pointer to a type declared in this package, not %s", rtype)
		return nil
	}
	if named.HasDrop() {
		c.errorf(decl.Name.Pos(), "%s already has a drop hook", named)
		return nil
	}
	named.AddMethod(fn)
	return types.NewVar(decl.Recv.Pos(), decl.Recv.Name.Value, rtype)
}

// checkFuncBody type-checks a function body.
func (c *Checker) checkFuncBody(fn *types.FuncObj, decl *syntax.FuncDecl) {
	sig := fn.Signature()
	if sig == nil || decl.Body == nil {
		return
	}

	c.fn = fn
	c.sig = sig
	c.hasReturn = false
	defer func() {
		c.fn = nil
		c.sig = nil
	}()

	c.openScope(decl.Body, types.FuncScope, decl.Body.Rbrace, decl.Name.Value)

	if recv := sig.Recv(); recv != nil {
		c.declareParam(decl.Recv.Name, recv)
	}
	for i, p := range sig.Params() {
		c.declareParam(decl.Params[i].Name, p)
	}

	c.stmts(decl.Body.Stmts)

	if sig.Result() != nil && !c.hasReturn {
		c.errorf(decl.Body.Rbrace, "missing return statement")
	}

	c.closeScope()
}

func (c *Checker) declareParam(name *syntax.Name, v *types.Var) {
	c.declare(name, v)
	c.vars[v] = &varState{param: true}
}
