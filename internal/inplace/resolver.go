package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// collectDecls collects all top-level declarations and creates
// placeholder objects for them in the package scope.
func (c *Checker) collectDecls(decls []syntax.Decl) {
	for _, d := range decls {
		switch decl := d.(type) {
		case *syntax.TypeDecl:
			c.collectTypeDecl(decl)
		case *syntax.FuncDecl:
			c.collectFuncDecl(decl)
		}
	}
}

// collectTypeDecl collects a type declaration.
func (c *Checker) collectTypeDecl(decl *syntax.TypeDecl) {
	// The underlying type is resolved in checkTypeDecl; creating the Named
	// now lets declarations refer to each other in any order.
	obj := types.NewTypeName(decl.Name.Pos(), decl.Name.Value, nil)
	n := types.NewNamed(obj, nil)
	if _, ok := c.host().Drops[decl.Name.Value]; ok {
		n.SetHostDrop()
	}
	c.declare(decl.Name, obj)
}

// collectFuncDecl collects a function declaration.
func (c *Checker) collectFuncDecl(decl *syntax.FuncDecl) {
	name := decl.Name.Value
	obj := types.NewFuncObj(decl.Name.Pos(), name)
	c.funcs[obj] = decl
	c.funcList = append(c.funcList, obj)

	// Drop hooks are attached to their receiver type in checkFuncSignature
	if decl.Recv != nil {
		c.info.Defs[decl.Name] = obj
		return
	}

	if c.host().lookup(name) {
		c.errorf(decl.Name.Pos(), "%s redeclared (host function)", name)
		return
	}
	c.declare(decl.Name, obj)
}

// resolve resolves a name to an object.
// Reports an error if the name is undefined.
func (c *Checker) resolve(name *syntax.Name) types.Object {
	obj := c.lookup(name.Value)
	if obj == nil {
		c.errorf(name.Pos(), "undefined: %s", name.Value)
		return nil
	}
	c.recordUse(name, obj)
	return obj
}

// resolveType resolves a type expression and returns the resulting type.
func (c *Checker) resolveType(e syntax.Expr) types.Type {
	var x operand
	c.typExpr(&x, e)
	if x.mode == invalid {
		return nil
	}
	c.recordType(e, &x)
	return x.typ
}

// funcDecl returns the declaration of a source function.
func (c *Checker) funcDecl(fn *types.FuncObj) *syntax.FuncDecl {
	return c.funcs[fn]
}
