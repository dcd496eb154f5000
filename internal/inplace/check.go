package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// Checker type-checks a file, tracks moves of non-copyable values, and
// builds a plan for every deferral site.
type Checker struct {
	conf     *Config
	info     *Info
	filename string
	pkg      *types.Scope // package scope

	// Current checking context
	scope *types.Scope // current scope
	fn    *types.FuncObj
	sig   *types.Func // current function signature
	block *blockCtx   // innermost deferred block, if any

	hasReturn bool
	borrowing *syntax.Name // root of the operand of the enclosing &

	// Declaration objects keyed by AST node. Drop hooks are not in the
	// package scope, so all functions are tracked here.
	funcs    map[*types.FuncObj]*syntax.FuncDecl
	funcList []*types.FuncObj // in declaration order

	vars   map[*types.Var]*varState      // locals of the function being checked
	fx     map[*types.FuncObj]*funcFacts // memoized effect and unwind facts
	plans  []*Plan                       // candidate plans in creation order
	planOf map[syntax.Expr]*Plan

	// Error tracking
	errors int    // error count
	first  *Error // first error
}

// varState tracks a local variable across the straight-line body of its
// function.
type varState struct {
	moved    syntax.Pos    // position of the move, if moved
	borrowed syntax.Pos    // position of the borrowing deferred block, if any
	srcs     []syntax.Expr // initializer and assigned values
	param    bool
}

// blockCtx collects the free variables of an explicit deferred block.
type blockCtx struct {
	outer *blockCtx
	scope *types.Scope
	uses  map[*types.Var]*capture
	order []*types.Var
}

// capture is a free variable of a deferred block.
type capture struct {
	v        *types.Var
	byValue  bool // used by value somewhere in the block
	pos      syntax.Pos
	assigned syntax.Pos
}

// checkFile type-checks a single file.
func (c *Checker) checkFile(file *syntax.File) {
	pkgName := "main"
	if file.PkgName != nil {
		pkgName = file.PkgName.Value
	}
	c.pkg = types.NewScope(types.Universe, types.PackageScope, file.Pos(), syntax.Pos{}, pkgName)
	c.scope = c.pkg

	// Record file scope
	c.info.Scopes[file] = c.scope

	// Phase 1: Collect all top-level declarations
	c.collectDecls(file.Decls)

	// Phase 2: Resolve type declarations, then validate them as a whole
	var typeDecls []*syntax.TypeDecl
	for _, decl := range file.Decls {
		if td, ok := decl.(*syntax.TypeDecl); ok {
			typeDecls = append(typeDecls, td)
		}
	}
	c.checkTypeCycles(c.checkTypeDecls(typeDecls))

	// Phase 3: Check function signatures
	for _, fn := range c.funcList {
		c.checkFuncSignature(fn, c.funcs[fn])
	}

	// Phase 4: Check function bodies
	for _, fn := range c.funcList {
		c.checkFuncBody(fn, c.funcs[fn])
	}

	// Phase 5: Validate and accept the plans. Effect and unwind facts
	// about callees are only complete once every body has been checked.
	if c.errors == 0 {
		for _, p := range c.plans {
			c.acceptPlan(p)
		}
	}
}

// openScope creates a new scope as a child of the current scope.
func (c *Checker) openScope(n syntax.Node, kind types.ScopeKind, end syntax.Pos, name string) *types.Scope {
	s := types.NewScope(c.scope, kind, n.Pos(), end, name)
	c.scope = s
	c.info.Scopes[n] = s
	return s
}

// closeScope returns to the parent scope.
func (c *Checker) closeScope() {
	c.scope = c.scope.Parent()
}

// lookup looks up a name in the current scope chain.
func (c *Checker) lookup(name string) types.Object {
	obj, _ := c.scope.LookupParent(name)
	return obj
}

// declare declares an object in the current scope.
// Reports an error if the name is already declared.
func (c *Checker) declare(name *syntax.Name, obj types.Object) {
	if name.Value == "_" {
		c.info.Defs[name] = obj
		return
	}
	if existing := c.scope.Insert(obj); existing != nil {
		c.errorf(name.Pos(), "%s redeclared in this block", name.Value)
		return
	}
	c.info.Defs[name] = obj
}

// declareLocal declares a local variable and starts tracking it.
func (c *Checker) declareLocal(name *syntax.Name, v *types.Var, src syntax.Expr) {
	c.declare(name, v)
	st := &varState{}
	if src != nil {
		st.srcs = []syntax.Expr{src}
	}
	c.vars[v] = st
}

// recordType records the type information for an expression.
func (c *Checker) recordType(e syntax.Expr, x *operand) {
	c.info.Types[e] = TypeAndValue{
		Type:  x.typ,
		Value: x.val,
		mode:  x.mode,
	}
}

// recordUse records a use of an object.
func (c *Checker) recordUse(name *syntax.Name, obj types.Object) {
	c.info.Uses[name] = obj
}

// recordConversion adds k to the conversions applied to e.
func (c *Checker) recordConversion(e syntax.Expr, k Conversion) {
	c.info.Conversions[e] |= k
}

// host returns the configured host, which may be empty.
func (c *Checker) host() *Host {
	if c.conf.Host == nil {
		return emptyHost
	}
	return c.conf.Host
}

// typeOf returns the recorded type of e, or nil.
func (c *Checker) typeOf(e syntax.Expr) types.Type {
	return c.info.Types[e].Type
}

// unparen strips any enclosing parentheses from e.
func unparen(e syntax.Expr) syntax.Expr {
	for {
		p, ok := e.(*syntax.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
