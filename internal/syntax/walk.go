package syntax

// Visitor is called for each node during Walk.
// If it returns false, the children of the node are not visited.
type Visitor func(node Node) bool

// Walk traverses an AST in depth-first order.
// If visitor returns false, children are not visited.
func Walk(node Node, v Visitor) {
	if node == nil || !v(node) {
		return
	}

	switch n := node.(type) {
	case *File:
		Walk(n.PkgName, v)
		for _, d := range n.Decls {
			Walk(d, v)
		}

	case *TypeDecl:
		Walk(n.Name, v)
		Walk(n.Type, v)

	case *FuncDecl:
		if n.Recv != nil {
			Walk(n.Recv, v)
		}
		Walk(n.Name, v)
		for _, p := range n.Params {
			Walk(p, v)
		}
		if n.Result != nil {
			Walk(n.Result, v)
		}
		if n.Body != nil {
			Walk(n.Body, v)
		}

	case *Field:
		if n.Name != nil {
			Walk(n.Name, v)
		}
		Walk(n.Type, v)

	case *BlockStmt:
		for _, s := range n.Stmts {
			Walk(s, v)
		}

	case *ReturnStmt:
		if n.Result != nil {
			Walk(n.Result, v)
		}

	case *AssignStmt:
		Walk(n.LHS, v)
		Walk(n.RHS, v)

	case *VarStmt:
		Walk(n.Name, v)
		if n.Type != nil {
			Walk(n.Type, v)
		}
		if n.Value != nil {
			Walk(n.Value, v)
		}

	case *ExprStmt:
		Walk(n.X, v)

	case *Operation:
		Walk(n.X, v)
		if n.Y != nil {
			Walk(n.Y, v)
		}

	case *CallExpr:
		Walk(n.Fun, v)
		for _, a := range n.Args {
			Walk(a, v)
		}

	case *IndexExpr:
		Walk(n.X, v)
		Walk(n.Index, v)

	case *SelectorExpr:
		Walk(n.X, v)
		Walk(n.Sel, v)

	case *ParenExpr:
		Walk(n.X, v)

	case *CompositeLit:
		Walk(n.Type, v)
		for _, e := range n.Elems {
			Walk(e, v)
		}

	case *KeyValueExpr:
		Walk(n.Key, v)
		Walk(n.Value, v)

	case *RepeatLit:
		Walk(n.Type, v)
		Walk(n.Value, v)
		Walk(n.Count, v)

	case *InplaceExpr:
		Walk(n.X, v)

	case *BlockExpr:
		Walk(n.Body, v)

	case *TryExpr:
		Walk(n.X, v)

	case *ArrayType:
		Walk(n.Len, v)
		Walk(n.Elem, v)

	case *SliceType:
		Walk(n.Elem, v)

	case *PointerType:
		Walk(n.Base, v)

	case *StructType:
		for _, f := range n.Fields {
			Walk(f, v)
		}

	case *InplaceType:
		Walk(n.Elem, v)

	case *DualType:
		Walk(n.Elem, v)

	case *ResultType:
		Walk(n.Elem, v)

		// Leaf nodes: Name, BasicLit, EmptyStmt
	}
}

// Inspect traverses an AST and calls f for each node.
// Convenience wrapper around Walk.
func Inspect(node Node, f func(Node) bool) {
	Walk(node, Visitor(f))
}
