package syntax

// ----------------------------------------------------------------------------
// Interfaces
//
// There are 3 main classes of nodes: Expressions, Statements, and Declarations.
// All nodes implement the Node interface. Type expressions are Exprs.

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Pos // position of first character belonging to the node
	aNode()   // marker method to restrict implementations to this package
}

// Expr is the interface for all expression nodes.
type Expr interface {
	Node
	aExpr()
}

// Stmt is the interface for all statement nodes.
type Stmt interface {
	Node
	aStmt()
}

// Decl is the interface for all declaration nodes.
type Decl interface {
	Node
	aDecl()
}

// ----------------------------------------------------------------------------
// Base node types

type node struct {
	pos Pos
}

func (n *node) Pos() Pos { return n.pos }
func (n *node) aNode()   {}

// SetPos sets the node position. Used by code that synthesizes nodes.
func (n *node) SetPos(pos Pos) { n.pos = pos }

type expr struct{ node }

func (*expr) aExpr() {}

type stmt struct{ node }

func (*stmt) aStmt() {}

type decl struct{ node }

func (*decl) aDecl() {}

// ----------------------------------------------------------------------------
// Files and Declarations

// File represents a complete source file.
type File struct {
	node
	PkgName *Name  // package name
	Decls   []Decl // top-level declarations
}

// TypeDecl represents a type declaration: type Name Type
type TypeDecl struct {
	decl
	Name *Name // type name
	Type Expr  // the type expression
}

// FuncDecl represents a function declaration.
// func (Recv) Name(Params) Result { Body }
// A receiver is only valid on a drop hook: func (v *T) drop().
type FuncDecl struct {
	decl
	Recv   *Field     // receiver (nil for plain functions)
	Name   *Name      // function name
	Params []*Field   // parameter list
	Result Expr       // return type (nil for no result)
	Body   *BlockStmt // function body
}

// Field represents a named field in a struct or parameter list.
type Field struct {
	node
	Name *Name // field name
	Type Expr  // field type
}

// ----------------------------------------------------------------------------
// Expressions

// Name represents an identifier.
type Name struct {
	expr
	Value string
}

// BasicLit represents a numeric literal.
type BasicLit struct {
	expr
	Value string  // literal text
	Kind  LitKind // IntLit, FloatLit
}

// Operation represents a unary or binary operation.
// For unary operations, Y is nil.
type Operation struct {
	expr
	Op Token // operator token
	X  Expr  // left operand (or only operand for unary)
	Y  Expr  // right operand (nil for unary)
}

// CallExpr represents a function call: Fun(Args...)
type CallExpr struct {
	expr
	Fun  Expr
	Args []Expr
}

// IndexExpr represents an index expression: X[Index]
type IndexExpr struct {
	expr
	X     Expr
	Index Expr
}

// SelectorExpr represents a selector expression: X.Sel
type SelectorExpr struct {
	expr
	X   Expr
	Sel *Name
}

// ParenExpr represents a parenthesized expression: (X)
type ParenExpr struct {
	expr
	X Expr
}

// CompositeLit represents a composite literal: Type{Elems...}.
// Type is a struct type name, an ArrayType, or a SliceType.
type CompositeLit struct {
	expr
	Type  Expr   // literal type
	Elems []Expr // elements (KeyValueExpr for struct fields)
}

// KeyValueExpr represents a key:value pair in composite literals.
type KeyValueExpr struct {
	expr
	Key   Expr // field name
	Value Expr // field value
}

// RepeatLit represents a repeat literal: Type{Value; Count}.
// It produces Count copies of Value.
type RepeatLit struct {
	expr
	Type  Expr // ArrayType or SliceType
	Value Expr // element value
	Count Expr // element count
}

// InplaceExpr represents a deferral request: inplace X.
// X is a BlockExpr for an explicit deferred block.
type InplaceExpr struct {
	expr
	X Expr
}

// BlockExpr is a block used as an expression: { Stmts... }.
// Its value is the value of the final expression statement.
type BlockExpr struct {
	expr
	Body *BlockStmt
}

// TryExpr represents fallible-result propagation: X?
type TryExpr struct {
	expr
	X Expr
}

// ----------------------------------------------------------------------------
// Type Expressions

// ArrayType represents an array type: [Len]Elem
type ArrayType struct {
	expr
	Len  Expr // length expression (must be constant)
	Elem Expr
}

// SliceType represents an unsized array type: []Elem
type SliceType struct {
	expr
	Elem Expr
}

// PointerType represents a borrowed pointer type: *Base
type PointerType struct {
	expr
	Base Expr
}

// StructType represents a struct type: struct { Fields... }
type StructType struct {
	expr
	Fields []*Field
}

// InplaceType represents a deferred value type: inplace Elem
type InplaceType struct {
	expr
	Elem Expr
}

// DualType represents the dual type: ?inplace Elem
type DualType struct {
	expr
	Elem Expr
}

// ResultType represents a fallible result type: Result[Elem]
type ResultType struct {
	expr
	Elem Expr
}

// ----------------------------------------------------------------------------
// Statements

// EmptyStmt represents an empty statement (just a semicolon).
type EmptyStmt struct {
	stmt
}

// ExprStmt represents an expression used as a statement.
type ExprStmt struct {
	stmt
	X Expr
}

// AssignStmt represents an assignment: LHS = RHS or LHS := RHS
type AssignStmt struct {
	stmt
	Op  Token // Assign or Define
	LHS Expr
	RHS Expr
}

// VarStmt represents a variable declaration: var Name Type = Value
type VarStmt struct {
	stmt
	Name  *Name
	Type  Expr // explicit type (nil if inferred)
	Value Expr // initial value (nil if none)
}

// BlockStmt represents a block statement: { Stmts... }
type BlockStmt struct {
	stmt
	Stmts  []Stmt
	Rbrace Pos // position of closing brace
}

// ReturnStmt represents a return statement: return [Result]
type ReturnStmt struct {
	stmt
	Result Expr // return value (nil for bare return)
}

// Tail returns the value expression of a block used as an expression:
// the final statement, when it is an expression statement.
func (b *BlockStmt) Tail() Expr {
	if len(b.Stmts) == 0 {
		return nil
	}
	if s, ok := b.Stmts[len(b.Stmts)-1].(*ExprStmt); ok {
		return s.X
	}
	return nil
}

// Init returns the statements that precede the tail expression.
func (b *BlockStmt) Init() []Stmt {
	if b.Tail() == nil {
		return b.Stmts
	}
	return b.Stmts[:len(b.Stmts)-1]
}
