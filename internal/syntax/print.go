package syntax

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a textual representation of the AST to w.
func Fprint(w io.Writer, node Node) {
	p := &printer{w: w}
	p.print(node)
}

type printer struct {
	w      io.Writer
	indent int
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s%s", strings.Repeat("  ", p.indent), fmt.Sprintf(format, args...))
}

// child prints node one level deeper under an optional label.
func (p *printer) child(label string, node Node) {
	if label != "" {
		p.printf("%s:\n", label)
	}
	p.indent++
	p.print(node)
	p.indent--
}

func (p *printer) print(node Node) {
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *File:
		p.printf("File %s\n", n.pos)
		p.indent++
		p.printf("Package: %s\n", n.PkgName.Value)
		for _, d := range n.Decls {
			p.print(d)
		}
		p.indent--

	case *TypeDecl:
		p.printf("TypeDecl %s\n", n.pos)
		p.indent++
		p.printf("Name: %s\n", n.Name.Value)
		p.printf("Type: %s\n", ExprString(n.Type))
		p.indent--

	case *FuncDecl:
		p.printf("FuncDecl %s\n", n.pos)
		p.indent++
		if n.Recv != nil {
			p.printf("Recv: %s %s\n", n.Recv.Name.Value, ExprString(n.Recv.Type))
		}
		p.printf("Name: %s\n", n.Name.Value)
		if len(n.Params) > 0 {
			p.printf("Params:\n")
			p.indent++
			for _, f := range n.Params {
				p.printf("%s %s\n", f.Name.Value, ExprString(f.Type))
			}
			p.indent--
		}
		if n.Result != nil {
			p.printf("Result: %s\n", ExprString(n.Result))
		}
		if n.Body != nil {
			p.child("Body", n.Body)
		}
		p.indent--

	case *BlockStmt:
		p.printf("BlockStmt %s\n", n.pos)
		p.indent++
		for _, s := range n.Stmts {
			p.print(s)
		}
		p.indent--

	case *ReturnStmt:
		p.printf("ReturnStmt %s\n", n.pos)
		p.child("", n.Result)

	case *AssignStmt:
		p.printf("AssignStmt %s %s\n", n.pos, n.Op)
		p.indent++
		p.child("LHS", n.LHS)
		p.child("RHS", n.RHS)
		p.indent--

	case *VarStmt:
		p.printf("VarStmt %s\n", n.pos)
		p.indent++
		p.printf("Name: %s\n", n.Name.Value)
		if n.Type != nil {
			p.printf("Type: %s\n", ExprString(n.Type))
		}
		if n.Value != nil {
			p.child("Value", n.Value)
		}
		p.indent--

	case *ExprStmt:
		p.printf("ExprStmt %s\n", n.pos)
		p.child("", n.X)

	case *EmptyStmt:
		p.printf("EmptyStmt %s\n", n.pos)

	case *Name:
		p.printf("Name %s %q\n", n.pos, n.Value)

	case *BasicLit:
		p.printf("BasicLit %s %s %q\n", n.pos, n.Kind, n.Value)

	case *Operation:
		if n.Y == nil {
			p.printf("UnaryOp %s %s\n", n.pos, n.Op)
			p.child("", n.X)
		} else {
			p.printf("BinaryOp %s %s\n", n.pos, n.Op)
			p.indent++
			p.child("X", n.X)
			p.child("Y", n.Y)
			p.indent--
		}

	case *CallExpr:
		p.printf("CallExpr %s\n", n.pos)
		p.indent++
		p.child("Fun", n.Fun)
		if len(n.Args) > 0 {
			p.printf("Args:\n")
			p.indent++
			for _, a := range n.Args {
				p.print(a)
			}
			p.indent--
		}
		p.indent--

	case *IndexExpr:
		p.printf("IndexExpr %s\n", n.pos)
		p.indent++
		p.child("X", n.X)
		p.child("Index", n.Index)
		p.indent--

	case *SelectorExpr:
		p.printf("SelectorExpr %s\n", n.pos)
		p.indent++
		p.child("X", n.X)
		p.printf("Sel: %s\n", n.Sel.Value)
		p.indent--

	case *ParenExpr:
		p.printf("ParenExpr %s\n", n.pos)
		p.child("", n.X)

	case *CompositeLit:
		p.printf("CompositeLit %s\n", n.pos)
		p.indent++
		p.printf("Type: %s\n", ExprString(n.Type))
		if len(n.Elems) > 0 {
			p.printf("Elems:\n")
			p.indent++
			for _, e := range n.Elems {
				p.print(e)
			}
			p.indent--
		}
		p.indent--

	case *KeyValueExpr:
		p.printf("KeyValue %s\n", n.pos)
		p.indent++
		p.child("Key", n.Key)
		p.child("Value", n.Value)
		p.indent--

	case *RepeatLit:
		p.printf("RepeatLit %s\n", n.pos)
		p.indent++
		p.printf("Type: %s\n", ExprString(n.Type))
		p.child("Value", n.Value)
		p.child("Count", n.Count)
		p.indent--

	case *InplaceExpr:
		p.printf("InplaceExpr %s\n", n.pos)
		p.child("", n.X)

	case *BlockExpr:
		p.printf("BlockExpr %s\n", n.pos)
		p.child("", n.Body)

	case *TryExpr:
		p.printf("TryExpr %s\n", n.pos)
		p.child("", n.X)

	case *Field:
		p.printf("Field %s\n", n.pos)
		p.indent++
		if n.Name != nil {
			p.printf("Name: %s\n", n.Name.Value)
		}
		p.printf("Type: %s\n", ExprString(n.Type))
		p.indent--

	case *ArrayType, *SliceType, *PointerType, *StructType, *InplaceType, *DualType, *ResultType:
		p.printf("Type %s %s\n", node.Pos(), ExprString(node.(Expr)))

	default:
		p.printf("<%T>\n", node)
	}
}

// ExprString returns the source form of an expression or type expression.
// Blocks are abbreviated to {...}.
func ExprString(e Expr) string {
	var b strings.Builder
	writeExpr(&b, e)
	return b.String()
}

func writeExpr(b *strings.Builder, e Expr) {
	if e == nil {
		b.WriteString("<nil>")
		return
	}
	switch x := e.(type) {
	case *Name:
		b.WriteString(x.Value)
	case *BasicLit:
		b.WriteString(x.Value)
	case *Operation:
		if x.Y == nil {
			b.WriteString(x.Op.String())
			writeExpr(b, x.X)
			return
		}
		writeExpr(b, x.X)
		b.WriteString(" " + x.Op.String() + " ")
		writeExpr(b, x.Y)
	case *CallExpr:
		writeExpr(b, x.Fun)
		b.WriteByte('(')
		for i, a := range x.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpr(b, a)
		}
		b.WriteByte(')')
	case *IndexExpr:
		writeExpr(b, x.X)
		b.WriteByte('[')
		writeExpr(b, x.Index)
		b.WriteByte(']')
	case *SelectorExpr:
		writeExpr(b, x.X)
		b.WriteByte('.')
		b.WriteString(x.Sel.Value)
	case *ParenExpr:
		b.WriteByte('(')
		writeExpr(b, x.X)
		b.WriteByte(')')
	case *CompositeLit:
		writeExpr(b, x.Type)
		b.WriteByte('{')
		for i, el := range x.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpr(b, el)
		}
		b.WriteByte('}')
	case *KeyValueExpr:
		writeExpr(b, x.Key)
		b.WriteString(": ")
		writeExpr(b, x.Value)
	case *RepeatLit:
		writeExpr(b, x.Type)
		b.WriteByte('{')
		writeExpr(b, x.Value)
		b.WriteString("; ")
		writeExpr(b, x.Count)
		b.WriteByte('}')
	case *InplaceExpr:
		b.WriteString("inplace ")
		writeExpr(b, x.X)
	case *BlockExpr:
		b.WriteString("{...}")
	case *TryExpr:
		writeExpr(b, x.X)
		b.WriteByte('?')
	case *ArrayType:
		b.WriteByte('[')
		writeExpr(b, x.Len)
		b.WriteByte(']')
		writeExpr(b, x.Elem)
	case *SliceType:
		b.WriteString("[]")
		writeExpr(b, x.Elem)
	case *PointerType:
		b.WriteByte('*')
		writeExpr(b, x.Base)
	case *StructType:
		b.WriteString("struct{")
		for i, f := range x.Fields {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(f.Name.Value + " ")
			writeExpr(b, f.Type)
		}
		b.WriteByte('}')
	case *InplaceType:
		b.WriteString("inplace ")
		writeExpr(b, x.Elem)
	case *DualType:
		b.WriteString("?inplace ")
		writeExpr(b, x.Elem)
	case *ResultType:
		b.WriteString("Result[")
		writeExpr(b, x.Elem)
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}
