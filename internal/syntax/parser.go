package syntax

import "io"

// Maximum number of errors before aborting parse.
const maxErrors = 10

// SyntaxError represents a syntax error.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

// Parser performs syntax analysis on emplace source code.
type Parser struct {
	scanner *Scanner

	// Current token info (cached from scanner)
	tok Token
	lit string
	pos Pos

	// Error handling
	errh   func(pos Pos, msg string)
	errcnt int
	first  error // first error encountered
	abort  bool  // set to true when error limit reached
}

// NewParser creates a new Parser for the given source.
func NewParser(filename string, src io.Reader, errh func(pos Pos, msg string)) *Parser {
	p := &Parser{errh: errh}
	scanErrh := func(line, col uint32, msg string) {
		p.syntaxErrorAt(NewPos(filename, line, col), msg)
	}
	p.scanner = NewScanner(filename, src, scanErrh)
	p.next() // prime the parser with first token
	return p
}

// SetASIEnabled passes the ASI setting to the underlying scanner.
func (p *Parser) SetASIEnabled(enabled bool) {
	p.scanner.SetASIEnabled(enabled)
}

// ----------------------------------------------------------------------------
// Token navigation

func (p *Parser) next() {
	p.scanner.Next()
	p.tok = p.scanner.Token()
	p.lit = p.scanner.Literal()
	p.pos = p.scanner.Pos()
}

// got reports whether the current token is tok.
// If so, it consumes the token and returns true.
func (p *Parser) got(tok Token) bool {
	if p.tok == tok {
		p.next()
		return true
	}
	return false
}

// want consumes the current token if it matches tok.
// Otherwise, reports an error.
func (p *Parser) want(tok Token) {
	if !p.got(tok) {
		p.syntaxError("expected " + tok.String() + ", found " + p.describe())
		p.advance()
	}
}

// stmtEnd consumes a statement terminator. As in Go, the semicolon
// may be omitted before a closing brace.
func (p *Parser) stmtEnd() {
	if p.tok == _Rbrace || p.tok == _EOF {
		return
	}
	p.want(_Semi)
}

func (p *Parser) describe() string {
	switch p.tok {
	case _Name:
		return "name " + p.lit
	case _Literal:
		return "literal " + p.lit
	case _Semi:
		if p.lit == "newline" || p.lit == "EOF" {
			return p.lit
		}
	}
	return p.tok.String()
}

// ----------------------------------------------------------------------------
// Error handling

func (p *Parser) syntaxError(msg string) {
	p.syntaxErrorAt(p.pos, msg)
}

func (p *Parser) syntaxErrorAt(pos Pos, msg string) {
	if p.abort {
		return
	}
	if p.errcnt == 0 {
		p.first = &SyntaxError{Pos: pos, Msg: msg}
	}
	p.errcnt++

	if p.errh != nil {
		p.errh(pos, msg)
	}

	if p.errcnt >= maxErrors {
		p.abort = true
		if p.errh != nil {
			p.errh(pos, "too many errors; aborting parse")
		}
		p.tok = _EOF
	}
}

// syncTokens are the tokens advance stops at.
var syncTokens = map[Token]bool{
	_Semi:    true,
	_Rbrace:  true,
	_Rparen:  true,
	_Rbrack:  true,
	_Package: true,
	_Type:    true,
	_Var:     true,
	_Func:    true,
	_Return:  true,
}

// advance skips tokens until it finds a synchronization point.
func (p *Parser) advance() {
	for p.tok != _EOF && !syncTokens[p.tok] {
		p.next()
	}
	// Consume the sync point to avoid repeated errors at the same position.
	if p.tok != _EOF {
		p.next()
	}
}

// Errors returns the number of errors encountered during parsing.
func (p *Parser) Errors() int {
	return p.errcnt
}

// FirstError returns the first error encountered, or nil if none.
func (p *Parser) FirstError() error {
	return p.first
}

// ----------------------------------------------------------------------------
// Parsing entry point

// Parse parses a complete source file and returns the AST.
func (p *Parser) Parse() *File {
	f := &File{}
	f.pos = p.pos

	p.want(_Package)
	f.PkgName = p.name()
	p.want(_Semi)

	for !p.abort && p.tok != _EOF {
		if p.got(_Semi) {
			continue
		}
		if d := p.decl(); d != nil {
			f.Decls = append(f.Decls, d)
		}
	}

	return f
}

// Parse is a convenience wrapper that parses src and returns the file
// together with the first syntax error, if any.
func Parse(filename string, src io.Reader, errh func(pos Pos, msg string)) (*File, error) {
	p := NewParser(filename, src, errh)
	f := p.Parse()
	return f, p.FirstError()
}

func (p *Parser) name() *Name {
	if p.tok != _Name {
		p.syntaxError("expected identifier, found " + p.describe())
		n := &Name{Value: "_"}
		n.pos = p.pos
		return n
	}
	n := &Name{Value: p.lit}
	n.pos = p.pos
	p.next()
	return n
}

// ----------------------------------------------------------------------------
// Declarations

func (p *Parser) decl() Decl {
	switch p.tok {
	case _Type:
		return p.typeDecl()
	case _Func:
		return p.funcDecl()
	default:
		p.syntaxError("expected declaration, found " + p.describe())
		p.advance()
		return nil
	}
}

// typeDecl parses: type Name Type
func (p *Parser) typeDecl() *TypeDecl {
	d := &TypeDecl{}
	d.pos = p.pos

	p.want(_Type)
	d.Name = p.name()
	d.Type = p.type_()
	p.want(_Semi)

	return d
}

// funcDecl parses: func [(recv *T)] Name(params) [result] { body }
func (p *Parser) funcDecl() *FuncDecl {
	d := &FuncDecl{}
	d.pos = p.pos

	p.want(_Func)
	if p.got(_Lparen) {
		f := &Field{}
		f.pos = p.pos
		f.Name = p.name()
		f.Type = p.type_()
		p.want(_Rparen)
		d.Recv = f
	}
	d.Name = p.name()
	d.Params = p.paramList()

	if p.tok != _Lbrace {
		d.Result = p.type_()
	}

	d.Body = p.blockStmt()
	return d
}

// paramList parses (p1 T1, p2 T2, ...)
func (p *Parser) paramList() []*Field {
	p.want(_Lparen)

	var params []*Field
	for p.tok != _Rparen && p.tok != _EOF {
		f := &Field{}
		f.pos = p.pos
		f.Name = p.name()
		f.Type = p.type_()
		params = append(params, f)
		if !p.got(_Comma) {
			break
		}
	}

	p.want(_Rparen)
	return params
}

// ----------------------------------------------------------------------------
// Types

// type_ parses a type expression.
func (p *Parser) type_() Expr {
	switch p.tok {
	case _Name:
		n := p.name()
		if n.Value == "Result" && p.tok == _Lbrack {
			return p.resultType(n)
		}
		return n

	case _Mul: // *T
		t := &PointerType{}
		t.pos = p.pos
		p.next()
		t.Base = p.type_()
		return t

	case _Lbrack: // [N]T or []T
		return p.arrayOrSliceType()

	case _Struct:
		return p.structType()

	case _Inplace: // inplace T
		t := &InplaceType{}
		t.pos = p.pos
		p.next()
		t.Elem = p.type_()
		return t

	case _Question: // ?inplace T
		t := &DualType{}
		t.pos = p.pos
		p.next()
		p.want(_Inplace)
		t.Elem = p.type_()
		return t

	default:
		p.syntaxError("expected type, found " + p.describe())
		n := &Name{Value: "_"}
		n.pos = p.pos
		return n
	}
}

// resultType parses the bracketed part of Result[T].
func (p *Parser) resultType(n *Name) Expr {
	t := &ResultType{}
	t.pos = n.Pos()
	p.want(_Lbrack)
	t.Elem = p.type_()
	p.want(_Rbrack)
	return t
}

func (p *Parser) arrayOrSliceType() Expr {
	pos := p.pos
	p.want(_Lbrack)
	if p.got(_Rbrack) {
		t := &SliceType{}
		t.pos = pos
		t.Elem = p.type_()
		return t
	}
	t := &ArrayType{}
	t.pos = pos
	t.Len = p.expr()
	p.want(_Rbrack)
	t.Elem = p.type_()
	return t
}

// structType parses struct { Fields... }
func (p *Parser) structType() Expr {
	st := &StructType{}
	st.pos = p.pos

	p.want(_Struct)
	p.want(_Lbrace)
	for p.tok != _Rbrace && p.tok != _EOF {
		if p.got(_Semi) {
			continue
		}
		f := &Field{}
		f.pos = p.pos
		f.Name = p.name()
		f.Type = p.type_()
		st.Fields = append(st.Fields, f)
		p.stmtEnd()
	}
	p.want(_Rbrace)
	return st
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) stmt() Stmt {
	switch p.tok {
	case _Lbrace:
		s := p.blockStmt()
		p.stmtEnd()
		return s

	case _Return:
		return p.returnStmt()

	case _Var:
		return p.varStmt()

	case _Semi:
		s := &EmptyStmt{}
		s.pos = p.pos
		p.next()
		return s

	default:
		return p.simpleStmt()
	}
}

// simpleStmt parses an expression statement or assignment.
func (p *Parser) simpleStmt() Stmt {
	pos := p.pos
	x := p.expr()

	if p.tok == _Assign || p.tok == _Define {
		s := &AssignStmt{Op: p.tok, LHS: x}
		s.pos = pos
		p.next()
		s.RHS = p.expr()
		p.stmtEnd()
		return s
	}

	s := &ExprStmt{X: x}
	s.pos = pos
	p.stmtEnd()
	return s
}

// varStmt parses: var Name [Type] [= Value]
func (p *Parser) varStmt() Stmt {
	s := &VarStmt{}
	s.pos = p.pos

	p.want(_Var)
	s.Name = p.name()
	if p.tok != _Assign {
		s.Type = p.type_()
	}
	if p.got(_Assign) {
		s.Value = p.expr()
	}
	p.stmtEnd()
	return s
}

// blockStmt parses { stmts... }
func (p *Parser) blockStmt() *BlockStmt {
	b := &BlockStmt{}
	b.pos = p.pos

	p.want(_Lbrace)
	for p.tok != _Rbrace && p.tok != _EOF {
		b.Stmts = append(b.Stmts, p.stmt())
	}
	b.Rbrace = p.pos
	p.want(_Rbrace)

	return b
}

// returnStmt parses: return [expr]
func (p *Parser) returnStmt() Stmt {
	s := &ReturnStmt{}
	s.pos = p.pos

	p.want(_Return)
	if p.tok != _Semi && p.tok != _Rbrace && p.tok != _EOF {
		s.Result = p.expr()
	}
	p.stmtEnd()
	return s
}

// ----------------------------------------------------------------------------
// Expressions

func (p *Parser) expr() Expr {
	return p.binaryExpr(0)
}

// binaryExpr parses a binary expression with minimum precedence prec
// (precedence climbing).
func (p *Parser) binaryExpr(prec int) Expr {
	x := p.unaryExpr()

	for {
		oprec := p.tok.Precedence()
		if oprec <= prec {
			return x
		}

		op := &Operation{Op: p.tok, X: x}
		op.pos = x.Pos()
		p.next()
		op.Y = p.binaryExpr(oprec)
		x = op
	}
}

func (p *Parser) unaryExpr() Expr {
	switch p.tok {
	case _Not, _Sub, _Mul, _And:
		op := &Operation{Op: p.tok}
		op.pos = p.pos
		p.next()
		op.X = p.unaryExpr()
		return op

	case _Inplace:
		// inplace applies to a whole expression: inplace a + b defers a + b.
		x := &InplaceExpr{}
		x.pos = p.pos
		p.next()
		if p.tok == _Lbrace {
			b := &BlockExpr{}
			b.pos = p.pos
			b.Body = p.blockStmt()
			x.X = b
		} else {
			x.X = p.expr()
		}
		return x

	default:
		return p.primaryExpr()
	}
}

// primaryExpr parses an operand followed by postfix operations.
func (p *Parser) primaryExpr() Expr {
	x := p.operand()

	for {
		switch p.tok {
		case _Lparen:
			call := &CallExpr{Fun: x}
			call.pos = x.Pos()
			p.next()
			for p.tok != _Rparen && p.tok != _EOF {
				call.Args = append(call.Args, p.expr())
				if !p.got(_Comma) {
					break
				}
			}
			p.want(_Rparen)
			x = call

		case _Lbrack:
			idx := &IndexExpr{X: x}
			idx.pos = x.Pos()
			p.next()
			idx.Index = p.expr()
			p.want(_Rbrack)
			x = idx

		case _Dot:
			sel := &SelectorExpr{X: x}
			sel.pos = x.Pos()
			p.next()
			sel.Sel = p.name()
			x = sel

		case _Question:
			t := &TryExpr{X: x}
			t.pos = x.Pos()
			p.next()
			x = t

		default:
			return x
		}
	}
}

func (p *Parser) operand() Expr {
	switch p.tok {
	case _Name:
		n := &Name{Value: p.lit}
		n.pos = p.pos
		p.next()
		if p.tok == _Lbrace {
			return p.compositeLit(n)
		}
		return n

	case _Panic:
		// panic is lexically a keyword but called like a builtin function.
		n := &Name{Value: "panic"}
		n.pos = p.pos
		p.next()
		return n

	case _Literal:
		lit := &BasicLit{Value: p.lit, Kind: p.scanner.LitKind()}
		lit.pos = p.pos
		p.next()
		return lit

	case _Lparen:
		paren := &ParenExpr{}
		paren.pos = p.pos
		p.next()
		paren.X = p.expr()
		p.want(_Rparen)
		return paren

	case _Lbrack: // [N]T{...} or []T{...}
		typ := p.arrayOrSliceType()
		if p.tok != _Lbrace {
			p.syntaxError("expected composite literal after array type")
			return typ
		}
		return p.compositeLit(typ)

	default:
		p.syntaxError("expected operand, found " + p.describe())
		n := &Name{Value: "_"}
		n.pos = p.pos
		return n
	}
}

// compositeLit parses T{elem, key: value, ...} and the repeat form T{value; count}.
func (p *Parser) compositeLit(typ Expr) Expr {
	pos := typ.Pos()
	p.want(_Lbrace)

	var elems []Expr
	for p.tok != _Rbrace && p.tok != _EOF {
		elem := p.expr()
		if p.got(_Colon) {
			kv := &KeyValueExpr{Key: elem}
			kv.pos = elem.Pos()
			kv.Value = p.expr()
			elem = kv
		}
		if len(elems) == 0 && p.tok == _Semi && p.lit == ";" {
			p.next()
			r := &RepeatLit{Type: typ, Value: elem}
			r.pos = pos
			r.Count = p.expr()
			p.want(_Rbrace)
			return r
		}
		elems = append(elems, elem)
		if !p.got(_Comma) {
			break
		}
	}
	// A newline before the closing brace inserts a semicolon.
	p.got(_Semi)
	p.want(_Rbrace)

	lit := &CompositeLit{Type: typ, Elems: elems}
	lit.pos = pos
	return lit
}
