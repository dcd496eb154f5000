// Package syntax implements lexical and syntactic analysis for emplace source files.
package syntax

import "fmt"

// Token represents the type of a lexical token.
type Token uint

const (
	// Special tokens
	_EOF   Token = iota // end of file
	_Error              // lexical error

	// Literals
	_Name    // identifier: foo, bar, Point
	_Literal // literal value (used with LitKind)

	// Operators (ordered by precedence, low to high)
	// Assignment
	_Assign // =
	_Define // :=

	// Logical operators
	_OrOr   // ||
	_AndAnd // &&

	// Comparison operators
	_Eql // ==
	_Neq // !=
	_Lss // <
	_Leq // <=
	_Gtr // >
	_Geq // >=

	// Arithmetic operators (additive)
	_Add // +
	_Sub // -
	_Or  // |
	_Xor // ^

	// Arithmetic operators (multiplicative)
	_Mul // *
	_Div // /
	_Rem // %
	_And // &
	_Shl // <<
	_Shr // >>

	// Unary operators
	_Not // !

	// Delimiters
	_Lparen   // (
	_Rparen   // )
	_Lbrack   // [
	_Rbrack   // ]
	_Lbrace   // {
	_Rbrace   // }
	_Comma    // ,
	_Semi     // ;
	_Colon    // :
	_Dot      // .
	_Question // ?

	// Keywords
	_Func
	_Inplace
	_Package
	_Panic
	_Return
	_Struct
	_Type
	_Var

	tokenCount
)

// tokenNames maps tokens to their string representation.
var tokenNames = [...]string{
	_EOF:   "EOF",
	_Error: "ERROR",

	_Name:    "NAME",
	_Literal: "LITERAL",

	_Assign: "=",
	_Define: ":=",

	_OrOr:   "||",
	_AndAnd: "&&",

	_Eql: "==",
	_Neq: "!=",
	_Lss: "<",
	_Leq: "<=",
	_Gtr: ">",
	_Geq: ">=",

	_Add: "+",
	_Sub: "-",
	_Or:  "|",
	_Xor: "^",

	_Mul: "*",
	_Div: "/",
	_Rem: "%",
	_And: "&",
	_Shl: "<<",
	_Shr: ">>",

	_Not: "!",

	_Lparen:   "(",
	_Rparen:   ")",
	_Lbrack:   "[",
	_Rbrack:   "]",
	_Lbrace:   "{",
	_Rbrace:   "}",
	_Comma:    ",",
	_Semi:     ";",
	_Colon:    ":",
	_Dot:      ".",
	_Question: "?",

	_Func:    "func",
	_Inplace: "inplace",
	_Package: "package",
	_Panic:   "panic",
	_Return:  "return",
	_Struct:  "struct",
	_Type:    "type",
	_Var:     "var",
}

// String returns the string representation of the token.
func (t Token) String() string {
	if t < tokenCount {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", t)
}

// Precedence returns the operator precedence for binary operators.
// Returns 0 for non-operators.
// Precedence levels (higher = binds tighter):
//
//	1: ||
//	2: &&
//	3: == != < <= > >=
//	4: + - | ^
//	5: * / % & << >>
func (t Token) Precedence() int {
	switch t {
	case _OrOr:
		return 1
	case _AndAnd:
		return 2
	case _Eql, _Neq, _Lss, _Leq, _Gtr, _Geq:
		return 3
	case _Add, _Sub, _Or, _Xor:
		return 4
	case _Mul, _Div, _Rem, _And, _Shl, _Shr:
		return 5
	}
	return 0
}

// IsKeyword reports whether t is a keyword token.
func (t Token) IsKeyword() bool {
	return t >= _Func && t <= _Var
}

// IsOperator reports whether t is an operator token.
func (t Token) IsOperator() bool {
	return t >= _Assign && t <= _Not
}

// IsComparison reports whether t is one of == != < <= > >=.
func (t Token) IsComparison() bool {
	return t.Precedence() == 3
}

// IsLogical reports whether t is && or ||.
func (t Token) IsLogical() bool {
	return t == _AndAnd || t == _OrOr
}

// IsEOF reports whether t is the EOF token.
func (t Token) IsEOF() bool {
	return t == _EOF
}

// Exported operator tokens for checker and evaluator access
const (
	Assign Token = _Assign // =
	Define Token = _Define // :=
	OrOr   Token = _OrOr   // ||
	AndAnd Token = _AndAnd // &&
	Eql    Token = _Eql    // ==
	Neq    Token = _Neq    // !=
	Lss    Token = _Lss    // <
	Leq    Token = _Leq    // <=
	Gtr    Token = _Gtr    // >
	Geq    Token = _Geq    // >=
	Add    Token = _Add    // +
	Sub    Token = _Sub    // -
	Or     Token = _Or     // |
	Xor    Token = _Xor    // ^
	Mul    Token = _Mul    // *
	Div    Token = _Div    // /
	Rem    Token = _Rem    // %
	And    Token = _And    // &
	Shl    Token = _Shl    // <<
	Shr    Token = _Shr    // >>
	Not    Token = _Not    // !
)

// LitKind represents the kind of a literal token.
type LitKind uint8

const (
	IntLit   LitKind = iota // 123, 0x1F, 0o77, 0b1010
	FloatLit                // 3.14, 1e10, 2.5e-3
)

// String returns the string representation of the literal kind.
func (k LitKind) String() string {
	switch k {
	case IntLit:
		return "int"
	case FloatLit:
		return "float"
	}
	return fmt.Sprintf("LitKind(%d)", k)
}

// keywords maps keyword strings to their token type.
// Type names (i32, bool, ...), true and false are not keywords; they are
// scanned as _Name and bound in the Universe.
var keywords = map[string]Token{
	"func":    _Func,
	"inplace": _Inplace,
	"package": _Package,
	"panic":   _Panic,
	"return":  _Return,
	"struct":  _Struct,
	"type":    _Type,
	"var":     _Var,
}

// LookupKeyword returns the token for the given identifier string.
// If the identifier is a keyword, returns the keyword token.
// Otherwise, returns _Name.
func LookupKeyword(ident string) Token {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return _Name
}
