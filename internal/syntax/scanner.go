package syntax

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Scanner performs lexical analysis on emplace source code.
// The whole file is read into memory up front.
type Scanner struct {
	buf      []byte
	filename string
	line     uint32 // line of ch (1-based)
	col      uint32 // column of ch (1-based, byte offset)
	ch       rune   // current character, -1 at EOF
	offs     int    // byte offset of the next character
	errh     func(line, col uint32, msg string)

	// Current token info
	tok    Token
	lit    string
	kind   LitKind
	tokPos Pos

	// ASI (Automatic Semicolon Insertion) state
	nlsemi     bool
	asiEnabled bool

	litBuf strings.Builder
}

// NewScanner creates a new Scanner for the given source.
// The errh function is called for each lexical error; if nil, errors are silently ignored.
func NewScanner(filename string, src io.Reader, errh func(line, col uint32, msg string)) *Scanner {
	s := &Scanner{
		filename:   filename,
		line:       1,
		ch:         -1,
		errh:       errh,
		asiEnabled: true,
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		s.error("error reading source file: " + err.Error())
		return s
	}
	s.buf = buf
	s.nextch()
	return s
}

// SetASIEnabled enables or disables automatic semicolon insertion.
func (s *Scanner) SetASIEnabled(enabled bool) {
	s.asiEnabled = enabled
}

// nextch advances to the next character, keeping (line, col) pointed at s.ch.
func (s *Scanner) nextch() {
	if s.ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	if s.offs >= len(s.buf) {
		s.ch = -1
		return
	}
	r, width := utf8.DecodeRune(s.buf[s.offs:])
	if r == utf8.RuneError && width == 1 {
		s.error("invalid UTF-8 encoding")
	}
	s.ch = r
	s.offs += width
}

func (s *Scanner) pos() Pos {
	return NewPos(s.filename, s.line, s.col)
}

func (s *Scanner) error(msg string) {
	if s.errh != nil {
		s.errh(s.line, s.col, msg)
	}
}

// Next advances to the next token.
func (s *Scanner) Next() {
	nlsemi := s.nlsemi
	s.nlsemi = false

redo:
	for isWhitespace(s.ch) {
		s.nextch()
	}

	// ASI: insert semicolon before newline or EOF if needed
	if s.asiEnabled && nlsemi && (s.ch == '\n' || s.ch < 0) {
		s.tokPos = s.pos()
		s.tok = _Semi
		if s.ch == '\n' {
			s.lit = "newline"
			s.nextch()
		} else {
			s.lit = "EOF"
		}
		return
	}

	if s.ch == '\n' {
		s.nextch()
		goto redo
	}

	s.tokPos = s.pos()

	switch {
	case s.ch < 0:
		s.tok = _EOF
		s.lit = ""

	case isLetter(s.ch):
		s.scanIdent()

	case isDigit(s.ch):
		s.scanNumber()

	case isOperatorStart(s.ch):
		if s.scanOperator() {
			goto redo
		}

	default:
		s.error(fmt.Sprintf("unexpected character %q", s.ch))
		s.nextch()
		goto redo
	}

	s.nlsemi = s.shouldInsertSemi()
}

// Token returns the current token type.
func (s *Scanner) Token() Token {
	return s.tok
}

// Literal returns the current token's literal value.
func (s *Scanner) Literal() string {
	return s.lit
}

// LitKind returns the current literal's kind (only valid when Token() == _Literal).
func (s *Scanner) LitKind() LitKind {
	return s.kind
}

// Pos returns the current token's start position.
func (s *Scanner) Pos() Pos {
	return s.tokPos
}

// shouldInsertSemi reports whether a semicolon should be inserted
// after the current token when followed by a newline.
func (s *Scanner) shouldInsertSemi() bool {
	switch s.tok {
	case _Name, _Literal:
		return true
	case _Return:
		return true
	case _Rparen, _Rbrack, _Rbrace, _Question:
		return true
	}
	return false
}

// scanIdent scans an identifier or keyword.
func (s *Scanner) scanIdent() {
	s.litBuf.Reset()
	for isLetter(s.ch) || isDigit(s.ch) {
		s.litBuf.WriteRune(s.ch)
		s.nextch()
	}
	s.lit = s.litBuf.String()
	s.tok = LookupKeyword(s.lit)
}

// scanNumber scans a number literal (integer or float).
func (s *Scanner) scanNumber() {
	s.litBuf.Reset()
	s.kind = IntLit

	if s.ch == '0' {
		s.litBuf.WriteRune(s.ch)
		s.nextch()
		switch lower(s.ch) {
		case 'x':
			s.litBuf.WriteRune(s.ch)
			s.nextch()
			s.scanDigits(isHexDigit, "hex")
		case 'o':
			s.litBuf.WriteRune(s.ch)
			s.nextch()
			s.scanDigits(isOctalDigit, "octal")
		case 'b':
			s.litBuf.WriteRune(s.ch)
			s.nextch()
			s.scanDigits(isBinaryDigit, "binary")
			if isDigit(s.ch) {
				s.error("invalid binary digit")
			}
		default:
			s.scanDecimalDigits()
			if s.ch == '.' || lower(s.ch) == 'e' {
				s.scanFraction()
			}
		}
	} else {
		s.scanDecimalDigits()
		if s.ch == '.' || lower(s.ch) == 'e' {
			s.scanFraction()
		}
	}

	s.lit = s.litBuf.String()
	s.tok = _Literal
}

func (s *Scanner) scanDecimalDigits() {
	for isDigit(s.ch) || s.ch == '_' {
		s.litBuf.WriteRune(s.ch)
		s.nextch()
	}
}

func (s *Scanner) scanDigits(ok func(rune) bool, base string) {
	if !ok(s.ch) {
		s.error("invalid " + base + " digit")
		return
	}
	for ok(s.ch) || s.ch == '_' {
		s.litBuf.WriteRune(s.ch)
		s.nextch()
	}
}

// scanFraction scans the fractional part of a float (. and/or exponent).
func (s *Scanner) scanFraction() {
	if s.ch == '.' {
		s.kind = FloatLit
		s.litBuf.WriteRune(s.ch)
		s.nextch()
		s.scanDecimalDigits()
	}

	if lower(s.ch) == 'e' {
		s.kind = FloatLit
		s.litBuf.WriteRune(s.ch)
		s.nextch()
		if s.ch == '+' || s.ch == '-' {
			s.litBuf.WriteRune(s.ch)
			s.nextch()
		}
		if !isDigit(s.ch) {
			s.error("exponent has no digits")
			return
		}
		s.scanDecimalDigits()
	}
}

// scanOperator scans an operator or delimiter.
// Returns true if a comment was skipped (caller should rescan).
func (s *Scanner) scanOperator() bool {
	ch := s.ch
	s.nextch()

	// two-character operators: first char, second char, token
	two := func(next rune, yes, no Token) {
		if s.ch == next {
			s.nextch()
			s.tok = yes
		} else {
			s.tok = no
		}
	}

	switch ch {
	case '+':
		s.tok = _Add
	case '-':
		s.tok = _Sub
	case '*':
		s.tok = _Mul
	case '/':
		if s.ch == '/' {
			for s.ch != '\n' && s.ch >= 0 {
				s.nextch()
			}
			return true
		}
		s.tok = _Div
	case '%':
		s.tok = _Rem
	case '&':
		two('&', _AndAnd, _And)
	case '|':
		two('|', _OrOr, _Or)
	case '^':
		s.tok = _Xor
	case '<':
		switch s.ch {
		case '=':
			s.nextch()
			s.tok = _Leq
		case '<':
			s.nextch()
			s.tok = _Shl
		default:
			s.tok = _Lss
		}
	case '>':
		switch s.ch {
		case '=':
			s.nextch()
			s.tok = _Geq
		case '>':
			s.nextch()
			s.tok = _Shr
		default:
			s.tok = _Gtr
		}
	case '=':
		two('=', _Eql, _Assign)
	case '!':
		two('=', _Neq, _Not)
	case ':':
		two('=', _Define, _Colon)
	case '(':
		s.tok = _Lparen
	case ')':
		s.tok = _Rparen
	case '[':
		s.tok = _Lbrack
	case ']':
		s.tok = _Rbrack
	case '{':
		s.tok = _Lbrace
	case '}':
		s.tok = _Rbrace
	case ',':
		s.tok = _Comma
	case ';':
		s.tok = _Semi
	case '.':
		s.tok = _Dot
	case '?':
		s.tok = _Question
	}
	s.lit = s.tok.String()

	return false
}

// Character classification helpers

func isLetter(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_'
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || 'a' <= lower(r) && lower(r) <= 'f'
}

func isOctalDigit(r rune) bool {
	return '0' <= r && r <= '7'
}

func isBinaryDigit(r rune) bool {
	return r == '0' || r == '1'
}

// lower maps ASCII letters to lower case; ('a' - 'A') is 0x20.
func lower(r rune) rune {
	return ('a' - 'A') | r
}

// isWhitespace excludes '\n', which may trigger ASI.
func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r'
}

func isOperatorStart(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '%', '&', '|', '^', '<', '>', '=', '!', ':',
		'(', ')', '[', ']', '{', '}', ',', ';', '.', '?':
		return true
	}
	return false
}
