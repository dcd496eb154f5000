package syntax

import (
	"strings"
	"testing"
)

func scanAll(src string) ([]Token, []string) {
	s := NewScanner("test.emp", strings.NewReader(src), nil)
	var toks []Token
	var lits []string
	for {
		s.Next()
		if s.Token().IsEOF() {
			break
		}
		toks = append(toks, s.Token())
		lits = append(lits, s.Literal())
	}
	return toks, lits
}

func TestScanTokens(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		tokens []Token
		lits   []string
	}{
		// Identifiers (ASI inserts ; at EOF for _Name)
		{"ident", "foo", []Token{_Name, _Semi}, []string{"foo", "EOF"}},
		{"ident_underscore", "_bar", []Token{_Name, _Semi}, []string{"_bar", "EOF"}},
		{"ident_mixed", "foo123", []Token{_Name, _Semi}, []string{"foo123", "EOF"}},

		// Predeclared names are not keywords
		{"predecl_i32", "i32", []Token{_Name, _Semi}, []string{"i32", "EOF"}},
		{"predecl_u8", "u8", []Token{_Name, _Semi}, []string{"u8", "EOF"}},
		{"predecl_true", "true", []Token{_Name, _Semi}, []string{"true", "EOF"}},
		{"predecl_result", "Result", []Token{_Name, _Semi}, []string{"Result", "EOF"}},

		// Integer literals
		{"int_dec", "123", []Token{_Literal, _Semi}, []string{"123", "EOF"}},
		{"int_zero", "0", []Token{_Literal, _Semi}, []string{"0", "EOF"}},
		{"int_hex", "0xDeAdBeEf", []Token{_Literal, _Semi}, []string{"0xDeAdBeEf", "EOF"}},
		{"int_oct", "0o77", []Token{_Literal, _Semi}, []string{"0o77", "EOF"}},
		{"int_bin", "0b1010", []Token{_Literal, _Semi}, []string{"0b1010", "EOF"}},
		{"int_sep", "1_000", []Token{_Literal, _Semi}, []string{"1_000", "EOF"}},

		// Float literals
		{"float_simple", "3.14", []Token{_Literal, _Semi}, []string{"3.14", "EOF"}},
		{"float_exp", "2.5e-3", []Token{_Literal, _Semi}, []string{"2.5e-3", "EOF"}},

		// Operators
		{"op_add", "+", []Token{_Add}, []string{"+"}},
		{"op_rem", "%", []Token{_Rem}, []string{"%"}},
		{"op_shl", "<<", []Token{_Shl}, []string{"<<"}},
		{"op_geq", ">=", []Token{_Geq}, []string{">="}},
		{"op_define", ":=", []Token{_Define}, []string{":="}},
		{"op_neq", "!=", []Token{_Neq}, []string{"!="}},
		{"op_andand", "&&", []Token{_AndAnd}, []string{"&&"}},

		// Delimiters
		{"question", "?", []Token{_Question, _Semi}, []string{"?", "EOF"}},
		{"brackets", "[]", []Token{_Lbrack, _Rbrack, _Semi}, []string{"[", "]", "EOF"}},

		// Keywords
		{"kw_inplace", "inplace", []Token{_Inplace}, []string{"inplace"}},
		{"kw_panic", "panic", []Token{_Panic}, []string{"panic"}},
		{"kw_return", "return", []Token{_Return, _Semi}, []string{"return", "EOF"}},

		// Mixed
		{"try", "f()?", []Token{_Name, _Lparen, _Rparen, _Question, _Semi}, []string{"f", "(", ")", "?", "EOF"}},
		{"dual", "?inplace T", []Token{_Question, _Inplace, _Name, _Semi}, []string{"?", "inplace", "T", "EOF"}},
		{"repeat", "[]u32{1; n}", []Token{_Lbrack, _Rbrack, _Name, _Lbrace, _Literal, _Semi, _Name, _Rbrace, _Semi},
			[]string{"[", "]", "u32", "{", "1", ";", "n", "}", "EOF"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, lits := scanAll(tt.src)
			if len(toks) != len(tt.tokens) {
				t.Fatalf("got %d tokens %v, want %d %v", len(toks), toks, len(tt.tokens), tt.tokens)
			}
			for i := range toks {
				if toks[i] != tt.tokens[i] {
					t.Errorf("token %d = %v, want %v", i, toks[i], tt.tokens[i])
				}
				if lits[i] != tt.lits[i] {
					t.Errorf("literal %d = %q, want %q", i, lits[i], tt.lits[i])
				}
			}
		})
	}
}

func TestScanLitKind(t *testing.T) {
	tests := []struct {
		src  string
		kind LitKind
	}{
		{"42", IntLit},
		{"0x2A", IntLit},
		{"1.5", FloatLit},
		{"1e9", FloatLit},
	}
	for _, tt := range tests {
		s := NewScanner("test.emp", strings.NewReader(tt.src), nil)
		s.Next()
		if s.Token() != _Literal {
			t.Fatalf("%q: token = %v, want literal", tt.src, s.Token())
		}
		if s.LitKind() != tt.kind {
			t.Errorf("%q: kind = %v, want %v", tt.src, s.LitKind(), tt.kind)
		}
	}
}

func TestASI(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		tokens []Token
	}{
		{"ident_newline", "foo\nbar", []Token{_Name, _Semi, _Name, _Semi}},
		{"rparen_newline", "f()\ng", []Token{_Name, _Lparen, _Rparen, _Semi, _Name, _Semi}},
		{"question_newline", "f()?\ng", []Token{_Name, _Lparen, _Rparen, _Question, _Semi, _Name, _Semi}},
		{"rbrace_newline", "{\n}\n", []Token{_Lbrace, _Rbrace, _Semi}},
		{"operator_no_asi", "a +\nb", []Token{_Name, _Add, _Name, _Semi}},
		{"inplace_no_asi", "inplace\nx", []Token{_Inplace, _Name, _Semi}},
		{"comment_asi", "x // trailing\ny", []Token{_Name, _Semi, _Name, _Semi}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, _ := scanAll(tt.src)
			if len(toks) != len(tt.tokens) {
				t.Fatalf("got %v, want %v", toks, tt.tokens)
			}
			for i := range toks {
				if toks[i] != tt.tokens[i] {
					t.Errorf("token %d = %v, want %v", i, toks[i], tt.tokens[i])
				}
			}
		})
	}
}

func TestASIDisabled(t *testing.T) {
	s := NewScanner("test.emp", strings.NewReader("foo\nbar"), nil)
	s.SetASIEnabled(false)
	var toks []Token
	for s.Next(); !s.Token().IsEOF(); s.Next() {
		toks = append(toks, s.Token())
	}
	if len(toks) != 2 || toks[0] != _Name || toks[1] != _Name {
		t.Errorf("got %v, want [NAME NAME]", toks)
	}
}

func TestPosition(t *testing.T) {
	src := "package main\n\nfunc f() {\n\tx := inplace P{a: 1}\n}\n"
	s := NewScanner("pos.emp", strings.NewReader(src), nil)
	want := map[string]string{
		"package": "pos.emp:1:1",
		"main":    "pos.emp:1:9",
		"func":    "pos.emp:3:1",
		"x":       "pos.emp:4:2",
		"inplace": "pos.emp:4:7",
		"P":       "pos.emp:4:15",
	}
	for s.Next(); !s.Token().IsEOF(); s.Next() {
		if w, ok := want[s.Literal()]; ok {
			if got := s.Pos().String(); got != w {
				t.Errorf("%s at %s, want %s", s.Literal(), got, w)
			}
			delete(want, s.Literal())
		}
	}
	if len(want) != 0 {
		t.Errorf("tokens not seen: %v", want)
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"bad_hex_literal", "0xGG", "invalid hex digit"},
		{"bad_octal_literal", "0o99", "invalid octal digit"},
		{"bad_binary_literal", "0b123", "invalid binary digit"},
		{"empty_exponent", "1e", "exponent has no digits"},
		{"bad_char", "@", "unexpected character"},
		{"string", `"s"`, "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errMsg string
			errh := func(line, col uint32, msg string) {
				if errMsg == "" {
					errMsg = msg
				}
			}
			s := NewScanner("test", strings.NewReader(tt.src), errh)
			for s.Next(); !s.Token().IsEOF(); s.Next() {
			}
			if !strings.Contains(errMsg, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", errMsg, tt.wantErr)
			}
		})
	}
}

func TestTokenPredicates(t *testing.T) {
	if got := Token(9999).String(); got != "token(9999)" {
		t.Errorf("unknown token String = %q", got)
	}
	for _, tok := range []Token{_Func, _Inplace, _Package, _Panic, _Return, _Struct, _Type, _Var} {
		if !tok.IsKeyword() {
			t.Errorf("%v.IsKeyword() = false", tok)
		}
		if LookupKeyword(tok.String()) != tok {
			t.Errorf("LookupKeyword(%q) != %v", tok.String(), tok)
		}
	}
	if LookupKeyword("Result") != _Name {
		t.Error("Result must not be a keyword")
	}
	if _Question.IsOperator() || !_Not.IsOperator() {
		t.Error("IsOperator classification is wrong")
	}
	precs := map[Token]int{_OrOr: 1, _AndAnd: 2, _Eql: 3, _Add: 4, _Mul: 5, _Assign: 0, _Question: 0}
	for tok, want := range precs {
		if got := tok.Precedence(); got != want {
			t.Errorf("%v.Precedence() = %d, want %d", tok, got, want)
		}
	}
	if !Lss.IsComparison() || Add.IsComparison() || !OrOr.IsLogical() {
		t.Error("comparison/logical classification is wrong")
	}
	if IntLit.String() != "int" || FloatLit.String() != "float" || LitKind(7).String() != "LitKind(7)" {
		t.Error("LitKind.String is wrong")
	}
}

func TestPos(t *testing.T) {
	p := NewPos("a.emp", 3, 7)
	if p.String() != "a.emp:3:7" || p.Line() != 3 || p.Col() != 7 || p.Filename() != "a.emp" {
		t.Errorf("unexpected pos %v", p)
	}
	if NewPos("", 3, 7).String() != "3:7" {
		t.Error("pos without filename")
	}
	var zero Pos
	if zero.IsValid() || !p.IsValid() {
		t.Error("IsValid")
	}
	if !NewPos("a", 1, 9).Before(p) || !NewPos("a", 3, 6).Before(p) || p.Before(p) {
		t.Error("Before")
	}
}

func FuzzScanner(f *testing.F) {
	seeds := []string{
		"package main",
		"func f() inplace P { return P{x: 1} }",
		"x := inplace { var y = g(); y }",
		"var a = inplace []u32{1; 1000}",
		"f()?",
		"// comment\nfoo",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, src string) {
		s := NewScanner("fuzz", strings.NewReader(src), func(line, col uint32, msg string) {})
		for i := 0; i < 10000; i++ {
			s.Next()
			if s.Token().IsEOF() {
				break
			}
		}
	})
}
