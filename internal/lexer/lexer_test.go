package lexer

import (
	"testing"

	"github.com/launix-de/jjsgo/internal/errors"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	l := New([]byte(src), 1, 1)
	var out []Token
	for {
		tok := l.Next()
		out = append(out, tok)
		if tok.Type == EOF {
			return out
		}
	}
}

// scanErr runs the scanner expecting a raised parse error.
func scanErr(t *testing.T, src string) errors.Code {
	t.Helper()
	code := errors.Code(-1)
	func() {
		defer func() {
			if r := recover(); r != nil {
				pe, ok := r.(*errors.ParseError)
				if !ok {
					panic(r)
				}
				code = pe.Code
			}
		}()
		l := New([]byte(src), 1, 1)
		for l.Next().Type != EOF {
		}
	}()
	if code == errors.Code(-1) {
		t.Fatalf("expected a lexer error for %q", src)
	}
	return code
}

func TestKeywordRecognition(t *testing.T) {
	toks := scanAll(t, "while let instanceof notakeyword")
	if toks[0].Type != KeywordType || toks[0].Keyword != KwWhile {
		t.Fatalf("while: %+v", toks[0])
	}
	// let is contextual: identifier type, keyword attached
	if toks[1].Type != Identifier || toks[1].Keyword != KwLet {
		t.Fatalf("let: %+v", toks[1])
	}
	if toks[2].Keyword != KwInstanceof {
		t.Fatalf("instanceof: %+v", toks[2])
	}
	if toks[3].Type != Identifier || toks[3].Keyword != KwNone {
		t.Fatalf("plain identifier: %+v", toks[3])
	}
}

func TestEscapedKeywordNeverSilentlyMatches(t *testing.T) {
	l := New([]byte("\\u0077hile"), 1, 1)
	tok := l.Next()
	if tok.Flags&FlagHasEscape == 0 {
		t.Fatal("escape flag must be set")
	}
	if tok.Keyword != KwWhile {
		t.Fatal("canonicalised spelling must still match the keyword table")
	}
	if string(l.IdentifierBytes(tok)) != "while" {
		t.Fatalf("canonical bytes: %q", l.IdentifierBytes(tok))
	}
}

func TestStringEscapes(t *testing.T) {
	src := `'a\x41B\u{43}'`
	toks := scanAll(t, src)
	if toks[0].Type != StringLiteral {
		t.Fatalf("%+v", toks[0])
	}
	if got := string(DecodeString([]byte(src), toks[0])); got != "aABC" {
		t.Fatalf("decoded %q", got)
	}
}

func TestStringErrors(t *testing.T) {
	cases := map[string]errors.Code{
		"'abc":        errors.ErrUnterminatedString,
		"'ab\ncd'":    errors.ErrNewlineNotAllowed,
		`'\u{110000}'`: errors.ErrInvalidUnicodeEscape,
		`'\xZZ'`:      errors.ErrInvalidHexDigit,
		"`tpl \\012`": errors.ErrTemplateOctalEscape,
		"/* open":     errors.ErrUnterminatedComment,
	}
	for src, want := range cases {
		if got := scanErr(t, src); got != want {
			t.Errorf("%q: got code %d want %d", src, got, want)
		}
	}
}

func TestNumberScanning(t *testing.T) {
	cases := map[string]float64{
		"0":        0,
		"42":       42,
		"0x2A":     42,
		"0o52":     42,
		"0b101010": 42,
		"052":      42, // legacy octal
		"1_000":    1000,
		"1.5e2":    150,
	}
	for src, want := range cases {
		toks := scanAll(t, src)
		if toks[0].Type != NumericLiteral {
			t.Fatalf("%q: %+v", src, toks[0])
		}
		if got := DecodeNumber([]byte(src), toks[0]); got != want {
			t.Errorf("%q: got %v want %v", src, got, want)
		}
	}
}

func TestNumberErrors(t *testing.T) {
	cases := map[string]errors.Code{
		"0b":     errors.ErrInvalidBinDigit,
		"0x":     errors.ErrInvalidHexDigit,
		"0o8":    errors.ErrInvalidOctalDigit,
		"089":    errors.ErrInvalidOctalDigit,
		"1e":     errors.ErrMissingExponent,
		"1__0":   errors.ErrInvalidCharacter,
		"1_":     errors.ErrInvalidCharacter,
		"052n":   errors.ErrInvalidBigint,
		"1varab": errors.ErrInvalidCharacter,
	}
	for src, want := range cases {
		if got := scanErr(t, src); got != want {
			t.Errorf("%q: got code %d want %d", src, got, want)
		}
	}
}

func TestBigIntSuffix(t *testing.T) {
	toks := scanAll(t, "123n")
	if toks[0].Type != BigIntLiteral {
		t.Fatalf("%+v", toks[0])
	}
	b, err := DecodeBigInt([]byte("123n"), toks[0])
	if err != nil || b.Int64() != 123 {
		t.Fatalf("got %v, %v", b, err)
	}
}

func TestRegexpScan(t *testing.T) {
	l := New([]byte("/ab|cd/gi"), 1, 1)
	first := l.Next() // '/'
	tok := l.ScanRegexp(first)
	if tok.Type != RegexpLiteral {
		t.Fatalf("%+v", tok)
	}
	if tok.Flags&RegexpGlobal == 0 || tok.Flags&RegexpIgnoreCase == 0 {
		t.Fatalf("flags: %x", tok.Flags)
	}
	if string(tok.Lexeme(l.Source())) != "/ab|cd/gi" {
		t.Fatalf("lexeme %q", tok.Lexeme(l.Source()))
	}
}

func TestRegexpSlashInClass(t *testing.T) {
	l := New([]byte("/[/]/"), 1, 1)
	tok := l.ScanRegexp(l.Next())
	if tok.Type != RegexpLiteral || string(tok.Lexeme(l.Source())) != "/[/]/" {
		t.Fatalf("slash inside a class is literal: %+v", tok)
	}
}

func TestRegexpFlagErrors(t *testing.T) {
	for src, want := range map[string]errors.Code{
		"/x/gg": errors.ErrDuplicatedRegexpFlag,
		"/x/q":  errors.ErrUnknownRegexpFlag,
		"/x":    errors.ErrUnterminatedRegexp,
	} {
		code := errors.Code(-1)
		func() {
			defer func() {
				if r := recover(); r != nil {
					code = r.(*errors.ParseError).Code
				}
			}()
			l := New([]byte(src), 1, 1)
			l.ScanRegexp(l.Next())
		}()
		if code != want {
			t.Errorf("%q: got %d want %d", src, code, want)
		}
	}
}

func TestLineColumnTracking(t *testing.T) {
	toks := scanAll(t, "a\nb\r\nc\td")
	if toks[0].Line != 1 || toks[1].Line != 2 || toks[2].Line != 3 {
		t.Fatalf("lines: %d %d %d", toks[0].Line, toks[1].Line, toks[2].Line)
	}
	// tab advances the column to the next multiple of 8
	if toks[3].Col != 9 {
		t.Fatalf("post-tab column: %d", toks[3].Col)
	}
	if !toks[1].NewlineBefore {
		t.Fatal("newline-before must latch for semicolon insertion")
	}
}

func TestTemplateHead(t *testing.T) {
	l := New([]byte("`a${x}b`"), 1, 1)
	head := l.Next()
	if head.Type != TemplateLiteral || head.Flags&FlagTemplateHead == 0 {
		t.Fatalf("head: %+v", head)
	}
	x := l.Next()
	if x.Type != Identifier {
		t.Fatalf("substitution: %+v", x)
	}
	// parser consumes the '}' and resumes the raw scan
	if rb := l.Next(); rb.Punct != PRBrace {
		t.Fatalf("expected closing brace, got %+v", rb)
	}
	tail := l.TemplateSpan()
	if tail.Flags&FlagTemplateHead != 0 {
		t.Fatalf("tail must terminate the template: %+v", tail)
	}
	if got := string(DecodeString(l.Source(), tail)); got != "b" {
		t.Fatalf("tail cooked %q", got)
	}
}
