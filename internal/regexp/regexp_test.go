package regexp

import (
	"testing"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
)

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags("gi")
	if err != nil {
		t.Fatal(err)
	}
	if flags != FlagGlobal|FlagIgnoreCase {
		t.Fatalf("flags %x", flags)
	}
	if _, err := ParseFlags("gg"); err == nil {
		t.Fatal("duplicate flags must be rejected")
	} else if err.(*errors.ParseError).Code != errors.ErrDuplicatedRegexpFlag {
		t.Fatalf("wrong code: %v", err)
	}
	if _, err := ParseFlags("q"); err == nil {
		t.Fatal("unknown flags must be rejected")
	}
}

func TestCompileBasics(t *testing.T) {
	rec := Compile("ab|cd", FlagGlobal)
	if rec.Kind() != bytecode.KindRegexp {
		t.Fatalf("kind %d", rec.Kind())
	}
	if rec.Pattern != "ab|cd" {
		t.Fatalf("pattern %q", rec.Pattern)
	}
	if len(rec.Code) == 0 || ReOp(rec.Code[len(rec.Code)-1]) != ReOpEOF {
		t.Fatalf("byte-code must end with RE_EOF: % x", rec.Code)
	}
	// group 0 brackets the whole match
	if ReOp(rec.Code[0]) != ReOpCaptureStart || rec.Code[1] != 0 {
		t.Fatalf("missing whole-match capture: % x", rec.Code[:2])
	}
}

func TestCharWidthByUnicodeFlag(t *testing.T) {
	ucs2 := Compile("a", 0)
	wide := Compile("a", FlagUnicode)
	// RE_CHAR is 2 bytes of character under UCS-2, 4 under unicode
	if len(wide.Code)-len(ucs2.Code) != 2 {
		t.Fatalf("char width: ucs2=%d unicode=%d", len(ucs2.Code), len(wide.Code))
	}
}

func TestQuantifierEncoding(t *testing.T) {
	rec := Compile("a{2,5}", 0)
	// find the iterator opcode and check the biased counts
	found := false
	for i := 0; i < len(rec.Code); i++ {
		if ReOp(rec.Code[i]) == ReOpGreedyIterator {
			if rec.Code[i+1] != 2+reQuantifierOffset || rec.Code[i+2] != 5+reQuantifierOffset {
				t.Fatalf("biased counts: %d %d", rec.Code[i+1], rec.Code[i+2])
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no iterator emitted")
	}

	lazy := Compile("a+?", 0)
	foundLazy := false
	for i := 0; i < len(lazy.Code); i++ {
		if ReOp(lazy.Code[i]) == ReOpLazyIterator {
			foundLazy = true
		}
	}
	if !foundLazy {
		t.Fatal("lazy quantifier must select the lazy iterator")
	}
}

func TestClassWithSlash(t *testing.T) {
	rec := Compile("[/]", 0)
	found := false
	for i := 0; i < len(rec.Code); i++ {
		if ReOp(rec.Code[i]) == ReOpCharClass {
			found = true
		}
	}
	if !found {
		t.Fatal("character class expected")
	}
}

func TestBackreferenceNumbering(t *testing.T) {
	rec := Compile(`(a)\1`, 0)
	found := false
	for i := 0; i < len(rec.Code); i++ {
		if ReOp(rec.Code[i]) == ReOpBackReference {
			if rec.Code[i+1] != 1 {
				t.Fatalf("backref index %d", rec.Code[i+1])
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no backreference emitted")
	}
}

func TestPatternErrors(t *testing.T) {
	cases := map[string]errors.Code{
		"a{5,2}": errors.ErrInvalidQuantifier,
		"(a":     errors.ErrUnterminatedGroup,
		"[ab":    errors.ErrUnterminatedClass,
		"*a":     errors.ErrLoneQuantifier,
		"(?x)":   errors.ErrInvalidGroup,
		"[z-a]":  errors.ErrInvalidClassRange,
	}
	for pattern, want := range cases {
		code := errors.Code(-1)
		func() {
			defer func() {
				if r := recover(); r != nil {
					code = r.(*errors.ParseError).Code
				}
			}()
			Compile(pattern, 0)
		}()
		if code != want {
			t.Errorf("%q: got %d want %d", pattern, code, want)
		}
	}
}

func TestLookahead(t *testing.T) {
	rec := Compile("a(?=b)(?!c)", 0)
	pos, neg := false, false
	for i := 0; i < len(rec.Code); i++ {
		switch ReOp(rec.Code[i]) {
		case ReOpLookaheadPos:
			pos = true
		case ReOpLookaheadNeg:
			neg = true
		}
	}
	if !pos || !neg {
		t.Fatalf("lookahead opcodes missing: pos=%v neg=%v", pos, neg)
	}
}
