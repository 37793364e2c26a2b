package litstorage

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/launix-de/jjsgo/internal/value"
)

func TestStringInterningIdentity(t *testing.T) {
	s := New()
	// long enough to bypass the direct-string fast path
	a := s.FindOrCreateString([]byte("interned-string"), true)
	b := s.FindOrCreateString([]byte("interned-string"), true)
	if a != b {
		t.Fatalf("equal byte sequences must intern to the same value")
	}
	c := s.FindOrCreateString([]byte("other-string-xyz"), true)
	if a == c {
		t.Fatalf("different strings must not alias")
	}
	if a.StringValue() != "interned-string" {
		t.Fatalf("round trip: got %q", a.StringValue())
	}
}

func TestDirectStringFastPath(t *testing.T) {
	s := New()
	v := s.FindOrCreateString([]byte("ab"), true)
	if !v.IsDirectString() {
		t.Fatalf("short ASCII strings should stay direct")
	}
	if v.StringValue() != "ab" {
		t.Fatalf("got %q", v.StringValue())
	}
}

func TestNumericStringParity(t *testing.T) {
	s := New()
	for _, n := range []uint32{0, 7, 4096, 123456789, 4294967295} {
		byNumber := s.FindOrCreateNumericString(n)
		byDigits := s.FindOrCreateString([]byte(fmt.Sprintf("%d", n)), true)
		if byNumber != byDigits {
			t.Fatalf("n=%d: lookup by digits and by number disagree", n)
		}
	}
}

func TestNumberInterning(t *testing.T) {
	s := New()
	if v := s.FindOrCreateNumber(42); !v.IsInt() || v.Int() != 42 {
		t.Fatalf("direct-range integers must not allocate: %#v", v)
	}
	a := s.FindOrCreateNumber(3.25)
	b := s.FindOrCreateNumber(3.25)
	if a != b {
		t.Fatalf("repeated heap numbers must return the first insertion")
	}
	if a.Float() != 3.25 {
		t.Fatalf("got %v", a.Float())
	}
}

func TestBigIntInterning(t *testing.T) {
	s := New()
	x := new(big.Int).SetUint64(1 << 40)
	x.Mul(x, x)
	a := s.FindOrCreateBigInt(x)
	b := s.FindOrCreateBigInt(new(big.Int).Set(x))
	if a != b {
		t.Fatalf("digit-equal bigints must intern to one value")
	}
	if got := s.BigIntFromValue(a); got.Cmp(x) != 0 {
		t.Fatalf("BigIntFromValue: got %v want %v", got, x)
	}
	if v := s.FindOrCreateBigInt(big.NewInt(0)); !v.IsInt() || v.Int() != 0 {
		t.Fatalf("zero is special-cased to a direct value")
	}
}

func TestLateInitResolve(t *testing.T) {
	s := New()
	source := []byte("var greeting = 'hello late world';")
	pending := []LateInit{{Offset: 16, Length: 16, IsAscii: true}}
	got := s.ResolveLateInit(source, pending)
	if len(got) != 1 {
		t.Fatalf("want 1 resolved value")
	}
	if got[0].StringValue() != "hello late world" {
		t.Fatalf("got %q", got[0].StringValue())
	}
	again := s.FindOrCreateString([]byte("hello late world"), true)
	if got[0] != again {
		t.Fatalf("late-init slots must land in the same intern pool")
	}
}

func TestValueTagSanity(t *testing.T) {
	if value.Undefined().Tag() != value.TagUndefined {
		t.Fatal("undefined tag")
	}
	exc := value.Int(5).AsException()
	if !exc.IsException() {
		t.Fatal("exception bit must be observable")
	}
	if exc.ClearException().IsException() {
		t.Fatal("cleared exception bit must not survive")
	}
}

func TestExceptionFlagIndependentOfFloatSign(t *testing.T) {
	s := New()
	// A negative heap number's sign bit must never read as the exception
	// flag, whether constructed directly or through the intern pool.
	for _, x := range []float64{-1.0, -2.5, -1e300} {
		if value.Float(x).IsException() {
			t.Fatalf("Float(%v) must not be exceptional", x)
		}
		if s.FindOrCreateNumber(x).IsException() {
			t.Fatalf("interned %v must not be exceptional", x)
		}
	}
	// Marking a float exceptional keeps its payload, sign included.
	exc := value.Float(-2.5).AsException()
	if !exc.IsException() || !exc.IsFloat() || exc.Float() != -2.5 {
		t.Fatalf("exceptional float: %v %v %v", exc.IsException(), exc.IsFloat(), exc.Float())
	}
	back := exc.ClearException()
	if back.IsException() || back != value.Float(-2.5) {
		t.Fatal("clearing the flag must restore the original float value")
	}
	if value.Float(2.5).AsException().ClearException() != value.Float(2.5) {
		t.Fatal("positive floats must round-trip too")
	}
}

func TestNormalizeSourceUTF16(t *testing.T) {
	utf8src := []byte("var x = 1")
	got, err := NormalizeSource(utf8src)
	if err != nil || string(got) != "var x = 1" {
		t.Fatalf("utf8 passthrough: %q %v", got, err)
	}

	// little-endian UTF-16 with BOM
	le := []byte{0xFF, 0xFE}
	for _, c := range "var y" {
		le = append(le, byte(c), 0)
	}
	got, err = NormalizeSource(le)
	if err != nil || string(got) != "var y" {
		t.Fatalf("utf16le: %q %v", got, err)
	}
}
