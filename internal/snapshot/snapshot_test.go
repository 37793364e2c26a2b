package snapshot

import (
	"bytes"
	"testing"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/jcontext"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/parser"
)

func compileSrc(t *testing.T, store *litstorage.Storage, src string) *bytecode.CompiledCode {
	t.Helper()
	ctx, err := jcontext.New(jcontext.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Destroy)
	rec, err := parser.Parse(ctx, store, []byte(src), parser.Options{SourceName: "test.js"})
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return rec
}

func generate(t *testing.T, store *litstorage.Storage, rec *bytecode.CompiledCode) []byte {
	t.Helper()
	buf := make([]byte, 1<<20)
	n, exc := Generate(store, rec, 0, buf)
	if exc != nil {
		t.Fatalf("generate: %v", exc)
	}
	return append([]byte(nil), buf[:n]...)
}

func TestSnapshotHeader(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, "function f(){return 123456}; f")
	img := generate(t, store, rec)

	if le.Uint32(img[0:]) != Magic || le.Uint32(img[4:]) != Version {
		t.Fatalf("magic/version: % x", img[:8])
	}
	// no regexp, no class: global flags stay zero
	if le.Uint32(img[8:]) != 0 {
		t.Fatalf("global flags: %x", le.Uint32(img[8:]))
	}
	if n := le.Uint32(img[16:]); n != 1 {
		t.Fatalf("number_of_funcs: %d", n)
	}
	lits, err := ExtractLiterals(img)
	if err != nil {
		t.Fatal(err)
	}
	foundNumber := false
	for _, li := range lits {
		if li.IsNumber() && li.Number == 123456 {
			foundNumber = true
		}
	}
	if !foundNumber {
		t.Fatalf("literal table lacks the number: %+v", lits)
	}
}

func TestSnapshotRoundTripIdempotent(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, `
		function outer(x) {
			var twice = x + x;
			function inner(y) { return y * 987654 }
			return inner(twice) + "suffix-string";
		}
		outer(21);
	`)
	img1 := generate(t, store, rec)

	loaded, exc := Exec(store, img1, 0, 0, ExecOptions{SourceName: "test.js"})
	if exc != nil {
		t.Fatalf("exec: %v", exc)
	}
	if loaded.Kind() != bytecode.KindScript {
		t.Fatalf("kind %d", loaded.Kind())
	}
	if !bytes.Equal(loaded.Code, rec.Code) {
		t.Fatal("top-level byte-code must survive the round trip")
	}

	img2 := generate(t, store, loaded)
	if !bytes.Equal(img1, img2) {
		t.Fatal("a second save of a loaded image must reproduce identical bytes")
	}
}

func TestSelfReferenceSentinel(t *testing.T) {
	store := litstorage.New()
	rec := &bytecode.CompiledCode{
		Refs:            1,
		RegisterEnd:     0,
		IdentEnd:        0,
		ConstLiteralEnd: 0,
		LiteralEnd:      1,
		Literals:        []bytecode.LiteralSlot{{SelfReference: true}},
		Code:            []byte{byte(bytecode.OpReturnFunctionEnd)},
	}
	rec.SetKind(bytecode.KindScript)
	rec.Literals[0].Code = rec

	img := generate(t, store, rec)
	loaded, exc := Exec(store, img, 0, 0, ExecOptions{})
	if exc != nil {
		t.Fatalf("exec: %v", exc)
	}
	if !loaded.Literals[0].SelfReference || loaded.Literals[0].Code != loaded {
		t.Fatal("the 0 sentinel must rewire to the enclosing record")
	}
}

func TestRegexpGlobalFlag(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, "var r = /a+b/g")
	img := generate(t, store, rec)
	if le.Uint32(img[8:])&GlobalFlagHasRegex == 0 {
		t.Fatal("regex presence must be recorded in global flags")
	}
	loaded, exc := Exec(store, img, 0, 0, ExecOptions{})
	if exc != nil {
		t.Fatalf("exec: %v", exc)
	}
	var re *bytecode.CompiledCode
	for i := range loaded.Literals {
		if c := loaded.Literals[i].Code; c != nil && c.Kind() == bytecode.KindRegexp {
			re = c
		}
	}
	if re == nil || re.Pattern != "a+b" {
		t.Fatalf("regexp leaf must recompile from its pattern: %+v", re)
	}
}

func TestStaticSnapshotRules(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, "var r = /x/")
	buf := make([]byte, 1<<20)
	if _, exc := Generate(store, rec, SaveStatic, buf); exc == nil {
		t.Fatal("regexps are rejected in static snapshots")
	}

	plain := compileSrc(t, store, "var x = 1")
	n, exc := Generate(store, plain, SaveStatic, buf)
	if exc != nil {
		t.Fatalf("static generate: %v", exc)
	}
	img := buf[:n]
	if _, exc := Exec(store, img, 0, 0, ExecOptions{}); exc == nil {
		t.Fatal("loading a static image requires the allow-static flag")
	}
	if _, exc := Exec(store, img, 0, ExecAllowStatic|ExecCopyData, ExecOptions{}); exc == nil {
		t.Fatal("static images cannot be copied")
	}
	if _, exc := Exec(store, img, 0, ExecAllowStatic, ExecOptions{}); exc != nil {
		t.Fatalf("allow-static load: %v", exc)
	}
}

func TestSnapshotErrors(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, "var x = 1")

	small := make([]byte, 8)
	if _, exc := Generate(store, rec, 0, small); exc == nil {
		t.Fatal("a too-small buffer must be rejected")
	}

	img := generate(t, store, rec)
	bad := append([]byte(nil), img...)
	le.PutUint32(bad[4:], Version+1)
	if _, exc := Exec(store, bad, 0, 0, ExecOptions{}); exc == nil {
		t.Fatal("version mismatch must be rejected")
	}
	if _, exc := Exec(store, img, 5, 0, ExecOptions{}); exc == nil {
		t.Fatal("function index out of range must be rejected")
	}
	// unknown global-flag bits are a feature mismatch
	bad2 := append([]byte(nil), img...)
	le.PutUint32(bad2[8:], 1<<17)
	if _, exc := Exec(store, bad2, 0, 0, ExecOptions{}); exc == nil {
		t.Fatal("unknown global flags must be rejected")
	}
}

func TestTaggedTemplateRejected(t *testing.T) {
	store := litstorage.New()
	rec := compileSrc(t, store, "tag`a${1}b`")
	buf := make([]byte, 1<<20)
	if _, exc := Generate(store, rec, 0, buf); exc == nil {
		t.Fatal("tagged template literals cannot be snapshotted")
	}
}

func TestMergeLiteralUnion(t *testing.T) {
	store := litstorage.New()
	var images [][]byte
	for _, src := range []string{"'merged-string-a'", "'merged-string-a'", "'merged-string-b'"} {
		images = append(images, generate(t, store, compileSrc(t, store, src)))
	}

	out := make([]byte, 1<<20)
	n, msg := Merge(store, images, out)
	if n == 0 {
		t.Fatalf("merge: %s", msg)
	}
	merged := out[:n]

	if funcs := le.Uint32(merged[16:]); funcs != 3 {
		t.Fatalf("merged func count %d", funcs)
	}
	strs, err := ExtractStringLiterals(merged)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]int{}
	for _, s := range strs {
		seen[s]++
	}
	if seen["merged-string-a"] != 1 || seen["merged-string-b"] != 1 {
		t.Fatalf("union literals: %v", seen)
	}

	// every merged function must load
	for i := 0; i < 3; i++ {
		if _, exc := Exec(store, merged, i, 0, ExecOptions{}); exc != nil {
			t.Fatalf("func %d: %v", i, exc)
		}
	}
}

func TestMergeAssociativity(t *testing.T) {
	store := litstorage.New()
	a := generate(t, store, compileSrc(t, store, "'literal-one'"))
	b := generate(t, store, compileSrc(t, store, "'literal-two'"))
	c := generate(t, store, compileSrc(t, store, "'literal-three'"))

	out := make([]byte, 1<<20)
	n, msg := Merge(store, [][]byte{a, b, c}, out)
	if n == 0 {
		t.Fatal(msg)
	}
	flat, _ := ExtractStringLiterals(append([]byte(nil), out[:n]...))

	nab, msg := Merge(store, [][]byte{a, b}, out)
	if nab == 0 {
		t.Fatal(msg)
	}
	ab := append([]byte(nil), out[:nab]...)
	nabc, msg := Merge(store, [][]byte{ab, c}, out)
	if nabc == 0 {
		t.Fatal(msg)
	}
	nested, _ := ExtractStringLiterals(out[:nabc])

	if len(flat) != len(nested) {
		t.Fatalf("literal sets differ: %v vs %v", flat, nested)
	}
	for i := range flat {
		if flat[i] != nested[i] {
			t.Fatalf("literal sets differ at %d: %v vs %v", i, flat, nested)
		}
	}
}
