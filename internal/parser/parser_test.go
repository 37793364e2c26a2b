package parser

import (
	"bytes"
	"testing"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/jcontext"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/regexp"
)

func compile(t *testing.T, src string, opts Options) (*bytecode.CompiledCode, error) {
	t.Helper()
	ctx, err := jcontext.New(jcontext.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Destroy)
	return Parse(ctx, litstorage.New(), []byte(src), opts)
}

func mustCompile(t *testing.T, src string, opts Options) *bytecode.CompiledCode {
	t.Helper()
	rec, err := compile(t, src, opts)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return rec
}

func errCode(t *testing.T, src string, opts Options) errors.Code {
	t.Helper()
	_, err := compile(t, src, opts)
	if err == nil {
		t.Fatalf("parse %q: expected error", src)
	}
	pe, ok := err.(*errors.ParseError)
	if !ok {
		t.Fatalf("parse %q: unexpected error type %T", src, err)
	}
	return pe.Code
}

func TestLetAddition(t *testing.T) {
	rec := mustCompile(t, "let x=1+2", Options{IsStrictMode: true})
	want := []byte{
		byte(bytecode.OpPushNumberPosByte), 0,
		byte(bytecode.OpPushNumberPosByte), 1,
		byte(bytecode.OpAdd),
	}
	if !bytes.Contains(rec.Code, want) {
		t.Fatalf("byte-code %x lacks the addition sequence %x", rec.Code, want)
	}
	if !bytes.Contains(rec.Code, []byte{byte(bytecode.OpAssignLetConst), 0}) {
		t.Fatalf("byte-code %x lacks ASSIGN_LET_CONST", rec.Code)
	}
	if !rec.IsStrict() {
		t.Fatal("strict flag must be recorded")
	}
}

func TestStrictLetAsBinding(t *testing.T) {
	if code := errCode(t, "let let", Options{IsStrictMode: true}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("got code %d", code)
	}
	// sloppy code accepts it
	mustCompile(t, "let let", Options{})
}

func TestDuplicatedArgumentNames(t *testing.T) {
	if code := errCode(t, "'use strict'; function f(a,a){}", Options{}); code != errors.ErrDuplicatedArgumentNames {
		t.Fatalf("got code %d", code)
	}
	mustCompile(t, "function f(a,a){}", Options{})
	// complex parameter lists reject duplicates even in sloppy mode
	if code := errCode(t, "function f(a,b=1,a){}", Options{}); code != errors.ErrDuplicatedArgumentNames {
		t.Fatalf("complex list: got code %d", code)
	}
}

func TestStrictModeDirective(t *testing.T) {
	rec := mustCompile(t, "'use strict'; var x = 1", Options{})
	if !rec.IsStrict() {
		t.Fatal("directive prologue must upgrade to strict")
	}
}

func TestRegexpLiteralRecord(t *testing.T) {
	rec := mustCompile(t, "var r = /ab|cd/gi", Options{})
	var re *bytecode.CompiledCode
	for i := int(rec.ConstLiteralEnd - rec.RegisterEnd); i < len(rec.Literals); i++ {
		if c := rec.Literals[i].Code; c != nil && c.Kind() == bytecode.KindRegexp {
			re = c
		}
	}
	if re == nil {
		t.Fatal("no regexp record in the literal table")
	}
	if re.Pattern != "ab|cd" {
		t.Fatalf("pattern %q", re.Pattern)
	}
	if re.RegexpFlags != regexp.FlagGlobal|regexp.FlagIgnoreCase {
		t.Fatalf("flags %x", re.RegexpFlags)
	}
}

func TestKeywordContextPolicy(t *testing.T) {
	// yield: identifier in sloppy code, reserved in generators and strict
	mustCompile(t, "var yield = 1", Options{})
	if code := errCode(t, "var yield = 1", Options{IsStrictMode: true}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("strict yield: %d", code)
	}
	if code := errCode(t, "function* g(){ var yield }", Options{}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("generator yield: %d", code)
	}
	// await: identifier in sloppy script, reserved in modules and async
	mustCompile(t, "var await = 1", Options{})
	if code := errCode(t, "var await = 1", Options{ParseModule: true}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("module await: %d", code)
	}
	if code := errCode(t, "async function f(){ var await }", Options{}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("async await: %d", code)
	}
	// future reserved words only bind in sloppy mode
	mustCompile(t, "var interface = 1", Options{})
	if code := errCode(t, "var interface = 1", Options{IsStrictMode: true}); code != errors.ErrStrictIdentNotAllowed {
		t.Fatalf("strict interface: %d", code)
	}
}

func TestPrivateFieldResolution(t *testing.T) {
	if code := errCode(t, "var v = this.#x", Options{}); code != errors.ErrUndeclaredPrivateField {
		t.Fatalf("outside class: %d", code)
	}
	// forward reference within the same class body resolves
	mustCompile(t, "class C { m() { return this.#y } #y = 1; }", Options{})
	if code := errCode(t, "class C { m() { return this.#z } }", Options{}); code != errors.ErrUndeclaredPrivateField {
		t.Fatalf("undeclared inside class: %d", code)
	}
}

func TestModuleNameUniqueness(t *testing.T) {
	if code := errCode(t, "import {a} from 'm'; import {a} from 'n';", Options{ParseModule: true}); code != errors.ErrDuplicatedImportedIdentifier {
		t.Fatalf("dup import: %d", code)
	}
	if code := errCode(t, "var a; export {a}; export {a};", Options{ParseModule: true}); code != errors.ErrDuplicatedExportedIdentifier {
		t.Fatalf("dup export: %d", code)
	}
	mustCompile(t, "import {a as b, c} from 'm'; export {b as d};", Options{ParseModule: true})
}

func TestImportMetaOutsideModule(t *testing.T) {
	if code := errCode(t, "import.meta", Options{}); code != errors.ErrImportMetaOutsideModule {
		t.Fatalf("got %d", code)
	}
	mustCompile(t, "var m = import.meta", Options{ParseModule: true})
}

func TestFunctionRecordShape(t *testing.T) {
	rec := mustCompile(t, "function add(a, b) { var sum = a + b; return sum }", Options{})
	var fn *bytecode.CompiledCode
	for i := int(rec.ConstLiteralEnd - rec.RegisterEnd); i < len(rec.Literals); i++ {
		if c := rec.Literals[i].Code; c != nil && c.Kind() == bytecode.KindNormal {
			fn = c
		}
	}
	if fn == nil {
		t.Fatal("nested function record missing")
	}
	if fn.ArgumentEnd != 2 {
		t.Fatalf("argument end %d", fn.ArgumentEnd)
	}
	if fn.RegisterEnd == 0 {
		t.Fatal("locals should be register-allocated")
	}
	if fn.RegisterEnd > fn.IdentEnd || fn.IdentEnd > fn.ConstLiteralEnd ||
		fn.ConstLiteralEnd > fn.LiteralEnd {
		t.Fatalf("range invariant violated: %d %d %d %d",
			fn.RegisterEnd, fn.IdentEnd, fn.ConstLiteralEnd, fn.LiteralEnd)
	}
	if fn.StatusFlags&bytecode.FlagMappedArgumentsNeeded == 0 {
		t.Fatal("sloppy simple-parameter function maps its arguments")
	}
	if len(fn.ArgumentNames) != 2 {
		t.Fatalf("argument names %d", len(fn.ArgumentNames))
	}
}

func TestControlFlowCompiles(t *testing.T) {
	sources := []string{
		"if (a) b(); else c();",
		"while (x) { x-- }",
		"do { x++ } while (x < 10)",
		"for (var i = 0; i < 3; i++) f(i)",
		"for (var k in obj) f(k)",
		"for (const v of list) f(v)",
		"switch (x) { case 1: f(); break; default: g() }",
		"try { f() } catch (e) { g(e) } finally { h() }",
		"lbl: for (;;) { break lbl }",
		"var {a, b: [c], ...rest} = obj",
		"var t = `x${1 + 2}y`",
		"var o = {a: 1, 'b': 2, [k]: 3, m(){}, get g(){}, ...spread}",
		"var a = [1, , 2, ...rest]",
		"f(...args)",
		"var n = new Date(); var u = new ns.Thing(1)",
		"x = a ?? b; y &&= z; q ||= w; r ??= s",
		"var arrow = (a, b = 1) => a + b; var id = x => x",
		"async function f() { await g() }",
		"function* g() { yield 1; yield* other() }",
		"class D extends B { constructor() { super(); } static s() {} static { init(); } }",
		"a?.b?.[c]?.()",
		"tag`a${x}b`",
		"delete obj.prop",
		"var big = 123456789012345678901234567890n",
	}
	for _, src := range sources {
		if _, err := compile(t, src, Options{}); err != nil {
			t.Errorf("%q: %v", src, err)
		}
	}
}

func TestWithStatement(t *testing.T) {
	mustCompile(t, "with (o) { f() }", Options{})
	if code := errCode(t, "with (o) { f() }", Options{IsStrictMode: true}); code != errors.ErrWithInStrict {
		t.Fatalf("got %d", code)
	}
}

func TestReturnOutsideFunction(t *testing.T) {
	if _, err := compile(t, "return 1", Options{}); err == nil {
		t.Fatal("top-level return must fail")
	}
}

func TestTaggedTemplateFlags(t *testing.T) {
	rec := mustCompile(t, "tag`a${x}b`", Options{})
	if rec.StatusFlags&bytecode.FlagHasTaggedLiterals == 0 {
		t.Fatal("tagged-literal flag missing")
	}
	if len(rec.TaggedTemplates) != 2 {
		t.Fatalf("cooked strings: %d", len(rec.TaggedTemplates))
	}
}

func TestLineInfoGeneration(t *testing.T) {
	rec := mustCompile(t, "var a = 1\nvar b = 2\nvar c = 3", Options{EnableLineInfo: true})
	if rec.StatusFlags&bytecode.FlagUsesLineInfo == 0 || len(rec.LineInfo) == 0 {
		t.Fatal("line info must be generated on request")
	}
	if len(rec.LineInfo)%8 != 0 {
		t.Fatalf("line info is 8-byte pairs, got %d bytes", len(rec.LineInfo))
	}
}
