package jjsc

import (
	"fmt"
	"io"
	"os"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/jcontext"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/parser"
)

// engine bundles the per-invocation context, intern pool and options the
// commands share.
type engine struct {
	ctx   *jcontext.Context
	store *litstorage.Storage
}

func newEngine() (*engine, error) {
	ctx, err := jcontext.New(jcontext.Options{
		ShowOpcodes: flagShowOpcodes,
		MemStats:    flagMemStats,
	})
	if err != nil {
		return nil, err
	}
	return &engine{ctx: ctx, store: litstorage.New()}, nil
}

func (e *engine) close() {
	if flagMemStats {
		fmt.Fprintln(os.Stderr, e.ctx.MemStatsString())
	}
	e.ctx.Destroy()
}

// readSource loads a file argument, or stdin for "-" / no argument.
func readSource(args []string) (name string, src []byte, err error) {
	if len(args) == 0 || args[0] == "-" {
		src, err = io.ReadAll(os.Stdin)
		return "<stdin>", src, err
	}
	src, err = os.ReadFile(args[0])
	return args[0], src, err
}

func (e *engine) compile(name string, src []byte) (*bytecode.CompiledCode, error) {
	src, err := litstorage.NormalizeSource(src)
	if err != nil {
		return nil, err
	}
	rec, err := parser.Parse(e.ctx, e.store, src, parser.Options{
		IsStrictMode:   flagStrict,
		ParseModule:    flagModule,
		SourceName:     name,
		EnableLineInfo: flagLineInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("SyntaxError: %s", err)
	}
	return rec, nil
}

// dumpTree prints the byte-code of a record and every nested function.
func dumpTree(w io.Writer, rec *bytecode.CompiledCode, label string) {
	fmt.Fprintf(w, "--- %s\n", label)
	if rec.Kind() == bytecode.KindRegexp {
		fmt.Fprintf(w, "; regexp /%s/ flags=0x%x (%d bytes)\n", rec.Pattern, rec.RegexpFlags, len(rec.Code))
		return
	}
	fmt.Fprint(w, bytecode.Dump(rec))
	n := 0
	for i := int(rec.ConstLiteralEnd - rec.RegisterEnd); i < len(rec.Literals); i++ {
		slot := rec.Literals[i]
		if slot.Code == nil || slot.SelfReference {
			continue
		}
		dumpTree(w, slot.Code, fmt.Sprintf("%s.func%d", label, n))
		n++
	}
}
