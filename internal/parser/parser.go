// Package parser drives the lexer and the byte-code emitter: a scanner
// pre-pass annotates the token stream, the emission pass walks the
// grammar and produces one compiled-code record per function, and a
// post-processing step assigns dense literal indices, compresses literal
// arguments and branch offsets, and installs the record's tail values.
package parser

import (
	"fmt"
	"math/big"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/jcontext"
	"github.com/launix-de/jjsgo/internal/lexer"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/value"
)

// Options selects the parse entry's behaviour, mirroring the host API's
// parse options.
type Options struct {
	IsStrictMode bool
	ParseModule  bool
	SourceName   string
	StartLine    int
	StartColumn  int
	UserValue    value.Value
	HasUserValue bool
	// ArgumentList carries the parameter-list string of a dynamically
	// built function, stored on the script record.
	ArgumentList   string
	EnableLineInfo bool
}

// loopFrame tracks the unresolved break/continue branches of one
// breakable statement.
type loopFrame struct {
	label          string
	isLoop         bool
	breaks         []*bytecode.Branch
	continues      []*bytecode.Branch
	continueTarget int // backward target position; -1 while still unknown
}

// funcContext is the per-function compile state. compileFunction saves the
// outer context on a linked list, installs a fresh one, and restores it
// when the nested compile finishes; a raised parse error unwinds through
// all of them at once.
type funcContext struct {
	prev *funcContext

	em   *bytecode.Emitter
	pool *bytecode.Pool

	identIdx map[string]uint16
	strIdx   map[string]uint16
	numIdx   map[float64]uint16
	bigIdx   map[string]uint16

	kind        bytecode.FuncKind
	strict      bool
	inAsync     bool
	inGenerator bool

	fn            *fnScan
	registerCount uint16
	scratchBase   uint16

	name            string
	argNames        []string
	argCount        int
	simpleParams    bool
	extArgLength    uint16
	sourceStart     int
	sourceEnd       int
	dupParamName    string
	restrictedParam string

	loops     []loopFrame
	scopeMark int

	lineInfo []byte
	lastLine int

	tagged    []value.Value
	hasTagged bool

	lexicalBlockNeeded bool
}

// Parser is the emission-pass state over one pre-tokenised source.
type Parser struct {
	ctx   *jcontext.Context
	store *litstorage.Storage

	source []byte
	toks   []lexer.Token
	pos    int

	// infos is keyed by the token index of the construct's first token;
	// each entry is consumed exactly once. The emission pass reaches some
	// ranges out of source order (for-loop updates, switch bodies,
	// destructuring defaults), so consumption is by position rather than
	// strictly first-in-first-out.
	infos map[int]scanInfo

	opts   Options
	script *bytecode.Script

	fc    *funcContext
	scope bytecode.ScopeStack

	blocks       []*blockScope
	pendingLabel string

	module       *moduleState
	privateStack []map[string]bool
}

// Parse compiles source into a compiled-code record with refs = 1. All
// lexical and grammar errors surface as *errors.ParseError; the caller
// converts them into a SyntaxError exception value at the API boundary.
func Parse(ctx *jcontext.Context, store *litstorage.Storage, source []byte, opts Options) (rec *bytecode.CompiledCode, err error) {
	defer errors.Recover(&err, opts.SourceName)

	p := &Parser{ctx: ctx, store: store, source: source, opts: opts}
	p.toks = tokenize(source, opts.StartLine, opts.StartColumn)
	p.initialize()
	return p.parseProgram(), nil
}

// initialize runs the scanner pass and installs the root function
// context and script record.
func (p *Parser) initialize() {
	infos, root := runScanner(p.toks, p.source)
	p.infos = make(map[int]scanInfo, len(infos))
	for _, info := range infos {
		p.infos[info.tokenIndex] = info
	}

	p.script = &bytecode.Script{
		Refs:       1,
		SourceName: p.opts.SourceName,
		SourceCode: p.source,
	}
	if p.opts.HasUserValue {
		p.script.HasUserValue = true
		p.script.UserValue = p.opts.UserValue
	}
	if p.opts.ArgumentList != "" {
		p.script.HasFunctionArguments = true
		p.script.ArgumentList = p.store.FindOrCreateString([]byte(p.opts.ArgumentList), true)
	}

	strict := p.opts.IsStrictMode || p.opts.ParseModule
	p.fc = p.newFuncContext(bytecode.KindScript, strict, root)
	if p.opts.ParseModule {
		p.module = newModuleState()
	}
}

func (p *Parser) parseProgram() *bytecode.CompiledCode {
	p.scope.PushFunc()
	p.detectDirectivePrologue()
	p.hoistFrame(p.fc.fn)
	for !p.atEOF() {
		p.parseStatement()
	}
	if p.module != nil {
		p.module.validate(p)
	}
	return p.postProcess()
}

func (p *Parser) newFuncContext(kind bytecode.FuncKind, strict bool, fn *fnScan) *funcContext {
	fc := &funcContext{
		prev:         p.fc,
		em:           bytecode.NewEmitter(),
		pool:         &bytecode.Pool{},
		identIdx:     map[string]uint16{},
		strIdx:       map[string]uint16{},
		numIdx:       map[float64]uint16{},
		bigIdx:       map[string]uint16{},
		kind:         kind,
		strict:       strict,
		fn:           fn,
		simpleParams: true,
	}
	fc.inAsync = kind == bytecode.KindAsync || kind == bytecode.KindAsyncGenerator
	fc.inGenerator = kind == bytecode.KindGenerator || kind == bytecode.KindAsyncGenerator
	return fc
}

// hoistFrame assigns register slots to the frame's non-captured
// declarations and scope-stack mappings for all of them. Captured names
// and everything at script/module top level live as heap ident literals.
func (p *Parser) hoistFrame(fn *fnScan) {
	if fn == nil {
		return
	}
	topLevel := p.fc.kind == bytecode.KindScript
	for i := range fn.vars {
		v := &fn.vars[i]
		idx := p.identIndex(v.name, v.kind == declParam)
		if !topLevel && !v.captured {
			v.reg = p.fc.registerCount
			v.hasReg = true
			p.fc.registerCount++
			p.scope.Push(idx, bytecode.RegisterStart+v.reg)
		} else {
			p.scope.Push(idx, idx)
		}
	}
	p.fc.scratchBase = p.fc.registerCount
}

// detectDirectivePrologue upgrades the current function to strict mode
// when its body opens with a "use strict" directive.
func (p *Parser) detectDirectivePrologue() {
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Type != lexer.StringLiteral {
			return
		}
		body := lexer.DecodeString(p.source, t)
		if string(body) == "use strict" {
			p.fc.strict = true
		}
		// A directive is a string statement; skip it plus its terminator.
		if i+1 < len(p.toks) && p.toks[i+1].Type == lexer.Punctuator &&
			p.toks[i+1].Punct == lexer.PSemicolon {
			i++
		}
	}
}

// --- token access ---------------------------------------------------

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) lexer.Token {
	if p.pos+n >= len(p.toks) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.toks[p.pos+n]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *Parser) atEOF() bool { return p.pos >= len(p.toks) }

func (p *Parser) isPunct(pc lexer.Punct) bool {
	t := p.cur()
	return t.Type == lexer.Punctuator && t.Punct == pc
}

func (p *Parser) eatPunct(pc lexer.Punct) bool {
	if p.isPunct(pc) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectPunct(pc lexer.Punct, code errors.Code) {
	if !p.eatPunct(pc) {
		p.raise(code)
	}
}

func (p *Parser) isKw(kw lexer.Keyword) bool { return p.cur().Keyword == kw }

func (p *Parser) eatKw(kw lexer.Keyword) bool {
	if p.isKw(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) raise(code errors.Code) {
	t := p.cur()
	if t.Type == lexer.EOF && p.pos > 0 {
		t = p.toks[p.pos-1]
	}
	errors.Raise(code, t.Line, t.Col)
}

func (p *Parser) raiseAt(code errors.Code, t lexer.Token) {
	errors.Raise(code, t.Line, t.Col)
}

// text returns the raw lexeme of a token.
func (p *Parser) text(t lexer.Token) string {
	return string(t.Lexeme(p.source))
}

// identText returns the canonical identifier spelling, decoding escape
// sequences if the token carried any.
func (p *Parser) identText(t lexer.Token) string {
	if t.Flags&lexer.FlagHasEscape == 0 {
		return p.text(t)
	}
	return string(decodeIdentifier(t.Lexeme(p.source)))
}

// expectSemicolon implements automatic semicolon insertion: an explicit
// ';', a following '}', EOF, or a line terminator before the next token.
func (p *Parser) expectSemicolon() {
	if p.eatPunct(lexer.PSemicolon) {
		return
	}
	if p.isPunct(lexer.PRBrace) || p.atEOF() || p.cur().NewlineBefore {
		return
	}
	p.raise(errors.ErrExpectedSemicolon)
}

// markLine records a statement-start line for the line-info block and the
// emitter's error positions.
func (p *Parser) markLine() {
	t := p.cur()
	p.fc.em.SetPosition(t.Line, t.Col)
	if !p.opts.EnableLineInfo || t.Line == p.fc.lastLine {
		return
	}
	p.fc.lastLine = t.Line
	off := p.fc.em.Size()
	p.fc.lineInfo = append(p.fc.lineInfo,
		byte(off>>24), byte(off>>16), byte(off>>8), byte(off),
		byte(t.Line>>24), byte(t.Line>>16), byte(t.Line>>8), byte(t.Line))
}

// --- scanner info consumption ---------------------------------------

// popInfo consumes the scanner info recorded for the construct starting
// at tokenIndex. A kind mismatch is an internal desync between the two
// passes and fatal; a missing entry is the user's malformed construct.
func (p *Parser) popInfo(kind scanInfoKind, tokenIndex int) scanInfo {
	info, ok := p.infos[tokenIndex]
	if !ok {
		// The scanner records an info for every well-formed construct;
		// a missing entry means the construct's shape is broken (no
		// parameter list, no body), which is the user's syntax error.
		p.raise(errors.ErrUnexpectedToken)
	}
	if info.kind != kind {
		panic(fmt.Sprintf("parser: scanner info mismatch at token %d (kind %d)", tokenIndex, kind))
	}
	delete(p.infos, tokenIndex)
	return info
}

// peekInfoArrow reports whether the scanner classified the token at
// tokenIndex as an arrow-function head.
func (p *Parser) peekInfoArrow(tokenIndex int) bool {
	info, ok := p.infos[tokenIndex]
	return ok && info.kind == infoArrow
}

// --- literal pool ----------------------------------------------------

func (p *Parser) identIndex(name string, isArg bool) uint16 {
	if idx, ok := p.fc.identIdx[name]; ok {
		if isArg {
			p.fc.pool.Entries[idx].Flags |= bytecode.LitFlagFunctionArgument
		}
		return idx
	}
	p.checkPoolLimit()
	flags := bytecode.LitFlagUsed | bytecode.LitFlagAscii
	if isArg {
		flags |= bytecode.LitFlagFunctionArgument
	}
	idx := uint16(p.fc.pool.Append(bytecode.PoolEntry{
		Type:   bytecode.LitIdentifier,
		Flags:  flags,
		Length: uint16(len(name)),
		Name:   name,
	}))
	p.fc.identIdx[name] = idx
	return idx
}

// stringIndex interns a string literal token into the pool. Tokens
// without escapes keep only their source span and are resolved in the
// final sweep; escape-bearing tokens decode immediately.
func (p *Parser) stringIndex(t lexer.Token) uint16 {
	decoded := lexer.DecodeString(p.source, t)
	key := string(decoded)
	if idx, ok := p.fc.strIdx[key]; ok {
		return idx
	}
	p.checkPoolLimit()
	e := bytecode.PoolEntry{
		Type:   bytecode.LitString,
		Flags:  bytecode.LitFlagUsed,
		Length: uint16(len(decoded)),
	}
	if t.Flags&lexer.FlagIsAscii != 0 {
		e.Flags |= bytecode.LitFlagAscii
	}
	if t.Flags&lexer.FlagHasEscape == 0 && t.Type == lexer.StringLiteral {
		e.Flags |= bytecode.LitFlagSourcePtr | bytecode.LitFlagLateInit
		e.Offset = t.Start + 1 // inside the quotes
		e.Length = uint16(t.Length - 2)
	} else {
		e.Name = key
	}
	idx := uint16(p.fc.pool.Append(e))
	p.fc.strIdx[key] = idx
	return idx
}

func (p *Parser) numberIndex(x float64) uint16 {
	if idx, ok := p.fc.numIdx[x]; ok {
		return idx
	}
	p.checkPoolLimit()
	idx := uint16(p.fc.pool.Append(bytecode.PoolEntry{
		Type:   bytecode.LitNumber,
		Flags:  bytecode.LitFlagUsed,
		Number: x,
	}))
	p.fc.numIdx[x] = idx
	return idx
}

func (p *Parser) bigintIndex(b *big.Int) uint16 {
	key := b.String()
	if idx, ok := p.fc.bigIdx[key]; ok {
		return idx
	}
	p.checkPoolLimit()
	idx := uint16(p.fc.pool.Append(bytecode.PoolEntry{
		Type:   bytecode.LitBigInt,
		Flags:  bytecode.LitFlagUsed,
		BigInt: b,
	}))
	p.fc.bigIdx[key] = idx
	return idx
}

func (p *Parser) functionIndex(rec *bytecode.CompiledCode) uint16 {
	p.checkPoolLimit()
	t := bytecode.LitFunction
	if rec.Kind() == bytecode.KindRegexp {
		t = bytecode.LitRegexp
	}
	return uint16(p.fc.pool.Append(bytecode.PoolEntry{
		Type:  t,
		Flags: bytecode.LitFlagUsed,
		Code:  rec,
	}))
}

func (p *Parser) checkPoolLimit() {
	if p.fc.pool.Len() >= bytecode.MaxLiterals {
		p.raise(errors.ErrLiteralLimitReached)
	}
}

// resolveIdent returns the emission-time literal argument for an
// identifier: the scope-stack mapping if one exists (register or heap
// slot), the pool ident index otherwise.
func (p *Parser) resolveIdent(name string) uint16 {
	idx := p.identIndex(name, false)
	if to, ok := p.scope.Resolve(idx); ok {
		return to
	}
	return idx
}

// --- post-processing -------------------------------------------------

// postProcess finishes the current function context: implicit return,
// dense literal index assignment (identifiers, constants, nested code in
// three disjoint ranges), literal/branch compression, record allocation,
// and tail value installation. The record is returned with refs = 1.
func (p *Parser) postProcess() *bytecode.CompiledCode {
	fc := p.fc
	if fc.inAsync {
		fc.em.EmitExt(bytecode.ExtOpAsyncExit)
	}
	fc.em.EmitOp(bytecode.OpReturnFunctionEnd)

	registerCount := fc.registerCount

	// Dense index assignment in three ranges.
	next := registerCount
	for i := range fc.pool.Entries {
		e := &fc.pool.Entries[i]
		if e.Type == bytecode.LitIdentifier && e.Flags&bytecode.LitFlagUsed != 0 {
			e.Index = next
			next++
		}
	}
	identEnd := next
	for i := range fc.pool.Entries {
		e := &fc.pool.Entries[i]
		switch e.Type {
		case bytecode.LitString, bytecode.LitNumber, bytecode.LitBigInt:
			e.Index = next
			next++
		}
	}
	constLiteralEnd := next
	for i := range fc.pool.Entries {
		e := &fc.pool.Entries[i]
		if e.Type == bytecode.LitFunction || e.Type == bytecode.LitRegexp {
			e.Index = next
			next++
		}
	}
	literalEnd := next
	if int(literalEnd) > bytecode.MaxLiterals {
		p.raise(errors.ErrLiteralLimitReached)
	}

	fullEncoding := literalEnd > 0xFF
	mapLit := func(raw uint16) uint16 {
		if raw >= bytecode.RegisterStart {
			return raw - bytecode.RegisterStart
		}
		return fc.pool.Entries[raw].Index
	}
	code := fc.em.PostProcess(mapLit, registerCount, fullEncoding)

	rec := &bytecode.CompiledCode{
		StackLimit:      registerCount + fc.em.StackLimit(),
		RegisterEnd:     registerCount,
		ArgumentEnd:     uint16(fc.argCount),
		IdentEnd:        identEnd,
		ConstLiteralEnd: constLiteralEnd,
		LiteralEnd:      literalEnd,
		Code:            code,
		Refs:            1,
		Script:          p.script,
	}
	rec.SetKind(fc.kind)
	if fc.strict {
		rec.StatusFlags |= bytecode.FlagStrict
	}
	if fullEncoding {
		rec.StatusFlags |= bytecode.FlagFullLiteralEncoding
	}
	if registerCount > 0xFF || fc.argCount > 0xFF || fc.em.StackLimit() > 0xFF {
		rec.StatusFlags |= bytecode.FlagUint16Arguments
	}
	if fc.lexicalBlockNeeded {
		rec.StatusFlags |= bytecode.FlagLexicalBlockNeeded
	}
	if fc.hasTagged {
		rec.StatusFlags |= bytecode.FlagHasTaggedLiterals
		rec.TaggedTemplates = fc.tagged
	}

	// The final sweep resolves deferred literals while the source buffer
	// is still live, then fills the record's literal table.
	rec.Literals = make([]bytecode.LiteralSlot, literalEnd-registerCount)
	for i := range fc.pool.Entries {
		e := &fc.pool.Entries[i]
		if e.Flags&bytecode.LitFlagUsed == 0 {
			continue
		}
		slot := &rec.Literals[e.Index-registerCount]
		switch e.Type {
		case bytecode.LitIdentifier:
			slot.Value = p.store.FindOrCreateString([]byte(e.Name), e.Flags&bytecode.LitFlagAscii != 0)
		case bytecode.LitString:
			if e.Flags&bytecode.LitFlagLateInit != 0 {
				slot.Value = p.store.FindOrCreateString(
					p.source[e.Offset:e.Offset+int(e.Length)],
					e.Flags&bytecode.LitFlagAscii != 0)
			} else {
				slot.Value = p.store.FindOrCreateString([]byte(e.Name), e.Flags&bytecode.LitFlagAscii != 0)
			}
		case bytecode.LitNumber:
			slot.Value = p.store.FindOrCreateNumber(e.Number)
		case bytecode.LitBigInt:
			slot.Value = p.store.FindOrCreateBigInt(e.BigInt)
		case bytecode.LitFunction, bytecode.LitRegexp:
			slot.Code = e.Code
		}
	}

	if fc.name != "" {
		rec.Name = p.store.FindOrCreateString([]byte(fc.name), true)
	}
	if !fc.strict && fc.kind == bytecode.KindNormal && fc.simpleParams && fc.argCount > 0 {
		rec.StatusFlags |= bytecode.FlagMappedArgumentsNeeded
		for _, n := range fc.argNames {
			rec.ArgumentNames = append(rec.ArgumentNames, p.store.FindOrCreateString([]byte(n), true))
		}
	}
	if p.opts.EnableLineInfo && len(fc.lineInfo) > 0 {
		rec.StatusFlags |= bytecode.FlagUsesLineInfo
		rec.LineInfo = fc.lineInfo
	}
	if fc.extArgLength != uint16(fc.argCount) || fc.sourceStart != 0 || fc.sourceEnd != 0 {
		rec.StatusFlags |= bytecode.FlagHasExtendedInfo
		rec.ExtInfo = &bytecode.ExtendedInfo{
			ArgumentLength: fc.extArgLength,
			SourceStart:    fc.sourceStart,
			SourceEnd:      fc.sourceEnd,
		}
	}
	return rec
}
