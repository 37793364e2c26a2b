package parser

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/lexer"
)

// parseFunctionDeclaration compiles `[async] function [*] name(...) {...}`
// and binds the resulting function literal to its name.
func (p *Parser) parseFunctionDeclaration() {
	async := false
	if p.isKw(lexer.KwAsync) {
		async = true
		p.advance()
	}
	fnTok := p.pos
	p.expectKwFunction()
	generator := p.eatPunct(lexer.PMul)

	nameTok := p.cur()
	if nameTok.Type != lexer.Identifier {
		p.raise(errors.ErrExpectedIdentifier)
	}
	p.checkIdentPolicy(nameTok, true)
	name := p.identText(nameTok)
	p.advance()

	info := p.popInfo(infoFunction, fnTok)
	rec := p.compileFunction(functionKind(async, generator), info.fn, name)
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
	p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, p.resolveIdent(name))
}

// parseFunctionExpression compiles `[async] function [*] [name](...) {...}`
// leaving the function value on the stack.
func (p *Parser) parseFunctionExpression() {
	async := false
	if p.isKw(lexer.KwAsync) {
		async = true
		p.advance()
	}
	fnTok := p.pos
	p.expectKwFunction()
	generator := p.eatPunct(lexer.PMul)

	name := ""
	if t := p.cur(); t.Type == lexer.Identifier {
		p.checkIdentPolicy(t, true)
		name = p.identText(t)
		p.advance()
	}
	info := p.popInfo(infoFunction, fnTok)
	rec := p.compileFunction(functionKind(async, generator), info.fn, name)
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
}

func (p *Parser) expectKwFunction() {
	if !p.eatKw(lexer.KwFunction) {
		p.raise(errors.ErrUnexpectedToken)
	}
}

func functionKind(async, generator bool) bytecode.FuncKind {
	switch {
	case async && generator:
		return bytecode.KindAsyncGenerator
	case async:
		return bytecode.KindAsync
	case generator:
		return bytecode.KindGenerator
	}
	return bytecode.KindNormal
}

// parseArrowFunction compiles `x => ...` or `(...) => ...`; the cursor is
// at the parameter head, which the scanner already verified.
func (p *Parser) parseArrowFunction(async bool) {
	info := p.popInfo(infoArrow, p.pos)
	rec := p.compileArrow(info.fn, async)
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
}

// parseMethodLike compiles a method or accessor body whose cursor sits
// at '('; class-field initialisers go through parseFieldInitializer.
// Methods and accessors have no scanner frame; all their locals live as
// heap ident slots.
func (p *Parser) parseMethodLike(kind bytecode.FuncKind) {
	rec := p.compileFunction(kind, nil, "")
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
}

// compileFunction saves the outer context, installs a fresh one, parses
// `(params) { body }`, post-processes, restores the outer context and
// returns the record.
func (p *Parser) compileFunction(kind bytecode.FuncKind, fn *fnScan, name string) *bytecode.CompiledCode {
	outer := p.fc
	outerBlocks := p.blocks
	mark := p.scope.Depth()
	p.scope.PushFunc()
	p.blocks = nil

	p.fc = p.newFuncContext(kind, outer.strict, fn)
	p.fc.name = name
	p.fc.sourceStart = p.cur().Start

	p.hoistFrame(fn)
	p.parseParams()

	p.expectPunct(lexer.PLBrace, errors.ErrExpectedLeftBrace)
	p.detectDirectivePrologue()
	p.recheckParamsStrict()

	var asyncCtx *bytecode.Branch
	if p.fc.inAsync {
		// Async bodies run under an implicit try context so synchronous
		// throws become rejected promises.
		asyncCtx = p.fc.em.EmitExtForwardBranch(bytecode.ExtOpTryCreateContext)
	}

	for !p.isPunct(lexer.PRBrace) {
		if p.atEOF() {
			p.raise(errors.ErrExpectedRightBrace)
		}
		p.parseStatement()
	}
	p.fc.sourceEnd = p.cur().Start + p.cur().Length
	p.advance()

	if asyncCtx != nil {
		p.fc.em.SetTarget(asyncCtx)
	}
	rec := p.postProcess()

	p.fc = outer
	p.blocks = outerBlocks
	p.scope.PopTo(mark)
	return rec
}

// compileArrow is the arrow-function analogue: single-identifier or
// parenthesised parameters, block or expression body.
func (p *Parser) compileArrow(fn *fnScan, async bool) *bytecode.CompiledCode {
	outer := p.fc
	outerBlocks := p.blocks
	mark := p.scope.Depth()
	p.scope.PushFunc()
	p.blocks = nil

	p.fc = p.newFuncContext(bytecode.KindArrow, outer.strict, fn)
	p.fc.inAsync = async
	p.fc.sourceStart = p.cur().Start

	p.hoistFrame(fn)

	if p.isPunct(lexer.PLParen) {
		p.parseParams()
	} else {
		t := p.cur()
		if t.Type != lexer.Identifier {
			p.raise(errors.ErrExpectedIdentifier)
		}
		p.checkIdentPolicy(t, true)
		p.fc.argNames = append(p.fc.argNames, p.identText(t))
		p.fc.argCount = 1
		p.fc.extArgLength = 1
		p.advance()
	}
	p.expectPunct(lexer.PArrow, errors.ErrUnexpectedToken)

	var asyncCtx *bytecode.Branch
	if async {
		asyncCtx = p.fc.em.EmitExtForwardBranch(bytecode.ExtOpTryCreateContext)
	}

	if p.isPunct(lexer.PLBrace) {
		p.advance()
		p.detectDirectivePrologue()
		p.recheckParamsStrict()
		for !p.isPunct(lexer.PRBrace) {
			if p.atEOF() {
				p.raise(errors.ErrExpectedRightBrace)
			}
			p.parseStatement()
		}
		p.fc.sourceEnd = p.cur().Start + p.cur().Length
		p.advance()
	} else {
		p.parseAssignmentExpr()
		p.fc.em.EmitOp(bytecode.OpReturn)
		p.fc.sourceEnd = p.cur().Start
	}

	if asyncCtx != nil {
		p.fc.em.SetTarget(asyncCtx)
	}
	rec := p.postProcess()

	p.fc = outer
	p.blocks = outerBlocks
	p.scope.PopTo(mark)
	return rec
}

// parseParams compiles the parameter list of the current function
// context. A default value, destructuring pattern or rest element makes
// the arguments complex: duplicates become an error even in sloppy mode,
// a separate lexical block is required for the body, and rest binds
// through PUSH_REST_OBJECT.
func (p *Parser) parseParams() {
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	fc := p.fc
	seen := map[string]bool{}
	sawComplex := false
	extLen := -1

	for !p.isPunct(lexer.PRParen) {
		if fc.argCount > 0 {
			p.expectPunct(lexer.PComma, errors.ErrUnexpectedToken)
		}
		if fc.argCount > bytecode.MaxArguments {
			p.raise(errors.ErrArgumentLimitReached)
		}

		switch {
		case p.eatPunct(lexer.PDotDotDot):
			sawComplex = true
			if extLen < 0 {
				extLen = fc.argCount
			}
			name := p.bindingIdent()
			p.dupParamCheck(seen, name, true)
			fc.em.EmitExt(bytecode.ExtOpPushRestObject)
			fc.em.EmitLiteral(bytecode.OpAssignSetIdent, p.paramTarget(name))
			fc.argNames = append(fc.argNames, name)
			fc.argCount++
			if !p.isPunct(lexer.PRParen) {
				p.raise(errors.ErrRestParameterNotLast)
			}

		case p.isPunct(lexer.PLBrace) || p.isPunct(lexer.PLBracket):
			sawComplex = true
			if extLen < 0 {
				extLen = fc.argCount
			}
			pattern := p.collectPattern()
			scratch := p.allocScratch()
			// The parameter value arrives in its positional slot.
			fc.em.EmitLiteral(bytecode.OpPushLiteral, bytecode.RegisterStart+uint16(fc.argCount))
			fc.em.EmitLiteral(bytecode.OpAssignSetIdent, scratch)
			p.emitDestructuring(pattern, scratch, bytecode.OpAssignSetIdent, declParam)
			fc.argNames = append(fc.argNames, "")
			fc.argCount++
			if p.isPunct(lexer.PAssign) {
				p.raise(errors.ErrInvalidDestructuring)
			}

		default:
			name := p.bindingIdent()
			isComplex := p.isPunct(lexer.PAssign)
			p.dupParamCheck(seen, name, isComplex || sawComplex)
			if isComplex {
				sawComplex = true
				if extLen < 0 {
					extLen = fc.argCount
				}
				p.advance()
				target := p.paramTarget(name)
				fc.em.EmitLiteral(bytecode.OpPushLiteral, target)
				br := fc.em.EmitForwardBranch(bytecode.OpBranchIfNullishForward)
				skip := fc.em.EmitForwardBranch(bytecode.OpJumpForward)
				fc.em.SetTarget(br)
				fc.em.EmitOp(bytecode.OpPop)
				p.parseAssignmentExpr()
				fc.em.EmitLiteral(bytecode.OpAssignSetIdent, target)
				fc.em.EmitLiteral(bytecode.OpPushLiteral, target)
				fc.em.SetTarget(skip)
				fc.em.EmitOp(bytecode.OpPop)
			}
			fc.argNames = append(fc.argNames, name)
			fc.argCount++
		}
	}
	p.advance()

	if sawComplex {
		if fc.dupParamName != "" {
			p.raise(errors.ErrDuplicatedArgumentNames)
		}
		fc.simpleParams = false
		fc.lexicalBlockNeeded = true
	}
	if extLen >= 0 {
		fc.extArgLength = uint16(extLen)
	} else {
		fc.extArgLength = uint16(fc.argCount)
	}
}

// paramTarget resolves a parameter name to its assignment slot.
func (p *Parser) paramTarget(name string) uint16 {
	return p.resolveIdent(name)
}

// dupParamCheck rejects duplicate parameter names where the language
// does: always when the parameter list is complex, and in strict mode.
// Sloppy duplicates are recorded so a late "use strict" directive can
// still reject them.
func (p *Parser) dupParamCheck(seen map[string]bool, name string, complexCtx bool) {
	if seen[name] {
		if complexCtx || p.fc.strict {
			p.raise(errors.ErrDuplicatedArgumentNames)
		}
		p.fc.dupParamName = name
	}
	seen[name] = true
	if name == "eval" || name == "arguments" {
		p.fc.restrictedParam = name
	}
}

// recheckParamsStrict re-validates the parameter list after a directive
// prologue upgraded the function to strict mode.
func (p *Parser) recheckParamsStrict() {
	if !p.fc.strict {
		return
	}
	if p.fc.dupParamName != "" {
		p.raise(errors.ErrDuplicatedArgumentNames)
	}
	if p.fc.restrictedParam != "" {
		p.raise(errors.ErrStrictIdentNotAllowed)
	}
}
