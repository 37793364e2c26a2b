package parser

import (
	"sort"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/lexer"
)

func (p *Parser) parseStatement() {
	p.markLine()
	t := p.cur()

	if t.Type == lexer.KeywordType && t.Flags&lexer.FlagHasEscape != 0 {
		p.raise(errors.ErrInvalidKeyword)
	}

	switch {
	case t.Type == lexer.Punctuator && t.Punct == lexer.PLBrace:
		p.parseBlock()
		return
	case t.Type == lexer.Punctuator && t.Punct == lexer.PSemicolon:
		p.advance()
		return
	case t.Type == lexer.Identifier && p.peekAt(1).Type == lexer.Punctuator &&
		p.peekAt(1).Punct == lexer.PColon && t.Keyword == lexer.KwNone:
		p.parseLabelled()
		return
	}

	switch t.Keyword {
	case lexer.KwVar:
		p.advance()
		p.parseVariableDeclaration(declVar, false)
		p.expectSemicolon()
	case lexer.KwLet:
		if p.letStartsBinding() {
			p.advance()
			p.parseVariableDeclaration(declLet, false)
			p.expectSemicolon()
		} else {
			p.parseExpressionStatement()
		}
	case lexer.KwConst:
		p.advance()
		p.parseVariableDeclaration(declConst, false)
		p.expectSemicolon()
	case lexer.KwIf:
		p.parseIf()
	case lexer.KwWhile:
		p.parseWhile()
	case lexer.KwDo:
		p.parseDoWhile()
	case lexer.KwFor:
		p.parseFor()
	case lexer.KwSwitch:
		p.parseSwitch()
	case lexer.KwTry:
		p.parseTry()
	case lexer.KwWith:
		p.parseWith()
	case lexer.KwReturn:
		p.parseReturn()
	case lexer.KwThrow:
		p.advance()
		if p.cur().NewlineBefore {
			p.raise(errors.ErrExpectedExpression)
		}
		p.parseExpression()
		p.fc.em.EmitOp(bytecode.OpThrow)
		p.expectSemicolon()
	case lexer.KwBreak:
		p.parseBreakContinue(true)
	case lexer.KwContinue:
		p.parseBreakContinue(false)
	case lexer.KwFunction:
		p.parseFunctionDeclaration()
	case lexer.KwClass:
		p.parseClassDeclaration()
	case lexer.KwDebugger:
		p.advance()
		p.fc.em.EmitOp(bytecode.OpBreakpointDisabled)
		p.expectSemicolon()
	case lexer.KwImport:
		// `import(` and `import.meta` are expressions; everything else is
		// a module import declaration.
		if n := p.peekAt(1); n.Type == lexer.Punctuator &&
			(n.Punct == lexer.PLParen || n.Punct == lexer.PDot) {
			p.parseExpressionStatement()
		} else {
			p.parseImportDeclaration()
		}
	case lexer.KwExport:
		p.parseExportDeclaration()
	case lexer.KwAsync:
		if n := p.peekAt(1); n.Keyword == lexer.KwFunction && !n.NewlineBefore {
			p.parseFunctionDeclaration()
			return
		}
		p.parseExpressionStatement()
	default:
		p.parseExpressionStatement()
	}
}

// letStartsBinding mirrors the scanner's decision so the two passes stay
// aligned for `let` used as a plain identifier in sloppy code.
func (p *Parser) letStartsBinding() bool {
	n := p.peekAt(1)
	if n.Type == lexer.Identifier {
		return true
	}
	return n.Type == lexer.Punctuator &&
		(n.Punct == lexer.PLBracket || n.Punct == lexer.PLBrace)
}

func (p *Parser) parseExpressionStatement() {
	p.parseExpression()
	p.fc.em.EmitOp(bytecode.OpPop)
	p.expectSemicolon()
}

// --- blocks and lexical scoping --------------------------------------

type blockScope struct {
	declared map[string]bool
	mark     int
}

func (p *Parser) parseBlock() {
	p.expectPunct(lexer.PLBrace, errors.ErrExpectedLeftBrace)
	b := &blockScope{declared: map[string]bool{}, mark: p.scope.Depth()}
	p.blocksPush(b)
	for !p.isPunct(lexer.PRBrace) {
		if p.atEOF() {
			p.raise(errors.ErrExpectedRightBrace)
		}
		p.parseStatement()
	}
	p.advance()
	p.blocksPop(b)
}

// The block stack lives on the parser to validate duplicate lexical
// declarations inside one block.
func (p *Parser) blocksPush(b *blockScope) {
	p.blocks = append(p.blocks, b)
}

func (p *Parser) blocksPop(b *blockScope) {
	p.scope.PopTo(b.mark)
	p.blocks = p.blocks[:len(p.blocks)-1]
}

func (p *Parser) declareLexical(name string) {
	if len(p.blocks) == 0 {
		return
	}
	b := p.blocks[len(p.blocks)-1]
	if b.declared[name] {
		p.raise(errors.ErrDuplicatedLocalIdentifier)
	}
	b.declared[name] = true
}

// --- declarations ----------------------------------------------------

// parseVariableDeclaration compiles the declarator list of a var/let/
// const statement. When inFor is set, a single declarator without an
// initialiser is accepted and the caller owns the loop assignment.
func (p *Parser) parseVariableDeclaration(kind declKind, inFor bool) {
	assignOp := bytecode.OpAssignSetIdent
	if kind == declLet || kind == declConst {
		assignOp = bytecode.OpAssignLetConst
	}
	for {
		t := p.cur()
		switch {
		case t.Type == lexer.Identifier:
			name := p.bindingIdent()
			if kind != declVar {
				p.declareLexical(name)
			}
			if p.eatPunct(lexer.PAssign) {
				p.parseAssignmentExpr()
				p.fc.em.EmitLiteral(assignOp, p.resolveIdent(name))
			} else if kind == declConst && !inFor {
				p.raise(errors.ErrExpectedExpression)
			}
		case t.Type == lexer.Punctuator && (t.Punct == lexer.PLBracket || t.Punct == lexer.PLBrace):
			p.parseBindingPattern(kind, assignOp, inFor)
		default:
			p.raise(errors.ErrExpectedIdentifier)
		}
		if !p.eatPunct(lexer.PComma) {
			return
		}
	}
}

// parseBindingPattern destructures the value of the initialiser into the
// pattern's targets through a scratch register.
func (p *Parser) parseBindingPattern(kind declKind, assignOp bytecode.Op, inFor bool) {
	pattern := p.collectPattern()
	if inFor && !p.isPunct(lexer.PAssign) {
		// for-in/of heads bind per iteration; the caller emitted the
		// iteration value already.
		scratch := p.allocScratch()
		p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, scratch)
		p.emitDestructuring(pattern, scratch, assignOp, kind)
		return
	}
	p.expectPunct(lexer.PAssign, errors.ErrInvalidDestructuring)
	p.parseAssignmentExpr()
	scratch := p.allocScratch()
	p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, scratch)
	p.emitDestructuring(pattern, scratch, assignOp, kind)
}

// patternItem is one binding site of a collected destructuring pattern.
type patternItem struct {
	name       string
	keyLit     uint16 // property key (object) or element index (array)
	isIndex    bool
	isRest     bool
	defaultAt  int // token index of the default expression, -1 when none
	defaultEnd int
	nested     []patternItem
	nestedObj  bool
}

// collectPattern consumes a destructuring pattern from the token stream
// and returns its binding structure. Default-value expressions are
// re-entered by token position during emission.
func (p *Parser) collectPattern() []patternItem {
	objForm := p.isPunct(lexer.PLBrace)
	open := p.cur().Punct
	closeP := lexer.PRBracket
	if open == lexer.PLBrace {
		closeP = lexer.PRBrace
	}
	p.advance()

	var items []patternItem
	index := 0
	for !p.isPunct(closeP) {
		if p.atEOF() {
			p.raise(errors.ErrInvalidDestructuring)
		}
		var it patternItem
		it.defaultAt = -1

		if p.eatPunct(lexer.PDotDotDot) {
			it.isRest = true
			it.name = p.bindingIdent()
			items = append(items, it)
			if !p.isPunct(closeP) {
				p.raise(errors.ErrRestParameterNotLast)
			}
			continue
		}

		if objForm {
			keyTok := p.cur()
			if keyTok.Type != lexer.Identifier && keyTok.Type != lexer.KeywordType &&
				keyTok.Type != lexer.StringLiteral && keyTok.Type != lexer.NumericLiteral {
				p.raise(errors.ErrInvalidDestructuring)
			}
			p.advance()
			keyName := p.identText(keyTok)
			if keyTok.Type == lexer.StringLiteral {
				keyName = string(lexer.DecodeString(p.source, keyTok))
			}
			it.keyLit = p.identIndex(keyName, false)
			if p.eatPunct(lexer.PColon) {
				if p.isPunct(lexer.PLBrace) || p.isPunct(lexer.PLBracket) {
					it.nestedObj = p.isPunct(lexer.PLBrace)
					it.nested = p.collectPattern()
				} else {
					it.name = p.bindingIdent()
				}
			} else {
				it.name = keyName
			}
		} else {
			if p.eatPunct(lexer.PComma) { // elision
				index++
				continue
			}
			it.isIndex = true
			it.keyLit = p.numberIndex(float64(index))
			index++
			if p.isPunct(lexer.PLBrace) || p.isPunct(lexer.PLBracket) {
				it.nestedObj = p.isPunct(lexer.PLBrace)
				it.nested = p.collectPattern()
			} else {
				it.name = p.bindingIdent()
			}
		}

		if p.isPunct(lexer.PAssign) {
			p.advance()
			it.defaultAt = p.pos
			p.skipAssignmentExpr()
			it.defaultEnd = p.pos
		}
		items = append(items, it)
		if !p.eatPunct(lexer.PComma) {
			break
		}
	}
	p.expectPunct(closeP, errors.ErrInvalidDestructuring)
	return items
}

// skipAssignmentExpr advances over one assignment expression without
// emitting, bracket-aware.
func (p *Parser) skipAssignmentExpr() {
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
				depth++
			case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
				if depth == 0 {
					return
				}
				depth--
			case lexer.PComma:
				if depth == 0 {
					return
				}
			}
		}
		p.advance()
	}
}

// emitDestructuring assigns each pattern target from the value held in
// the scratch slot.
func (p *Parser) emitDestructuring(items []patternItem, scratch uint16, assignOp bytecode.Op, kind declKind) {
	for _, it := range items {
		if it.isRest {
			p.fc.em.EmitLiteral(bytecode.OpPushLiteral, scratch)
			p.fc.em.EmitExt(bytecode.ExtOpPushRestObject)
			p.fc.em.EmitLiteral(assignOp, p.resolveIdent(it.name))
			continue
		}
		p.fc.em.EmitLiteral(bytecode.OpPushLiteral, scratch)
		p.fc.em.EmitLiteral(bytecode.OpPushPropLiteral, it.keyLit)
		if it.defaultAt >= 0 {
			br := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfNullishForward)
			skip := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
			p.fc.em.SetTarget(br)
			p.fc.em.EmitOp(bytecode.OpPop)
			p.emitSubExpression(it.defaultAt, it.defaultEnd)
			p.fc.em.SetTarget(skip)
		}
		if it.nested != nil {
			inner := p.allocScratch()
			p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, inner)
			p.emitDestructuring(it.nested, inner, assignOp, kind)
			continue
		}
		if kind == declLet || kind == declConst {
			p.declareLexical(it.name)
		}
		p.fc.em.EmitLiteral(assignOp, p.resolveIdent(it.name))
	}
}

// emitSubExpression re-enters the parser over a saved token range (used
// for default values collected during pattern scanning).
func (p *Parser) emitSubExpression(from, to int) {
	save := p.pos
	p.pos = from
	p.parseAssignmentExpr()
	if p.pos != to {
		// The pattern collector and the expression grammar disagree on
		// where the default ends; that is an internal inconsistency.
		panic("parser: default value range mismatch")
	}
	p.pos = save
}

func (p *Parser) allocScratch() uint16 {
	reg := p.fc.registerCount
	p.fc.registerCount++
	return bytecode.RegisterStart + reg
}

// bindingIdent consumes an identifier in binding position, applying the
// strict-mode and context-sensitive keyword policies.
func (p *Parser) bindingIdent() string {
	t := p.cur()
	if t.Type != lexer.Identifier {
		p.raise(errors.ErrExpectedIdentifier)
	}
	p.checkIdentPolicy(t, true)
	p.advance()
	return p.identText(t)
}

// checkIdentPolicy validates an identifier occurrence against the
// context: reserved-in-strict spellings, await/yield promotion inside
// async/generator bodies and modules, and eval/arguments binding
// restrictions.
func (p *Parser) checkIdentPolicy(t lexer.Token, binding bool) {
	switch t.Keyword {
	case lexer.KwNone, lexer.KwAsync, lexer.KwMeta:
		return
	case lexer.KwYield:
		if p.fc.inGenerator || p.fc.strict {
			p.raiseAt(errors.ErrStrictIdentNotAllowed, t)
		}
	case lexer.KwAwait:
		if p.fc.inAsync || p.opts.ParseModule {
			p.raiseAt(errors.ErrStrictIdentNotAllowed, t)
		}
	case lexer.KwLet, lexer.KwStatic, lexer.KwImplements, lexer.KwInterface,
		lexer.KwPackage, lexer.KwPrivate, lexer.KwProtected, lexer.KwPublic:
		if p.fc.strict {
			p.raiseAt(errors.ErrStrictIdentNotAllowed, t)
		}
	case lexer.KwEval, lexer.KwArguments:
		if binding && p.fc.strict {
			p.raiseAt(errors.ErrStrictIdentNotAllowed, t)
		}
	default:
		p.raiseAt(errors.ErrReservedWordAsIdentifier, t)
	}
}

// --- control flow ----------------------------------------------------

func (p *Parser) parseIf() {
	p.advance()
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	falseBr := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfFalseForward)
	p.parseStatement()
	if p.eatKw(lexer.KwElse) {
		endBr := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
		p.fc.em.SetTarget(falseBr)
		p.parseStatement()
		p.fc.em.SetTarget(endBr)
	} else {
		p.fc.em.SetTarget(falseBr)
	}
}

func (p *Parser) pushLoop(label string, isLoop bool) *loopFrame {
	p.fc.loops = append(p.fc.loops, loopFrame{label: label, isLoop: isLoop, continueTarget: -1})
	return &p.fc.loops[len(p.fc.loops)-1]
}

func (p *Parser) popLoop() loopFrame {
	lf := p.fc.loops[len(p.fc.loops)-1]
	p.fc.loops = p.fc.loops[:len(p.fc.loops)-1]
	return lf
}

func (p *Parser) takeLabel() string {
	l := p.pendingLabel
	p.pendingLabel = ""
	return l
}

func (p *Parser) parseWhile() {
	p.advance()
	lf := p.pushLoop(p.takeLabel(), true)
	top := p.fc.em.Position()
	lf.continueTarget = top
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	falseBr := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfFalseForward)
	p.parseStatement()
	p.fc.em.EmitBackwardBranch(bytecode.OpJumpBackward, top)
	p.fc.em.SetTarget(falseBr)
	p.resolveLoop(p.popLoop())
}

func (p *Parser) parseDoWhile() {
	p.advance()
	lf := p.pushLoop(p.takeLabel(), true)
	top := p.fc.em.Position()
	p.parseStatement()
	cond := p.fc.em.Position()
	lf.continueTarget = cond
	if !p.eatKw(lexer.KwWhile) {
		p.raise(errors.ErrUnexpectedToken)
	}
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	p.fc.em.EmitBackwardBranch(bytecode.OpBranchIfTrueBackward, top)
	p.eatPunct(lexer.PSemicolon)
	p.resolveLoop(p.popLoop())
}

func (p *Parser) parseFor() {
	p.advance()
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)

	// Distinguish the three for-forms by scanning the head.
	if p.isForInOf() {
		p.parseForInOf()
		return
	}

	b := &blockScope{declared: map[string]bool{}, mark: p.scope.Depth()}
	p.blocksPush(b)

	// init clause
	switch {
	case p.isPunct(lexer.PSemicolon):
	case p.isKw(lexer.KwVar):
		p.advance()
		p.parseVariableDeclaration(declVar, false)
	case p.isKw(lexer.KwLet) && p.letStartsBinding():
		p.advance()
		p.parseVariableDeclaration(declLet, false)
	case p.isKw(lexer.KwConst):
		p.advance()
		p.parseVariableDeclaration(declConst, true)
	default:
		p.parseExpression()
		p.fc.em.EmitOp(bytecode.OpPop)
	}
	p.expectPunct(lexer.PSemicolon, errors.ErrExpectedSemicolon)

	lf := p.pushLoop(p.takeLabel(), true)
	condTop := p.fc.em.Position()
	var falseBr *bytecode.Branch
	if !p.isPunct(lexer.PSemicolon) {
		p.parseExpression()
		falseBr = p.fc.em.EmitForwardBranch(bytecode.OpBranchIfFalseForward)
	}
	p.expectPunct(lexer.PSemicolon, errors.ErrExpectedSemicolon)

	// The update clause runs after the body: save its tokens and replay.
	updateFrom := p.pos
	if !p.isPunct(lexer.PRParen) {
		p.skipExpression()
	}
	updateTo := p.pos
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)

	p.parseStatement()

	continuePos := p.fc.em.Position()
	lf.continueTarget = continuePos
	if updateTo > updateFrom {
		save := p.pos
		p.pos = updateFrom
		p.parseExpression()
		p.fc.em.EmitOp(bytecode.OpPop)
		p.pos = save
	}
	p.fc.em.EmitBackwardBranch(bytecode.OpJumpBackward, condTop)
	if falseBr != nil {
		p.fc.em.SetTarget(falseBr)
	}
	p.resolveLoop(p.popLoop())
	p.blocksPop(b)
}

// isForInOf looks ahead over the for-head to find a top-level `in` or
// `of` before the first ';'.
func (p *Parser) isForInOf() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLParen, lexer.PLBracket, lexer.PLBrace:
				depth++
			case lexer.PRParen, lexer.PRBracket, lexer.PRBrace:
				if depth == 0 {
					return false
				}
				depth--
			case lexer.PSemicolon:
				if depth == 0 {
					return false
				}
			case lexer.PAssign:
				if depth == 0 {
					return false
				}
			}
		}
		if depth == 0 && (t.Keyword == lexer.KwIn ||
			(t.Type == lexer.Identifier && p.text(t) == "of")) {
			return true
		}
	}
	return false
}

func (p *Parser) parseForInOf() {
	b := &blockScope{declared: map[string]bool{}, mark: p.scope.Depth()}
	p.blocksPush(b)

	var kind declKind = declVar
	declared := false
	switch {
	case p.eatKw(lexer.KwVar):
		declared = true
	case p.isKw(lexer.KwLet) && p.letStartsBinding():
		p.advance()
		kind = declLet
		declared = true
	case p.eatKw(lexer.KwConst):
		kind = declConst
		declared = true
	}

	var name string
	var pattern []patternItem
	if p.isPunct(lexer.PLBrace) || p.isPunct(lexer.PLBracket) {
		pattern = p.collectPattern()
	} else {
		name = p.bindingIdent()
		if declared && kind != declVar {
			p.declareLexical(name)
		}
	}

	isOf := false
	if p.isKw(lexer.KwIn) {
		p.advance()
	} else if p.cur().Type == lexer.Identifier && p.text(p.cur()) == "of" {
		p.advance()
		isOf = true
	} else {
		p.raise(errors.ErrUnexpectedToken)
	}

	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)

	initOp, nextOp := bytecode.ExtOpForInInit, bytecode.ExtOpForInNext
	if isOf {
		initOp, nextOp = bytecode.ExtOpForOfInit, bytecode.ExtOpForOfNext
	}
	endBr := p.fc.em.EmitExtForwardBranch(initOp)
	lf := p.pushLoop(p.takeLabel(), true)
	top := p.fc.em.Position()
	lf.continueTarget = top
	p.fc.em.EmitExt(nextOp)

	assignOp := bytecode.OpAssignSetIdent
	if kind == declLet || kind == declConst {
		assignOp = bytecode.OpAssignLetConst
	}
	if pattern != nil {
		scratch := p.allocScratch()
		p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, scratch)
		p.emitDestructuring(pattern, scratch, assignOp, kind)
	} else {
		p.fc.em.EmitLiteral(assignOp, p.resolveIdent(name))
	}

	p.parseStatement()
	p.fc.em.EmitBackwardBranch(bytecode.OpJumpBackward, top)
	p.fc.em.SetTarget(endBr)
	p.resolveLoop(p.popLoop())
	p.blocksPop(b)
}

// skipExpression advances over a full expression (commas included) at
// depth 0 of the current bracket nesting.
func (p *Parser) skipExpression() {
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
				depth++
			case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
				if depth == 0 {
					return
				}
				depth--
			case lexer.PSemicolon:
				if depth == 0 {
					return
				}
			}
		}
		p.advance()
	}
}

func (p *Parser) parseSwitch() {
	p.advance()
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	disc := p.allocScratch()
	p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, disc)

	p.expectPunct(lexer.PLBrace, errors.ErrExpectedLeftBrace)
	b := &blockScope{declared: map[string]bool{}, mark: p.scope.Depth()}
	p.blocksPush(b)
	p.pushLoop(p.takeLabel(), false)

	// First walk: emit all case tests, recording a branch per body.
	type caseSite struct {
		branch *bytecode.Branch
		body   int // token index of the body
	}
	var cases []caseSite
	defaultBody := -1
	for !p.isPunct(lexer.PRBrace) {
		switch {
		case p.eatKw(lexer.KwCase):
			p.fc.em.EmitLiteral(bytecode.OpPushLiteral, disc)
			p.parseExpression()
			p.fc.em.EmitOp(bytecode.OpStrictEqual)
			br := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfTrueForward)
			p.expectPunct(lexer.PColon, errors.ErrExpectedColon)
			cases = append(cases, caseSite{branch: br, body: p.pos})
			p.skipCaseBody()
		case p.eatKw(lexer.KwDefault):
			p.expectPunct(lexer.PColon, errors.ErrExpectedColon)
			defaultBody = p.pos
			p.skipCaseBody()
		default:
			p.raise(errors.ErrUnexpectedToken)
		}
	}
	closeIdx := p.pos
	defaultBr := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)

	// Second walk: bodies in source order, fallthrough between them.
	bodyAt := make(map[int]*bytecode.Branch)
	for _, c := range cases {
		bodyAt[c.body] = c.branch
	}
	var starts []int
	for _, c := range cases {
		starts = append(starts, c.body)
	}
	if defaultBody >= 0 {
		starts = append(starts, defaultBody)
	}
	sort.Ints(starts)
	for _, at := range starts {
		if br, ok := bodyAt[at]; ok {
			p.fc.em.SetTarget(br)
		}
		if at == defaultBody {
			p.fc.em.SetTarget(defaultBr)
		}
		save := p.pos
		p.pos = at
		for !p.isKw(lexer.KwCase) && !p.isKw(lexer.KwDefault) && !p.isPunct(lexer.PRBrace) {
			p.parseStatement()
		}
		p.pos = save
	}
	if defaultBody < 0 {
		p.fc.em.SetTarget(defaultBr)
	}
	p.pos = closeIdx
	p.expectPunct(lexer.PRBrace, errors.ErrExpectedRightBrace)
	p.resolveLoop(p.popLoop())
	p.blocksPop(b)
}

// skipCaseBody advances over the statements of one case clause.
func (p *Parser) skipCaseBody() {
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		if depth == 0 && (t.Keyword == lexer.KwCase || t.Keyword == lexer.KwDefault) {
			return
		}
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
				depth++
			case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
				if depth == 0 {
					return
				}
				depth--
			}
		}
		p.advance()
	}
}

func (p *Parser) parseTry() {
	p.advance()
	tryBr := p.fc.em.EmitExtForwardBranch(bytecode.ExtOpTryCreateContext)
	p.parseBlock()
	endBr := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
	p.fc.em.SetTarget(tryBr)

	hasHandler := false
	if p.eatKw(lexer.KwCatch) {
		hasHandler = true
		catchBr := p.fc.em.EmitExtForwardBranch(bytecode.ExtOpCatch)
		b := &blockScope{declared: map[string]bool{}, mark: p.scope.Depth()}
		p.blocksPush(b)
		if p.eatPunct(lexer.PLParen) {
			if p.isPunct(lexer.PLBrace) || p.isPunct(lexer.PLBracket) {
				pattern := p.collectPattern()
				scratch := p.allocScratch()
				p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, scratch)
				p.emitDestructuring(pattern, scratch, bytecode.OpAssignLetConst, declCatch)
			} else {
				name := p.bindingIdent()
				p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, p.resolveIdent(name))
			}
			p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
		}
		p.parseBlock()
		p.blocksPop(b)
		p.fc.em.SetTarget(catchBr)
	}
	if p.eatKw(lexer.KwFinally) {
		hasHandler = true
		finBr := p.fc.em.EmitExtForwardBranch(bytecode.ExtOpFinally)
		p.parseBlock()
		p.fc.em.SetTarget(finBr)
	}
	if !hasHandler {
		p.raise(errors.ErrUnexpectedToken)
	}
	p.fc.em.EmitExt(bytecode.ExtOpContextEnd)
	p.fc.em.SetTarget(endBr)
}

func (p *Parser) parseWith() {
	if p.fc.strict {
		p.raise(errors.ErrWithInStrict)
	}
	p.advance()
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	p.parseExpression()
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	br := p.fc.em.EmitExtForwardBranch(bytecode.ExtOpWithCreateContext)
	p.parseStatement()
	p.fc.em.EmitExt(bytecode.ExtOpContextEnd)
	p.fc.em.SetTarget(br)
}

func (p *Parser) parseReturn() {
	if p.fc.kind == bytecode.KindScript {
		p.raise(errors.ErrUnexpectedToken)
	}
	p.advance()
	if p.isPunct(lexer.PSemicolon) || p.isPunct(lexer.PRBrace) || p.atEOF() ||
		p.cur().NewlineBefore {
		p.fc.em.EmitOp(bytecode.OpPushUndefined)
	} else {
		p.parseExpression()
	}
	p.fc.em.EmitOp(bytecode.OpReturn)
	p.expectSemicolon()
}

func (p *Parser) parseBreakContinue(isBreak bool) {
	p.advance()
	label := ""
	if t := p.cur(); t.Type == lexer.Identifier && !t.NewlineBefore && t.Keyword == lexer.KwNone {
		label = p.text(t)
		p.advance()
	}
	p.expectSemicolon()

	for i := len(p.fc.loops) - 1; i >= 0; i-- {
		lf := &p.fc.loops[i]
		if label != "" && lf.label != label {
			continue
		}
		if !isBreak && !lf.isLoop {
			continue
		}
		if isBreak {
			lf.breaks = append(lf.breaks, p.fc.em.EmitForwardBranch(bytecode.OpJumpForward))
		} else if lf.continueTarget >= 0 {
			p.fc.em.EmitBackwardBranch(bytecode.OpJumpBackward, lf.continueTarget)
		} else {
			lf.continues = append(lf.continues, p.fc.em.EmitForwardBranch(bytecode.OpJumpForward))
		}
		return
	}
	p.raise(errors.ErrUnexpectedToken)
}

// resolveLoop back-patches the loop's pending break branches (and any
// forward continues that targeted a not-yet-known position).
func (p *Parser) resolveLoop(lf loopFrame) {
	for _, br := range lf.breaks {
		p.fc.em.SetTarget(br)
	}
	for _, br := range lf.continues {
		p.fc.em.SetTarget(br)
	}
}

func (p *Parser) parseLabelled() {
	label := p.text(p.cur())
	p.advance() // identifier
	p.advance() // ':'
	p.pendingLabel = label
	switch p.cur().Keyword {
	case lexer.KwWhile, lexer.KwDo, lexer.KwFor:
		p.parseStatement()
	default:
		// Non-loop labelled statement: only break targets it.
		p.pushLoop(label, false)
		p.takeLabel()
		p.parseStatement()
		p.resolveLoop(p.popLoop())
	}
}
