package parser

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/lexer"
)

func (p *Parser) parseClassDeclaration() {
	name := p.parseClassCommon(true)
	if name == "" {
		p.raise(errors.ErrExpectedIdentifier)
	}
	p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, p.resolveIdent(name))
}

func (p *Parser) parseClassExpression() {
	p.parseClassCommon(false)
}

// parseClassCommon compiles a class head and body, leaving the class
// value on the stack and returning the binding name (empty for anonymous
// expressions). Class bodies are always strict.
func (p *Parser) parseClassCommon(isDeclaration bool) string {
	classTok := p.pos
	p.advance() // class
	info := p.popInfo(infoClass, classTok)

	name := ""
	if t := p.cur(); t.Type == lexer.Identifier {
		p.checkIdentPolicy(t, true)
		name = p.identText(t)
		p.advance()
	}

	outerStrict := p.fc.strict
	p.fc.strict = true
	defer func() { p.fc.strict = outerStrict }()

	hasExtends := false
	if p.eatKw(lexer.KwExtends) {
		hasExtends = true
		r := p.parseLeftHandSide()
		p.emitLoad(r)
	}
	_ = hasExtends

	nameLit := p.identIndex(name, false)
	p.fc.em.EmitExtLiteral(bytecode.ExtOpPushClass, nameLit)

	p.privateStack = append(p.privateStack, info.private)

	p.expectPunct(lexer.PLBrace, errors.ErrExpectedLeftBrace)
	for !p.isPunct(lexer.PRBrace) {
		if p.atEOF() {
			p.raise(errors.ErrExpectedRightBrace)
		}
		if p.eatPunct(lexer.PSemicolon) {
			continue
		}
		p.parseClassMember()
	}
	p.advance()

	p.privateStack = p.privateStack[:len(p.privateStack)-1]
	p.fc.em.EmitExt(bytecode.ExtOpClassEnd)
	return name
}

func (p *Parser) parseClassMember() {
	em := p.fc.em

	isStatic := false
	if p.isKw(lexer.KwStatic) && !p.nextIsMemberTerminator(1) {
		isStatic = true
		p.advance()
	}

	// static initialisation block
	if isStatic && p.isPunct(lexer.PLBrace) {
		rec := p.compileStaticBlock()
		em.EmitExtLiteral(bytecode.ExtOpClassStaticBlock, p.functionIndex(rec))
		return
	}

	// accessor
	if t := p.cur(); t.Type == lexer.Identifier && (p.text(t) == "get" || p.text(t) == "set") &&
		!p.nextIsMemberTerminator(1) {
		isGet := p.text(t) == "get"
		p.advance()
		key := p.classKeyIndex()
		p.parseMethodLike(bytecode.KindAccessor)
		if isGet {
			em.EmitExtLiteral(bytecode.ExtOpDefineGetter, key)
		} else {
			em.EmitExtLiteral(bytecode.ExtOpDefineSetter, key)
		}
		return
	}

	async := false
	generator := false
	if p.isKw(lexer.KwAsync) && !p.peekAt(1).NewlineBefore && !p.nextIsMemberTerminator(1) {
		async = true
		p.advance()
	}
	if p.eatPunct(lexer.PMul) {
		generator = true
	}

	// computed key member
	if p.isPunct(lexer.PLBracket) {
		p.advance()
		p.parseAssignmentExpr()
		p.expectPunct(lexer.PRBracket, errors.ErrUnexpectedToken)
		if p.isPunct(lexer.PLParen) {
			p.parseMethodLike(methodKind(async, generator))
		} else {
			p.parseFieldInitializer()
		}
		em.EmitOp(bytecode.OpDefineOwnProp)
		return
	}

	keyTok := p.cur()
	key := p.classKeyIndex()
	isCtor := !isStatic && keyTok.Type == lexer.Identifier && p.identText(keyTok) == "constructor"

	switch {
	case p.isPunct(lexer.PLParen):
		kind := methodKind(async, generator)
		if isCtor {
			kind = bytecode.KindConstructor
		}
		p.parseMethodLike(kind)
		em.EmitExtLiteral(bytecode.ExtOpDefineMethod, key)
	default:
		// field: `key = initializer ;` or bare `key ;`
		p.parseFieldInitializer()
		em.EmitExtLiteral(bytecode.ExtOpClassField, key)
		p.expectSemicolon()
	}
}

// nextIsMemberTerminator reports whether the token n ahead ends a member
// head, meaning the current word is itself the member name (`static;`,
// `get = 1`, `async()`...).
func (p *Parser) nextIsMemberTerminator(n int) bool {
	t := p.peekAt(n)
	if t.Type != lexer.Punctuator {
		return false
	}
	switch t.Punct {
	case lexer.PLParen, lexer.PAssign, lexer.PSemicolon, lexer.PRBrace:
		return true
	}
	return false
}

// classKeyIndex consumes a class member key, private names included.
func (p *Parser) classKeyIndex() uint16 {
	if p.eatPunct(lexer.PHash) {
		t := p.cur()
		if t.Type != lexer.Identifier {
			p.raise(errors.ErrExpectedIdentifier)
		}
		p.advance()
		return p.identIndex("#"+p.identText(t), false)
	}
	return p.propertyKeyIndex()
}

// parseFieldInitializer compiles a class-field initialiser as its own
// function record; a bare field declaration initialises to undefined.
func (p *Parser) parseFieldInitializer() {
	outer := p.fc
	outerBlocks := p.blocks
	mark := p.scope.Depth()
	p.scope.PushFunc()
	p.blocks = nil

	p.fc = p.newFuncContext(bytecode.KindMethod, true, nil)
	p.fc.sourceStart = p.cur().Start
	if p.eatPunct(lexer.PAssign) {
		p.parseAssignmentExpr()
	} else {
		p.fc.em.EmitOp(bytecode.OpPushUndefined)
	}
	p.fc.em.EmitOp(bytecode.OpReturn)
	p.fc.sourceEnd = p.cur().Start
	rec := p.postProcess()

	p.fc = outer
	p.blocks = outerBlocks
	p.scope.PopTo(mark)
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
}

// compileStaticBlock compiles `static { ... }` into a class-static-block
// record.
func (p *Parser) compileStaticBlock() *bytecode.CompiledCode {
	outer := p.fc
	outerBlocks := p.blocks
	mark := p.scope.Depth()
	p.scope.PushFunc()
	p.blocks = nil

	p.fc = p.newFuncContext(bytecode.KindStaticBlock, true, nil)
	p.fc.sourceStart = p.cur().Start
	p.expectPunct(lexer.PLBrace, errors.ErrExpectedLeftBrace)
	for !p.isPunct(lexer.PRBrace) {
		if p.atEOF() {
			p.raise(errors.ErrExpectedRightBrace)
		}
		p.parseStatement()
	}
	p.fc.sourceEnd = p.cur().Start + p.cur().Length
	p.advance()
	rec := p.postProcess()

	p.fc = outer
	p.blocks = outerBlocks
	p.scope.PopTo(mark)
	return rec
}

// resolvePrivate checks a `#name` reference against the private contexts
// in scope; an unmatched name is a syntax error, including any use
// outside a class body.
func (p *Parser) resolvePrivate(name string) {
	for i := len(p.privateStack) - 1; i >= 0; i-- {
		if p.privateStack[i][name] {
			return
		}
	}
	p.raise(errors.ErrUndeclaredPrivateField)
}
