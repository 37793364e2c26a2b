package parser

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/lexer"
	"github.com/launix-de/jjsgo/internal/regexp"
)

// exprRef describes the most recently parsed left-hand side whose load
// has been deferred, so an assignment operator can turn it into a store
// instead. refNone means the value is already on the stack.
type refKind uint8

const (
	refNone refKind = iota
	refIdent
	refMember         // object on stack, literal key pending
	refMemberComputed // object and key on stack
	refPrivate        // object on stack, private name literal pending
)

type exprRef struct {
	kind      refKind
	identArg  uint16 // scope-resolved literal argument for refIdent
	identName string
	keyLit    uint16
}

var valueRef = exprRef{kind: refNone}

// emitLoad materialises a deferred reference as a value push.
func (p *Parser) emitLoad(r exprRef) {
	em := p.fc.em
	switch r.kind {
	case refIdent:
		if r.identArg >= bytecode.RegisterStart {
			em.EmitLiteral(bytecode.OpPushLiteral, r.identArg)
		} else {
			em.EmitLiteral(bytecode.OpLoadIdent, r.identArg)
		}
	case refMember:
		em.EmitLiteral(bytecode.OpPushPropLiteral, r.keyLit)
	case refMemberComputed:
		em.EmitOp(bytecode.OpPushProp)
	case refPrivate:
		em.EmitExtLiteral(bytecode.ExtOpPushPrivateProp, r.keyLit)
	}
}

// emitStore assigns the value on top of the stack into the reference.
func (p *Parser) emitStore(r exprRef) {
	em := p.fc.em
	switch r.kind {
	case refIdent:
		em.EmitLiteral(bytecode.OpAssignSetIdent, r.identArg)
		em.EmitLiteral(bytecode.OpPushLiteral, r.identArg) // assignment yields its value
	case refMember:
		em.EmitLiteral(bytecode.OpAssignPropLiteral, r.keyLit)
		em.EmitOp(bytecode.OpPushUndefined)
	case refMemberComputed:
		em.EmitOp(bytecode.OpAssign)
		em.EmitOp(bytecode.OpPushUndefined)
	case refPrivate:
		em.EmitExtLiteral(bytecode.ExtOpAssignPrivate, r.keyLit)
		em.EmitOp(bytecode.OpPushUndefined)
	default:
		p.raise(errors.ErrInvalidLhs)
	}
}

// parseExpression compiles a full expression (comma operator included),
// leaving one value on the stack.
func (p *Parser) parseExpression() {
	p.parseAssignmentExpr()
	for p.isPunct(lexer.PComma) {
		p.advance()
		p.fc.em.EmitOp(bytecode.OpPop)
		p.parseAssignmentExpr()
	}
}

var compoundOps = map[lexer.Punct]bytecode.Op{
	lexer.PPlusAssign:  bytecode.OpAdd,
	lexer.PMinusAssign: bytecode.OpSub,
	lexer.PMulAssign:   bytecode.OpMul,
	lexer.PDivAssign:   bytecode.OpDiv,
	lexer.PModAssign:   bytecode.OpMod,
	lexer.PExpAssign:   bytecode.OpExp,
	lexer.PShlAssign:   bytecode.OpShiftLeft,
	lexer.PShrAssign:   bytecode.OpShiftRight,
	lexer.PShrUAssign:  bytecode.OpShiftRightUnsigned,
	lexer.PAndAssign:   bytecode.OpBitAnd,
	lexer.POrAssign:    bytecode.OpBitOr,
	lexer.PXorAssign:   bytecode.OpBitXor,
}

// parseAssignmentExpr compiles one assignment expression and leaves its
// value on the stack.
func (p *Parser) parseAssignmentExpr() {
	ref := p.parseAssignmentRef()
	p.emitLoad(ref)
}

// parseAssignmentRef is the reference-returning core: callers that only
// need the value call parseAssignmentExpr.
func (p *Parser) parseAssignmentRef() exprRef {
	t := p.cur()

	// arrow functions: `x => ...`, `(...) => ...`, `async ... => ...`
	if t.Type == lexer.Identifier && t.Keyword == lexer.KwNone &&
		p.peekAt(1).Type == lexer.Punctuator && p.peekAt(1).Punct == lexer.PArrow {
		p.parseArrowFunction(false)
		return valueRef
	}
	if p.peekInfoArrow(p.pos) {
		p.parseArrowFunction(false)
		return valueRef
	}
	if t.Keyword == lexer.KwAsync && !p.peekAt(1).NewlineBefore {
		if n := p.peekAt(1); (n.Type == lexer.Identifier && p.peekAt(2).Punct == lexer.PArrow && p.peekAt(2).Type == lexer.Punctuator) ||
			p.peekInfoArrow(p.pos+1) {
			p.advance()
			p.parseArrowFunction(true)
			return valueRef
		}
	}

	if t.Keyword == lexer.KwYield && p.fc.inGenerator {
		p.advance()
		delegate := p.eatPunct(lexer.PMul)
		if p.isPunct(lexer.PSemicolon) || p.isPunct(lexer.PRParen) ||
			p.isPunct(lexer.PRBrace) || p.isPunct(lexer.PRBracket) ||
			p.isPunct(lexer.PComma) || p.atEOF() || p.cur().NewlineBefore {
			p.fc.em.EmitOp(bytecode.OpPushUndefined)
		} else {
			p.parseAssignmentExpr()
		}
		if delegate {
			p.fc.em.EmitExt(bytecode.ExtOpYieldDelegate)
		} else {
			p.fc.em.EmitExt(bytecode.ExtOpYield)
		}
		return valueRef
	}

	ref := p.parseConditional()

	if p.isPunct(lexer.PAssign) {
		p.advance()
		if ref.kind == refNone {
			p.raise(errors.ErrInvalidLhs)
		}
		p.parseAssignmentExpr()
		p.emitStore(ref)
		return valueRef
	}
	if op, ok := compoundOps[p.cur().Punct]; ok && p.cur().Type == lexer.Punctuator {
		p.advance()
		ref = p.reanchor(ref)
		p.emitLoad(ref)
		p.parseAssignmentExpr()
		p.fc.em.EmitOp(op)
		p.emitStore(ref)
		return valueRef
	}
	if p.cur().Type == lexer.Punctuator {
		switch p.cur().Punct {
		case lexer.PLogAndAssign, lexer.PLogOrAssign, lexer.PNullishAssign:
			branchOp := bytecode.OpBranchIfFalseForward
			switch p.cur().Punct {
			case lexer.PLogOrAssign:
				branchOp = bytecode.OpBranchIfTrueForward
			case lexer.PNullishAssign:
				branchOp = bytecode.OpBranchIfNullishForward
			}
			p.advance()
			ref = p.reanchor(ref)
			p.emitLoad(ref)
			if branchOp == bytecode.OpBranchIfNullishForward {
				br := p.fc.em.EmitForwardBranch(branchOp)
				skip := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
				p.fc.em.SetTarget(br)
				p.fc.em.EmitOp(bytecode.OpPop)
				p.parseAssignmentExpr()
				p.emitStore(ref)
				p.fc.em.SetTarget(skip)
			} else {
				br := p.fc.em.EmitForwardBranch(branchOp)
				p.parseAssignmentExpr()
				p.emitStore(ref)
				p.fc.em.SetTarget(br)
			}
			return valueRef
		}
	}
	return ref
}

// reanchor rewrites a member reference so it can be both loaded and later
// stored: the object (and computed key) are parked in scratch slots.
func (p *Parser) reanchor(ref exprRef) exprRef {
	em := p.fc.em
	switch ref.kind {
	case refNone:
		p.raise(errors.ErrInvalidLhs)
	case refIdent:
		return ref
	case refMember, refPrivate:
		obj := p.allocScratch()
		em.EmitLiteral(bytecode.OpAssignSetIdent, obj)
		em.EmitLiteral(bytecode.OpPushLiteral, obj)
		// Leave a second copy for the eventual store.
		em.EmitLiteral(bytecode.OpPushLiteral, obj)
	case refMemberComputed:
		key := p.allocScratch()
		obj := p.allocScratch()
		em.EmitLiteral(bytecode.OpAssignSetIdent, key)
		em.EmitLiteral(bytecode.OpAssignSetIdent, obj)
		em.EmitLiteral(bytecode.OpPushLiteral, obj)
		em.EmitLiteral(bytecode.OpPushLiteral, key)
		em.EmitLiteral(bytecode.OpPushLiteral, obj)
		em.EmitLiteral(bytecode.OpPushLiteral, key)
	}
	return ref
}

// --- binary operators -------------------------------------------------

type binaryLevel struct {
	ops map[lexer.Punct]bytecode.Op
}

var binaryLevels = []binaryLevel{
	{map[lexer.Punct]bytecode.Op{lexer.PBitOr: bytecode.OpBitOr}},
	{map[lexer.Punct]bytecode.Op{lexer.PBitXor: bytecode.OpBitXor}},
	{map[lexer.Punct]bytecode.Op{lexer.PBitAnd: bytecode.OpBitAnd}},
	{map[lexer.Punct]bytecode.Op{
		lexer.PEq: bytecode.OpEqual, lexer.PNotEq: bytecode.OpNotEqual,
		lexer.PStrictEq: bytecode.OpStrictEqual, lexer.PStrictNotEq: bytecode.OpStrictNotEqual,
	}},
	{map[lexer.Punct]bytecode.Op{
		lexer.PLess: bytecode.OpLess, lexer.PGreater: bytecode.OpGreater,
		lexer.PLessEq: bytecode.OpLessEqual, lexer.PGreaterEq: bytecode.OpGreaterEqual,
	}},
	{map[lexer.Punct]bytecode.Op{
		lexer.PShl: bytecode.OpShiftLeft, lexer.PShr: bytecode.OpShiftRight,
		lexer.PShrU: bytecode.OpShiftRightUnsigned,
	}},
	{map[lexer.Punct]bytecode.Op{lexer.PPlus: bytecode.OpAdd, lexer.PMinus: bytecode.OpSub}},
	{map[lexer.Punct]bytecode.Op{
		lexer.PMul: bytecode.OpMul, lexer.PDiv: bytecode.OpDiv, lexer.PMod: bytecode.OpMod,
	}},
}

func (p *Parser) parseConditional() exprRef {
	ref := p.parseNullish()
	if !p.isPunct(lexer.PQuestion) {
		return ref
	}
	p.emitLoad(ref)
	p.advance()
	falseBr := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfFalseForward)
	p.parseAssignmentExpr()
	endBr := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
	p.expectPunct(lexer.PColon, errors.ErrExpectedColon)
	p.fc.em.SetTarget(falseBr)
	p.parseAssignmentExpr()
	p.fc.em.SetTarget(endBr)
	return valueRef
}

func (p *Parser) parseNullish() exprRef {
	ref := p.parseLogicalOr()
	for p.isPunct(lexer.PNullish) {
		p.emitLoad(ref)
		ref = valueRef
		p.advance()
		br := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfNullishForward)
		skip := p.fc.em.EmitForwardBranch(bytecode.OpJumpForward)
		p.fc.em.SetTarget(br)
		p.fc.em.EmitOp(bytecode.OpPop)
		p.parseLogicalOr()
		p.fc.em.SetTarget(skip)
	}
	return ref
}

func (p *Parser) parseLogicalOr() exprRef {
	ref := p.parseLogicalAnd()
	for p.isPunct(lexer.PLogOr) {
		p.emitLoad(ref)
		ref = valueRef
		p.advance()
		br := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfTrueForward)
		p.parseLogicalAnd2()
		p.fc.em.SetTarget(br)
	}
	return ref
}

func (p *Parser) parseLogicalAnd2() {
	r := p.parseLogicalAnd()
	p.emitLoad(r)
}

func (p *Parser) parseLogicalAnd() exprRef {
	ref := p.parseBinary(0)
	for p.isPunct(lexer.PLogAnd) {
		p.emitLoad(ref)
		ref = valueRef
		p.advance()
		br := p.fc.em.EmitForwardBranch(bytecode.OpBranchIfFalseForward)
		r := p.parseBinary(0)
		p.emitLoad(r)
		p.fc.em.SetTarget(br)
	}
	return ref
}

// parseBinary climbs the precedence ladder, loading deferred references
// the moment they become operands.
func (p *Parser) parseBinary(level int) exprRef {
	if level >= len(binaryLevels) {
		return p.parseExponentiation()
	}
	ref := p.parseBinary(level + 1)
	for {
		t := p.cur()
		var op bytecode.Op
		ok := false
		if t.Type == lexer.Punctuator {
			op, ok = binaryLevels[level].ops[t.Punct]
		}
		// relational keywords sit on the comparison level
		if !ok && level == 4 {
			if t.Keyword == lexer.KwInstanceof {
				op, ok = bytecode.OpInstanceof, true
			} else if t.Keyword == lexer.KwIn {
				op, ok = bytecode.OpIn, true
			}
		}
		if !ok {
			return ref
		}
		p.emitLoad(ref)
		ref = valueRef
		p.advance()
		r := p.parseBinary(level + 1)
		p.emitLoad(r)
		p.fc.em.EmitOp(op)
	}
}

func (p *Parser) parseExponentiation() exprRef {
	ref := p.parseUnary()
	if !p.isPunct(lexer.PExp) {
		return ref
	}
	p.emitLoad(ref)
	p.advance()
	// right-associative
	r := p.parseExponentiation()
	p.emitLoad(r)
	p.fc.em.EmitOp(bytecode.OpExp)
	return valueRef
}

func (p *Parser) parseUnary() exprRef {
	t := p.cur()
	if t.Type == lexer.Punctuator {
		switch t.Punct {
		case lexer.PNot:
			p.advance()
			p.unaryOperand()
			p.fc.em.EmitOp(bytecode.OpNot)
			return valueRef
		case lexer.PBitNot:
			p.advance()
			p.unaryOperand()
			p.fc.em.EmitOp(bytecode.OpBitNot)
			return valueRef
		case lexer.PPlus:
			p.advance()
			p.unaryOperand()
			p.fc.em.EmitOp(bytecode.OpPlus)
			return valueRef
		case lexer.PMinus:
			p.advance()
			p.unaryOperand()
			p.fc.em.EmitOp(bytecode.OpNegate)
			return valueRef
		case lexer.PInc, lexer.PDec:
			op := bytecode.OpPreIncr
			if t.Punct == lexer.PDec {
				op = bytecode.OpPreDecr
			}
			p.advance()
			ref := p.parseUnary()
			if ref.kind == refNone {
				p.raise(errors.ErrInvalidLhs)
			}
			if ref.kind == refIdent {
				p.emitLoad(ref)
				p.fc.em.EmitOp(op)
				p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, ref.identArg)
				p.fc.em.EmitLiteral(bytecode.OpPushLiteral, ref.identArg)
			} else {
				p.emitLoad(ref)
				p.fc.em.EmitOp(op)
			}
			return valueRef
		}
	}
	switch t.Keyword {
	case lexer.KwTypeof:
		p.advance()
		p.unaryOperand()
		p.fc.em.EmitOp(bytecode.OpTypeof)
		return valueRef
	case lexer.KwVoid:
		p.advance()
		p.unaryOperand()
		p.fc.em.EmitOp(bytecode.OpVoid)
		return valueRef
	case lexer.KwDelete:
		p.advance()
		ref := p.parseUnary()
		switch ref.kind {
		case refIdent:
			if p.fc.strict {
				p.raise(errors.ErrDeleteIdentStrict)
			}
			p.fc.em.EmitLiteral(bytecode.OpDeleteIdent, ref.identArg)
		case refMember:
			p.fc.em.EmitLiteral(bytecode.OpPushLiteral, ref.keyLit)
			p.fc.em.EmitOp(bytecode.OpDelete)
		case refMemberComputed:
			p.fc.em.EmitOp(bytecode.OpDelete)
		default:
			p.emitLoad(ref)
			p.fc.em.EmitOp(bytecode.OpPop)
			p.fc.em.EmitOp(bytecode.OpPushTrue)
		}
		return valueRef
	case lexer.KwAwait:
		if p.fc.inAsync || (p.opts.ParseModule && p.fc.kind == bytecode.KindScript) {
			p.advance()
			p.unaryOperand()
			p.fc.em.EmitExt(bytecode.ExtOpAwait)
			return valueRef
		}
	}
	return p.parsePostfix()
}

func (p *Parser) unaryOperand() {
	r := p.parseUnary()
	p.emitLoad(r)
}

func (p *Parser) parsePostfix() exprRef {
	ref := p.parseLeftHandSide()
	t := p.cur()
	if t.Type == lexer.Punctuator && (t.Punct == lexer.PInc || t.Punct == lexer.PDec) &&
		!t.NewlineBefore {
		if ref.kind == refNone {
			p.raise(errors.ErrInvalidLhs)
		}
		op := bytecode.OpPostIncr
		if t.Punct == lexer.PDec {
			op = bytecode.OpPostDecr
		}
		p.advance()
		if ref.kind == refIdent {
			p.emitLoad(ref)
			p.fc.em.EmitOp(op)
			p.fc.em.EmitLiteral(bytecode.OpAssignSetIdent, ref.identArg)
		} else {
			p.emitLoad(ref)
			p.fc.em.EmitOp(op)
			p.fc.em.EmitOp(bytecode.OpPop)
		}
		return valueRef
	}
	return ref
}

// parseLeftHandSide handles member access, calls, new expressions,
// optional chains and tagged templates.
func (p *Parser) parseLeftHandSide() exprRef {
	var chain []*bytecode.Branch
	ref := p.parseNewOrPrimary(&chain)
	ref = p.parseCallsAndMembers(ref, &chain)
	for _, br := range chain {
		p.fc.em.SetTarget(br)
	}
	return ref
}

func (p *Parser) parseNewOrPrimary(chain *[]*bytecode.Branch) exprRef {
	if p.isKw(lexer.KwNew) {
		if n := p.peekAt(1); n.Type == lexer.Punctuator && n.Punct == lexer.PDot {
			p.advance()
			p.advance()
			target := p.cur()
			if target.Type != lexer.Identifier || p.text(target) != "target" {
				p.raise(errors.ErrUnexpectedToken)
			}
			if p.fc.kind == bytecode.KindScript {
				p.raise(errors.ErrNewTargetOutsideFunction)
			}
			p.advance()
			p.fc.em.EmitExt(bytecode.ExtOpPushNewTarget)
			return valueRef
		}
		p.advance()
		callee := p.parseNewOrPrimary(chain)
		callee = p.parseMembersOnly(callee)
		p.emitLoad(callee)
		argc := 0
		if p.isPunct(lexer.PLParen) {
			argc = p.parseArguments()
		}
		p.fc.em.EmitByte(bytecode.OpNew, byte(argc))
		return valueRef
	}
	return p.parsePrimary(chain)
}

// parseMembersOnly applies member accesses but stops before a call, so
// `new a.b.C(x)` binds the arguments to the constructor.
func (p *Parser) parseMembersOnly(ref exprRef) exprRef {
	for {
		switch {
		case p.isPunct(lexer.PDot):
			p.emitLoad(ref)
			p.advance()
			ref = p.memberRef()
		case p.isPunct(lexer.PLBracket):
			p.emitLoad(ref)
			p.advance()
			p.parseExpression()
			p.expectPunct(lexer.PRBracket, errors.ErrUnexpectedToken)
			ref = exprRef{kind: refMemberComputed}
		default:
			return ref
		}
	}
}

func (p *Parser) memberRef() exprRef {
	if p.isPunct(lexer.PHash) {
		p.advance()
		t := p.cur()
		if t.Type != lexer.Identifier {
			p.raise(errors.ErrExpectedIdentifier)
		}
		name := p.identText(t)
		p.resolvePrivate(name)
		p.advance()
		return exprRef{kind: refPrivate, keyLit: p.identIndex("#"+name, false)}
	}
	t := p.cur()
	if t.Type != lexer.Identifier && t.Type != lexer.KeywordType {
		p.raise(errors.ErrExpectedIdentifier)
	}
	p.advance()
	return exprRef{kind: refMember, keyLit: p.identIndex(p.identText(t), false)}
}

func (p *Parser) parseCallsAndMembers(ref exprRef, chain *[]*bytecode.Branch) exprRef {
	for {
		t := p.cur()
		if t.Type == lexer.TemplateLiteral {
			p.emitLoad(ref)
			argc := p.parseTaggedTemplateArgs()
			p.fc.em.EmitExtByte(bytecode.ExtOpTaggedTemplate, byte(argc))
			ref = valueRef
			continue
		}
		if t.Type != lexer.Punctuator {
			return ref
		}
		switch t.Punct {
		case lexer.PDot:
			p.emitLoad(ref)
			p.advance()
			ref = p.memberRef()
		case lexer.PQuestionDot:
			p.emitLoad(ref)
			*chain = append(*chain, p.fc.em.EmitForwardBranch(bytecode.OpBranchIfNullishForward))
			p.advance()
			switch {
			case p.isPunct(lexer.PLParen):
				argc := p.parseArguments()
				p.fc.em.EmitByte(bytecode.OpCall, byte(argc))
				ref = valueRef
			case p.isPunct(lexer.PLBracket):
				p.advance()
				p.parseExpression()
				p.expectPunct(lexer.PRBracket, errors.ErrUnexpectedToken)
				ref = exprRef{kind: refMemberComputed}
			default:
				ref = p.memberRef()
			}
		case lexer.PLBracket:
			p.emitLoad(ref)
			p.advance()
			p.parseExpression()
			p.expectPunct(lexer.PRBracket, errors.ErrUnexpectedToken)
			ref = exprRef{kind: refMemberComputed}
		case lexer.PLParen:
			callOp := bytecode.OpCall
			if ref.kind == refMember || ref.kind == refMemberComputed || ref.kind == refPrivate {
				callOp = bytecode.OpCallProp
			}
			if ref.kind == refIdent && ref.identName == "eval" {
				callOp = bytecode.OpEval
			}
			p.emitLoad(ref)
			argc := p.parseArguments()
			p.fc.em.EmitByte(callOp, byte(argc))
			ref = valueRef
		default:
			return ref
		}
	}
}

func (p *Parser) parseArguments() int {
	p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
	argc := 0
	for !p.isPunct(lexer.PRParen) {
		if argc > 0 {
			p.expectPunct(lexer.PComma, errors.ErrUnexpectedToken)
			if p.isPunct(lexer.PRParen) {
				break
			}
		}
		if p.eatPunct(lexer.PDotDotDot) {
			p.parseAssignmentExpr()
			p.fc.em.EmitExt(bytecode.ExtOpPushSpread)
		} else {
			p.parseAssignmentExpr()
		}
		argc++
		if argc > 0xFF {
			p.raise(errors.ErrArgumentLimitReached)
		}
	}
	p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
	return argc
}

// parseTaggedTemplateArgs pushes the template's cooked strings and
// substitution values as call arguments and records the strings on the
// function's tagged-literal list.
func (p *Parser) parseTaggedTemplateArgs() int {
	p.fc.hasTagged = true
	argc := 0
	t := p.advance()
	for {
		cooked := lexer.DecodeString(p.source, t)
		idx := p.stringIndexBytes(cooked, t.Flags&lexer.FlagIsAscii != 0)
		p.fc.tagged = append(p.fc.tagged, p.store.FindOrCreateString(cooked, t.Flags&lexer.FlagIsAscii != 0))
		p.fc.em.EmitLiteral(bytecode.OpPushLiteral, idx)
		argc++
		if t.Flags&lexer.FlagTemplateHead == 0 {
			return argc
		}
		p.parseExpression()
		argc++
		if p.cur().Type != lexer.TemplateLiteral {
			p.raise(errors.ErrUnterminatedString)
		}
		t = p.advance()
	}
}

// parsePrimary compiles a primary expression, returning a deferred
// reference for bare identifiers.
func (p *Parser) parsePrimary(chain *[]*bytecode.Branch) exprRef {
	t := p.cur()
	em := p.fc.em

	if t.Type == lexer.KeywordType && t.Flags&lexer.FlagHasEscape != 0 {
		p.raise(errors.ErrInvalidKeyword)
	}

	switch t.Type {
	case lexer.Identifier:
		p.checkIdentPolicy(t, false)
		p.advance()
		name := p.identText(t)
		return exprRef{kind: refIdent, identArg: p.resolveIdent(name), identName: name}
	case lexer.NumericLiteral:
		p.advance()
		p.emitNumber(lexer.DecodeNumber(p.source, t))
		return valueRef
	case lexer.BigIntLiteral:
		p.advance()
		b, err := lexer.DecodeBigInt(p.source, t)
		if err != nil {
			p.raiseAt(errors.ErrInvalidBigint, t)
		}
		em.EmitLiteral(bytecode.OpPushLiteral, p.bigintIndex(b))
		return valueRef
	case lexer.StringLiteral:
		if t.Flags&lexer.FlagOctalEsc != 0 && p.fc.strict {
			p.raiseAt(errors.ErrOctalEscapeStrict, t)
		}
		p.advance()
		em.EmitLiteral(bytecode.OpPushLiteral, p.stringIndex(t))
		return valueRef
	case lexer.TemplateLiteral:
		p.parseTemplateConcat()
		return valueRef
	case lexer.RegexpLiteral:
		p.advance()
		p.emitRegexpLiteral(t)
		return valueRef
	}

	switch t.Keyword {
	case lexer.KwThis:
		p.advance()
		em.EmitOp(bytecode.OpPushThis)
		return valueRef
	case lexer.KwTrue:
		p.advance()
		em.EmitOp(bytecode.OpPushTrue)
		return valueRef
	case lexer.KwFalse:
		p.advance()
		em.EmitOp(bytecode.OpPushFalse)
		return valueRef
	case lexer.KwNull:
		p.advance()
		em.EmitOp(bytecode.OpPushNull)
		return valueRef
	case lexer.KwSuper:
		if p.fc.kind != bytecode.KindMethod && p.fc.kind != bytecode.KindConstructor &&
			p.fc.kind != bytecode.KindAccessor {
			p.raise(errors.ErrUnexpectedToken)
		}
		p.advance()
		em.EmitOp(bytecode.OpPushThis)
		return valueRef
	case lexer.KwFunction:
		p.parseFunctionExpression()
		return valueRef
	case lexer.KwAsync:
		if n := p.peekAt(1); n.Keyword == lexer.KwFunction && !n.NewlineBefore {
			p.parseFunctionExpression()
			return valueRef
		}
		// plain identifier use of `async`
		p.advance()
		name := p.identText(t)
		return exprRef{kind: refIdent, identArg: p.resolveIdent(name), identName: name}
	case lexer.KwClass:
		p.parseClassExpression()
		return valueRef
	case lexer.KwImport:
		p.advance()
		if p.eatPunct(lexer.PDot) {
			meta := p.cur()
			if meta.Keyword != lexer.KwMeta {
				p.raise(errors.ErrUnexpectedToken)
			}
			if p.module == nil {
				p.raiseAt(errors.ErrImportMetaOutsideModule, t)
			}
			p.advance()
			p.script.HasImportMeta = true
			em.EmitExt(bytecode.ExtOpImportMeta)
			return valueRef
		}
		p.expectPunct(lexer.PLParen, errors.ErrExpectedLeftParen)
		p.parseAssignmentExpr()
		p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
		em.EmitExt(bytecode.ExtOpDynamicImport)
		return valueRef
	}

	if t.Type == lexer.Punctuator {
		switch t.Punct {
		case lexer.PLParen:
			p.advance()
			p.parseExpression()
			p.expectPunct(lexer.PRParen, errors.ErrExpectedRightParen)
			return valueRef
		case lexer.PLBracket:
			p.parseArrayLiteral()
			return valueRef
		case lexer.PLBrace:
			p.parseObjectLiteral()
			return valueRef
		case lexer.PHash:
			// `#x in obj` brand check
			p.advance()
			nameTok := p.cur()
			if nameTok.Type != lexer.Identifier {
				p.raise(errors.ErrExpectedIdentifier)
			}
			name := p.identText(nameTok)
			p.resolvePrivate(name)
			p.advance()
			em.EmitExtLiteral(bytecode.ExtOpPushPrivateProp, p.identIndex("#"+name, false))
			return valueRef
		}
	}

	p.raise(errors.ErrExpectedExpression)
	return valueRef
}

// emitNumber picks the compact byte encodings for small integers and
// falls back to the literal pool.
func (p *Parser) emitNumber(x float64) {
	em := p.fc.em
	if i := int64(x); float64(i) == x && !signbitZero(x) {
		switch {
		case i == 0:
			em.EmitOp(bytecode.OpPushNumberZero)
			return
		case i >= 1 && i <= 256:
			em.EmitByte(bytecode.OpPushNumberPosByte, byte(i-1))
			return
		case i <= -1 && i >= -256:
			em.EmitByte(bytecode.OpPushNumberNegByte, byte(-i-1))
			return
		}
	}
	em.EmitLiteral(bytecode.OpPushLiteral, p.numberIndex(x))
}

func signbitZero(x float64) bool {
	return x == 0 && 1/x < 0
}

// parseTemplateConcat compiles an untagged template literal as a string
// concatenation chain.
func (p *Parser) parseTemplateConcat() {
	em := p.fc.em
	t := p.advance()
	cooked := lexer.DecodeString(p.source, t)
	em.EmitLiteral(bytecode.OpPushLiteral, p.stringIndexBytes(cooked, t.Flags&lexer.FlagIsAscii != 0))
	for t.Flags&lexer.FlagTemplateHead != 0 {
		p.parseExpression()
		em.EmitOp(bytecode.OpAdd)
		if p.cur().Type != lexer.TemplateLiteral {
			p.raise(errors.ErrUnterminatedString)
		}
		t = p.advance()
		cooked = lexer.DecodeString(p.source, t)
		em.EmitLiteral(bytecode.OpPushLiteral, p.stringIndexBytes(cooked, t.Flags&lexer.FlagIsAscii != 0))
		em.EmitOp(bytecode.OpAdd)
	}
}

// stringIndexBytes interns already-decoded characters into the pool.
func (p *Parser) stringIndexBytes(decoded []byte, ascii bool) uint16 {
	key := string(decoded)
	if idx, ok := p.fc.strIdx[key]; ok {
		return idx
	}
	p.checkPoolLimit()
	e := bytecode.PoolEntry{
		Type:   bytecode.LitString,
		Flags:  bytecode.LitFlagUsed,
		Length: uint16(len(decoded)),
		Name:   key,
	}
	if ascii {
		e.Flags |= bytecode.LitFlagAscii
	}
	idx := uint16(p.fc.pool.Append(e))
	p.fc.strIdx[key] = idx
	return idx
}

// emitRegexpLiteral compiles the pattern into a nested regexp record and
// pushes it through the literal pool.
func (p *Parser) emitRegexpLiteral(t lexer.Token) {
	raw := p.text(t)
	end := len(raw) - 1
	for end > 0 && raw[end] != '/' {
		end--
	}
	pattern := raw[1:end]
	flags := uint16(t.Flags >> 8)
	rec := regexp.Compile(pattern, flags)
	p.fc.em.EmitLiteral(bytecode.OpPushLiteral, p.functionIndex(rec))
}

func (p *Parser) parseArrayLiteral() {
	em := p.fc.em
	p.advance()
	em.EmitOp(bytecode.OpCreateArray)
	batch := 0
	flushBatch := func() {
		if batch > 0 {
			em.EmitByte(bytecode.OpAppendArray, byte(batch))
			batch = 0
		}
	}
	for !p.isPunct(lexer.PRBracket) {
		if p.atEOF() {
			p.raise(errors.ErrUnexpectedToken)
		}
		switch {
		case p.eatPunct(lexer.PComma):
			em.EmitOp(bytecode.OpPushUndefined) // elision slot
			batch++
		case p.eatPunct(lexer.PDotDotDot):
			p.parseAssignmentExpr()
			flushBatch()
			em.EmitExt(bytecode.ExtOpPushSpread)
			em.EmitByte(bytecode.OpAppendArray, 1)
			p.eatPunct(lexer.PComma)
		default:
			p.parseAssignmentExpr()
			batch++
			if batch == 0xFF {
				flushBatch()
			}
			if !p.eatPunct(lexer.PComma) && !p.isPunct(lexer.PRBracket) {
				p.raise(errors.ErrUnexpectedToken)
			}
		}
	}
	flushBatch()
	p.advance()
}

func (p *Parser) parseObjectLiteral() {
	em := p.fc.em
	p.advance()
	em.EmitOp(bytecode.OpCreateObject)
	for !p.isPunct(lexer.PRBrace) {
		if p.atEOF() {
			p.raise(errors.ErrExpectedRightBrace)
		}
		p.parseObjectMember()
		if !p.eatPunct(lexer.PComma) && !p.isPunct(lexer.PRBrace) {
			p.raise(errors.ErrUnexpectedToken)
		}
	}
	p.advance()
}

func (p *Parser) parseObjectMember() {
	em := p.fc.em

	if p.eatPunct(lexer.PDotDotDot) {
		p.parseAssignmentExpr()
		em.EmitExt(bytecode.ExtOpCopyDataProperties)
		return
	}

	// getter / setter
	if t := p.cur(); t.Type == lexer.Identifier && (p.text(t) == "get" || p.text(t) == "set") {
		if n := p.peekAt(1); n.Type == lexer.Identifier || n.Type == lexer.KeywordType ||
			n.Type == lexer.StringLiteral {
			isGet := p.text(t) == "get"
			p.advance()
			key := p.propertyKeyIndex()
			p.parseMethodLike(bytecode.KindAccessor)
			if isGet {
				em.EmitExtLiteral(bytecode.ExtOpDefineGetter, key)
			} else {
				em.EmitExtLiteral(bytecode.ExtOpDefineSetter, key)
			}
			return
		}
	}

	async := false
	generator := false
	if p.isKw(lexer.KwAsync) && !p.peekAt(1).NewlineBefore &&
		(p.peekAt(1).Type == lexer.Identifier || p.peekAt(1).Type == lexer.KeywordType ||
			(p.peekAt(1).Type == lexer.Punctuator && p.peekAt(1).Punct == lexer.PMul)) {
		async = true
		p.advance()
	}
	if p.eatPunct(lexer.PMul) {
		generator = true
	}

	// computed key
	if p.isPunct(lexer.PLBracket) {
		p.advance()
		p.parseAssignmentExpr()
		p.expectPunct(lexer.PRBracket, errors.ErrUnexpectedToken)
		if p.isPunct(lexer.PLParen) {
			p.parseMethodLike(methodKind(async, generator))
		} else {
			p.expectPunct(lexer.PColon, errors.ErrExpectedColon)
			p.parseAssignmentExpr()
		}
		em.EmitOp(bytecode.OpDefineOwnProp)
		return
	}

	keyTok := p.cur()
	key := p.propertyKeyIndex()
	switch {
	case p.isPunct(lexer.PLParen) || async || generator:
		p.parseMethodLike(methodKind(async, generator))
		em.EmitExtLiteral(bytecode.ExtOpDefineMethod, key)
	case p.eatPunct(lexer.PColon):
		p.parseAssignmentExpr()
		em.EmitLiteral(bytecode.OpSetProperty, key)
	default:
		// shorthand { x }
		if keyTok.Type != lexer.Identifier {
			p.raise(errors.ErrUnexpectedToken)
		}
		name := p.identText(keyTok)
		r := exprRef{kind: refIdent, identArg: p.resolveIdent(name), identName: name}
		p.emitLoad(r)
		em.EmitLiteral(bytecode.OpSetProperty, key)
	}
}

func methodKind(async, generator bool) bytecode.FuncKind {
	switch {
	case async && generator:
		return bytecode.KindAsyncGenerator
	case async:
		return bytecode.KindAsync
	case generator:
		return bytecode.KindGenerator
	}
	return bytecode.KindMethod
}

// propertyKeyIndex consumes a non-computed property key and interns it.
func (p *Parser) propertyKeyIndex() uint16 {
	t := p.cur()
	switch t.Type {
	case lexer.Identifier, lexer.KeywordType:
		p.advance()
		return p.identIndex(p.identText(t), false)
	case lexer.StringLiteral:
		p.advance()
		return p.stringIndexBytes(lexer.DecodeString(p.source, t), t.Flags&lexer.FlagIsAscii != 0)
	case lexer.NumericLiteral:
		p.advance()
		return p.numberIndex(lexer.DecodeNumber(p.source, t))
	}
	p.raise(errors.ErrExpectedIdentifier)
	return 0
}
