package lexer

// Punct identifies a punctuator token. Compound assignment and shift
// operators get their own enumerators so the parser never has to re-read
// source bytes to discriminate them.
type Punct int

const (
	PNone Punct = iota
	PLBrace
	PRBrace
	PLParen
	PRParen
	PLBracket
	PRBracket
	PSemicolon
	PComma
	PDot
	PDotDotDot
	PArrow
	PColon
	PQuestion
	PQuestionDot
	PNullish
	PNullishAssign
	PAssign
	PPlusAssign
	PMinusAssign
	PMulAssign
	PDivAssign
	PModAssign
	PExpAssign
	PShlAssign
	PShrAssign
	PShrUAssign
	PAndAssign
	POrAssign
	PXorAssign
	PLogAndAssign
	PLogOrAssign
	PEq
	PNotEq
	PStrictEq
	PStrictNotEq
	PLess
	PGreater
	PLessEq
	PGreaterEq
	PPlus
	PMinus
	PMul
	PDiv
	PMod
	PExp
	PInc
	PDec
	PShl
	PShr
	PShrU
	PBitAnd
	PBitOr
	PBitXor
	PBitNot
	PNot
	PLogAnd
	PLogOr
	PHash
	PBacktick
)

var punctNames = map[Punct]string{
	PLBrace: "{", PRBrace: "}", PLParen: "(", PRParen: ")",
	PLBracket: "[", PRBracket: "]", PSemicolon: ";", PComma: ",",
	PDot: ".", PDotDotDot: "...", PArrow: "=>", PColon: ":",
	PQuestion: "?", PQuestionDot: "?.", PNullish: "??", PNullishAssign: "??=",
	PAssign: "=", PPlusAssign: "+=", PMinusAssign: "-=", PMulAssign: "*=",
	PDivAssign: "/=", PModAssign: "%=", PExpAssign: "**=", PShlAssign: "<<=",
	PShrAssign: ">>=", PShrUAssign: ">>>=", PAndAssign: "&=", POrAssign: "|=",
	PXorAssign: "^=", PLogAndAssign: "&&=", PLogOrAssign: "||=",
	PEq: "==", PNotEq: "!=", PStrictEq: "===", PStrictNotEq: "!==",
	PLess: "<", PGreater: ">", PLessEq: "<=", PGreaterEq: ">=",
	PPlus: "+", PMinus: "-", PMul: "*", PDiv: "/", PMod: "%", PExp: "**",
	PInc: "++", PDec: "--", PShl: "<<", PShr: ">>", PShrU: ">>>",
	PBitAnd: "&", PBitOr: "|", PBitXor: "^", PBitNot: "~", PNot: "!",
	PLogAnd: "&&", PLogOr: "||", PHash: "#", PBacktick: "`",
}

func (p Punct) String() string {
	if s, ok := punctNames[p]; ok {
		return s
	}
	return "<punct>"
}
