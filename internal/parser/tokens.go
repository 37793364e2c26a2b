package parser

import (
	"unicode/utf8"

	"github.com/launix-de/jjsgo/internal/lexer"
)

// tokenize runs the lexer over the whole source up front. Two ambiguities
// the raw lexer cannot resolve are settled here with one token of
// history: '/' as division versus regexp start, and '}' as a punctuator
// versus the resumption of a template literal's raw span.
func tokenize(source []byte, startLine, startCol int) []lexer.Token {
	lx := lexer.New(source, startLine, startCol)
	var toks []lexer.Token
	var templateBraces []int
	braceDepth := 0
	prev := lexer.Token{Type: lexer.EOF}

	for {
		t := lx.Next()

		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace:
				braceDepth++
			case lexer.PRBrace:
				if n := len(templateBraces); n > 0 && templateBraces[n-1] == braceDepth {
					// This '}' closes a ${ substitution: resume the raw
					// template scan instead of emitting the punctuator.
					templateBraces = templateBraces[:n-1]
					t = lx.TemplateSpan()
				} else {
					braceDepth--
				}
			case lexer.PDiv, lexer.PDivAssign:
				if regexpAllowed(prev) {
					t = lx.ScanRegexp(t)
				}
			}
		}

		if t.Type == lexer.TemplateLiteral && t.Flags&lexer.FlagTemplateHead != 0 {
			templateBraces = append(templateBraces, braceDepth)
		}

		toks = append(toks, t)
		if t.Type == lexer.EOF {
			return toks
		}
		prev = t
	}
}

// regexpAllowed decides whether a '/' at this position starts a regexp
// literal: yes at expression starts (after operators, opening brackets
// and most keywords), no after something that can end an expression.
func regexpAllowed(prev lexer.Token) bool {
	switch prev.Type {
	case lexer.EOF:
		return true
	case lexer.Identifier, lexer.NumericLiteral, lexer.StringLiteral,
		lexer.TemplateLiteral, lexer.RegexpLiteral, lexer.BigIntLiteral:
		return false
	case lexer.KeywordType:
		switch prev.Keyword {
		case lexer.KwThis, lexer.KwTrue, lexer.KwFalse, lexer.KwNull, lexer.KwSuper:
			return false
		}
		return true
	case lexer.Punctuator:
		switch prev.Punct {
		case lexer.PRParen, lexer.PRBracket, lexer.PInc, lexer.PDec:
			return false
		}
		return true
	}
	return true
}

// decodeIdentifier canonicalises an escape-bearing identifier lexeme into
// its character bytes.
func decodeIdentifier(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		if raw[i] != '\\' {
			out = append(out, raw[i])
			i++
			continue
		}
		i += 2 // backslash + 'u'
		var cp rune
		if i < len(raw) && raw[i] == '{' {
			i++
			for i < len(raw) && raw[i] != '}' {
				cp = cp<<4 | rune(hexVal(raw[i]))
				i++
			}
			i++
		} else {
			for n := 0; n < 4 && i < len(raw); n++ {
				cp = cp<<4 | rune(hexVal(raw[i]))
				i++
			}
		}
		var tmp [4]byte
		out = append(out, tmp[:utf8.EncodeRune(tmp[:], cp)]...)
	}
	return out
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
