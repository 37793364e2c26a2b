package parser

import (
	"github.com/launix-de/jjsgo/internal/lexer"
)

// The scanner pass walks the token stream ahead of emission and leaves a
// side-band queue of infos keyed to token positions: one per function
// keyword and arrow head carrying the frame's hoisted declarations and
// capture marks, and one per class keyword carrying the body's private
// name table. The emission pass consumes each info by the token index of
// its construct; a kind mismatch is a fatal internal error, while a missing
// info (a construct too malformed to get one) is the user's syntax error.
//
// The walk is deliberately linear over tokens rather than recursive over
// the grammar: every construct is found by local token patterns, so the
// queue is complete and strictly ordered by token index no matter how the
// constructs nest.

type declKind uint8

const (
	declVar declKind = iota
	declLet
	declConst
	declFunc
	declParam
	declCatch
)

type varScan struct {
	name     string
	kind     declKind
	captured bool
	reg      uint16 // assigned at emission start
	hasReg   bool
}

// fnScan is the scanner's view of one function frame: the token range
// spanning parameters and body, and the declarations hoisted into it.
type fnScan struct {
	start, end int
	vars       []varScan
	byName     map[string]int
	parent     *fnScan
}

func newFnScan(start, end int) *fnScan {
	return &fnScan{start: start, end: end, byName: map[string]int{}}
}

func (f *fnScan) declare(name string, kind declKind) {
	if i, ok := f.byName[name]; ok {
		if kind != declVar {
			f.vars[i].kind = kind
		}
		return
	}
	f.byName[name] = len(f.vars)
	f.vars = append(f.vars, varScan{name: name, kind: kind})
}

type scanInfoKind uint8

const (
	infoFunction scanInfoKind = iota
	infoArrow
	infoClass
)

type scanInfo struct {
	kind       scanInfoKind
	tokenIndex int
	fn         *fnScan
	private    map[string]bool
}

type scanner struct {
	toks   []lexer.Token
	source []byte
	infos  []scanInfo
	frames []*fnScan
	root   *fnScan
}

// runScanner builds the info queue for a pre-tokenised source. The
// returned root frame carries the top-level declarations.
func runScanner(toks []lexer.Token, source []byte) ([]scanInfo, *fnScan) {
	s := &scanner{toks: toks, source: source}
	s.root = newFnScan(0, len(toks))
	s.frames = []*fnScan{s.root}
	s.collectFrames()
	s.assignParents()
	s.collectDeclarations()
	s.markCaptures()
	return s.infos, s.root
}

func (s *scanner) text(i int) string {
	return string(s.toks[i].Lexeme(s.source))
}

func (s *scanner) isPunct(i int, p lexer.Punct) bool {
	return i >= 0 && i < len(s.toks) && s.toks[i].Type == lexer.Punctuator && s.toks[i].Punct == p
}

// matchingClose returns the index one past the bracket closing the one at
// open.
func (s *scanner) matchingClose(open int) int {
	depth := 0
	for i := open; i < len(s.toks); i++ {
		if s.toks[i].Type != lexer.Punctuator {
			continue
		}
		switch s.toks[i].Punct {
		case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
			depth++
		case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s.toks)
}

// expressionEnd finds a conservative end for an arrow expression body:
// the next top-level ',', ';', closing bracket or EOF.
func (s *scanner) expressionEnd(from int) int {
	depth := 0
	for i := from; i < len(s.toks); i++ {
		t := s.toks[i]
		if t.Type != lexer.Punctuator {
			continue
		}
		switch t.Punct {
		case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
			depth++
		case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
			if depth == 0 {
				return i
			}
			depth--
		case lexer.PComma, lexer.PSemicolon:
			if depth == 0 {
				return i
			}
		}
	}
	return len(s.toks)
}

// collectFrames finds every function keyword, arrow head and class body
// by local token patterns and records one info per construct, in token
// order.
func (s *scanner) collectFrames() {
	for i := 0; i < len(s.toks); i++ {
		t := s.toks[i]
		switch {
		case t.Keyword == lexer.KwFunction:
			s.frameForFunction(i)
		case t.Type == lexer.Punctuator && t.Punct == lexer.PLParen:
			close := s.matchingClose(i)
			if s.isPunct(close, lexer.PArrow) {
				s.frameForArrow(i, i+1, close-1, close)
			}
		case t.Type == lexer.Identifier && s.isPunct(i+1, lexer.PArrow):
			// single-parameter arrow without parentheses
			if !s.isPunct(i-1, lexer.PRParen) {
				s.frameForArrow(i, i, i+1, i+1)
			}
		case t.Keyword == lexer.KwClass:
			s.classInfo(i)
		}
	}
}

func (s *scanner) frameForFunction(i int) {
	j := i + 1
	if s.isPunct(j, lexer.PMul) {
		j++
	}
	if j < len(s.toks) && s.toks[j].Type == lexer.Identifier {
		j++
	}
	if !s.isPunct(j, lexer.PLParen) {
		return
	}
	parenClose := s.matchingClose(j)
	if !s.isPunct(parenClose, lexer.PLBrace) {
		return
	}
	bodyClose := s.matchingClose(parenClose)

	frame := newFnScan(j, bodyClose)
	s.scanBindingTargets(j+1, parenClose-1, frame, declParam)
	s.frames = append(s.frames, frame)
	s.infos = append(s.infos, scanInfo{kind: infoFunction, tokenIndex: i, fn: frame})
}

func (s *scanner) frameForArrow(at, paramFrom, paramTo, arrowAt int) {
	var end int
	if s.isPunct(arrowAt+1, lexer.PLBrace) {
		end = s.matchingClose(arrowAt + 1)
	} else {
		end = s.expressionEnd(arrowAt + 1)
	}
	frame := newFnScan(at, end)
	s.scanBindingTargets(paramFrom, paramTo, frame, declParam)
	s.frames = append(s.frames, frame)
	s.infos = append(s.infos, scanInfo{kind: infoArrow, tokenIndex: at, fn: frame})
}

func (s *scanner) classInfo(i int) {
	j := i + 1
	for j < len(s.toks) && !s.isPunct(j, lexer.PLBrace) {
		j++
	}
	if j >= len(s.toks) {
		return
	}
	bodyClose := s.matchingClose(j)

	private := map[string]bool{}
	for k := j + 1; k < bodyClose-1; k++ {
		if !s.isPunct(k, lexer.PHash) || k+1 >= len(s.toks) ||
			s.toks[k+1].Type != lexer.Identifier {
			continue
		}
		// `.#x` and `#x in obj` are references; everything else spelled
		// inside the class body is a member declaration.
		if s.isPunct(k-1, lexer.PDot) || s.isPunct(k-1, lexer.PQuestionDot) {
			continue
		}
		if k+2 < len(s.toks) && s.toks[k+2].Keyword == lexer.KwIn {
			continue
		}
		private[s.text(k+1)] = true
	}
	s.infos = append(s.infos, scanInfo{kind: infoClass, tokenIndex: i, private: private})
}

// assignParents links every frame to its innermost enclosing frame.
func (s *scanner) assignParents() {
	for _, f := range s.frames {
		if f == s.root {
			continue
		}
		var best *fnScan = s.root
		for _, g := range s.frames {
			if g == f || g == s.root {
				continue
			}
			if g.start <= f.start && f.end <= g.end && g.start >= best.start {
				best = g
			}
		}
		f.parent = best
	}
}

// frameAt resolves the innermost frame whose range contains token i.
func (s *scanner) frameAt(i int) *fnScan {
	best := s.root
	for _, f := range s.frames {
		if f == s.root {
			continue
		}
		if f.start <= i && i < f.end && f.start >= best.start {
			best = f
		}
	}
	return best
}

// collectDeclarations hoists every declared name into its frame.
func (s *scanner) collectDeclarations() {
	for i := 0; i < len(s.toks); i++ {
		t := s.toks[i]
		switch {
		case t.Keyword == lexer.KwVar:
			s.scanDeclNames(i+1, s.frameAt(i), declVar)
		case t.Keyword == lexer.KwLet && s.startsBinding(i+1):
			s.scanDeclNames(i+1, s.frameAt(i), declLet)
		case t.Keyword == lexer.KwConst:
			s.scanDeclNames(i+1, s.frameAt(i), declConst)
		case t.Keyword == lexer.KwFunction:
			j := i + 1
			if s.isPunct(j, lexer.PMul) {
				j++
			}
			if j < len(s.toks) && s.toks[j].Type == lexer.Identifier {
				s.frameAt(i).declare(s.text(j), declFunc)
			}
		case t.Keyword == lexer.KwClass:
			if i+1 < len(s.toks) && s.toks[i+1].Type == lexer.Identifier {
				s.frameAt(i).declare(s.text(i+1), declLet)
			}
		case t.Keyword == lexer.KwCatch && s.isPunct(i+1, lexer.PLParen):
			close := s.matchingClose(i + 1)
			s.scanBindingTargets(i+2, close-1, s.frameAt(i), declCatch)
		}
	}
}

// startsBinding decides whether `let` heads a declaration (vs being a
// plain identifier in sloppy code).
func (s *scanner) startsBinding(i int) bool {
	if i >= len(s.toks) {
		return false
	}
	t := s.toks[i]
	return t.Type == lexer.Identifier ||
		(t.Type == lexer.Punctuator && (t.Punct == lexer.PLBracket || t.Punct == lexer.PLBrace))
}

// scanDeclNames collects the bound names of one declaration statement,
// stopping at the statement end and skipping initialiser expressions.
func (s *scanner) scanDeclNames(i int, frame *fnScan, kind declKind) {
	for i < len(s.toks) {
		t := s.toks[i]
		switch {
		case t.Type == lexer.Identifier:
			frame.declare(s.text(i), kind)
			i++
		case t.Type == lexer.Punctuator && (t.Punct == lexer.PLBracket || t.Punct == lexer.PLBrace):
			close := s.matchingClose(i)
			s.scanBindingTargets(i+1, close-1, frame, kind)
			i = close
		default:
			return
		}
		if s.isPunct(i, lexer.PAssign) {
			i = s.skipInitializer(i + 1)
		}
		if !s.isPunct(i, lexer.PComma) {
			return
		}
		i++
	}
}

func (s *scanner) skipInitializer(i int) int {
	depth := 0
	for ; i < len(s.toks); i++ {
		t := s.toks[i]
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
				depth++
			case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
				if depth == 0 {
					return i
				}
				depth--
			case lexer.PComma, lexer.PSemicolon:
				if depth == 0 {
					return i
				}
			}
		}
		if depth == 0 && (t.Keyword == lexer.KwIn ||
			(t.Type == lexer.Identifier && s.text(i) == "of")) {
			return i
		}
	}
	return i
}

// scanBindingTargets walks a parameter list or destructuring pattern
// range collecting every bound identifier (skipping property keys and
// default-value expressions).
func (s *scanner) scanBindingTargets(from, to int, frame *fnScan, kind declKind) {
	depth := 0
	inDefault := false
	for i := from; i < to; i++ {
		t := s.toks[i]
		if t.Type == lexer.Punctuator {
			switch t.Punct {
			case lexer.PLBrace, lexer.PLParen, lexer.PLBracket:
				depth++
			case lexer.PRBrace, lexer.PRParen, lexer.PRBracket:
				depth--
			case lexer.PAssign:
				inDefault = true
			case lexer.PComma:
				if depth == 0 {
					inDefault = false
				}
			}
			continue
		}
		if t.Type != lexer.Identifier || inDefault {
			continue
		}
		if s.isPunct(i+1, lexer.PColon) { // property key, not a binding
			continue
		}
		if s.isPunct(i-1, lexer.PDot) || s.isPunct(i-1, lexer.PQuestionDot) {
			continue
		}
		frame.declare(s.text(i), kind)
	}
}

// markCaptures walks all identifier references once and marks any
// declaration referenced from a more deeply nested frame as captured, so
// emission assigns it a heap ident slot instead of a register.
func (s *scanner) markCaptures() {
	for i, t := range s.toks {
		if t.Type != lexer.Identifier {
			continue
		}
		if s.isPunct(i-1, lexer.PDot) || s.isPunct(i-1, lexer.PQuestionDot) || s.isPunct(i-1, lexer.PHash) {
			continue
		}
		name := s.text(i)
		cur := s.frameAt(i)
		for f := cur; f != nil; f = f.parent {
			if idx, ok := f.byName[name]; ok {
				if f != cur {
					f.vars[idx].captured = true
				}
				break
			}
		}
	}
}
