package regexp

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
)

// Compile lowers pattern + flags into a regexp compiled-code record. The
// record reuses the compiled-code shape: the byte-code stream holds the
// regexp opcodes and Pattern keeps the source text so a snapshot can
// serialise the leaf as header + pattern bytes and recompile on load.
func Compile(pattern string, flags uint16) *bytecode.CompiledCode {
	root := parsePattern(pattern, flags)

	c := &compiler{unicode: flags&FlagUnicode != 0}
	var e encoder
	// Whole-pattern capture group 0 brackets the match.
	e.op(ReOpCaptureStart)
	e.value(0)
	c.lower(&e, root)
	e.op(ReOpCaptureEnd)
	e.value(0)
	e.op(ReOpEOF)

	rec := &bytecode.CompiledCode{
		Code:        e.buf,
		Pattern:     pattern,
		RegexpFlags: flags,
		Refs:        1,
	}
	rec.SetKind(bytecode.KindRegexp)
	return rec
}

// ParseFlags converts a flag string ("gi") into the flag bitmask,
// rejecting unknown letters and duplicates.
func ParseFlags(s string) (uint16, error) {
	var flags uint16
	for i := 0; i < len(s); i++ {
		var bit uint16
		switch s[i] {
		case 'g':
			bit = FlagGlobal
		case 'i':
			bit = FlagIgnoreCase
		case 'm':
			bit = FlagMultiline
		case 'u':
			bit = FlagUnicode
		case 'y':
			bit = FlagSticky
		case 's':
			bit = FlagDotAll
		default:
			return 0, &errors.ParseError{Code: errors.ErrUnknownRegexpFlag, Line: 1, Col: i + 1}
		}
		if flags&bit != 0 {
			return 0, &errors.ParseError{Code: errors.ErrDuplicatedRegexpFlag, Line: 1, Col: i + 1}
		}
		flags |= bit
	}
	return flags, nil
}

type compiler struct {
	unicode bool
}

// lower emits the byte-code of one AST node into e. Composite nodes
// lower their children into scratch encoders first, so every forward
// offset (a delta from the end of its own offset field) is known when
// written.
func (c *compiler) lower(e *encoder, n node) {
	switch v := n.(type) {
	case *seqNode:
		for _, item := range v.items {
			c.lower(e, item)
		}
	case *charNode:
		e.op(ReOpChar)
		e.char(v.cp, c.unicode)
	case *periodNode:
		e.op(ReOpPeriod)
	case *classEscapeNode:
		e.op(v.op)
	case *assertNode:
		e.op(v.op)
	case *classNode:
		if v.negated {
			e.op(ReOpInvertedCharClass)
		} else {
			e.op(ReOpCharClass)
		}
		e.value(uint32(len(v.escapes)))
		for _, esc := range v.escapes {
			e.op(esc)
		}
		e.value(uint32(len(v.ranges)))
		for _, r := range v.ranges {
			e.char(r.lo, c.unicode)
			e.char(r.hi, c.unicode)
		}
	case *backrefNode:
		e.op(ReOpBackReference)
		e.value(uint32(v.index))
	case *groupNode:
		if v.capture > 0 {
			e.op(ReOpCaptureStart)
			e.value(uint32(v.capture))
			c.lower(e, v.body)
			e.op(ReOpCaptureEnd)
			e.value(uint32(v.capture))
		} else {
			e.op(ReOpGroupStart)
			c.lower(e, v.body)
			e.op(ReOpGroupEnd)
		}
	case *lookaheadNode:
		var body encoder
		c.lower(&body, v.body)
		body.op(ReOpLookaheadEnd)
		if v.negative {
			e.op(ReOpLookaheadNeg)
		} else {
			e.op(ReOpLookaheadPos)
		}
		e.offset(uint32(len(body.buf)))
		e.append(body.buf)
	case *quantNode:
		var body encoder
		c.lower(&body, v.body)
		body.op(ReOpIteratorEnd)
		if v.lazy {
			e.op(ReOpLazyIterator)
		} else {
			e.op(ReOpGreedyIterator)
		}
		e.value(v.min + reQuantifierOffset)
		e.value(v.max + reQuantifierOffset)
		e.offset(uint32(len(body.buf)))
		e.append(body.buf)
	case *altNode:
		// every alternative after the first is prefixed by RE_ALTERNATIVE
		// jumping past it to the next alternative; the first has no
		// prefix. Every non-final alternative ends in RE_JUMP
		// to the common join point.
		bodies := make([][]byte, len(v.alts))
		for i, alt := range v.alts {
			var b encoder
			c.lower(&b, alt)
			bodies[i] = b.buf
		}
		// Tail sizes decide each jump's span; build back to front.
		const jumpLen = 1 + 5  // RE_JUMP + wide offset
		const altHdrLen = 1 + 5 // RE_ALTERNATIVE + wide offset
		tail := 0
		tails := make([]int, len(bodies))
		for i := len(bodies) - 1; i >= 0; i-- {
			tails[i] = tail
			tail += len(bodies[i])
			if i < len(bodies)-1 {
				tail += jumpLen
			}
			if i > 0 {
				tail += altHdrLen
			}
		}
		for i, body := range bodies {
			if i > 0 {
				skip := len(body)
				if i < len(bodies)-1 {
					skip += jumpLen
				}
				e.op(ReOpAlternative)
				e.offset(uint32(skip))
			}
			e.append(body)
			if i < len(bodies)-1 {
				e.op(ReOpJump)
				e.offset(uint32(tails[i]))
			}
		}
	}
}
