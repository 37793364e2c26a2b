// Package regexp lowers an ECMAScript regular expression pattern plus a
// flag bitmask into a regexp byte-code record consumed by the regexp
// executor. The opcode space is disjoint from the main byte-code set.
package regexp

// Flag bits of a compiled pattern. The values match the bits the lexer
// attaches to a regexp literal token (shifted down to bit 0).
const (
	FlagGlobal uint16 = 1 << iota
	FlagIgnoreCase
	FlagMultiline
	FlagUnicode
	FlagSticky
	FlagDotAll
)

// ReOp is a regexp byte-code opcode.
type ReOp byte

const (
	ReOpEOF ReOp = iota
	ReOpChar
	ReOpPeriod
	ReOpCharClass
	ReOpInvertedCharClass
	ReOpDigit
	ReOpNotDigit
	ReOpWord
	ReOpNotWord
	ReOpWhite
	ReOpNotWhite
	ReOpAssertStart
	ReOpAssertEnd
	ReOpWordBoundary
	ReOpNotWordBoundary
	ReOpLookaheadPos
	ReOpLookaheadNeg
	ReOpLookaheadEnd
	ReOpAlternative
	ReOpJump
	ReOpCaptureStart
	ReOpCaptureEnd
	ReOpGroupStart
	ReOpGroupEnd
	ReOpGreedyIterator
	ReOpLazyIterator
	ReOpIteratorEnd
	ReOpBackReference
)

var reOpNames = map[ReOp]string{
	ReOpEOF: "RE_EOF", ReOpChar: "RE_CHAR", ReOpPeriod: "RE_PERIOD",
	ReOpCharClass: "RE_CHAR_CLASS", ReOpInvertedCharClass: "RE_INVERTED_CHAR_CLASS",
	ReOpDigit: "RE_DIGIT", ReOpNotDigit: "RE_NOT_DIGIT",
	ReOpWord: "RE_WORD", ReOpNotWord: "RE_NOT_WORD",
	ReOpWhite: "RE_WHITE", ReOpNotWhite: "RE_NOT_WHITE",
	ReOpAssertStart: "RE_ASSERT_START", ReOpAssertEnd: "RE_ASSERT_END",
	ReOpWordBoundary: "RE_WORD_BOUNDARY", ReOpNotWordBoundary: "RE_NOT_WORD_BOUNDARY",
	ReOpLookaheadPos: "RE_LOOKAHEAD_POS", ReOpLookaheadNeg: "RE_LOOKAHEAD_NEG",
	ReOpLookaheadEnd: "RE_LOOKAHEAD_END",
	ReOpAlternative:  "RE_ALTERNATIVE", ReOpJump: "RE_JUMP",
	ReOpCaptureStart: "RE_CAPTURE_START", ReOpCaptureEnd: "RE_CAPTURE_END",
	ReOpGroupStart: "RE_GROUP_START", ReOpGroupEnd: "RE_GROUP_END",
	ReOpGreedyIterator: "RE_GREEDY_ITERATOR", ReOpLazyIterator: "RE_LAZY_ITERATOR",
	ReOpIteratorEnd: "RE_ITERATOR_END", ReOpBackReference: "RE_BACKREFERENCE",
}

func (o ReOp) String() string {
	if s, ok := reOpNames[o]; ok {
		return s
	}
	return "RE_UNKNOWN"
}

const (
	// Quantifier counts are stored with this bias; a stored count whose
	// bias-subtracted value exceeds reMaxIterations means unbounded.
	reQuantifierOffset = 1
	reMaxIterations    = 0xFFFFFF
	reInfinity         = reMaxIterations + 1

	// Values up to this fit the one-byte encoding; larger values are
	// emitted as a marker byte plus 4 big-endian bytes.
	reOneByteMax      = 0xFE
	reMultiByteMarker = 0xFF
)

// encoder builds a regexp byte-code buffer with the compact value
// encoding. Forward offsets are deltas from the end of the offset field
// itself; since lowering composes bottom-up from finished child buffers,
// every offset is known when written and always uses the wide encoding so
// its width is self-describing.
type encoder struct {
	buf []byte
}

func (e *encoder) op(o ReOp) { e.buf = append(e.buf, byte(o)) }

// value appends a small-int: one byte when it fits, marker + 4 bytes
// big-endian otherwise.
func (e *encoder) value(v uint32) {
	if v <= reOneByteMax {
		e.buf = append(e.buf, byte(v))
		return
	}
	e.buf = append(e.buf, reMultiByteMarker,
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// offset appends a forward offset, always in the wide form so readers can
// skip it without decoding the pattern ahead of it.
func (e *encoder) offset(v uint32) {
	e.buf = append(e.buf, reMultiByteMarker,
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// char appends one pattern character: 2 bytes in UCS-2 mode, 4 when the
// Unicode flag widens characters to code points.
func (e *encoder) char(cp rune, unicode bool) {
	if unicode {
		e.buf = append(e.buf, byte(cp>>24), byte(cp>>16), byte(cp>>8), byte(cp))
		return
	}
	e.buf = append(e.buf, byte(cp>>8), byte(cp))
}

func (e *encoder) append(b []byte) { e.buf = append(e.buf, b...) }
