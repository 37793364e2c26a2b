package bytecode

import (
	"github.com/launix-de/jjsgo/internal/errors"
)

const (
	// StreamPageSize is the page granularity of the emission stream. The
	// stream itself lives in one growing buffer; the page size only
	// matters to tests that pin branch behaviour across page boundaries.
	// The dump output does not annotate pages.
	StreamPageSize = 64

	// RegisterStart is the bias of register-mapped identifier indices in
	// the scope stack. A raw literal argument at or above this value
	// denotes register (raw - RegisterStart).
	RegisterStart = 0xC000

	MaxLiterals     = 0x7FFF
	MaxArguments    = 0xFFFF
	MaxStackLimit   = 0xFFFF
	MaxCodeSize     = 1 << 24
	maxBranchOffset = 1<<24 - 1

	branchMark = 0x80
)

// Branch is an unresolved forward branch: the position of its opcode byte
// and the stream size at emission. SetTarget back-patches the placeholder
// with the current-size delta.
type Branch struct {
	pos int
	ext bool
}

// Emitter accumulates one function's opcode stream. Instructions are
// appended with maximum-width branch offsets and raw 16-bit literal
// arguments; PostProcess later compresses both. A single pending opcode
// slot defers the most recent push so the next emission can fuse with it.
type Emitter struct {
	code []byte

	pendingOp   Op
	pendingLits [3]uint16
	pendingN    int // literals buffered in pendingLits
	hasPending  bool

	// pendingIncr holds a deferred POST_INCR/POST_DECR so a following
	// result-discarding pop can rewrite it in place to the PRE_ form.
	pendingIncr Op
	hasIncr     bool

	stackDepth int
	stackLimit int

	line, col int // position attributed to raised limit errors
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// SetPosition updates the source position used for limit errors.
func (e *Emitter) SetPosition(line, col int) {
	e.line = line
	e.col = col
}

// Size returns the current emitted byte-code size, pending ops included.
func (e *Emitter) Size() int {
	n := len(e.code)
	if e.hasPending {
		n += 1 + 2*e.pendingN
	}
	if e.hasIncr {
		n++
	}
	return n
}

// StackLimit reports the high-water stack depth across all emissions.
func (e *Emitter) StackLimit() uint16 {
	if e.stackLimit > MaxStackLimit {
		errors.Raise(errors.ErrStackLimitReached, e.line, e.col)
	}
	return uint16(e.stackLimit)
}

func (e *Emitter) adjustStack(n int) {
	e.stackDepth += n
	if e.stackDepth > e.stackLimit {
		e.stackLimit = e.stackDepth
	}
	if e.stackDepth < 0 {
		e.stackDepth = 0
	}
}

func (e *Emitter) checkSize() {
	if len(e.code) > MaxCodeSize {
		errors.Raise(errors.ErrOutOfMemory, e.line, e.col)
	}
}

// Flush materialises any deferred opcode. Branch emission and every
// size-observing operation must flush first so recorded positions are
// stable.
func (e *Emitter) Flush() {
	if e.hasIncr {
		e.code = append(e.code, byte(e.pendingIncr))
		e.adjustStack(int(opTable[e.pendingIncr].adjust) - stackAdjustBias)
		e.hasIncr = false
	}
	if !e.hasPending {
		return
	}
	e.code = append(e.code, byte(e.pendingOp))
	for i := 0; i < e.pendingN; i++ {
		e.code = append(e.code, byte(e.pendingLits[i]>>8), byte(e.pendingLits[i]))
	}
	e.adjustStack(int(opTable[e.pendingOp].adjust) - stackAdjustBias)
	e.hasPending = false
	e.pendingN = 0
	e.checkSize()
}

// EmitOp appends a plain opcode. A pop directly after a deferred
// POST_INCR/POST_DECR rewrites the pending opcode to its PRE_ form and
// swallows the pop, since the pushed previous value is provably unused.
func (e *Emitter) EmitOp(op Op) {
	if e.hasIncr && op == OpPop {
		if e.pendingIncr == OpPostIncr {
			e.pendingIncr = OpPreIncr
		} else {
			e.pendingIncr = OpPreDecr
		}
		e.code = append(e.code, byte(e.pendingIncr))
		e.adjustStack(int(opTable[e.pendingIncr].adjust) - stackAdjustBias)
		e.hasIncr = false
		return
	}
	e.Flush()
	if op == OpPostIncr || op == OpPostDecr {
		e.pendingIncr = op
		e.hasIncr = true
		return
	}
	e.code = append(e.code, byte(op))
	e.adjustStack(int(opTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}

// EmitLiteral appends an opcode with one literal argument. PUSH_LITERAL
// emissions are held pending and fused: two in a row become
// PUSH_TWO_LITERALS, a third becomes PUSH_THREE_LITERALS.
func (e *Emitter) EmitLiteral(op Op, index uint16) {
	if op == OpPushLiteral {
		if e.hasIncr {
			e.Flush()
		}
		if e.hasPending {
			switch e.pendingOp {
			case OpPushLiteral:
				e.pendingOp = OpPushTwoLiterals
				e.pendingLits[1] = index
				e.pendingN = 2
				return
			case OpPushTwoLiterals:
				e.pendingOp = OpPushThreeLiterals
				e.pendingLits[2] = index
				e.pendingN = 3
				return
			default:
				e.Flush()
			}
		}
		e.pendingOp = OpPushLiteral
		e.pendingLits[0] = index
		e.pendingN = 1
		e.hasPending = true
		return
	}
	e.Flush()
	e.code = append(e.code, byte(op), byte(index>>8), byte(index))
	e.adjustStack(int(opTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}

// EmitTwoLiterals appends an opcode carrying two literal arguments.
func (e *Emitter) EmitTwoLiterals(op Op, a, b uint16) {
	e.Flush()
	e.code = append(e.code, byte(op), byte(a>>8), byte(a), byte(b>>8), byte(b))
	e.adjustStack(int(opTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}

// EmitByte appends an opcode with a one-byte immediate. For opcodes whose
// byte argument also pops that many stack slots (calls, array appends)
// the stack effect includes the popped count.
func (e *Emitter) EmitByte(op Op, arg byte) {
	e.Flush()
	e.code = append(e.code, byte(op), arg)
	n := int(opTable[op].adjust) - stackAdjustBias
	if opTable[op].flags&flagPopStackByteArg != 0 {
		n -= int(arg)
	}
	e.adjustStack(n)
	e.checkSize()
}

// EmitExt appends a prefix-extended opcode.
func (e *Emitter) EmitExt(op ExtOp) {
	e.Flush()
	e.code = append(e.code, byte(OpExtStart), byte(op))
	e.adjustStack(int(extOpTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}

// EmitExtLiteral appends an extended opcode with one literal argument.
func (e *Emitter) EmitExtLiteral(op ExtOp, index uint16) {
	e.Flush()
	e.code = append(e.code, byte(OpExtStart), byte(op), byte(index>>8), byte(index))
	e.adjustStack(int(extOpTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}

// EmitExtByte appends an extended opcode with a one-byte immediate.
func (e *Emitter) EmitExtByte(op ExtOp, arg byte) {
	e.Flush()
	e.code = append(e.code, byte(OpExtStart), byte(op), arg)
	n := int(extOpTable[op].adjust) - stackAdjustBias
	if extOpTable[op].flags&flagPopStackByteArg != 0 {
		n -= int(arg)
	}
	e.adjustStack(n)
	e.checkSize()
}

// EmitForwardBranch appends a forward branch with a maximum-width offset
// placeholder; SetTarget resolves it. The opcode byte is marked with the
// high bit so post-processing can find every branch without a side table.
func (e *Emitter) EmitForwardBranch(op Op) *Branch {
	e.Flush()
	b := &Branch{pos: len(e.code)}
	e.code = append(e.code, byte(op)|branchMark, 0, 0, 0)
	e.adjustStack(int(opTable[op].adjust) - stackAdjustBias)
	e.checkSize()
	return b
}

// EmitExtForwardBranch appends an extended forward branch (context
// creation opcodes). Extended branches always keep the full offset width;
// only basic branches participate in shortening.
func (e *Emitter) EmitExtForwardBranch(op ExtOp) *Branch {
	e.Flush()
	b := &Branch{pos: len(e.code), ext: true}
	e.code = append(e.code, byte(OpExtStart)|branchMark, byte(op), 0, 0, 0)
	e.adjustStack(int(extOpTable[op].adjust) - stackAdjustBias)
	e.checkSize()
	return b
}

// SetTarget resolves a forward branch to the current position. The delta
// is measured from the branch opcode byte and written big-endian into the
// placeholder.
func (e *Emitter) SetTarget(b *Branch) {
	e.Flush()
	delta := len(e.code) - b.pos
	if delta > maxBranchOffset {
		errors.Raise(errors.ErrStackLimitReached, e.line, e.col)
	}
	argPos := b.pos + 1
	if b.ext {
		argPos++
	}
	e.code[argPos] = byte(delta >> 16)
	e.code[argPos+1] = byte(delta >> 8)
	e.code[argPos+2] = byte(delta)
}

// Position returns a label for a backward branch target: the current
// stream offset after flushing.
func (e *Emitter) Position() int {
	e.Flush()
	return len(e.code)
}

// EmitBackwardBranch appends a backward branch whose delta (measured from
// the branch opcode byte back to target) is already known.
func (e *Emitter) EmitBackwardBranch(op Op, target int) {
	e.Flush()
	delta := len(e.code) - target
	if delta < 0 || delta > maxBranchOffset {
		errors.Raise(errors.ErrStackLimitReached, e.line, e.col)
	}
	e.code = append(e.code, byte(op)|branchMark,
		byte(delta>>16), byte(delta>>8), byte(delta))
	e.adjustStack(int(opTable[op].adjust) - stackAdjustBias)
	e.checkSize()
}
