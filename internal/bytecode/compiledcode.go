package bytecode

import (
	"math/big"

	"github.com/launix-de/jjsgo/internal/value"
)

// FuncKind occupies the low four bits of a compiled-code record's status
// flags.
type FuncKind uint16

const (
	KindScript FuncKind = iota
	KindNormal
	KindArrow
	KindGenerator
	KindAsync
	KindAsyncGenerator
	KindAccessor
	KindConstructor
	KindMethod
	KindStaticBlock
	KindRegexp
)

const kindMask = 0x000F

// Status flag bits above the kind nibble.
const (
	FlagHasTaggedLiterals uint16 = 1 << (iota + 4)
	FlagUint16Arguments
	FlagStrict
	FlagMappedArgumentsNeeded
	FlagLexicalBlockNeeded
	FlagUsesLineInfo
	FlagStaticSnapshot
	FlagDebuggerIgnore
	FlagHasExtendedInfo
	FlagFullLiteralEncoding
)

// LiteralSlot is one entry of a compiled-code record's literal table.
// Identifier and constant slots carry a Value; nested function and regexp
// slots carry a *CompiledCode. SelfReference marks a slot that refers to
// the enclosing record itself (recursive named function expressions), the
// case the snapshot codec encodes as the sentinel 0.
type LiteralSlot struct {
	Value         value.Value
	Code          *CompiledCode
	SelfReference bool
}

// ExtendedInfo is the optional trailing block selected by the
// has-extended-info status flag.
type ExtendedInfo struct {
	ArgumentLength uint16
	SourceStart    int
	SourceEnd      int
}

// CompiledCode is the engine's function representation: status header,
// literal table, byte-code stream, and the tail of serialisable values
// (mapped argument names, function name, tagged-template literals,
// line-info). Nested functions are owned through the literal table's
// const-literal-end..literal-end range.
type CompiledCode struct {
	StatusFlags uint16

	StackLimit      uint16
	RegisterEnd     uint16
	ArgumentEnd     uint16
	IdentEnd        uint16
	ConstLiteralEnd uint16
	LiteralEnd      uint16

	// Literals holds slots RegisterEnd..LiteralEnd; index i of the slice
	// is literal index RegisterEnd+i.
	Literals []LiteralSlot

	Code []byte

	ArgumentNames   []value.Value
	Name            value.Value
	TaggedTemplates []value.Value
	LineInfo        []byte
	ExtInfo         *ExtendedInfo

	// Regexp leaves reuse the record shape: Pattern carries the source
	// pattern text and Code the regexp byte-code. RegexpFlags survives
	// the snapshot round trip so the loader can recompile the pattern
	// with the same character width.
	Pattern     string
	RegexpFlags uint16

	Refs   uint16
	Script *Script
}

func (c *CompiledCode) Kind() FuncKind { return FuncKind(c.StatusFlags & kindMask) }

func (c *CompiledCode) SetKind(k FuncKind) {
	c.StatusFlags = c.StatusFlags&^kindMask | uint16(k)
}

func (c *CompiledCode) IsStrict() bool { return c.StatusFlags&FlagStrict != 0 }

// Literal resolves a literal index to its slot. Indices below RegisterEnd
// are registers and have no slot.
func (c *CompiledCode) Literal(index uint16) *LiteralSlot {
	if index < c.RegisterEnd || int(index-c.RegisterEnd) >= len(c.Literals) {
		return nil
	}
	return &c.Literals[index-c.RegisterEnd]
}

// Ref increments the lexical holder count.
func (c *CompiledCode) Ref() { c.Refs++ }

// Deref releases one holder; dropping the last recursively derefs every
// nested compiled-code record reachable through the const-literal-end..
// literal-end range.
func (c *CompiledCode) Deref() {
	if c.Refs == 0 {
		return
	}
	c.Refs--
	if c.Refs > 0 {
		return
	}
	for i := int(c.ConstLiteralEnd - c.RegisterEnd); i < len(c.Literals); i++ {
		if sub := c.Literals[i].Code; sub != nil && !c.Literals[i].SelfReference {
			sub.Deref()
		}
	}
	c.Literals = nil
	c.Code = nil
}

// Script owns the compiled-code tree produced from one parse.
type Script struct {
	Refs uint32

	EvalCode             bool
	HasFunctionArguments bool
	HasUserValue         bool
	HasImportMeta        bool
	Static               bool

	SourceName   string
	SourceCode   []byte
	UserValue    value.Value
	ArgumentList value.Value // for dynamically built functions
	ImportMeta   value.Value
}

func (s *Script) Ref() { s.Refs++ }

func (s *Script) Deref() {
	if s.Refs > 0 {
		s.Refs--
	}
	if s.Refs == 0 {
		s.SourceCode = nil
	}
}

// LiteralType classifies a parse-time literal pool entry.
type LiteralType uint8

const (
	LitUnused LiteralType = iota
	LitIdentifier
	LitString
	LitNumber
	LitBigInt
	LitFunction
	LitRegexp
)

// Literal pool entry status bits.
const (
	LitFlagUsed uint8 = 1 << iota
	LitFlagSourcePtr
	LitFlagAscii
	LitFlagLateInit
	LitFlagFunctionArgument
)

// PoolEntry is one parse-time literal descriptor. Until post-processing
// assigns dense indices, entries refer to source bytes (Offset/Length,
// source-ptr flag), an interned Value, or a nested compiled-code record.
type PoolEntry struct {
	Type   LiteralType
	Flags  uint8
	Length uint16

	Offset int    // into the source buffer while LitFlagSourcePtr is set
	Name   string // decoded characters when the source span cannot serve
	Value  value.Value
	Number float64
	BigInt *big.Int
	Code   *CompiledCode

	// Index is assigned by post-processing: identifiers, constants and
	// nested compiled-code each get a dense range.
	Index uint16
}

// Pool is the append-only parse-time literal pool of one function compile.
type Pool struct {
	Entries []PoolEntry
}

func (p *Pool) Append(e PoolEntry) int {
	p.Entries = append(p.Entries, e)
	return len(p.Entries) - 1
}

func (p *Pool) Len() int { return len(p.Entries) }
