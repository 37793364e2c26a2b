// Package litstorage implements the engine-global literal storage:
// deduplicated interning of strings, numbers and bigints encountered
// while parsing or loading a snapshot. Numbers and bigints live in an
// intrusive linked list of fixed-size chunks with empty-slot reuse
// scanned for on every insert; strings go through a hashset.
package litstorage

import (
	"math/big"

	"github.com/launix-de/jjsgo/internal/value"
)

// chunkSize is the number of value slots per intrusive linked chunk.
const chunkSize = 8

type numberChunk struct {
	values [chunkSize]*float64 // nil marks an empty slot
	next   *numberChunk
}

type bigintChunk struct {
	values [chunkSize]*big.Int
	next   *bigintChunk
}

// Storage is the per-context literal intern pool. Entries live until the
// owning jcontext.Context is destroyed; callers must never free a
// returned value.Value.
type Storage struct {
	strings map[string]*stringEntry // keyed by raw bytes
	byValue map[value.Value]*stringEntry

	numberHead *numberChunk
	bigintHead *bigintChunk
}

type stringEntry struct {
	bytes   []byte
	isAscii bool
	ptr     *byte
	val     value.Value
}

func New() *Storage {
	return &Storage{
		strings: make(map[string]*stringEntry),
		byValue: make(map[value.Value]*stringEntry),
	}
}

// FindOrCreateString interns chars, transferring ownership to the pool.
// Two interned strings are equal iff pointer-equal; the parser and the
// snapshot loader rely on this for O(1) identifier comparison.
func (s *Storage) FindOrCreateString(chars []byte, isAscii bool) value.Value {
	if len(chars) <= value.MaxDirectStringLen {
		if v, ok := value.DirectString(string(chars)); ok {
			// Direct strings do not need to be freed, so they are not
			// placed in the literal cache.
			return v
		}
	}

	key := string(chars)
	if e, ok := s.strings[key]; ok {
		return e.val
	}

	buf := make([]byte, len(chars))
	copy(buf, chars)
	e := &stringEntry{bytes: buf, isAscii: isAscii}
	e.ptr = &buf[0]
	e.val = value.String(e.ptr, len(buf))
	s.strings[key] = e
	s.byValue[e.val] = e
	return e.val
}

// FindOrCreateNumericString interns the decimal digits of n through
// FindOrCreateString, so looking it up either by its digits or by the
// number itself finds the same entry. The entry is keyed by its characters
// like any other string; there is no separate key by numeric value.
func (s *Storage) FindOrCreateNumericString(n uint32) value.Value {
	digits := uint32ToDecimal(n)
	return s.FindOrCreateString([]byte(digits), true)
}

func uint32ToDecimal(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// FindOrCreateNumber interns a heap number. Direct-range integers never
// allocate; otherwise the number list is scanned linearly and only
// extended on a miss, reusing an emptied slot first.
func (s *Storage) FindOrCreateNumber(x float64) value.Value {
	if i := int32(x); float64(i) == x {
		return value.Int(i)
	}

	var empty **float64
	for c := s.numberHead; c != nil; c = c.next {
		for i := range c.values {
			if c.values[i] == nil {
				if empty == nil {
					empty = &c.values[i]
				}
				continue
			}
			if *c.values[i] == x {
				return value.Float(*c.values[i])
			}
		}
	}

	stored := x
	if empty != nil {
		*empty = &stored
		return value.Float(stored)
	}

	nc := &numberChunk{next: s.numberHead}
	nc.values[0] = &stored
	s.numberHead = nc
	return value.Float(stored)
}

// FindOrCreateBigInt interns a bigint by digit-level comparison, same
// empty-slot-reuse shape as FindOrCreateNumber.
func (s *Storage) FindOrCreateBigInt(b *big.Int) value.Value {
	if b.Sign() == 0 {
		return value.Int(0) // zero is special-cased to a direct value
	}

	var empty **big.Int
	for c := s.bigintHead; c != nil; c = c.next {
		for i := range c.values {
			if c.values[i] == nil {
				if empty == nil {
					empty = &c.values[i]
				}
				continue
			}
			if c.values[i].Cmp(b) == 0 {
				return s.bigintValue(c.values[i])
			}
		}
	}

	stored := new(big.Int).Set(b)
	if empty != nil {
		*empty = stored
		return s.bigintValue(stored)
	}

	nc := &bigintChunk{next: s.bigintHead}
	nc.values[0] = stored
	s.bigintHead = nc
	return s.bigintValue(stored)
}

// bigIntRegistry tracks the compressed-pointer-free identity used for
// snapshot/debug purposes: since Go doesn't expose arena offsets for
// *big.Int, identity is the *big.Int pointer itself, encoded through
// value.BigInt via a small side table.
var bigIntRegistry = struct {
	m   map[*big.Int]value.CompressedPointer
	rev map[value.CompressedPointer]*big.Int
	n   value.CompressedPointer
}{
	m:   make(map[*big.Int]value.CompressedPointer),
	rev: make(map[value.CompressedPointer]*big.Int),
}

func (s *Storage) bigintValue(b *big.Int) value.Value {
	cp, ok := bigIntRegistry.m[b]
	if !ok {
		bigIntRegistry.n += value.Alignment
		cp = bigIntRegistry.n
		bigIntRegistry.m[b] = cp
		bigIntRegistry.rev[cp] = b
	}
	return value.BigInt(cp)
}

// BigIntFromValue resolves an interned bigint value back to its digits;
// the snapshot writer serialises through this.
func (s *Storage) BigIntFromValue(v value.Value) *big.Int {
	if b, ok := bigIntRegistry.rev[v.CompressedPointer()]; ok {
		return b
	}
	return big.NewInt(0)
}

// LateInit is a deferred string literal: only an (offset,length) pair into
// the still-live source buffer is stored until ResolveLateInit runs in a
// final sweep before the source is discarded.
type LateInit struct {
	Offset, Length int
	IsAscii        bool
}

// ResolveLateInit copies bytes out of source for every pending late-init
// descriptor and interns them, returning the resolved values in order.
func (s *Storage) ResolveLateInit(source []byte, pending []LateInit) []value.Value {
	out := make([]value.Value, len(pending))
	for i, p := range pending {
		out[i] = s.FindOrCreateString(source[p.Offset:p.Offset+p.Length], p.IsAscii)
	}
	return out
}
