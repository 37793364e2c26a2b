package snapshot

import (
	"math"
	"math/big"

	"github.com/google/btree"

	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/value"
)

// litKind discriminates literal-table records.
type litKind uint8

const (
	litString litKind = iota
	litNumber
	litBigInt
)

// litKey is one collected literal. Ordering is by kind, then payload
// size, then lexicographically — the fixed ordering that makes snapshot
// save deterministic (and keeps C dumps of the table stable).
type litKey struct {
	kind   litKind
	bytes  string // cesu8 chars / 8-byte float bits / sign+digit bytes
	offset uint32 // assigned at emit time
}

func litLess(a, b litKey) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if len(a.bytes) != len(b.bytes) {
		return len(a.bytes) < len(b.bytes)
	}
	return a.bytes < b.bytes
}

// collection gathers every string/number/bigint literal reachable from
// the compiled-code graph being saved, deduplicated and kept in emission
// order incrementally.
type collection struct {
	tree  *btree.BTreeG[litKey]
	store *litstorage.Storage
}

func newCollection(store *litstorage.Storage) *collection {
	return &collection{
		tree:  btree.NewG[litKey](8, litLess),
		store: store,
	}
}

// keyFor classifies a value slot; ok is false for values with no literal
// payload (undefined, empty, booleans).
func (c *collection) keyFor(v value.Value) (litKey, bool) {
	switch {
	case v.IsString() || v.IsSymbol():
		return litKey{kind: litString, bytes: v.StringValue()}, true
	case v.IsInt(), v.IsFloat():
		var bits [8]byte
		le.PutUint64(bits[:], math.Float64bits(v.Float()))
		return litKey{kind: litNumber, bytes: string(bits[:])}, true
	case v.Tag() == value.TagBigInt:
		return litKey{kind: litBigInt, bytes: bigintBytes(c.store.BigIntFromValue(v))}, true
	}
	return litKey{}, false
}

func bigintBytes(b *big.Int) string {
	sign := byte(0)
	if b.Sign() < 0 {
		sign = 1
	}
	return string(sign) + string(b.Bytes())
}

func (c *collection) add(v value.Value) {
	if k, ok := c.keyFor(v); ok {
		c.tree.ReplaceOrInsert(k)
	}
}

// emit lays out the literal table (2-byte aligned records) and returns
// its bytes plus a resolver from values to tagged slot encodings.
func (c *collection) emit() ([]byte, func(v value.Value) uint32) {
	offsets := map[litKey]uint32{}
	var table []byte
	c.tree.Ascend(func(k litKey) bool {
		if pad := align2(len(table)) - len(table); pad > 0 {
			table = append(table, 0)
		}
		plain := litKey{kind: k.kind, bytes: k.bytes}
		offsets[plain] = uint32(len(table))
		switch k.kind {
		case litString:
			table = append(table, byte(len(k.bytes)), byte(len(k.bytes)>>8))
			table = append(table, k.bytes...)
		case litNumber:
			table = append(table, k.bytes...)
		case litBigInt:
			sign := uint32(k.bytes[0])
			digits := k.bytes[1:]
			var hdr [4]byte
			le.PutUint32(hdr[:], sign<<31|uint32(len(digits)))
			table = append(table, hdr[:]...)
			table = append(table, digits...)
		}
		return true
	})

	resolve := func(v value.Value) uint32 {
		k, ok := c.keyFor(v)
		if !ok {
			return emptySlotMarker
		}
		off, found := offsets[litKey{kind: k.kind, bytes: k.bytes}]
		if !found {
			return emptySlotMarker
		}
		tagged := off << literalOffsetShift
		switch k.kind {
		case litNumber:
			tagged |= literalNumberBit
		case litBigInt:
			tagged |= literalBigIntBit
		}
		return tagged
	}
	return table, resolve
}
