package snapshot

import (
	"math"
	"math/big"

	"github.com/launix-de/jjsgo/internal/errors"
)

// LiteralInfo is one decoded literal-table record, produced by the
// diagnostic extractors.
type LiteralInfo struct {
	Kind   litKind
	String string
	Number float64
	BigInt *big.Int
	Offset uint32
}

func (li LiteralInfo) IsString() bool { return li.Kind == litString }
func (li LiteralInfo) IsNumber() bool { return li.Kind == litNumber }
func (li LiteralInfo) IsBigInt() bool { return li.Kind == litBigInt }

// ExtractLiterals walks an image's literal table without loading any
// code, returning every record in table order.
func ExtractLiterals(image []byte) ([]LiteralInfo, error) {
	h, exc := parseHeader(image)
	if exc != nil {
		return nil, exc
	}

	// Tagged references inside the function records tell us each
	// record's type; the table itself does not carry type bytes. Collect
	// the set of referenced offsets first.
	kinds := map[uint32]litKind{}
	visitRecords(image, h, func(off uint32) {
		forEachLiteralRef(image[off:], func(pos int, raw uint32) uint32 {
			k := litString
			if raw&literalNumberBit != 0 {
				k = litNumber
			} else if raw&literalBigIntBit != 0 {
				k = litBigInt
			}
			kinds[raw>>literalOffsetShift] = k
			return raw
		})
	})

	var out []LiteralInfo
	table := image[h.litTableOffset:]
	for off, kind := range kinds {
		if int(off) >= len(table) {
			return nil, errors.New(errors.TypeError, "invalid snapshot format")
		}
		li := LiteralInfo{Kind: kind, Offset: off}
		switch kind {
		case litString:
			n := int(table[off]) | int(table[off+1])<<8
			li.String = string(table[off+2 : off+2+uint32(n)])
		case litNumber:
			li.Number = math.Float64frombits(le.Uint64(table[off:]))
		case litBigInt:
			hdr := le.Uint32(table[off:])
			size := hdr & 0x7FFFFFFF
			li.BigInt = new(big.Int).SetBytes(table[off+4 : off+4+size])
			if hdr>>31 != 0 {
				li.BigInt.Neg(li.BigInt)
			}
		}
		out = append(out, li)
	}
	sortLiteralInfos(out)
	return out, nil
}

// ExtractStringLiterals returns only the string records, in table order.
func ExtractStringLiterals(image []byte) ([]string, error) {
	all, err := ExtractLiterals(image)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, li := range all {
		if li.IsString() {
			out = append(out, li.String)
		}
	}
	return out, nil
}

func sortLiteralInfos(a []LiteralInfo) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j].Offset < a[j-1].Offset; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}
