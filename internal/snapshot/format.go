// Package snapshot serialises compiled-code graphs into a relocatable
// binary image and loads such images back into executable form. The
// image holds a header, a functions region of compiled-code records whose
// literal slots are rewritten to tagged literal-table offsets (or, for
// nested functions, relative record offsets), and a literal table of
// string/number/bigint payloads.
package snapshot

import (
	"encoding/binary"

	"github.com/launix-de/jjsgo/internal/errors"
)

const (
	Magic   uint32 = 0x4A4A5347 // "JJSG"
	Version uint32 = 1

	// global_flags bits; a loader must reject an image whose flags
	// contain bits it does not understand after masking its own feature
	// set.
	GlobalFlagHasRegex uint32 = 1 << 0
	GlobalFlagHasClass uint32 = 1 << 1

	supportedGlobalFlags = GlobalFlagHasRegex | GlobalFlagHasClass

	// Literal-table references inside function records: a byte offset
	// shifted past three low bits, of which the low two carry the number
	// and bigint tags. A u32 slot therefore holds a 29-bit offset, not a
	// 27-bit one.
	literalOffsetShift = 3
	literalNumberBit   = 0x1
	literalBigIntBit   = 0x2

	// emptySlotMarker fills literal slots holding no serialisable value.
	emptySlotMarker uint32 = 0xFFFFFFFF

	// headerFixedSize is the byte size of the header before func_offsets.
	headerFixedSize = 20

	// recordHeaderSize is the in-image compiled-code record header.
	recordHeaderSize = 24

	// lazyCodeThreshold: records whose byte-code is at least this large
	// are not copied at load time; their code slice aliases the image.
	lazyCodeThreshold = 256

	// MaxSnapshotSize bounds any image this build will produce or read.
	MaxSnapshotSize = 1 << 28
)

// Save flags.
const (
	SaveStatic uint32 = 1 << 0
)

// Exec flags.
const (
	ExecCopyData uint32 = 1 << iota
	ExecAllowStatic
	ExecLoadAsFunction
	ExecHasSourceName
	ExecHasUserValue
)

var le = binary.LittleEndian

type header struct {
	globalFlags    uint32
	litTableOffset uint32
	funcOffsets    []uint32
}

func (h *header) size() int {
	return align8(headerFixedSize + 4*len(h.funcOffsets))
}

func align8(n int) int { return (n + 7) &^ 7 }
func align2(n int) int { return (n + 1) &^ 1 }

func writeHeader(buf []byte, h *header) {
	le.PutUint32(buf[0:], Magic)
	le.PutUint32(buf[4:], Version)
	le.PutUint32(buf[8:], h.globalFlags)
	le.PutUint32(buf[12:], h.litTableOffset)
	le.PutUint32(buf[16:], uint32(len(h.funcOffsets)))
	for i, off := range h.funcOffsets {
		le.PutUint32(buf[headerFixedSize+4*i:], off)
	}
}

// parseHeader validates the fixed header fields against the supplied
// image size, per the external-interface contract.
func parseHeader(image []byte) (*header, *errors.Exception) {
	if len(image) < headerFixedSize {
		return nil, errors.New(errors.TypeError, "invalid snapshot format")
	}
	if le.Uint32(image[0:]) != Magic || le.Uint32(image[4:]) != Version {
		return nil, errors.New(errors.TypeError, "invalid snapshot version or features")
	}
	h := &header{
		globalFlags:    le.Uint32(image[8:]),
		litTableOffset: le.Uint32(image[12:]),
	}
	if h.globalFlags&^supportedGlobalFlags != 0 {
		return nil, errors.New(errors.TypeError, "invalid snapshot version or features")
	}
	n := le.Uint32(image[16:])
	if int(h.litTableOffset) > len(image) || n > uint32(len(image)/4) {
		return nil, errors.New(errors.TypeError, "invalid snapshot format")
	}
	if headerFixedSize+4*int(n) > len(image) {
		return nil, errors.New(errors.TypeError, "invalid snapshot format")
	}
	headerEnd := align8(headerFixedSize + 4*int(n))
	h.funcOffsets = make([]uint32, n)
	for i := range h.funcOffsets {
		off := le.Uint32(image[headerFixedSize+4*i:])
		if int(off) < headerEnd || off >= h.litTableOffset {
			return nil, errors.New(errors.TypeError, "invalid snapshot format")
		}
		h.funcOffsets[i] = off
	}
	return h, nil
}

// In-image record header field offsets (all little-endian u16).
const (
	recStatusFlags = 0
	recSize        = 2 // in 8-byte units
	recRefs        = 4
	recStackLimit  = 6
	recRegisterEnd = 8
	recArgumentEnd = 10
	recIdentEnd    = 12
	recConstLitEnd = 14
	recLiteralEnd  = 16
	recAux         = 18 // regexp flags for regexp leaves, 0 otherwise
	recCodeLen     = 20 // u32
)

// After the record header: the literal slot array ((literalEnd -
// registerEnd) u32 values), the tail serialisable values (argument names
// when mapped arguments are needed, the function name slot, tagged
// template literals, line info, extended info — presence selected by the
// status flags), then the byte-code stream, padded to 8 bytes. Regexp
// leaves instead carry their pattern bytes directly after the header,
// with refs repurposed as the pattern byte length.
