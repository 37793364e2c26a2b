package snapshot

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/value"
)

// Merge combines several snapshot images into one: the output's function
// region is the concatenation of the inputs' regions (relative offsets
// inside a region survive byte-copy), function offsets are adjusted to
// their new positions, literal references are rewritten through the
// union literal table, and the union table is emitted once. It returns
// the merged size, or 0 with an error message.
func Merge(store *litstorage.Storage, inputs [][]byte, out []byte) (int, string) {
	if len(inputs) == 0 {
		return 0, "no snapshots to merge"
	}

	headers := make([]*header, len(inputs))
	var globalFlags uint32
	totalFuncs := 0
	for i, img := range inputs {
		h, exc := parseHeader(img)
		if exc != nil {
			return 0, exc.Message
		}
		headers[i] = h
		globalFlags |= h.globalFlags
		totalFuncs += len(h.funcOffsets)
	}

	// Union of every literal reachable from every input.
	union := newCollection(store)
	for i, img := range inputs {
		visitRecords(img, headers[i], func(off uint32) {
			forEachLiteralRef(img[off:], func(pos int, raw uint32) uint32 {
				if v, ok := decodeImageLiteral(store, img, headers[i], raw); ok {
					union.add(v)
				}
				return raw
			})
		})
	}
	table, resolve := union.emit()

	// Output layout.
	outHeader := &header{globalFlags: globalFlags}
	headerSize := align8(headerFixedSize + 4*totalFuncs)
	pos := headerSize
	regionBase := make([]int, len(inputs))
	for i, h := range headers {
		regionStart := align8(headerFixedSize + 4*len(h.funcOffsets))
		regionLen := int(h.litTableOffset) - regionStart
		regionBase[i] = pos
		pos = align8(pos + regionLen)
	}
	outHeader.litTableOffset = uint32(pos)
	total := pos + len(table)
	if total > len(out) {
		return 0, "Snapshot buffer too small"
	}
	if total > MaxSnapshotSize {
		return 0, "maximum snapshot size reached"
	}

	for i := range out[:total] {
		out[i] = 0
	}

	// Copy each functions region, then rewrite its literal references
	// through the union map.
	for i, img := range inputs {
		h := headers[i]
		regionStart := align8(headerFixedSize + 4*len(h.funcOffsets))
		regionLen := int(h.litTableOffset) - regionStart
		copy(out[regionBase[i]:], img[regionStart:regionStart+regionLen])

		delta := uint32(regionBase[i] - regionStart)
		for _, off := range h.funcOffsets {
			outHeader.funcOffsets = append(outHeader.funcOffsets, off+delta)
		}

		visitRecords(img, h, func(off uint32) {
			body := out[off+delta:]
			forEachLiteralRef(body, func(p int, raw uint32) uint32 {
				v, ok := decodeImageLiteral(store, img, h, raw)
				if !ok {
					return raw
				}
				return resolve(v)
			})
		})
	}

	writeHeader(out, outHeader)
	copy(out[outHeader.litTableOffset:], table)
	return total, ""
}

// visitRecords walks every compiled-code record reachable from an
// image's function offsets, following nested relative references once.
func visitRecords(image []byte, h *header, fn func(off uint32)) {
	visited := map[uint32]bool{}
	var walk func(off uint32)
	walk = func(off uint32) {
		if visited[off] || int(off)+recordHeaderSize > len(image) {
			return
		}
		visited[off] = true
		fn(off)
		body := image[off:]
		status := le.Uint16(body[recStatusFlags:])
		if bytecode.FuncKind(status&0xF) == bytecode.KindRegexp {
			return
		}
		registerEnd := le.Uint16(body[recRegisterEnd:])
		constEnd := le.Uint16(body[recConstLitEnd:])
		literalEnd := le.Uint16(body[recLiteralEnd:])
		for i := int(constEnd - registerEnd); i < int(literalEnd-registerEnd); i++ {
			rel := le.Uint32(body[recordHeaderSize+4*i:])
			if rel != 0 {
				walk(off + rel)
			}
		}
	}
	for _, off := range h.funcOffsets {
		walk(off)
	}
}

// forEachLiteralRef visits every literal-table reference of one in-image
// record (const literal slots plus tail values) and stores back whatever
// fn returns. Nested-function slots are not visited.
func forEachLiteralRef(body []byte, fn func(pos int, raw uint32) uint32) {
	status := le.Uint16(body[recStatusFlags:])
	if bytecode.FuncKind(status&0xF) == bytecode.KindRegexp {
		return
	}
	registerEnd := le.Uint16(body[recRegisterEnd:])
	argEnd := le.Uint16(body[recArgumentEnd:])
	constEnd := le.Uint16(body[recConstLitEnd:])
	literalEnd := le.Uint16(body[recLiteralEnd:])

	visit := func(pos int) {
		raw := le.Uint32(body[pos:])
		if raw == emptySlotMarker {
			return
		}
		le.PutUint32(body[pos:], fn(pos, raw))
	}

	for i := 0; i < int(constEnd-registerEnd); i++ {
		visit(recordHeaderSize + 4*i)
	}
	pos := recordHeaderSize + 4*int(literalEnd-registerEnd)
	if status&bytecode.FlagMappedArgumentsNeeded != 0 {
		for i := 0; i < int(argEnd); i++ {
			visit(pos)
			pos += 4
		}
	}
	visit(pos) // function name slot
	pos += 4
	if status&bytecode.FlagHasTaggedLiterals != 0 {
		n := int(le.Uint32(body[pos:]))
		pos += 4
		for i := 0; i < n; i++ {
			visit(pos)
			pos += 4
		}
	}
}

// decodeImageLiteral reads one tagged literal from an image's table into
// an interned value.
func decodeImageLiteral(store *litstorage.Storage, image []byte, h *header, raw uint32) (value.Value, bool) {
	if raw == emptySlotMarker {
		return value.Value{}, false
	}
	l := &loader{store: store, image: image, h: h}
	v, exc := l.decodeLiteral(raw)
	if exc != nil {
		return value.Value{}, false
	}
	return v, true
}
