package snapshot

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/value"
)

// Generate serialises a compiled-code tree into buf and returns the image
// size. Inputs other than a script-level or ordinary function record, or
// functions carrying tagged template literals, are rejected. With
// SaveStatic the records are marked static: such images forbid regexp
// leaves and tagged templates entirely.
func Generate(store *litstorage.Storage, rec *bytecode.CompiledCode, flags uint32, buf []byte) (int, *errors.Exception) {
	switch rec.Kind() {
	case bytecode.KindScript, bytecode.KindNormal:
	default:
		return 0, errors.New(errors.RangeError, "unsupported compiled code")
	}
	if rec.StatusFlags&bytecode.FlagHasTaggedLiterals != 0 {
		return 0, errors.New(errors.RangeError, "tagged template literals cannot be saved")
	}

	w := &writer{
		store:   store,
		static:  flags&SaveStatic != 0,
		offsets: map[*bytecode.CompiledCode]uint32{},
		lits:    newCollection(store),
	}

	h := &header{funcOffsets: []uint32{0}}
	headerSize := h.size()
	w.base = uint32(headerSize)

	rootOff, exc := w.copyRecord(rec)
	if exc != nil {
		return 0, exc
	}
	h.funcOffsets[0] = w.base + rootOff

	table, resolve := w.lits.emit()

	// Second pass: rewrite every value slot and tail reference through
	// the literal map.
	for r, off := range w.offsets {
		w.patchRecord(r, off, resolve)
	}

	h.globalFlags = w.globalFlags
	h.litTableOffset = w.base + uint32(align8(len(w.funcs)))

	total := int(h.litTableOffset) + len(table)
	if total > MaxSnapshotSize {
		return 0, errors.New(errors.RangeError, "maximum snapshot size reached")
	}
	if total > len(buf) {
		return 0, errors.New(errors.RangeError, "Snapshot buffer too small")
	}

	writeHeader(buf, h)
	for i := headerFixedSize + 4; i < headerSize; i++ {
		buf[i] = 0
	}
	copy(buf[headerSize:], w.funcs)
	for i := headerSize + len(w.funcs); i < int(h.litTableOffset); i++ {
		buf[i] = 0
	}
	copy(buf[h.litTableOffset:], table)
	return total, nil
}

type writer struct {
	store       *litstorage.Storage
	static      bool
	funcs       []byte // functions region, offsets relative to its start
	base        uint32 // absolute offset of the functions region
	offsets     map[*bytecode.CompiledCode]uint32
	lits        *collection
	globalFlags uint32
}

// copyRecord appends rec (depth-first with its nested records) to the
// functions region and returns its region-relative offset. Nested
// compiled-code slots are rewritten to relative offsets from the start of
// the referencing record; self references become 0.
func (w *writer) copyRecord(rec *bytecode.CompiledCode) (uint32, *errors.Exception) {
	if off, ok := w.offsets[rec]; ok {
		return off, nil
	}

	if rec.Kind() == bytecode.KindRegexp {
		return w.copyRegexp(rec)
	}
	switch rec.Kind() {
	case bytecode.KindScript, bytecode.KindNormal, bytecode.KindArrow,
		bytecode.KindGenerator, bytecode.KindAsync, bytecode.KindAsyncGenerator,
		bytecode.KindAccessor, bytecode.KindConstructor, bytecode.KindMethod,
		bytecode.KindStaticBlock:
	default:
		return 0, errors.New(errors.RangeError, "unsupported compiled code")
	}
	if w.static && rec.StatusFlags&bytecode.FlagHasTaggedLiterals != 0 {
		return 0, errors.New(errors.RangeError, "tagged template literals cannot be saved")
	}
	switch rec.Kind() {
	case bytecode.KindConstructor, bytecode.KindStaticBlock:
		w.globalFlags |= GlobalFlagHasClass
	}

	off := uint32(len(w.funcs))
	w.offsets[rec] = off

	slotCount := int(rec.LiteralEnd - rec.RegisterEnd)
	size := recordHeaderSize + 4*slotCount + w.tailSize(rec) + align8(len(rec.Code))
	size = align8(size)

	hdr := make([]byte, size)
	status := rec.StatusFlags
	if w.static {
		status |= bytecode.FlagStaticSnapshot
	}
	le.PutUint16(hdr[recStatusFlags:], status)
	le.PutUint16(hdr[recSize:], uint16(size/8))
	le.PutUint16(hdr[recRefs:], rec.Refs)
	le.PutUint16(hdr[recStackLimit:], rec.StackLimit)
	le.PutUint16(hdr[recRegisterEnd:], rec.RegisterEnd)
	le.PutUint16(hdr[recArgumentEnd:], rec.ArgumentEnd)
	le.PutUint16(hdr[recIdentEnd:], rec.IdentEnd)
	le.PutUint16(hdr[recConstLitEnd:], rec.ConstLiteralEnd)
	le.PutUint16(hdr[recLiteralEnd:], rec.LiteralEnd)
	le.PutUint32(hdr[recCodeLen:], uint32(len(rec.Code)))
	copy(hdr[recordHeaderSize+4*slotCount+w.tailSize(rec):], rec.Code)
	w.funcs = append(w.funcs, hdr...)

	// Collect literal payloads and recurse into nested records.
	for i := range rec.Literals {
		slot := &rec.Literals[i]
		idx := rec.RegisterEnd + uint16(i)
		if idx >= rec.ConstLiteralEnd {
			if slot.SelfReference || slot.Code == rec {
				continue
			}
			if slot.Code == nil {
				continue
			}
			if _, exc := w.copyRecord(slot.Code); exc != nil {
				return 0, exc
			}
			continue
		}
		w.lits.add(slot.Value)
	}
	for _, v := range rec.ArgumentNames {
		w.lits.add(v)
	}
	w.lits.add(rec.Name)
	for _, v := range rec.TaggedTemplates {
		w.lits.add(v)
	}
	return off, nil
}

func (w *writer) copyRegexp(rec *bytecode.CompiledCode) (uint32, *errors.Exception) {
	if w.static {
		return 0, errors.New(errors.RangeError, "regular expressions are not supported in static snapshots")
	}
	w.globalFlags |= GlobalFlagHasRegex

	off := uint32(len(w.funcs))
	w.offsets[rec] = off

	pattern := []byte(rec.Pattern)
	size := align8(recordHeaderSize + len(pattern))
	hdr := make([]byte, size)
	le.PutUint16(hdr[recStatusFlags:], rec.StatusFlags)
	le.PutUint16(hdr[recSize:], uint16(size/8))
	// refs is repurposed as the pattern byte length for regexp leaves
	le.PutUint16(hdr[recRefs:], uint16(len(pattern)))
	le.PutUint16(hdr[recAux:], rec.RegexpFlags)
	copy(hdr[recordHeaderSize:], pattern)
	w.funcs = append(w.funcs, hdr...)
	return off, nil
}

// tailSize computes the serialised size of the record's tail values.
func (w *writer) tailSize(rec *bytecode.CompiledCode) int {
	n := 0
	if rec.StatusFlags&bytecode.FlagMappedArgumentsNeeded != 0 {
		n += 4 * len(rec.ArgumentNames)
	}
	n += 4 // function name slot
	if rec.StatusFlags&bytecode.FlagHasTaggedLiterals != 0 {
		n += 4 + 4*len(rec.TaggedTemplates)
	}
	if rec.StatusFlags&bytecode.FlagUsesLineInfo != 0 {
		n += 4 + align2(len(rec.LineInfo))
		n = (n + 3) &^ 3
	}
	if rec.StatusFlags&bytecode.FlagHasExtendedInfo != 0 {
		n += 12
	}
	return n
}

// patchRecord rewrites the in-image literal slots and tail values of one
// already-copied record: const literals become tagged table offsets,
// nested function slots become relative record offsets.
func (w *writer) patchRecord(rec *bytecode.CompiledCode, off uint32, resolve func(value.Value) uint32) {
	if rec.Kind() == bytecode.KindRegexp {
		return
	}
	body := w.funcs[off:]
	slotCount := int(rec.LiteralEnd - rec.RegisterEnd)
	for i := 0; i < slotCount; i++ {
		idx := rec.RegisterEnd + uint16(i)
		slot := &rec.Literals[i]
		pos := recordHeaderSize + 4*i
		if idx >= rec.ConstLiteralEnd {
			var rel uint32
			if slot.SelfReference || slot.Code == rec || slot.Code == nil {
				rel = 0
			} else {
				rel = w.offsets[slot.Code] - off
			}
			le.PutUint32(body[pos:], rel)
			continue
		}
		le.PutUint32(body[pos:], resolve(slot.Value))
	}

	pos := recordHeaderSize + 4*slotCount
	if rec.StatusFlags&bytecode.FlagMappedArgumentsNeeded != 0 {
		for _, v := range rec.ArgumentNames {
			le.PutUint32(body[pos:], resolve(v))
			pos += 4
		}
	}
	if rec.Name.IsString() {
		le.PutUint32(body[pos:], resolve(rec.Name))
	} else {
		le.PutUint32(body[pos:], emptySlotMarker)
	}
	pos += 4
	if rec.StatusFlags&bytecode.FlagHasTaggedLiterals != 0 {
		le.PutUint32(body[pos:], uint32(len(rec.TaggedTemplates)))
		pos += 4
		for _, v := range rec.TaggedTemplates {
			le.PutUint32(body[pos:], resolve(v))
			pos += 4
		}
	}
	if rec.StatusFlags&bytecode.FlagUsesLineInfo != 0 {
		le.PutUint32(body[pos:], uint32(len(rec.LineInfo)))
		pos += 4
		copy(body[pos:], rec.LineInfo)
		pos += align2(len(rec.LineInfo))
		pos = (pos + 3) &^ 3
	}
	if rec.StatusFlags&bytecode.FlagHasExtendedInfo != 0 && rec.ExtInfo != nil {
		le.PutUint16(body[pos:], rec.ExtInfo.ArgumentLength)
		le.PutUint32(body[pos+4:], uint32(rec.ExtInfo.SourceStart))
		le.PutUint32(body[pos+8:], uint32(rec.ExtInfo.SourceEnd))
	}
}
