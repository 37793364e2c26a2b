package snapshot

import (
	"math"
	"math/big"

	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/litstorage"
	"github.com/launix-de/jjsgo/internal/regexp"
	"github.com/launix-de/jjsgo/internal/value"
)

// ExecOptions carries the optional per-load values selected by the exec
// flag bits.
type ExecOptions struct {
	SourceName string
	UserValue  value.Value
}

// Exec loads the function at funcIndex from a snapshot image into an
// executable compiled-code record, re-interning every literal through the
// engine's literal storage and rewiring relative function references.
func Exec(store *litstorage.Storage, image []byte, funcIndex int, flags uint32, opts ExecOptions) (*bytecode.CompiledCode, *errors.Exception) {
	h, exc := parseHeader(image)
	if exc != nil {
		return nil, exc
	}
	if funcIndex < 0 || funcIndex >= len(h.funcOffsets) {
		return nil, errors.New(errors.RangeError, "function index is out of range")
	}

	off := h.funcOffsets[funcIndex]
	status := le.Uint16(image[off:])
	if status&bytecode.FlagStaticSnapshot != 0 {
		if flags&ExecAllowStatic == 0 {
			return nil, errors.New(errors.TypeError, "static snapshots are not enabled")
		}
		if flags&ExecCopyData != 0 {
			return nil, errors.New(errors.TypeError, "static snapshots cannot be copied into memory")
		}
	}

	script := &bytecode.Script{
		Refs:       1,
		Static:     status&bytecode.FlagStaticSnapshot != 0,
		SourceName: opts.SourceName,
	}
	if flags&ExecHasUserValue != 0 {
		script.HasUserValue = true
		script.UserValue = opts.UserValue
	}

	ld := &loader{
		store:   store,
		image:   image,
		h:       h,
		copy:    flags&ExecCopyData != 0,
		script:  script,
		records: map[uint32]*bytecode.CompiledCode{},
	}
	rec, exc := ld.loadRecord(off)
	if exc != nil {
		return nil, exc
	}
	if flags&ExecLoadAsFunction != 0 && rec.Kind() == bytecode.KindScript {
		rec.SetKind(bytecode.KindNormal)
	}
	return rec, nil
}

type loader struct {
	store   *litstorage.Storage
	image   []byte
	h       *header
	copy    bool
	script  *bytecode.Script
	records map[uint32]*bytecode.CompiledCode
}

// loadRecord materialises the record at the absolute image offset,
// recursively resolving nested function slots. A slot holding 0 refers
// back to the record currently being loaded.
func (l *loader) loadRecord(off uint32) (*bytecode.CompiledCode, *errors.Exception) {
	if rec, ok := l.records[off]; ok {
		rec.Ref()
		return rec, nil
	}
	if int(off)+recordHeaderSize > len(l.image) {
		return nil, errors.New(errors.TypeError, "invalid snapshot format")
	}
	body := l.image[off:]
	status := le.Uint16(body[recStatusFlags:])

	rec := &bytecode.CompiledCode{StatusFlags: status, Refs: 1, Script: l.script}
	l.records[off] = rec

	if rec.Kind() == bytecode.KindRegexp {
		patternLen := int(le.Uint16(body[recRefs:]))
		pattern := string(body[recordHeaderSize : recordHeaderSize+patternLen])
		reFlags := le.Uint16(body[recAux:])
		compiled := regexp.Compile(pattern, reFlags)
		compiled.Script = l.script
		l.records[off] = compiled
		return compiled, nil
	}

	rec.StackLimit = le.Uint16(body[recStackLimit:])
	rec.RegisterEnd = le.Uint16(body[recRegisterEnd:])
	rec.ArgumentEnd = le.Uint16(body[recArgumentEnd:])
	rec.IdentEnd = le.Uint16(body[recIdentEnd:])
	rec.ConstLiteralEnd = le.Uint16(body[recConstLitEnd:])
	rec.LiteralEnd = le.Uint16(body[recLiteralEnd:])
	codeLen := int(le.Uint32(body[recCodeLen:]))

	slotCount := int(rec.LiteralEnd - rec.RegisterEnd)
	rec.Literals = make([]bytecode.LiteralSlot, slotCount)
	for i := 0; i < slotCount; i++ {
		raw := le.Uint32(body[recordHeaderSize+4*i:])
		idx := rec.RegisterEnd + uint16(i)
		if idx >= rec.ConstLiteralEnd {
			if raw == 0 {
				rec.Literals[i].Code = rec
				rec.Literals[i].SelfReference = true
				continue
			}
			sub, exc := l.loadRecord(off + raw)
			if exc != nil {
				return nil, exc
			}
			rec.Literals[i].Code = sub
			continue
		}
		v, exc := l.decodeLiteral(raw)
		if exc != nil {
			return nil, exc
		}
		rec.Literals[i].Value = v
	}

	// tail serialisable values
	pos := recordHeaderSize + 4*slotCount
	if status&bytecode.FlagMappedArgumentsNeeded != 0 {
		for i := 0; i < int(rec.ArgumentEnd); i++ {
			v, exc := l.decodeLiteral(le.Uint32(body[pos:]))
			if exc != nil {
				return nil, exc
			}
			rec.ArgumentNames = append(rec.ArgumentNames, v)
			pos += 4
		}
	}
	if raw := le.Uint32(body[pos:]); raw != emptySlotMarker {
		v, exc := l.decodeLiteral(raw)
		if exc != nil {
			return nil, exc
		}
		rec.Name = v
	}
	pos += 4
	if status&bytecode.FlagHasTaggedLiterals != 0 {
		n := int(le.Uint32(body[pos:]))
		pos += 4
		for i := 0; i < n; i++ {
			v, exc := l.decodeLiteral(le.Uint32(body[pos:]))
			if exc != nil {
				return nil, exc
			}
			rec.TaggedTemplates = append(rec.TaggedTemplates, v)
			pos += 4
		}
	}
	if status&bytecode.FlagUsesLineInfo != 0 {
		n := int(le.Uint32(body[pos:]))
		pos += 4
		rec.LineInfo = append([]byte(nil), body[pos:pos+n]...)
		pos += align2(n)
		pos = (pos + 3) &^ 3
	}
	if status&bytecode.FlagHasExtendedInfo != 0 {
		rec.ExtInfo = &bytecode.ExtendedInfo{
			ArgumentLength: le.Uint16(body[pos:]),
			SourceStart:    int(le.Uint32(body[pos+4:])),
			SourceEnd:      int(le.Uint32(body[pos+8:])),
		}
		pos += 12
	}

	// Short byte-code streams are copied into engine memory; larger ones
	// stay in place, the record's stream aliasing the snapshot image the
	// way a trampolining loader would leave a pointer behind.
	codeStart := pos
	if l.copy || codeLen < lazyCodeThreshold {
		rec.Code = append([]byte(nil), body[codeStart:codeStart+codeLen]...)
	} else {
		rec.Code = body[codeStart : codeStart+codeLen : codeStart+codeLen]
	}
	return rec, nil
}

// decodeLiteral re-interns one tagged literal-table reference.
func (l *loader) decodeLiteral(raw uint32) (value.Value, *errors.Exception) {
	if raw == emptySlotMarker {
		return value.Undefined(), nil
	}
	off := int(l.h.litTableOffset) + int(raw>>literalOffsetShift)
	if off >= len(l.image) {
		return value.Value{}, errors.New(errors.TypeError, "invalid snapshot format")
	}
	table := l.image
	switch {
	case raw&literalNumberBit != 0:
		bits := le.Uint64(table[off:])
		return l.store.FindOrCreateNumber(math.Float64frombits(bits)), nil
	case raw&literalBigIntBit != 0:
		hdr := le.Uint32(table[off:])
		size := int(hdr & 0x7FFFFFFF)
		neg := hdr>>31 != 0
		b := new(big.Int).SetBytes(table[off+4 : off+4+size])
		if neg {
			b.Neg(b)
		}
		return l.store.FindOrCreateBigInt(b), nil
	default:
		n := int(table[off]) | int(table[off+1])<<8
		chars := table[off+2 : off+2+n]
		return l.store.FindOrCreateString(chars, isAscii(chars)), nil
	}
}

func isAscii(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
