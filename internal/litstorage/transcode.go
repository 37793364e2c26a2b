package litstorage

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// NormalizeSource converts a host-supplied source buffer into the UTF-8
// form the lexer consumes. UTF-16 buffers are recognised by their byte
// order mark and transcoded; UTF-8 input (BOM or not) passes through
// untouched, since the lexer treats a leading UTF-8 BOM as whitespace.
func NormalizeSource(src []byte) ([]byte, error) {
	if len(src) < 2 {
		return src, nil
	}
	isUTF16 := (src[0] == 0xFF && src[1] == 0xFE) || (src[0] == 0xFE && src[1] == 0xFF)
	if !isUTF16 {
		return src, nil
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(src)
	if err != nil {
		return nil, err
	}
	return bytes.TrimPrefix(out, []byte{0xEF, 0xBB, 0xBF}), nil
}
