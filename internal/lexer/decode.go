package lexer

import (
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/launix-de/jjsgo/internal/errors"
)

// DecodeString materialises the character bytes of a string or template
// token, resolving escape sequences. The scan already validated the
// escapes, so decoding cannot fail; surrogate halves from \uXXXX escapes
// are paired when adjacent and otherwise encoded CESU-8 style so the
// interned bytes round-trip through the snapshot literal table.
func DecodeString(source []byte, t Token) []byte {
	raw := t.Lexeme(source)
	if t.Type == StringLiteral {
		raw = raw[1 : len(raw)-1] // strip quotes
	} else if t.Type == TemplateLiteral {
		raw = trimTemplateDelimiters(raw, t)
	}
	if t.Flags&FlagHasEscape == 0 {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		i++
		if i >= len(raw) {
			break
		}
		e := raw[i]
		i++
		switch e {
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case 'x':
			v := hexValue(raw[i])<<4 | hexValue(raw[i+1])
			i += 2
			out = appendCodePoint(out, v)
		case 'u':
			var cp int
			cp, i = decodeUnicodeBody(raw, i)
			if cp >= 0xD800 && cp <= 0xDBFF && i+1 < len(raw) && raw[i] == '\\' && raw[i+1] == 'u' {
				low, j := decodeUnicodeBody(raw, i+2)
				if low >= 0xDC00 && low <= 0xDFFF {
					cp = 0x10000 + (cp-0xD800)<<10 + (low - 0xDC00)
					i = j
				}
			}
			out = appendCodePoint(out, cp)
		case '\r':
			if i < len(raw) && raw[i] == '\n' {
				i++
			}
		case '\n':
			// line continuation: contributes no characters
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(e - '0')
			for n := 1; n < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; n++ {
				next := v<<3 | int(raw[i]-'0')
				if next > 0xFF {
					break
				}
				v = next
				i++
			}
			out = appendCodePoint(out, v)
		case 0xE2:
			// \ followed by U+2028/U+2029 is a line continuation too
			if i+1 < len(raw) && raw[i] == 0x80 && (raw[i+1] == 0xA8 || raw[i+1] == 0xA9) {
				i += 2
			} else {
				out = append(out, e)
			}
		default:
			out = append(out, e)
		}
	}
	return out
}

func trimTemplateDelimiters(raw []byte, t Token) []byte {
	if len(raw) > 0 && raw[0] == '`' {
		raw = raw[1:]
	}
	if t.Flags&FlagTemplateHead != 0 {
		return raw[:len(raw)-2] // "${"
	}
	if len(raw) > 0 && raw[len(raw)-1] == '`' {
		raw = raw[:len(raw)-1]
	}
	return raw
}

func decodeUnicodeBody(raw []byte, i int) (int, int) {
	if raw[i] == '{' {
		i++
		cp := 0
		for raw[i] != '}' {
			cp = cp<<4 | hexValue(raw[i])
			i++
		}
		return cp, i + 1
	}
	cp := 0
	for n := 0; n < 4; n++ {
		cp = cp<<4 | hexValue(raw[i])
		i++
	}
	return cp, i
}

// appendCodePoint encodes cp as UTF-8, except lone surrogates which get
// the CESU-8 three-byte form so they survive interning byte-exactly.
func appendCodePoint(out []byte, cp int) []byte {
	if cp >= 0xD800 && cp <= 0xDFFF {
		return append(out, 0xE0|byte(cp>>12), 0x80|byte(cp>>6)&0x3F, 0x80|byte(cp)&0x3F)
	}
	var tmp [4]byte
	return append(out, tmp[:utf8.EncodeRune(tmp[:], rune(cp))]...)
}

// DecodeNumber parses a numeric literal token into its float64 value.
func DecodeNumber(source []byte, t Token) float64 {
	text := strings.ReplaceAll(string(t.Lexeme(source)), "_", "")
	if len(text) > 1 && text[0] == '0' {
		switch text[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			v, err := strconv.ParseUint(text[2:], radixOf(text[1]), 64)
			if err != nil {
				// Out of uint64 range: fall back to big-int then round.
				b, _ := new(big.Int).SetString(text[2:], radixOf(text[1]))
				f, _ := new(big.Float).SetInt(b).Float64()
				return f
			}
			return float64(v)
		default:
			if isLegacyOctal(text) {
				v, _ := strconv.ParseUint(text[1:], 8, 64)
				return float64(v)
			}
		}
	}
	f, _ := strconv.ParseFloat(text, 64)
	return f
}

// DecodeBigInt parses a bigint literal token (trailing 'n' included in the
// lexeme). The scan accepts non-integral forms (a decimal point or an
// exponent before the suffix); they fail here with ErrInvalidBigint.
func DecodeBigInt(source []byte, t Token) (*big.Int, error) {
	text := strings.ReplaceAll(string(t.Lexeme(source)), "_", "")
	text = strings.TrimSuffix(text, "n")
	radix := 10
	if len(text) > 1 && text[0] == '0' {
		switch text[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			radix = radixOf(text[1])
			text = text[2:]
		}
	}
	b, ok := new(big.Int).SetString(text, radix)
	if !ok {
		return nil, &errors.ParseError{Code: errors.ErrInvalidBigint, Line: t.Line, Col: t.Col}
	}
	return b, nil
}

func radixOf(marker byte) int {
	switch marker {
	case 'x', 'X':
		return 16
	case 'o', 'O':
		return 8
	default:
		return 2
	}
}

func isLegacyOctal(text string) bool {
	if len(text) < 2 || text[0] != '0' {
		return false
	}
	for i := 1; i < len(text); i++ {
		if text[i] < '0' || text[i] > '7' {
			return false
		}
	}
	return true
}
