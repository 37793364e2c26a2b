package bytecode

import (
	"fmt"
	"strings"
)

// Dump renders a compiled-code record's final byte-code in the
// show-opcodes format: one instruction per line with its offset, mnemonic
// and decoded arguments. Literal arguments are printed as their dense
// index, register references as r<n>.
func Dump(c *CompiledCode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; kind=%d strict=%v stack_limit=%d registers=%d idents=[%d,%d) consts=[%d,%d) funcs=[%d,%d)\n",
		c.Kind(), c.IsStrict(), c.StackLimit, c.RegisterEnd,
		c.RegisterEnd, c.IdentEnd, c.IdentEnd, c.ConstLiteralEnd,
		c.ConstLiteralEnd, c.LiteralEnd)

	full := c.StatusFlags&FlagFullLiteralEncoding != 0
	code := c.Code
	pos := 0
	for pos < len(code) {
		start := pos
		op := Op(code[pos])
		pos++
		var info opInfo
		var name string
		var isExt bool
		var ext ExtOp
		if op == OpExtStart {
			ext = ExtOp(code[pos])
			pos++
			info = extOpTable[ext]
			name = ext.String()
			isExt = true
		} else {
			base := branchBase(op)
			info = opTable[base]
			name = op.String()
		}
		fmt.Fprintf(&sb, "%6d  %s", start, name)

		switch {
		case isExt && ext == ExtOpSetBytecodePtr:
			// trampoline: 4-byte image offset follows
			off := uint32(code[pos])<<24 | uint32(code[pos+1])<<16 |
				uint32(code[pos+2])<<8 | uint32(code[pos+3])
			pos += 4
			fmt.Fprintf(&sb, " image+%d", off)
		case info.flags&flagBranch != 0:
			n := 3
			if !isExt {
				n = int(op-branchBase(op)) + 1
			}
			delta := 0
			for i := 0; i < n; i++ {
				delta = delta<<8 | int(code[pos])
				pos++
			}
			if info.flags&flagForward != 0 {
				fmt.Fprintf(&sb, " -> %d", start+delta)
			} else {
				fmt.Fprintf(&sb, " -> %d", start-delta)
			}
		default:
			for i := 0; i < litArgCount(info.flags); i++ {
				v := uint16(code[pos])
				pos++
				if full && v&0x80 != 0 {
					v = (v&0x7F)<<8 | uint16(code[pos])
					pos++
				}
				if v < c.RegisterEnd {
					fmt.Fprintf(&sb, " r%d", v)
				} else {
					fmt.Fprintf(&sb, " lit:%d", v)
				}
			}
			if info.flags&flagByteArg != 0 {
				fmt.Fprintf(&sb, " %d", code[pos])
				pos++
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
