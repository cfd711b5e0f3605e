package zstring

import "github.com/colinmarc/zif/zcore"

// defaultUnicodeTable maps ZSCII codes 155-251 to Unicode code points, per
// the Z-machine standard's default translation table. A story can override
// this via the header extension table's Unicode-table pointer.
var defaultUnicodeTable = []rune{
	0xe4, 0xf6, 0xfc, 0xc4, 0xd6, 0xdc, 0xdf, 0xbb, 0xab, 0xeb, 0xef, 0xff, 0xcb, 0xcf,
	0xe1, 0xe9, 0xed, 0xf3, 0xfa, 0xfd, 0xc1, 0xc9, 0xcd, 0xd3, 0xda, 0xdd,
	0xe0, 0xe8, 0xec, 0xf2, 0xf9, 0xc0, 0xc8, 0xcc, 0xd2, 0xd9,
	0xe2, 0xea, 0xee, 0xf4, 0xfb, 0xc2, 0xca, 0xce, 0xd4, 0xdb,
	0xe5, 0xc5, 0xf8, 0xd8, 0xe3, 0xf1, 0xf5, 0xc3, 0xd1, 0xd5,
	0xe6, 0xc6, 0xe7, 0xc7, 0xfe, 0xf0, 0xde, 0xd0, 0xa3, 0x153, 0x152, 0xa1, 0xbf,
}

// customUnicodeTable reads a story-supplied translation table: a length
// byte followed by that many 16-bit Unicode code points, per spec.md S4.2.
func customUnicodeTable(mem *zcore.Memory, address uint32) []rune {
	count := mem.ReadByte(address)
	table := make([]rune, count)
	for i := uint32(0); i < uint32(count); i++ {
		table[i] = rune(mem.ReadHalfWord(address + 1 + 2*i))
	}
	return table
}

func unicodeTable(header *zcore.Header, mem *zcore.Memory) []rune {
	if header.UnicodeTableAddress != 0 {
		return customUnicodeTable(mem, uint32(header.UnicodeTableAddress))
	}
	return defaultUnicodeTable
}

// ZsciiToText renders a single ZSCII code as a Go string, applying the
// default or custom Unicode table for codes 155 and above. Codes outside
// the printable/extended range (spec.md S4.2) contribute nothing.
func ZsciiToText(code uint8, header *zcore.Header, mem *zcore.Memory) string {
	switch {
	case code == 0:
		return ""
	case code == 13:
		return "\n"
	case code >= 32 && code <= 126:
		return string(rune(code))
	case code >= 155 && code <= 251:
		table := unicodeTable(header, mem)
		ix := int(code) - 155
		if ix < len(table) {
			return string(table[ix])
		}
		return "?"
	default:
		return ""
	}
}

// TextToZscii converts a single rune typed at the keyboard into its ZSCII
// code, per spec.md S4.2: newline maps to 13, tab collapses to a space,
// printable ASCII passes through unchanged, and anything else becomes '?'
// (ZSCII 63).
func TextToZscii(r rune, header *zcore.Header, mem *zcore.Memory) uint8 {
	switch {
	case r == '\n':
		return 13
	case r == '\t':
		return 32
	case r >= 32 && r <= 126:
		return uint8(r)
	default:
		return '?'
	}
}
