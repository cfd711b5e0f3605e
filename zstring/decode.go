package zstring

import "github.com/colinmarc/zif/zcore"

type alphabet int

const (
	a0 alphabet = iota
	a1
	a2
)

// Decode reads a packed string starting at address and returns the decoded
// text plus the number of bytes consumed (a multiple of 2, including the
// terminating word). Abbreviations are expanded recursively; a recursive
// call passes allowAbbreviations=false since abbreviation strings may not
// themselves reference abbreviations.
func Decode(mem *zcore.Memory, address uint32, header *zcore.Header, alphabets *Alphabets) (string, uint32) {
	return decode(mem, address, header, alphabets, true)
}

func decode(mem *zcore.Memory, address uint32, header *zcore.Header, alphabets *Alphabets, allowAbbreviations bool) (string, uint32) {
	zchars := make([]uint8, 0, 9)
	bytesRead := uint32(0)
	ptr := address

	for {
		word := mem.ReadHalfWord(ptr)
		ptr += 2
		bytesRead += 2

		zchars = append(zchars, uint8((word>>10)&0x1F), uint8((word>>5)&0x1F), uint8(word&0x1F))

		if word&0x8000 != 0 {
			break
		}
	}

	var out []byte
	current := a0
	abbrevShift := uint8(0)
	escapeHigh := int8(-1)

	for i := 0; i < len(zchars); i++ {
		c := zchars[i]

		if escapeHigh >= 0 {
			code := uint8(escapeHigh)<<5 | c
			out = append(out, []byte(ZsciiToText(code, header, mem))...)
			escapeHigh = -1
			current = a0
			continue
		}

		if abbrevShift != 0 {
			if allowAbbreviations {
				bank := abbrevShift - 1
				abbrevIndex := 32*uint16(bank) + uint16(c)
				addr := uint32(header.AbbreviationsBase) + 2*uint32(abbrevIndex)
				strAddr := uint32(mem.ReadHalfWord(addr)) * 2
				str, _ := decode(mem, strAddr, header, alphabets, false)
				out = append(out, []byte(str)...)
			}
			abbrevShift = 0
			current = a0
			continue
		}

		switch c {
		case 0:
			out = append(out, ' ')
			current = a0
		case 1, 2, 3:
			abbrevShift = c
			current = a0
		case 4:
			current = a1
		case 5:
			current = a2
		default:
			if current == a2 && c == 6 {
				// The next two z-chars supply the high and low 5 bits of a
				// 10-bit ZSCII code; escapeHigh stashes the high half until
				// the low half arrives on the next iteration.
				i++
				if i < len(zchars) {
					escapeHigh = int8(zchars[i])
				}
				current = a0
			} else if current == a2 && c == 7 {
				out = append(out, '\n')
				current = a0
			} else {
				var row *[26]uint8
				switch current {
				case a0:
					row = &alphabets.A0
				case a1:
					row = &alphabets.A1
				default:
					row = &alphabets.A2
				}
				out = append(out, row[c-6])
				current = a0
			}
		}
	}

	return string(out), bytesRead
}
