// Package zstring implements the Z-machine's packed-string codec: the
// three alphabet tables, the z-char decoding state machine (abbreviations,
// alphabet shifts, 10-bit ZSCII escapes), and ZSCII<->Unicode translation.
package zstring

import "github.com/colinmarc/zif/zcore"

// Alphabets holds the three 26-entry alphabet rows used to translate
// z-chars 6-31 into ZSCII. A2's first two entries (indices 0 and 1,
// corresponding to z-char codes 6 and 7) are never consulted - those codes
// are hard-coded as "begin 10-bit escape" and "newline" respectively - but
// are still present so the table has a uniform shape with the real
// Z-machine standard's layout.
type Alphabets struct {
	A0 [26]uint8
	A1 [26]uint8
	A2 [26]uint8
}

var defaultA0 = [26]uint8{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var defaultA1 = [26]uint8{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}
var defaultA2 = [26]uint8{0, 0, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

// LoadAlphabets returns the alphabet tables in effect for this story: the
// defaults, or - on v5+ stories that set header.AlphabetTableBase - three
// 26-byte rows read from memory.
func LoadAlphabets(header *zcore.Header, mem *zcore.Memory) *Alphabets {
	alphabets := &Alphabets{A0: defaultA0, A1: defaultA1, A2: defaultA2}

	if header.Version >= 5 && header.AlphabetTableBase != 0 {
		base := uint32(header.AlphabetTableBase)
		copy(alphabets.A0[:], mem.ReadSlice(base, base+26))
		copy(alphabets.A1[:], mem.ReadSlice(base+26, base+52))
		copy(alphabets.A2[:], mem.ReadSlice(base+52, base+78))
	}

	return alphabets
}
