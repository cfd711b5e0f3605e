package zstring

import "github.com/colinmarc/zif/zcore"

// Encode z-char-encodes a dictionary word for lookup/comparison, per
// spec.md S4.4: input is clipped to 6 bytes (v <= 3) or 9 bytes (v >= 4) of
// ZSCII before encoding, and the resulting z-char stream is truncated or
// padded (with z-char 5) to fill exactly 2 words (v <= 3) or 3 words
// (v >= 4) - 6 or 9 z-char slots - then packed 3-per-word with the
// terminator bit set on the final word.
func Encode(word []uint8, header *zcore.Header, alphabets *Alphabets) []uint8 {
	maxInputBytes := 9
	zcharCount := 9
	if header.Version <= 3 {
		maxInputBytes = 6
		zcharCount = 6
	}

	if len(word) > maxInputBytes {
		word = word[:maxInputBytes]
	}

	var zchars []uint8
	for _, b := range word {
		zchars = append(zchars, encodeByte(b, alphabets)...)
	}

	if len(zchars) > zcharCount {
		zchars = zchars[:zcharCount]
	}
	for len(zchars) < zcharCount {
		zchars = append(zchars, 5)
	}

	return packZChars(zchars)
}

// encodeByte returns the z-char(s) that encode a single ZSCII byte: a
// direct A0 lookup, an A1-shifted lookup, an A2-shifted lookup (never for
// z-char positions 0 or 1, which are reserved for the escape/newline
// codes), or a 10-bit ZSCII escape through A2 as a last resort.
func encodeByte(b uint8, alphabets *Alphabets) []uint8 {
	if b == ' ' {
		return []uint8{0}
	}
	for ix, candidate := range alphabets.A0 {
		if candidate == b {
			return []uint8{uint8(ix) + 6}
		}
	}
	for ix, candidate := range alphabets.A1 {
		if candidate == b {
			return []uint8{4, uint8(ix) + 6}
		}
	}
	for ix, candidate := range alphabets.A2 {
		if ix >= 2 && candidate == b {
			return []uint8{5, uint8(ix) + 6}
		}
	}
	return []uint8{5, 6, b >> 5, b & 0x1F}
}

// packZChars packs z-chars three to a 16-bit word, setting the terminator
// bit on the final word. zchars must already be a multiple of 3 long.
func packZChars(zchars []uint8) []uint8 {
	out := make([]uint8, 0, len(zchars)/3*2)
	for i := 0; i < len(zchars); i += 3 {
		word := uint16(zchars[i])<<10 | uint16(zchars[i+1])<<5 | uint16(zchars[i+2])
		if i+3 >= len(zchars) {
			word |= 0x8000
		}
		out = append(out, uint8(word>>8), uint8(word))
	}
	return out
}
