// Package dictionary parses a story's dictionary table and resolves
// encoded words to their dictionary entry address.
package dictionary

import (
	"bytes"

	"github.com/colinmarc/zif/zcore"
	"github.com/colinmarc/zif/zstring"
)

// Entry is one parsed dictionary word.
type Entry struct {
	Address     uint32
	EncodedWord []uint8
	DecodedWord string
	Data        []uint8
}

// Dictionary is a parsed dictionary table: the separator set used by the
// tokenizer plus every word entry it holds.
type Dictionary struct {
	Separators  []uint8
	EntryLength uint8
	// Count is the raw (possibly negative) entry count from the header.
	// A negative count means the entries are not stored in sort order and
	// a linear scan - which Find always performs - is mandatory rather
	// than an optimization.
	Count   int16
	Entries []Entry
}

// Parse reads the dictionary table at header.DictionaryBase.
func Parse(mem *zcore.Memory, header *zcore.Header, alphabets *zstring.Alphabets) *Dictionary {
	return ParseAt(mem, header, alphabets, uint32(header.DictionaryBase))
}

// ParseAt reads a dictionary table at an explicit address rather than the
// header's own dictionary base - tokenise's optional third operand lets a
// story supply an alternate dictionary (e.g. a parser's "verb dictionary")
// to tokenize against instead of the main game dictionary.
func ParseAt(mem *zcore.Memory, header *zcore.Header, alphabets *zstring.Alphabets, base uint32) *Dictionary {
	numSeparators := mem.ReadByte(base)
	separators := append([]uint8(nil), mem.ReadSlice(base+1, base+1+uint32(numSeparators))...)

	entryLength := mem.ReadByte(base + 1 + uint32(numSeparators))
	count := int16(mem.ReadHalfWord(base + 2 + uint32(numSeparators)))

	entryTableStart := base + 4 + uint32(numSeparators)

	encodedWordLength := uint32(4)
	if header.Version > 3 {
		encodedWordLength = 6
	}

	absCount := int(count)
	if absCount < 0 {
		absCount = -absCount
	}

	entries := make([]Entry, absCount)
	ptr := entryTableStart
	for ix := 0; ix < absCount; ix++ {
		decoded, _ := zstring.Decode(mem, ptr, header, alphabets)
		entries[ix] = Entry{
			Address:     ptr,
			EncodedWord: append([]uint8(nil), mem.ReadSlice(ptr, ptr+encodedWordLength)...),
			DecodedWord: decoded,
			Data:        mem.ReadSlice(ptr+encodedWordLength, ptr+uint32(entryLength)),
		}
		ptr += uint32(entryLength)
	}

	return &Dictionary{
		Separators:  separators,
		EntryLength: entryLength,
		Count:       count,
		Entries:     entries,
	}
}

// Find returns the dictionary address of the entry whose encoded z-chars
// match encodedWord, or 0 if no such word is in the dictionary.
func (d *Dictionary) Find(encodedWord []uint8) uint32 {
	for _, entry := range d.Entries {
		if bytes.Equal(entry.EncodedWord, encodedWord) {
			return entry.Address
		}
	}
	return 0
}

// IsSeparator reports whether b is one of the dictionary's word-separator
// characters (used by the tokenizer to split a text buffer into words).
func (d *Dictionary) IsSeparator(b uint8) bool {
	for _, sep := range d.Separators {
		if sep == b {
			return true
		}
	}
	return false
}
