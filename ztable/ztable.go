// Package ztable implements the table-manipulation opcodes: scan_table,
// copy_table, and print_table.
package ztable

import (
	"strings"

	"github.com/colinmarc/zif/zcore"
)

// PrintTable writes a rectangular block of text to a string, with skip
// extra bytes of row stride beyond width. Used by print_table.
func PrintTable(mem *zcore.Memory, baddr uint32, width uint16, height uint16, skip uint16) string {
	var s strings.Builder

	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}
		for col := uint16(0); col < width; col++ {
			addr := baddr + uint32(row)*uint32(uint32(width)+uint32(skip)) + uint32(col)
			s.WriteByte(mem.ReadByte(addr))
		}
	}

	return s.String()
}

// ScanTable searches a table of length entries, each fieldSize bytes wide
// (or a 16-bit word when the high bit of form is set), for test. Returns
// the address of the first matching entry, or 0 if none match.
func ScanTable(mem *zcore.Memory, test uint16, baddr uint32, length uint16, form uint16) uint32 {
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0
	}

	ptr := baddr
	for i := uint16(0); i < length; i++ {
		if checkWord {
			if mem.ReadHalfWord(ptr) == test {
				return ptr
			}
		} else if uint16(mem.ReadByte(ptr)) == test {
			return ptr
		}
		ptr += uint32(fieldSize)
	}

	return 0
}

// CopyTable copies size bytes from first to second. A negative size
// permits the regions to overlap, copying byte by byte in address order
// (as if first and second were the same buffer); a positive size copies
// through a temporary buffer so an overlapping destination never observes
// partially-copied source data. second == 0 zero-fills the first table
// instead of copying.
func CopyTable(mem *zcore.Memory, first uint32, second uint32, size int16) {
	sizeAbs := uint32(size)
	if size < 0 {
		sizeAbs = uint32(-int32(size))
	}

	switch {
	case second == 0:
		for i := uint32(0); i < sizeAbs; i++ {
			mem.WriteByte(first+i, 0)
		}

	case size >= 0:
		tmp := append([]uint8(nil), mem.ReadSlice(first, first+sizeAbs)...)
		copy(mem.ReadSlice(second, second+sizeAbs), tmp)

	default:
		for i := uint32(0); i < sizeAbs; i++ {
			mem.WriteByte(second+i, mem.ReadByte(first+i))
		}
	}
}
