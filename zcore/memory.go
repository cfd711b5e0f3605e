// Package zcore holds the addressable memory image and header view shared
// by every other component of the interpreter.
package zcore

import "encoding/binary"

// MaxMemory is the largest story file the Z-machine spec allows (512 KiB,
// version 3 and earlier stories are considerably smaller than this).
const MaxMemory = 512 * 1024

// Memory is the byte-addressed heap backing a running story. It retains an
// immutable copy of the as-loaded bytes so verify and restart can recover
// the original image without re-reading the story file.
type Memory struct {
	bytes    []uint8
	pristine []uint8
}

// NewMemory takes ownership of storyFile and returns a Memory backed by it.
// A defensive copy of the original bytes is kept for verify/restart.
func NewMemory(storyFile []uint8) *Memory {
	pristine := make([]uint8, len(storyFile))
	copy(pristine, storyFile)

	return &Memory{
		bytes:    storyFile,
		pristine: pristine,
	}
}

// Len returns the size of the memory image in bytes.
func (m *Memory) Len() uint32 {
	return uint32(len(m.bytes))
}

// ReadByte reads a single byte. Addresses are not wrapped here - callers
// that need the loadb/storeb wraparound semantics use ReadByteWrapped.
func (m *Memory) ReadByte(address uint32) uint8 {
	return m.bytes[address]
}

// ReadHalfWord reads a big-endian 16 bit value.
func (m *Memory) ReadHalfWord(address uint32) uint16 {
	return binary.BigEndian.Uint16(m.bytes[address : address+2])
}

// ReadSlice returns a read view over [start, end). The returned slice
// aliases the underlying memory and must not be retained across writes
// that might reallocate (Memory never reallocates, so this is safe for the
// lifetime of the Memory itself).
func (m *Memory) ReadSlice(start, end uint32) []uint8 {
	return m.bytes[start:end]
}

// WriteByte writes a single byte. Memory has no header knowledge, so writes
// are not checked against the static memory boundary
// (Header.StaticMemoryBase) here, and the store opcodes do not check it
// either.
func (m *Memory) WriteByte(address uint32, value uint8) {
	m.bytes[address] = value
}

// WriteHalfWord writes a big-endian 16 bit value.
func (m *Memory) WriteHalfWord(address uint32, value uint16) {
	binary.BigEndian.PutUint16(m.bytes[address:address+2], value)
}

// wrap applies the mod-65536 address wraparound that loadw/loadb/storew/
// storeb deliberately apply to their effective address (spec.md S4.1).
func wrap(address uint32) uint32 {
	return address & 0xFFFF
}

// ReadByteWrapped is loadb's addressing mode: the effective address wraps
// at 16 bits before the byte is read.
func (m *Memory) ReadByteWrapped(address uint32) uint8 {
	return m.ReadByte(wrap(address))
}

// ReadHalfWordWrapped is loadw's addressing mode.
func (m *Memory) ReadHalfWordWrapped(address uint32) uint16 {
	return m.ReadHalfWord(wrap(address))
}

// WriteByteWrapped is storeb's addressing mode.
func (m *Memory) WriteByteWrapped(address uint32, value uint8) {
	m.WriteByte(wrap(address), value)
}

// WriteHalfWordWrapped is storew's addressing mode.
func (m *Memory) WriteHalfWordWrapped(address uint32, value uint16) {
	m.WriteHalfWord(wrap(address), value)
}

// Verify sums bytes [0x40, fileEnd) mod 65536 and compares it against the
// header checksum, per spec.md S4.1 and S8.
func (m *Memory) Verify(checksum uint16, fileEnd uint32) bool {
	sum := uint16(0)
	for ix := uint32(0x40); ix < fileEnd; ix++ {
		sum += uint16(m.bytes[ix])
	}
	return sum == checksum
}

// Restart reloads the writable region of memory from the pristine image,
// preserving only the transcript (flags2 bit 0) and fixed-pitch
// (flags2 bit 1) bits at their header location, per spec.md S4.1.
func (m *Memory) Restart() {
	const flags2Address = 0x11
	preserved := m.bytes[flags2Address] & 0b0000_0011

	copy(m.bytes, m.pristine)

	m.bytes[flags2Address] = (m.bytes[flags2Address] &^ 0b0000_0011) | preserved
}

// Pristine returns the as-loaded bytes for the range [start, end). Used by
// the Quetzal encoder to diff dynamic memory against the original image.
func (m *Memory) Pristine(start, end uint32) []uint8 {
	return m.pristine[start:end]
}
