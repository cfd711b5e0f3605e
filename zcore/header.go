package zcore

// Header offsets, per the Z-machine standard.
const (
	addrVersion             = 0x00
	addrFlags1              = 0x01
	addrReleaseNumber       = 0x02
	addrHighMemoryBase      = 0x04
	addrInitialPC           = 0x06
	addrDictionaryBase      = 0x08
	addrObjectTableBase     = 0x0a
	addrGlobalVarBase       = 0x0c
	addrStaticMemoryBase    = 0x0e
	addrFlags2              = 0x10
	addrSerialNumber        = 0x12
	addrAbbreviationsBase   = 0x18
	addrFileLength          = 0x1a
	addrChecksum            = 0x1c
	addrInterpreterNumber   = 0x1e
	addrInterpreterVersion  = 0x1f
	addrScreenHeightLines   = 0x20
	addrScreenWidthChars    = 0x21
	addrScreenWidthUnits    = 0x22
	addrScreenHeightUnits   = 0x24
	addrFontWidthUnits      = 0x26
	addrFontHeightUnits     = 0x27
	addrRoutinesOffset      = 0x28
	addrStringsOffset       = 0x2a
	addrDefaultBackground   = 0x2c
	addrDefaultForeground   = 0x2d
	addrTerminatingCharTbl  = 0x2e
	addrOutputStream3Width  = 0x30
	addrStandardRevision    = 0x32
	addrAlphabetTableBase   = 0x34
	addrHeaderExtensionBase = 0x36
)

const (
	// HeaderExtensionUnicodeTableOffset is the word offset (within the
	// header extension table) of the pointer to a custom Unicode
	// translation table.
	HeaderExtensionUnicodeTableOffset = 3
)

// Header is a typed, read-mostly view over the fixed header fields. Values
// are snapshotted at load time except where the spec requires the
// interpreter to update them (screen geometry, interpreter identity).
type Header struct {
	Version                uint8
	Flags1                 uint8
	ReleaseNumber          uint16
	HighMemoryBase         uint16
	InitialPC              uint16
	DictionaryBase         uint16
	ObjectTableBase        uint16
	GlobalVariableBase     uint16
	StaticMemoryBase       uint16
	AbbreviationsBase      uint16
	FileLengthField        uint16
	Checksum               uint16
	RoutinesOffset         uint16 // v7 only
	StringsOffset          uint16 // v7 only
	AlphabetTableBase      uint16 // v5+, 0 means use defaults
	HeaderExtensionBase    uint16
	UnicodeTableAddress    uint16 // resolved via header extension, 0 if absent
	TerminatingCharTableBase uint16
	DefaultBackgroundColor uint8
	DefaultForegroundColor uint8
	StatusLineIsTimeBased  bool
	Serial                 [6]byte
}

// LoadHeader reads the header fields out of mem and sets the
// interpreter-identity and screen-geometry fields the Z-machine spec
// expects an interpreter to populate on load.
func LoadHeader(mem *Memory) *Header {
	mem.WriteByte(addrInterpreterNumber, 6) // IBM PC - a conservative, widely supported choice
	mem.WriteByte(addrInterpreterVersion, 1)

	mem.WriteByte(addrScreenHeightLines, 25)
	mem.WriteByte(addrScreenWidthChars, 80)
	mem.WriteHalfWord(addrScreenWidthUnits, 80)
	mem.WriteHalfWord(addrScreenHeightUnits, 25)
	mem.WriteByte(addrFontWidthUnits, 1)
	mem.WriteByte(addrFontHeightUnits, 1)

	mem.WriteByte(addrStandardRevision, 1)
	mem.WriteByte(addrStandardRevision+1, 0)

	version := mem.ReadByte(addrVersion)
	if version <= 3 {
		mem.WriteByte(addrFlags1, mem.ReadByte(addrFlags1)|0b0010_0000) // split-screen available
	} else {
		// colours, bold, italic, split screen; not pictures, not fixed-width default, not timed input
		mem.WriteByte(addrFlags1, mem.ReadByte(addrFlags1)|0b0010_1101)
	}

	h := &Header{
		Version:                version,
		Flags1:                 mem.ReadByte(addrFlags1),
		ReleaseNumber:          mem.ReadHalfWord(addrReleaseNumber),
		HighMemoryBase:         mem.ReadHalfWord(addrHighMemoryBase),
		InitialPC:              mem.ReadHalfWord(addrInitialPC),
		DictionaryBase:         mem.ReadHalfWord(addrDictionaryBase),
		ObjectTableBase:        mem.ReadHalfWord(addrObjectTableBase),
		GlobalVariableBase:     mem.ReadHalfWord(addrGlobalVarBase),
		StaticMemoryBase:       mem.ReadHalfWord(addrStaticMemoryBase),
		AbbreviationsBase:      mem.ReadHalfWord(addrAbbreviationsBase),
		FileLengthField:        mem.ReadHalfWord(addrFileLength),
		Checksum:               mem.ReadHalfWord(addrChecksum),
		RoutinesOffset:         mem.ReadHalfWord(addrRoutinesOffset),
		StringsOffset:          mem.ReadHalfWord(addrStringsOffset),
		TerminatingCharTableBase: mem.ReadHalfWord(addrTerminatingCharTbl),
		HeaderExtensionBase:    mem.ReadHalfWord(addrHeaderExtensionBase),
		StatusLineIsTimeBased:  mem.ReadByte(addrFlags1)&0b0000_0010 != 0,
		Serial:                serialNumber(mem),
	}

	if version >= 5 {
		h.AlphabetTableBase = mem.ReadHalfWord(addrAlphabetTableBase)
	}

	if h.HeaderExtensionBase != 0 {
		numWords := mem.ReadHalfWord(uint32(h.HeaderExtensionBase))
		if uint16(HeaderExtensionUnicodeTableOffset) <= numWords {
			h.UnicodeTableAddress = mem.ReadHalfWord(uint32(h.HeaderExtensionBase) + 2*HeaderExtensionUnicodeTableOffset)
		}
	}

	mem.WriteByte(addrDefaultBackground, 2) // black
	mem.WriteByte(addrDefaultForeground, 9) // white
	h.DefaultBackgroundColor = 2
	h.DefaultForegroundColor = 9

	return h
}

// FileLength returns the story file's declared length in bytes, scaling
// the raw header field by the version-dependent divisor.
func (h *Header) FileLength() uint32 {
	var multiplier uint32
	switch {
	case h.Version <= 3:
		multiplier = 2
	case h.Version <= 5:
		multiplier = 4
	default:
		multiplier = 8
	}
	return uint32(h.FileLengthField) * multiplier
}

// PackedAddress expands a packed routine or string address into a byte
// address, per spec.md S4.2.
func (h *Header) PackedAddress(packed uint32, isString bool) uint32 {
	switch {
	case h.Version < 4:
		return 2 * packed
	case h.Version < 6:
		return 4 * packed
	case h.Version < 8:
		offset := h.RoutinesOffset
		if isString {
			offset = h.StringsOffset
		}
		return 4*packed + 8*uint32(offset)
	default: // v8
		return 8 * packed
	}
}

// ObjectEntrySize is the byte size of a single object's table entry.
func (h *Header) ObjectEntrySize() uint32 {
	if h.Version >= 4 {
		return 14
	}
	return 9
}

// DefaultPropertyCount is the number of u16 entries at the start of the
// object table.
func (h *Header) DefaultPropertyCount() uint16 {
	if h.Version >= 4 {
		return 63
	}
	return 31
}

// serialNumber returns the raw 6 byte serial field, used by Quetzal's IFhd
// chunk.
func serialNumber(mem *Memory) [6]byte {
	var serial [6]byte
	copy(serial[:], mem.ReadSlice(addrSerialNumber, addrSerialNumber+6))
	return serial
}
