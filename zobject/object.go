// Package zobject implements the Z-machine's object tree: attribute
// bitfields, parent/sibling/child links, and the variable-length property
// list attached to each object.
package zobject

import (
	"github.com/colinmarc/zif/zcore"
	"github.com/colinmarc/zif/zstring"
)

// Object is a snapshot of one object table entry. Id 0 is never valid -
// it is used throughout the opcode set as a sentinel for "no object".
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Attributes      uint64 // left-justified; attribute 0 is the most significant bit
	Parent          uint16
	Sibling         uint16
	Child           uint16
	PropertyPointer uint16
}

// Get reads object id out of the object table. objId must be non-zero.
func Get(mem *zcore.Memory, header *zcore.Header, objId uint16) Object {
	entrySize := header.ObjectEntrySize()
	tableStart := uint32(header.ObjectTableBase) + uint32(header.DefaultPropertyCount())*2
	base := tableStart + uint32(objId-1)*entrySize

	if header.Version >= 4 {
		attrs := uint64(mem.ReadHalfWord(base))<<32 | uint64(mem.ReadHalfWord(base+2))<<16 | uint64(mem.ReadHalfWord(base+4))
		attrs <<= 16 // left-justify into a 64-bit field for a uniform TestAttribute

		return Object{
			BaseAddress:     base,
			Id:              objId,
			Attributes:      attrs,
			Parent:          mem.ReadHalfWord(base + 6),
			Sibling:         mem.ReadHalfWord(base + 8),
			Child:           mem.ReadHalfWord(base + 10),
			PropertyPointer: mem.ReadHalfWord(base + 12),
		}
	}

	attrs := (uint64(mem.ReadHalfWord(base))<<16 | uint64(mem.ReadByte(base+2))<<8 | uint64(mem.ReadByte(base+3))) << 32

	return Object{
		BaseAddress:     base,
		Id:              objId,
		Attributes:      attrs,
		Parent:          uint16(mem.ReadByte(base + 4)),
		Sibling:         uint16(mem.ReadByte(base + 5)),
		Child:           uint16(mem.ReadByte(base + 6)),
		PropertyPointer: mem.ReadHalfWord(base + 7),
	}
}

// Name decodes this object's short name, stored as a length-prefixed
// packed string at the start of its property table.
func (o Object) Name(mem *zcore.Memory, header *zcore.Header, alphabets *zstring.Alphabets) string {
	nameLength := mem.ReadByte(uint32(o.PropertyPointer))
	if nameLength == 0 {
		return ""
	}
	name, _ := zstring.Decode(mem, uint32(o.PropertyPointer)+1, header, alphabets)
	return name
}

// MaxAttribute is the highest valid attribute number: 31 on v1-3 (32
// attributes, numbered 0-31), 47 on v4+ (48 attributes).
func MaxAttribute(header *zcore.Header) uint16 {
	if header.Version >= 4 {
		return 47
	}
	return 31
}

// TestAttribute reports whether attribute is set.
func (o Object) TestAttribute(attribute uint16) bool {
	mask := uint64(1) << (63 - attribute)
	return o.Attributes&mask == mask
}

func attributeByteWidth(header *zcore.Header) uint32 {
	if header.Version >= 4 {
		return 6
	}
	return 4
}

func (o *Object) writeAttributes(mem *zcore.Memory, header *zcore.Header) {
	width := attributeByteWidth(header)
	shifted := o.Attributes
	for i := uint32(0); i < width; i++ {
		mem.WriteByte(o.BaseAddress+i, uint8(shifted>>56))
		shifted <<= 8
	}
}

// SetAttribute sets attribute and persists the updated bitfield to memory.
func (o *Object) SetAttribute(mem *zcore.Memory, header *zcore.Header, attribute uint16) {
	mask := uint64(1) << (63 - attribute)
	o.Attributes |= mask
	o.writeAttributes(mem, header)
}

// ClearAttribute clears attribute and persists the updated bitfield.
func (o *Object) ClearAttribute(mem *zcore.Memory, header *zcore.Header, attribute uint16) {
	mask := uint64(1) << (63 - attribute)
	o.Attributes &^= mask
	o.writeAttributes(mem, header)
}

// SetParent updates the parent link in memory and on the snapshot.
func (o *Object) SetParent(mem *zcore.Memory, header *zcore.Header, parent uint16) {
	if header.Version >= 4 {
		mem.WriteHalfWord(o.BaseAddress+6, parent)
	} else {
		mem.WriteByte(o.BaseAddress+4, uint8(parent))
	}
	o.Parent = parent
}

// SetSibling updates the sibling link in memory and on the snapshot.
func (o *Object) SetSibling(mem *zcore.Memory, header *zcore.Header, sibling uint16) {
	if header.Version >= 4 {
		mem.WriteHalfWord(o.BaseAddress+8, sibling)
	} else {
		mem.WriteByte(o.BaseAddress+5, uint8(sibling))
	}
	o.Sibling = sibling
}

// SetChild updates the child link in memory and on the snapshot.
func (o *Object) SetChild(mem *zcore.Memory, header *zcore.Header, child uint16) {
	if header.Version >= 4 {
		mem.WriteHalfWord(o.BaseAddress+10, child)
	} else {
		mem.WriteByte(o.BaseAddress+6, uint8(child))
	}
	o.Child = child
}
