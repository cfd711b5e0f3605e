package zobject

import (
	"fmt"

	"github.com/colinmarc/zif/zcore"
)

// Property is a single decoded property-list entry.
type Property struct {
	Id                   uint8
	Length               uint8
	DataAddress          uint32 // for a synthesized default entry, the address of its default-table word
	PropertyHeaderLength uint8
	Address              uint32
}

func (o Object) propertyTableStart(mem *zcore.Memory) uint32 {
	nameLength := mem.ReadByte(uint32(o.PropertyPointer))
	return uint32(o.PropertyPointer) + 1 + uint32(nameLength)*2
}

// decodePropertyHeader reads the size byte(s) at propertyAddr and returns
// the property id, data length, and header width (1 or 2 bytes).
func decodePropertyHeader(mem *zcore.Memory, header *zcore.Header, propertyAddr uint32) (id uint8, length uint8, headerLen uint8) {
	sizeByte := mem.ReadByte(propertyAddr)

	if header.Version <= 3 {
		return sizeByte & 0b1_1111, (sizeByte >> 5) + 1, 1
	}

	if sizeByte&0b1000_0000 != 0 {
		secondByte := mem.ReadByte(propertyAddr + 1)
		length = secondByte & 0b11_1111
		if length == 0 {
			length = 64
		}
		return sizeByte & 0b11_1111, length, 2
	}

	return sizeByte & 0b11_1111, ((sizeByte >> 6) & 1) + 1, 1
}

func (o Object) propertyAt(mem *zcore.Memory, header *zcore.Header, propertyAddr uint32) Property {
	id, length, headerLen := decodePropertyHeader(mem, header, propertyAddr)
	return Property{
		Id:                   id,
		Length:               length,
		PropertyHeaderLength: headerLen,
		Address:              propertyAddr,
		DataAddress:          propertyAddr + uint32(headerLen),
	}
}

// GetProperty walks the object's property list looking for propertyId.
// Properties appear in descending id order and the list is terminated by
// a zero size byte. If propertyId isn't present, the value is synthesized
// from the object table's default property array and ok is false.
func (o Object) GetProperty(mem *zcore.Memory, header *zcore.Header, propertyId uint8) (prop Property, ok bool) {
	ptr := o.propertyTableStart(mem)

	for mem.ReadByte(ptr) != 0 {
		p := o.propertyAt(mem, header, ptr)
		if p.Id == propertyId {
			return p, true
		}
		if p.Id < propertyId {
			break // descending order: propertyId can't appear further on
		}
		ptr = p.DataAddress + uint32(p.Length)
	}

	defaultAddr := uint32(header.ObjectTableBase) + 2*uint32(propertyId-1)
	return Property{Id: propertyId, Length: 2, DataAddress: defaultAddr}, false
}

// Value reads this property's data as a big-endian value. Properties
// longer than 2 bytes only have their first word returned; callers decide
// whether that's tolerable (get_prop is forgiving about this, put_prop is
// not).
func (p Property) Value(mem *zcore.Memory) uint16 {
	if p.Length == 1 {
		return uint16(mem.ReadByte(p.DataAddress))
	}
	return mem.ReadHalfWord(p.DataAddress)
}

// SetProperty overwrites an existing property's value. The property must
// already exist on the object and have length 1 or 2 - the Z-machine
// standard requires put_prop to halt the story on any other case, so this
// returns an error rather than guessing at encoding.
func (o Object) SetProperty(mem *zcore.Memory, header *zcore.Header, propertyId uint8, value uint16) error {
	prop, ok := o.GetProperty(mem, header, propertyId)
	if !ok {
		return fmt.Errorf("put_prop: object %d has no property %d", o.Id, propertyId)
	}

	switch prop.Length {
	case 1:
		mem.WriteByte(prop.DataAddress, uint8(value))
	case 2:
		mem.WriteHalfWord(prop.DataAddress, value)
	default:
		return fmt.Errorf("put_prop: property %d on object %d has length %d, not 1 or 2", propertyId, o.Id, prop.Length)
	}
	return nil
}

// GetPropertyAddr returns the data address of propertyId on this object,
// or 0 if the object has no such property (get_prop_addr's documented
// not-present behaviour).
func (o Object) GetPropertyAddr(mem *zcore.Memory, header *zcore.Header, propertyId uint8) uint32 {
	prop, ok := o.GetProperty(mem, header, propertyId)
	if !ok {
		return 0
	}
	return prop.DataAddress
}

// PropertyLengthOf returns the length of the property whose data starts
// at addr, reading back through the size byte(s) that precede it. Per the
// Z-machine standard, address 0 returns length 0.
func PropertyLengthOf(mem *zcore.Memory, header *zcore.Header, addr uint32) uint8 {
	if addr == 0 {
		return 0
	}

	prevByte := mem.ReadByte(addr - 1)
	if header.Version <= 3 {
		return (prevByte >> 5) + 1
	}
	if prevByte&0b1000_0000 != 0 {
		length := prevByte & 0b11_1111
		if length == 0 {
			return 64
		}
		return length
	}
	return ((prevByte >> 6) & 1) + 1
}

// GetNextProperty implements get_next_prop: propertyId 0 requests the
// first property on the object (0 if it has none); otherwise it returns
// the id of the property immediately following propertyId, or 0 if
// propertyId was the last one.
func (o Object) GetNextProperty(mem *zcore.Memory, header *zcore.Header, propertyId uint8) (uint8, error) {
	ptr := o.propertyTableStart(mem)

	if propertyId == 0 {
		if mem.ReadByte(ptr) == 0 {
			return 0, nil
		}
		return o.propertyAt(mem, header, ptr).Id, nil
	}

	for mem.ReadByte(ptr) != 0 {
		p := o.propertyAt(mem, header, ptr)
		if p.Id == propertyId {
			next := p.DataAddress + uint32(p.Length)
			if mem.ReadByte(next) == 0 {
				return 0, nil
			}
			return o.propertyAt(mem, header, next).Id, nil
		}
		ptr = p.DataAddress + uint32(p.Length)
	}

	return 0, fmt.Errorf("get_next_prop: object %d has no property %d", o.Id, propertyId)
}
