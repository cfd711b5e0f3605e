package zobject_test

import (
	"testing"

	"github.com/colinmarc/zif/zcore"
	"github.com/colinmarc/zif/zobject"
	"github.com/colinmarc/zif/zstring"
)

// buildV3Story lays out a minimal v3 object table at address 0x40:
// 31 default properties (62 bytes), then object entries of 9 bytes each,
// followed by a small property table for object 1.
func buildV3Story() (*zcore.Memory, *zcore.Header) {
	mem := zcore.NewMemory(make([]uint8, 1024))
	const objectTableBase = 0x40
	header := &zcore.Header{Version: 3, ObjectTableBase: objectTableBase}

	entry1 := uint32(objectTableBase) + 31*2
	propTable1 := uint32(0x200)

	// object 1: attributes 2 and 3 set, sibling 2, property table at
	// propTable1.
	mem.WriteByte(entry1, 0b0011_0000)
	mem.WriteByte(entry1+4, 0) // parent
	mem.WriteByte(entry1+5, 2) // sibling
	mem.WriteByte(entry1+6, 0) // child
	mem.WriteHalfWord(entry1+7, uint16(propTable1))

	// property table: name length 0 (no short name), property 6 (length
	// 1, value 0x85), property 2 (length 2, value 0x88e5), terminator.
	mem.WriteByte(propTable1, 0)
	p6 := propTable1 + 1
	mem.WriteByte(p6, 0x06) // (length-1)<<5 | id -> length 1, id 6
	mem.WriteByte(p6+1, 0x85)

	p2 := p6 + 2
	mem.WriteByte(p2, 0x22) // length 2, id 2
	mem.WriteHalfWord(p2+1, 0x88e5)
	mem.WriteByte(p2+3, 0) // terminator

	return mem, header
}

func TestGetObjectV3(t *testing.T) {
	mem, header := buildV3Story()

	obj := zobject.Get(mem, header, 1)
	if obj.Sibling != 2 {
		t.Errorf("Sibling = %d, want 2", obj.Sibling)
	}
	if !obj.TestAttribute(2) || !obj.TestAttribute(3) {
		t.Errorf("expected attributes 2 and 3 set")
	}
	if obj.TestAttribute(0) || obj.TestAttribute(10) {
		t.Errorf("unexpected attribute set")
	}
}

func TestSetClearAttribute(t *testing.T) {
	mem, header := buildV3Story()
	obj := zobject.Get(mem, header, 1)

	obj.SetAttribute(mem, header, 10)
	if !obj.TestAttribute(10) {
		t.Fatal("SetAttribute(10) did not take effect")
	}

	reread := zobject.Get(mem, header, 1)
	if !reread.TestAttribute(10) {
		t.Fatal("SetAttribute(10) was not persisted to memory")
	}

	obj.ClearAttribute(mem, header, 10)
	if obj.TestAttribute(10) {
		t.Fatal("ClearAttribute(10) did not take effect")
	}
}

func TestGetPropertyFound(t *testing.T) {
	mem, header := buildV3Story()
	obj := zobject.Get(mem, header, 1)

	prop, ok := obj.GetProperty(mem, header, 6)
	if !ok {
		t.Fatal("expected property 6 to be found")
	}
	if prop.Length != 1 || prop.Value(mem) != 0x85 {
		t.Errorf("property 6: length=%d value=%x, want length 1 value 0x85", prop.Length, prop.Value(mem))
	}

	prop2, ok := obj.GetProperty(mem, header, 2)
	if !ok {
		t.Fatal("expected property 2 to be found")
	}
	if prop2.Length != 2 || prop2.Value(mem) != 0x88e5 {
		t.Errorf("property 2: length=%d value=%x, want length 2 value 0x88e5", prop2.Length, prop2.Value(mem))
	}
}

func TestGetPropertyDefaultFallback(t *testing.T) {
	mem, header := buildV3Story()
	mem.WriteHalfWord(uint32(header.ObjectTableBase)+2*uint32(9-1), 0x1234) // default for prop 9

	obj := zobject.Get(mem, header, 1)
	prop, ok := obj.GetProperty(mem, header, 9)
	if ok {
		t.Fatal("property 9 should not be present on the object")
	}
	if prop.Value(mem) != 0x1234 {
		t.Errorf("default property 9 = %x, want 0x1234", prop.Value(mem))
	}
}

func TestSetPropertyRoundTrip(t *testing.T) {
	mem, header := buildV3Story()
	obj := zobject.Get(mem, header, 1)

	if err := obj.SetProperty(mem, header, 6, 0x42); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	prop, _ := obj.GetProperty(mem, header, 6)
	if prop.Value(mem) != 0x42 {
		t.Errorf("after SetProperty, value = %x, want 0x42", prop.Value(mem))
	}
}

func TestSetPropertyMissingIsError(t *testing.T) {
	mem, header := buildV3Story()
	obj := zobject.Get(mem, header, 1)

	if err := obj.SetProperty(mem, header, 200, 1); err == nil {
		t.Fatal("expected an error setting a property the object doesn't have")
	}
}

func TestGetNextProperty(t *testing.T) {
	mem, header := buildV3Story()
	obj := zobject.Get(mem, header, 1)

	first, err := obj.GetNextProperty(mem, header, 0)
	if err != nil || first != 6 {
		t.Fatalf("GetNextProperty(0) = %d, %v, want 6, nil", first, err)
	}

	second, err := obj.GetNextProperty(mem, header, 6)
	if err != nil || second != 2 {
		t.Fatalf("GetNextProperty(6) = %d, %v, want 2, nil", second, err)
	}

	last, err := obj.GetNextProperty(mem, header, 2)
	if err != nil || last != 0 {
		t.Fatalf("GetNextProperty(2) = %d, %v, want 0, nil", last, err)
	}
}

func TestObjectNameDecoding(t *testing.T) {
	mem := zcore.NewMemory(make([]uint8, 1024))
	header := &zcore.Header{Version: 3, ObjectTableBase: 0x40}
	alphabets := zstring.LoadAlphabets(header, mem)

	entry1 := uint32(0x40) + 31*2
	propTable := uint32(0x200)
	mem.WriteHalfWord(entry1+7, uint16(propTable))

	// name "hi": one word of z-chars, nameLength = 1.
	mem.WriteByte(propTable, 1)
	hi := uint16(0x8000) | uint16(13)<<10 | uint16(14)<<5 | uint16(5)
	mem.WriteHalfWord(propTable+1, hi)
	mem.WriteByte(propTable+3, 0) // terminator

	obj := zobject.Get(mem, header, 1)
	if name := obj.Name(mem, header, alphabets); name != "hi" {
		t.Errorf("Name() = %q, want %q", name, "hi")
	}
}
