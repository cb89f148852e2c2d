package db_types

import (
	"encoding/binary"
)

// FixedLenCharType is serialized as a 4 byte length followed by Size bytes. Strings longer than Size are truncated
// and shorter ones are zero padded.
type FixedLenCharType struct {
	Size uint32
}

func (c *FixedLenCharType) Less(this *Value, than *Value) bool {
	return this.GetAsInterface().(string) < than.GetAsInterface().(string)
}

func (c *FixedLenCharType) Serialize(dest []byte, src *Value) {
	str := src.GetAsInterface().(string)
	if uint32(len(str)) > c.Size {
		str = str[:c.Size]
	}

	binary.BigEndian.PutUint32(dest, uint32(len(str)))
	n := copy(dest[4:], str)
	for i := 4 + n; i < c.Length(); i++ {
		dest[i] = 0
	}
}

func (c *FixedLenCharType) Deserialize(src []byte) *Value {
	l := binary.BigEndian.Uint32(src)
	if l > c.Size {
		l = c.Size
	}
	return NewCharValue(string(src[4:4+l]), c.Size)
}

func (c *FixedLenCharType) Length() int {
	return 4 + int(c.Size)
}

func (c *FixedLenCharType) TypeId() TypeID {
	return CharType(c.Size)
}
