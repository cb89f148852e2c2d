package db_types

import (
	"encoding/binary"
	"math"
)

var Float64TypeID = TypeID{
	KindID: Float64Kind,
	Size:   8,
}

type Float64Type struct {
}

func (i *Float64Type) Less(this *Value, than *Value) bool {
	return this.GetAsInterface().(float64) < than.GetAsInterface().(float64)
}

func (i *Float64Type) Serialize(dest []byte, src *Value) {
	binary.BigEndian.PutUint64(dest, math.Float64bits(src.GetAsInterface().(float64)))
}

func (i *Float64Type) Deserialize(src []byte) *Value {
	return NewValue(math.Float64frombits(binary.BigEndian.Uint64(src)))
}

func (i *Float64Type) Length() int {
	return 8
}

func (i *Float64Type) TypeId() TypeID {
	return Float64TypeID
}
