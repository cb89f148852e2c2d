package db_types

import "fmt"

type Value struct {
	typeID TypeID
	value  interface{}
}

func (v *Value) Less(than *Value) bool {
	return GetType(v.GetTypeId()).Less(v, than)
}

func (v *Value) Equals(other *Value) bool {
	if other == nil {
		return false
	}
	return v.typeID == other.typeID && v.value == other.value
}

func (v *Value) GetTypeId() TypeID {
	return v.typeID
}

func (v *Value) Serialize(dest []byte) {
	GetType(v.GetTypeId()).Serialize(dest, v)
}

func (v *Value) Size() int {
	return GetType(v.GetTypeId()).Length()
}

func Deserialize(typeID TypeID, src []byte) *Value {
	return GetType(typeID).Deserialize(src)
}

func (v *Value) GetAsInterface() interface{} {
	return v.value
}

func (v *Value) String() string {
	return fmt.Sprint(v.value)
}

// NewValue wraps a go value. Strings become char values of DefaultCharSize, use NewCharValue for other widths.
func NewValue(src interface{}) *Value {
	var typeID TypeID
	switch src.(type) {
	case int32:
		typeID = IntegerTypeID
	case string:
		typeID = CharType(DefaultCharSize)
	case float64:
		typeID = Float64TypeID
	case bool:
		typeID = BoolTypeID
	default:
		panic(fmt.Sprintf("not supported type: %T", src))
	}

	return &Value{
		typeID: typeID,
		value:  src,
	}
}

func NewCharValue(s string, size uint32) *Value {
	return &Value{
		typeID: CharType(size),
		value:  s,
	}
}
