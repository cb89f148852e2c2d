package db_types

import "fmt"

// TypeID identifies a field type. Size is only meaningful for sized types such as char(20).
type TypeID struct {
	KindID uint8
	Size   uint32
}

const (
	IntegerKind uint8 = 1
	CharKind    uint8 = 3
	Float64Kind uint8 = 4
	BoolKind    uint8 = 5
)

// DefaultCharSize is the width of a char column when none is given.
const DefaultCharSize = 128

// DbType is the interface that should be implemented to make a struct supported by the db. Every type has a fixed
// serialized width so that tuples of one schema always occupy the same number of bytes in a page slot.
type DbType interface {
	Less(this *Value, than *Value) bool
	Serialize(dest []byte, src *Value)
	Deserialize(src []byte) *Value

	// Length should return the size of the bytes when value is serialized
	Length() int

	TypeId() TypeID
}

func GetType(typeID TypeID) DbType {
	switch typeID.KindID {
	case IntegerKind:
		return &IntegerType{}
	case CharKind:
		return &FixedLenCharType{
			Size: typeID.Size,
		}
	case Float64Kind:
		return &Float64Type{}
	case BoolKind:
		return &BoolType{}
	default:
		panic(fmt.Sprintf("unknown type kind: %d", typeID.KindID))
	}
}

func (t TypeID) String() string {
	switch t.KindID {
	case IntegerKind:
		return "INT_TYPE"
	case CharKind:
		return fmt.Sprintf("STRING_TYPE(%d)", t.Size)
	case Float64Kind:
		return "FLOAT_TYPE"
	case BoolKind:
		return "BOOL_TYPE"
	}
	return "UNKNOWN_TYPE"
}

func IntType() TypeID {
	return IntegerTypeID
}

func CharType(size uint32) TypeID {
	return TypeID{KindID: CharKind, Size: size}
}
