package db_types

var BoolTypeID = TypeID{
	KindID: BoolKind,
	Size:   1,
}

type BoolType struct {
}

func (i *BoolType) Less(this *Value, than *Value) bool {
	return !this.GetAsInterface().(bool) && than.GetAsInterface().(bool)
}

func (i *BoolType) Serialize(dest []byte, src *Value) {
	dest[0] = 0
	if src.GetAsInterface().(bool) {
		dest[0] = 1
	}
}

func (i *BoolType) Deserialize(src []byte) *Value {
	return NewValue(src[0] != 0)
}

func (i *BoolType) Length() int {
	return 1
}

func (i *BoolType) TypeId() TypeID {
	return BoolTypeID
}
