package structures

import (
	"errors"
	"minidb/catalog/db_types"
	"strings"
)

var ErrNoSuchColumn = errors.New("columns does not exist")

type Column struct {
	Name string
	Type db_types.TypeID

	// Offset is the columns offset in the tuple
	Offset int
}

// TupleDesc describes the layout of tuples. Every column has a fixed width so a tuple of a given desc always has the
// same size. Column names are descriptive only, two descs are equal when their type sequences are.
type TupleDesc struct {
	columns []Column
	size    int
}

func NewTupleDesc(types []db_types.TypeID, names []string) *TupleDesc {
	cols := make([]Column, len(types))
	for i, typ := range types {
		cols[i].Type = typ
		if i < len(names) {
			cols[i].Name = names[i]
		}
	}

	return newTupleDesc(cols)
}

func newTupleDesc(cols []Column) *TupleDesc {
	// set offsets of each column
	offset := 0
	for i := 0; i < len(cols); i++ {
		cols[i].Offset = offset
		offset += db_types.GetType(cols[i].Type).Length()
	}

	return &TupleDesc{
		columns: cols,
		size:    offset,
	}
}

func (d *TupleDesc) NumFields() int {
	return len(d.columns)
}

func (d *TupleDesc) GetColumn(idx int) *Column {
	return &d.columns[idx]
}

func (d *TupleDesc) GetColumns() []Column {
	return d.columns
}

func (d *TupleDesc) FieldIndex(name string) (int, error) {
	for i, column := range d.columns {
		if column.Name == name {
			return i, nil
		}
	}

	return 0, ErrNoSuchColumn
}

// Size is the serialized size of a tuple of this desc.
func (d *TupleDesc) Size() int {
	return d.size
}

func (d *TupleDesc) Equals(other *TupleDesc) bool {
	if other == nil || len(d.columns) != len(other.columns) {
		return false
	}

	for i := range d.columns {
		if d.columns[i].Type != other.columns[i].Type {
			return false
		}
	}

	return true
}

// Merge returns a new desc having the columns of d followed by the columns of other.
func Merge(d, other *TupleDesc) *TupleDesc {
	cols := make([]Column, 0, len(d.columns)+len(other.columns))
	cols = append(cols, d.columns...)
	cols = append(cols, other.columns...)
	return newTupleDesc(cols)
}

func (d *TupleDesc) String() string {
	parts := make([]string, len(d.columns))
	for i, c := range d.columns {
		parts[i] = c.Type.String() + "(" + c.Name + ")"
	}
	return strings.Join(parts, ", ")
}
