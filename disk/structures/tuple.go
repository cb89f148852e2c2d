package structures

import (
	"errors"
	"fmt"
	"minidb/catalog/db_types"
	"strings"
)

var ErrSchemaMismatch = errors.New("schema column count is not equal to values' length")

// Tuple is a row of values interpreted through a TupleDesc. Rid is nil until the tuple is stored in a page.
type Tuple struct {
	desc   *TupleDesc
	values []*db_types.Value
	Rid    *Rid
}

func NewTuple(desc *TupleDesc, values ...*db_types.Value) (*Tuple, error) {
	if len(values) != desc.NumFields() {
		return nil, ErrSchemaMismatch
	}

	for i, val := range values {
		if val.GetTypeId() != desc.GetColumn(i).Type {
			return nil, fmt.Errorf("column %d expects %v got %v: %w", i, desc.GetColumn(i).Type, val.GetTypeId(), ErrSchemaMismatch)
		}
	}

	return &Tuple{
		desc:   desc,
		values: values,
	}, nil
}

func (t *Tuple) Desc() *TupleDesc {
	return t.desc
}

func (t *Tuple) GetValue(columnIdx int) *db_types.Value {
	return t.values[columnIdx]
}

func (t *Tuple) Serialize(dest []byte) {
	for i, column := range t.desc.GetColumns() {
		t.values[i].Serialize(dest[column.Offset:])
	}
}

// DeserializeTuple reads a tuple of the given desc from the beginning of src.
func DeserializeTuple(desc *TupleDesc, src []byte) *Tuple {
	values := make([]*db_types.Value, desc.NumFields())
	for i, column := range desc.GetColumns() {
		values[i] = db_types.Deserialize(column.Type, src[column.Offset:])
	}

	return &Tuple{
		desc:   desc,
		values: values,
	}
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\t")
}
