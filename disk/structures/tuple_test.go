package structures

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"minidb/catalog/db_types"
	"testing"
)

func TestTupleDesc_Offsets_And_Size(t *testing.T) {
	desc := NewTupleDesc([]db_types.TypeID{db_types.IntType(), db_types.CharType(10), db_types.IntType()}, []string{"id", "name", "age"})

	assert.Equal(t, 4+14+4, desc.Size())
	assert.Equal(t, 0, desc.GetColumn(0).Offset)
	assert.Equal(t, 4, desc.GetColumn(1).Offset)
	assert.Equal(t, 18, desc.GetColumn(2).Offset)

	idx, err := desc.FieldIndex("age")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = desc.FieldIndex("nope")
	assert.ErrorIs(t, err, ErrNoSuchColumn)
}

func TestTupleDesc_Equality_Ignores_Names(t *testing.T) {
	a := NewTupleDesc([]db_types.TypeID{db_types.IntType(), db_types.IntType()}, []string{"a", "b"})
	b := NewTupleDesc([]db_types.TypeID{db_types.IntType(), db_types.IntType()}, nil)
	c := NewTupleDesc([]db_types.TypeID{db_types.IntType(), db_types.CharType(3)}, []string{"a", "b"})

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(nil))
}

func TestTupleDesc_Merge(t *testing.T) {
	a := NewTupleDesc([]db_types.TypeID{db_types.IntType()}, []string{"a"})
	b := NewTupleDesc([]db_types.TypeID{db_types.CharType(3)}, []string{"b"})

	m := Merge(a, b)
	assert.Equal(t, 2, m.NumFields())
	assert.Equal(t, a.Size()+b.Size(), m.Size())
	assert.Equal(t, 4, m.GetColumn(1).Offset)

	// merging must not change offsets of the inputs
	assert.Equal(t, 0, b.GetColumn(0).Offset)
}

func TestTuple_Serialize_Deserialize(t *testing.T) {
	desc := NewTupleDesc([]db_types.TypeID{db_types.IntType(), db_types.CharType(10)}, []string{"id", "name"})
	tuple, err := NewTuple(desc, db_types.NewValue(int32(42)), db_types.NewCharValue("minidb", 10))
	require.NoError(t, err)

	buf := make([]byte, desc.Size())
	tuple.Serialize(buf)

	read := DeserializeTuple(desc, buf)
	assert.Equal(t, int32(42), read.GetValue(0).GetAsInterface())
	assert.Equal(t, "minidb", read.GetValue(1).GetAsInterface())
	assert.Nil(t, read.Rid)
}

func TestNewTuple_Rejects_Mismatched_Values(t *testing.T) {
	desc := NewTupleDesc([]db_types.TypeID{db_types.IntType()}, nil)

	_, err := NewTuple(desc)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = NewTuple(desc, db_types.NewValue("x"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
