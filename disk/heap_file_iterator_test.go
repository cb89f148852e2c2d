package disk

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"minidb/disk/structures"
	"minidb/transaction"
	"testing"
)

func TestHeap_File_Iterator_Skips_Empty_Slots_And_Pages(t *testing.T) {
	// two slots per page
	f := openTestFile(t, 9)
	fetcher := newCacheFetcher(f)
	tid := transaction.TxnID(1)

	inserted := make([]*structures.Tuple, 0)
	for i := 0; i < 6; i++ {
		tuple := intTuple(t, int32(i))
		_, err := f.InsertTuple(tid, tuple, fetcher)
		require.NoError(t, err)
		inserted = append(inserted, tuple)
	}

	// page 1 becomes empty, page 0 keeps its second slot
	for _, i := range []int{0, 2, 3} {
		_, err := f.DeleteTuple(tid, inserted[i], fetcher)
		require.NoError(t, err)
	}

	it := NewHeapFileIterator(f, tid, fetcher)
	got := make([]int32, 0)
	for {
		tuple, err := it.Next()
		require.NoError(t, err)
		if tuple == nil {
			break
		}
		require.NotNil(t, tuple.Rid)
		got = append(got, tuple.GetValue(0).GetAsInterface().(int32))
	}
	assert.Equal(t, []int32{1, 4, 5}, got)

	it.Rewind()
	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.GetValue(0).GetAsInterface())
}

func TestHeap_File_Iterator_On_Empty_File(t *testing.T) {
	f := openTestFile(t, 64)

	tuple, err := NewHeapFileIterator(f, 1, newCacheFetcher(f)).Next()
	require.NoError(t, err)
	assert.Nil(t, tuple)
}
