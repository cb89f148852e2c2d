package disk

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"minidb/catalog/db_types"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
	"os"
	"path/filepath"
	"testing"
)

// cacheFetcher caches pages in a map and records locks without blocking, which is enough to drive a heap file from
// a single goroutine.
type cacheFetcher struct {
	file     *HeapFile
	cache    map[structures.PageID]pages.Page
	locks    map[structures.PageID]transaction.Permission
	released []structures.PageID
}

func newCacheFetcher(f *HeapFile) *cacheFetcher {
	return &cacheFetcher{
		file:  f,
		cache: map[structures.PageID]pages.Page{},
		locks: map[structures.PageID]transaction.Permission{},
	}
}

func (c *cacheFetcher) Fetch(_ transaction.TxnID, pid structures.PageID, perm transaction.Permission) (pages.Page, error) {
	if curr, ok := c.locks[pid]; !ok || curr < perm {
		c.locks[pid] = perm
	}

	if p, ok := c.cache[pid]; ok {
		return p, nil
	}
	p, err := c.file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	c.cache[pid] = p
	return p, nil
}

func (c *cacheFetcher) HoldsLock(_ transaction.TxnID, pid structures.PageID) bool {
	_, ok := c.locks[pid]
	return ok
}

func (c *cacheFetcher) UnsafeReleaseLock(_ transaction.TxnID, pid structures.PageID) {
	delete(c.locks, pid)
	c.released = append(c.released, pid)
}

func intDesc() *structures.TupleDesc {
	return structures.NewTupleDesc([]db_types.TypeID{db_types.IntType()}, []string{"a"})
}

func openTestFile(t *testing.T, pageSize int) *HeapFile {
	dir := t.TempDir()
	f, err := OpenHeapFile(filepath.Join(dir, uuid.New().String()), intDesc(), pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func intTuple(t *testing.T, v int32) *structures.Tuple {
	tuple, err := structures.NewTuple(intDesc(), db_types.NewValue(v))
	require.NoError(t, err)
	return tuple
}

func TestRead_Page_Past_End_Allocates_Empty_Page(t *testing.T) {
	f := openTestFile(t, 64)

	n, err := f.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	p, err := f.ReadPage(structures.NewPageID(f.ID(), 0))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), p.Data())

	n, err = f.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWrite_Then_Read_Page_Is_Byte_Identical(t *testing.T) {
	f := openTestFile(t, 64)
	pid := structures.NewPageID(f.ID(), 3)

	p, err := pages.NewHeapPage(pid, f.Desc(), pages.EmptyPageData(64))
	require.NoError(t, err)
	require.NoError(t, p.InsertTuple(intTuple(t, 11)))
	require.NoError(t, p.InsertTuple(intTuple(t, 12)))

	require.NoError(t, f.WritePage(p))

	read, err := f.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, p.Data(), read.Data())

	n, err := f.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRead_Page_Rejects_Other_Tables(t *testing.T) {
	f := openTestFile(t, 64)
	_, err := f.ReadPage(structures.NewPageID(f.ID()+1, 0))
	assert.ErrorIs(t, err, ErrTupleNotInFile)
}

func TestInsert_Into_Full_Single_Page_File_Appends_Page(t *testing.T) {
	// 9 byte pages hold two int tuples
	f := openTestFile(t, 9)
	fetcher := newCacheFetcher(f)
	tid := transaction.TxnID(1)

	_, err := f.ReadPage(structures.NewPageID(f.ID(), 0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tuple := intTuple(t, int32(i))
		dirtied, err := f.InsertTuple(tid, tuple, fetcher)
		require.NoError(t, err)
		require.Len(t, dirtied, 1)
		assert.Equal(t, tuple.Rid.PageID, dirtied[0].ID())
		if i < 2 {
			assert.Equal(t, int32(0), tuple.Rid.PageID.PageNo)
		} else {
			assert.Equal(t, int32(1), tuple.Rid.PageID.PageNo)
		}
	}

	n, err := f.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// page 0 was held when it filled up, so its lock is kept
	assert.Empty(t, fetcher.released)
}

func TestInsert_Releases_Locks_Of_Full_Pages_It_Did_Not_Hold(t *testing.T) {
	f := openTestFile(t, 9)
	pid := structures.NewPageID(f.ID(), 0)
	full, err := pages.NewHeapPage(pid, f.Desc(), pages.EmptyPageData(9))
	require.NoError(t, err)
	require.NoError(t, full.InsertTuple(intTuple(t, 1)))
	require.NoError(t, full.InsertTuple(intTuple(t, 2)))
	require.NoError(t, f.WritePage(full))

	fetcher := newCacheFetcher(f)
	tuple := intTuple(t, 3)
	_, err = f.InsertTuple(transaction.TxnID(1), tuple, fetcher)
	require.NoError(t, err)

	assert.Equal(t, []structures.PageID{pid}, fetcher.released)
	assert.NotContains(t, fetcher.locks, pid)
	assert.Equal(t, int32(1), tuple.Rid.PageID.PageNo)
	assert.Equal(t, transaction.ReadWrite, fetcher.locks[tuple.Rid.PageID])
}

func TestDelete_Tuple_Then_Scan(t *testing.T) {
	f := openTestFile(t, 64)
	fetcher := newCacheFetcher(f)
	tid := transaction.TxnID(1)

	inserted := make([]*structures.Tuple, 0)
	for i := 0; i < 20; i++ {
		tuple := intTuple(t, int32(i))
		_, err := f.InsertTuple(tid, tuple, fetcher)
		require.NoError(t, err)
		inserted = append(inserted, tuple)
	}

	_, err := f.DeleteTuple(tid, inserted[4], fetcher)
	require.NoError(t, err)

	_, err = f.DeleteTuple(tid, intTuple(t, 4), fetcher)
	assert.ErrorIs(t, err, ErrTupleNotInFile)

	tuples, err := f.Scan(tid, fetcher)
	require.NoError(t, err)
	assert.Len(t, tuples, 19)
	for _, tuple := range tuples {
		assert.NotEqual(t, int32(4), tuple.GetValue(0).GetAsInterface())
	}
}

func TestTable_ID_Is_Stable_For_A_Path(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "users.dat")

	a, err := TableIDFor(name)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, name)
	require.NoError(t, err)

	b, err := TableIDFor(rel)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := TableIDFor(filepath.Join(dir, "orders.dat"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestOpen_Heap_File_Rejects_Too_Small_Pages(t *testing.T) {
	_, err := OpenHeapFile(filepath.Join(t.TempDir(), "x"), intDesc(), 4)
	assert.Error(t, err)
}

func TestInsert_Checks_Pages_Under_Exclusive_Locks(t *testing.T) {
	f := openTestFile(t, 64)
	fetcher := newCacheFetcher(f)

	_, err := f.ReadPage(structures.NewPageID(f.ID(), 0))
	require.NoError(t, err)

	tuple := intTuple(t, 1)
	_, err = f.InsertTuple(transaction.TxnID(1), tuple, fetcher)
	require.NoError(t, err)

	assert.Equal(t, transaction.ReadWrite, fetcher.locks[structures.NewPageID(f.ID(), 0)])
	assert.Empty(t, fetcher.released)
}
