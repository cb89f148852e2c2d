package wal

import (
	"bytes"
	"encoding/binary"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"minidb/common"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// memStores keeps written page images in memory.
type memStores struct {
	mu    sync.Mutex
	pages map[structures.PageID][]byte
}

func newMemStores() *memStores {
	return &memStores{pages: map[structures.PageID][]byte{}}
}

func (m *memStores) WritePage(p pages.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.ID()] = common.Clone(p.Data())
	return nil
}

func (m *memStores) get(pid structures.PageID) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[pid]
}

// testPool records discarded pages and runs flush when the log flushes it.
type testPool struct {
	sync.Mutex
	discarded []structures.PageID
	flush     func() error
}

func (p *testPool) FlushAllLocked() error {
	if p.flush == nil {
		return nil
	}
	return p.flush()
}

func (p *testPool) DiscardLocked(pid structures.PageID) {
	p.discarded = append(p.discarded, pid)
}

func openTestLog(t *testing.T, opts ...Option) (*LogManager, *memStores, string) {
	path := filepath.Join(t.TempDir(), uuid.New().String()+".log")
	stores := newMemStores()
	l, err := Open(path, stores, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, stores, path
}

func pid(pageNo int32) structures.PageID {
	return structures.NewPageID(7, pageNo)
}

func TestBegin_Twice_Fails(t *testing.T) {
	l, _, _ := openTestLog(t)

	require.NoError(t, l.Begin(1))
	assert.ErrorIs(t, l.Begin(1), ErrTxnAlreadyBegun)
	assert.Equal(t, 1, l.TotalRecords())
	assert.Equal(t, int64(8+20), l.CurrentOffset())
}

func TestFirst_Append_Starts_The_Log_Over(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.log")
	require.NoError(t, os.WriteFile(path, []byte("this is an old log that nobody recovered"), 0644))

	l, err := Open(path, newMemStores())
	require.NoError(t, err)
	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 8+20)
	assert.Equal(t, NoCheckpoint, int64(binary.BigEndian.Uint64(data)))
	assert.Equal(t, uint32(TypeBegin), binary.BigEndian.Uint32(data[8:]))
}

func TestRollback_Applies_First_Before_Image_Only(t *testing.T) {
	l, stores, _ := openTestLog(t)
	pool := &testPool{}
	l.AttachPool(pool)

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Begin(2))
	require.NoError(t, l.Update(1, image(0, 0), image(0, 1)))
	require.NoError(t, l.Update(2, image(5, 0), image(5, 9)))
	require.NoError(t, l.Update(1, image(0, 1), image(0, 2)))
	require.NoError(t, l.Update(1, image(1, 3), image(1, 4)))

	require.NoError(t, l.Rollback(1))

	assert.Equal(t, image(0, 0).Data(), stores.get(pid(0)))
	assert.Equal(t, image(1, 3).Data(), stores.get(pid(1)))
	assert.Nil(t, stores.get(pid(5)))
	assert.Equal(t, []structures.PageID{pid(0), pid(1)}, pool.discarded)
}

func TestAbort_Rolls_Back_And_Logs_Abort(t *testing.T) {
	l, stores, _ := openTestLog(t)

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Update(1, image(0, 0), image(0, 1)))
	require.NoError(t, l.Abort(1))

	assert.Equal(t, image(0, 0).Data(), stores.get(pid(0)))

	buf := bytes.Buffer{}
	require.NoError(t, l.Dump(&buf))
	assert.Contains(t, buf.String(), "ABORT")

	// aborted transaction is no longer active
	assert.NoError(t, l.Begin(1))
}

func TestRecover_Redoes_Committed_And_Undoes_Others(t *testing.T) {
	l, _, path := openTestLog(t)

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Begin(2))
	require.NoError(t, l.Update(1, image(0, 0), image(0, 1)))
	require.NoError(t, l.Update(2, image(1, 0), image(1, 5)))
	require.NoError(t, l.Update(1, image(0, 1), image(0, 2)))
	require.NoError(t, l.Update(2, image(1, 5), image(1, 6)))
	require.NoError(t, l.Commit(1))
	// transaction 2 never commits, the process dies here
	require.NoError(t, l.Close())

	stores := newMemStores()
	recovered, err := Open(path, stores)
	require.NoError(t, err)
	defer recovered.Close()

	require.NoError(t, recovered.Recover())
	assert.Equal(t, image(0, 2).Data(), stores.get(pid(0)))
	assert.Equal(t, image(1, 0).Data(), stores.get(pid(1)))
	assert.Equal(t, transaction.TxnID(2), recovered.MaxTxnID())

	// log continues after recovered records
	before := recovered.CurrentOffset()
	require.NoError(t, recovered.Begin(3))
	assert.Greater(t, recovered.CurrentOffset(), before)
}

func TestRecover_Truncates_Torn_Tail(t *testing.T) {
	l, _, path := openTestLog(t, WithCompressedImages())

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Update(1, image(0, 0), image(0, 1)))
	require.NoError(t, l.Commit(1))
	end := l.CurrentOffset()
	require.NoError(t, l.Begin(2))
	require.NoError(t, l.Update(2, image(0, 1), image(0, 2)))
	require.NoError(t, l.Close())

	// simulate a crash in the middle of the last append
	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, stat.Size()-5))

	stores := newMemStores()
	recovered, err := Open(path, stores)
	require.NoError(t, err)
	defer recovered.Close()

	require.NoError(t, recovered.Recover())
	assert.Equal(t, image(0, 1).Data(), stores.get(pid(0)))

	// begin record of 2 is kept, update is cut
	assert.Equal(t, end+20, recovered.CurrentOffset())
	stat, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, end+20, stat.Size())
}

func TestRecover_Fails_On_Corrupted_Back_Pointer(t *testing.T) {
	l, _, path := openTestLog(t)
	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Commit(1))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// back pointer of the begin record
	binary.BigEndian.PutUint64(data[8+12:], 999)
	require.NoError(t, os.WriteFile(path, data, 0644))

	recovered, err := Open(path, newMemStores())
	require.NoError(t, err)
	defer recovered.Close()

	assert.ErrorIs(t, recovered.Recover(), ErrMalformedLog)
}

func TestRecover_On_Empty_Log_Starts_New_Log(t *testing.T) {
	l, _, _ := openTestLog(t)

	require.NoError(t, l.Recover())
	cp, err := l.CheckpointOffset()
	require.NoError(t, err)
	assert.Equal(t, NoCheckpoint, cp)
	assert.Equal(t, headerSize, l.CurrentOffset())
}

func TestCheckpoint_Flushes_Pool_And_Records_Actives(t *testing.T) {
	l, _, _ := openTestLog(t)
	pool := &testPool{}
	pool.flush = func() error {
		// a flushed dirty page is logged by the pool before it is written
		return l.Update(2, image(4, 0), image(4, 1))
	}
	l.AttachPool(pool)

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Begin(2))
	require.NoError(t, l.Commit(1))
	require.NoError(t, l.Checkpoint())

	cpLoc, err := l.CheckpointOffset()
	require.NoError(t, err)

	rec, err := newLogIter(l.file, cpLoc, l.serializer).Next()
	require.NoError(t, err)
	assert.Equal(t, TypeCheckpoint, rec.T)
	assert.Equal(t, []ActiveTxn{{TxnID: 2, FirstOffset: 8 + 20}}, rec.Actives)

	buf := bytes.Buffer{}
	require.NoError(t, l.Dump(&buf))
	assert.True(t, strings.Contains(buf.String(), "UPDATE"))
}

func TestTruncate_Without_Checkpoint_Is_Noop(t *testing.T) {
	l, _, _ := openTestLog(t)
	require.NoError(t, l.Begin(1))
	before := l.CurrentOffset()

	require.NoError(t, l.Truncate())
	assert.Equal(t, before, l.CurrentOffset())
}

func TestTruncate_Keeps_Records_Of_Active_Transactions(t *testing.T) {
	l, stores, path := openTestLog(t)

	// 1 commits before the checkpoint so its records can go
	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Update(1, image(0, 0), image(0, 1)))
	require.NoError(t, l.Commit(1))

	require.NoError(t, l.Begin(2))
	require.NoError(t, l.Update(2, image(1, 0), image(1, 1)))
	require.NoError(t, l.Checkpoint())
	require.NoError(t, l.Update(2, image(1, 1), image(1, 2)))

	sizeBefore := l.CurrentOffset()
	require.NoError(t, l.Truncate())
	assert.Less(t, l.CurrentOffset(), sizeBefore)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, l.CurrentOffset(), stat.Size())

	// first record of 2 is right after the header now
	cpLoc, err := l.CheckpointOffset()
	require.NoError(t, err)
	cp, err := newLogIter(l.file, cpLoc, l.serializer).Next()
	require.NoError(t, err)
	assert.Equal(t, []ActiveTxn{{TxnID: 2, FirstOffset: headerSize}}, cp.Actives)

	// rollback still finds the records of 2
	require.NoError(t, l.Rollback(2))
	assert.Equal(t, image(1, 0).Data(), stores.get(pid(1)))

	// appending and recovering work on the rewritten file
	require.NoError(t, l.Begin(3))
	require.NoError(t, l.Update(3, image(2, 0), image(2, 7)))
	require.NoError(t, l.Commit(3))
	require.NoError(t, l.Close())

	recoveredStores := newMemStores()
	recovered, err := Open(path, recoveredStores)
	require.NoError(t, err)
	defer recovered.Close()
	require.NoError(t, recovered.Recover())

	assert.Equal(t, image(2, 7).Data(), recoveredStores.get(pid(2)))
	assert.Equal(t, image(1, 0).Data(), recoveredStores.get(pid(1)))
	assert.Nil(t, recoveredStores.get(pid(0)))
}

func TestShutdown_Takes_Checkpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shutdown.log")
	l, err := Open(path, newMemStores())
	require.NoError(t, err)

	require.NoError(t, l.Begin(1))
	require.NoError(t, l.Shutdown())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8+20), int64(binary.BigEndian.Uint64(data)))
}

func TestCheckpoint_Pointer_Encoding(t *testing.T) {
	var header [headerSize]byte

	putOffset(header[:], NoCheckpoint)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 8), header[:])
	assert.Equal(t, NoCheckpoint, int64(binary.BigEndian.Uint64(header[:])))

	putOffset(header[:], 28)
	assert.Equal(t, uint64(28), binary.BigEndian.Uint64(header[:]))
}
