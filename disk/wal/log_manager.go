package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
	"os"
	"sort"
	"sync"
)

const (
	// NoCheckpoint is stored at offset 0 of the log until the first checkpoint is taken.
	NoCheckpoint int64 = -1

	// headerSize is the size of the checkpoint pointer at the beginning of the log; the first record starts here.
	headerSize int64 = 8
)

var ErrTxnAlreadyBegun = errors.New("transaction is already in the log")

// PagePool is the part of the buffer pool the log needs. The log takes the pool lock before its own lock whenever
// it needs both, and calls the Locked methods while holding it.
type PagePool interface {
	sync.Locker

	// FlushAllLocked writes every dirty page, logging an update record for each before it is written.
	FlushAllLocked() error

	// DiscardLocked drops a page from the pool without writing it.
	DiscardLocked(pid structures.PageID)
}

// PageStores writes page images to the file of the table they belong to.
type PageStores interface {
	WritePage(p pages.Page) error
}

type Option func(*LogManager)

// WithCompressedImages makes update records carry snappy compressed page images.
func WithCompressedImages() Option {
	return func(l *LogManager) {
		l.serializer = NewLogRecordSerializer(true)
	}
}

// LogManager is the write ahead log. It stores begin, commit and abort records of transactions and before and after
// images of every page written to disk, which is enough to undo uncommitted and redo committed transactions after a
// crash. The log starts with a pointer to the last checkpoint record.
type LogManager struct {
	mu sync.Mutex

	file *os.File
	path string
	w    *bufio.Writer

	serializer *LogRecordSerializer
	stores     PageStores
	pool       PagePool

	currentOffset int64
	totalRecords  int

	// firsts keeps the offset of the first record of every running transaction.
	firsts map[transaction.TxnID]int64

	// recoveryUndecided is true until either Recover is called or something is appended. Appending first means the
	// old content is not needed and the log is started over.
	recoveryUndecided bool

	maxTxnID transaction.TxnID
}

func Open(path string, stores PageStores, opts ...Option) (*LogManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	stats, err := f.Stat()
	if err != nil {
		return nil, err
	}

	l := &LogManager{
		file:              f,
		path:              path,
		serializer:        NewLogRecordSerializer(false),
		stores:            stores,
		pool:              &noopPool{},
		currentOffset:     stats.Size(),
		firsts:            map[transaction.TxnID]int64{},
		recoveryUndecided: true,
	}
	for _, opt := range opts {
		opt(l)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	l.w = bufio.NewWriter(f)

	log.Printf("log %s is opened, size is %d\n", path, stats.Size())
	return l, nil
}

// AttachPool sets the buffer pool whose pages are flushed at checkpoints and discarded at rollbacks.
func (l *LogManager) AttachPool(pool PagePool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pool = pool
}

// preAppend starts the log over if nothing was appended since it was opened and Recover was not called.
func (l *LogManager) preAppend() error {
	if !l.recoveryUndecided {
		return nil
	}
	l.recoveryUndecided = false

	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	l.w.Reset(l.file)

	var header [headerSize]byte
	putOffset(header[:], NoCheckpoint)
	if _, err := l.w.Write(header[:]); err != nil {
		return err
	}

	l.currentOffset = headerSize
	l.totalRecords = 0
	return nil
}

func (l *LogManager) append(r *LogRecord) error {
	if err := l.preAppend(); err != nil {
		return err
	}

	r.Offset = l.currentOffset
	data := l.serializer.Serialize(r)
	n, err := l.w.Write(data)
	if err != nil {
		return err
	}

	l.currentOffset += int64(n)
	l.totalRecords++
	if r.TxnID != transaction.CheckpointTxnID && r.TxnID > l.maxTxnID {
		l.maxTxnID = r.TxnID
	}
	return nil
}

func (l *LogManager) Begin(tid transaction.TxnID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.firsts[tid]; ok {
		return fmt.Errorf("%w: %v", ErrTxnAlreadyBegun, tid)
	}

	r := NewBeginLogRecord(tid)
	if err := l.append(r); err != nil {
		return err
	}

	l.firsts[tid] = r.Offset
	return nil
}

// Commit appends a commit record and returns after it is on disk.
func (l *LogManager) Commit(tid transaction.TxnID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.append(NewCommitLogRecord(tid)); err != nil {
		return err
	}

	delete(l.firsts, tid)
	return l.force()
}

// Abort writes before images of every page tid logged back to their files, then appends an abort record and forces
// it. Aborted pages are discarded from the buffer pool.
func (l *LogManager) Abort(tid transaction.TxnID) error {
	l.pool.Lock()
	defer l.pool.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rollback(tid); err != nil {
		return err
	}

	if err := l.append(NewAbortLogRecord(tid)); err != nil {
		return err
	}

	delete(l.firsts, tid)
	return l.force()
}

// Update appends the images of a page that is about to be written to disk. A transaction that was not begun is
// considered to start with this record.
func (l *LogManager) Update(tid transaction.TxnID, before, after pages.Page) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := NewUpdateLogRecord(tid, before, after)
	if err := l.append(r); err != nil {
		return err
	}

	if _, ok := l.firsts[tid]; !ok {
		l.firsts[tid] = r.Offset
	}
	return nil
}

// Force makes everything appended so far durable.
func (l *LogManager) Force() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.force()
}

func (l *LogManager) force() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Checkpoint flushes every dirty page of the buffer pool and appends a record of running transactions, which lets
// Truncate know where the log is still needed.
func (l *LogManager) Checkpoint() error {
	l.pool.Lock()
	defer l.pool.Unlock()

	l.mu.Lock()
	err := l.preAppend()
	if err == nil {
		err = l.force()
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	// pool writes update records for the pages it flushes, so log lock can not be held here
	if err := l.pool.FlushAllLocked(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	actives := make([]ActiveTxn, 0, len(l.firsts))
	for tid, first := range l.firsts {
		actives = append(actives, ActiveTxn{TxnID: tid, FirstOffset: first})
	}
	sort.Slice(actives, func(i, j int) bool { return actives[i].TxnID < actives[j].TxnID })

	r := NewCheckpointLogRecord(actives)
	if err := l.append(r); err != nil {
		return err
	}
	if err := l.force(); err != nil {
		return err
	}

	if err := l.writeCheckpointPointer(r.Offset); err != nil {
		return err
	}

	log.Printf("checkpoint is taken at %d with %d active transactions\n", r.Offset, len(actives))
	return nil
}

func (l *LogManager) writeCheckpointPointer(off int64) error {
	var header [headerSize]byte
	putOffset(header[:], off)
	if _, err := l.file.WriteAt(header[:], 0); err != nil {
		return err
	}
	return l.file.Sync()
}

// putOffset writes off big-endian into the first 8 bytes of dest, NoCheckpoint becoming all ones.
func putOffset(dest []byte, off int64) {
	binary.BigEndian.PutUint64(dest, uint64(off))
}

func (l *LogManager) readCheckpointPointer() (int64, error) {
	var header [headerSize]byte
	if _, err := l.file.ReadAt(header[:], 0); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(header[:])), nil
}

// CheckpointOffset returns the offset of the last checkpoint record or NoCheckpoint.
func (l *LogManager) CheckpointOffset() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.force(); err != nil {
		return 0, err
	}
	return l.readCheckpointPointer()
}

// CurrentOffset is where the next record will be appended.
func (l *LogManager) CurrentOffset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentOffset
}

// TotalRecords is the number of records appended since the log was opened or started over.
func (l *LogManager) TotalRecords() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalRecords
}

// MaxTxnID is the largest transaction id seen in the log. New transaction ids should be larger after recovery.
func (l *LogManager) MaxTxnID() transaction.TxnID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxTxnID
}

// Close makes the log durable and closes the file.
func (l *LogManager) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.force(); err != nil {
		return err
	}
	return l.file.Close()
}

// Shutdown takes a checkpoint and closes the log.
func (l *LogManager) Shutdown() error {
	if err := l.Checkpoint(); err != nil {
		return err
	}
	return l.Close()
}
