package disk

import (
	"errors"
	"fmt"
	"github.com/cespare/xxhash/v2"
	"io"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
	"os"
	"path/filepath"
	"sync"
)

// FlushInstantly should normally be set to true. If it is false then data might be lost even after a successful write
// operation when power loss occurs before os flushes its io buffers. Committed data is still recovered from the
// log in that case since the log is synced on every force.
const FlushInstantly bool = false

// PageFetcher is what a file needs from the buffer pool to modify its pages under the locks of a transaction.
type PageFetcher interface {
	Fetch(tid transaction.TxnID, pid structures.PageID, perm transaction.Permission) (pages.Page, error)
	HoldsLock(tid transaction.TxnID, pid structures.PageID) bool
	UnsafeReleaseLock(tid transaction.TxnID, pid structures.PageID)
}

// DbFile is a table on disk. Pages are read and written by page number, reading past the end grows the file.
type DbFile interface {
	ID() int32
	Desc() *structures.TupleDesc
	PageSize() int
	ReadPage(pid structures.PageID) (pages.Page, error)
	WritePage(p pages.Page) error
	NumPages() (int, error)

	// InsertTuple and DeleteTuple modify pages through the fetcher and return the pages they modified. They do not
	// mark pages dirty, that is up to the caller.
	InsertTuple(tid transaction.TxnID, t *structures.Tuple, fetcher PageFetcher) ([]pages.Page, error)
	DeleteTuple(tid transaction.TxnID, t *structures.Tuple, fetcher PageFetcher) ([]pages.Page, error)
	Close() error
}

type HeapFile struct {
	file     *os.File
	filename string
	id       int32
	desc     *structures.TupleDesc
	pageSize int

	// mu serializes appending new pages
	mu sync.Mutex
}

// TableIDFor derives the table id of a file from its absolute path.
func TableIDFor(file string) (int32, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return 0, err
	}

	return int32(xxhash.Sum64String(abs)), nil
}

func OpenHeapFile(file string, desc *structures.TupleDesc, pageSize int) (*HeapFile, error) {
	if pages.NumSlotsFor(pageSize, desc.Size()) == 0 {
		return nil, fmt.Errorf("tuples of size %d do not fit in pages of size %d", desc.Size(), pageSize)
	}

	id, err := TableIDFor(file)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}

	return &HeapFile{
		file:     f,
		filename: file,
		id:       id,
		desc:     desc,
		pageSize: pageSize,
	}, nil
}

func (f *HeapFile) ID() int32 {
	return f.id
}

func (f *HeapFile) Desc() *structures.TupleDesc {
	return f.desc
}

func (f *HeapFile) PageSize() int {
	return f.pageSize
}

func (f *HeapFile) Name() string {
	return f.filename
}

func (f *HeapFile) NumPages() (int, error) {
	stats, err := f.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}

	return int(stats.Size() / int64(f.pageSize)), nil
}

// ReadPage reads the page from disk. If the page is past the end of the file an empty page is written there first
// so that the page exists on disk from now on.
func (f *HeapFile) ReadPage(pid structures.PageID) (pages.Page, error) {
	if pid.TableID != f.id || pid.PageNo < 0 {
		return nil, fmt.Errorf("%w: %v is not a page of table %d", ErrTupleNotInFile, pid, f.id)
	}

	data := make([]byte, f.pageSize)
	n, err := f.file.ReadAt(data, int64(pid.PageNo)*int64(f.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %v: %w", ErrStorageIO, pid, err)
	}

	if n < f.pageSize {
		data = pages.EmptyPageData(f.pageSize)
		if err := f.writeAt(data, pid.PageNo); err != nil {
			return nil, err
		}
	}

	return pages.NewHeapPage(pid, f.desc, data)
}

func (f *HeapFile) WritePage(p pages.Page) error {
	if p.ID().TableID != f.id {
		return fmt.Errorf("%w: %v is not a page of table %d", ErrTupleNotInFile, p.ID(), f.id)
	}

	if len(p.Data()) != f.pageSize {
		panic(fmt.Sprintf("page %v is %d bytes, page size is %d", p.ID(), len(p.Data()), f.pageSize))
	}

	return f.writeAt(p.Data(), p.ID().PageNo)
}

func (f *HeapFile) writeAt(data []byte, pageNo int32) error {
	if _, err := f.file.WriteAt(data, int64(pageNo)*int64(f.pageSize)); err != nil {
		return fmt.Errorf("%w: write page %d of %s: %w", ErrStorageIO, pageNo, f.filename, err)
	}

	if FlushInstantly {
		if err := f.file.Sync(); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageIO, err)
		}
	}

	return nil
}

// appendPage writes an empty page at the end of the file and returns its id.
func (f *HeapFile) appendPage() (structures.PageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.NumPages()
	if err != nil {
		return structures.PageID{}, err
	}

	if err := f.writeAt(pages.EmptyPageData(f.pageSize), int32(n)); err != nil {
		return structures.PageID{}, err
	}

	return structures.NewPageID(f.id, int32(n)), nil
}

// InsertTuple puts t in the first page having an empty slot. Pages are checked under exclusive locks which are given
// back when the page turns out to be full, unless the transaction held a lock on it already. Checking under a shared
// lock and upgrading would deadlock with a reader of the page that inserts too. If every page is full a new page is
// appended.
func (f *HeapFile) InsertTuple(tid transaction.TxnID, t *structures.Tuple, fetcher PageFetcher) ([]pages.Page, error) {
	if !f.desc.Equals(t.Desc()) {
		return nil, pages.ErrDescDiffer
	}

	n, err := f.NumPages()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		pid := structures.NewPageID(f.id, int32(i))
		held := fetcher.HoldsLock(tid, pid)

		p, err := fetchHeapPage(fetcher, tid, pid, transaction.ReadWrite)
		if err != nil {
			return nil, err
		}

		if p.NumEmptySlots() == 0 {
			if !held {
				fetcher.UnsafeReleaseLock(tid, pid)
			}
			continue
		}

		if err := p.InsertTuple(t); err != nil {
			return nil, err
		}
		return []pages.Page{p}, nil
	}

	for {
		pid, err := f.appendPage()
		if err != nil {
			return nil, err
		}

		p, err := fetchHeapPage(fetcher, tid, pid, transaction.ReadWrite)
		if err != nil {
			return nil, err
		}

		// another transaction may have filled the new page before we locked it
		if err := p.InsertTuple(t); errors.Is(err, pages.ErrPageFull) {
			continue
		} else if err != nil {
			return nil, err
		}
		return []pages.Page{p}, nil
	}
}

// DeleteTuple clears the slot of t on its page. The page keeps its place in the file even if it becomes empty.
func (f *HeapFile) DeleteTuple(tid transaction.TxnID, t *structures.Tuple, fetcher PageFetcher) ([]pages.Page, error) {
	if t.Rid == nil || t.Rid.PageID.TableID != f.id {
		return nil, ErrTupleNotInFile
	}

	p, err := fetchHeapPage(fetcher, tid, t.Rid.PageID, transaction.ReadWrite)
	if err != nil {
		return nil, err
	}

	if err := p.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []pages.Page{p}, nil
}

// Scan returns every tuple of the file in page and slot order, locking pages in shared mode.
func (f *HeapFile) Scan(tid transaction.TxnID, fetcher PageFetcher) ([]*structures.Tuple, error) {
	it := NewHeapFileIterator(f, tid, fetcher)

	res := make([]*structures.Tuple, 0)
	for {
		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return res, nil
		}
		res = append(res, t)
	}
}

func (f *HeapFile) Close() error {
	return f.file.Close()
}

func fetchHeapPage(fetcher PageFetcher, tid transaction.TxnID, pid structures.PageID, perm transaction.Permission) (*pages.HeapPage, error) {
	p, err := fetcher.Fetch(tid, pid, perm)
	if err != nil {
		return nil, err
	}

	hp, ok := p.(*pages.HeapPage)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotHeapPage, pid)
	}
	return hp, nil
}
