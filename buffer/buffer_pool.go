package buffer

import (
	"errors"
	"fmt"
	"log"
	"minidb/common"
	"minidb/disk"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/disk/wal"
	"minidb/locker"
	"minidb/transaction"
	"sort"
	"sync"
)

// ErrBufferExhausted is returned when a page has to be loaded but every resident page is dirty. Dirty pages are
// never evicted since their changes are not in the log yet.
var ErrBufferExhausted = errors.New("buffer pool is full of dirty pages")

// Files resolves the file a page belongs to.
type Files interface {
	GetDbFile(tableID int32) (disk.DbFile, error)
}

// LogManager is what the pool needs from the write ahead log.
type LogManager interface {
	Update(tid transaction.TxnID, before, after pages.Page) error
	Force() error
	Commit(tid transaction.TxnID) error
	Abort(tid transaction.TxnID) error
	AttachPool(pool wal.PagePool)
}

type Option func(*BufferPool)

func WithReplacer(r IReplacer) Option {
	return func(b *BufferPool) {
		b.Replacer = r
	}
}

var _ wal.PagePool = &BufferPool{}
var _ disk.PageFetcher = &BufferPool{}

// BufferPool caches pages and is the only way pages are read or modified. Every page is fetched under a lock of the
// transaction asking for it, and a page is resident at most once. Pages dirtied by a transaction stay in the pool
// until the transaction commits or aborts.
type BufferPool struct {
	poolSize   int
	pageMap    map[structures.PageID]pages.Page
	Replacer   IReplacer
	files      Files
	locks      *locker.LockManager
	logManager LogManager

	// lock guards pageMap and Replacer. Log lock is always taken after it.
	lock sync.Mutex

	// opLocks makes sure that a page is loaded from disk by one goroutine at a time.
	opLocks *common.KeyMutex[structures.PageID]
	stats   *common.Stats
}

func NewBufferPool(poolSize int, files Files, locks *locker.LockManager, logManager LogManager, opts ...Option) *BufferPool {
	common.Assert(poolSize > 0, "pool size should be positive, got %d", poolSize)

	b := &BufferPool{
		poolSize:   poolSize,
		pageMap:    make(map[structures.PageID]pages.Page, poolSize),
		Replacer:   NewLruReplacer(poolSize),
		files:      files,
		locks:      locks,
		logManager: logManager,
		opLocks:    &common.KeyMutex[structures.PageID]{},
		stats:      common.NewStats(),
	}
	for _, opt := range opts {
		opt(b)
	}

	logManager.AttachPool(b)
	return b
}

// Fetch returns the page after tid is granted a shared lock for ReadOnly or an exclusive lock for ReadWrite. It
// blocks while the lock is held by others and fails with an error wrapping transaction.ErrTxnAborted if it waits
// too long.
func (b *BufferPool) Fetch(tid transaction.TxnID, pid structures.PageID, perm transaction.Permission) (pages.Page, error) {
	if err := b.locks.Acquire(pid, tid, locker.ModeFor(perm)); err != nil {
		return nil, err
	}

	release := b.opLocks.Lock(pid)
	defer release()

	b.lock.Lock()
	if p, ok := b.pageMap[pid]; ok {
		b.Replacer.Touch(pid)
		b.lock.Unlock()
		b.stats.Incr("hits")
		return p, nil
	}
	b.lock.Unlock()
	b.stats.Incr("misses")

	file, err := b.files.GetDbFile(pid.TableID)
	if err != nil {
		return nil, err
	}

	p, err := file.ReadPage(pid)
	if err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.install(p); err != nil {
		return nil, err
	}
	return p, nil
}

// install puts p into the pool, evicting a page if the pool is full. Caller should hold the lock.
func (b *BufferPool) install(p pages.Page) error {
	if _, ok := b.pageMap[p.ID()]; !ok {
		for len(b.pageMap) >= b.poolSize {
			if err := b.evict(); err != nil {
				return err
			}
		}
	}

	b.pageMap[p.ID()] = p
	b.Replacer.Touch(p.ID())
	return nil
}

// evict drops the least recently used clean page.
func (b *BufferPool) evict() error {
	victim, err := b.Replacer.ChooseVictim(func(pid structures.PageID) bool {
		p, ok := b.pageMap[pid]
		return ok && !pages.IsDirty(p)
	})
	if err != nil {
		log.Printf("no clean page to evict among %d resident pages\n", len(b.pageMap))
		return fmt.Errorf("%w: %d pages", ErrBufferExhausted, len(b.pageMap))
	}

	delete(b.pageMap, victim)
	b.stats.Incr("evictions")
	return nil
}

// InsertTuple adds t to the table and marks the pages it changed dirty by tid.
func (b *BufferPool) InsertTuple(tid transaction.TxnID, tableID int32, t *structures.Tuple) ([]pages.Page, error) {
	file, err := b.files.GetDbFile(tableID)
	if err != nil {
		return nil, err
	}

	dirtied, err := file.InsertTuple(tid, t, b)
	if err != nil {
		return nil, err
	}

	return dirtied, b.markDirty(tid, dirtied)
}

// DeleteTuple removes t from its table and marks the pages it changed dirty by tid.
func (b *BufferPool) DeleteTuple(tid transaction.TxnID, t *structures.Tuple) ([]pages.Page, error) {
	if t.Rid == nil {
		return nil, disk.ErrTupleNotInFile
	}

	file, err := b.files.GetDbFile(t.Rid.PageID.TableID)
	if err != nil {
		return nil, err
	}

	dirtied, err := file.DeleteTuple(tid, t, b)
	if err != nil {
		return nil, err
	}

	return dirtied, b.markDirty(tid, dirtied)
}

func (b *BufferPool) markDirty(tid transaction.TxnID, dirtied []pages.Page) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, p := range dirtied {
		p.MarkDirty(true, tid)

		// a page modified right after it was fetched may have been evicted while it still looked clean, putting it
		// back keeps the changes
		if err := b.install(p); err != nil {
			return err
		}
	}
	return nil
}

// Commit writes pages tid dirtied to disk after logging their images, then logs the commit and releases the locks
// of tid.
func (b *BufferPool) Commit(tid transaction.TxnID) error {
	if err := b.commit(tid); err != nil {
		return err
	}

	b.locks.ReleaseAll(tid)
	return nil
}

func (b *BufferPool) commit(tid transaction.TxnID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, pid := range b.locks.ExclusivePages(tid) {
		p, ok := b.pageMap[pid]
		if !ok {
			continue
		}

		if owner, dirty := p.DirtiedBy(); !dirty || owner != tid {
			continue
		}

		if err := b.flushPage(p); err != nil {
			return err
		}
	}

	return b.logManager.Commit(tid)
}

// Abort restores pages tid wrote to disk from the log, drops every page tid locked exclusively from the pool and
// releases the locks of tid. Locks are released even if the rollback fails.
func (b *BufferPool) Abort(tid transaction.TxnID) error {
	// log takes the pool lock itself
	err := b.logManager.Abort(tid)

	b.lock.Lock()
	for _, pid := range b.locks.ExclusivePages(tid) {
		b.discard(pid)
	}
	b.lock.Unlock()

	b.locks.ReleaseAll(tid)
	return err
}

// DiscardPage drops the page from the pool without writing it.
func (b *BufferPool) DiscardPage(pid structures.PageID) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.discard(pid)
}

func (b *BufferPool) DiscardLocked(pid structures.PageID) {
	b.discard(pid)
}

func (b *BufferPool) discard(pid structures.PageID) {
	delete(b.pageMap, pid)
	b.Replacer.Remove(pid)
}

// FlushAll writes every dirty page to disk, logging an update record for each first. Transactions owning those
// pages are not committed by this; their changes are undone from the log if they abort.
func (b *BufferPool) FlushAll() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.FlushAllLocked()
}

func (b *BufferPool) FlushAllLocked() error {
	return b.flushWhere(func(pages.Page) bool { return true })
}

// FlushPages writes pages dirtied by tid.
func (b *BufferPool) FlushPages(tid transaction.TxnID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.flushWhere(func(p pages.Page) bool {
		owner, _ := p.DirtiedBy()
		return owner == tid
	})
}

func (b *BufferPool) flushWhere(filter func(pages.Page) bool) error {
	pids := make([]structures.PageID, 0)
	for pid, p := range b.pageMap {
		if pages.IsDirty(p) && filter(p) {
			pids = append(pids, pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool {
		if pids[i].TableID != pids[j].TableID {
			return pids[i].TableID < pids[j].TableID
		}
		return pids[i].PageNo < pids[j].PageNo
	})

	for _, pid := range pids {
		if err := b.flushPage(b.pageMap[pid]); err != nil {
			return err
		}
	}
	return nil
}

// flushPage logs before and after images of p, forces the log and writes p. Caller should hold the lock.
func (b *BufferPool) flushPage(p pages.Page) error {
	tid, dirty := p.DirtiedBy()
	if !dirty {
		return nil
	}

	file, err := b.files.GetDbFile(p.ID().TableID)
	if err != nil {
		return err
	}

	if err := b.logManager.Update(tid, p.BeforeImage(), p); err != nil {
		return err
	}
	if err := b.logManager.Force(); err != nil {
		return err
	}
	if err := file.WritePage(p); err != nil {
		return err
	}

	p.MarkDirty(false, transaction.NoTxn)
	p.SetBeforeImage()
	b.stats.Incr("flushes")
	return nil
}

// UnsafeReleaseLock gives back a lock before the transaction ends. It breaks two-phase locking, see
// locker.LockManager.Release.
func (b *BufferPool) UnsafeReleaseLock(tid transaction.TxnID, pid structures.PageID) {
	b.locks.Release(tid, pid)
}

func (b *BufferPool) HoldsLock(tid transaction.TxnID, pid structures.PageID) bool {
	return b.locks.HoldsLock(tid, pid)
}

func (b *BufferPool) Lock() {
	b.lock.Lock()
}

func (b *BufferPool) Unlock() {
	b.lock.Unlock()
}

// Resident returns the number of pages in the pool.
func (b *BufferPool) Resident() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.pageMap)
}

func (b *BufferPool) Capacity() int {
	return b.poolSize
}

// IsResident reports whether pid is in the pool.
func (b *BufferPool) IsResident(pid structures.PageID) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, ok := b.pageMap[pid]
	return ok
}

// Stats returns hits, misses, evictions and flushes counted since the pool was created.
func (b *BufferPool) Stats() map[string]int64 {
	return b.stats.Snapshot()
}
