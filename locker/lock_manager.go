package locker

import (
	"fmt"
	"log"
	"math/rand"
	"minidb/common"
	"minidb/disk/structures"
	"minidb/transaction"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired in time. There is no deadlock detection, a
// transaction waiting too long is assumed to be in a deadlock and has to abort.
var ErrLockTimeout = fmt.Errorf("lock wait timed out: %w", transaction.ErrTxnAborted)

type LockMode int

const (
	SharedLock LockMode = iota
	ExclusiveLock
)

func (m LockMode) String() string {
	if m == ExclusiveLock {
		return "X"
	}
	return "S"
}

// ModeFor maps the permission a page is fetched with to the lock protecting it.
func ModeFor(perm transaction.Permission) LockMode {
	if perm == transaction.ReadWrite {
		return ExclusiveLock
	}
	return SharedLock
}

// lockState holds the owners of a page. Either every owner is shared or there is a single exclusive owner.
type lockState struct {
	owners map[transaction.TxnID]LockMode
	wake   *common.Signal
}

func (ls *lockState) exclusiveOwner() (transaction.TxnID, bool) {
	for txID, mode := range ls.owners {
		if mode == ExclusiveLock {
			return txID, true
		}
	}
	return transaction.NoTxn, false
}

type Option func(*LockManager)

// WithWaitBounds sets the range the lock wait timeout of each Acquire is drawn from.
func WithWaitBounds(min, max time.Duration) Option {
	return func(lm *LockManager) {
		common.Assert(min > 0 && min <= max, "invalid lock wait bounds [%v, %v)", min, max)
		lm.minWait, lm.maxWait = min, max
	}
}

// LockManager implements strict two-phase locking at page granularity. Locks of a transaction are kept until
// ReleaseAll, which the buffer pool calls at commit and abort.
type LockManager struct {
	// mu guards both pages and held so that the two maps are always mirrors of each other.
	mu    sync.Mutex
	pages map[structures.PageID]*lockState
	held  map[transaction.TxnID]map[structures.PageID]struct{}

	minWait time.Duration
	maxWait time.Duration
}

func NewLockManager(opts ...Option) *LockManager {
	lm := &LockManager{
		pages:   map[structures.PageID]*lockState{},
		held:    map[transaction.TxnID]map[structures.PageID]struct{}{},
		minWait: common.LockMinWait,
		maxWait: common.LockMaxWait,
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

func (lm *LockManager) waitTimeout() time.Duration {
	if lm.maxWait == lm.minWait {
		return lm.minWait
	}
	return lm.minWait + time.Duration(rand.Int63n(int64(lm.maxWait-lm.minWait)))
}

// Acquire blocks until tid is granted the lock on pid or until the wait timeout expires. Waiters sleep on the page's
// wake signal and check admission again after every release on that page.
func (lm *LockManager) Acquire(pid structures.PageID, tid transaction.TxnID, mode LockMode) error {
	var timer *time.Timer

	for {
		lm.mu.Lock()
		ls := lm.state(pid)
		if lm.canAcquire(ls, tid, mode) {
			lm.grant(ls, pid, tid, mode)
			lm.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
		wait := ls.wake.Wait()
		lm.mu.Unlock()

		// the timeout counts from the first attempt
		if timer == nil {
			timer = time.NewTimer(lm.waitTimeout())
		}

		select {
		case <-wait:
		case <-timer.C:
			log.Printf("%v timed out waiting for %v lock on %v\n", tid, mode, pid)
			return fmt.Errorf("%w: %v on %v", ErrLockTimeout, tid, pid)
		}
	}
}

// TryAcquire grants the lock if it can be granted right away.
func (lm *LockManager) TryAcquire(pid structures.PageID, tid transaction.TxnID, mode LockMode) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ls := lm.state(pid)
	if lm.canAcquire(ls, tid, mode) {
		lm.grant(ls, pid, tid, mode)
		return true
	}
	return false
}

// Release gives back the lock of tid on pid. It breaks two-phase locking and is only meant for locks that were
// taken to inspect a page that turned out to be of no use. Releasing a lock that is not held is a no-op.
func (lm *LockManager) Release(tid transaction.TxnID, pid structures.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.release(tid, pid)
}

// ReleaseAll releases every lock of tid.
func (lm *LockManager) ReleaseAll(tid transaction.TxnID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for pid := range lm.held[tid] {
		lm.release(tid, pid)
	}
	delete(lm.held, tid)
}

func (lm *LockManager) HoldsLock(tid transaction.TxnID, pid structures.PageID) bool {
	_, ok := lm.Mode(tid, pid)
	return ok
}

func (lm *LockManager) Mode(tid transaction.TxnID, pid structures.PageID) (LockMode, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ls, ok := lm.pages[pid]
	if !ok {
		return SharedLock, false
	}
	mode, ok := ls.owners[tid]
	return mode, ok
}

// PagesOf returns the pages tid holds a lock on, ordered by table and page number.
func (lm *LockManager) PagesOf(tid transaction.TxnID) []structures.PageID {
	return lm.pagesOf(tid, func(LockMode) bool { return true })
}

// ExclusivePages returns the pages tid holds an exclusive lock on, ordered by table and page number.
func (lm *LockManager) ExclusivePages(tid transaction.TxnID) []structures.PageID {
	return lm.pagesOf(tid, func(mode LockMode) bool { return mode == ExclusiveLock })
}

func (lm *LockManager) pagesOf(tid transaction.TxnID, filter func(LockMode) bool) []structures.PageID {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	res := make([]structures.PageID, 0, len(lm.held[tid]))
	for pid := range lm.held[tid] {
		if filter(lm.pages[pid].owners[tid]) {
			res = append(res, pid)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].TableID != res[j].TableID {
			return res[i].TableID < res[j].TableID
		}
		return res[i].PageNo < res[j].PageNo
	})
	return res
}

// NumLockedPages returns the number of pages having at least one owner.
func (lm *LockManager) NumLockedPages() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.pages)
}

func (lm *LockManager) state(pid structures.PageID) *lockState {
	ls, ok := lm.pages[pid]
	if !ok {
		ls = &lockState{owners: map[transaction.TxnID]LockMode{}, wake: common.NewSignal()}
		lm.pages[pid] = ls
	}
	return ls
}

func (lm *LockManager) dropIfUnused(pid structures.PageID, ls *lockState) {
	if len(ls.owners) == 0 {
		// waiters must not keep sleeping on a signal nobody will broadcast anymore
		ls.wake.Broadcast()
		delete(lm.pages, pid)
	}
}

// canAcquire returns true if lock request can be granted.
func (lm *LockManager) canAcquire(ls *lockState, tid transaction.TxnID, mode LockMode) bool {
	if lockMode, ok := ls.owners[tid]; ok {
		// wants the same lock it has or wants shared when has exclusive
		if lockMode == mode || mode == SharedLock {
			return true
		}

		// upgrade case, where txn already has read lock, wants the write lock and is the only owner.
		return len(ls.owners) == 1
	}

	if len(ls.owners) == 0 {
		return true
	}

	if mode == SharedLock {
		_, exclusive := ls.exclusiveOwner()
		return !exclusive
	}

	return false
}

// grant updates lockState and held pages of tid together.
func (lm *LockManager) grant(ls *lockState, pid structures.PageID, tid transaction.TxnID, mode LockMode) {
	if curr, ok := ls.owners[tid]; ok && curr == ExclusiveLock {
		// shared request of an exclusive owner does not downgrade
		return
	}
	ls.owners[tid] = mode

	pids, ok := lm.held[tid]
	if !ok {
		pids = map[structures.PageID]struct{}{}
		lm.held[tid] = pids
	}
	pids[pid] = struct{}{}
}

func (lm *LockManager) release(tid transaction.TxnID, pid structures.PageID) {
	ls, ok := lm.pages[pid]
	if !ok {
		return
	}
	if _, ok := ls.owners[tid]; !ok {
		return
	}

	delete(ls.owners, tid)
	if pids, ok := lm.held[tid]; ok {
		delete(pids, pid)
		if len(pids) == 0 {
			delete(lm.held, tid)
		}
	}

	ls.wake.Broadcast()
	lm.dropIfUnused(pid, ls)
}
