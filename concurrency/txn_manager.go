package concurrency

import (
	"errors"
	"fmt"
	"log"
	"minidb/transaction"
	"sort"
	"sync"
	"time"
)

var ErrUnknownTxn = errors.New("transaction is not running")

// Pool ends transactions on the buffer pool.
type Pool interface {
	Commit(tid transaction.TxnID) error
	Abort(tid transaction.TxnID) error
}

// Log records the start of transactions.
type Log interface {
	Begin(tid transaction.TxnID) error
}

type txn struct {
	id    transaction.TxnID
	start time.Time
}

// TxnManager hands out transaction ids and keeps track of running transactions.
type TxnManager struct {
	actives map[transaction.TxnID]*txn
	ids     *transaction.Generator
	lm      Log
	pool    Pool
	mut     sync.Mutex

	// newTxn is held exclusively while new transactions are not allowed to begin
	newTxn sync.RWMutex
}

func NewTxnManager(pool Pool, lm Log, ids *transaction.Generator) *TxnManager {
	return &TxnManager{
		actives: map[transaction.TxnID]*txn{},
		ids:     ids,
		lm:      lm,
		pool:    pool,
	}
}

// Begin starts a transaction and logs its begin record.
func (t *TxnManager) Begin() (transaction.TxnID, error) {
	t.newTxn.RLock()
	defer t.newTxn.RUnlock()

	id := t.ids.Next()
	if err := t.lm.Begin(id); err != nil {
		return transaction.NoTxn, err
	}

	t.mut.Lock()
	t.actives[id] = &txn{id: id, start: time.Now()}
	t.mut.Unlock()
	return id, nil
}

// Commit makes changes of the transaction durable. If committing fails the transaction is aborted and the
// returned error wraps transaction.ErrTxnAborted unless abort fails too.
func (t *TxnManager) Commit(id transaction.TxnID) error {
	txn, err := t.end(id)
	if err != nil {
		return err
	}

	if err := t.pool.Commit(id); err != nil {
		log.Printf("commit of %v failed, aborting it: %v\n", id, err)
		if abortErr := t.pool.Abort(id); abortErr != nil {
			return errors.Join(err, abortErr)
		}
		return fmt.Errorf("commit of %v failed: %w: %w", id, transaction.ErrTxnAborted, err)
	}

	log.Printf("%v committed after %v\n", id, time.Since(txn.start))
	return nil
}

// Abort undoes the changes of the transaction.
func (t *TxnManager) Abort(id transaction.TxnID) error {
	if _, err := t.end(id); err != nil {
		return err
	}
	return t.pool.Abort(id)
}

func (t *TxnManager) end(id transaction.TxnID) (*txn, error) {
	t.mut.Lock()
	defer t.mut.Unlock()

	txn, ok := t.actives[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTxn, id)
	}
	delete(t.actives, id)
	return txn, nil
}

// BlockNewTransactions makes Begin wait until ResumeNewTransactions is called.
func (t *TxnManager) BlockNewTransactions() {
	t.newTxn.Lock()
}

func (t *TxnManager) ResumeNewTransactions() {
	t.newTxn.Unlock()
}

// ActiveTransactions returns ids of running transactions in increasing order.
func (t *TxnManager) ActiveTransactions() []transaction.TxnID {
	t.mut.Lock()
	defer t.mut.Unlock()

	res := make([]transaction.TxnID, 0, len(t.actives))
	for id := range t.actives {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
