package transaction

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrTxnAborted is returned when a transaction can not continue and has to be aborted by its owner. Lock timeouts
// wrap it, so callers can test with errors.Is and retry the whole transaction.
var ErrTxnAborted = errors.New("transaction aborted")

// TxnID identifies a transaction. The zero value means no transaction.
type TxnID uint64

const (
	NoTxn TxnID = 0

	// CheckpointTxnID fills the transaction id slot of checkpoint log records. It is -1 when read as an int64.
	CheckpointTxnID TxnID = ^TxnID(0)
)

func (id TxnID) String() string {
	return fmt.Sprintf("txn-%d", uint64(id))
}

// Generator hands out increasing transaction ids starting from 1.
type Generator struct {
	counter atomic.Uint64
}

func (g *Generator) Next() TxnID {
	return TxnID(g.counter.Add(1))
}

// Observe makes sure ids handed out later are larger than id. It is used after recovery so that new transactions
// do not reuse ids found in the log.
func (g *Generator) Observe(id TxnID) {
	for {
		curr := g.counter.Load()
		if uint64(id) <= curr || id == CheckpointTxnID {
			return
		}
		if g.counter.CompareAndSwap(curr, uint64(id)) {
			return
		}
	}
}

// Permission is the access a transaction asks for when it fetches a page.
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

func (p Permission) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}
