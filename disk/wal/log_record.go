package wal

import (
	"fmt"
	"minidb/disk/pages"
	"minidb/transaction"
)

type LogRecordType int32

const (
	TypeInvalid LogRecordType = iota
	TypeAbort
	TypeCommit
	TypeUpdate
	TypeBegin
	TypeCheckpoint
)

func (t LogRecordType) String() string {
	switch t {
	case TypeAbort:
		return "ABORT"
	case TypeCommit:
		return "COMMIT"
	case TypeUpdate:
		return "UPDATE"
	case TypeBegin:
		return "BEGIN"
	case TypeCheckpoint:
		return "CHECKPOINT"
	}
	return fmt.Sprintf("INVALID(%d)", int32(t))
}

// ActiveTxn is an entry of a checkpoint record, a transaction that was running when the checkpoint was taken and the
// offset of its first record.
type ActiveTxn struct {
	TxnID       transaction.TxnID
	FirstOffset int64
}

type LogRecord struct {
	T     LogRecordType
	TxnID transaction.TxnID

	// for update
	Before pages.Page
	After  pages.Page

	// for checkpoint
	Actives []ActiveTxn

	// Offset is where the record starts in the log. It is also written at the end of the record.
	Offset int64
}

func NewBeginLogRecord(txnID transaction.TxnID) *LogRecord {
	return &LogRecord{T: TypeBegin, TxnID: txnID}
}

func NewCommitLogRecord(txnID transaction.TxnID) *LogRecord {
	return &LogRecord{T: TypeCommit, TxnID: txnID}
}

func NewAbortLogRecord(txnID transaction.TxnID) *LogRecord {
	return &LogRecord{T: TypeAbort, TxnID: txnID}
}

func NewUpdateLogRecord(txnID transaction.TxnID, before, after pages.Page) *LogRecord {
	return &LogRecord{T: TypeUpdate, TxnID: txnID, Before: before, After: after}
}

func NewCheckpointLogRecord(actives []ActiveTxn) *LogRecord {
	return &LogRecord{T: TypeCheckpoint, TxnID: transaction.CheckpointTxnID, Actives: actives}
}

func (l *LogRecord) String() string {
	switch l.T {
	case TypeUpdate:
		return fmt.Sprintf("%d %v %v before=%v after=%v", l.Offset, l.T, l.TxnID, l.Before.ID(), l.After.ID())
	case TypeCheckpoint:
		return fmt.Sprintf("%d %v actives=%v", l.Offset, l.T, l.Actives)
	}
	return fmt.Sprintf("%d %v %v", l.Offset, l.T, l.TxnID)
}
