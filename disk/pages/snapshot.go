package pages

import (
	"minidb/disk/structures"
	"minidb/transaction"
)

// Snapshot is an immutable copy of a page's bytes. Log images decode into snapshots since writing a page back to its
// file does not need to interpret it.
type Snapshot struct {
	pid  structures.PageID
	tag  uint32
	data []byte
}

func NewSnapshot(pid structures.PageID, tag uint32, data []byte) *Snapshot {
	return &Snapshot{
		pid:  pid,
		tag:  tag,
		data: data,
	}
}

func (s *Snapshot) ID() structures.PageID {
	return s.pid
}

func (s *Snapshot) Data() []byte {
	return s.data
}

func (s *Snapshot) Tag() uint32 {
	return s.tag
}

func (s *Snapshot) DirtiedBy() (transaction.TxnID, bool) {
	return transaction.NoTxn, false
}

func (s *Snapshot) MarkDirty(bool, transaction.TxnID) {
	panic("snapshots can not be modified")
}

func (s *Snapshot) BeforeImage() Page {
	return s
}

func (s *Snapshot) SetBeforeImage() {}
