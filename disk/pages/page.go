package pages

import (
	"minidb/disk/structures"
	"minidb/transaction"
)

// Page is a wrapper for actual physical pages in the file system. It can provide the actual content of the
// physical page as a byte array. It also keeps what the buffer pool and the log need to know about the page: which
// transaction dirtied it and how it looked when it was last flushed.
type Page interface {
	// ID returns the identity of the physical page.
	ID() structures.PageID

	// Data returns the raw content of the page. It is exactly page size bytes long.
	Data() []byte

	// Tag is the codec tag that is written to the log with the page images.
	Tag() uint32

	// DirtiedBy returns the transaction that dirtied the page, ok is false if the page is clean.
	DirtiedBy() (tid transaction.TxnID, ok bool)
	MarkDirty(dirty bool, tid transaction.TxnID)

	// BeforeImage returns the page as it was when it was last flushed or loaded.
	BeforeImage() Page

	// SetBeforeImage makes the current content the new before image. It is called after the page is flushed.
	SetBeforeImage()
}

// IsDirty is a shorthand for DirtiedBy when the owner does not matter.
func IsDirty(p Page) bool {
	_, ok := p.DirtiedBy()
	return ok
}
