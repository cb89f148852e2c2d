package disk

import (
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
)

// HeapFileIterator walks the tuples of a heap file in page and slot order. Pages are fetched one at a time under
// shared locks of the transaction, so a page is only locked once the iterator reaches it.
type HeapFileIterator struct {
	file    *HeapFile
	tid     transaction.TxnID
	fetcher PageFetcher

	pageNo int32
	slot   int
	page   *pages.HeapPage
}

func NewHeapFileIterator(file *HeapFile, tid transaction.TxnID, fetcher PageFetcher) *HeapFileIterator {
	return &HeapFileIterator{
		file:    file,
		tid:     tid,
		fetcher: fetcher,
		slot:    -1,
	}
}

// Next returns the next tuple, or nil when the file is over. Pages appended after the iterator passed the last page
// are seen as well.
func (it *HeapFileIterator) Next() (*structures.Tuple, error) {
	for {
		if it.page == nil {
			n, err := it.file.NumPages()
			if err != nil {
				return nil, err
			}
			if int(it.pageNo) >= n {
				// we come to the end of heap
				return nil, nil
			}

			it.page, err = fetchHeapPage(it.fetcher, it.tid, structures.NewPageID(it.file.ID(), it.pageNo), transaction.ReadOnly)
			if err != nil {
				return nil, err
			}
			it.slot = -1
		}

		for it.slot+1 < it.page.NumSlots() {
			it.slot++
			if it.page.IsSlotUsed(it.slot) {
				return it.page.GetTuple(it.slot), nil
			}
		}

		it.page = nil
		it.pageNo++
	}
}

// Rewind starts the iteration over from the first page.
func (it *HeapFileIterator) Rewind() {
	it.pageNo, it.slot, it.page = 0, -1, nil
}
