package structures

import "fmt"

// PageID identifies a page of a table. It is comparable and used as a map key by the buffer pool and the lock
// manager.
type PageID struct {
	TableID int32
	PageNo  int32
}

func NewPageID(tableID int32, pageNo int32) PageID {
	return PageID{TableID: tableID, PageNo: pageNo}
}

// Serialize returns the fields identifying the page in the order they are written to the log.
func (p PageID) Serialize() []int32 {
	return []int32{p.TableID, p.PageNo}
}

func (p PageID) String() string {
	return fmt.Sprintf("page(%d:%d)", p.TableID, p.PageNo)
}

// Rid is the address of a tuple, the page holding it and the slot index in that page.
type Rid struct {
	PageID PageID
	Slot   int
}

func (r Rid) String() string {
	return fmt.Sprintf("rid(%d:%d:%d)", r.PageID.TableID, r.PageID.PageNo, r.Slot)
}
