package buffer

import (
	"errors"
	"minidb/disk/structures"
)

var ErrNoVictim = errors.New("nothing is evictable")

// IReplacer decides which resident page is evicted. Pool tells it about every access and removal, and asks for a
// victim among the pages the evictable callback accepts.
type IReplacer interface {
	// Touch records an access to pid, adding it if it is not tracked yet.
	Touch(pid structures.PageID)
	Remove(pid structures.PageID)
	ChooseVictim(evictable func(pid structures.PageID) bool) (structures.PageID, error)
	Len() int
}
