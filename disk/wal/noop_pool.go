package wal

import (
	"minidb/disk/structures"
	"sync"
)

// noopPool stands in for the buffer pool until one is attached, so that a log can be used for recovery before the
// pool exists.
type noopPool struct {
	sync.Mutex
}

func (n *noopPool) FlushAllLocked() error {
	return nil
}

func (n *noopPool) DiscardLocked(structures.PageID) {}

var _ PagePool = &noopPool{}
