package buffer

import (
	"container/list"
	"minidb/disk/structures"
)

var _ IReplacer = &LruReplacer{}

// LruReplacer chooses the least recently used evictable page. Pages are kept in a list ordered by recency with
// the most recently used at the front.
type LruReplacer struct {
	order    *list.List
	elements map[structures.PageID]*list.Element
}

func NewLruReplacer(poolSize int) *LruReplacer {
	return &LruReplacer{
		order:    list.New(),
		elements: make(map[structures.PageID]*list.Element, poolSize),
	}
}

func (l *LruReplacer) Touch(pid structures.PageID) {
	if e, ok := l.elements[pid]; ok {
		l.order.MoveToFront(e)
		return
	}
	l.elements[pid] = l.order.PushFront(pid)
}

func (l *LruReplacer) Remove(pid structures.PageID) {
	if e, ok := l.elements[pid]; ok {
		l.order.Remove(e)
		delete(l.elements, pid)
	}
}

func (l *LruReplacer) ChooseVictim(evictable func(pid structures.PageID) bool) (structures.PageID, error) {
	for e := l.order.Back(); e != nil; e = e.Prev() {
		pid := e.Value.(structures.PageID)
		if evictable(pid) {
			l.order.Remove(e)
			delete(l.elements, pid)
			return pid, nil
		}
	}

	return structures.PageID{}, ErrNoVictim
}

func (l *LruReplacer) Len() int {
	return len(l.elements)
}
