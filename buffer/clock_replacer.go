package buffer

import (
	"minidb/disk/structures"
)

type slot struct {
	pid          structures.PageID
	used         bool
	secondChance bool
}

var _ IReplacer = &ClockReplacer{}

// ClockReplacer approximates LRU with a second chance bit per page. The hand sweeps the slots, a touched page gets
// its bit set and the hand clears it when passing, a page is a victim when the hand reaches it with its bit unset.
type ClockReplacer struct {
	slots          []slot
	index          map[structures.PageID]int
	free           []int
	victimIterator int
}

func NewClockReplacer(size int) *ClockReplacer {
	free := make([]int, 0, size)
	for i := size - 1; i >= 0; i-- {
		free = append(free, i)
	}

	return &ClockReplacer{
		slots: make([]slot, size),
		index: make(map[structures.PageID]int, size),
		free:  free,
	}
}

func (c *ClockReplacer) Touch(pid structures.PageID) {
	if i, ok := c.index[pid]; ok {
		c.slots[i].secondChance = true
		return
	}

	if len(c.free) == 0 {
		// pool never tracks more pages than its size
		c.slots = append(c.slots, slot{})
		c.free = append(c.free, len(c.slots)-1)
	}

	i := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.slots[i] = slot{pid: pid, used: true, secondChance: true}
	c.index[pid] = i
}

func (c *ClockReplacer) Remove(pid structures.PageID) {
	i, ok := c.index[pid]
	if !ok {
		return
	}

	c.slots[i] = slot{}
	delete(c.index, pid)
	c.free = append(c.free, i)
}

func (c *ClockReplacer) ChooseVictim(evictable func(pid structures.PageID) bool) (structures.PageID, error) {
	if len(c.index) == 0 {
		return structures.PageID{}, ErrNoVictim
	}

	// first pass may only clear bits, second pass finds a victim if there is any
	for step := 0; step < 2*len(c.slots); step++ {
		i := c.victimIterator
		c.victimIterator = (c.victimIterator + 1) % len(c.slots)

		s := c.slots[i]
		if !s.used || !evictable(s.pid) {
			continue
		}

		if s.secondChance {
			c.slots[i].secondChance = false
			continue
		}

		c.Remove(s.pid)
		return s.pid, nil
	}

	return structures.PageID{}, ErrNoVictim
}

func (c *ClockReplacer) Len() int {
	return len(c.index)
}
