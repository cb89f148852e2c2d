package pages

import (
	"errors"
	"fmt"
	"minidb/common"
	"minidb/disk/structures"
	"minidb/transaction"
	"sync"
)

/**
 * Heap page format:
 *  -----------------------------------------------------------------
 *  | HEADER | SLOT_0 | SLOT_1 | ... | SLOT_N-1 | ... UNUSED ... |
 *  -----------------------------------------------------------------
 *
 *  Header is a bitmap of ceil(N/8) bytes. Bit i is in byte i/8 at position i%8 counting from the least significant
 *  bit and it is set when slot i holds a tuple. Every slot is TupleDesc.Size() bytes. N is the largest number such
 *  that N slots and N header bits fit in a page.
 */

var (
	ErrPageFull   = errors.New("no empty slot left in page")
	ErrSlotEmpty  = errors.New("tuple slot is already empty")
	ErrWrongPage  = errors.New("tuple is not on this page")
	ErrDescDiffer = errors.New("tuple desc does not match page desc")
)

type HeapPage struct {
	pid      structures.PageID
	desc     *structures.TupleDesc
	data     []byte
	numSlots int

	mu      sync.Mutex
	dirty   bool
	dirtyBy transaction.TxnID
	before  []byte
}

// NumSlotsFor returns the number of tuples of size tupleSize that fit in a page with their header bits.
func NumSlotsFor(pageSize int, tupleSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

func HeaderSizeFor(numSlots int) int {
	return (numSlots + 7) / 8
}

// EmptyPageData returns the content of a page without any tuple.
func EmptyPageData(pageSize int) []byte {
	return make([]byte, pageSize)
}

// NewHeapPage interprets data as a heap page of desc. The page keeps data and modifies it in place, the before image
// is a copy taken here.
func NewHeapPage(pid structures.PageID, desc *structures.TupleDesc, data []byte) (*HeapPage, error) {
	numSlots := NumSlotsFor(len(data), desc.Size())
	if numSlots == 0 {
		return nil, fmt.Errorf("tuples of size %d do not fit in pages of size %d", desc.Size(), len(data))
	}

	return &HeapPage{
		pid:      pid,
		desc:     desc,
		data:     data,
		numSlots: numSlots,
		before:   common.Clone(data),
	}, nil
}

func (p *HeapPage) ID() structures.PageID {
	return p.pid
}

func (p *HeapPage) Data() []byte {
	return p.data
}

func (p *HeapPage) Tag() uint32 {
	return HeapPageTag
}

func (p *HeapPage) Desc() *structures.TupleDesc {
	return p.desc
}

func (p *HeapPage) DirtiedBy() (transaction.TxnID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirtyBy, p.dirty
}

func (p *HeapPage) MarkDirty(dirty bool, tid transaction.TxnID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !dirty {
		p.dirty, p.dirtyBy = false, transaction.NoTxn
		return
	}

	common.Assert(!p.dirty || p.dirtyBy == tid, "%v is dirtied by %v, %v can not dirty it", p.pid, p.dirtyBy, tid)
	p.dirty, p.dirtyBy = true, tid
}

func (p *HeapPage) BeforeImage() Page {
	p.mu.Lock()
	before := common.Clone(p.before)
	p.mu.Unlock()

	return &HeapPage{
		pid:      p.pid,
		desc:     p.desc,
		data:     before,
		numSlots: p.numSlots,
		before:   common.Clone(before),
	}
}

func (p *HeapPage) SetBeforeImage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.before = common.Clone(p.data)
}

func (p *HeapPage) NumSlots() int {
	return p.numSlots
}

func (p *HeapPage) headerSize() int {
	return HeaderSizeFor(p.numSlots)
}

func (p *HeapPage) slotOffset(slot int) int {
	return p.headerSize() + slot*p.desc.Size()
}

func (p *HeapPage) IsSlotUsed(slot int) bool {
	common.Assert(slot >= 0 && slot < p.numSlots, "slot %d out of range [0, %d)", slot, p.numSlots)
	return p.data[slot/8]&(1<<(slot%8)) != 0
}

func (p *HeapPage) setSlot(slot int, used bool) {
	if used {
		p.data[slot/8] |= 1 << (slot % 8)
	} else {
		p.data[slot/8] &^= 1 << (slot % 8)
	}
}

func (p *HeapPage) NumEmptySlots() int {
	n := 0
	for i := 0; i < p.numSlots; i++ {
		if !p.IsSlotUsed(i) {
			n++
		}
	}
	return n
}

// InsertTuple writes t to the first empty slot and sets t.Rid.
func (p *HeapPage) InsertTuple(t *structures.Tuple) error {
	if !p.desc.Equals(t.Desc()) {
		return ErrDescDiffer
	}

	for i := 0; i < p.numSlots; i++ {
		if p.IsSlotUsed(i) {
			continue
		}

		off := p.slotOffset(i)
		t.Serialize(p.data[off : off+p.desc.Size()])
		p.setSlot(i, true)
		t.Rid = &structures.Rid{PageID: p.pid, Slot: i}
		return nil
	}

	return ErrPageFull
}

// DeleteTuple clears the header bit of the slot t is stored in. Slot content is left as is.
func (p *HeapPage) DeleteTuple(t *structures.Tuple) error {
	if t.Rid == nil || t.Rid.PageID != p.pid || t.Rid.Slot < 0 || t.Rid.Slot >= p.numSlots {
		return ErrWrongPage
	}
	if !p.IsSlotUsed(t.Rid.Slot) {
		return ErrSlotEmpty
	}

	p.setSlot(t.Rid.Slot, false)
	t.Rid = nil
	return nil
}

// GetTuple returns the tuple at slot or nil if the slot is empty.
func (p *HeapPage) GetTuple(slot int) *structures.Tuple {
	if !p.IsSlotUsed(slot) {
		return nil
	}

	off := p.slotOffset(slot)
	t := structures.DeserializeTuple(p.desc, p.data[off:off+p.desc.Size()])
	t.Rid = &structures.Rid{PageID: p.pid, Slot: slot}
	return t
}

// Tuples returns all tuples of the page in slot order.
func (p *HeapPage) Tuples() []*structures.Tuple {
	res := make([]*structures.Tuple, 0)
	for i := 0; i < p.numSlots; i++ {
		if t := p.GetTuple(i); t != nil {
			res = append(res, t)
		}
	}
	return res
}
