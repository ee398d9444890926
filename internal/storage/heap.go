package storage

import (
	"fmt"
	"sync"

	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

// SlotsPerPage returns how many tuples of the schema fit a page: every slot
// costs its tuple width plus one header bit.
func SlotsPerPage(pageSize int, schema *tuple.Schema) int {
	return (pageSize * 8) / (schema.Size()*8 + 1)
}

// HeaderSize returns the bytes needed for an occupancy bitmap of n slots.
func HeaderSize(slots int) int {
	return (slots + 7) / 8
}

// EmptyPageData returns the image of a page with no occupied slots.
func EmptyPageData(pageSize int) []byte {
	return make([]byte, pageSize)
}

// HeapPage is a slotted page of fixed-width tuples. The page starts with an
// occupancy bitmap (bit i lives in byte i/8 at position i%8) followed by the
// slots in order.
type HeapPage struct {
	mu       sync.RWMutex
	id       tuple.PageID
	schema   *tuple.Schema
	pageSize int
	header   []byte
	tuples   []*tuple.Tuple

	dirty   bool
	dirtier txn.ID
}

// NewHeapPage decodes a page image of exactly pageSize bytes.
func NewHeapPage(id tuple.PageID, schema *tuple.Schema, pageSize int, data []byte) (*HeapPage, error) {
	if len(data) != pageSize {
		return nil, &IOError{Op: "decode", Page: id, Err: fmt.Errorf("%w: %d bytes, want %d", errShortPage, len(data), pageSize)}
	}
	slots := SlotsPerPage(pageSize, schema)
	if slots == 0 {
		return nil, fmt.Errorf("storage: %d-byte tuples do not fit a %d-byte page", schema.Size(), pageSize)
	}
	hdr := HeaderSize(slots)
	p := &HeapPage{
		id:       id,
		schema:   schema,
		pageSize: pageSize,
		header:   make([]byte, hdr),
		tuples:   make([]*tuple.Tuple, slots),
	}
	copy(p.header, data[:hdr])

	width := schema.Size()
	for i := 0; i < slots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		off := hdr + i*width
		t, err := tuple.Decode(schema, data[off:off+width])
		if err != nil {
			return nil, &IOError{Op: "decode", Page: id, Err: fmt.Errorf("slot %d: %w", i, err)}
		}
		t.SetRecordID(tuple.RecordID{Page: id, Slot: i})
		p.tuples[i] = t
	}
	return p, nil
}

// ID returns the page identity.
func (p *HeapPage) ID() tuple.PageID { return p.id }

// Schema returns the schema of the tuples on the page.
func (p *HeapPage) Schema() *tuple.Schema { return p.schema }

// NumSlots returns the total slot count.
func (p *HeapPage) NumSlots() int { return len(p.tuples) }

// SlotUsed reports whether slot i holds a tuple.
func (p *HeapPage) SlotUsed(i int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slotUsed(i)
}

func (p *HeapPage) slotUsed(i int) bool {
	if i < 0 || i >= len(p.tuples) {
		return false
	}
	return p.header[i/8]&(1<<(uint(i)%8)) != 0
}

func (p *HeapPage) setSlot(i int, used bool) {
	if used {
		p.header[i/8] |= 1 << (uint(i) % 8)
	} else {
		p.header[i/8] &^= 1 << (uint(i) % 8)
	}
}

// EmptySlots returns the number of clear slots.
func (p *HeapPage) EmptySlots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for i := range p.tuples {
		if !p.slotUsed(i) {
			n++
		}
	}
	return n
}

// Insert stores t in the lowest free slot and anchors t there.
func (p *HeapPage) Insert(t *tuple.Tuple) error {
	if !p.schema.Equal(t.Schema()) {
		return fmt.Errorf("storage: insert into page %s: %w: %w", p.id, ErrPageFull, tuple.ErrSchemaMismatch)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.tuples {
		if p.slotUsed(i) {
			continue
		}
		rid := tuple.RecordID{Page: p.id, Slot: i}
		t.SetRecordID(rid)
		p.tuples[i] = t.Clone()
		p.setSlot(i, true)
		return nil
	}
	return fmt.Errorf("%w: page %s has %d slots", ErrPageFull, p.id, len(p.tuples))
}

// Delete clears the slot addressed by rid.
func (p *HeapPage) Delete(rid tuple.RecordID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rid.Page != p.id {
		return fmt.Errorf("%w: %s is not on page %s", ErrSlotNotOccupied, rid, p.id)
	}
	if !p.slotUsed(rid.Slot) {
		return fmt.Errorf("%w: %s", ErrSlotNotOccupied, rid)
	}
	p.setSlot(rid.Slot, false)
	p.tuples[rid.Slot] = nil
	return nil
}

// Data serialises the page: bitmap first, then every slot in order. Clear
// slots and the tail are zero.
func (p *HeapPage) Data() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	buf := make([]byte, p.pageSize)
	copy(buf, p.header)
	width := p.schema.Size()
	off := len(p.header)
	for i, t := range p.tuples {
		if t != nil && p.slotUsed(i) {
			t.Encode(buf[off : off+width])
		}
		off += width
	}
	return buf
}

// MarkDirty records whether the page differs from its on-disk image and
// which transaction changed it.
func (p *HeapPage) MarkDirty(dirty bool, tx txn.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = dirty
	if dirty {
		p.dirtier = tx
	} else {
		p.dirtier = 0
	}
}

// Dirtier returns the transaction that last dirtied the page, if any.
func (p *HeapPage) Dirtier() (txn.ID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirtier, p.dirty
}

// Iterator returns a lazy iterator over occupied slots in slot order.
func (p *HeapPage) Iterator() *PageIterator {
	return &PageIterator{page: p}
}

// PageIterator walks the occupied slots of one page. Each tuple it returns is
// a copy carrying its record id.
type PageIterator struct {
	page *HeapPage
	next int
}

// HasNext reports whether another occupied slot follows.
func (it *PageIterator) HasNext() bool {
	it.page.mu.RLock()
	defer it.page.mu.RUnlock()
	for ; it.next < len(it.page.tuples); it.next++ {
		if it.page.slotUsed(it.next) {
			return true
		}
	}
	return false
}

// Next returns the tuple in the next occupied slot.
func (it *PageIterator) Next() (*tuple.Tuple, error) {
	it.page.mu.RLock()
	defer it.page.mu.RUnlock()
	for ; it.next < len(it.page.tuples); it.next++ {
		if t := it.page.tuples[it.next]; t != nil && it.page.slotUsed(it.next) {
			it.next++
			return t.Clone(), nil
		}
	}
	return nil, tuple.ErrNoSuchElement
}

// Rewind restarts from slot 0.
func (it *PageIterator) Rewind() { it.next = 0 }
