package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/heapstore/internal/tuple"
)

func pairSchema() *tuple.Schema {
	return tuple.NewSchema([]tuple.Type{tuple.IntType, tuple.IntType}, []string{"a", "b"})
}

func pair(t *testing.T, schema *tuple.Schema, a, b int32) *tuple.Tuple {
	t.Helper()
	tup, err := tuple.FromFields(schema, tuple.NewInt(a), tuple.NewInt(b))
	require.NoError(t, err)
	return tup
}

func emptyPage(t *testing.T, schema *tuple.Schema, pageSize int) *HeapPage {
	t.Helper()
	id := tuple.PageID{Table: 7, Number: 3}
	p, err := NewHeapPage(id, schema, pageSize, EmptyPageData(pageSize))
	require.NoError(t, err)
	return p
}

func TestSlotsPerPage(t *testing.T) {
	schema := pairSchema()
	assert.Equal(t, 504, SlotsPerPage(4096, schema))
	assert.Equal(t, 63, HeaderSize(504))
	assert.Equal(t, 1, HeaderSize(1))
	assert.Equal(t, 2, HeaderSize(9))

	str := tuple.NewSchema([]tuple.Type{tuple.StringType}, []string{"s"})
	assert.Equal(t, 4096*8/((4+tuple.StringLen)*8+1), SlotsPerPage(4096, str))
}

func TestHeapPageCapacity(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 4096)
	require.Equal(t, p.NumSlots(), p.EmptySlots())

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Insert(pair(t, schema, int32(i), 0)))
	}
	assert.Equal(t, p.NumSlots()-10, p.EmptySlots())

	for p.EmptySlots() > 0 {
		require.NoError(t, p.Insert(pair(t, schema, 1, 1)))
	}
	err := p.Insert(pair(t, schema, 2, 2))
	require.ErrorIs(t, err, ErrPageFull)
	assert.NotErrorIs(t, err, tuple.ErrSchemaMismatch)
}

func TestHeapPageInsertAssignsLowestSlot(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 4096)

	first := pair(t, schema, 1, 1)
	second := pair(t, schema, 2, 2)
	require.NoError(t, p.Insert(first))
	require.NoError(t, p.Insert(second))

	rid, ok := first.RecordID()
	require.True(t, ok)
	assert.Equal(t, tuple.RecordID{Page: p.ID(), Slot: 0}, rid)

	require.NoError(t, p.Delete(rid))
	third := pair(t, schema, 3, 3)
	require.NoError(t, p.Insert(third))
	rid3, _ := third.RecordID()
	assert.Equal(t, 0, rid3.Slot)
}

func TestHeapPageSchemaMismatch(t *testing.T) {
	p := emptyPage(t, pairSchema(), 4096)
	other := tuple.NewSchema([]tuple.Type{tuple.StringType}, []string{"s"})
	tup, err := tuple.FromFields(other, tuple.NewString("x"))
	require.NoError(t, err)

	err = p.Insert(tup)
	assert.ErrorIs(t, err, ErrPageFull)
	assert.ErrorIs(t, err, tuple.ErrSchemaMismatch)
	assert.Equal(t, p.NumSlots(), p.EmptySlots())
}

func TestHeapPageDelete(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 4096)
	tup := pair(t, schema, 1, 2)
	require.NoError(t, p.Insert(tup))
	rid, _ := tup.RecordID()

	require.NoError(t, p.Delete(rid))
	assert.ErrorIs(t, p.Delete(rid), ErrSlotNotOccupied)
	assert.ErrorIs(t, p.Delete(tuple.RecordID{Page: p.ID(), Slot: p.NumSlots()}), ErrSlotNotOccupied)
	assert.ErrorIs(t, p.Delete(tuple.RecordID{Page: p.ID(), Slot: -1}), ErrSlotNotOccupied)

	require.NoError(t, p.Insert(tup))
	elsewhere := tuple.RecordID{Page: tuple.PageID{Table: 7, Number: 4}, Slot: 0}
	assert.ErrorIs(t, p.Delete(elsewhere), ErrSlotNotOccupied)
}

func TestHeapPageIteratorSkipsDeleted(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 4096)
	var inserted []*tuple.Tuple
	for i := 0; i < 5; i++ {
		tup := pair(t, schema, int32(i), int32(i*10))
		require.NoError(t, p.Insert(tup))
		inserted = append(inserted, tup)
	}
	gone, _ := inserted[2].RecordID()
	require.NoError(t, p.Delete(gone))

	it := p.Iterator()
	var slots []int
	for it.HasNext() {
		tup, err := it.Next()
		require.NoError(t, err)
		rid, ok := tup.RecordID()
		require.True(t, ok)
		assert.NotEqual(t, gone, rid)
		slots = append(slots, rid.Slot)
	}
	assert.Equal(t, []int{0, 1, 3, 4}, slots)
	_, err := it.Next()
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)

	it.Rewind()
	require.True(t, it.HasNext())
	tup, err := it.Next()
	require.NoError(t, err)
	f, _ := tup.Field(0)
	assert.Equal(t, tuple.NewInt(0), f)
}

func TestHeapPageRoundTrip(t *testing.T) {
	schema := tuple.NewSchema([]tuple.Type{tuple.IntType, tuple.StringType}, []string{"id", "name"})
	p := emptyPage(t, schema, 4096)
	for i, name := range []string{"ada", "brian", "", "dennis"} {
		tup, err := tuple.FromFields(schema, tuple.NewInt(int32(i)), tuple.NewString(name))
		require.NoError(t, err)
		require.NoError(t, p.Insert(tup))
	}
	require.NoError(t, p.Delete(tuple.RecordID{Page: p.ID(), Slot: 1}))

	data := p.Data()
	require.Len(t, data, 4096)
	back, err := NewHeapPage(p.ID(), schema, 4096, data)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(data, back.Data()))
	for i := 0; i < p.NumSlots(); i++ {
		require.Equal(t, p.SlotUsed(i), back.SlotUsed(i), "slot %d", i)
	}

	a := p.Iterator()
	b := back.Iterator()
	for a.HasNext() {
		require.True(t, b.HasNext())
		ta, _ := a.Next()
		tb, _ := b.Next()
		assert.Equal(t, ta.String(), tb.String())
		ra, _ := ta.RecordID()
		rb, _ := tb.RecordID()
		assert.Equal(t, ra, rb)
	}
	assert.False(t, b.HasNext())
}

func TestHeapPageBitmapLayout(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 4096)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Insert(pair(t, schema, int32(i), 0)))
	}
	for slot := 1; slot <= 8; slot++ {
		require.NoError(t, p.Delete(tuple.RecordID{Page: p.ID(), Slot: slot}))
	}
	data := p.Data()
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, byte(0x02), data[1])

	// Slot 9 starts after the 63-byte header and nine 8-byte slots.
	off := HeaderSize(p.NumSlots()) + 9*schema.Size()
	assert.Equal(t, []byte{9, 0, 0, 0, 0, 0, 0, 0}, data[off:off+8])
	// Deleted slots are zero filled.
	off = HeaderSize(p.NumSlots()) + 4*schema.Size()
	assert.Equal(t, make([]byte, 8), data[off:off+8])
}

func TestHeapPageRejectsWrongSize(t *testing.T) {
	_, err := NewHeapPage(tuple.PageID{}, pairSchema(), 4096, make([]byte, 100))
	assert.ErrorIs(t, err, ErrIO)

	big := tuple.NewSchema([]tuple.Type{tuple.StringType}, []string{"s"})
	_, err = NewHeapPage(tuple.PageID{}, big, 64, make([]byte, 64))
	assert.Error(t, err)
}

func TestHeapPageDirtyTracking(t *testing.T) {
	p := emptyPage(t, pairSchema(), 4096)
	_, dirty := p.Dirtier()
	assert.False(t, dirty)

	p.MarkDirty(true, 42)
	id, dirty := p.Dirtier()
	assert.True(t, dirty)
	assert.EqualValues(t, 42, id)

	p.MarkDirty(false, 0)
	_, dirty = p.Dirtier()
	assert.False(t, dirty)
}

func TestHeapPageDataEncodesUnsetFieldsAsZero(t *testing.T) {
	schema := pairSchema()
	p := emptyPage(t, schema, 256)
	partial := tuple.New(schema)
	require.NoError(t, partial.SetField(0, tuple.NewInt(5)))
	require.NoError(t, p.Insert(partial))

	data := p.Data()
	require.Len(t, data, 256)
	hdr := HeaderSize(p.NumSlots())
	assert.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, data[hdr:hdr+schema.Size()])

	back, err := NewHeapPage(p.ID(), schema, 256, data)
	require.NoError(t, err)
	got, err := back.Iterator().Next()
	require.NoError(t, err)
	assert.Equal(t, "5\t0", got.String())
}
