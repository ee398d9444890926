package tuple_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/heapstore/internal/tuple"
)

func empSchema() *tuple.Schema {
	return tuple.NewSchema([]tuple.Type{tuple.StringType, tuple.IntType}, []string{"dept", "salary"})
}

func TestSchemaSizeAndLookup(t *testing.T) {
	s := empSchema()
	assert.Equal(t, 2, s.NumFields())
	assert.Equal(t, 4+tuple.StringLen+4, s.Size())

	idx, err := s.IndexOf("salary")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = s.IndexOf("missing")
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)
	_, err = s.FieldType(5)
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)
}

func TestSchemaEqualityIgnoresNames(t *testing.T) {
	a := empSchema()
	b := tuple.NewSchema([]tuple.Type{tuple.StringType, tuple.IntType}, nil)
	c := tuple.NewSchema([]tuple.Type{tuple.IntType, tuple.StringType}, []string{"dept", "salary"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(tuple.NewSchema([]tuple.Type{tuple.StringType}, nil)))
}

func TestMergePreservesOrder(t *testing.T) {
	a := tuple.NewSchema([]tuple.Type{tuple.IntType}, []string{"id"})
	merged := tuple.Merge(a, empSchema())

	require.Equal(t, 3, merged.NumFields())
	name, _ := merged.FieldName(0)
	assert.Equal(t, "id", name)
	name, _ = merged.FieldName(2)
	assert.Equal(t, "salary", name)
	assert.Equal(t, a.Size()+empSchema().Size(), merged.Size())
}

func TestSetFieldChecksType(t *testing.T) {
	tup := tuple.New(empSchema())
	require.NoError(t, tup.SetField(0, tuple.NewString("eng")))
	assert.ErrorIs(t, tup.SetField(1, tuple.NewString("oops")), tuple.ErrSchemaMismatch)
	assert.ErrorIs(t, tup.SetField(2, tuple.NewInt(1)), tuple.ErrNoSuchElement)

	_, err := tuple.FromFields(empSchema(), tuple.NewInt(1))
	assert.ErrorIs(t, err, tuple.ErrSchemaMismatch)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := empSchema()
	tup, err := tuple.FromFields(s, tuple.NewString("sales"), tuple.NewInt(-42))
	require.NoError(t, err)

	buf := make([]byte, s.Size())
	tup.Encode(buf)

	got, err := tuple.Decode(s, buf)
	require.NoError(t, err)
	assert.Equal(t, tup.Fields(), got.Fields())
}

func TestEncodePanicsOnShortBuffer(t *testing.T) {
	s := empSchema()
	tup, err := tuple.FromFields(s, tuple.NewString("ops"), tuple.NewInt(1))
	require.NoError(t, err)
	assert.Panics(t, func() { tup.Encode(make([]byte, s.Size()-1)) })
	assert.NotPanics(t, func() { tup.Encode(make([]byte, s.Size()+8)) })
}

func TestStringFieldTruncates(t *testing.T) {
	long := strings.Repeat("x", tuple.StringLen+10)
	f := tuple.NewString(long)
	assert.Len(t, f.Value, tuple.StringLen)
}

func TestFieldsAreStructuralMapKeys(t *testing.T) {
	m := map[tuple.Field]int{}
	m[tuple.NewInt(3)]++
	m[tuple.NewInt(3)]++
	m[tuple.NewString("3")]++
	assert.Equal(t, 2, m[tuple.NewInt(3)])
	assert.Len(t, m, 2)
}

func TestRecordIDEquality(t *testing.T) {
	a := tuple.RecordID{Page: tuple.PageID{Table: 9, Number: 1}, Slot: 4}
	b := tuple.RecordID{Page: tuple.PageID{Table: 9, Number: 1}, Slot: 4}
	c := tuple.RecordID{Page: tuple.PageID{Table: 9, Number: 2}, Slot: 4}
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	set := map[tuple.RecordID]bool{a: true}
	assert.True(t, set[b])
	assert.False(t, set[c])
}

func TestCompareOrdersNilFirst(t *testing.T) {
	assert.Negative(t, tuple.Compare(nil, tuple.NewInt(0)))
	assert.Negative(t, tuple.Compare(tuple.NewInt(-1), tuple.NewInt(0)))
	assert.Positive(t, tuple.Compare(tuple.NewString("b"), tuple.NewString("a")))
	assert.Zero(t, tuple.Compare(tuple.NewString("a"), tuple.NewString("a")))
}

func TestSliceIterator(t *testing.T) {
	s := tuple.NewSchema([]tuple.Type{tuple.IntType}, nil)
	var rows []*tuple.Tuple
	for i := int32(0); i < 3; i++ {
		r, err := tuple.FromFields(s, tuple.NewInt(i))
		require.NoError(t, err)
		rows = append(rows, r)
	}
	it := tuple.NewSliceIterator(s, rows)

	ok, err := it.HasNext()
	require.NoError(t, err)
	assert.False(t, ok, "closed iterator reports no tuples")

	got, err := tuple.Drain(it)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	require.NoError(t, it.Open())
	for range rows {
		_, err := it.Next()
		require.NoError(t, err)
	}
	_, err = it.Next()
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)

	require.NoError(t, it.Rewind())
	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "0", first.String())
}
