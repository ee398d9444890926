package exec_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/heapstore/internal/bufferpool"
	"github.com/example/heapstore/internal/catalog"
	"github.com/example/heapstore/internal/exec"
	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/storage"
	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

// countingIterator records how often its tuples are pulled.
type countingIterator struct {
	*tuple.SliceIterator
	pulls   int
	rewinds int
}

func (c *countingIterator) Next() (*tuple.Tuple, error) {
	c.pulls++
	return c.SliceIterator.Next()
}

func (c *countingIterator) Rewind() error {
	c.rewinds++
	return c.SliceIterator.Rewind()
}

func source(t *testing.T) *countingIterator {
	return &countingIterator{SliceIterator: tuple.NewSliceIterator(empSchema(), employees(t))}
}

func TestAggregateGroupedSum(t *testing.T) {
	agg, err := exec.NewAggregate(source(t), 1, 0, exec.OpSum)
	require.NoError(t, err)

	schema := agg.Schema()
	require.Equal(t, 2, schema.NumFields())
	name0, _ := schema.FieldName(0)
	name1, _ := schema.FieldName(1)
	assert.Equal(t, "dept", name0)
	assert.Equal(t, "SUM(salary)", name1)
	typ0, _ := schema.FieldType(0)
	assert.Equal(t, tuple.StringType, typ0)

	rows := results(t, agg)
	assert.ElementsMatch(t, []string{"eng\t300", "sales\t50"}, rows)
}

func TestAggregateUngrouped(t *testing.T) {
	agg, err := exec.NewAggregate(source(t), 1, exec.NoGrouping, exec.OpCount)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Schema().NumFields())
	assert.Equal(t, "", agg.GroupFieldName())
	assert.Equal(t, []string{"3"}, results(t, agg))
}

func TestAggregateStringCount(t *testing.T) {
	agg, err := exec.NewAggregate(source(t), 0, exec.NoGrouping, exec.OpCount)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, results(t, agg))

	_, err = exec.NewAggregate(source(t), 0, exec.NoGrouping, exec.OpAvg)
	assert.ErrorIs(t, err, exec.ErrUnsupportedOperator)
}

func TestAggregateRejectsBadFields(t *testing.T) {
	_, err := exec.NewAggregate(source(t), 9, exec.NoGrouping, exec.OpSum)
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)
	_, err = exec.NewAggregate(source(t), 1, 4, exec.OpSum)
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)
	_, err = exec.NewAggregate(nil, 1, 0, exec.OpSum)
	assert.Error(t, err)
}

func TestAggregateFetchNextAfterExhaustion(t *testing.T) {
	agg, err := exec.NewAggregate(source(t), 1, 0, exec.OpMax)
	require.NoError(t, err)
	require.NoError(t, agg.Open())
	defer agg.Close()

	for i := 0; i < 2; i++ {
		tup, err := agg.FetchNext()
		require.NoError(t, err)
		require.NotNil(t, tup)
	}
	for i := 0; i < 3; i++ {
		tup, err := agg.FetchNext()
		require.NoError(t, err)
		assert.Nil(t, tup)
	}
	ok, err := agg.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = agg.Next()
	assert.ErrorIs(t, err, tuple.ErrNoSuchElement)
}

func TestAggregateRewindReaggregates(t *testing.T) {
	src := source(t)
	agg, err := exec.NewAggregate(src, 1, 0, exec.OpAvg)
	require.NoError(t, err)
	require.NoError(t, agg.Open())
	defer agg.Close()

	first, err := agg.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, src.pulls)

	require.NoError(t, agg.Rewind())
	assert.Equal(t, 1, src.rewinds)
	again, err := agg.Next()
	require.NoError(t, err)
	assert.Equal(t, 6, src.pulls)
	assert.Equal(t, first.String(), again.String())
}

func TestAggregateAccessors(t *testing.T) {
	src := source(t)
	agg, err := exec.NewAggregate(src, 1, 0, exec.OpMin)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.GroupField())
	assert.Equal(t, "dept", agg.GroupFieldName())
	assert.Equal(t, 1, agg.AggregateField())
	assert.Equal(t, "salary", agg.AggregateFieldName())
	assert.Equal(t, exec.OpMin, agg.AggregateOp())
	require.Len(t, agg.Children(), 1)

	other := tuple.NewSliceIterator(empSchema(), []*tuple.Tuple{emp(t, "ops", 1)})
	agg.SetChildren(other)
	assert.Equal(t, []string{"ops\t1"}, results(t, agg))
}

type table struct {
	file *storage.HeapFile
	pool *bufferpool.BufferPool
	txns *txn.Manager
}

func newTable(t *testing.T) *table {
	t.Helper()
	cat := catalog.New()
	t.Cleanup(func() { _ = cat.Close() })
	locks := txn.NewLockManager(0)
	pool := bufferpool.New(16, cat, locks)
	txns := txn.NewManager(locks)
	txns.OnComplete(pool.TransactionComplete)

	hf, err := storage.OpenHeapFile(filepath.Join(t.TempDir(), "emp.dat"), empSchema(), pool, 4096)
	require.NoError(t, err)
	require.NoError(t, cat.AddTable(hf, "emp", ""))

	tx := txns.Begin()
	for _, tup := range employees(t) {
		require.NoError(t, pool.InsertTuple(context.Background(), tx, hf.ID(), tup))
	}
	require.NoError(t, txns.Commit(tx.ID()))
	return &table{file: hf, pool: pool, txns: txns}
}

func TestSeqScanWithAlias(t *testing.T) {
	tbl := newTable(t)
	tx := tbl.txns.Begin()
	defer func() { require.NoError(t, tbl.txns.Commit(tx.ID())) }()

	scan := exec.NewSeqScan(context.Background(), tx, tbl.file, "e")
	name, err := scan.Schema().FieldName(1)
	require.NoError(t, err)
	assert.Equal(t, "e.salary", name)

	rows, err := tuple.Drain(scan)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	rid, ok := rows[2].RecordID()
	require.True(t, ok)
	assert.Equal(t, 2, rid.Slot)
	idx, err := rows[0].Schema().IndexOf("e.dept")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestAggregateOverSeqScan(t *testing.T) {
	tbl := newTable(t)
	tx := tbl.txns.Begin()
	defer func() { require.NoError(t, tbl.txns.Commit(tx.ID())) }()

	scan := exec.NewSeqScan(context.Background(), tx, tbl.file, "")
	agg, err := exec.NewAggregate(scan, 1, 0, exec.OpAvg)
	require.NoError(t, err)
	assert.Equal(t, []string{"eng\t150", "sales\t50"}, results(t, agg))

	plan := exec.Explain(agg)
	require.Equal(t, "Aggregate", plan.Root.Name)
	assert.Equal(t, "AVG", plan.Root.Detail["op"])
	assert.Equal(t, "dept", plan.Root.Detail["group_by"])
	require.Len(t, plan.Root.Children, 1)
	assert.Equal(t, "SeqScan", plan.Root.Children[0].Name)

	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"SeqScan"`)
}
