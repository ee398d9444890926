package exec

import (
	"fmt"
	"math"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/example/heapstore/internal/tuple"
)

// State is the lifecycle phase of an Aggregator.
type State int

const (
	// StateAccumulating accepts merges.
	StateAccumulating State = iota
	// StateFinalized serves results; merges fail until Reset.
	StateFinalized
)

func (s State) String() string {
	if s == StateFinalized {
		return "finalized"
	}
	return "accumulating"
}

type valueKind int

const (
	integerValues valueKind = iota
	stringValues
)

// group is the running state of one group key.
type group struct {
	key   tuple.Field
	value int64
	count int64
}

func groupLess(a, b *group) bool { return tuple.Compare(a.key, b.key) < 0 }

// Aggregator folds tuples into per-group aggregates. The value kind is fixed
// at construction: integer values support every Op, string values only
// COUNT. Results come out in ascending group key order. An Aggregator is not
// safe for concurrent use.
type Aggregator struct {
	kind    valueKind
	gbField int
	gbType  tuple.Type
	aField  int
	op      Op
	schema  *tuple.Schema
	groups  *btree.BTreeG[*group]
	state   State
}

// Option configures an Aggregator.
type Option func(*aggOptions)

type aggOptions struct {
	groupName string
	aggName   string
}

// WithResultNames names the output columns.
func WithResultNames(groupName, aggName string) Option {
	return func(o *aggOptions) {
		o.groupName = groupName
		o.aggName = aggName
	}
}

// NewIntegerAggregator aggregates INT values of field aField.
func NewIntegerAggregator(gbField int, gbType tuple.Type, aField int, op Op, opts ...Option) (*Aggregator, error) {
	return newAggregator(integerValues, gbField, gbType, aField, op, opts)
}

// NewStringAggregator counts STRING values of field aField. Any operator
// other than OpCount fails with ErrUnsupportedOperator.
func NewStringAggregator(gbField int, gbType tuple.Type, aField int, op Op, opts ...Option) (*Aggregator, error) {
	if op != OpCount {
		return nil, fmt.Errorf("%w: %s over STRING values", ErrUnsupportedOperator, op)
	}
	return newAggregator(stringValues, gbField, gbType, aField, op, opts)
}

// NewAggregator picks the variant for values of type aType.
func NewAggregator(aType tuple.Type, gbField int, gbType tuple.Type, aField int, op Op, opts ...Option) (*Aggregator, error) {
	switch aType {
	case tuple.IntType:
		return NewIntegerAggregator(gbField, gbType, aField, op, opts...)
	case tuple.StringType:
		return NewStringAggregator(gbField, gbType, aField, op, opts...)
	default:
		return nil, fmt.Errorf("%w: values of type %s", ErrUnsupportedOperator, aType)
	}
}

func newAggregator(kind valueKind, gbField int, gbType tuple.Type, aField int, op Op, opts []Option) (*Aggregator, error) {
	if !op.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
	if aField < 0 || gbField < NoGrouping {
		return nil, fmt.Errorf("exec: invalid field index (group %d, aggregate %d)", gbField, aField)
	}
	o := aggOptions{groupName: "group", aggName: op.String()}
	for _, opt := range opts {
		opt(&o)
	}
	var schema *tuple.Schema
	if gbField == NoGrouping {
		schema = tuple.NewSchema([]tuple.Type{tuple.IntType}, []string{o.aggName})
	} else {
		schema = tuple.NewSchema([]tuple.Type{gbType, tuple.IntType}, []string{o.groupName, o.aggName})
	}
	return &Aggregator{
		kind:    kind,
		gbField: gbField,
		gbType:  gbType,
		aField:  aField,
		op:      op,
		schema:  schema,
		groups:  btree.NewG(8, groupLess),
	}, nil
}

// Schema returns the shape of result tuples.
func (a *Aggregator) Schema() *tuple.Schema { return a.schema }

// State returns the lifecycle phase.
func (a *Aggregator) State() State { return a.state }

// Op returns the aggregate function.
func (a *Aggregator) Op() Op { return a.op }

// Merge folds t into the group selected by its group-by value.
func (a *Aggregator) Merge(t *tuple.Tuple) error {
	if a.state != StateAccumulating {
		return ErrAggregatorFinalized
	}
	var key tuple.Field
	if a.gbField != NoGrouping {
		f, err := t.Field(a.gbField)
		if err != nil {
			return err
		}
		if f == nil || f.Type() != a.gbType {
			return fmt.Errorf("%w: group field %d is not %s", tuple.ErrSchemaMismatch, a.gbField, a.gbType)
		}
		key = f
	}

	var v int64
	f, err := t.Field(a.aField)
	if err != nil {
		return err
	}
	switch a.kind {
	case integerValues:
		iv, ok := f.(tuple.IntField)
		if !ok {
			return fmt.Errorf("%w: aggregate field %d is not INT", tuple.ErrSchemaMismatch, a.aField)
		}
		v = int64(iv.Value)
	case stringValues:
		if _, ok := f.(tuple.StringField); !ok {
			return fmt.Errorf("%w: aggregate field %d is not STRING", tuple.ErrSchemaMismatch, a.aField)
		}
	}

	g, ok := a.groups.Get(&group{key: key})
	if !ok {
		g = &group{key: key, value: a.initial()}
		a.groups.ReplaceOrInsert(g)
	}
	g.count++
	switch a.op {
	case OpMin:
		g.value = min(g.value, v)
	case OpMax:
		g.value = max(g.value, v)
	case OpSum, OpAvg:
		g.value += v
	}
	return nil
}

func (a *Aggregator) initial() int64 {
	switch a.op {
	case OpMin:
		return math.MaxInt32
	case OpMax:
		return math.MinInt32
	default:
		return 0
	}
}

func (a *Aggregator) result(g *group) int32 {
	switch a.op {
	case OpCount:
		return int32(g.count)
	case OpAvg:
		q, _ := decimal.NewFromInt(g.value).QuoRem(decimal.NewFromInt(g.count), 0)
		return int32(q.IntPart())
	default:
		return int32(g.value)
	}
}

// Iterator finalizes the aggregator and returns an unopened iterator over
// one tuple per group. Every call builds a fresh, independent iterator.
func (a *Aggregator) Iterator() *tuple.SliceIterator {
	a.state = StateFinalized
	out := make([]*tuple.Tuple, 0, a.groups.Len())
	a.groups.Ascend(func(g *group) bool {
		t := tuple.New(a.schema)
		val := tuple.NewInt(a.result(g))
		if a.gbField == NoGrouping {
			_ = t.SetField(0, val)
		} else {
			_ = t.SetField(0, g.key)
			_ = t.SetField(1, val)
		}
		out = append(out, t)
		return true
	})
	return tuple.NewSliceIterator(a.schema, out)
}

// Reset drops every group and accepts merges again.
func (a *Aggregator) Reset() {
	a.groups.Clear(false)
	a.state = StateAccumulating
}
