package exec

import (
	"fmt"

	"github.com/example/heapstore/internal/tuple"
)

// Aggregate computes one aggregate over its child, optionally grouped by a
// single field. The child is drained on the first pull.
type Aggregate struct {
	child   OpIterator
	aField  int
	gField  int
	op      Op
	agg     *Aggregator
	results *tuple.SliceIterator
	next    *tuple.Tuple
	open    bool
}

// NewAggregate builds an aggregate of field aField grouped by gField, which
// may be NoGrouping.
func NewAggregate(child OpIterator, aField, gField int, op Op) (*Aggregate, error) {
	if child == nil {
		return nil, fmt.Errorf("exec: aggregate needs a child")
	}
	schema := child.Schema()
	aType, err := schema.FieldType(aField)
	if err != nil {
		return nil, fmt.Errorf("exec: aggregate field: %w", err)
	}
	if gField != NoGrouping {
		if _, err := schema.FieldType(gField); err != nil {
			return nil, fmt.Errorf("exec: group field: %w", err)
		}
	}
	if !op.valid() || (aType == tuple.StringType && op != OpCount) {
		return nil, fmt.Errorf("%w: %s over %s values", ErrUnsupportedOperator, op, aType)
	}
	return &Aggregate{child: child, aField: aField, gField: gField, op: op}, nil
}

// GroupField returns the group-by field index or NoGrouping.
func (a *Aggregate) GroupField() int { return a.gField }

// GroupFieldName returns the input name of the group-by field, or "" when
// ungrouped.
func (a *Aggregate) GroupFieldName() string {
	if a.gField == NoGrouping {
		return ""
	}
	name, _ := a.child.Schema().FieldName(a.gField)
	return name
}

// AggregateField returns the aggregated field index.
func (a *Aggregate) AggregateField() int { return a.aField }

// AggregateFieldName returns the input name of the aggregated field.
func (a *Aggregate) AggregateFieldName() string {
	name, _ := a.child.Schema().FieldName(a.aField)
	return name
}

// AggregateOp returns the aggregate function.
func (a *Aggregate) AggregateOp() Op { return a.op }

func (a *Aggregate) columnName() string {
	return fmt.Sprintf("%s(%s)", NameOfOp(a.op), a.AggregateFieldName())
}

// Schema returns the group-by field as declared by the child followed by
// the aggregate column, or the aggregate column alone when ungrouped.
func (a *Aggregate) Schema() *tuple.Schema {
	agg := tuple.FieldDesc{Type: tuple.IntType, Name: a.columnName()}
	if a.gField == NoGrouping {
		return tuple.NewSchemaFromFields(agg)
	}
	in := a.child.Schema()
	gType, _ := in.FieldType(a.gField)
	return tuple.NewSchemaFromFields(tuple.FieldDesc{Type: gType, Name: a.GroupFieldName()}, agg)
}

// Children returns the single input operator.
func (a *Aggregate) Children() []OpIterator { return []OpIterator{a.child} }

// SetChildren replaces the input operator.
func (a *Aggregate) SetChildren(children ...OpIterator) {
	if len(children) > 0 {
		a.child = children[0]
	}
}

// Open opens the child. Aggregation is deferred to the first pull.
func (a *Aggregate) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	a.open = true
	a.discard()
	return nil
}

func (a *Aggregate) discard() {
	a.agg = nil
	a.results = nil
	a.next = nil
}

func (a *Aggregate) build() error {
	in := a.child.Schema()
	aType, err := in.FieldType(a.aField)
	if err != nil {
		return err
	}
	var gType tuple.Type
	if a.gField != NoGrouping {
		if gType, err = in.FieldType(a.gField); err != nil {
			return err
		}
	}
	agg, err := NewAggregator(aType, a.gField, gType, a.aField, a.op,
		WithResultNames(a.GroupFieldName(), a.columnName()))
	if err != nil {
		return err
	}
	for {
		ok, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		if err := agg.Merge(t); err != nil {
			return err
		}
	}
	a.agg = agg
	a.results = agg.Iterator()
	return a.results.Open()
}

// FetchNext returns the next result tuple, or nil once results are exhausted.
func (a *Aggregate) FetchNext() (*tuple.Tuple, error) {
	if !a.open {
		return nil, nil
	}
	if a.results == nil {
		if err := a.build(); err != nil {
			return nil, err
		}
	}
	ok, _ := a.results.HasNext()
	if !ok {
		return nil, nil
	}
	return a.results.Next()
}

// HasNext reports whether another result tuple exists.
func (a *Aggregate) HasNext() (bool, error) {
	if a.next == nil {
		t, err := a.FetchNext()
		if err != nil {
			return false, err
		}
		a.next = t
	}
	return a.next != nil, nil
}

// Next returns the next result tuple, or tuple.ErrNoSuchElement.
func (a *Aggregate) Next() (*tuple.Tuple, error) {
	ok, err := a.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tuple.ErrNoSuchElement
	}
	t := a.next
	a.next = nil
	return t, nil
}

// Rewind rewinds the child and forgets the results so the next pull
// aggregates again.
func (a *Aggregate) Rewind() error {
	if err := a.child.Rewind(); err != nil {
		return err
	}
	a.discard()
	return nil
}

// Close closes the child.
func (a *Aggregate) Close() {
	a.child.Close()
	a.open = false
	a.discard()
}
