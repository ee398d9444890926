package tuple

// Iterator is the pull protocol shared by file scans, operators and
// aggregation results.
type Iterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*Tuple, error)
	Rewind() error
	Close()
}

// SliceIterator walks a materialised list of tuples.
type SliceIterator struct {
	schema *Schema
	tuples []*Tuple
	pos    int
	open   bool
}

// NewSliceIterator wraps tuples; the slice is not copied.
func NewSliceIterator(schema *Schema, tuples []*Tuple) *SliceIterator {
	return &SliceIterator{schema: schema, tuples: tuples}
}

// Schema returns the schema of the produced tuples.
func (it *SliceIterator) Schema() *Schema { return it.schema }

func (it *SliceIterator) Open() error {
	it.pos = 0
	it.open = true
	return nil
}

func (it *SliceIterator) HasNext() (bool, error) {
	return it.open && it.pos < len(it.tuples), nil
}

func (it *SliceIterator) Next() (*Tuple, error) {
	if !it.open || it.pos >= len(it.tuples) {
		return nil, ErrNoSuchElement
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}

func (it *SliceIterator) Rewind() error {
	it.Close()
	return it.Open()
}

func (it *SliceIterator) Close() {
	it.open = false
	it.pos = 0
}

// Drain opens it, collects every tuple and closes it again.
func Drain(it Iterator) ([]*Tuple, error) {
	if err := it.Open(); err != nil {
		return nil, err
	}
	defer it.Close()
	var out []*Tuple
	for {
		ok, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}
