package tuple

import (
	"fmt"
	"strings"
)

// Tuple is one row of field values shaped by a schema, optionally anchored to
// an on-disk location.
type Tuple struct {
	schema *Schema
	fields []Field
	rid    *RecordID
}

// New allocates an unanchored tuple with all fields unset.
func New(schema *Schema) *Tuple {
	return &Tuple{schema: schema, fields: make([]Field, schema.NumFields())}
}

// FromFields builds a tuple and type-checks every value.
func FromFields(schema *Schema, fields ...Field) (*Tuple, error) {
	if len(fields) != schema.NumFields() {
		return nil, fmt.Errorf("%w: %d values for %d fields", ErrSchemaMismatch, len(fields), schema.NumFields())
	}
	t := New(schema)
	for i, f := range fields {
		if err := t.SetField(i, f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Schema returns the schema fixed at construction.
func (t *Tuple) Schema() *Schema { return t.schema }

// Field returns value i, or nil if it was never set.
func (t *Tuple) Field(i int) (Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, fmt.Errorf("%w: field %d of %d", ErrNoSuchElement, i, len(t.fields))
	}
	return t.fields[i], nil
}

// SetField replaces value i. The value's type must match the schema.
func (t *Tuple) SetField(i int, f Field) error {
	want, err := t.schema.FieldType(i)
	if err != nil {
		return err
	}
	if f != nil && f.Type() != want {
		return fmt.Errorf("%w: field %d is %s, got %s", ErrSchemaMismatch, i, want, f.Type())
	}
	t.fields[i] = f
	return nil
}

// Fields returns a copy of the values.
func (t *Tuple) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// RecordID returns the locator and whether the tuple is anchored.
func (t *Tuple) RecordID() (RecordID, bool) {
	if t.rid == nil {
		return RecordID{}, false
	}
	return *t.rid, true
}

// SetRecordID anchors the tuple.
func (t *Tuple) SetRecordID(rid RecordID) {
	r := rid
	t.rid = &r
}

// ClearRecordID makes the tuple unanchored again.
func (t *Tuple) ClearRecordID() { t.rid = nil }

// Clone copies values and locator; the schema is shared.
func (t *Tuple) Clone() *Tuple {
	c := &Tuple{schema: t.schema, fields: t.Fields()}
	if t.rid != nil {
		r := *t.rid
		c.rid = &r
	}
	return c
}

// Encode writes the fixed-width image of the tuple into buf. Unset fields
// encode as zero bytes. Like encoding/binary it panics when buf is shorter
// than Schema().Size().
func (t *Tuple) Encode(buf []byte) {
	if len(buf) < t.schema.Size() {
		panic(fmt.Sprintf("tuple: buffer of %d bytes cannot hold %d", len(buf), t.schema.Size()))
	}
	pos := 0
	for i, f := range t.fields {
		width := t.schema.fields[i].Type.Len()
		if f == nil {
			clear(buf[pos : pos+width])
		} else {
			f.Encode(buf[pos : pos+width])
		}
		pos += width
	}
}

// Decode reads a tuple image produced by Encode.
func Decode(schema *Schema, buf []byte) (*Tuple, error) {
	if len(buf) < schema.Size() {
		return nil, fmt.Errorf("tuple: truncated record (%d of %d bytes)", len(buf), schema.Size())
	}
	t := New(schema)
	pos := 0
	for i, fd := range schema.fields {
		f, err := fd.Type.Decode(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("tuple: decode field %d: %w", i, err)
		}
		t.fields[i] = f
		pos += fd.Type.Len()
	}
	return t, nil
}

// String renders the values tab separated.
func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = f.String()
	}
	return strings.Join(parts, "\t")
}
