package tuple

import (
	"fmt"
	"strings"
)

// FieldDesc describes one column of a schema. Name may be empty.
type FieldDesc struct {
	Type Type
	Name string
}

// Schema is an immutable, ordered list of field descriptors.
type Schema struct {
	fields []FieldDesc
	size   int
}

// NewSchema builds a schema from parallel type and name slices. names may be
// nil or shorter than types; missing names are left empty.
func NewSchema(types []Type, names []string) *Schema {
	fields := make([]FieldDesc, len(types))
	for i, t := range types {
		fields[i].Type = t
		if i < len(names) {
			fields[i].Name = names[i]
		}
	}
	return newSchema(fields)
}

// NewSchemaFromFields builds a schema from descriptors.
func NewSchemaFromFields(fields ...FieldDesc) *Schema {
	cp := make([]FieldDesc, len(fields))
	copy(cp, fields)
	return newSchema(cp)
}

func newSchema(fields []FieldDesc) *Schema {
	size := 0
	for _, f := range fields {
		size += f.Type.Len()
	}
	return &Schema{fields: fields, size: size}
}

// Merge concatenates two schemas, a's fields first.
func Merge(a, b *Schema) *Schema {
	fields := make([]FieldDesc, 0, len(a.fields)+len(b.fields))
	fields = append(fields, a.fields...)
	fields = append(fields, b.fields...)
	return newSchema(fields)
}

// NumFields returns the number of columns.
func (s *Schema) NumFields() int { return len(s.fields) }

// Size returns the fixed encoded width of a tuple with this schema.
func (s *Schema) Size() int { return s.size }

// FieldType returns the type of column i.
func (s *Schema) FieldType(i int) (Type, error) {
	if i < 0 || i >= len(s.fields) {
		return 0, fmt.Errorf("%w: field %d of %d", ErrNoSuchElement, i, len(s.fields))
	}
	return s.fields[i].Type, nil
}

// FieldName returns the name of column i, which may be empty.
func (s *Schema) FieldName(i int) (string, error) {
	if i < 0 || i >= len(s.fields) {
		return "", fmt.Errorf("%w: field %d of %d", ErrNoSuchElement, i, len(s.fields))
	}
	return s.fields[i].Name, nil
}

// IndexOf returns the position of the first column with the given name.
func (s *Schema) IndexOf(name string) (int, error) {
	if name != "" {
		for i, f := range s.fields {
			if f.Name == name {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: no field named %q", ErrNoSuchElement, name)
}

// Fields returns a copy of the descriptors.
func (s *Schema) Fields() []FieldDesc {
	out := make([]FieldDesc, len(s.fields))
	copy(out, s.fields)
	return out
}

// Equal compares column count and positional types; names are ignored.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Type != o.fields[i].Type {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = fmt.Sprintf("%s(%s)", f.Name, f.Type)
	}
	return strings.Join(parts, ", ")
}
