package tuple

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// StringLen is the fixed payload width of a STRING field.
const StringLen = 128

// Type enumerates the supported field kinds.
type Type uint8

const (
	IntType Type = iota
	StringType
)

// Len returns the fixed on-page width of a field of this type.
func (t Type) Len() int {
	switch t {
	case IntType:
		return 4
	case StringType:
		return 4 + StringLen
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "INT"
	case StringType:
		return "STRING"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType maps a schema keyword onto a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return IntType, nil
	case "string", "varchar", "text":
		return StringType, nil
	default:
		return 0, fmt.Errorf("tuple: unknown type %q", s)
	}
}

// Decode reads one field of this type from the front of buf.
func (t Type) Decode(buf []byte) (Field, error) {
	if len(buf) < t.Len() {
		return nil, fmt.Errorf("tuple: truncated %s field (%d bytes)", t, len(buf))
	}
	switch t {
	case IntType:
		return IntField{Value: int32(binary.LittleEndian.Uint32(buf[:4]))}, nil
	case StringType:
		n := int(binary.LittleEndian.Uint32(buf[:4]))
		if n > StringLen {
			return nil, fmt.Errorf("tuple: string length %d exceeds %d", n, StringLen)
		}
		return StringField{Value: string(buf[4 : 4+n])}, nil
	default:
		return nil, fmt.Errorf("tuple: unsupported type %d", uint8(t))
	}
}

// Field is a single typed value. Implementations are comparable so they can be
// used directly as map keys.
type Field interface {
	Type() Type
	// Encode writes exactly Type().Len() bytes into buf.
	Encode(buf []byte)
	String() string
}

// IntField holds a 32-bit signed integer.
type IntField struct {
	Value int32
}

// NewInt builds an IntField.
func NewInt(v int32) IntField { return IntField{Value: v} }

func (f IntField) Type() Type { return IntType }

func (f IntField) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[:4], uint32(f.Value))
}

func (f IntField) String() string { return strconv.FormatInt(int64(f.Value), 10) }

// StringField holds a string of at most StringLen bytes.
type StringField struct {
	Value string
}

// NewString builds a StringField, truncating to StringLen bytes.
func NewString(s string) StringField {
	if len(s) > StringLen {
		s = s[:StringLen]
	}
	return StringField{Value: s}
}

func (f StringField) Type() Type { return StringType }

func (f StringField) Encode(buf []byte) {
	s := f.Value
	if len(s) > StringLen {
		s = s[:StringLen]
	}
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(s)))
	n := copy(buf[4:4+StringLen], s)
	for i := 4 + n; i < 4+StringLen; i++ {
		buf[i] = 0
	}
}

func (f StringField) String() string { return f.Value }

// Compare orders two fields. Nil sorts first, then fields of a lower Type,
// then by value.
func Compare(a, b Field) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case IntField:
		bv := b.(IntField)
		switch {
		case av.Value < bv.Value:
			return -1
		case av.Value > bv.Value:
			return 1
		default:
			return 0
		}
	case StringField:
		return strings.Compare(av.Value, b.(StringField).Value)
	default:
		return strings.Compare(a.String(), b.String())
	}
}

// ParseField converts text into a field of the given type.
func ParseField(t Type, s string) (Field, error) {
	switch t {
	case IntType:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tuple: invalid INT literal %q", s)
		}
		return IntField{Value: int32(v)}, nil
	case StringType:
		return NewString(s), nil
	default:
		return nil, fmt.Errorf("tuple: unsupported type %d", uint8(t))
	}
}
