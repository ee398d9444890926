package tuple

import "errors"

var (
	// ErrSchemaMismatch reports a tuple whose shape disagrees with a schema.
	ErrSchemaMismatch = errors.New("tuple: schema mismatch")
	// ErrNoSuchElement reports an out-of-range field or an exhausted iterator.
	ErrNoSuchElement = errors.New("tuple: no such element")
)

// ErrUnanchored reports a tuple that has no record id where one is required.
var ErrUnanchored = errors.New("tuple: tuple has no record id")
