package storage

import (
	"errors"
	"fmt"

	"github.com/example/heapstore/internal/tuple"
)

var (
	// ErrPageFull reports an insert into a page with no clear slot.
	ErrPageFull = errors.New("storage: page full")
	// ErrSlotNotOccupied reports a delete of a slot that holds no tuple.
	ErrSlotNotOccupied = errors.New("storage: slot not occupied")
	// ErrWrongTable reports a locator that belongs to another heap file.
	ErrWrongTable = errors.New("storage: record belongs to another table")
	// ErrPageOutOfRange reports a page number outside the file.
	ErrPageOutOfRange = errors.New("storage: page out of range")
	// ErrIO is matched by every backing-store failure.
	ErrIO = errors.New("storage: i/o failure")

	errShortPage = errors.New("storage: page buffer has wrong size")
)

// IOError describes a failed read or write of one page.
type IOError struct {
	Op   string
	Page tuple.PageID
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage: %s page %s: %v", e.Op, e.Page, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }
