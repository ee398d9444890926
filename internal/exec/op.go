// Package exec holds the pull-based operators: sequential scans and grouped
// aggregation.
package exec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/heapstore/internal/tuple"
)

// NoGrouping disables grouping when passed as the group-by field index.
const NoGrouping = -1

var (
	// ErrUnsupportedOperator reports an aggregate the value type cannot support.
	ErrUnsupportedOperator = errors.New("exec: unsupported aggregate operator")
	// ErrAggregatorFinalized reports a merge after results were produced.
	ErrAggregatorFinalized = errors.New("exec: aggregator already finalized")
)

// Op is an aggregate function.
type Op int

const (
	OpMin Op = iota
	OpMax
	OpSum
	OpAvg
	OpCount
)

func (o Op) String() string {
	switch o {
	case OpMin:
		return "MIN"
	case OpMax:
		return "MAX"
	case OpSum:
		return "SUM"
	case OpAvg:
		return "AVG"
	case OpCount:
		return "COUNT"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

func (o Op) valid() bool { return o >= OpMin && o <= OpCount }

// ParseOp accepts the operator name in any case.
func ParseOp(s string) (Op, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MIN":
		return OpMin, nil
	case "MAX":
		return OpMax, nil
	case "SUM":
		return OpSum, nil
	case "AVG":
		return OpAvg, nil
	case "COUNT":
		return OpCount, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
	}
}

// NameOfOp returns the display name used in result column headers.
func NameOfOp(o Op) string { return o.String() }

// OpIterator is an operator in a pull-based plan.
type OpIterator interface {
	tuple.Iterator
	Schema() *tuple.Schema
}
