package txn

import (
	"sync"
	"time"

	"github.com/example/heapstore/internal/tuple"
)

// ID uniquely identifies a transaction. It is the lock-holder key.
type ID uint64

// State represents the lifecycle state of a transaction.
type State int

const (
	// StateActive indicates the transaction is currently running.
	StateActive State = iota
	// StateCommitted indicates the transaction has been committed.
	StateCommitted
	// StateRolledBack indicates the transaction has been rolled back.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// HeldLock records a granted lock for inspection and diagnostics.
type HeldLock struct {
	Page tuple.PageID
	Mode LockMode
}

// Transaction represents a unit of work executed against the database.
type Transaction struct {
	mu        sync.Mutex
	id        ID
	state     State
	startTime time.Time
	locks     []HeldLock
}

func newTransaction(id ID) *Transaction {
	return &Transaction{
		id:        id,
		state:     StateActive,
		startTime: time.Now(),
	}
}

// ID returns the identifier of the transaction.
func (tx *Transaction) ID() ID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.id
}

// State returns the current lifecycle state of the transaction.
func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

func (tx *Transaction) setState(state State) {
	tx.mu.Lock()
	tx.state = state
	tx.mu.Unlock()
}

// StartTime returns the timestamp when the transaction began.
func (tx *Transaction) StartTime() time.Time {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.startTime
}

func (tx *Transaction) recordLock(page tuple.PageID, mode LockMode) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for i := range tx.locks {
		if tx.locks[i].Page == page {
			if mode > tx.locks[i].Mode {
				tx.locks[i].Mode = mode
			}
			return
		}
	}
	tx.locks = append(tx.locks, HeldLock{Page: page, Mode: mode})
}

func (tx *Transaction) clearLocks() {
	tx.mu.Lock()
	tx.locks = nil
	tx.mu.Unlock()
}

// Locks returns a snapshot of locks held by the transaction.
func (tx *Transaction) Locks() []HeldLock {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.locks) == 0 {
		return nil
	}
	out := make([]HeldLock, len(tx.locks))
	copy(out, tx.locks)
	return out
}
