package txn

import (
	"errors"
	"sync"

	"github.com/example/heapstore/internal/logging"
)

// ErrNotActive indicates the provided transaction identifier is not currently active.
var ErrNotActive = errors.New("txn: transaction not active")

// CompletionHook runs when a transaction finishes, before its locks are
// released. commit is false for rollbacks.
type CompletionHook func(id ID, commit bool) error

// Manager coordinates transaction lifecycles.
type Manager struct {
	mu      sync.Mutex
	nextID  ID
	active  map[ID]*Transaction
	lockMgr *LockManager
	hooks   []CompletionHook
}

// NewManager constructs a Manager using the provided lock manager.
func NewManager(lockMgr *LockManager) *Manager {
	return &Manager{
		nextID:  1,
		active:  make(map[ID]*Transaction),
		lockMgr: lockMgr,
	}
}

// OnComplete registers a hook run on every commit and rollback.
func (m *Manager) OnComplete(hook CompletionHook) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

// Begin starts a new transaction and returns it.
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	tx := newTransaction(id)
	m.active[id] = tx
	return tx
}

// Commit finalises the transaction, releasing any held locks.
func (m *Manager) Commit(id ID) error {
	return m.finish(id, true)
}

// Rollback aborts the transaction and releases its locks.
func (m *Manager) Rollback(id ID) error {
	return m.finish(id, false)
}

func (m *Manager) finish(id ID, commit bool) error {
	tx, err := m.remove(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	hooks := make([]CompletionHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	var errs []error
	for _, hook := range hooks {
		if err := hook(id, commit); err != nil {
			errs = append(errs, err)
		}
	}
	if commit {
		tx.setState(StateCommitted)
	} else {
		tx.setState(StateRolledBack)
	}
	if m.lockMgr != nil {
		m.lockMgr.ReleaseAll(id)
	}
	tx.clearLocks()
	if len(errs) > 0 {
		logging.WithTx("txn", uint64(id)).Error("transaction completion failed", "commit", commit, "err", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

// Lookup returns the active transaction for the given identifier.
func (m *Manager) Lookup(id ID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[id]
	return tx, ok
}

// IsActive reports whether id belongs to a running transaction.
func (m *Manager) IsActive(id ID) bool {
	_, ok := m.Lookup(id)
	return ok
}

func (m *Manager) remove(id ID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[id]
	if !ok {
		return nil, ErrNotActive
	}
	delete(m.active, id)
	return tx, nil
}
