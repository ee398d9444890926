package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/tuple"
)

// LockMode represents the kind of lock requested on a page.
type LockMode int

const (
	// LockModeShared allows concurrent readers.
	LockModeShared LockMode = iota
	// LockModeExclusive provides exclusive access to the page.
	LockModeExclusive
)

func (m LockMode) String() string {
	if m == LockModeExclusive {
		return "exclusive"
	}
	return "shared"
}

// LockTimeoutError indicates a lock request gave up waiting.
type LockTimeoutError struct {
	Page tuple.PageID
	Mode LockMode
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("txn: %s lock timeout on page %s", e.Mode, e.Page)
}

func (e *LockTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ErrTxnRequired indicates Acquire was invoked without a transaction context.
var ErrTxnRequired = errors.New("txn: lock requires active transaction")

// grant is the outcome of evaluating a lock request against current holders.
type grant int

const (
	grantWait grant = iota
	grantNew
	grantHeld
	grantUpgrade
)

// waiter is a blocked request in a page's arrival queue.
type waiter struct {
	id   ID
	mode LockMode
}

func compatible(a, b LockMode) bool {
	return a == LockModeShared && b == LockModeShared
}

// decide evaluates a request without side effects. holders maps every
// transaction holding the page to its mode; queue lists blocked requests in
// arrival order. A request that does not hold the page waits behind any
// earlier queued request it conflicts with. Holders are never queued behind
// others so an upgrade cannot deadlock on the queue.
func decide(holders map[ID]LockMode, queue []waiter, requester ID, mode LockMode) grant {
	if current, ok := holders[requester]; ok {
		if current == LockModeExclusive || mode == LockModeShared {
			return grantHeld
		}
		if len(holders) == 1 {
			return grantUpgrade
		}
		return grantWait
	}
	for _, w := range queue {
		if w.id == requester {
			break
		}
		if !compatible(w.mode, mode) {
			return grantWait
		}
	}
	for _, m := range holders {
		if !compatible(m, mode) {
			return grantWait
		}
	}
	return grantNew
}

// LockManager coordinates page-level locks for transactions using strict
// two-phase locking: locks are only dropped by Release or ReleaseAll.
type LockManager struct {
	mu      sync.Mutex
	locks   map[tuple.PageID]map[ID]LockMode
	queues  map[tuple.PageID][]waiter
	held    map[ID]map[tuple.PageID]struct{}
	wake    chan struct{}
	timeout time.Duration
	log     *slog.Logger
}

// NewLockManager creates a lock manager. A zero timeout makes Acquire wait
// until the lock is granted or its context ends.
func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		locks:   make(map[tuple.PageID]map[ID]LockMode),
		queues:  make(map[tuple.PageID][]waiter),
		held:    make(map[ID]map[tuple.PageID]struct{}),
		wake:    make(chan struct{}),
		timeout: timeout,
		log:     logging.WithComponent("lockmgr"),
	}
}

// Acquire requests the lock for the transaction, blocking until it is granted,
// the timeout expires or ctx is done.
func (lm *LockManager) Acquire(ctx context.Context, tx *Transaction, page tuple.PageID, mode LockMode) error {
	if tx == nil {
		return ErrTxnRequired
	}
	if lm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lm.timeout)
		defer cancel()
	}
	id := tx.ID()
	waited := false
	for {
		granted, wake := lm.tryAcquire(id, page, mode)
		if granted {
			tx.recordLock(page, mode)
			if waited {
				lm.log.Debug("lock granted after wait", "tx_id", uint64(id), "page", page.String(), "mode", mode.String())
			}
			return nil
		}
		if !waited {
			lm.log.Debug("lock wait", "tx_id", uint64(id), "page", page.String(), "mode", mode.String())
			waited = true
		}
		select {
		case <-wake:
		case <-ctx.Done():
			lm.abandon(id, page)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &LockTimeoutError{Page: page, Mode: mode}
			}
			return ctx.Err()
		}
	}
}

func (lm *LockManager) tryAcquire(id ID, page tuple.PageID, mode LockMode) (bool, <-chan struct{}) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	holders := lm.locks[page]
	switch decide(holders, lm.queues[page], id, mode) {
	case grantHeld:
		return true, nil
	case grantNew, grantUpgrade:
		if holders == nil {
			holders = make(map[ID]LockMode)
			lm.locks[page] = holders
		}
		holders[id] = mode
		lm.trackHeld(id, page)
		if lm.dequeueLocked(id, page) {
			lm.notifyLocked()
		}
		return true, nil
	default:
		lm.enqueueLocked(id, page, mode)
		return false, lm.wake
	}
}

// enqueueLocked appends the request unless the transaction already waits on
// page. A waiting shared request later asking for exclusive keeps its place
// with the stronger mode.
func (lm *LockManager) enqueueLocked(id ID, page tuple.PageID, mode LockMode) {
	queue := lm.queues[page]
	for i := range queue {
		if queue[i].id == id {
			if mode > queue[i].mode {
				queue[i].mode = mode
			}
			return
		}
	}
	lm.queues[page] = append(queue, waiter{id: id, mode: mode})
}

func (lm *LockManager) dequeueLocked(id ID, page tuple.PageID) bool {
	queue := lm.queues[page]
	for i := range queue {
		if queue[i].id == id {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(lm.queues, page)
			} else {
				lm.queues[page] = queue
			}
			return true
		}
	}
	return false
}

// abandon withdraws a request that stopped waiting so later requests are not
// held behind it.
func (lm *LockManager) abandon(id ID, page tuple.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.dequeueLocked(id, page) {
		lm.notifyLocked()
	}
}

func (lm *LockManager) trackHeld(id ID, page tuple.PageID) {
	pages, ok := lm.held[id]
	if !ok {
		pages = make(map[tuple.PageID]struct{})
		lm.held[id] = pages
	}
	pages[page] = struct{}{}
}

// notifyLocked wakes every waiter; callers hold lm.mu.
func (lm *LockManager) notifyLocked() {
	close(lm.wake)
	lm.wake = make(chan struct{})
}

// Release drops a single lock held by the transaction.
func (lm *LockManager) Release(id ID, page tuple.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(id, page)
	if pages := lm.held[id]; len(pages) == 0 {
		delete(lm.held, id)
	}
	lm.notifyLocked()
}

func (lm *LockManager) releaseLocked(id ID, page tuple.PageID) {
	holders := lm.locks[page]
	if holders == nil {
		return
	}
	delete(holders, id)
	if len(holders) == 0 {
		delete(lm.locks, page)
	}
	if pages := lm.held[id]; pages != nil {
		delete(pages, page)
	}
}

// ReleaseAll frees all locks held by the specified transaction.
func (lm *LockManager) ReleaseAll(id ID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for page := range lm.held[id] {
		lm.releaseLocked(id, page)
	}
	delete(lm.held, id)
	for page := range lm.queues {
		lm.dequeueLocked(id, page)
	}
	lm.notifyLocked()
}

// Holds reports the mode the transaction holds on page, if any.
func (lm *LockManager) Holds(id ID, page tuple.PageID) (LockMode, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	mode, ok := lm.locks[page][id]
	return mode, ok
}

// IsLocked reports whether any transaction holds a lock on page.
func (lm *LockManager) IsLocked(page tuple.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks[page]) > 0
}

// Holders returns a snapshot of the transactions holding page.
func (lm *LockManager) Holders(page tuple.PageID) map[ID]LockMode {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make(map[ID]LockMode, len(lm.locks[page]))
	for id, mode := range lm.locks[page] {
		out[id] = mode
	}
	return out
}

// Waiters returns the transactions blocked on page in arrival order.
func (lm *LockManager) Waiters(page tuple.PageID) []ID {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]ID, len(lm.queues[page]))
	for i, w := range lm.queues[page] {
		out[i] = w.id
	}
	return out
}

// LockedPages lists the pages the transaction currently holds.
func (lm *LockManager) LockedPages(id ID) []tuple.PageID {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]tuple.PageID, 0, len(lm.held[id]))
	for page := range lm.held[id] {
		out = append(out, page)
	}
	return out
}
