// Package bufferpool caches heap pages in memory and arbitrates transactional
// access to them through page-level locks.
package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

// ErrCacheExhausted reports a miss on a full pool in which every page is locked.
var ErrCacheExhausted = errors.New("bufferpool: no evictable page")

// Perm is the access intent of a page request.
type Perm int

const (
	// ReadOnly takes a shared lock.
	ReadOnly Perm = iota
	// ReadWrite takes an exclusive lock.
	ReadWrite
)

func (p Perm) lockMode() txn.LockMode {
	if p == ReadWrite {
		return txn.LockModeExclusive
	}
	return txn.LockModeShared
}

// Page is a materialised page owned by the pool.
type Page interface {
	ID() tuple.PageID
	// Data returns the serialised page image.
	Data() []byte
	MarkDirty(dirty bool, tx txn.ID)
	// Dirtier returns the transaction that last dirtied the page.
	Dirtier() (txn.ID, bool)
}

// DbFile is the on-disk backing store of one table.
type DbFile interface {
	ID() uint64
	ReadPage(id tuple.PageID) (Page, error)
	WritePage(p Page) error
	InsertTuple(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) ([]Page, error)
	DeleteTuple(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) ([]Page, error)
}

// Catalog resolves table ids to their backing files.
type Catalog interface {
	DbFile(tableID uint64) (DbFile, error)
}

type entry struct {
	page     Page
	lastUsed uint64
}

// BufferPool is a fixed-capacity page cache. It is the only holder of
// in-memory page copies; callers must not keep a page beyond the transaction
// that fetched it.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	pages    map[tuple.PageID]*entry
	clock    uint64
	catalog  Catalog
	locks    *txn.LockManager
	log      *slog.Logger
}

// New creates a pool holding at most capacity pages.
func New(capacity int, cat Catalog, locks *txn.LockManager) *BufferPool {
	if capacity <= 0 {
		capacity = 1
	}
	bp := &BufferPool{
		capacity: capacity,
		pages:    make(map[tuple.PageID]*entry, capacity),
		catalog:  cat,
		locks:    locks,
		log:      logging.WithComponent("bufferpool"),
	}
	bp.log.Debug("buffer pool ready", "capacity", capacity)
	return bp
}

// Capacity returns the maximum number of cached pages.
func (bp *BufferPool) Capacity() int { return bp.capacity }

// Len returns the number of cached pages.
func (bp *BufferPool) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pages)
}

// Contains reports whether the page is currently cached.
func (bp *BufferPool) Contains(id tuple.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	_, ok := bp.pages[id]
	return ok
}

// Locks exposes the lock manager used by the pool.
func (bp *BufferPool) Locks() *txn.LockManager { return bp.locks }

// GetPage returns the requested page after locking it for tx according to
// perm, reading it from its file on a miss.
func (bp *BufferPool) GetPage(ctx context.Context, tx *txn.Transaction, id tuple.PageID, perm Perm) (Page, error) {
	if err := bp.locks.Acquire(ctx, tx, id, perm.lockMode()); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.clock++
	if e, ok := bp.pages[id]; ok {
		e.lastUsed = bp.clock
		return e.page, nil
	}

	file, err := bp.catalog.DbFile(id.Table)
	if err != nil {
		return nil, err
	}
	page, err := file.ReadPage(id)
	if err != nil {
		return nil, err
	}
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}
	bp.pages[id] = &entry{page: page, lastUsed: bp.clock}
	return page, nil
}

// evictLocked drops the least recently used page that no transaction has
// locked, writing it back first when dirty.
func (bp *BufferPool) evictLocked() error {
	var (
		victim tuple.PageID
		oldest *entry
	)
	for id, e := range bp.pages {
		if bp.locks.IsLocked(id) {
			continue
		}
		if oldest == nil || e.lastUsed < oldest.lastUsed {
			victim, oldest = id, e
		}
	}
	if oldest == nil {
		return fmt.Errorf("%w: all %d pages are locked", ErrCacheExhausted, len(bp.pages))
	}
	if err := bp.flushLocked(victim); err != nil {
		return err
	}
	delete(bp.pages, victim)
	logging.WithPage("bufferpool", victim.Table, victim.Number).Debug("page evicted")
	return nil
}

// InsertTuple adds t to the table on behalf of tx and marks the touched pages dirty.
func (bp *BufferPool) InsertTuple(ctx context.Context, tx *txn.Transaction, tableID uint64, t *tuple.Tuple) error {
	file, err := bp.catalog.DbFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.InsertTuple(ctx, tx, t)
	if err != nil {
		return err
	}
	bp.markDirty(tx.ID(), pages)
	return nil
}

// DeleteTuple removes t from its table on behalf of tx and marks the touched pages dirty.
func (bp *BufferPool) DeleteTuple(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) error {
	rid, ok := t.RecordID()
	if !ok {
		return tuple.ErrUnanchored
	}
	file, err := bp.catalog.DbFile(rid.Page.Table)
	if err != nil {
		return err
	}
	pages, err := file.DeleteTuple(ctx, tx, t)
	if err != nil {
		return err
	}
	bp.markDirty(tx.ID(), pages)
	return nil
}

func (bp *BufferPool) markDirty(id txn.ID, pages []Page) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, id)
		if _, ok := bp.pages[p.ID()]; !ok {
			bp.clock++
			bp.pages[p.ID()] = &entry{page: p, lastUsed: bp.clock}
		}
	}
}

// FlushPage writes the page back to its file and clears its dirty flag. It is
// a no-op for pages that are absent or clean.
func (bp *BufferPool) FlushPage(id tuple.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked(id)
}

func (bp *BufferPool) flushLocked(id tuple.PageID) error {
	e, ok := bp.pages[id]
	if !ok {
		return nil
	}
	if _, dirty := e.page.Dirtier(); !dirty {
		return nil
	}
	return bp.writeBack(e.page)
}

func (bp *BufferPool) writeBack(p Page) error {
	file, err := bp.catalog.DbFile(p.ID().Table)
	if err != nil {
		return err
	}
	if err := file.WritePage(p); err != nil {
		return err
	}
	p.MarkDirty(false, 0)
	logging.WithPage("bufferpool", p.ID().Table, p.ID().Number).Debug("page flushed")
	return nil
}

// FlushPages writes back every page dirtied by the transaction.
func (bp *BufferPool) FlushPages(id txn.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid, e := range bp.pages {
		if dirtier, dirty := e.page.Dirtier(); dirty && dirtier == id {
			if err := bp.flushLocked(pid); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushAllPages writes back every dirty page whose transaction has finished.
// A page still locked by the transaction that dirtied it stays in memory so
// a later rollback leaves no trace on disk. Pages are written concurrently.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	var g errgroup.Group
	for _, e := range bp.pages {
		p := e.page
		dirtier, dirty := p.Dirtier()
		if !dirty {
			continue
		}
		if _, running := bp.locks.Holds(dirtier, p.ID()); running {
			continue
		}
		g.Go(func() error { return bp.writeBack(p) })
	}
	return g.Wait()
}

// DiscardPage drops the cached copy without writing it back.
func (bp *BufferPool) DiscardPage(id tuple.PageID) {
	bp.mu.Lock()
	delete(bp.pages, id)
	bp.mu.Unlock()
}

// TransactionComplete finishes the page side of a transaction: on commit its
// dirty pages are written back, on abort they are discarded so the next reader
// sees the on-disk image. Locks are released by the transaction manager.
func (bp *BufferPool) TransactionComplete(id txn.ID, commit bool) error {
	if commit {
		return bp.FlushPages(id)
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid, e := range bp.pages {
		if dirtier, dirty := e.page.Dirtier(); dirty && dirtier == id {
			delete(bp.pages, pid)
			bp.log.Debug("page discarded on abort", "page", pid.String(), "tx_id", uint64(id))
		}
	}
	return nil
}

// HoldsLock reports whether tx holds any lock on the page.
func (bp *BufferPool) HoldsLock(id txn.ID, page tuple.PageID) bool {
	_, ok := bp.locks.Holds(id, page)
	return ok
}

// Close writes back all dirty pages of finished transactions.
func (bp *BufferPool) Close() error {
	return bp.FlushAllPages()
}
