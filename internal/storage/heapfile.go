package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/example/heapstore/internal/bufferpool"
	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

// TableID derives the stable id of the heap file stored at path.
func TableID(path string) uint64 {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return xxhash.Sum64String(filepath.Clean(abs))
}

// HeapFile stores the tuples of one table as an unordered sequence of
// slotted pages. All page access goes through the buffer pool.
type HeapFile struct {
	id       uint64
	path     string
	schema   *tuple.Schema
	pageSize int
	disk     *DiskFile
	pool     *bufferpool.BufferPool
	log      *slog.Logger
}

// OpenHeapFile opens or creates the heap file at path.
func OpenHeapFile(path string, schema *tuple.Schema, pool *bufferpool.BufferPool, pageSize int) (*HeapFile, error) {
	if SlotsPerPage(pageSize, schema) == 0 {
		return nil, fmt.Errorf("storage: %d-byte tuples do not fit a %d-byte page", schema.Size(), pageSize)
	}
	id := TableID(path)
	disk, err := OpenDiskFile(path, id, pageSize)
	if err != nil {
		return nil, err
	}
	return &HeapFile{
		id:       id,
		path:     path,
		schema:   schema,
		pageSize: pageSize,
		disk:     disk,
		pool:     pool,
		log:      logging.WithComponent("storage").With("table_id", id, "path", path),
	}, nil
}

// ID returns the table id.
func (hf *HeapFile) ID() uint64 { return hf.id }

// Path returns the backing file path.
func (hf *HeapFile) Path() string { return hf.path }

// Schema returns the tuple schema of the file.
func (hf *HeapFile) Schema() *tuple.Schema { return hf.schema }

// PageSize returns the page size the file was opened with.
func (hf *HeapFile) PageSize() int { return hf.pageSize }

// NumPages returns the page count from the current file length.
func (hf *HeapFile) NumPages() (int, error) { return hf.disk.NumPages() }

// Size returns the backing file length in bytes.
func (hf *HeapFile) Size() (int64, error) { return hf.disk.Size() }

func (hf *HeapFile) pageID(n int) tuple.PageID {
	return tuple.PageID{Table: hf.id, Number: n}
}

// ReadPage loads a page straight from disk.
func (hf *HeapFile) ReadPage(id tuple.PageID) (bufferpool.Page, error) {
	if id.Table != hf.id {
		return nil, fmt.Errorf("%w: page %s read from table %d", ErrWrongTable, id, hf.id)
	}
	if err := hf.checkRange(id.Number); err != nil {
		return nil, err
	}
	data, err := hf.disk.ReadPage(id.Number)
	if err != nil {
		return nil, err
	}
	return NewHeapPage(id, hf.schema, hf.pageSize, data)
}

// WritePage stores the page image at its position in the file.
func (hf *HeapFile) WritePage(p bufferpool.Page) error {
	id := p.ID()
	if id.Table != hf.id {
		return fmt.Errorf("%w: page %s written to table %d", ErrWrongTable, id, hf.id)
	}
	return hf.disk.WritePage(id.Number, p.Data())
}

func (hf *HeapFile) checkRange(n int) error {
	pages, err := hf.NumPages()
	if err != nil {
		return err
	}
	if n < 0 || n >= pages {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, n, pages)
	}
	return nil
}

func (hf *HeapFile) heapPage(ctx context.Context, tx *txn.Transaction, n int, perm bufferpool.Perm) (*HeapPage, error) {
	p, err := hf.pool.GetPage(ctx, tx, hf.pageID(n), perm)
	if err != nil {
		return nil, err
	}
	hp, ok := p.(*HeapPage)
	if !ok {
		return nil, fmt.Errorf("storage: page %s is %T, not a heap page", p.ID(), p)
	}
	return hp, nil
}

// InsertTuple places t on the first page with a free slot, appending a page
// when every page is full. It returns the single page it changed. A page is
// read shared before it is upgraded, so two transactions inserting into the
// same page can each wait on the other; only the lock timeout breaks that.
func (hf *HeapFile) InsertTuple(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) ([]bufferpool.Page, error) {
	if !hf.schema.Equal(t.Schema()) {
		return nil, fmt.Errorf("%w: table has %s, tuple has %s", tuple.ErrSchemaMismatch, hf.schema, t.Schema())
	}
	scanned := 0
	for {
		pages, err := hf.NumPages()
		if err != nil {
			return nil, err
		}
		for ; scanned < pages; scanned++ {
			hp, err := hf.heapPage(ctx, tx, scanned, bufferpool.ReadOnly)
			if err != nil {
				return nil, err
			}
			if hp.EmptySlots() == 0 {
				continue
			}
			hp, err = hf.heapPage(ctx, tx, scanned, bufferpool.ReadWrite)
			if err != nil {
				return nil, err
			}
			// Another writer may have filled the page while we waited for the lock.
			if err := hp.Insert(t); err != nil {
				if errors.Is(err, ErrPageFull) && !errors.Is(err, tuple.ErrSchemaMismatch) {
					continue
				}
				return nil, err
			}
			hp.MarkDirty(true, tx.ID())
			return []bufferpool.Page{hp}, nil
		}
		appended, err := hf.disk.AppendPage(pages, EmptyPageData(hf.pageSize))
		if err != nil {
			return nil, err
		}
		if appended {
			hf.log.Debug("page appended", "page", pages, "tx_id", uint64(tx.ID()))
		}
	}
}

// DeleteTuple clears the slot t is anchored to and returns the changed page.
func (hf *HeapFile) DeleteTuple(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) ([]bufferpool.Page, error) {
	rid, ok := t.RecordID()
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrSlotNotOccupied, tuple.ErrUnanchored)
	}
	if rid.Page.Table != hf.id {
		return nil, fmt.Errorf("%w: %s deleted from table %d", ErrWrongTable, rid, hf.id)
	}
	if err := hf.checkRange(rid.Page.Number); err != nil {
		return nil, err
	}
	hp, err := hf.heapPage(ctx, tx, rid.Page.Number, bufferpool.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := hp.Delete(rid); err != nil {
		return nil, err
	}
	hp.MarkDirty(true, tx.ID())
	return []bufferpool.Page{hp}, nil
}

// Iterator returns an unopened scan of the whole file on behalf of tx.
func (hf *HeapFile) Iterator(ctx context.Context, tx *txn.Transaction) *HeapFileIterator {
	return &HeapFileIterator{file: hf, ctx: ctx, tx: tx}
}

// Sync flushes the backing file to stable storage.
func (hf *HeapFile) Sync() error { return hf.disk.Sync() }

// Close releases the backing file. Dirty pages must be flushed first.
func (hf *HeapFile) Close() error { return hf.disk.Close() }

// HeapFileIterator reads a heap file page by page, taking a shared lock on
// each page it visits.
type HeapFileIterator struct {
	file   *HeapFile
	ctx    context.Context
	tx     *txn.Transaction
	open   bool
	pageNo int
	cur    *PageIterator
}

// Schema returns the schema of the scanned file.
func (it *HeapFileIterator) Schema() *tuple.Schema { return it.file.schema }

// Open positions the iterator before the first tuple.
func (it *HeapFileIterator) Open() error {
	it.open = true
	it.pageNo = 0
	it.cur = nil
	return nil
}

// HasNext advances across exhausted and empty pages until a tuple is found
// or the file ends.
func (it *HeapFileIterator) HasNext() (bool, error) {
	if !it.open {
		return false, nil
	}
	for {
		if it.cur != nil {
			if it.cur.HasNext() {
				return true, nil
			}
			it.cur = nil
			it.pageNo++
		}
		pages, err := it.file.NumPages()
		if err != nil {
			return false, err
		}
		if it.pageNo >= pages {
			return false, nil
		}
		hp, err := it.file.heapPage(it.ctx, it.tx, it.pageNo, bufferpool.ReadOnly)
		if err != nil {
			return false, err
		}
		it.cur = hp.Iterator()
	}
}

// Next returns the next tuple, or tuple.ErrNoSuchElement past the end.
func (it *HeapFileIterator) Next() (*tuple.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tuple.ErrNoSuchElement
	}
	return it.cur.Next()
}

// Rewind restarts the scan from page 0.
func (it *HeapFileIterator) Rewind() error {
	it.Close()
	return it.Open()
}

// Close stops the scan. A closed iterator reports no tuples.
func (it *HeapFileIterator) Close() {
	it.open = false
	it.cur = nil
}
