package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/example/heapstore/internal/tuple"
)

// ImageCachePages bounds the page images each DiskFile keeps in memory.
const ImageCachePages = 256

// DiskFile is the flat page store behind a heap file. Page n lives at byte
// offset n*pageSize; the file has no header. Recently read or written page
// images are kept in an admission-controlled cache so a page the buffer pool
// evicted and fetches again is served without a read. The cache may drop any
// entry; the file stays authoritative.
type DiskFile struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	table    uint64
	pageSize int
	images   *ristretto.Cache[uint64, []byte]
}

// OpenDiskFile opens path for reading and writing, creating it if missing.
func OpenDiskFile(path string, table uint64, pageSize int) (*DiskFile, error) {
	images, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 10 * ImageCachePages,
		MaxCost:     int64(ImageCachePages) * int64(pageSize),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: page image cache: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		images.Close()
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &DiskFile{file: f, path: path, table: table, pageSize: pageSize, images: images}, nil
}

// Size returns the current file length.
func (d *DiskFile) Size() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, d.path, err)
	}
	return info.Size(), nil
}

// NumPages returns the page count implied by the file length. A trailing
// partial page counts as a page; reading it fails with a short read.
func (d *DiskFile) NumPages() (int, error) {
	size, err := d.Size()
	if err != nil {
		return 0, err
	}
	ps := int64(d.pageSize)
	return int((size + ps - 1) / ps), nil
}

// ReadPage reads page n in full. The returned slice is owned by the caller.
func (d *DiskFile) ReadPage(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if img, ok := d.images.Get(uint64(n)); ok {
		return append([]byte(nil), img...), nil
	}
	pid := tuple.PageID{Table: d.table, Number: n}
	buf := make([]byte, d.pageSize)
	read, err := d.file.ReadAt(buf, int64(n)*int64(d.pageSize))
	if read == d.pageSize {
		d.images.Set(uint64(n), append([]byte(nil), buf...), int64(d.pageSize))
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = fmt.Errorf("short read: %d of %d bytes: %w", read, d.pageSize, io.ErrUnexpectedEOF)
	}
	return nil, &IOError{Op: "read", Page: pid, Err: err}
}

// WritePage overwrites page n.
func (d *DiskFile) WritePage(n int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(n, data)
}

func (d *DiskFile) writeLocked(n int, data []byte) error {
	pid := tuple.PageID{Table: d.table, Number: n}
	if len(data) != d.pageSize {
		return &IOError{Op: "write", Page: pid, Err: errShortPage}
	}
	d.images.Del(uint64(n))
	if _, err := d.file.WriteAt(data, int64(n)*int64(d.pageSize)); err != nil {
		return &IOError{Op: "write", Page: pid, Err: err}
	}
	d.images.Set(uint64(n), append([]byte(nil), data...), int64(d.pageSize))
	return nil
}

// AppendPage writes data as a new page if the file still has want pages. It
// reports false when another appender already extended the file.
func (d *DiskFile) AppendPage(want int, data []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.NumPages()
	if err != nil {
		return false, err
	}
	if n != want {
		return false, nil
	}
	if err := d.writeLocked(n, data); err != nil {
		return false, err
	}
	return true, nil
}

// Sync commits the file contents to stable storage.
func (d *DiskFile) Sync() error {
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrIO, d.path, err)
	}
	return nil
}

// Close releases the file handle.
func (d *DiskFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.images.Close()
	return err
}
