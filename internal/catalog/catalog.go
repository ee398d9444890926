// Package catalog maps table names and ids to their heap files and schemas.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/heapstore/internal/bufferpool"
	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/storage"
	"github.com/example/heapstore/internal/tuple"
)

// ErrTableNotFound reports an unknown table name or id.
var ErrTableNotFound = errors.New("catalog: table not found")

// Table captures metadata for a registered table.
type Table struct {
	ID         uint64
	Name       string
	PrimaryKey string
	File       *storage.HeapFile
}

// Schema returns the schema of the table's heap file.
func (t *Table) Schema() *tuple.Schema { return t.File.Schema() }

// Catalog holds definitions of all tables.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]*Table
	byID   map[uint64]*Table
	log    *slog.Logger
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		byName: make(map[string]*Table),
		byID:   make(map[uint64]*Table),
		log:    logging.WithComponent("catalog"),
	}
}

// AddTable registers file under name. An existing table with the same name
// or id is replaced.
func (c *Catalog) AddTable(file *storage.HeapFile, name, primaryKey string) error {
	if name == "" {
		return fmt.Errorf("catalog: table name required")
	}
	if primaryKey != "" {
		if _, err := file.Schema().IndexOf(primaryKey); err != nil {
			return fmt.Errorf("catalog: primary key %q not in table %s", primaryKey, name)
		}
	}
	t := &Table{ID: file.ID(), Name: name, PrimaryKey: primaryKey, File: file}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byName[name]; ok {
		delete(c.byID, old.ID)
	}
	if old, ok := c.byID[t.ID]; ok {
		delete(c.byName, old.Name)
	}
	c.byName[name] = t
	c.byID[t.ID] = t
	logging.WithTable("catalog", name, t.ID).Debug("table registered", "schema", file.Schema().String())
	return nil
}

func (c *Catalog) lookup(id uint64) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTableNotFound, id)
	}
	return t, nil
}

// Table returns the metadata registered under name.
func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// TableID returns the id of the named table.
func (c *Catalog) TableID(name string) (uint64, error) {
	t, err := c.Table(name)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// TableName returns the name of the table with the given id.
func (c *Catalog) TableName(id uint64) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// SchemaFor returns the schema of the table with the given id.
func (c *Catalog) SchemaFor(id uint64) (*tuple.Schema, error) {
	t, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.Schema(), nil
}

// PrimaryKey returns the primary key field name, empty if none was declared.
func (c *Catalog) PrimaryKey(id uint64) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return t.PrimaryKey, nil
}

// HeapFile returns the heap file backing the table.
func (c *Catalog) HeapFile(id uint64) (*storage.HeapFile, error) {
	t, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.File, nil
}

// DbFile implements bufferpool.Catalog.
func (c *Catalog) DbFile(id uint64) (bufferpool.DbFile, error) {
	t, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.File, nil
}

// Tables returns the registered tables in name order.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Table, 0, len(c.byName))
	for _, t := range c.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear forgets every table without closing its file.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName = make(map[string]*Table)
	c.byID = make(map[uint64]*Table)
}

// Close closes every heap file.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, t := range c.byName {
		if err := t.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog: close %s: %w", t.Name, err))
		}
	}
	c.byName = make(map[string]*Table)
	c.byID = make(map[uint64]*Table)
	return errors.Join(errs...)
}
