// Package api is the public façade over the heap store: it wires the
// catalog, buffer pool, transactions and operators behind table-level calls.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/heapstore/internal/bufferpool"
	"github.com/example/heapstore/internal/catalog"
	"github.com/example/heapstore/internal/config"
	"github.com/example/heapstore/internal/exec"
	"github.com/example/heapstore/internal/logging"
	"github.com/example/heapstore/internal/storage"
	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

// SchemaFile is the catalog file kept in every database directory.
const SchemaFile = "catalog.txt"

// ErrTableExists reports a CreateTable for a name already in use.
var ErrTableExists = errors.New("api: table already exists")

// Result is a rendered result set.
type Result struct {
	Columns []string
	Rows    [][]string
}

func newResult(schema *tuple.Schema, rows []*tuple.Tuple) *Result {
	res := &Result{Columns: make([]string, schema.NumFields())}
	for i, fd := range schema.Fields() {
		res.Columns[i] = fd.Name
	}
	for _, t := range rows {
		row := make([]string, len(res.Columns))
		for i, f := range t.Fields() {
			if f == nil {
				row[i] = "NULL"
				continue
			}
			row[i] = f.String()
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// Database provides a public façade over one database directory.
type Database struct {
	dir     string
	cfg     config.Config
	catalog *catalog.Catalog
	locks   *txn.LockManager
	txns    *txn.Manager
	pool    *bufferpool.BufferPool
	mu      sync.Mutex
	closed  bool
	log     *slog.Logger
}

// Open loads the database in dir, creating the directory if needed.
func Open(dir string, cfg config.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("api: create %s: %w", dir, err)
	}
	cat := catalog.New()
	locks := txn.NewLockManager(cfg.LockTimeout)
	pool := bufferpool.New(cfg.CachePages, cat, locks)
	txns := txn.NewManager(locks)
	txns.OnComplete(pool.TransactionComplete)

	db := &Database{
		dir:     dir,
		cfg:     cfg,
		catalog: cat,
		locks:   locks,
		txns:    txns,
		pool:    pool,
		log:     logging.WithComponent("api").With("dir", dir),
	}
	schemaPath := filepath.Join(dir, SchemaFile)
	if _, err := os.Stat(schemaPath); err == nil {
		if err := cat.LoadSchema(schemaPath, db.openFile); err != nil {
			_ = cat.Close()
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		_ = cat.Close()
		return nil, fmt.Errorf("api: stat schema: %w", err)
	}
	db.log.Info("database opened", "tables", len(cat.Tables()), "page_size", cfg.PageSize, "cache_pages", cfg.CachePages)
	return db, nil
}

func (db *Database) openFile(name string, schema *tuple.Schema) (*storage.HeapFile, error) {
	return storage.OpenHeapFile(db.tablePath(name), schema, db.pool, db.cfg.PageSize)
}

func (db *Database) tablePath(name string) string {
	return filepath.Join(db.dir, name+".dat")
}

// Dir returns the database directory.
func (db *Database) Dir() string { return db.dir }

// Config returns the configuration the database was opened with.
func (db *Database) Config() config.Config { return db.cfg }

// Close flushes the dirty pages of finished transactions and closes all
// table files. Work of transactions still running is discarded.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	flushErr := db.pool.Close()
	return errors.Join(flushErr, db.catalog.Close())
}

// CreateTable creates name.dat for the schema and records the table in the
// schema file. primaryKey may be empty.
func (db *Database) CreateTable(name string, schema *tuple.Schema, primaryKey string) error {
	line := catalog.FormatSchemaLine(name, schema, primaryKey)
	if _, _, _, err := catalog.ParseSchemaLine(line); err != nil {
		return fmt.Errorf("api: create table %s: %w", name, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.catalog.Table(name); err == nil {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	file, err := db.openFile(name, schema)
	if err != nil {
		return err
	}
	if err := db.catalog.AddTable(file, name, primaryKey); err != nil {
		_ = file.Close()
		return err
	}
	f, err := os.OpenFile(filepath.Join(db.dir, SchemaFile), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("api: open schema: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("api: write schema: %w", err)
	}
	logging.WithTable("api", name, file.ID()).Info("table created", "schema", schema.String())
	return nil
}

// Table returns catalog metadata for name.
func (db *Database) Table(name string) (*catalog.Table, error) {
	return db.catalog.Table(name)
}

// Tables returns the table names in order.
func (db *Database) Tables() []string {
	tables := db.catalog.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Begin starts a transaction.
func (db *Database) Begin() *txn.Transaction { return db.txns.Begin() }

// Commit writes back the transaction's pages and releases its locks.
func (db *Database) Commit(tx *txn.Transaction) error { return db.txns.Commit(tx.ID()) }

// Rollback discards the transaction's pages and releases its locks.
func (db *Database) Rollback(tx *txn.Transaction) error { return db.txns.Rollback(tx.ID()) }

// Insert stores a row built from fields and returns it anchored.
func (db *Database) Insert(ctx context.Context, tx *txn.Transaction, table string, fields ...tuple.Field) (*tuple.Tuple, error) {
	t, err := db.catalog.Table(table)
	if err != nil {
		return nil, err
	}
	row, err := tuple.FromFields(t.Schema(), fields...)
	if err != nil {
		return nil, fmt.Errorf("api: insert into %s: %w", table, err)
	}
	if err := db.pool.InsertTuple(ctx, tx, t.ID, row); err != nil {
		return nil, err
	}
	return row, nil
}

// InsertValues parses text values against the table schema and inserts them.
func (db *Database) InsertValues(ctx context.Context, tx *txn.Transaction, table string, values []string) (*tuple.Tuple, error) {
	t, err := db.catalog.Table(table)
	if err != nil {
		return nil, err
	}
	schema := t.Schema()
	if len(values) != schema.NumFields() {
		return nil, fmt.Errorf("api: insert into %s: %w: %d values for %d fields", table, tuple.ErrSchemaMismatch, len(values), schema.NumFields())
	}
	fields := make([]tuple.Field, len(values))
	for i, v := range values {
		typ, _ := schema.FieldType(i)
		if fields[i], err = tuple.ParseField(typ, v); err != nil {
			return nil, fmt.Errorf("api: insert into %s: %w", table, err)
		}
	}
	return db.Insert(ctx, tx, table, fields...)
}

// Delete removes an anchored tuple from its table.
func (db *Database) Delete(ctx context.Context, tx *txn.Transaction, t *tuple.Tuple) error {
	return db.pool.DeleteTuple(ctx, tx, t)
}

// Scan returns every tuple of the table.
func (db *Database) Scan(ctx context.Context, tx *txn.Transaction, table string) ([]*tuple.Tuple, error) {
	t, err := db.catalog.Table(table)
	if err != nil {
		return nil, err
	}
	return tuple.Drain(exec.NewSeqScan(ctx, tx, t.File, ""))
}

// ScanResult is Scan rendered as a result set.
func (db *Database) ScanResult(ctx context.Context, tx *txn.Transaction, table string) (*Result, error) {
	t, err := db.catalog.Table(table)
	if err != nil {
		return nil, err
	}
	rows, err := db.Scan(ctx, tx, table)
	if err != nil {
		return nil, err
	}
	return newResult(t.Schema(), rows), nil
}

// AggregateQuery names an aggregate over one table. GroupBy may be empty.
type AggregateQuery struct {
	Table   string
	Field   string
	GroupBy string
	Op      exec.Op
}

func (db *Database) plan(ctx context.Context, tx *txn.Transaction, q AggregateQuery) (*exec.Aggregate, error) {
	t, err := db.catalog.Table(q.Table)
	if err != nil {
		return nil, err
	}
	schema := t.Schema()
	aField, err := schema.IndexOf(q.Field)
	if err != nil {
		return nil, fmt.Errorf("api: aggregate field: %w", err)
	}
	gField := exec.NoGrouping
	if q.GroupBy != "" {
		if gField, err = schema.IndexOf(q.GroupBy); err != nil {
			return nil, fmt.Errorf("api: group field: %w", err)
		}
	}
	return exec.NewAggregate(exec.NewSeqScan(ctx, tx, t.File, ""), aField, gField, q.Op)
}

// Aggregate evaluates q inside tx.
func (db *Database) Aggregate(ctx context.Context, tx *txn.Transaction, q AggregateQuery) (*Result, error) {
	agg, err := db.plan(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	rows, err := tuple.Drain(agg)
	if err != nil {
		return nil, err
	}
	return newResult(agg.Schema(), rows), nil
}

// Explain returns the operator tree Aggregate would run for q.
func (db *Database) Explain(ctx context.Context, q AggregateQuery) (*exec.Plan, error) {
	agg, err := db.plan(ctx, nil, q)
	if err != nil {
		return nil, err
	}
	return exec.Explain(agg), nil
}

// Flush writes back dirty pages left by finished transactions. Pages of
// running transactions stay cached until they commit or roll back.
func (db *Database) Flush() error { return db.pool.FlushAllPages() }
