package exec

import (
	"context"

	"github.com/example/heapstore/internal/storage"
	"github.com/example/heapstore/internal/tuple"
	"github.com/example/heapstore/internal/txn"
)

// SeqScan reads every tuple of a heap file in page and slot order. When an
// alias is set, output field names are prefixed with "alias.".
type SeqScan struct {
	file   *storage.HeapFile
	alias  string
	schema *tuple.Schema
	it     *storage.HeapFileIterator
}

// NewSeqScan scans file on behalf of tx.
func NewSeqScan(ctx context.Context, tx *txn.Transaction, file *storage.HeapFile, alias string) *SeqScan {
	return &SeqScan{
		file:   file,
		alias:  alias,
		schema: aliased(file.Schema(), alias),
		it:     file.Iterator(ctx, tx),
	}
}

func aliased(schema *tuple.Schema, alias string) *tuple.Schema {
	if alias == "" {
		return schema
	}
	fields := schema.Fields()
	for i := range fields {
		fields[i].Name = alias + "." + fields[i].Name
	}
	return tuple.NewSchemaFromFields(fields...)
}

// Alias returns the table alias, possibly empty.
func (s *SeqScan) Alias() string { return s.alias }

// TableID returns the id of the scanned table.
func (s *SeqScan) TableID() uint64 { return s.file.ID() }

// Schema returns the possibly aliased schema of the scanned file.
func (s *SeqScan) Schema() *tuple.Schema { return s.schema }

func (s *SeqScan) Open() error { return s.it.Open() }

func (s *SeqScan) HasNext() (bool, error) { return s.it.HasNext() }

// Next returns the next tuple reshaped to the scan schema; its record id is kept.
func (s *SeqScan) Next() (*tuple.Tuple, error) {
	t, err := s.it.Next()
	if err != nil {
		return nil, err
	}
	if s.alias == "" {
		return t, nil
	}
	out, err := tuple.FromFields(s.schema, t.Fields()...)
	if err != nil {
		return nil, err
	}
	if rid, ok := t.RecordID(); ok {
		out.SetRecordID(rid)
	}
	return out, nil
}

func (s *SeqScan) Rewind() error { return s.it.Rewind() }

func (s *SeqScan) Close() { s.it.Close() }
