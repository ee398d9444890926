package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/heapstore/internal/catalog"
	"github.com/example/heapstore/internal/config"
	"github.com/example/heapstore/internal/storage"
)

// DatabaseMeta summarises the schema and on-disk footprint for tooling.
type DatabaseMeta struct {
	Database string      `json:"database"`
	PageSize int         `json:"pageSize"`
	Tables   []TableMeta `json:"tables"`
}

// TableMeta captures table-level metadata.
type TableMeta struct {
	Name         string       `json:"name"`
	ID           uint64       `json:"id"`
	File         string       `json:"file"`
	Pages        int          `json:"pages"`
	Bytes        int64        `json:"bytes"`
	SlotsPerPage int          `json:"slotsPerPage"`
	Columns      []ColumnMeta `json:"columns"`
}

// ColumnMeta describes a column definition.
type ColumnMeta struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Width        int    `json:"width"`
	IsPrimaryKey bool   `json:"isPrimaryKey"`
}

// LoadDatabaseMeta opens the database in dir and extracts its metadata.
func LoadDatabaseMeta(dir string, cfg config.Config) (DatabaseMeta, error) {
	db, err := Open(dir, cfg)
	if err != nil {
		return DatabaseMeta{}, err
	}
	defer db.Close()
	return db.DatabaseMeta()
}

// DatabaseMeta gathers metadata for an open database handle.
func (db *Database) DatabaseMeta() (DatabaseMeta, error) {
	tables := db.catalog.Tables()
	meta := DatabaseMeta{
		Database: db.dir,
		PageSize: db.cfg.PageSize,
		Tables:   make([]TableMeta, len(tables)),
	}
	for i, table := range tables {
		tm, err := buildTableMeta(table)
		if err != nil {
			return DatabaseMeta{}, err
		}
		meta.Tables[i] = tm
	}
	return meta, nil
}

// MetadataJSON returns the metadata encoded as JSON.
func (db *Database) MetadataJSON() ([]byte, error) {
	meta, err := db.DatabaseMeta()
	if err != nil {
		return nil, err
	}
	return json.Marshal(meta)
}

func buildTableMeta(table *catalog.Table) (TableMeta, error) {
	pages, err := table.File.NumPages()
	if err != nil {
		return TableMeta{}, fmt.Errorf("api: table %s: %w", table.Name, err)
	}
	size, err := table.File.Size()
	if err != nil {
		return TableMeta{}, fmt.Errorf("api: table %s: %w", table.Name, err)
	}
	schema := table.Schema()
	columns := make([]ColumnMeta, 0, schema.NumFields())
	for _, fd := range schema.Fields() {
		columns = append(columns, ColumnMeta{
			Name:         fd.Name,
			Type:         strings.ToLower(fd.Type.String()),
			Width:        fd.Type.Len(),
			IsPrimaryKey: fd.Name == table.PrimaryKey,
		})
	}
	return TableMeta{
		Name:         table.Name,
		ID:           table.ID,
		File:         table.File.Path(),
		Pages:        pages,
		Bytes:        size,
		SlotsPerPage: storage.SlotsPerPage(table.File.PageSize(), schema),
		Columns:      columns,
	}, nil
}
