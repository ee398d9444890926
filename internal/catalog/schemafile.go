package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/example/heapstore/internal/storage"
	"github.com/example/heapstore/internal/tuple"
)

// OpenFunc opens or creates the heap file for a table read from a schema file.
type OpenFunc func(name string, schema *tuple.Schema) (*storage.HeapFile, error)

// LoadSchema registers every table declared in the schema file at path. Each
// non-blank line not starting with '#' has the form
//
//	name (field type [pk], field type, ...)
//
// where type is int or string.
func (c *Catalog) LoadSchema(path string, open OpenFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("catalog: open schema: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, schema, pk, err := ParseSchemaLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		file, err := open(name, schema)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if err := c.AddTable(file, name, pk); err != nil {
			_ = file.Close()
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("catalog: read schema: %w", err)
	}
	c.log.Info("schema loaded", "path", path, "tables", loaded)
	return nil
}

var errBadSchemaLine = errors.New("catalog: malformed schema line")

// ParseSchemaLine parses one schema file line.
func ParseSchemaLine(line string) (name string, schema *tuple.Schema, primaryKey string, err error) {
	open := strings.IndexByte(line, '(')
	if open < 0 || !strings.HasSuffix(line, ")") {
		return "", nil, "", fmt.Errorf("%w: expected name (fields)", errBadSchemaLine)
	}
	name = strings.TrimSpace(line[:open])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", nil, "", fmt.Errorf("%w: bad table name %q", errBadSchemaLine, name)
	}
	body := strings.TrimSpace(line[open+1 : len(line)-1])
	if body == "" {
		return "", nil, "", fmt.Errorf("%w: table %s has no fields", errBadSchemaLine, name)
	}

	var fields []tuple.FieldDesc
	seen := map[string]bool{}
	for _, part := range strings.Split(body, ",") {
		words := strings.Fields(part)
		if len(words) < 2 || len(words) > 3 {
			return "", nil, "", fmt.Errorf("%w: field %q", errBadSchemaLine, strings.TrimSpace(part))
		}
		typ, err := tuple.ParseType(words[1])
		if err != nil {
			return "", nil, "", fmt.Errorf("%w: %v", errBadSchemaLine, err)
		}
		if seen[words[0]] {
			return "", nil, "", fmt.Errorf("%w: duplicate field %s", errBadSchemaLine, words[0])
		}
		seen[words[0]] = true
		if len(words) == 3 {
			if !strings.EqualFold(words[2], "pk") {
				return "", nil, "", fmt.Errorf("%w: unknown modifier %q", errBadSchemaLine, words[2])
			}
			if primaryKey != "" {
				return "", nil, "", fmt.Errorf("%w: table %s has two primary keys", errBadSchemaLine, name)
			}
			primaryKey = words[0]
		}
		fields = append(fields, tuple.FieldDesc{Type: typ, Name: words[0]})
	}
	return name, tuple.NewSchemaFromFields(fields...), primaryKey, nil
}

// FormatSchemaLine renders a table declaration that ParseSchemaLine accepts.
func FormatSchemaLine(name string, schema *tuple.Schema, primaryKey string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" (")
	for i, fd := range schema.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fd.Name)
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(fd.Type.String()))
		if fd.Name == primaryKey {
			b.WriteString(" pk")
		}
	}
	b.WriteByte(')')
	return b.String()
}
