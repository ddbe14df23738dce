// Package schema persists per-table metadata as JSON documents under
// data/schema/<db>/<table>.json and validates rows against it before
// they reach the row codec. It uses a backup-before-overwrite
// convention: a prior <table>.json is renamed aside before a new one is
// written, so a crash mid-write leaves a recoverable ".old" copy rather
// than a truncated file.
package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/rowcodec"
)

// ColumnType is one of the four scalar types the SQL front end supports.
type ColumnType string

const (
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeBool   ColumnType = "bool"
	TypeString ColumnType = "string"
)

func (t ColumnType) matches(v rowcodec.Value) bool {
	if v.IsNull() {
		return true
	}
	switch t {
	case TypeInt:
		return v.Tag == rowcodec.TagInt
	case TypeFloat:
		return v.Tag == rowcodec.TagFloat
	case TypeBool:
		return v.Tag == rowcodec.TagBool
	case TypeString:
		return v.Tag == rowcodec.TagString
	default:
		return false
	}
}

// Column is one (name, type) pair in a table's declared shape.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is the persisted metadata document for one table.
type Table struct {
	Database   string   `json:"database"`
	Name       string   `json:"table"`
	PrimaryKey string   `json:"primary_key"`
	Columns    []Column `json:"columns"`
}

// ColumnIndex returns the position of name in t.Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ValidateRow checks row against t's declared shape: column count must
// match, and each column's value must be Null or match its declared
// type tag.
func (t *Table) ValidateRow(row rowcodec.Row) error {
	if len(row) != len(t.Columns) {
		return ensoerr.SchemaViolation("table %s.%s expects %d columns, got %d", t.Database, t.Name, len(t.Columns), len(row))
	}
	for i, col := range t.Columns {
		if !col.Type.matches(row[i]) {
			return ensoerr.SchemaViolation("table %s.%s column %q: expected type %s, got tag %d", t.Database, t.Name, col.Name, col.Type, row[i].Tag)
		}
	}
	return nil
}

// Manager owns the schema directory and an in-memory cache of loaded
// table definitions, refreshed on CreateTable/DropTable.
type Manager struct {
	mu      sync.Mutex
	rootDir string
	cache   map[string]*Table // key: "<db>.<table>"
}

// Open returns a Manager rooted at rootDir (typically "<data>/schema").
func Open(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, ensoerr.Io("mkdir "+rootDir, err)
	}
	return &Manager{rootDir: rootDir, cache: make(map[string]*Table)}, nil
}

func cacheKey(db, table string) string { return db + "." + table }

func (m *Manager) tablePath(db, table string) string {
	return filepath.Join(m.rootDir, db, table+".json")
}

// CreateTable persists a new table definition, failing if one with the
// same database+name already exists.
func (m *Manager) CreateTable(t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(t.Database, t.Name)
	if _, ok := m.cache[key]; ok {
		return ensoerr.SchemaViolation("table %s.%s already exists", t.Database, t.Name)
	}
	path := m.tablePath(t.Database, t.Name)
	if stat, err := os.Stat(path); err == nil && stat.Size() > 0 {
		return ensoerr.SchemaViolation("table %s.%s already exists", t.Database, t.Name)
	}

	if err := m.writeLocked(t); err != nil {
		return err
	}
	m.cache[key] = t
	return nil
}

// DropTable removes a table's persisted definition and cache entry. It
// does not touch any rows the engine holds for that table; callers are
// expected to issue the corresponding deletes/compaction separately.
func (m *Manager) DropTable(db, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(db, table)
	if _, ok := m.cache[key]; !ok {
		if _, err := m.loadFromDiskLocked(db, table); err != nil {
			return ensoerr.SchemaViolation("table %s.%s does not exist", db, table)
		}
	}
	delete(m.cache, key)
	if err := os.Remove(m.tablePath(db, table)); err != nil && !os.IsNotExist(err) {
		return ensoerr.Io("remove schema file", err)
	}
	return nil
}

// LoadTable returns the table's definition, from cache if present,
// otherwise reading and parsing its JSON document from disk.
func (m *Manager) LoadTable(db, table string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(db, table)
	if t, ok := m.cache[key]; ok {
		return t, nil
	}
	return m.loadFromDiskLocked(db, table)
}

// loadFromDiskLocked requires m.mu held.
func (m *Manager) loadFromDiskLocked(db, table string) (*Table, error) {
	data, err := os.ReadFile(m.tablePath(db, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ensoerr.SchemaViolation("table %s.%s does not exist", db, table)
		}
		return nil, ensoerr.Io("read schema file", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, ensoerr.Corrupt("malformed schema json for %s.%s: %v", db, table, err)
	}
	m.cache[cacheKey(db, table)] = &t
	return &t, nil
}

// ListTables returns the names of every table persisted under database
// db, scanning the directory rather than relying on the cache (which
// may not yet hold every table).
func (m *Manager) ListTables(db string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.rootDir, db))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ensoerr.Io("readdir schema", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".json"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			names = append(names, name[:len(name)-len(suffix)])
		}
	}
	return names, nil
}

// writeLocked marshals t and writes it to its table path, first
// renaming any existing file aside as a ".old" backup. Requires m.mu
// held.
func (m *Manager) writeLocked(t *Table) error {
	path := m.tablePath(t.Database, t.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ensoerr.Io("mkdir schema dir", err)
	}
	if stat, err := os.Stat(path); err == nil && stat.Size() > 0 {
		os.Rename(path, path+".old")
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return ensoerr.Corrupt("marshal schema for %s.%s: %v", t.Database, t.Name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return ensoerr.Io("create schema file", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return ensoerr.Io("write schema file", err)
	}
	return nil
}
