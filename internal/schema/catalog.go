// Package schema holds the canonical definition of every warehouse
// table and detects drift between incoming files and those definitions.
// Canonical DDL is SQLite-flavored; dialect adapters translate it.
package schema

import (
	"fmt"
	"strings"
)

// ColType is a dialect-neutral column type. The canonical DDL spells
// these in SQLite form and dialect.Normalize rewrites them.
type ColType string

// Canonical column types
const (
	TypeText      ColType = "TEXT"
	TypeInt       ColType = "INTEGER"
	TypeReal      ColType = "REAL"
	TypeTimestamp ColType = "TIMESTAMP"
	TypeDate      ColType = "DATE"
	TypeBool      ColType = "BOOL"
)

// Audit columns appended to every warehouse table. The repository sets
// them on load; files never carry them.
var AuditColumns = []string{"etl_loaded_at", "etl_updated_at"}

// Column is one canonical column definition.
type Column struct {
	Name string
	Type ColType
}

// Table is one canonical table: ordered columns and an optional primary
// key. Tables carry no foreign keys; cross-table joins are advisory.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string // empty when rows are append-only
}

// ColumnNames returns the declared column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares the column
// (case-insensitive).
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Catalog is the set of canonical tables plus their indexes.
type Catalog struct {
	tables  map[string]*Table
	order   []string
	indexes []indexDef
}

type indexDef struct {
	name    string
	table   string
	columns []string
}

// NewCatalog builds an empty catalog. Most callers want Default().
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// AddTable registers a table definition.
func (c *Catalog) AddTable(t *Table) {
	key := strings.ToLower(t.Name)
	if _, exists := c.tables[key]; !exists {
		c.order = append(c.order, key)
	}
	c.tables[key] = t
}

// AddIndex registers a single-table index over the given columns.
func (c *Catalog) AddIndex(name, table string, columns ...string) {
	c.indexes = append(c.indexes, indexDef{name: name, table: table, columns: columns})
}

// Table looks a table up by name, case-insensitively.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// Tables returns the table names in declaration order.
func (c *Catalog) Tables() []string {
	return append([]string(nil), c.order...)
}

// RequiredColumns returns the declared data columns of a table, in
// order, excluding the audit columns.
func (c *Catalog) RequiredColumns(table string) ([]string, error) {
	t, ok := c.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return t.ColumnNames(), nil
}

// PrimaryKey returns the table's primary key column, if any.
func (c *Catalog) PrimaryKey(table string) (string, bool) {
	t, ok := c.Table(table)
	if !ok || t.PrimaryKey == "" {
		return "", false
	}
	return t.PrimaryKey, true
}

// CreateTableDDL emits the canonical CREATE TABLE statement for one
// table, audit columns included.
func (c *Catalog) CreateTableDDL(table string) (string, error) {
	t, ok := c.Table(table)
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for _, col := range t.Columns {
		fmt.Fprintf(&b, "    %s %s", col.Name, col.Type)
		if strings.EqualFold(col.Name, t.PrimaryKey) {
			b.WriteString(" PRIMARY KEY")
		}
		b.WriteString(",\n")
	}
	for i, audit := range AuditColumns {
		fmt.Fprintf(&b, "    %s %s", audit, TypeTimestamp)
		if i < len(AuditColumns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

// IndexDDL emits the canonical CREATE INDEX statements in declaration
// order.
func (c *Catalog) IndexDDL() []string {
	out := make([]string, 0, len(c.indexes))
	for _, idx := range c.indexes {
		out = append(out, idx.render())
	}
	return out
}

// IndexDDLFor emits the CREATE INDEX statements declared for one table.
func (c *Catalog) IndexDDLFor(table string) []string {
	var out []string
	for _, idx := range c.indexes {
		if strings.EqualFold(idx.table, table) {
			out = append(out, idx.render())
		}
	}
	return out
}

func (d indexDef) render() string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.name, d.table, strings.Join(d.columns, ", "))
}

// AllDDL emits every table then every index, in order. The dialect
// adapter normalizes each statement before execution.
func (c *Catalog) AllDDL() ([]string, error) {
	out := make([]string, 0, len(c.order)+len(c.indexes))
	for _, name := range c.order {
		ddl, err := c.CreateTableDDL(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ddl)
	}
	out = append(out, c.IndexDDL()...)
	return out, nil
}
