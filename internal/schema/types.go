package schema

import (
	"encoding/json"
	"fmt"

	"github.com/koustreak/rowgate/internal/value"
)

// Column describes a single column in a table
type Column struct {
	Name       string
	NativeType string // as reported by the backend: text, int4, varchar(255), etc.
	Type       value.Type
	Nullable   bool
}

// Table is the discovered shape of one table. It is immutable once built;
// accessors hand out copies so callers cannot corrupt the catalog cache.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	pk      []string
	pkSet   map[string]struct{}
}

// NewTable validates and assembles a table description. Column names must be
// unique and every primary key column must be one of the table's columns.
func NewTable(name string, columns []Column, primaryKey []string) (*Table, error) {
	t := &Table{
		name:    name,
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
		pk:      append([]string(nil), primaryKey...),
		pkSet:   make(map[string]struct{}, len(primaryKey)),
	}

	for i, c := range t.columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("table %q: duplicate column %q", name, c.Name)
		}
		t.index[c.Name] = i
	}
	for _, k := range t.pk {
		if _, ok := t.index[k]; !ok {
			return nil, fmt.Errorf("table %q: primary key column %q is not a column", name, k)
		}
		t.pkSet[k] = struct{}{}
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }

// Columns returns the columns in declaration order.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// PrimaryKey returns the primary key columns in key order. Empty for keyless tables.
func (t *Table) PrimaryKey() []string {
	return append([]string(nil), t.pk...)
}

func (t *Table) HasPrimaryKey() bool { return len(t.pk) > 0 }

func (t *Table) IsPrimaryKey(column string) bool {
	_, ok := t.pkSet[column]
	return ok
}

type columnJSON struct {
	Name       string     `json:"name"`
	Type       value.Type `json:"type"`
	NativeType string     `json:"native_type"`
	Nullable   bool       `json:"nullable"`
	PrimaryKey bool       `json:"primary_key"`
}

type tableJSON struct {
	Table      string       `json:"table"`
	Columns    []columnJSON `json:"columns"`
	PrimaryKey []string     `json:"primary_key"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Table:      t.name,
		Columns:    make([]columnJSON, len(t.columns)),
		PrimaryKey: t.PrimaryKey(),
	}
	if out.PrimaryKey == nil {
		out.PrimaryKey = []string{}
	}
	for i, c := range t.columns {
		out.Columns[i] = columnJSON{
			Name:       c.Name,
			Type:       c.Type,
			NativeType: c.NativeType,
			Nullable:   c.Nullable,
			PrimaryKey: t.IsPrimaryKey(c.Name),
		}
	}
	return json.Marshal(out)
}
