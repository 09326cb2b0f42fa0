package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ColumnDef is one column in a declarative table definition.
type ColumnDef struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
	Default    string
}

// TableDef is one table in a declarative schema, the Go-native shape of
// the YAML "Tables:" mapping the original zData schema files use.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// Schema is the full set of declarative table definitions a migration
// brings the database in line with.
type Schema struct {
	Version string
	Tables  []TableDef
}

// Hash computes a canonical sha256 of the schema's table/column shape,
// independent of slice ordering, so two schemas with reordered-but-
// identical tables hash equal (spec.md §6: "schema_hash (sha256 of
// canonical schema)"). Grounded on migration_history.py's hash-before-
// migrate idempotency check.
func (s Schema) Hash() string {
	tables := make([]TableDef, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	for _, t := range tables {
		b.WriteString("table:")
		b.WriteString(t.Name)
		b.WriteString("\n")
		cols := make([]ColumnDef, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			b.WriteString("  col:")
			b.WriteString(c.Name)
			b.WriteString(":")
			b.WriteString(c.Type)
			if c.PrimaryKey {
				b.WriteString(":pk")
			}
			if c.NotNull {
				b.WriteString(":notnull")
			}
			b.WriteString("\n")
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Diff is the set of DDL operations needed to bring an existing schema in
// line with a target one (spec.md §6 migration metrics: tables/columns
// added/dropped). Grounded on ddl_migrate.py's CREATE → ALTER → DROP
// ordering; this module doesn't implement the SQLite column-drop table-
// recreation workaround (no caller in this spec needs destructive column
// drops), so DroppedColumns is reported but not executed.
type Diff struct {
	AddedTables     []TableDef
	DroppedTables   []string
	AddedColumns    map[string][]ColumnDef // table -> new columns
	DroppedColumns  map[string][]string    // table -> dropped column names
}

func (d Diff) TablesAdded() int   { return len(d.AddedTables) }
func (d Diff) TablesDropped() int { return len(d.DroppedTables) }
func (d Diff) ColumnsAdded() int {
	n := 0
	for _, cols := range d.AddedColumns {
		n += len(cols)
	}
	return n
}
func (d Diff) ColumnsDropped() int {
	n := 0
	for _, cols := range d.DroppedColumns {
		n += len(cols)
	}
	return n
}

func (d Diff) IsEmpty() bool {
	return d.TablesAdded() == 0 && d.TablesDropped() == 0 && d.ColumnsAdded() == 0 && d.ColumnsDropped() == 0
}

// DiffSchemas computes the operations needed to migrate from old to next.
func DiffSchemas(old, next Schema) Diff {
	oldTables := make(map[string]TableDef, len(old.Tables))
	for _, t := range old.Tables {
		oldTables[t.Name] = t
	}
	nextTables := make(map[string]TableDef, len(next.Tables))
	for _, t := range next.Tables {
		nextTables[t.Name] = t
	}

	diff := Diff{
		AddedColumns:   map[string][]ColumnDef{},
		DroppedColumns: map[string][]string{},
	}

	for _, t := range next.Tables {
		old, existed := oldTables[t.Name]
		if !existed {
			diff.AddedTables = append(diff.AddedTables, t)
			continue
		}
		oldCols := make(map[string]ColumnDef, len(old.Columns))
		for _, c := range old.Columns {
			oldCols[c.Name] = c
		}
		newCols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			newCols[c.Name] = true
			if _, ok := oldCols[c.Name]; !ok {
				diff.AddedColumns[t.Name] = append(diff.AddedColumns[t.Name], c)
			}
		}
		for name := range oldCols {
			if !newCols[name] {
				diff.DroppedColumns[t.Name] = append(diff.DroppedColumns[t.Name], name)
			}
		}
	}

	for name := range oldTables {
		if _, ok := nextTables[name]; !ok {
			diff.DroppedTables = append(diff.DroppedTables, name)
		}
	}

	return diff
}

// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement for t.
func CreateTableSQL(t TableDef) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(t.Name)
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(c.Type)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.Default)
		}
	}
	b.WriteString(")")
	return b.String()
}

// AddColumnSQL renders an ALTER TABLE ... ADD COLUMN statement — the one
// ALTER operation SQLite supports directly (ddl_migrate.py's "SQLite
// Limitations" note).
func AddColumnSQL(table string, c ColumnDef) string {
	var b strings.Builder
	b.WriteString("ALTER TABLE ")
	b.WriteString(table)
	b.WriteString(" ADD COLUMN ")
	b.WriteString(c.Name)
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

// DropTableSQL renders a DROP TABLE IF EXISTS statement.
func DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + table
}
