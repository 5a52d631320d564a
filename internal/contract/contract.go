// Package contract is the single source of truth for the repo-index and
// graph store schemas: every table, column, index, and flush order the
// engine relies on is declared here once and validated against the live
// database on open. Drift is fatal; there are no migrations.
package contract

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// ColumnType is the SQL storage class a column is declared with.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBlob    ColumnType = "BLOB"
)

// Column declares one column of a contract table.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	Default    string // raw SQL default expression, empty if none
	PrimaryKey bool
	AutoIncr   bool
}

// Index declares one index over a contract table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKeyIntent documents a logical (not necessarily DB-enforced) FK
// relationship used by validators and graph builders to reason about
// ownership; SQLite FK enforcement is optional and the contract tracks
// intent even where the live schema doesn't declare a REFERENCES clause.
type ForeignKeyIntent struct {
	Column           string
	ReferencesTable  string
	ReferencesColumn string
}

// Table declares one contract table in full: its columns, indexes, and
// foreign-key intent. FlushPriority orders table batches within a single
// flush_all transaction — lower values flush first.
type Table struct {
	Name          string
	Columns       []Column
	Indexes       []Index
	ForeignKeys   []ForeignKeyIntent
	FlushPriority int
}

func (t Table) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		part := fmt.Sprintf("  %s %s", c.Name, c.Type)
		if c.PrimaryKey {
			part += " PRIMARY KEY"
			if c.AutoIncr {
				part += " AUTOINCREMENT"
			}
		}
		if c.NotNull && !c.PrimaryKey {
			part += " NOT NULL"
		}
		if c.Default != "" {
			part += " DEFAULT " + c.Default
		}
		parts = append(parts, part)
	}
	b.WriteString(strings.Join(parts, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Contract is the full declared schema for one database file (either the
// repo-index store or the graph store).
type Contract struct {
	Tables []Table
}

// TablesInFlushOrder returns the contract's tables sorted by FlushPriority,
// the deterministic order the batched storage engine must flush in.
func (c *Contract) TablesInFlushOrder() []Table {
	out := make([]Table, len(c.Tables))
	copy(out, c.Tables)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FlushPriority < out[j].FlushPriority
	})
	return out
}

// Table looks up a declared table by name.
func (c *Contract) Table(name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Create issues CREATE TABLE / CREATE INDEX for every table in the
// contract against a fresh database. It never alters an existing table;
// callers are expected to open a fresh file per the "no migrations" rule.
func (c *Contract) Create(db *sql.DB) error {
	for _, t := range c.TablesInFlushOrder() {
		if _, err := db.Exec(t.createSQL()); err != nil {
			return fmt.Errorf("contract: create table %s: %w", t.Name, err)
		}
		for _, idx := range t.Indexes {
			uniq := ""
			if idx.Unique {
				uniq = "UNIQUE "
			}
			stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
				uniq, idx.Name, t.Name, strings.Join(idx.Columns, ", "))
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("contract: create index %s: %w", idx.Name, err)
			}
		}
	}
	return nil
}

// Violation describes one point of schema drift between the contract and
// the live database. SchemaContractViolation carries a slice of these.
type Violation struct {
	Table  string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Table, v.Detail)
}

// Validate reflects the live schema of db and compares it column-by-column
// and index-by-index against the contract. It returns a non-nil
// *SchemaContractViolation on any drift: missing table, missing or
// wrong-typed column, nullability disagreement, or a missing declared
// index. There is no best-effort mode — the caller treats a non-nil error
// as fatal and aborts before any write.
func (c *Contract) Validate(db *sql.DB) error {
	var violations []Violation
	for _, t := range c.Tables {
		cols, err := liveColumns(db, t.Name)
		if err != nil {
			violations = append(violations, Violation{Table: t.Name, Detail: "table missing: " + err.Error()})
			continue
		}
		for _, want := range t.Columns {
			got, ok := cols[want.Name]
			if !ok {
				violations = append(violations, Violation{t.Name, "column missing: " + want.Name})
				continue
			}
			if !typesCompatible(got.ctype, want.Type) {
				violations = append(violations, Violation{t.Name,
					fmt.Sprintf("column %s: declared type %s, live type %s", want.Name, want.Type, got.ctype)})
			}
			if want.NotNull && !got.notNull && !want.PrimaryKey {
				violations = append(violations, Violation{t.Name,
					fmt.Sprintf("column %s: declared NOT NULL, live schema allows NULL", want.Name)})
			}
		}
		liveIdx, err := liveIndexes(db, t.Name)
		if err != nil {
			violations = append(violations, Violation{t.Name, "could not list indexes: " + err.Error()})
			continue
		}
		for _, want := range t.Indexes {
			if !containsIndexOn(liveIdx, want.Columns) {
				violations = append(violations, Violation{t.Name,
					fmt.Sprintf("declared index on (%s) is absent", strings.Join(want.Columns, ", "))})
			}
		}
	}
	if len(violations) > 0 {
		return &SchemaContractViolation{Violations: violations}
	}
	return nil
}

type liveColumn struct {
	ctype   string
	notNull bool
}

func liveColumns(db *sql.DB, table string) (map[string]liveColumn, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]liveColumn)
	found := false
	for rows.Next() {
		found = true
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = liveColumn{ctype: strings.ToUpper(ctype), notNull: notNull != 0 || pk != 0}
	}
	if !found {
		return nil, fmt.Errorf("no such table")
	}
	return out, rows.Err()
}

type liveIndex struct {
	columns []string
}

func liveIndexes(db *sql.DB, table string) ([]liveIndex, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA index_list(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]liveIndex, 0, len(names))
	for _, name := range names {
		icols, err := db.Query(fmt.Sprintf("PRAGMA index_info(%s)", name))
		if err != nil {
			return nil, err
		}
		var cols []string
		for icols.Next() {
			var seqno, cid int
			var cname sql.NullString
			if err := icols.Scan(&seqno, &cid, &cname); err != nil {
				icols.Close()
				return nil, err
			}
			if cname.Valid {
				cols = append(cols, cname.String)
			}
		}
		icols.Close()
		out = append(out, liveIndex{columns: cols})
	}
	return out, nil
}

func containsIndexOn(have []liveIndex, want []string) bool {
	for _, idx := range have {
		if len(idx.columns) != len(want) {
			continue
		}
		match := true
		for i := range want {
			if idx.columns[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// typesCompatible applies SQLite's type-affinity rules loosely: the
// contract declares one of TEXT/INTEGER/REAL/BLOB and the live column must
// share the same affinity family.
func typesCompatible(live string, want ColumnType) bool {
	live = strings.ToUpper(live)
	switch want {
	case TypeInteger:
		return strings.Contains(live, "INT")
	case TypeReal:
		return strings.Contains(live, "REAL") || strings.Contains(live, "FLOA") || strings.Contains(live, "DOUB")
	case TypeBlob:
		return strings.Contains(live, "BLOB") || live == ""
	default: // TypeText
		return strings.Contains(live, "CHAR") || strings.Contains(live, "TEXT") || strings.Contains(live, "CLOB")
	}
}
