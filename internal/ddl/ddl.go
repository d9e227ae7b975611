// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render the CREATE TABLE and ALTER TABLE statements the loader needs.
//
// The package stays generic: it does not assume any specific SQL dialect.
// Identifier quoting is delegated to the caller through a Quoter function, and
// the fully-qualified table name is emitted verbatim (callers pre-quote it
// with their engine's rules). Backend packages supply their own type mapping;
// here a column type is just an opaque SQL string.
package ddl

import (
	"fmt"
	"strings"
)

// Quoter renders a single identifier segment in a dialect's quoting style.
type Quoter func(string) string

// ColumnDef describes one column of a table definition.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the pre-quoted, fully-qualified table name and an ordered
// list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
//   - t.FQN must be non-empty; it is emitted verbatim as the table name.
//   - Each column renders as <name> <type> [NOT NULL]; columns flagged
//     PrimaryKey are collected into a trailing PRIMARY KEY (...) clause.
//
// The statement carries no IF NOT EXISTS clause; callers gate creation on an
// existence probe because not every target dialect accepts the clause.
func BuildCreateTableSQL(t TableDef, quote Quoter) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	if quote == nil {
		quote = func(s string) string { return s }
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", fqn, strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL renders an ALTER TABLE ... ADD COLUMN statement. Added
// columns are always nullable so the statement is safe against tables that
// already hold rows.
func BuildAddColumnSQL(fqn string, c ColumnDef, quote Quoter) (string, error) {
	fqn = strings.TrimSpace(fqn)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.SQLType) == "" {
		return "", fmt.Errorf("ddl: add column needs a name and a type")
	}
	if quote == nil {
		quote = func(s string) string { return s }
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", fqn, quote(c.Name), c.SQLType), nil
}
