// Package sqlite implements a SQLite-backed storage.Engine using
// database/sql. SQLite has no schema namespaces, so qualified table names are
// flattened ("melty.users" becomes "melty_users") and EnsureSchema is a
// no-op. Duplicate suppression uses INSERT OR IGNORE.
//
// Besides being a usable small-scale target, this engine is the project's
// test engine: the core merge and activation paths run against in-memory
// databases in the package tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // database/sql driver, cgo-free

	"sqltarget/internal/ddl"
	"sqltarget/internal/schema"
	"sqltarget/internal/storage"
)

// maxBindArgs bounds the number of bound parameters per INSERT statement.
// SQLite's default variable limit is generous in modern builds, but staying
// well under the historical 999 keeps the statement size predictable.
const maxBindArgs = 900

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Engine is a SQLite-backed storage.Engine.
type Engine struct {
	db *sql.DB
}

var _ storage.Engine = (*Engine)(nil)

// Open opens a SQLite database. The DSN is passed to database/sql verbatim,
// e.g. "file:target.db?cache=shared" or ":memory:".
func Open(ctx context.Context, dsn string) (*Engine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	// In-memory databases vanish when their last connection closes; pin a
	// single connection so every statement sees the same database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return &Engine{db: db}, nil
}

// DB exposes the underlying handle for tests.
func (e *Engine) DB() *sql.DB { return e.db }

// Exec runs a statement, discarding the affected-row count.
func (e *Engine) Exec(ctx context.Context, stmt string) error {
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// ExecAffected runs a DML statement and returns the affected-row count.
func (e *Engine) ExecAffected(ctx context.Context, stmt string) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("sqlite: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// TableExists probes sqlite_master for the flattened table name.
func (e *Engine) TableExists(ctx context.Context, table string) (bool, error) {
	var one int
	err := e.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`,
		flatten(table),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: table exists %q: %w", table, err)
	}
	return true, nil
}

// ColumnExists probes pragma_table_info for the column.
func (e *Engine) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var one int
	err := e.db.QueryRowContext(ctx,
		`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`,
		flatten(table), column,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: column exists %s.%s: %w", table, column, err)
	}
	return true, nil
}

// AddColumn adds a nullable column.
func (e *Engine) AddColumn(ctx context.Context, table, column, sqlType string) error {
	stmt, err := ddl.BuildAddColumnSQL(e.QuoteTable(table), ddl.ColumnDef{Name: column, SQLType: sqlType, Nullable: true}, e.QuoteIdent)
	if err != nil {
		return fmt.Errorf("sqlite: add column: %w", err)
	}
	return e.Exec(ctx, stmt)
}

// EnsureSchema is a no-op: SQLite has no schema namespaces.
func (e *Engine) EnsureSchema(ctx context.Context, name string) error { return nil }

// InsertIgnore bulk-inserts rows with INSERT OR IGNORE, chunked to respect
// the bind-variable limit, inside a single transaction per call.
func (e *Engine) InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: insert: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	perChunk := maxBindArgs / len(columns)
	if perChunk < 1 {
		perChunk = 1
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	var inserted int64
	for start := 0; start < len(rows); start += perChunk {
		end := start + perChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		stmt, args, err := buildInsert(e.QuoteTable(table), columns, chunk, e.QuoteIdent)
		if err != nil {
			_ = tx.Rollback()
			return inserted, err
		}
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// buildInsert renders a multi-row INSERT OR IGNORE with ? placeholders.
func buildInsert(quotedTable string, columns []string, rows [][]any, quote ddl.Quoter) (string, []any, error) {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quote(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
		}
		values = append(values, tuple)
		args = append(args, row...)
	}
	stmt := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES %s",
		quotedTable, strings.Join(cols, ", "), strings.Join(values, ", "),
	)
	return stmt, args, nil
}

// QuoteIdent double-quotes an identifier segment.
func (e *Engine) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteTable flattens any schema qualification, then quotes.
func (e *Engine) QuoteTable(table string) string {
	return e.QuoteIdent(flatten(table))
}

// flatten joins schema-qualified names with underscores since SQLite has no
// schema namespaces. "melty.users" -> "melty_users".
func flatten(table string) string {
	return strings.ReplaceAll(table, ".", "_")
}

// ColumnType maps a declared field to a SQLite column type. SQLite's type
// affinity makes the exact names forgiving; these match what the values
// produced by the loader actually are.
func (e *Engine) ColumnType(f schema.Field, maxVarchar int) string {
	switch {
	case f.Is("integer"):
		return "INTEGER"
	case f.Is("number"):
		return "REAL"
	case f.Is("boolean"):
		return "BOOLEAN"
	case f.Is("object"), f.Is("array"):
		return "TEXT"
	case f.Format == "date-time":
		return "TIMESTAMP"
	case f.Format == "date":
		return "DATE"
	default:
		return "TEXT"
	}
}

// UpdateFromSQL renders SQLite's UPDATE ... FROM join update. The SET list
// stays unqualified per SQLite's grammar; key matching happens in WHERE.
func (e *Engine) UpdateFromSQL(dest, staging string, keys, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = s.%s", e.QuoteIdent(c), e.QuoteIdent(c)))
	}
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("d.%s = s.%s", e.QuoteIdent(k), e.QuoteIdent(k)))
	}
	return fmt.Sprintf(
		"UPDATE %s AS d SET %s FROM %s AS s WHERE %s",
		e.QuoteTable(dest), strings.Join(sets, ", "), e.QuoteTable(staging), strings.Join(conds, " AND "),
	)
}

// Close closes the underlying pool.
func (e *Engine) Close() { _ = e.db.Close() }
