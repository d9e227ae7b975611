// Package mysql implements a MySQL-backed storage.Engine using database/sql
// and go-sql-driver/mysql. Duplicate suppression uses INSERT IGNORE;
// existence probes go through information_schema. In MySQL a schema is a
// database, so EnsureSchema issues CREATE SCHEMA IF NOT EXISTS.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // database/sql driver

	"sqltarget/internal/ddl"
	"sqltarget/internal/schema"
	"sqltarget/internal/storage"
)

// maxBindArgs bounds bound parameters per INSERT; MySQL's wire limit is
// 65535 placeholders, kept with plenty of headroom.
const maxBindArgs = 32000

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Engine is a MySQL-backed storage.Engine.
type Engine struct {
	db *sql.DB
}

var _ storage.Engine = (*Engine)(nil)

// Open opens a MySQL pool. The DSN uses go-sql-driver format, e.g.
// "user:pass@tcp(host:3306)/dbname".
func Open(ctx context.Context, dsn string) (*Engine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Engine{db: db}, nil
}

// Exec runs a statement, discarding the affected-row count.
func (e *Engine) Exec(ctx context.Context, stmt string) error {
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

// ExecAffected runs a DML statement and returns the affected-row count.
// Note that for multi-table UPDATE MySQL reports changed rows, not matched
// rows, so callers must not treat the count as authoritative.
func (e *Engine) ExecAffected(ctx context.Context, stmt string) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("mysql: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// TableExists probes information_schema.tables. Unqualified names resolve
// against the connection's default database.
func (e *Engine) TableExists(ctx context.Context, table string) (bool, error) {
	schemaName, tableName := storage.Split(table)
	var (
		one int
		err error
	)
	if schemaName == "" {
		err = e.db.QueryRowContext(ctx,
			`SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
			tableName,
		).Scan(&one)
	} else {
		err = e.db.QueryRowContext(ctx,
			`SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
			schemaName, tableName,
		).Scan(&one)
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mysql: table exists %q: %w", table, err)
	}
	return true, nil
}

// ColumnExists probes information_schema.columns.
func (e *Engine) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	schemaName, tableName := storage.Split(table)
	var (
		one int
		err error
	)
	if schemaName == "" {
		err = e.db.QueryRowContext(ctx,
			`SELECT 1 FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
			tableName, column,
		).Scan(&one)
	} else {
		err = e.db.QueryRowContext(ctx,
			`SELECT 1 FROM information_schema.columns WHERE table_schema = ? AND table_name = ? AND column_name = ?`,
			schemaName, tableName, column,
		).Scan(&one)
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mysql: column exists %s.%s: %w", table, column, err)
	}
	return true, nil
}

// AddColumn adds a nullable column.
func (e *Engine) AddColumn(ctx context.Context, table, column, sqlType string) error {
	stmt, err := ddl.BuildAddColumnSQL(e.QuoteTable(table), ddl.ColumnDef{Name: column, SQLType: sqlType, Nullable: true}, e.QuoteIdent)
	if err != nil {
		return fmt.Errorf("mysql: add column: %w", err)
	}
	return e.Exec(ctx, stmt)
}

// EnsureSchema creates the schema (database) if missing.
func (e *Engine) EnsureSchema(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return e.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+e.QuoteIdent(name))
}

// InsertIgnore bulk-inserts rows with INSERT IGNORE, chunked to respect the
// placeholder limit. Rows colliding with an existing unique constraint are
// silently dropped, which is the loader's documented staging-insert policy.
func (e *Engine) InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: insert: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	perChunk := maxBindArgs / len(columns)
	if perChunk < 1 {
		perChunk = 1
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = e.QuoteIdent(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var inserted int64
	for start := 0; start < len(rows); start += perChunk {
		end := start + perChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("mysql: row length %d != columns length %d", len(row), len(columns))
			}
			values = append(values, tuple)
			args = append(args, row...)
		}
		stmt := fmt.Sprintf(
			"INSERT IGNORE INTO %s (%s) VALUES %s",
			e.QuoteTable(table), strings.Join(cols, ", "), strings.Join(values, ", "),
		)
		res, err := e.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return inserted, fmt.Errorf("mysql: insert into %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	return inserted, nil
}

// QuoteIdent backtick-quotes an identifier segment.
func (e *Engine) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteTable quotes each segment of a possibly qualified name.
func (e *Engine) QuoteTable(table string) string {
	return storage.QuoteQualified(e.QuoteIdent, table)
}

// ColumnType maps a declared field to a MySQL column type. Strings become
// bounded VARCHARs (MySQL rows cap at 65535 bytes, so unbounded text on
// every column is not an option); maxVarchar is the configured bound.
func (e *Engine) ColumnType(f schema.Field, maxVarchar int) string {
	if maxVarchar <= 0 {
		maxVarchar = 255
	}
	switch {
	case f.Is("integer"):
		return "BIGINT"
	case f.Is("number"):
		return "DECIMAL(38, 10)"
	case f.Is("boolean"):
		return "TINYINT(1)"
	case f.Is("object"), f.Is("array"):
		return "JSON"
	case f.Format == "date-time":
		return "DATETIME"
	case f.Format == "date":
		return "DATE"
	default:
		return fmt.Sprintf("VARCHAR(%d)", maxVarchar)
	}
}

// UpdateFromSQL renders MySQL's multi-table join update.
func (e *Engine) UpdateFromSQL(dest, staging string, keys, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("d.%s = s.%s", e.QuoteIdent(c), e.QuoteIdent(c)))
	}
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("d.%s = s.%s", e.QuoteIdent(k), e.QuoteIdent(k)))
	}
	return fmt.Sprintf(
		"UPDATE %s AS d JOIN %s AS s ON %s SET %s",
		e.QuoteTable(dest), e.QuoteTable(staging), strings.Join(conds, " AND "), strings.Join(sets, ", "),
	)
}

// Close closes the underlying pool.
func (e *Engine) Close() { _ = e.db.Close() }
