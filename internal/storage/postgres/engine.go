// Package postgres implements a Postgres-backed storage.Engine using pgx v5
// and pgxpool. Duplicate suppression uses ON CONFLICT DO NOTHING; existence
// probes go through information_schema.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"sqltarget/internal/ddl"
	"sqltarget/internal/schema"
	"sqltarget/internal/storage"
)

// maxBindArgs bounds bound parameters per INSERT; the Postgres extended
// protocol caps at 65535.
const maxBindArgs = 32000

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Engine is a Postgres-backed storage.Engine.
type Engine struct {
	pool *pgxpool.Pool
}

var _ storage.Engine = (*Engine)(nil)

// Open opens a pgx pool. The DSN is any libpq-style or URL-style connection
// string pgxpool accepts.
func Open(ctx context.Context, dsn string) (*Engine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Engine{pool: pool}, nil
}

// Exec runs a statement, discarding the affected-row count.
func (e *Engine) Exec(ctx context.Context, stmt string) error {
	if _, err := e.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// ExecAffected runs a DML statement and returns the affected-row count.
func (e *Engine) ExecAffected(ctx context.Context, stmt string) (int64, error) {
	tag, err := e.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("postgres: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TableExists probes information_schema.tables. Unqualified names resolve
// against the connection's current schema.
func (e *Engine) TableExists(ctx context.Context, table string) (bool, error) {
	schemaName, tableName := storage.Split(table)
	var exists bool
	var err error
	if schemaName == "" {
		err = e.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
			tableName,
		).Scan(&exists)
	} else {
		err = e.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
			schemaName, tableName,
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: table exists %q: %w", table, err)
	}
	return exists, nil
}

// ColumnExists probes information_schema.columns.
func (e *Engine) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	schemaName, tableName := storage.Split(table)
	var exists bool
	var err error
	if schemaName == "" {
		err = e.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2)`,
			tableName, column,
		).Scan(&exists)
	} else {
		err = e.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 AND column_name = $3)`,
			schemaName, tableName, column,
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: column exists %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// AddColumn adds a nullable column.
func (e *Engine) AddColumn(ctx context.Context, table, column, sqlType string) error {
	stmt, err := ddl.BuildAddColumnSQL(e.QuoteTable(table), ddl.ColumnDef{Name: column, SQLType: sqlType, Nullable: true}, e.QuoteIdent)
	if err != nil {
		return fmt.Errorf("postgres: add column: %w", err)
	}
	return e.Exec(ctx, stmt)
}

// EnsureSchema creates the schema if missing.
func (e *Engine) EnsureSchema(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return e.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+e.QuoteIdent(name))
}

// InsertIgnore bulk-inserts rows with ON CONFLICT DO NOTHING, chunked to
// respect the protocol's parameter limit.
func (e *Engine) InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: insert: columns must not be empty")
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
				return inserted, fmt.Errorf("postgres: row length %d != columns length %d", len(row), len(columns))
			}
			ph := make([]string, len(row))
			for i := range row {
				ph[i] = fmt.Sprintf("$%d", len(args)+i+1)
			}
			values = append(values, "("+strings.Join(ph, ", ")+")")
			args = append(args, row...)
		}
		stmt := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
			e.QuoteTable(table), strings.Join(cols, ", "), strings.Join(values, ", "),
		)
		tag, err := e.pool.Exec(ctx, stmt, args...)
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert into %s: %w", table, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// QuoteIdent double-quotes an identifier segment.
func (e *Engine) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteTable quotes each segment of a possibly qualified name.
func (e *Engine) QuoteTable(table string) string {
	return storage.QuoteQualified(e.QuoteIdent, table)
}

// ColumnType maps a declared field to a Postgres column type. TEXT carries
// no storage penalty in Postgres, so strings stay unbounded regardless of
// maxVarchar.
func (e *Engine) ColumnType(f schema.Field, maxVarchar int) string {
	switch {
	case f.Is("integer"):
		return "BIGINT"
	case f.Is("number"):
		return "NUMERIC"
	case f.Is("boolean"):
		return "BOOLEAN"
	case f.Is("object"), f.Is("array"):
		return "JSONB"
	case f.Format == "date-time":
		return "TIMESTAMPTZ"
	case f.Format == "date":
		return "DATE"
	default:
		return "TEXT"
	}
}

// UpdateFromSQL renders Postgres's UPDATE ... FROM join update. SET names
// stay unqualified per the grammar.
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

// Close releases the pool.
func (e *Engine) Close() { e.pool.Close() }
