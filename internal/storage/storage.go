// Package storage defines the narrow boundary between the loading core and a
// concrete relational engine: statement execution, table/column existence
// probes, ignore-duplicates bulk insertion, identifier quoting, and
// JSON-schema-to-column type mapping.
//
// Concrete engines (mysql, postgres, mssql, sqlite) live in subpackages and
// register themselves with the factory at init time, mirroring the blank-
// import registration pattern used for the rest of the project's pluggable
// backends.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sqltarget/internal/schema"
)

// Engine is the loading core's view of a relational database. One Engine
// instance backs one target database; implementations are safe for use by
// multiple sinks concurrently (they are pool-backed).
type Engine interface {
	// Exec runs a DDL or DML statement, discarding any affected-row count.
	Exec(ctx context.Context, stmt string) error

	// ExecAffected runs a DML statement and returns the affected-row count,
	// or -1 when the engine cannot report one.
	ExecAffected(ctx context.Context, stmt string) (int64, error)

	// TableExists reports whether the (possibly schema-qualified, unquoted)
	// table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// ColumnExists reports whether the column exists on the table.
	ColumnExists(ctx context.Context, table, column string) (bool, error)

	// AddColumn adds a nullable column to an existing table.
	AddColumn(ctx context.Context, table, column, sqlType string) error

	// EnsureSchema creates the named schema/namespace if the engine supports
	// schemas and it is missing. Engines without schema support no-op.
	EnsureSchema(ctx context.Context, name string) error

	// InsertIgnore bulk-inserts rows into the table, silently dropping rows
	// that collide with an existing unique constraint. Rows are aligned to
	// the columns slice. Returns the number of rows the engine reports as
	// inserted, or -1 when unknown.
	InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(name string) string

	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable(table string) string

	// ColumnType maps a declared field descriptor to a column type.
	// maxVarchar bounds the width of variable-length text columns on engines
	// where that matters.
	ColumnType(f schema.Field, maxVarchar int) string

	// UpdateFromSQL renders the dialect's join-update statement: overwrite
	// cols on dest with the staging table's values for every row whose key
	// columns match. Both table names arrive unquoted and possibly
	// schema-qualified.
	UpdateFromSQL(dest, staging string, keys, cols []string) string

	// Close releases the underlying pool.
	Close()
}

// Config carries the options every engine needs to open a connection.
type Config struct {
	DSN string
}

// Factory opens an Engine for a given configuration.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for an engine kind. Called
// from engine packages' init() functions.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// Open constructs an Engine of the given kind. Unknown kinds list the
// registered ones in the error to make driver typos obvious.
func Open(ctx context.Context, kind string, cfg Config) (Engine, error) {
	regMu.RLock()
	f, ok := factories[kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown engine kind %q (registered: %v)", kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered engine kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
