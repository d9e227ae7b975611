// Package sink implements the batch commit protocol: per-stream buffering,
// destination-table reconciliation, staging-table creation, primary-key
// deduplication, the staging-to-destination merge, and activate-version
// reconciliation.
//
// One Sink exists per stream and processes its batches strictly
// sequentially. Different streams' sinks may run concurrently; they share a
// pool-backed storage.Engine and no other mutable state.
package sink

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sqltarget/internal/ddl"
	"sqltarget/internal/metrics"
	"sqltarget/internal/schema"
	"sqltarget/internal/storage"
)

// Reserved metadata columns beyond the stream's declared fields.
const (
	extractedAtColumn = "_sdc_extracted_at"
	batchedAtColumn   = "_sdc_batched_at"
	softDeleteColumn  = "_sdc_deleted_at"
	versionColumn     = "_sdc_table_version"
)

// Config carries the sink-level knobs shared by every stream.
type Config struct {
	// TargetSchema overrides schema-name derivation from the stream name.
	TargetSchema string
	// HardDelete selects hard over soft deletion during activate-version.
	HardDelete bool
	// AddMetadata adds the _sdc_extracted_at/_sdc_batched_at columns.
	AddMetadata bool
	// MaxVarchar bounds variable-length text columns where the engine cares.
	MaxVarchar int
	// BatchSize is the record count that forces a flush.
	BatchSize int
}

// Sink loads one stream into one destination table.
type Sink struct {
	eng    storage.Engine
	cfg    Config
	stream string
	sch    schema.Schema
	keys   []string

	// appendOnly is fixed at construction from the key declaration: a
	// stream with no primary keys only ever appends.
	appendOnly bool
	table      string

	pending []map[string]any
}

// New builds a sink for a stream. The mode (append-only vs upsert) and the
// destination table name are both derived once, here, and never re-derived
// per batch.
func New(eng storage.Engine, cfg Config, stream string, sch schema.Schema, keys []string) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100000
	}
	return &Sink{
		eng:        eng,
		cfg:        cfg,
		stream:     stream,
		sch:        sch,
		keys:       append([]string(nil), keys...),
		appendOnly: len(keys) == 0,
		table:      destinationName(stream, cfg.TargetSchema),
	}
}

// destinationName derives the qualified destination table name from the
// stream name. The table is the last dash-separated segment. The schema is
// the configured target schema when set; otherwise, for two- or three-part
// stream names, the second-to-last segment; otherwise none.
func destinationName(stream, targetSchema string) string {
	parts := strings.Split(stream, "-")
	name := parts[len(parts)-1]
	schemaName := targetSchema
	if schemaName == "" && (len(parts) == 2 || len(parts) == 3) {
		schemaName = parts[len(parts)-2]
	}
	if schemaName == "" {
		return name
	}
	return schemaName + "." + name
}

// splitTable separates a qualified table name into schema and table parts.
func splitTable(table string) (schemaName, tableName string) {
	return storage.Split(table)
}

// Stream returns the stream name this sink serves.
func (s *Sink) Stream() string { return s.stream }

// Table returns the qualified destination table name.
func (s *Sink) Table() string { return s.table }

// AppendOnly reports whether the sink runs in append-only mode.
func (s *Sink) AppendOnly() bool { return s.appendOnly }

// Pending returns the number of buffered records.
func (s *Sink) Pending() int { return len(s.pending) }

// Schema returns the declared stream schema.
func (s *Sink) Schema() schema.Schema { return s.sch }

// Setup creates the target schema and destination table if absent. Called
// once when the stream's schema message arrives.
func (s *Sink) Setup(ctx context.Context) error {
	if schemaName, _ := splitTable(s.table); schemaName != "" {
		if err := s.eng.EnsureSchema(ctx, schemaName); err != nil {
			return fmt.Errorf("sink: ensure schema for %s: %w", s.table, err)
		}
	}
	return s.ensureDestination(ctx)
}

// columns returns the full destination column list: declared fields in
// declaration order plus the metadata columns when enabled.
func (s *Sink) columns() []string {
	names := s.sch.FieldNames()
	cols := make([]string, 0, len(names)+2)
	cols = append(cols, names...)
	if s.cfg.AddMetadata {
		cols = append(cols, extractedAtColumn, batchedAtColumn)
	}
	return cols
}

// tableDef builds the dialect-mapped table definition for fqn (destination
// or staging) from the current column set.
func (s *Sink) tableDef(fqn string) ddl.TableDef {
	keySet := make(map[string]struct{}, len(s.keys))
	for _, k := range s.keys {
		keySet[k] = struct{}{}
	}

	var defs []ddl.ColumnDef
	for _, name := range s.sch.FieldNames() {
		f, _ := s.sch.Field(name)
		_, isKey := keySet[name]
		defs = append(defs, ddl.ColumnDef{
			Name:       name,
			SQLType:    s.eng.ColumnType(f, s.cfg.MaxVarchar),
			Nullable:   !isKey,
			PrimaryKey: isKey,
		})
	}
	if s.cfg.AddMetadata {
		ts := schema.Field{Types: []string{"null", "string"}, Format: "date-time"}
		defs = append(defs,
			ddl.ColumnDef{Name: extractedAtColumn, SQLType: s.eng.ColumnType(ts, s.cfg.MaxVarchar), Nullable: true},
			ddl.ColumnDef{Name: batchedAtColumn, SQLType: s.eng.ColumnType(ts, s.cfg.MaxVarchar), Nullable: true},
		)
	}
	return ddl.TableDef{FQN: s.eng.QuoteTable(fqn), Columns: defs}
}

// ensureDestination idempotently creates the destination table, or
// reconciles an existing one by adding any declared columns it lacks as
// nullable columns. The destination's column set is therefore a superset of
// the stream's fields before any merge runs.
func (s *Sink) ensureDestination(ctx context.Context) error {
	exists, err := s.eng.TableExists(ctx, s.table)
	if err != nil {
		return fmt.Errorf("sink: table probe %s: %w", s.table, err)
	}
	if !exists {
		stmt, err := ddl.BuildCreateTableSQL(s.tableDef(s.table), s.eng.QuoteIdent)
		if err != nil {
			return fmt.Errorf("sink: destination ddl %s: %w", s.table, err)
		}
		if err := s.eng.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sink: create table %s: %w", s.table, err)
		}
		return nil
	}

	for _, name := range s.sch.FieldNames() {
		f, _ := s.sch.Field(name)
		if err := s.ensureColumn(ctx, name, s.eng.ColumnType(f, s.cfg.MaxVarchar)); err != nil {
			return err
		}
	}
	if s.cfg.AddMetadata {
		ts := schema.Field{Types: []string{"null", "string"}, Format: "date-time"}
		tsType := s.eng.ColumnType(ts, s.cfg.MaxVarchar)
		if err := s.ensureColumn(ctx, extractedAtColumn, tsType); err != nil {
			return err
		}
		if err := s.ensureColumn(ctx, batchedAtColumn, tsType); err != nil {
			return err
		}
	}
	return nil
}

// Push buffers one record, flushing first when the batch bound is reached.
// extractedAt is the upstream extraction time; the zero value means the
// message did not carry one.
func (s *Sink) Push(ctx context.Context, record map[string]any, extractedAt time.Time) error {
	if len(s.pending) >= s.cfg.BatchSize {
		if err := s.Drain(ctx); err != nil {
			return err
		}
	}
	if s.cfg.AddMetadata && !extractedAt.IsZero() {
		record[extractedAtColumn] = extractedAt.UTC().Format(sqlTimeLayout)
	}
	s.pending = append(s.pending, record)
	return nil
}

// Drain commits the pending batch: reconcile the destination, create a
// staging table, prepare rows (projection, dedup, normalization), bulk
// insert into staging, merge into the destination, and drop the staging
// table. An empty buffer is a no-op. The buffer is cleared only after the
// merge succeeds, so the caller's retry of a failed batch re-processes the
// same records; every step is idempotent or excluded-by-predicate, which
// makes that retry safe.
func (s *Sink) Drain(ctx context.Context) (err error) {
	if len(s.pending) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordStep(s.stream, "drain", err, time.Since(start)) }()

	if err = s.ensureDestination(ctx); err != nil {
		return err
	}

	cols := s.columns()
	if s.cfg.AddMetadata {
		batchedAt := time.Now().UTC().Format(sqlTimeLayout)
		for _, rec := range s.pending {
			rec[batchedAtColumn] = batchedAt
		}
	}

	schemaName, _ := splitTable(s.table)
	rows, err := prepareRows(s.pending, cols, s.keys, s.appendOnly, s.table, schemaName)
	if err != nil {
		return err
	}

	staging := s.stagingName()
	if err = s.createStaging(ctx, staging); err != nil {
		return err
	}
	defer s.dropStaging(ctx, staging)

	staged, err := s.eng.InsertIgnore(ctx, staging, cols, rows)
	if err != nil {
		return fmt.Errorf("sink: stage batch for %s: %w", s.table, err)
	}
	if err = s.merge(ctx, staging, cols); err != nil {
		return err
	}

	metrics.RecordRows(s.stream, "loaded", int64(len(rows)))
	metrics.RecordBatch(s.stream)
	log.Printf(
		"sink: batch committed stream=%s table=%s records=%d rows=%d staged=%d elapsed=%s",
		s.stream, s.table, len(s.pending), len(rows), staged,
		time.Since(start).Truncate(time.Millisecond),
	)
	s.pending = s.pending[:0]
	return nil
}
