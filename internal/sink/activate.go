package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"sqltarget/internal/schema"
)

// sqlTimeLayout renders timestamps in the one literal form all four target
// engines accept.
const sqlTimeLayout = "2006-01-02 15:04:05"

// ActivateVersion reconciles the destination table against a new version
// watermark, deleting or soft-deleting rows whose stored version is stale or
// missing.
//
// When the destination table does not exist yet (the stream has produced no
// batch) the call is a no-op. The version column, and in soft-delete mode
// the deletion-timestamp column, are added lazily on first use.
//
// Hard delete removes every row with version <= watermark or a NULL version
// in one statement; it is irreversible. Soft delete stamps the deletion
// timestamp on rows with version < watermark or NULL version that are not
// already marked, so re-running with the same or a higher watermark never
// refreshes an existing deletion time.
func (s *Sink) ActivateVersion(ctx context.Context, version int64) error {
	exists, err := s.eng.TableExists(ctx, s.table)
	if err != nil {
		return fmt.Errorf("sink: activate version %s: %w", s.table, err)
	}
	if !exists {
		log.Printf("sink: activate version skipped stream=%s table=%s reason=missing_table", s.stream, s.table)
		return nil
	}

	intType := s.eng.ColumnType(schema.Field{Types: []string{"integer"}}, s.cfg.MaxVarchar)
	if err := s.ensureColumn(ctx, versionColumn, intType); err != nil {
		return err
	}

	qTable := s.eng.QuoteTable(s.table)
	qVersion := s.eng.QuoteIdent(versionColumn)

	if s.cfg.HardDelete {
		stmt := fmt.Sprintf(
			"DELETE FROM %s WHERE %s <= %d OR %s IS NULL",
			qTable, qVersion, version, qVersion,
		)
		n, err := s.eng.ExecAffected(ctx, stmt)
		if err != nil {
			return fmt.Errorf("sink: hard delete %s: %w", s.table, err)
		}
		log.Printf("sink: hard delete stream=%s table=%s version=%d deleted=%d", s.stream, s.table, version, n)
		return nil
	}

	tsType := s.eng.ColumnType(schema.Field{Types: []string{"string"}, Format: "date-time"}, s.cfg.MaxVarchar)
	if err := s.ensureColumn(ctx, softDeleteColumn, tsType); err != nil {
		return err
	}

	qDeleted := s.eng.QuoteIdent(softDeleteColumn)
	stmt := fmt.Sprintf(
		"UPDATE %s SET %s = '%s' WHERE (%s < %d OR %s IS NULL) AND %s IS NULL",
		qTable, qDeleted, time.Now().UTC().Format(sqlTimeLayout),
		qVersion, version, qVersion, qDeleted,
	)
	n, err := s.eng.ExecAffected(ctx, stmt)
	if err != nil {
		return fmt.Errorf("sink: soft delete %s: %w", s.table, err)
	}
	log.Printf("sink: soft delete stream=%s table=%s version=%d marked=%d", s.stream, s.table, version, n)
	return nil
}

// ensureColumn lazily adds a column if the destination does not have it yet.
func (s *Sink) ensureColumn(ctx context.Context, column, sqlType string) error {
	ok, err := s.eng.ColumnExists(ctx, s.table, column)
	if err != nil {
		return fmt.Errorf("sink: column probe %s.%s: %w", s.table, column, err)
	}
	if ok {
		return nil
	}
	if err := s.eng.AddColumn(ctx, s.table, column, sqlType); err != nil {
		return fmt.Errorf("sink: add column %s.%s: %w", s.table, column, err)
	}
	return nil
}
