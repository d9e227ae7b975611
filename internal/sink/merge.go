package sink

import (
	"context"
	"fmt"
	"strings"
)

// merge reconciles the staging table into the destination.
//
// Append-only streams take a pure INSERT ... SELECT: no join, no dedup
// against existing rows. Keyed streams run the two-statement merge:
//
//  1. insert-new: staging rows whose key tuple has no destination match
//     (LEFT JOIN, destination side NULL) are inserted;
//  2. update-existing: rows whose key tuple matches have every declared
//     column overwritten from staging, key columns restated as no-ops.
//
// The deduplicator guarantees at most one staging row per key tuple, so the
// two statements partition the staging set. They deliberately do not share a
// transaction: re-running the whole batch is idempotent because insert-new
// excludes keys that are already present and the update is an unconditional
// overwrite, so a crash between the statements is repaired by retrying the
// batch from the top. Affected-row counts are not reliable across engines
// and are used for logging only.
func (s *Sink) merge(ctx context.Context, staging string, columns []string) error {
	if s.appendOnly {
		stmt := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s",
			s.eng.QuoteTable(s.table), s.quoteList(columns),
			s.quoteList(columns), s.eng.QuoteTable(staging),
		)
		if err := s.eng.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sink: append %s: %w", s.table, err)
		}
		return nil
	}

	joins := make([]string, 0, len(s.keys))
	nulls := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		qk := s.eng.QuoteIdent(k)
		joins = append(joins, fmt.Sprintf("s.%s = d.%s", qk, qk))
		nulls = append(nulls, fmt.Sprintf("d.%s IS NULL", qk))
	}
	selects := make([]string, 0, len(columns))
	for _, c := range columns {
		selects = append(selects, "s."+s.eng.QuoteIdent(c))
	}

	insertNew := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s LEFT JOIN %s AS d ON %s WHERE %s",
		s.eng.QuoteTable(s.table), s.quoteList(columns),
		strings.Join(selects, ", "),
		s.eng.QuoteTable(staging), s.eng.QuoteTable(s.table),
		strings.Join(joins, " AND "), strings.Join(nulls, " AND "),
	)
	if err := s.eng.Exec(ctx, insertNew); err != nil {
		return fmt.Errorf("sink: merge insert %s: %w", s.table, err)
	}

	update := s.eng.UpdateFromSQL(s.table, staging, s.keys, columns)
	if _, err := s.eng.ExecAffected(ctx, update); err != nil {
		return fmt.Errorf("sink: merge update %s: %w", s.table, err)
	}
	return nil
}

// quoteList quotes and comma-joins a column list.
func (s *Sink) quoteList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.eng.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
