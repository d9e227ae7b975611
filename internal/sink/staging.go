package sink

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"sqltarget/internal/ddl"
)

// stagingToken returns a fresh staging-table identifier: a v4 UUID with
// dashes swapped for underscores. Full UUID-strength randomness keeps the
// collision probability negligible for the life of the process, and the
// token's fixed 36-character length stays inside every target engine's
// identifier limit, which a name derived from the stream could not
// guarantee.
func stagingToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "_")
}

// stagingName places a staging token in the destination's schema so the
// staging table lives in the same namespace (and under the same privileges)
// as the table it feeds.
func (s *Sink) stagingName() string {
	if schemaName, _ := splitTable(s.table); schemaName != "" {
		return schemaName + "." + stagingToken()
	}
	return stagingToken()
}

// createStaging materializes a staging table shaped like the destination's
// current column set, including the primary key so the ignore-duplicates
// insert policy has a constraint to act on.
func (s *Sink) createStaging(ctx context.Context, name string) error {
	def := s.tableDef(name)
	stmt, err := ddl.BuildCreateTableSQL(def, s.eng.QuoteIdent)
	if err != nil {
		return fmt.Errorf("sink: staging ddl for %s: %w", s.table, err)
	}
	if err := s.eng.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("sink: create staging %s: %w", name, err)
	}
	return nil
}

// dropStaging removes a staging table. Failures are logged, not returned:
// an orphaned staging table is useless garbage, never silently-merged data,
// so cleanup is best-effort.
func (s *Sink) dropStaging(ctx context.Context, name string) {
	if err := s.eng.Exec(ctx, "DROP TABLE IF EXISTS "+s.eng.QuoteTable(name)); err != nil {
		log.Printf("sink: drop staging failed stream=%s staging=%s err=%v", s.stream, name, err)
	}
}
