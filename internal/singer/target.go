package singer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"sqltarget/internal/config"
	"sqltarget/internal/metrics"
	"sqltarget/internal/schema"
	"sqltarget/internal/sink"
	"sqltarget/internal/storage"
)

// maxLineBytes bounds a single input line. Wide records with embedded
// documents can get large; 64 MiB is far beyond anything seen in practice.
const maxLineBytes = 64 << 20

// Target consumes a message stream and routes records into per-stream
// sinks. Message handling is single-threaded; only the final drain runs
// sinks in parallel (each sink is stream-scoped, so they share no state
// beyond the pool-backed engine).
type Target struct {
	eng   storage.Engine
	cfg   config.Config
	out   io.Writer
	sinks map[string]*sink.Sink
}

// New builds a Target. Emitted STATE values are written to out.
func New(eng storage.Engine, cfg config.Config, out io.Writer) *Target {
	return &Target{
		eng:   eng,
		cfg:   cfg,
		out:   out,
		sinks: map[string]*sink.Sink{},
	}
}

// sinkConfig maps the file config onto the per-sink knobs.
func (t *Target) sinkConfig() sink.Config {
	targetSchema := t.cfg.DefaultTargetSchema
	if t.cfg.Driver == "sqlite" {
		// SQLite has no schema namespaces; a default schema would only
		// mangle table names.
		targetSchema = ""
	}
	return sink.Config{
		TargetSchema: targetSchema,
		HardDelete:   t.cfg.HardDelete,
		AddMetadata:  t.cfg.Metadata(),
		MaxVarchar:   t.cfg.MaxVarcharSize,
		BatchSize:    t.cfg.BatchSize,
	}
}

// Run consumes messages from r until EOF, then drains every sink. Any
// message-handling error aborts the run; the core retries nothing, leaving
// "re-run the batch from the top" to the operator, which the merge and
// activation paths make safe.
func (t *Target) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines int64
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++
		m, err := DecodeMessage(line)
		if err != nil {
			return fmt.Errorf("singer: line %d: %w", lines, err)
		}
		if err := t.handle(ctx, m); err != nil {
			return fmt.Errorf("singer: line %d: %w", lines, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("singer: read input: %w", err)
	}
	if err := t.drainAll(ctx); err != nil {
		return err
	}
	log.Printf("singer: input exhausted lines=%d streams=%d", lines, len(t.sinks))
	return nil
}

// handle dispatches one message. Unknown message types are skipped, per the
// protocol's forward-compatibility convention.
func (t *Target) handle(ctx context.Context, m Message) error {
	switch m.Type {
	case TypeSchema:
		return t.handleSchema(ctx, m)
	case TypeRecord:
		return t.handleRecord(ctx, m)
	case TypeActivateVersion:
		return t.handleActivateVersion(ctx, m)
	case TypeState:
		return t.handleState(ctx, m)
	default:
		log.Printf("singer: skipping unknown message type %q", m.Type)
		return nil
	}
}

// handleSchema creates the stream's sink, or rebuilds it on redeclaration.
// A redeclared schema first drains the pending batch under the old field
// set, then reconciles the destination table against the new one.
func (t *Target) handleSchema(ctx context.Context, m Message) error {
	if err := checkSchemaMessage(m); err != nil {
		return err
	}
	if old, ok := t.sinks[m.Stream]; ok {
		if err := old.Drain(ctx); err != nil {
			return err
		}
	}
	s := sink.New(t.eng, t.sinkConfig(), m.Stream, *m.Schema, m.KeyProperties)
	if err := s.Setup(ctx); err != nil {
		return err
	}
	t.sinks[m.Stream] = s
	log.Printf("singer: stream ready stream=%s table=%s append_only=%t", m.Stream, s.Table(), s.AppendOnly())
	return nil
}

// handleRecord validates the record against the declared schema and buffers
// it. Validation failures are logged with stream context and re-raised.
func (t *Target) handleRecord(ctx context.Context, m Message) error {
	if m.Stream == "" {
		return fmt.Errorf("singer: RECORD message is missing required key %q", "stream")
	}
	s, ok := t.sinks[m.Stream]
	if !ok {
		return &RecordsWithoutSchemaError{Stream: m.Stream}
	}
	if err := schema.ValidateRecord(m.Stream, s.Schema(), m.Record); err != nil {
		log.Printf("singer: record failed validation stream=%s err=%v", m.Stream, err)
		metrics.RecordRows(m.Stream, "rejected", 1)
		return err
	}
	metrics.RecordRows(m.Stream, "received", 1)

	var extractedAt time.Time
	if m.TimeExtracted != "" {
		if ts, err := time.Parse(time.RFC3339, m.TimeExtracted); err == nil {
			extractedAt = ts
		}
	}
	return s.Push(ctx, m.Record, extractedAt)
}

// handleActivateVersion flushes the stream's pending batch, then runs the
// version reconciliation against the destination table.
func (t *Target) handleActivateVersion(ctx context.Context, m Message) error {
	if m.Stream == "" || m.Version == nil {
		return fmt.Errorf("singer: ACTIVATE_VERSION message needs %q and %q", "stream", "version")
	}
	s, ok := t.sinks[m.Stream]
	if !ok {
		// No schema seen for this stream in this run; with no sink there
		// is no destination to reconcile.
		log.Printf("singer: activate version for unknown stream %q skipped", m.Stream)
		return nil
	}
	if err := s.Drain(ctx); err != nil {
		return err
	}
	return s.ActivateVersion(ctx, *m.Version)
}

// handleState drains every sink, then echoes the state value downstream.
// The echo only happens after all records preceding the state message are
// durably merged, which is what makes the emitted state a safe checkpoint.
func (t *Target) handleState(ctx context.Context, m Message) error {
	if err := t.drainAll(ctx); err != nil {
		return err
	}
	if t.out == nil || len(m.Value) == 0 {
		return nil
	}
	if _, err := t.out.Write(append(m.Value, '\n')); err != nil {
		return fmt.Errorf("singer: emit state: %w", err)
	}
	return nil
}

// drainAll flushes every sink's pending batch, at most MaxParallelism
// streams at a time.
func (t *Target) drainAll(ctx context.Context) error {
	limit := t.cfg.MaxParallelism
	if limit <= 0 {
		limit = config.DefaultMaxParallelism
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, s := range t.sinks {
		s := s
		g.Go(func() error { return s.Drain(ctx) })
	}
	return g.Wait()
}
