package sink

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"sqltarget/internal/schema"
	"sqltarget/internal/storage"
	"sqltarget/internal/storage/sqlite"
)

func newEngine(t *testing.T) *sqlite.Engine {
	t.Helper()
	eng, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func usersSchema() schema.Schema {
	return schema.New(
		[]string{"id", "name", "qty"},
		map[string]schema.Field{
			"id":   {Types: []string{"integer"}},
			"name": {Types: []string{"null", "string"}},
			"qty":  {Types: []string{"null", "integer"}},
		},
	)
}

func newUsersSink(t *testing.T, eng storage.Engine, cfg Config) *Sink {
	t.Helper()
	s := New(eng, cfg, "users", usersSchema(), []string{"id"})
	if err := s.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return s
}

func push(t *testing.T, s *Sink, records ...map[string]any) {
	t.Helper()
	for _, r := range records {
		if err := s.Push(context.Background(), r, time.Time{}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
}

func drain(t *testing.T, s *Sink) {
	t.Helper()
	if err := s.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestDrainInsertsAndUpdates(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255})

	push(t, s,
		map[string]any{"id": int64(1), "name": "alice", "qty": int64(10)},
		map[string]any{"id": int64(2), "name": "bob", "qty": int64(20)},
	)
	drain(t, s)
	if n := countRows(t, eng.DB(), "users"); n != 2 {
		t.Fatalf("after first batch: got %d rows want 2", n)
	}

	// Second batch updates one existing key and introduces a new one.
	push(t, s,
		map[string]any{"id": int64(1), "name": "alice2", "qty": int64(11)},
		map[string]any{"id": int64(3), "name": "carol", "qty": int64(30)},
	)
	drain(t, s)

	if n := countRows(t, eng.DB(), "users"); n != 3 {
		t.Fatalf("after second batch: got %d rows want 3", n)
	}
	var name string
	var qty int64
	if err := eng.DB().QueryRow(`SELECT name, qty FROM users WHERE id = 1`).Scan(&name, &qty); err != nil {
		t.Fatalf("select id=1: %v", err)
	}
	if name != "alice2" || qty != 11 {
		t.Errorf("id=1 after update: got (%q, %d) want (%q, %d)", name, qty, "alice2", 11)
	}
}

func TestDrainReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255})

	batch := []map[string]any{
		{"id": int64(1), "name": "alice", "qty": int64(10)},
		{"id": int64(2), "name": "bob", "qty": int64(20)},
	}
	push(t, s, batch...)
	drain(t, s)
	push(t, s, batch...)
	drain(t, s)

	if n := countRows(t, eng.DB(), "users"); n != 2 {
		t.Fatalf("after replay: got %d rows want 2", n)
	}
	var name string
	if err := eng.DB().QueryRow(`SELECT name FROM users WHERE id = 2`).Scan(&name); err != nil {
		t.Fatalf("select id=2: %v", err)
	}
	if name != "bob" {
		t.Errorf("id=2 after replay: got %q want %q", name, "bob")
	}
}

func TestDrainAppendOnly(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := New(eng, Config{MaxVarchar: 255}, "events", schema.New(
		[]string{"kind"},
		map[string]schema.Field{"kind": {Types: []string{"string"}}},
	), nil)
	if !s.AppendOnly() {
		t.Fatal("keyless sink must be append-only")
	}
	if err := s.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	push(t, s,
		map[string]any{"kind": "click"},
		map[string]any{"kind": "click"},
		map[string]any{"kind": "view"},
	)
	drain(t, s)
	push(t, s, map[string]any{"kind": "click"})
	drain(t, s)

	if n := countRows(t, eng.DB(), "events"); n != 4 {
		t.Fatalf("append-only rows: got %d want 4", n)
	}
}

func TestDrainDropsStagingTable(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255})
	push(t, s, map[string]any{"id": int64(1), "name": "alice", "qty": int64(1)})
	drain(t, s)

	var n int
	err := eng.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&n)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if n != 1 {
		t.Fatalf("tables after drain: got %d want 1 (staging left behind?)", n)
	}
}

func TestPushFlushesAtBatchBound(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255, BatchSize: 2})

	push(t, s,
		map[string]any{"id": int64(1), "name": "a", "qty": int64(1)},
		map[string]any{"id": int64(2), "name": "b", "qty": int64(2)},
		map[string]any{"id": int64(3), "name": "c", "qty": int64(3)},
	)

	if n := countRows(t, eng.DB(), "users"); n != 2 {
		t.Fatalf("committed rows at bound: got %d want 2", n)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending after bound flush: got %d want 1", s.Pending())
	}
}

func TestSetupReconcilesMissingColumns(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255})
	push(t, s, map[string]any{"id": int64(1), "name": "alice", "qty": int64(1)})
	drain(t, s)

	wider := schema.New(
		[]string{"id", "name", "qty", "email"},
		map[string]schema.Field{
			"id":    {Types: []string{"integer"}},
			"name":  {Types: []string{"null", "string"}},
			"qty":   {Types: []string{"null", "integer"}},
			"email": {Types: []string{"null", "string"}},
		},
	)
	s2 := New(eng, Config{MaxVarchar: 255}, "users", wider, []string{"id"})
	if err := s2.Setup(context.Background()); err != nil {
		t.Fatalf("setup widened sink: %v", err)
	}

	ok, err := eng.ColumnExists(context.Background(), "users", "email")
	if err != nil {
		t.Fatalf("column probe: %v", err)
	}
	if !ok {
		t.Fatal("email column was not added")
	}

	push(t, s2, map[string]any{"id": int64(1), "name": "alice", "qty": int64(1), "email": "a@example.com"})
	drain(t, s2)
	var email string
	if err := eng.DB().QueryRow(`SELECT email FROM users WHERE id = 1`).Scan(&email); err != nil {
		t.Fatalf("select email: %v", err)
	}
	if email != "a@example.com" {
		t.Errorf("email after widened merge: got %q", email)
	}
}

func TestMetadataColumnsStamped(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255, AddMetadata: true})

	extracted := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if err := s.Push(context.Background(), map[string]any{"id": int64(1), "name": "alice", "qty": int64(1)}, extracted); err != nil {
		t.Fatalf("push: %v", err)
	}
	drain(t, s)

	var extractedAt, batchedAt sql.NullString
	err := eng.DB().QueryRow(`SELECT _sdc_extracted_at, _sdc_batched_at FROM users WHERE id = 1`).
		Scan(&extractedAt, &batchedAt)
	if err != nil {
		t.Fatalf("select metadata: %v", err)
	}
	if !extractedAt.Valid || extractedAt.String != "2026-08-25 12:00:00" {
		t.Errorf("_sdc_extracted_at: got %+v", extractedAt)
	}
	if !batchedAt.Valid || batchedAt.String == "" {
		t.Errorf("_sdc_batched_at: got %+v", batchedAt)
	}
}

// seedVersions loads four keyed rows and assigns version values 1, 2, 3 and
// NULL to them, the fixture both activation tests reconcile against.
func seedVersions(t *testing.T, eng *sqlite.Engine, s *Sink) {
	t.Helper()
	push(t, s,
		map[string]any{"id": int64(1), "name": "v1", "qty": int64(0)},
		map[string]any{"id": int64(2), "name": "v2", "qty": int64(0)},
		map[string]any{"id": int64(3), "name": "v3", "qty": int64(0)},
		map[string]any{"id": int64(4), "name": "vnull", "qty": int64(0)},
	)
	drain(t, s)
	if err := eng.AddColumn(context.Background(), "users", "_sdc_table_version", "INTEGER"); err != nil {
		t.Fatalf("add version column: %v", err)
	}
	for _, id := range []int{1, 2, 3} {
		stmt := fmt.Sprintf("UPDATE users SET _sdc_table_version = %d WHERE id = %d", id, id)
		if err := eng.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("set version: %v", err)
		}
	}
}

func TestActivateVersionHardDelete(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255, HardDelete: true})
	seedVersions(t, eng, s)

	if err := s.ActivateVersion(context.Background(), 2); err != nil {
		t.Fatalf("activate: %v", err)
	}

	rows, err := eng.DB().Query(`SELECT id FROM users ORDER BY id`)
	if err != nil {
		t.Fatalf("select survivors: %v", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("survivors: got %v want [3]", ids)
	}
}

func TestActivateVersionSoftDelete(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := newUsersSink(t, eng, Config{MaxVarchar: 255})
	seedVersions(t, eng, s)

	if err := s.ActivateVersion(context.Background(), 2); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Rows with version < 2 or NULL are marked; 2 and 3 survive unmarked.
	marked := map[int64]bool{}
	rows, err := eng.DB().Query(`SELECT id, _sdc_deleted_at IS NOT NULL FROM users`)
	if err != nil {
		t.Fatalf("select marks: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var m bool
		if err := rows.Scan(&id, &m); err != nil {
			t.Fatalf("scan: %v", err)
		}
		marked[id] = m
	}
	want := map[int64]bool{1: true, 2: false, 3: false, 4: true}
	for id, w := range want {
		if marked[id] != w {
			t.Errorf("id=%d marked: got %t want %t", id, marked[id], w)
		}
	}

	// A re-run must not refresh already-stamped deletion times.
	sentinel := "2000-01-01 00:00:00"
	if err := eng.Exec(context.Background(),
		`UPDATE users SET _sdc_deleted_at = '`+sentinel+`' WHERE _sdc_deleted_at IS NOT NULL`); err != nil {
		t.Fatalf("set sentinel: %v", err)
	}
	if err := s.ActivateVersion(context.Background(), 2); err != nil {
		t.Fatalf("activate again: %v", err)
	}
	var n int
	err = eng.DB().QueryRow(`SELECT COUNT(*) FROM users WHERE _sdc_deleted_at = '` + sentinel + `'`).Scan(&n)
	if err != nil {
		t.Fatalf("count sentinels: %v", err)
	}
	if n != 2 {
		t.Fatalf("sentinel deletion times: got %d want 2 (re-run refreshed them?)", n)
	}
}

// mutationCountingEngine counts the calls that would change database state.
type mutationCountingEngine struct {
	storage.Engine
	mutations int
}

func (m *mutationCountingEngine) Exec(ctx context.Context, stmt string) error {
	m.mutations++
	return m.Engine.Exec(ctx, stmt)
}

func (m *mutationCountingEngine) ExecAffected(ctx context.Context, stmt string) (int64, error) {
	m.mutations++
	return m.Engine.ExecAffected(ctx, stmt)
}

func (m *mutationCountingEngine) AddColumn(ctx context.Context, table, column, sqlType string) error {
	m.mutations++
	return m.Engine.AddColumn(ctx, table, column, sqlType)
}

func TestActivateVersionMissingTableIsNoop(t *testing.T) {
	t.Parallel()

	counting := &mutationCountingEngine{Engine: newEngine(t)}
	s := New(counting, Config{MaxVarchar: 255, HardDelete: true}, "users", usersSchema(), []string{"id"})

	// No Setup, no Drain: the destination table does not exist.
	if err := s.ActivateVersion(context.Background(), 5); err != nil {
		t.Fatalf("activate on missing table: %v", err)
	}
	if counting.mutations != 0 {
		t.Fatalf("mutations on missing table: got %d want 0", counting.mutations)
	}
}

func TestDestinationName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stream, target, want string
	}{
		{"users", "melty", "melty.users"},
		{"users", "", "users"},
		{"public-users", "", "public.users"},
		{"mydb-public-users", "", "public.users"},
		{"mydb-public-users", "override", "override.users"},
		{"a-b-c-d", "", "d"},
	}
	for _, c := range cases {
		if got := destinationName(c.stream, c.target); got != c.want {
			t.Errorf("destinationName(%q, %q): got %q want %q", c.stream, c.target, got, c.want)
		}
	}
}
