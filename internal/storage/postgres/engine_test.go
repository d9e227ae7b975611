package postgres

import (
	"context"
	"testing"

	"sqltarget/internal/schema"
)

// The rendering methods never touch the pool, so a zero Engine suffices.

func TestQuoting(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	if got := e.QuoteIdent(`na"me`); got != `"na""me"` {
		t.Errorf("QuoteIdent: got %s", got)
	}
	if got := e.QuoteTable("melty.users"); got != `"melty"."users"` {
		t.Errorf("QuoteTable: got %s", got)
	}
}

func TestColumnType(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	cases := []struct {
		f    schema.Field
		want string
	}{
		{schema.Field{Types: []string{"integer"}}, "BIGINT"},
		{schema.Field{Types: []string{"null", "number"}}, "NUMERIC"},
		{schema.Field{Types: []string{"boolean"}}, "BOOLEAN"},
		{schema.Field{Types: []string{"object"}}, "JSONB"},
		{schema.Field{Types: []string{"string"}, Format: "date-time"}, "TIMESTAMPTZ"},
		{schema.Field{Types: []string{"string"}, Format: "date"}, "DATE"},
		{schema.Field{Types: []string{"string"}}, "TEXT"},
	}
	for _, c := range cases {
		if got := e.ColumnType(c.f, 255); got != c.want {
			t.Errorf("ColumnType(%+v): got %q want %q", c.f, got, c.want)
		}
	}
}

func TestUpdateFromSQL(t *testing.T) {
	t.Parallel()

	e := &Engine{}
	got := e.UpdateFromSQL("melty.users", "melty.stg", []string{"id"}, []string{"id", "name"})
	want := `UPDATE "melty"."users" AS d SET "id" = s."id", "name" = s."name" FROM "melty"."stg" AS s WHERE d."id" = s."id"`
	if got != want {
		t.Errorf("statement:\ngot  %s\nwant %s", got, want)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
