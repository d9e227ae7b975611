package storage

import (
	"context"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	var gotDSN string
	Register("fake", func(ctx context.Context, cfg Config) (Engine, error) {
		gotDSN = cfg.DSN
		return nil, nil
	})

	if _, err := Open(context.Background(), "fake", Config{DSN: "dsn-value"}); err != nil {
		t.Fatalf("open registered kind: %v", err)
	}
	if gotDSN != "dsn-value" {
		t.Errorf("factory config: got %q", gotDSN)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("kinds missing registration: %v", Kinds())
	}

	_, err := Open(context.Background(), "no-such-kind", Config{})
	if err == nil {
		t.Fatal("unknown kind: expected error")
	}
	if !strings.Contains(err.Error(), "fake") {
		t.Errorf("unknown-kind error should list registered kinds: %v", err)
	}
}
