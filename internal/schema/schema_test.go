package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
)

func TestSchemaDecodePreservesOrder(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"type": "object",
		"properties": {
			"zulu": {"type": "string"},
			"alpha": {"type": ["null", "integer"]},
			"mike": {"type": "string", "format": "date-time"}
		}
	}`)
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"zulu", "alpha", "mike"}
	if !reflect.DeepEqual(s.FieldNames(), want) {
		t.Fatalf("field order: got %v want %v", s.FieldNames(), want)
	}
	f, ok := s.Field("mike")
	if !ok {
		t.Fatal("mike not declared")
	}
	if f.Format != "date-time" {
		t.Errorf("format: got %q", f.Format)
	}
}

func TestSchemaDecodeEmptyProperties(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`{}`, `{"properties": {}}`, `{"properties": null}`} {
		var s Schema
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if s.HasProperties() {
			t.Errorf("%s: HasProperties got true", raw)
		}
	}
}

func TestFieldTypeUnion(t *testing.T) {
	t.Parallel()

	var f Field
	if err := json.Unmarshal([]byte(`{"type": ["null", "integer"]}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !f.Nullable() || !f.Is("integer") || f.Is("string") {
		t.Errorf("union field: %+v", f)
	}

	if err := json.Unmarshal([]byte(`{"type": "string"}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Nullable() || !f.Is("string") {
		t.Errorf("bare string field: %+v", f)
	}

	// No declared type means anything goes, including null.
	if err := json.Unmarshal([]byte(`{}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !f.Nullable() {
		t.Error("typeless field must be nullable")
	}

	if err := json.Unmarshal([]byte(`{"type": 7}`), &f); err == nil {
		t.Error("numeric type value must fail to decode")
	}
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()

	s := New(
		[]string{"id", "name", "score", "tags"},
		map[string]Field{
			"id":    {Types: []string{"integer"}},
			"name":  {Types: []string{"null", "string"}},
			"score": {Types: []string{"null", "number"}},
			"tags":  {Types: []string{"null", "array"}},
		},
	)

	ok := map[string]any{
		"id":    json.Number("1"),
		"name":  "alice",
		"score": json.Number("9.5"),
		"tags":  []any{"a"},
		"extra": "ignored",
	}
	if err := ValidateRecord("users", s, ok); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	// Nullable fields may be absent entirely.
	if err := ValidateRecord("users", s, map[string]any{"id": json.Number("2")}); err != nil {
		t.Fatalf("sparse record rejected: %v", err)
	}

	cases := []struct {
		name   string
		record map[string]any
		field  string
	}{
		{"missing non-nullable", map[string]any{"name": "x"}, "id"},
		{"wrong scalar type", map[string]any{"id": json.Number("1"), "name": json.Number("3")}, "name"},
		{"decimal for integer", map[string]any{"id": json.Number("1.5")}, "id"},
		{"object for array", map[string]any{"id": json.Number("1"), "tags": map[string]any{}}, "tags"},
	}
	for _, c := range cases {
		err := ValidateRecord("users", s, c.record)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: error type %T", c.name, err)
			continue
		}
		if ve.Stream != "users" || ve.Field != c.field {
			t.Errorf("%s: got stream=%q field=%q", c.name, ve.Stream, ve.Field)
		}
	}
}
