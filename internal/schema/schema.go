// Package schema models the declared shape of a stream: an ordered set of
// fields with JSON-schema style type descriptors, plus the primary-key list
// carried alongside it by the message layer.
//
// The model is deliberately small. It covers the subset of JSON Schema that
// upstream taps actually emit for flat records ("type" as a string or a
// ["null", ...] union, plus an optional "format" such as "date-time") and
// nothing more. Anything unrecognized maps to a permissive text column at the
// storage layer.
package schema

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Field is the type descriptor for a single declared field.
//
// Types holds the JSON Schema "type" value normalized to a list: a bare
// string decodes to a one-element list, an array decodes as-is. Format
// carries the optional "format" annotation (e.g. "date-time", "date").
type Field struct {
	Types  []string
	Format string
}

// rawField mirrors the wire shape of a property descriptor.
type rawField struct {
	Type   any    `json:"type"`
	Format string `json:"format"`
}

// UnmarshalJSON decodes a property descriptor, accepting "type" as either a
// single string or an array of strings.
func (f *Field) UnmarshalJSON(b []byte) error {
	var raw rawField
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("schema: decode field: %w", err)
	}
	f.Format = raw.Format
	f.Types = f.Types[:0]
	switch t := raw.Type.(type) {
	case nil:
	case string:
		f.Types = append(f.Types, t)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				f.Types = append(f.Types, s)
			}
		}
	default:
		return fmt.Errorf("schema: field type must be string or array, got %T", raw.Type)
	}
	return nil
}

// Nullable reports whether the field admits null, either explicitly via a
// "null" entry in the type union or implicitly by declaring no type at all.
func (f Field) Nullable() bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == "null" {
			return true
		}
	}
	return false
}

// Is reports whether kind appears in the field's type union.
func (f Field) Is(kind string) bool {
	for _, t := range f.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// Schema is a stream's declared field set. Field order is the declaration
// order from the wire, which downstream code uses for column ordering.
type Schema struct {
	fields map[string]Field
	names  []string
}

// New builds a Schema from an ordered list of (name, field) pairs. Intended
// for tests and programmatic construction; the wire path uses UnmarshalJSON.
func New(names []string, fields map[string]Field) Schema {
	s := Schema{fields: map[string]Field{}, names: append([]string(nil), names...)}
	for _, n := range names {
		s.fields[n] = fields[n]
	}
	return s
}

// FieldNames returns the declared field names in declaration order. The
// returned slice is shared; callers must not mutate it.
func (s Schema) FieldNames() []string { return s.names }

// Field returns the descriptor for name and whether it is declared.
func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Len returns the number of declared fields.
func (s Schema) Len() int { return len(s.names) }

// UnmarshalJSON decodes a JSON Schema object of the shape
// {"properties": {...}, ...}, preserving property declaration order.
// An absent or empty "properties" object yields a zero-length schema;
// the message layer decides whether that is an error.
func (s *Schema) UnmarshalJSON(b []byte) error {
	var outer struct {
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &outer); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	s.fields = map[string]Field{}
	s.names = nil
	if len(outer.Properties) == 0 || string(outer.Properties) == "null" {
		return nil
	}

	// Walk the properties object with a token decoder so that declaration
	// order survives the trip through Go (plain map decoding would lose it).
	dec := json.NewDecoder(bytes.NewReader(outer.Properties))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("schema: decode properties: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schema: properties must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("schema: decode property name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("schema: property name must be a string")
		}
		var f Field
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("schema: property %q: %w", name, err)
		}
		if _, dup := s.fields[name]; !dup {
			s.names = append(s.names, name)
		}
		s.fields[name] = f
	}
	return nil
}

// HasProperties reports whether the schema declares at least one field.
func (s Schema) HasProperties() bool { return len(s.names) > 0 }
