package schema

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ValidationError reports a record value that does not conform to the
// stream's declared schema. Stream and Field identify where; Message says
// what went wrong.
type ValidationError struct {
	Stream  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: stream %q field %q: %s", e.Stream, e.Field, e.Message)
}

// ValidateRecord checks a record against the declared schema. Only declared
// fields are checked; extra fields are allowed and simply never reach a
// column. A missing field is only an error when the descriptor forbids null,
// since projection turns missing values into NULLs downstream.
func ValidateRecord(stream string, s Schema, record map[string]any) error {
	for _, name := range s.names {
		f := s.fields[name]
		v, present := record[name]
		if !present || v == nil {
			if !f.Nullable() {
				return &ValidationError{Stream: stream, Field: name, Message: "null value for non-nullable field"}
			}
			continue
		}
		if len(f.Types) == 0 {
			continue
		}
		if !conforms(f, v) {
			return &ValidationError{
				Stream:  stream,
				Field:   name,
				Message: fmt.Sprintf("value of type %T does not match declared type %v", v, f.Types),
			}
		}
	}
	return nil
}

// conforms reports whether a decoded JSON value matches one of the declared
// types. Numbers arrive as json.Number (the decode path always uses Number
// mode so arbitrary-precision decimals survive).
func conforms(f Field, v any) bool {
	switch t := v.(type) {
	case bool:
		return f.Is("boolean")
	case string:
		return f.Is("string")
	case json.Number:
		if f.Is("number") {
			return true
		}
		if f.Is("integer") {
			_, err := t.Int64()
			return err == nil
		}
		return false
	case float64:
		return f.Is("number") || f.Is("integer")
	case map[string]any:
		return f.Is("object")
	case []any:
		return f.Is("array")
	default:
		return false
	}
}
