package singer

import "fmt"

// RecordsWithoutSchemaError reports a RECORD message that arrived before any
// SCHEMA message for its stream.
type RecordsWithoutSchemaError struct {
	Stream string
}

func (e *RecordsWithoutSchemaError) Error() string {
	return fmt.Sprintf("singer: schema message has not been sent for %q", e.Stream)
}
