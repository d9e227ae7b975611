package sink

import "fmt"

// MissingPrimaryKeyError reports a record that lacks a value for one of the
// stream's declared primary-key fields. It carries the destination table,
// target schema, and the full key list so the offending stream configuration
// is identifiable from the error alone.
type MissingPrimaryKeyError struct {
	Table  string
	Schema string
	Keys   []string
}

func (e *MissingPrimaryKeyError) Error() string {
	return fmt.Sprintf(
		"sink: primary key not found in record: table=%s schema=%s primary_keys=%v",
		e.Table, e.Schema, e.Keys,
	)
}
