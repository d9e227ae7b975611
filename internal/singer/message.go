// Package singer implements the message-stream side of the target: decoding
// the line-delimited SCHEMA / RECORD / ACTIVATE_VERSION / STATE messages and
// dispatching them onto per-stream sinks.
package singer

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"sqltarget/internal/schema"
)

// Message type tags as they appear on the wire.
const (
	TypeSchema          = "SCHEMA"
	TypeRecord          = "RECORD"
	TypeActivateVersion = "ACTIVATE_VERSION"
	TypeState           = "STATE"
)

// Message is one decoded input line. Only the fields relevant to the
// message's type are populated.
type Message struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream"`
	Schema        *schema.Schema  `json:"schema"`
	KeyProperties []string        `json:"key_properties"`
	Record        map[string]any  `json:"record"`
	Version       *int64          `json:"version"`
	TimeExtracted string          `json:"time_extracted"`
	Value         json.RawMessage `json:"value"`
}

// DecodeMessage decodes one input line. Numbers decode as json.Number so
// arbitrary-precision decimals survive the trip to the database layer.
func DecodeMessage(line []byte) (Message, error) {
	var m Message
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("singer: decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("singer: message is missing required key %q", "type")
	}
	return m, nil
}

// checkSchemaMessage enforces the required keys of a SCHEMA message: the
// stream name, the schema itself, and a non-empty properties object.
func checkSchemaMessage(m Message) error {
	if m.Stream == "" {
		return fmt.Errorf("singer: SCHEMA message is missing required key %q", "stream")
	}
	if m.Schema == nil {
		return fmt.Errorf("singer: SCHEMA message for stream %q is missing required key %q", m.Stream, "schema")
	}
	if !m.Schema.HasProperties() {
		return fmt.Errorf("singer: SCHEMA message for stream %q is missing required key %q", m.Stream, "properties")
	}
	return nil
}
