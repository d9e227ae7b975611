package sink

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// prepareRows turns a batch of raw records into rows aligned to columns,
// ready for the staging bulk insert.
//
// In append-only mode every record passes through, projected onto exactly
// the column list (missing fields become NULL). Values that are nested
// containers or arbitrary-precision numbers are normalized to their
// string/JSON form on this path, because the parameter serialization used by
// the bulk insert cannot represent them directly.
//
// In keyed mode records collapse to one row per primary-key tuple: records
// are walked in arrival order and a later record for the same composite key
// overwrites the earlier one's projection (last-write-wins). The composite
// key is the concatenation of each key field's formatted value in key-list
// order. A record missing any key field fails the whole batch with a
// MissingPrimaryKeyError. Keyed projections are not normalized; see the
// decision log for why this asymmetry is kept.
func prepareRows(
	records []map[string]any,
	columns []string,
	keys []string,
	appendOnly bool,
	table, schemaName string,
) ([][]any, error) {
	if appendOnly {
		rows := make([][]any, 0, len(records))
		for _, rec := range records {
			row := make([]any, len(columns))
			for i, col := range columns {
				v, err := normalizeValue(rec[col])
				if err != nil {
					return nil, fmt.Errorf("sink: normalize %s.%s: %w", table, col, err)
				}
				row[i] = v
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	// Keyed mode: one projection per composite key, last write wins.
	byKey := map[string]int{}
	order := make([]string, 0, len(records))
	rows := make(map[string][]any, len(records))
	for _, rec := range records {
		var kb strings.Builder
		for _, k := range keys {
			v, ok := rec[k]
			if !ok {
				return nil, &MissingPrimaryKeyError{Table: table, Schema: schemaName, Keys: keys}
			}
			fmt.Fprintf(&kb, "%v", v)
		}
		key := kb.String()

		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = rec[col]
		}
		if _, seen := byKey[key]; !seen {
			byKey[key] = len(order)
			order = append(order, key)
		}
		rows[key] = row
	}

	out := make([][]any, 0, len(order))
	for _, key := range order {
		out = append(out, rows[key])
	}
	return out, nil
}

// normalizeValue rewrites values the driver layer cannot bind directly:
// arbitrary-precision numbers become their decimal string, nested containers
// become a JSON document (with embedded numbers also normalized to strings).
// Everything else passes through untouched.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(normalizeTree(v))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// normalizeTree walks a decoded JSON tree replacing every json.Number with
// its string form so the re-encoded document is precision-safe.
func normalizeTree(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeTree(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeTree(vv)
		}
		return out
	default:
		return v
	}
}
