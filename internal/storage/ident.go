package storage

import "strings"

// Split separates a possibly schema-qualified table name into its schema and
// table parts. Unqualified names return an empty schema.
func Split(table string) (schemaName, tableName string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// QuoteQualified quotes each dot-separated segment of a table name with the
// given quoter and rejoins them. Engines with conventional schema.table
// naming implement QuoteTable with this helper.
func QuoteQualified(quote func(string) string, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}
