package model

import (
	"fmt"
	"strings"
)

// SchemaColumn is a column as declared in the store
type SchemaColumn struct {
	Name        string     `json:"name"`
	SQLType     string     `json:"sql_type"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description,omitempty"`
}

// Schema is the table layout handed to the query engine
type Schema struct {
	Table   string         `json:"table"`
	Columns []SchemaColumn `json:"columns"`
}

// String renders the schema as the table description used in prompts
func (s Schema) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s (\n", QuoteIdentifier(s.Table))
	for i, col := range s.Columns {
		fmt.Fprintf(&b, "  %s %s", QuoteIdentifier(col.Name), col.SQLType)
		if i < len(s.Columns)-1 {
			b.WriteString(",")
		}

		var notes []string
		if col.Type == ColumnTypeBoolean || col.Type == ColumnTypeDatetime {
			notes = append(notes, col.Type.String())
		}
		if col.Description != "" {
			notes = append(notes, strings.ReplaceAll(col.Description, "\n", " "))
		}
		if len(notes) > 0 {
			b.WriteString(" -- " + strings.Join(notes, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// QuoteIdentifier wraps an SQL identifier in double quotes, doubling embedded quotes
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
