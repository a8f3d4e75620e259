package model

import (
	"fmt"
	"strings"
)

// Record is one table row. Every record holds exactly one value per column.
type Record []Value

// Equal compares records value by value
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if !r[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Strings returns the raw cell text of the record
func (r Record) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

// Table is an in-memory two-dimensional dataset with a header row
type Table struct {
	name    string
	columns []Column
	records []Record
}

// NewTable builds a table from raw header and row text.
// Column types are inferred from the rows, short rows are padded with nulls
// and rows longer than the header extend it with "Unnamed: n" columns.
// Blank header cells are named the same way, n being the column index.
func NewTable(name string, header []string, rows [][]string) *Table {
	width := len(header)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	names := make([]string, width)
	copy(names, header)
	for i := range names {
		if strings.TrimSpace(names[i]) == "" {
			names[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}

	columns := InferColumns(names, rows)
	records := make([]Record, len(rows))
	for r, row := range rows {
		record := make(Record, width)
		for c := range width {
			if c < len(row) {
				record[c] = ParseValue(row[c], columns[c].Type)
			}
		}
		records[r] = record
	}
	return &Table{name: name, columns: columns, records: records}
}

// NewTableFromRecords builds a table from already typed columns and records
func NewTableFromRecords(name string, columns []Column, records []Record) (*Table, error) {
	for i, record := range records {
		if len(record) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d",
				ErrColumnCountMismatch, i+1, len(record), len(columns))
		}
	}
	return &Table{
		name:    name,
		columns: append([]Column(nil), columns...),
		records: records,
	}, nil
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// Columns returns a copy of the column metadata
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// Header returns the column names in order
func (t *Table) Header() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Records returns the rows. Callers must not modify them.
func (t *Table) Records() []Record { return t.records }

// RowCount returns the number of data rows
func (t *Table) RowCount() int { return len(t.records) }

// ColumnCount returns the number of columns
func (t *Table) ColumnCount() int { return len(t.columns) }

// Head returns up to n leading rows
func (t *Table) Head(n int) []Record {
	if n < 0 || n > len(t.records) {
		n = len(t.records)
	}
	return t.records[:n]
}

// Rename returns a copy of the table with new column names.
// Values, types and descriptions are untouched.
func (t *Table) Rename(names []string) (*Table, error) {
	if len(names) != len(t.columns) {
		return nil, fmt.Errorf("%w: got %d names for %d columns",
			ErrColumnCountMismatch, len(names), len(t.columns))
	}
	if err := ValidateColumnNames(names); err != nil {
		return nil, err
	}
	columns := t.Columns()
	for i := range columns {
		columns[i].Name = strings.TrimSpace(names[i])
	}
	return &Table{name: t.name, columns: columns, records: t.records}, nil
}

// Describe returns a copy of the table with per-column descriptions.
// An empty entry clears the description of that column.
func (t *Table) Describe(descriptions []string) (*Table, error) {
	if len(descriptions) != len(t.columns) {
		return nil, fmt.Errorf("%w: got %d descriptions for %d columns",
			ErrColumnCountMismatch, len(descriptions), len(t.columns))
	}
	columns := t.Columns()
	for i := range columns {
		columns[i].Description = strings.TrimSpace(descriptions[i])
	}
	return &Table{name: t.name, columns: columns, records: t.records}, nil
}

// Equal compares names, columns and records
func (t *Table) Equal(other *Table) bool {
	if t.name != other.name || len(t.columns) != len(other.columns) || len(t.records) != len(other.records) {
		return false
	}
	for i := range t.columns {
		if t.columns[i] != other.columns[i] {
			return false
		}
	}
	for i := range t.records {
		if !t.records[i].Equal(other.records[i]) {
			return false
		}
	}
	return true
}
