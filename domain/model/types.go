// Package model provides the domain model for csvagent: typed cell values,
// tables, column profiles and the schema handed to the query engine.
package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateColumnName is returned when a table would contain duplicate column names
	ErrDuplicateColumnName = errors.New("duplicate column name")
	// ErrEmptyColumnName is returned when a column name is empty or blank
	ErrEmptyColumnName = errors.New("empty column name")
	// ErrInvalidColumnName is returned when a column name contains a NUL byte
	ErrInvalidColumnName = errors.New("invalid column name")
	// ErrColumnCountMismatch is returned when the number of names or values does not match the columns
	ErrColumnCountMismatch = errors.New("column count mismatch")
)

// ColumnType represents the inferred logical type of a column
type ColumnType int

const (
	// ColumnTypeText represents free text
	ColumnTypeText ColumnType = iota
	// ColumnTypeInteger represents 64-bit integers
	ColumnTypeInteger
	// ColumnTypeFloat represents 64-bit floating point numbers
	ColumnTypeFloat
	// ColumnTypeBoolean represents true/false values
	ColumnTypeBoolean
	// ColumnTypeDatetime represents dates, times and timestamps
	ColumnTypeDatetime
)

const (
	// SQLTypeText is the SQL TEXT type string
	SQLTypeText = "TEXT"
	// SQLTypeInteger is the SQL INTEGER type string
	SQLTypeInteger = "INTEGER"
	// SQLTypeReal is the SQL REAL type string
	SQLTypeReal = "REAL"
)

// String returns the logical type name
func (ct ColumnType) String() string {
	switch ct {
	case ColumnTypeInteger:
		return "integer"
	case ColumnTypeFloat:
		return "float"
	case ColumnTypeBoolean:
		return "boolean"
	case ColumnTypeDatetime:
		return "datetime"
	default:
		return "text"
	}
}

// SQLType returns the closest SQLite column type.
// SQLite has no native boolean or datetime type, so both are stored as TEXT.
func (ct ColumnType) SQLType() string {
	switch ct {
	case ColumnTypeInteger:
		return SQLTypeInteger
	case ColumnTypeFloat:
		return SQLTypeReal
	default:
		return SQLTypeText
	}
}

// MarshalText implements encoding.TextMarshaler
func (ct ColumnType) MarshalText() ([]byte, error) {
	return []byte(ct.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (ct *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*ct = parsed
	return nil
}

// ParseColumnType parses a logical type name as produced by ColumnType.String
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ColumnTypeText, nil
	case "integer":
		return ColumnTypeInteger, nil
	case "float":
		return ColumnTypeFloat, nil
	case "boolean":
		return ColumnTypeBoolean, nil
	case "datetime":
		return ColumnTypeDatetime, nil
	default:
		return ColumnTypeText, fmt.Errorf("unknown column type: %q", s)
	}
}

// Column describes a single table column
type Column struct {
	// Name is the column header
	Name string `json:"name"`
	// Type is the inferred logical type
	Type ColumnType `json:"type"`
	// Description is optional free text supplied by the user
	Description string `json:"description,omitempty"`
}

// ValidateColumnNames checks for blank, duplicate and NUL-containing column names.
// Comparison ignores surrounding whitespace and case, matching how SQLite resolves identifiers.
func ValidateColumnNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return fmt.Errorf("%w: column %d", ErrEmptyColumnName, i+1)
		}
		if strings.ContainsRune(name, 0) {
			return fmt.Errorf("%w: column %d", ErrInvalidColumnName, i+1)
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumnName, name)
		}
		seen[key] = true
	}
	return nil
}
