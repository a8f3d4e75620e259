package csvagent

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrUnsupportedFormat indicates an upload whose extension is not a supported tabular format
	ErrUnsupportedFormat = errors.New("csvagent: unsupported file format")

	// ErrInvalidFileName indicates an upload name that is not a plain file name
	ErrInvalidFileName = errors.New("csvagent: invalid file name")

	// ErrParse indicates malformed or unreadable tabular content
	ErrParse = errors.New("csvagent: parse error")

	// ErrPersist indicates the uploaded bytes could not be written to disk
	ErrPersist = errors.New("csvagent: persist error")

	// ErrSchemaConflict indicates column names that cannot be represented in the store
	ErrSchemaConflict = errors.New("csvagent: schema conflict")

	// ErrIO indicates a storage failure while building or reading the store
	ErrIO = errors.New("csvagent: storage error")

	// ErrUnsafeQuery indicates generated SQL rejected by the safety gate
	ErrUnsafeQuery = errors.New("csvagent: unsafe query")

	// ErrGeneration indicates the language model failed or produced no usable SQL
	ErrGeneration = errors.New("csvagent: generation error")

	// ErrExecution indicates generated SQL failed when run against the store
	ErrExecution = errors.New("csvagent: execution error")

	// ErrInvalidRename indicates a rejected column rename
	ErrInvalidRename = errors.New("csvagent: invalid column rename")

	// ErrNoTable indicates an operation that needs an uploaded table
	ErrNoTable = errors.New("csvagent: no table loaded")

	// ErrNoStore indicates a question asked before the table was materialized
	ErrNoStore = errors.New("csvagent: no store available")
)

// Error is a failure with the context it occurred in.
// It unwraps to both its kind and its cause.
type Error struct {
	// Kind is one of the package error kinds
	Kind error
	// Operation is the step that failed, such as "load" or "materialize"
	Operation string
	// FilePath is the file involved, if any
	FilePath string
	// TableName is the table involved, if any
	TableName string
	// Column is the column involved, if any
	Column string
	// SQL is the query text involved, if any
	SQL string
	// Details is free-form context
	Details string
	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s: %s failed", e.Kind, e.Operation))

	if e.FilePath != "" {
		parts = append(parts, "file: "+e.FilePath)
	}
	if e.TableName != "" {
		parts = append(parts, "table: "+e.TableName)
	}
	if e.Column != "" {
		parts = append(parts, "column: "+e.Column)
	}
	if e.Details != "" {
		parts = append(parts, "details: "+e.Details)
	}
	if e.SQL != "" {
		parts = append(parts, "sql: "+e.SQL)
	}

	msg := strings.Join(parts, ", ")
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind and the cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SQLOf returns the SQL text attached to err, if any
func SQLOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQL
	}
	return ""
}

// ErrorContext provides context for where an error occurred
type ErrorContext struct {
	Operation string
	FilePath  string
	TableName string
	Column    string
	SQL       string
	Details   string
}

// NewErrorContext creates a new error context
func NewErrorContext(operation, filePath string) *ErrorContext {
	return &ErrorContext{
		Operation: operation,
		FilePath:  filePath,
	}
}

// WithTable adds table context to the error
func (ec *ErrorContext) WithTable(tableName string) *ErrorContext {
	ec.TableName = tableName
	return ec
}

// WithColumn adds column context to the error
func (ec *ErrorContext) WithColumn(column string) *ErrorContext {
	ec.Column = column
	return ec
}

// WithSQL attaches the query text to the error
func (ec *ErrorContext) WithSQL(sql string) *ErrorContext {
	ec.SQL = sql
	return ec
}

// WithDetails adds details to the error context
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error creates an error of the given kind with context and an optional cause
func (ec *ErrorContext) Error(kind, cause error) error {
	return &Error{
		Kind:      kind,
		Operation: ec.Operation,
		FilePath:  ec.FilePath,
		TableName: ec.TableName,
		Column:    ec.Column,
		SQL:       ec.SQL,
		Details:   ec.Details,
		Err:       cause,
	}
}
