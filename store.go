package csvagent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/csvagent/domain/model"
)

// Store is a read-only SQLite database holding one table named "data".
// It is safe for concurrent use; SQLite access is serialized on one connection.
type Store struct {
	db       *sql.DB
	path     string
	columns  []model.Column
	rowCount int

	closeOnce sync.Once
	closeErr  error
}

// QueryRows is the tabular result of a query
type QueryRows struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

func newStore(db *sql.DB, path string, columns []model.Column, rowCount int) *Store {
	return &Store{
		db:       db,
		path:     path,
		columns:  columns,
		rowCount: rowCount,
	}
}

// Path returns the database file path, or MemoryStorePath
func (s *Store) Path() string {
	return s.path
}

// RowCount returns the number of rows written when the store was built
func (s *Store) RowCount() int {
	return s.rowCount
}

// Count returns the current number of rows in the data table
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := countRows(ctx, s.db)
	if err != nil {
		return 0, NewErrorContext("count", s.path).WithTable(TableName).Error(ErrIO, err)
	}
	return count, nil
}

// Schema reads the data table layout back from the database and merges in
// the logical types and descriptions recorded at materialization.
func (s *Store) Schema(ctx context.Context) (model.Schema, error) {
	ec := NewErrorContext("schema", s.path).WithTable(TableName)

	rows, err := s.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", TableName)
	if err != nil {
		return model.Schema{}, ec.Error(ErrIO, err)
	}
	defer func() { _ = rows.Close() }()

	schema := model.Schema{Table: TableName}
	for rows.Next() {
		var name, sqlType string
		if err := rows.Scan(&name, &sqlType); err != nil {
			return model.Schema{}, ec.Error(ErrIO, err)
		}
		col := model.SchemaColumn{Name: name, SQLType: strings.ToUpper(sqlType), Type: logicalType(sqlType)}
		if i := len(schema.Columns); i < len(s.columns) && s.columns[i].Name == name {
			col.Type = s.columns[i].Type
			col.Description = s.columns[i].Description
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return model.Schema{}, ec.Error(ErrIO, err)
	}
	if len(schema.Columns) == 0 {
		return model.Schema{}, ec.WithDetails("table not found").Error(ErrIO, nil)
	}
	return schema, nil
}

// Sample returns up to n rows of the data table
func (s *Store) Sample(ctx context.Context, n int) (*QueryRows, error) {
	if n <= 0 {
		return &QueryRows{}, nil
	}
	query, args, err := sq.Select("*").From(model.QuoteIdentifier(TableName)).Limit(uint64(n)).ToSql()
	if err != nil {
		return nil, NewErrorContext("sample", s.path).Error(ErrIO, err)
	}
	result, err := s.query(ctx, query, args, n)
	if err != nil {
		return nil, NewErrorContext("sample", s.path).WithSQL(query).Error(ErrIO, err)
	}
	return result, nil
}

// Query runs a read-only statement and returns at most maxRows rows.
// A maxRows of zero or less means no limit.
func (s *Store) Query(ctx context.Context, query string, maxRows int) (*QueryRows, error) {
	result, err := s.query(ctx, query, nil, maxRows)
	if err != nil {
		return nil, NewErrorContext("query", s.path).WithSQL(query).Error(ErrExecution, err)
	}
	return result, nil
}

func (s *Store) query(ctx context.Context, query string, args []any, maxRows int) (*QueryRows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &QueryRows{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the database handle. Calling Close more than once is safe.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func logicalType(sqlType string) model.ColumnType {
	switch strings.ToUpper(sqlType) {
	case model.SQLTypeInteger:
		return model.ColumnTypeInteger
	case model.SQLTypeReal:
		return model.ColumnTypeFloat
	default:
		return model.ColumnTypeText
	}
}
