package csvagent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/nao1215/csvagent/domain/model"
)

const (
	// TableName is the name of the single table held by a Store
	TableName = "data"
	// MemoryStorePath selects a private in-memory database
	MemoryStorePath = ":memory:"
	// DefaultStorePath is the default store file name
	DefaultStorePath = "DATABASE.db"

	sqliteDriver = "sqlite"
)

// Materializer writes a table into a queryable SQLite store
type Materializer struct {
	path   string
	logger *slog.Logger
}

// MaterializerOption configures a Materializer
type MaterializerOption func(*Materializer)

// WithMaterializerLogger sets the logger used by the Materializer
func WithMaterializerLogger(logger *slog.Logger) MaterializerOption {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMaterializer creates a Materializer targeting the SQLite file at path.
// MemoryStorePath builds a fresh private in-memory database on every call.
func NewMaterializer(path string, opts ...MaterializerOption) *Materializer {
	if path == "" {
		path = DefaultStorePath
	}
	m := &Materializer{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the target store path
func (m *Materializer) Path() string {
	return m.path
}

// Materialize replaces the store contents with table as the table "data".
//
// The replacement is all-or-nothing: the new database is built in a
// temporary file, its row count is verified, and only then is it renamed
// over the target. On failure the previous store file is untouched.
// The returned Store is read-only.
func (m *Materializer) Materialize(ctx context.Context, table *model.Table) (*Store, error) {
	ec := NewErrorContext("materialize", m.path).WithTable(TableName)
	if table == nil {
		return nil, ec.Error(ErrNoTable, nil)
	}

	columns := table.Columns()
	if err := checkStoreColumns(columns); err != nil {
		return nil, ec.Error(ErrSchemaConflict, err)
	}

	start := time.Now()
	var (
		store *Store
		err   error
	)
	if m.path == MemoryStorePath {
		store, err = m.materializeMemory(ctx, table)
	} else {
		store, err = m.materializeFile(ctx, table)
	}
	if err != nil {
		return nil, ec.Error(ErrIO, err)
	}

	m.logger.Info("table materialized",
		slog.String("file", m.path),
		slog.Int("rows", table.RowCount()),
		slog.Int("columns", table.ColumnCount()),
		slog.Duration("duration", time.Since(start)))
	return store, nil
}

func (m *Materializer) materializeFile(ctx context.Context, table *model.Table) (*Store, error) {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary store: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
			_ = os.Remove(tmpName + "-journal")
		}
	}()

	db, err := sql.Open(sqliteDriver, tmpName)
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := populate(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary store: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		return nil, fmt.Errorf("failed to replace store: %w", err)
	}
	committed = true

	readOnly, err := sql.Open(sqliteDriver, readOnlyDSN(m.path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	readOnly.SetMaxOpenConns(1)
	if err := readOnly.PingContext(ctx); err != nil {
		_ = readOnly.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return newStore(readOnly, m.path, table.Columns(), table.RowCount()), nil
}

func (m *Materializer) materializeMemory(ctx context.Context, table *model.Table) (*Store, error) {
	db, err := sql.Open(sqliteDriver, MemoryStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := populate(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to make store read-only: %w", err)
	}
	return newStore(db, MemoryStorePath, table.Columns(), table.RowCount()), nil
}

// populate creates the data table and inserts every record in one transaction
func populate(ctx context.Context, db *sql.DB, table *model.Table) error {
	columns := table.Columns()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+model.QuoteIdentifier(TableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(columns)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = model.QuoteIdentifier(col.Name)
	}
	insertSQL, _, err := sq.Insert(model.QuoteIdentifier(TableName)).
		Columns(quoted...).
		Values(make([]any, len(columns))...).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert statement: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i, record := range table.Records() {
		for j, v := range record {
			args[j] = v.SQLValue()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i+1, err)
		}
	}

	count, err := countRows(ctx, tx)
	if err != nil {
		return err
	}
	if count != table.RowCount() {
		return fmt.Errorf("row count mismatch: stored %d, expected %d", count, table.RowCount())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRows(ctx context.Context, q rowQuerier) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From(model.QuoteIdentifier(TableName)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

// createTableSQL builds the CREATE TABLE statement with quoted identifiers
func createTableSQL(columns []model.Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s %s", model.QuoteIdentifier(col.Name), col.Type.SQLType())
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", model.QuoteIdentifier(TableName), strings.Join(defs, ", "))
}

// checkStoreColumns rejects names SQLite cannot hold as distinct columns.
// SQLite compares identifiers case-insensitively for ASCII letters.
func checkStoreColumns(columns []model.Column) error {
	if len(columns) == 0 {
		return errors.New("table has no columns")
	}
	seen := make(map[string]string, len(columns))
	for i, col := range columns {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("%w: column %d", model.ErrEmptyColumnName, i+1)
		}
		if strings.ContainsRune(col.Name, 0) {
			return fmt.Errorf("%w: column %d contains a NUL character", model.ErrInvalidColumnName, i+1)
		}
		key := asciiLower(col.Name)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q and %q", model.ErrDuplicateColumnName, prev, col.Name)
		}
		seen[key] = col.Name
	}
	return nil
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// readOnlyDSN opens a store file with writes refused by SQLite
func readOnlyDSN(path string) string {
	return "file:" + path + "?_pragma=query_only(1)"
}
