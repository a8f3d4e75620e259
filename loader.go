package csvagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/csvagent/domain/model"
)

// LoadResult is the outcome of a successful upload
type LoadResult struct {
	// Table is the parsed table
	Table *model.Table
	// Summary holds the headline figures of the upload
	Summary model.TableSummary
	// Profiles holds per-column statistics
	Profiles []model.ColumnProfile
	// Path is where the uploaded bytes were persisted
	Path string
	// FileType is the detected input format
	FileType model.FileType
}

// Loader persists uploaded files and parses them into tables
type Loader struct {
	uploadDir string
	logger    *slog.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger used by the Loader
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader that persists uploads under uploadDir
func NewLoader(uploadDir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		uploadDir: uploadDir,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// UploadDir returns the directory uploads are written to
func (l *Loader) UploadDir() string {
	return l.uploadDir
}

// Load persists data as fileName under the upload directory, then parses it.
//
// The format is chosen by extension. Unsupported extensions and unsafe file
// names are rejected before anything is written. Persisting always completes
// before parsing starts, so a parse failure leaves the raw upload on disk.
func (l *Loader) Load(ctx context.Context, data []byte, fileName string) (*LoadResult, error) {
	ec := NewErrorContext("load", fileName)

	if err := validateFileName(fileName); err != nil {
		return nil, ec.Error(ErrInvalidFileName, err)
	}
	fileType, compression := model.DetectFileType(fileName)
	if fileType == model.FileTypeUnsupported {
		return nil, ec.WithDetails("supported extensions are .csv, .tsv, .xlsx, .xls and .parquet").
			Error(ErrUnsupportedFormat, nil)
	}

	path, err := l.persist(data, fileName)
	if err != nil {
		return nil, ec.Error(ErrPersist, err)
	}
	ec.FilePath = path

	if err := ctx.Err(); err != nil {
		return nil, ec.Error(ErrParse, err)
	}

	raw, err := decompress(data, compression)
	if err != nil {
		return nil, ec.Error(ErrParse, err)
	}

	table, err := parseTable(ctx, raw, fileType, model.TableNameFromPath(fileName))
	if err != nil {
		return nil, ec.WithDetails(fileType.String()).Error(ErrParse, err)
	}

	result := &LoadResult{
		Table:    table,
		Summary:  table.Summarize(int64(len(data))),
		Profiles: table.Profile(),
		Path:     path,
		FileType: fileType,
	}
	l.logger.Info("file loaded",
		slog.String("file", path),
		slog.Int("rows", result.Summary.TotalRows),
		slog.Int("columns", result.Summary.TotalColumns),
		slog.Int64("bytes", result.Summary.SizeBytes))
	return result, nil
}

// persist writes data atomically to the upload directory
func (l *Loader) persist(data []byte, fileName string) (string, error) {
	if err := os.MkdirAll(l.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(l.uploadDir, fileName)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic writes to a temporary file in the same directory and renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// validateFileName accepts plain base names only
func validateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("file name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("file name %q is reserved", name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return fmt.Errorf("file name %q must not contain directory components", name)
	case strings.ContainsRune(name, 0):
		return errors.New("file name contains a NUL character")
	}
	return nil
}
