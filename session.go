package csvagent

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/csvagent/domain/model"
)

// DefaultUploadDir is the default directory uploads and exports are written to
const DefaultUploadDir = "uploads"

// Session holds the state of one user working with one table: the current
// upload, the store built from it and the questions answered so far.
// Operations are serialized; a failed operation leaves the previous state in place.
type Session struct {
	mu sync.Mutex

	id           string
	loader       *Loader
	materializer *Materializer
	engine       *Engine
	logger       *slog.Logger

	current *LoadResult
	store   *Store
	history []Exchange
	export  string
	closed  bool
}

// SessionOption configures a Session
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	uploadDir string
	storePath string
	namespace bool
	logger    *slog.Logger
}

// WithUploadDir sets the directory uploads and exports are written to
func WithUploadDir(dir string) SessionOption {
	return func(o *sessionOptions) {
		if dir != "" {
			o.uploadDir = dir
		}
	}
}

// WithStorePath sets the store file, or MemoryStorePath
func WithStorePath(path string) SessionOption {
	return func(o *sessionOptions) {
		if path != "" {
			o.storePath = path
		}
	}
}

// WithSessionNamespace places uploads, exports and the store file in a
// directory named after the session ID below the upload directory
func WithSessionNamespace(enabled bool) SessionOption {
	return func(o *sessionOptions) {
		o.namespace = enabled
	}
}

// WithSessionLogger sets the logger used by the Session and its components
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewSession creates a Session that answers questions with engine
func NewSession(engine *Engine, opts ...SessionOption) *Session {
	o := &sessionOptions{
		uploadDir: DefaultUploadDir,
		storePath: DefaultStorePath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	id := uuid.NewString()
	uploadDir := o.uploadDir
	storePath := o.storePath
	if o.namespace {
		uploadDir = filepath.Join(uploadDir, id)
		if storePath != MemoryStorePath {
			storePath = filepath.Join(uploadDir, filepath.Base(storePath))
		}
	}
	logger := o.logger.With(slog.String("session", id))

	return &Session{
		id:           id,
		loader:       NewLoader(uploadDir, WithLoaderLogger(logger)),
		materializer: NewMaterializer(storePath, WithMaterializerLogger(logger)),
		engine:       engine,
		logger:       logger,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// UploadDir returns the directory uploads and exports are written to
func (s *Session) UploadDir() string {
	return s.loader.UploadDir()
}

// Upload loads a file and makes it the current table.
// The previous store and question history belong to the previous table and are dropped.
func (s *Session) Upload(ctx context.Context, data []byte, fileName string) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.loader.Load(ctx, data, fileName)
	if err != nil {
		return nil, err
	}
	s.closeStore()
	s.current = result
	s.history = nil
	s.export = ""
	return result, nil
}

// Current returns the current upload with statistics reflecting any edits
func (s *Session) Current() (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, NewErrorContext("table", "").Error(ErrNoTable, nil)
	}
	result := *s.current
	return &result, nil
}

// Table returns the current table
func (s *Session) Table() (*model.Table, error) {
	current, err := s.Current()
	if err != nil {
		return nil, err
	}
	return current.Table, nil
}

// Rename replaces the column names of the current table.
// The store keeps the old names until StartChat is called again.
func (s *Session) Rename(names []string) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ec := NewErrorContext("rename", "")
	if s.current == nil {
		return nil, ec.Error(ErrNoTable, nil)
	}
	ec.FilePath = s.current.Path
	renamed, err := s.current.Table.Rename(names)
	if err != nil {
		return nil, ec.WithTable(s.current.Table.Name()).Error(ErrInvalidRename, err)
	}
	s.replaceTable(renamed)
	s.logger.Info("columns renamed", slog.String("file", s.current.Path), slog.Int("columns", renamed.ColumnCount()))
	return renamed, nil
}

// Describe attaches free-text descriptions to the columns of the current table
func (s *Session) Describe(descriptions []string) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ec := NewErrorContext("describe", "")
	if s.current == nil {
		return nil, ec.Error(ErrNoTable, nil)
	}
	described, err := s.current.Table.Describe(descriptions)
	if err != nil {
		return nil, ec.WithTable(s.current.Table.Name()).Error(ErrInvalidRename, err)
	}
	s.replaceTable(described)
	return described, nil
}

// Export writes the current table to the upload directory and returns the path
func (s *Session) Export(ctx context.Context, options model.DumpOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", NewErrorContext("export", "").Error(ErrNoTable, nil)
	}
	path, err := Export(ctx, s.current.Table, s.loader.UploadDir(), options)
	if err != nil {
		return "", err
	}
	s.export = path
	s.logger.Info("table exported", slog.String("file", path), slog.Int("rows", s.current.Table.RowCount()))
	return path, nil
}

// LastExport returns the path of the most recent export of the current table
func (s *Session) LastExport() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export, s.export != ""
}

// StartChat materializes the current table into the store so questions can be asked.
// Calling it again rebuilds the store from the current table. When the rebuild
// fails the previous store stays in use.
func (s *Session) StartChat(ctx context.Context) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, NewErrorContext("materialize", s.materializer.Path()).Error(ErrNoTable, nil)
	}
	store, err := s.materializer.Materialize(ctx, s.current.Table)
	if err != nil {
		return nil, err
	}
	s.closeStore()
	s.store = store
	return store, nil
}

// Schema describes the store built by the last successful StartChat
func (s *Session) Schema(ctx context.Context) (model.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return model.Schema{}, NewErrorContext("schema", s.materializer.Path()).Error(ErrNoStore, nil)
	}
	return s.store.Schema(ctx)
}

// Ask answers a question against the store built by StartChat.
// Successful exchanges are remembered and shown to the model for later questions.
func (s *Session) Ask(ctx context.Context, question string) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, NewErrorContext("answer", s.materializer.Path()).Error(ErrNoStore, nil)
	}
	result, err := s.engine.AnswerWithHistory(ctx, question, s.store, s.history)
	if err != nil {
		return nil, err
	}
	s.history = append(s.history, Exchange{
		Question: result.Question,
		SQL:      result.SQL,
		At:       time.Now(),
	})
	return result, nil
}

// History returns the exchanges answered since the table was uploaded
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Close releases the store. The session cannot be used to ask questions afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.store != nil {
		err = s.store.Close()
		s.store = nil
	}
	return err
}

func (s *Session) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store", slog.String("file", s.store.Path()), slog.String("error", err.Error()))
	}
	s.store = nil
}

func (s *Session) replaceTable(table *model.Table) {
	next := *s.current
	next.Table = table
	next.Profiles = table.Profile()
	next.Summary.TotalColumns = table.ColumnCount()
	s.current = &next
}
