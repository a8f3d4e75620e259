package csvagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/csvagent/llm"
)

// Engine defaults
const (
	DefaultGenerationTimeout = 60 * time.Second
	DefaultMaxRows           = 1000
	DefaultSampleRows        = 3
	DefaultHistoryTurns      = 3
)

// State is a step of answering one question
type State int

const (
	// StateReceived means the question was accepted
	StateReceived State = iota
	// StateSchemaIntrospected means the table layout was read from the store
	StateSchemaIntrospected
	// StatePromptBuilt means the conversation for the model is ready
	StatePromptBuilt
	// StateSQLGenerated means SQL was extracted from the model output
	StateSQLGenerated
	// StateSQLValidated means the SQL passed the safety gate
	StateSQLValidated
	// StateExecuted means the SQL ran against the store
	StateExecuted
	// StateAnswered means the result was returned
	StateAnswered
	// StateErrored means a step failed
	StateErrored
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateSchemaIntrospected:
		return "schema_introspected"
	case StatePromptBuilt:
		return "prompt_built"
	case StateSQLGenerated:
		return "sql_generated"
	case StateSQLValidated:
		return "sql_validated"
	case StateExecuted:
		return "executed"
	case StateAnswered:
		return "answered"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Exchange is a question answered earlier in the session
type Exchange struct {
	Question string    `json:"question"`
	SQL      string    `json:"sql"`
	At       time.Time `json:"at"`
}

// QueryResult is the answer to one question
type QueryResult struct {
	Question  string        `json:"question"`
	SQL       string        `json:"sql"`
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// StateHook observes state transitions. err is set for StateErrored.
type StateHook func(state State, err error)

// Engine answers natural-language questions by generating, checking and
// running SQL against a Store. It never writes to the store.
type Engine struct {
	gen          llm.Generator
	timeout      time.Duration
	maxRows      int
	sampleRows   int
	historyTurns int
	hook         StateHook
	logger       *slog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithGenerationTimeout bounds each model call
func WithGenerationTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxRows caps the rows returned per question
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithSampleRows sets how many table rows are shown to the model. Zero disables samples.
func WithSampleRows(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.sampleRows = n
		}
	}
}

// WithHistoryTurns sets how many earlier exchanges are included in the prompt
func WithHistoryTurns(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.historyTurns = n
		}
	}
}

// WithStateHook registers a state transition observer
func WithStateHook(hook StateHook) EngineOption {
	return func(e *Engine) {
		e.hook = hook
	}
}

// WithEngineLogger sets the logger used by the Engine
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine backed by gen
func NewEngine(gen llm.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		gen:          gen,
		timeout:      DefaultGenerationTimeout,
		maxRows:      DefaultMaxRows,
		sampleRows:   DefaultSampleRows,
		historyTurns: DefaultHistoryTurns,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer turns question into SQL, checks it and runs it against store
func (e *Engine) Answer(ctx context.Context, question string, store *Store) (*QueryResult, error) {
	return e.AnswerWithHistory(ctx, question, store, nil)
}

// AnswerWithHistory is Answer with earlier exchanges of the session shown to the model.
// Only the most recent exchanges, up to the configured number, are used.
func (e *Engine) AnswerWithHistory(ctx context.Context, question string, store *Store, history []Exchange) (*QueryResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	ec := NewErrorContext("answer", "").WithTable(TableName)

	e.transition(StateReceived, nil, slog.String("question", question))
	if store == nil {
		return nil, e.fail(ec.Error(ErrNoStore, nil))
	}
	ec.FilePath = store.Path()
	if question == "" {
		return nil, e.fail(ec.WithDetails("question is empty").Error(ErrGeneration, nil))
	}

	schema, err := store.Schema(ctx)
	if err != nil {
		return nil, e.fail(err)
	}
	var sample *QueryRows
	if e.sampleRows > 0 {
		if sample, err = store.Sample(ctx, e.sampleRows); err != nil {
			return nil, e.fail(err)
		}
	}
	e.transition(StateSchemaIntrospected, nil, slog.Int("columns", len(schema.Columns)))

	if len(history) > e.historyTurns {
		history = history[len(history)-e.historyTurns:]
	}
	conversation := buildConversation(question, schema, sample, history, e.maxRows)
	e.transition(StatePromptBuilt, nil, slog.Int("turns", len(conversation)))

	output, err := e.generate(ctx, conversation)
	if err != nil {
		return nil, e.fail(ec.Error(ErrGeneration, err))
	}
	sql, err := extractSQL(output)
	if err != nil {
		return nil, e.fail(ec.WithDetails(truncate(output, 200)).Error(ErrGeneration, err))
	}
	ec.WithSQL(sql)
	e.transition(StateSQLGenerated, nil, slog.String("sql", sql))

	if err := ValidateSQL(sql); err != nil {
		return nil, e.fail(ec.Error(ErrUnsafeQuery, err))
	}
	e.transition(StateSQLValidated, nil)

	rows, err := store.Query(ctx, sql, e.maxRows)
	if err != nil {
		return nil, e.fail(err)
	}
	e.transition(StateExecuted, nil, slog.Int("rows", len(rows.Rows)), slog.Bool("truncated", rows.Truncated))

	result := &QueryResult{
		Question:  question,
		SQL:       sql,
		Columns:   rows.Columns,
		Rows:      rows.Rows,
		Truncated: rows.Truncated,
		Duration:  time.Since(start),
	}
	e.transition(StateAnswered, nil, slog.Duration("duration", result.Duration))
	return result, nil
}

// generate calls the model within the generation timeout
func (e *Engine) generate(ctx context.Context, conversation llm.Conversation) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := e.gen.Generate(genCtx, conversation)
	if err != nil {
		if ctxErr := genCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", err
	}
	if ctxErr := genCtx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return output, nil
}

func (e *Engine) transition(state State, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("state", state.String()))
	for _, a := range attrs {
		args = append(args, a)
	}
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
		e.logger.Warn("query failed", args...)
	} else {
		e.logger.Debug("query state", args...)
	}
	if e.hook != nil {
		e.hook(state, err)
	}
}

func (e *Engine) fail(err error) error {
	e.transition(StateErrored, err, slog.String("sql", SQLOf(err)))
	return err
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
