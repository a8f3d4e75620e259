// Package main provides the csvagent command.
//
//	csvagent serve [-config file]
//	csvagent ask [-config file] [-json] <file> <question>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/nao1215/csvagent"
	"github.com/nao1215/csvagent/internal/config"
	"github.com/nao1215/csvagent/internal/server"
	"github.com/nao1215/csvagent/llm"
)

const usage = `Usage:
  csvagent serve [-config file]
  csvagent ask [-config file] [-json] <file> <question>
`

var errUsage = errors.New("invalid arguments")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	switch args[0] {
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "ask":
		return runAsk(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg.LLM)
	if err != nil {
		return err
	}
	engine := newEngine(cfg, gen, logger)
	srv := server.New(cfg.Server, func() *csvagent.Session {
		return csvagent.NewSession(engine, sessionOptions(cfg, logger)...)
	}, logger)
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("failed to close session", slog.String("error", err.Error()))
		}
	}()

	hs := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("address", hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

func runAsk(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	asJSON := fs.Bool("json", false, "Print the answer as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: ask needs a file and a question", errUsage)
	}
	path := fs.Arg(0)
	question := strings.Join(fs.Args()[1:], " ")

	cfg, logger, err := setup(*configPath, stderr)
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg.LLM)
	if err != nil {
		return err
	}

	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	session := csvagent.NewSession(newEngine(cfg, gen, logger), sessionOptions(cfg, logger)...)
	defer func() { _ = session.Close() }()

	if _, err := session.Upload(ctx, data, filepath.Base(path)); err != nil {
		return err
	}
	if _, err := session.StartChat(ctx); err != nil {
		return err
	}
	result, err := session.Ask(ctx, question)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(stdout, result)
}

// setup loads the configuration and builds the logger
func setup(configPath string, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newGenerator(c config.LLMConfig) (llm.Generator, error) {
	opts := llm.Options{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
	switch c.Provider {
	case config.ProviderLlamaCpp:
		return llm.NewLlamaCpp(c.BaseURL, opts), nil
	case config.ProviderOllama:
		return llm.NewOllama(c.BaseURL, opts)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}

func newEngine(cfg *config.Config, gen llm.Generator, logger *slog.Logger) *csvagent.Engine {
	sampleRows := max(cfg.Query.SampleRows, 0)
	return csvagent.NewEngine(gen,
		csvagent.WithGenerationTimeout(cfg.LLM.Timeout),
		csvagent.WithMaxRows(cfg.Query.MaxRows),
		csvagent.WithSampleRows(sampleRows),
		csvagent.WithHistoryTurns(cfg.Query.HistoryTurns),
		csvagent.WithEngineLogger(logger),
	)
}

func sessionOptions(cfg *config.Config, logger *slog.Logger) []csvagent.SessionOption {
	return []csvagent.SessionOption{
		csvagent.WithUploadDir(cfg.Storage.UploadDir),
		csvagent.WithStorePath(cfg.Storage.StorePath),
		csvagent.WithSessionNamespace(cfg.Storage.NamespaceBySession),
		csvagent.WithSessionLogger(logger),
	}
}

func printResult(w io.Writer, result *csvagent.QueryResult) error {
	fmt.Fprintln(w, result.SQL)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if result.Truncated {
		fmt.Fprintf(w, "(showing the first %d rows)\n", len(result.Rows))
	}
	return nil
}
