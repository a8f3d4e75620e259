// Package config loads the csvagent configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLM providers
const (
	ProviderOllama   = "ollama"
	ProviderLlamaCpp = "llamacpp"
)

// Config holds the complete configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Query   QueryConfig   `yaml:"query"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// StorageConfig configures where uploads and the store live.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	// StorePath is the SQLite file, or ":memory:"
	StorePath string `yaml:"store_path"`
	// NamespaceBySession keeps every session's files in its own directory
	NamespaceBySession bool `yaml:"namespace_by_session"`
}

// LLMConfig configures the model server.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	MaxRows int `yaml:"max_rows"`
	// SampleRows is the number of rows shown to the model. A negative value disables samples.
	SampleRows   int `yaml:"sample_rows"`
	HistoryTurns int `yaml:"history_turns"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads configuration from a file. ${VAR} references are replaced with
// environment variables before parsing. An empty path returns the defaults.
// The path is expected to come from command line arguments.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadEnv loads variables from .env files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 200 << 20
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "uploads"
	}
	if cfg.Storage.StorePath == "" {
		cfg.Storage.StorePath = "DATABASE.db"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.Query.MaxRows == 0 {
		cfg.Query.MaxRows = 1000
	}
	if cfg.Query.SampleRows == 0 {
		cfg.Query.SampleRows = 3
	}
	if cfg.Query.HistoryTurns == 0 {
		cfg.Query.HistoryTurns = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.MaxUploadBytes < 0 {
		errs = append(errs, "server.max_upload_bytes must not be negative")
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderLlamaCpp:
	default:
		errs = append(errs, fmt.Sprintf("llm.provider must be %q or %q, got %q",
			ProviderOllama, ProviderLlamaCpp, c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, "llm.max_tokens must not be negative")
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, "llm.timeout must not be negative")
	}
	if c.Query.MaxRows < 0 {
		errs = append(errs, "query.max_rows must not be negative")
	}
	if c.Query.HistoryTurns < 0 {
		errs = append(errs, "query.history_turns must not be negative")
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err.Error())
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger returns a logger writing to w with the configured level and format.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
