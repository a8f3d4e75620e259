package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is the address of a local Ollama server
const DefaultOllamaURL = "http://127.0.0.1:11434"

// DefaultModel is the instruction-tuned model used when none is configured
const DefaultModel = "mistral:7b-instruct-v0.3-q8_0"

// Options holds sampling settings shared by the generators
type Options struct {
	// Model is the model name understood by the server
	Model string
	// Temperature is the sampling temperature. Zero gives deterministic output.
	Temperature float64
	// MaxTokens caps the generated length. Zero leaves the server default.
	MaxTokens int
	// Renderer formats conversations. Defaults to MistralInstruct.
	Renderer Renderer
	// HTTPClient is used for requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Renderer == nil {
		o.Renderer = MistralInstruct{}
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}

// stopSequences returns the renderer's stop markers, if it has any
func (o Options) stopSequences() []string {
	if s, ok := o.Renderer.(interface{ StopSequences() []string }); ok {
		return s.StopSequences()
	}
	return nil
}

// Ollama generates text through an Ollama server in raw prompt mode
type Ollama struct {
	client *api.Client
	opts   Options
}

// NewOllama creates an Ollama generator for the server at baseURL
func NewOllama(baseURL string, opts Options) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	opts = opts.withDefaults()
	return &Ollama{
		client: api.NewClient(u, opts.HTTPClient),
		opts:   opts,
	}, nil
}

// Generate implements Generator
func (o *Ollama) Generate(ctx context.Context, conversation Conversation) (string, error) {
	prompt, err := o.opts.Renderer.Render(conversation)
	if err != nil {
		return "", err
	}

	options := map[string]any{
		"temperature": o.opts.Temperature,
	}
	if o.opts.MaxTokens > 0 {
		options["num_predict"] = o.opts.MaxTokens
	}
	if stop := o.opts.stopSequences(); len(stop) > 0 {
		options["stop"] = stop
	}

	stream := false
	req := &api.GenerateRequest{
		Model:   o.opts.Model,
		Prompt:  prompt,
		Raw:     true,
		Stream:  &stream,
		Options: options,
	}

	var out strings.Builder
	err = o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", errors.New("ollama returned an empty response")
	}
	return out.String(), nil
}
