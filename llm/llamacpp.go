package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultLlamaCppURL is the address of a local llama.cpp server
const DefaultLlamaCppURL = "http://127.0.0.1:8080"

// LlamaCpp generates text through the llama.cpp server /completion endpoint
type LlamaCpp struct {
	baseURL string
	opts    Options
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
}

type llamaCppError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewLlamaCpp creates a llama.cpp generator for the server at baseURL
func NewLlamaCpp(baseURL string, opts Options) *LlamaCpp {
	if baseURL == "" {
		baseURL = DefaultLlamaCppURL
	}
	return &LlamaCpp{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts.withDefaults(),
	}
}

// Generate implements Generator
func (l *LlamaCpp) Generate(ctx context.Context, conversation Conversation) (string, error) {
	prompt, err := l.opts.Renderer.Render(conversation)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(llamaCppRequest{
		Prompt:      prompt,
		NPredict:    l.opts.MaxTokens,
		Temperature: l.opts.Temperature,
		Stop:        l.opts.stopSequences(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llama.cpp completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr llamaCppError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("llama.cpp completion: status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("llama.cpp completion: status %d", resp.StatusCode)
	}

	var out llamaCppResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", errors.New("llama.cpp returned an empty response")
	}
	return out.Content, nil
}
