package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConversation() Conversation {
	return Conversation{}.
		Append(RoleSystem, "You write SQLite queries.").
		Append(RoleUser, "How many rows?")
}

func TestOllama_Generate(t *testing.T) {
	t.Parallel()

	t.Run("sends a raw prompt and returns the response", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"m","response":"SELECT COUNT(*) FROM data;","done":true}`))
		}))
		defer server.Close()

		gen, err := NewOllama(server.URL, Options{Model: "m", MaxTokens: 64})
		require.NoError(t, err)

		out, err := gen.Generate(context.Background(), testConversation())
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) FROM data;", out)

		assert.Equal(t, "m", got["model"])
		assert.Equal(t, true, got["raw"])
		assert.Equal(t, false, got["stream"])
		assert.Equal(t, "[INST] You write SQLite queries.\nHow many rows? [/INST]", got["prompt"])
		options, ok := got["options"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 0, options["temperature"])
		assert.EqualValues(t, 64, options["num_predict"])
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		gen, err := NewOllama(server.URL, Options{})
		require.NoError(t, err)

		_, err = gen.Generate(context.Background(), testConversation())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("empty response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"model":"m","response":"  ","done":true}`))
		}))
		defer server.Close()

		gen, err := NewOllama(server.URL, Options{})
		require.NoError(t, err)

		_, err = gen.Generate(context.Background(), testConversation())
		require.Error(t, err)
	})
}

func TestLlamaCpp_Generate(t *testing.T) {
	t.Parallel()

	t.Run("posts to /completion", func(t *testing.T) {
		t.Parallel()

		var got llamaCppRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/completion", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"content":" SELECT 1;"}`))
		}))
		defer server.Close()

		gen := NewLlamaCpp(server.URL+"/", Options{Temperature: 0.1, MaxTokens: 1024})
		out, err := gen.Generate(context.Background(), testConversation())
		require.NoError(t, err)
		assert.Equal(t, " SELECT 1;", out)

		assert.Equal(t, "[INST] You write SQLite queries.\nHow many rows? [/INST]", got.Prompt)
		assert.Equal(t, 1024, got.NPredict)
		assert.InDelta(t, 0.1, got.Temperature, 1e-9)
		assert.Equal(t, []string{"</s>", "[INST]"}, got.Stop)
		assert.False(t, got.Stream)
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"loading model"}}`))
		}))
		defer server.Close()

		_, err := NewLlamaCpp(server.URL, Options{}).Generate(context.Background(), testConversation())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading model")
	})

	t.Run("context deadline", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewLlamaCpp(server.URL, Options{}).Generate(ctx, testConversation())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGeneratorFunc(t *testing.T) {
	t.Parallel()

	var gen Generator = GeneratorFunc(func(_ context.Context, c Conversation) (string, error) {
		return c[len(c)-1].Content, nil
	})
	out, err := gen.Generate(context.Background(), testConversation())
	require.NoError(t, err)
	assert.Equal(t, "How many rows?", out)
}
