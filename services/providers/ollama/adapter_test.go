package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/services/providers"
)

func testConfig(url string) providers.ProviderConfig {
	cfg := providers.DefaultProviderConfig()
	cfg.BaseURL = url
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestAdapter_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello world", req.Prompt)

		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.5, -0.25, 1}})
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	vec, err := adapter.Embed(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
}

func TestAdapter_Embed_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"loading model"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1}})
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	vec, err := adapter.Embed(context.Background(), "x")

	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAdapter_Embed_PermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    string
	}{
		{
			name: "bad request is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"model \"nomic-embed-text\" not found"}`))
			},
			code: "HTTP_404",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"embedding": "nope"`))
			},
			code: "UNMARSHAL_ERROR",
		},
		{
			name: "empty vector",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"embedding": []}`))
			},
			code: "EMPTY_EMBEDDING",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
			_, err := adapter.Embed(context.Background(), "x")

			var provErr *providers.ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.code, provErr.Code)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestAdapter_Embed_BreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 0
	adapter := NewAdapter(cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := adapter.Embed(context.Background(), "x")
		require.Error(t, err)
	}
	_, err := adapter.Embed(context.Background(), "x")

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestAdapter_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.7, req.Options.Temperature)
		assert.Equal(t, 0.9, req.Options.TopP)
		assert.Equal(t, 1000, req.Options.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{"response": "Hello there!", "done": true})
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	answer, err := adapter.Complete(context.Background(), "Hi", rag.DefaultGenerationOptions)

	require.NoError(t, err)
	assert.Equal(t, "Hello there!", answer)
}

func TestAdapter_Complete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	_, err := adapter.Complete(context.Background(), "Hi", rag.DefaultGenerationOptions)

	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusInternalServerError, provErr.StatusCode)
	assert.Equal(t, "boom", provErr.Message)
	assert.True(t, provErr.Retryable)
}

func collect(t *testing.T, stream rag.TokenStream) ([]string, error) {
	t.Helper()
	var parts []string
	for {
		p, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if err != nil {
			return parts, err
		}
		parts = append(parts, p)
	}
}

func TestAdapter_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		lines := []string{
			`{"response":"Hello","done":false}`,
			`not json at all`,
			``,
			`{"done":false}`,
			`{"response":" world","done":false}`,
			`{"response":"!","done":true}`,
			`{"response":"ignored after done"}`,
		}
		for _, l := range lines {
			_, _ = w.Write([]byte(l + "\n"))
		}
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	stream, err := adapter.Stream(context.Background(), "Hi", rag.DefaultGenerationOptions)
	require.NoError(t, err)
	defer stream.Close()

	parts, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world", "!"}, parts)
}

func TestAdapter_Stream_ModelErrorMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Par","done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"out of memory"}` + "\n"))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	stream, err := adapter.Stream(context.Background(), "Hi", rag.DefaultGenerationOptions)
	require.NoError(t, err)
	defer stream.Close()

	parts, err := collect(t, stream)
	assert.Equal(t, []string{"Par"}, parts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestAdapter_Stream_ModelErrorBeforeText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model runner has unexpectedly stopped"}` + "\n"))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	stream, err := adapter.Stream(context.Background(), "Hi", rag.DefaultGenerationOptions)
	require.NoError(t, err)
	defer stream.Close()

	parts, err := collect(t, stream)
	assert.Empty(t, parts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model runner has unexpectedly stopped")

	gen := rag.NewGenerator(adapter, rag.DefaultGenerationOptions, 3, zap.NewNop(), nil)
	answer, err := collect(t, gen.Stream(context.Background(), "Hi", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"I apologize, but I encountered an error while generating a response: model runner has unexpectedly stopped",
	}, answer)
}

func TestAdapter_Stream_OpenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama3' not found"}`))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	_, err := adapter.Stream(context.Background(), "Hi", rag.DefaultGenerationOptions)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model 'llama3' not found")
}

func TestAdapter_Stream_CancelUnblocksNext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"first","done":false}` + "\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	adapter := NewAdapter(testConfig(server.URL), zap.NewNop())
	stream, err := adapter.Stream(context.Background(), "Hi", rag.DefaultGenerationOptions)
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdapter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	adapter := NewAdapter(testConfig(server.URL+"/"), zap.NewNop())
	assert.True(t, adapter.IsAvailable(context.Background()))

	server.Close()
	assert.False(t, adapter.IsAvailable(context.Background()))
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{}, nil)
	assert.Equal(t, "ollama", adapter.Name())
	assert.Equal(t, "http://localhost:11434", adapter.config.BaseURL)
	assert.True(t, strings.HasPrefix(adapter.config.ChatModel, "llama3"))
}
