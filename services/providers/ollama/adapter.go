// Package ollama talks to an Ollama-compatible model server: embeddings via
// /api/embeddings and answers via /api/generate, single-shot or streamed.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/services/providers"
)

const providerName = "ollama"

// Adapter implements rag.EmbeddingService and rag.LanguageModel.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	embedCB    *gobreaker.CircuitBreaker
	generateCB *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewAdapter creates an adapter; zero config fields take their defaults.
func NewAdapter(config providers.ProviderConfig, logger *zap.Logger) *Adapter {
	def := providers.DefaultProviderConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = def.EmbeddingModel
	}
	if config.ChatModel == "" {
		config.ChatModel = def.ChatModel
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.BreakerFailureRatio == 0 {
		config.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if config.BreakerMinRequests == 0 {
		config.BreakerMinRequests = def.BreakerMinRequests
	}
	if config.BreakerOpenTimeout == 0 {
		config.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.Timeout

	a := &Adapter{
		config:     config,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
	a.embedCB = a.newBreaker("ollama-embeddings")
	a.generateCB = a.newBreaker("ollama-generate")
	return a
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

func (a *Adapter) newBreaker(name string) *gobreaker.CircuitBreaker {
	ratio := a.config.BreakerFailureRatio
	minRequests := a.config.BreakerMinRequests
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: a.config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		// Caller cancellations and 4xx answers say nothing about server health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var provErr *providers.ProviderError
			if errors.As(err, &provErr) && provErr.StatusCode >= 400 && !provErr.Retryable {
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding of text. Transient failures are retried with
// exponential backoff; an open breaker fails immediately.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: a.config.EmbeddingModel, Prompt: text})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.config.RetryDelay
	b.MaxElapsedTime = 0
	maxRetries := a.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	var vec []float32
	attempt := 0
	operation := func() error {
		attempt++
		result, err := a.embedCB.Execute(func() (interface{}, error) {
			return a.embedOnce(ctx, body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !providers.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			a.logger.Debug("retrying embedding request", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		vec = result.([]float32)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return vec, nil
}

func (a *Adapter) embedOnce(ctx context.Context, body []byte) ([]float32, error) {
	resp, err := a.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(resp)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "malformed embedding response", resp.StatusCode, false, err)
	}
	if len(out.Embedding) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_EMBEDDING", "embedding response had no values", resp.StatusCode, false, nil)
	}
	return out.Embedding, nil
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (a *Adapter) generateBody(prompt string, stream bool, opts rag.GenerationOptions) ([]byte, error) {
	body, err := json.Marshal(generateRequest{
		Model:  a.config.ChatModel,
		Prompt: prompt,
		Stream: stream,
		Options: generateOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			MaxTokens:   opts.MaxTokens,
		},
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}
	return body, nil
}

// Complete returns the whole answer for prompt.
func (a *Adapter) Complete(ctx context.Context, prompt string, opts rag.GenerationOptions) (string, error) {
	body, err := a.generateBody(prompt, false, opts)
	if err != nil {
		return "", err
	}

	result, err := a.generateCB.Execute(func() (interface{}, error) {
		resp, err := a.post(ctx, "/api/generate", body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, a.handleErrorResponse(resp)
		}

		var out generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "malformed generate response", resp.StatusCode, false, err)
		}
		if out.Error != "" {
			return nil, providers.NewProviderError(a.Name(), "MODEL_ERROR", out.Error, resp.StatusCode, false, nil)
		}
		return out.Response, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Stream starts a streamed answer. Only opening the stream counts towards
// the circuit breaker.
func (a *Adapter) Stream(ctx context.Context, prompt string, opts rag.GenerationOptions) (rag.TokenStream, error) {
	body, err := a.generateBody(prompt, true, opts)
	if err != nil {
		return nil, err
	}

	result, err := a.generateCB.Execute(func() (interface{}, error) {
		resp, err := a.post(ctx, "/api/generate", body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, a.handleErrorResponse(resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return newNDJSONStream(result.(*http.Response).Body, a.logger), nil
}

// IsAvailable checks whether the server answers its model listing.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "request to "+path+" failed", 0, true, err)
	}
	return resp, nil
}

// handleErrorResponse turns a non-200 answer into a ProviderError.
func (a *Adapter) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(raw))
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return providers.NewProviderError(
		a.Name(),
		fmt.Sprintf("HTTP_%d", resp.StatusCode),
		message,
		resp.StatusCode,
		providers.RetryableStatus(resp.StatusCode),
		nil,
	)
}

var (
	_ rag.EmbeddingService = (*Adapter)(nil)
	_ rag.LanguageModel    = (*Adapter)(nil)
)
