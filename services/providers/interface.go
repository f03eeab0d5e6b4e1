// Package providers holds configuration and error types shared by the
// model-serving backends used for embeddings and answer generation.
package providers

import (
	"errors"
	"fmt"
	"time"
)

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// BaseURL of the model server
	BaseURL string

	// EmbeddingModel and ChatModel name the models to request
	EmbeddingModel string
	ChatModel      string

	// Timeout bounds how long to wait for response headers. Bodies of
	// streaming responses are bounded only by the request context.
	Timeout time.Duration

	// MaxRetries for transient embedding failures
	MaxRetries int

	// RetryDelay is the initial backoff interval
	RetryDelay time.Duration

	// Additional headers
	Headers map[string]string

	// BreakerFailureRatio trips the circuit breaker once at least
	// BreakerMinRequests requests were seen in the window
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
	BreakerOpenTimeout  time.Duration
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:             "http://localhost:11434",
		EmbeddingModel:      "nomic-embed-text",
		ChatModel:           "llama3",
		Timeout:             60 * time.Second,
		MaxRetries:          2,
		RetryDelay:          200 * time.Millisecond,
		Headers:             make(map[string]string),
		BreakerFailureRatio: 0.6,
		BreakerMinRequests:  5,
		BreakerOpenTimeout:  30 * time.Second,
	}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(status int) bool {
	return status >= 500 || status == 429
}
