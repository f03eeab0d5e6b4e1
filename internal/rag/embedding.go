package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/docchat/internal/observability"
)

const (
	DefaultEmbeddingDimension = 768
	DefaultEmbeddingTimeout   = 30 * time.Second
)

// EmbeddingClient wraps an EmbeddingService so that failures become a
// zero vector of the configured dimension instead of an error.
type EmbeddingClient struct {
	service   EmbeddingService
	dimension int
	timeout   time.Duration
	logger    *zap.Logger
	metrics   observability.Metrics
}

// NewEmbeddingClient creates an EmbeddingClient. A non-positive timeout
// disables the per-call deadline.
func NewEmbeddingClient(service EmbeddingService, dimension int, timeout time.Duration, logger *zap.Logger, metrics observability.Metrics) *EmbeddingClient {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &EmbeddingClient{
		service:   service,
		dimension: dimension,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Dimension is the length of every vector returned by Embed.
func (c *EmbeddingClient) Dimension() int {
	return c.dimension
}

// Embed never fails. On timeout, service error or a payload of the wrong
// length it logs the failure and returns a degraded zero vector.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) Embedding {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	vec, err := c.service.Embed(callCtx, text)
	if err == nil && len(vec) != c.dimension {
		err = fmt.Errorf("%w: got %d values, want %d", errMalformedEmbedding, len(vec), c.dimension)
	}
	if err != nil {
		reason := failureReason(ctx, err)
		c.logger.Warn("embedding unavailable, using zero vector",
			zap.String("reason", reason),
			zap.Int("text_length", len(text)),
			zap.Error(err),
		)
		c.metrics.EmbeddingDegraded(reason)
		return Embedding{Vector: make([]float32, c.dimension), Degraded: true}
	}
	return Embedding{Vector: vec}
}

var errMalformedEmbedding = errors.New("malformed embedding")

func failureReason(parent context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errMalformedEmbedding):
		return "malformed"
	default:
		return "unavailable"
	}
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
