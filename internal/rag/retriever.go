package rag

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/observability"
)

const DefaultTopK = 5

// Retriever finds the chunks of a user's documents closest to a question.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	topK     int
	logger   *zap.Logger
	metrics  observability.Metrics
}

func NewRetriever(embedder Embedder, index VectorIndex, topK int, logger *zap.Logger, metrics observability.Metrics) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, logger: logger, metrics: metrics}
}

// Retrieve returns up to topK chunks owned by userID, nearest first. A
// non-positive topK uses the retriever's default. Failures never propagate:
// the result is empty and marked Degraded.
func (r *Retriever) Retrieve(ctx context.Context, query string, userID uuid.UUID, topK int) Retrieval {
	if topK <= 0 {
		topK = r.topK
	}

	emb := r.embedder.Embed(ctx, query)
	if emb.Degraded {
		// A zero vector has no cosine neighbours.
		return r.degraded("embedding_unavailable", nil)
	}

	results, err := r.index.Query(ctx, emb.Vector, userID, topK)
	if err != nil {
		return r.degraded("index_unavailable", err)
	}

	scoped := results[:0]
	for _, res := range results {
		if res.Metadata.UserID != userID {
			r.logger.Error("vector index returned a chunk owned by another user",
				zap.String("user_id", userID.String()),
				zap.String("owner_id", res.Metadata.UserID.String()),
			)
			continue
		}
		scoped = append(scoped, res)
	}
	return Retrieval{Results: scoped}
}

func (r *Retriever) degraded(reason string, err error) Retrieval {
	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("retrieval degraded, answering without grounding", fields...)
	r.metrics.RetrievalDegraded(reason)
	return Retrieval{Degraded: true, Reason: reason}
}
