package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/observability"
)

// ErrNoContent is returned when a document has no text to index.
var ErrNoContent = errors.New("document has no indexable text")

// IngestRequest describes one document to index.
type IngestRequest struct {
	UserID     uuid.UUID
	DocumentID uuid.UUID
	Filename   string
	Text       string
}

// IngestResult reports how many chunks were written and how many of them
// carry a zero vector because embedding failed.
type IngestResult struct {
	Chunks   int
	Degraded int
}

// Ingestor chunks, embeds and indexes documents.
type Ingestor struct {
	chunker  *Chunker
	embedder Embedder
	index    VectorIndex
	logger   *zap.Logger
	metrics  observability.Metrics
}

func NewIngestor(chunker *Chunker, embedder Embedder, index VectorIndex, logger *zap.Logger, metrics observability.Metrics) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Ingestor{chunker: chunker, embedder: embedder, index: index, logger: logger, metrics: metrics}
}

// Ingest indexes req.Text. Embedding failures degrade individual chunks;
// an index failure fails the whole call.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	chunks := i.chunker.Split(req.Text)
	if len(chunks) == 0 {
		return IngestResult{}, ErrNoContent
	}

	records := make([]ChunkRecord, 0, len(chunks))
	var result IngestResult
	for idx, text := range chunks {
		if err := ctx.Err(); err != nil {
			return IngestResult{}, err
		}
		emb := i.embedder.Embed(ctx, text)
		if emb.Degraded {
			result.Degraded++
		}
		records = append(records, ChunkRecord{
			ID:        ChunkID(req.DocumentID, idx),
			Text:      text,
			Embedding: emb.Vector,
			Metadata: ChunkMetadata{
				UserID:     req.UserID,
				DocumentID: req.DocumentID,
				Filename:   req.Filename,
				ChunkIndex: idx,
				TextLength: len([]rune(text)),
			},
		})
	}

	if err := i.index.Add(ctx, records); err != nil {
		return IngestResult{}, fmt.Errorf("index %s: %w", req.Filename, err)
	}
	result.Chunks = len(records)
	i.metrics.ChunksIndexed(result.Chunks)

	i.logger.Info("document indexed",
		zap.String("document_id", req.DocumentID.String()),
		zap.String("filename", req.Filename),
		zap.Int("chunks", result.Chunks),
		zap.Int("degraded_chunks", result.Degraded),
	)
	return result, nil
}
