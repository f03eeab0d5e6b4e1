package rag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/internal/rag/ragtest"
	"github.com/upb/docchat/repositories/memory"
)

const testDim = 64

type pipeline struct {
	index     *memory.ChunkRepository
	embedder  *rag.EmbeddingClient
	ingestor  *rag.Ingestor
	retriever *rag.Retriever
	svc       *ragtest.HashEmbeddings
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	chunker, err := rag.NewChunker(200, 40)
	require.NoError(t, err)

	svc := &ragtest.HashEmbeddings{Dimension: testDim}
	embedder := rag.NewEmbeddingClient(svc, testDim, 0, nil, nil)
	index := memory.NewChunkRepository()
	return &pipeline{
		index:     index,
		embedder:  embedder,
		svc:       svc,
		ingestor:  rag.NewIngestor(chunker, embedder, index, nil, nil),
		retriever: rag.NewRetriever(embedder, index, 5, nil, nil),
	}
}

func (p *pipeline) ingest(t *testing.T, user uuid.UUID, name, text string) uuid.UUID {
	t.Helper()
	doc := uuid.New()
	_, err := p.ingestor.Ingest(context.Background(), rag.IngestRequest{
		UserID: user, DocumentID: doc, Filename: name, Text: text,
	})
	require.NoError(t, err)
	return doc
}

func TestRetriever_IsolatesUsers(t *testing.T) {
	p := newPipeline(t)
	alice, bob := uuid.New(), uuid.New()

	p.ingest(t, alice, "garden.txt", "Tomatoes need full sun. Water the tomatoes every morning. Basil grows well next to tomatoes.")
	p.ingest(t, bob, "tomatoes.txt", "Tomatoes tomatoes tomatoes. Bob's secret tomato sauce recipe uses fresh tomatoes.")

	queries := []string{"tomatoes", "secret sauce recipe", "how often should I water", "unrelated words entirely"}
	for _, q := range queries {
		for _, k := range []int{1, 3, 10} {
			got := p.retriever.Retrieve(context.Background(), q, alice, k)
			assert.False(t, got.Degraded)
			assert.LessOrEqual(t, len(got.Results), k)
			for _, r := range got.Results {
				assert.Equal(t, alice, r.Metadata.UserID, "query %q leaked chunk %q", q, r.Content)
			}
		}
	}
}

func TestRetriever_NearestFirst(t *testing.T) {
	p := newPipeline(t)
	user := uuid.New()

	p.ingest(t, user, "a.txt", "The invoice total is due in thirty days.")
	p.ingest(t, user, "b.txt", "Penguins live in the southern hemisphere.")

	got := p.retriever.Retrieve(context.Background(), "when is the invoice total due", user, 0)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "a.txt", got.Results[0].Metadata.Filename)
	assert.LessOrEqual(t, got.Results[0].Distance, got.Results[1].Distance)
}

func TestRetriever_DeletionCompleteness(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	alice, bob := uuid.New(), uuid.New()

	p.ingest(t, alice, "a.txt", "Alice keeps notes about rockets.")
	p.ingest(t, bob, "b.txt", "Bob keeps notes about rockets too.")

	require.NoError(t, p.index.DeleteByUser(ctx, alice))

	assert.Empty(t, p.retriever.Retrieve(ctx, "rockets", alice, 5).Results)
	assert.Len(t, p.retriever.Retrieve(ctx, "rockets", bob, 5).Results, 1)
}

type failingQueryIndex struct{ *memory.ChunkRepository }

func (failingQueryIndex) Query(context.Context, []float32, uuid.UUID, int) ([]rag.RetrievalResult, error) {
	return nil, errors.New("index offline")
}

type leakyIndex struct{ *memory.ChunkRepository }

func (l leakyIndex) Query(ctx context.Context, _ []float32, _ uuid.UUID, _ int) ([]rag.RetrievalResult, error) {
	return []rag.RetrievalResult{
		{Content: "mine", Metadata: rag.ChunkMetadata{UserID: uuid.Nil}},
		{Content: "theirs", Metadata: rag.ChunkMetadata{UserID: uuid.New()}},
	}, nil
}

func TestRetriever_Degradation(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()

	t.Run("embedding unavailable", func(t *testing.T) {
		svc := &ragtest.HashEmbeddings{Dimension: testDim, Fail: func(string) bool { return true }}
		embedder := rag.NewEmbeddingClient(svc, testDim, 0, nil, nil)
		r := rag.NewRetriever(embedder, memory.NewChunkRepository(), 5, nil, nil)

		got := r.Retrieve(ctx, "anything", user, 5)
		assert.Empty(t, got.Results)
		assert.True(t, got.Degraded)
		assert.Equal(t, "embedding_unavailable", got.Reason)
	})

	t.Run("index unavailable", func(t *testing.T) {
		embedder := rag.NewEmbeddingClient(&ragtest.HashEmbeddings{Dimension: testDim}, testDim, 0, nil, nil)
		r := rag.NewRetriever(embedder, failingQueryIndex{memory.NewChunkRepository()}, 5, nil, nil)

		got := r.Retrieve(ctx, "anything", user, 5)
		assert.Empty(t, got.Results)
		assert.True(t, got.Degraded)
		assert.Equal(t, "index_unavailable", got.Reason)
	})

	t.Run("foreign chunks are dropped", func(t *testing.T) {
		embedder := rag.NewEmbeddingClient(&ragtest.HashEmbeddings{Dimension: testDim}, testDim, 0, nil, nil)
		r := rag.NewRetriever(embedder, leakyIndex{memory.NewChunkRepository()}, 5, nil, nil)

		got := r.Retrieve(ctx, "anything", uuid.Nil, 5)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "mine", got.Results[0].Content)
	})
}
