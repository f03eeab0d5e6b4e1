// Package memory holds in-process repository implementations used for tests
// and single-node development runs.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/upb/docchat/internal/rag"
)

// ChunkRepository is a brute-force cosine VectorIndex.
type ChunkRepository struct {
	mu     sync.RWMutex
	chunks map[string]rag.ChunkRecord
}

// NewChunkRepository creates an empty index.
func NewChunkRepository() *ChunkRepository {
	return &ChunkRepository{chunks: make(map[string]rag.ChunkRecord)}
}

// Add upserts chunks by id.
func (r *ChunkRepository) Add(ctx context.Context, chunks []rag.ChunkRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		r.chunks[c.ID] = c
	}
	return nil
}

// Query returns the topK chunks owned by userID, nearest first. Chunks with a
// zero vector have no defined cosine distance and are skipped.
func (r *ChunkRepository) Query(ctx context.Context, embedding []float32, userID uuid.UUID, topK int) ([]rag.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		id string
		rag.RetrievalResult
	}

	r.mu.RLock()
	var candidates []scored
	for id, c := range r.chunks {
		if c.Metadata.UserID != userID {
			continue
		}
		d, ok := cosineDistance(embedding, c.Embedding)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{
			id:              id,
			RetrievalResult: rag.RetrievalResult{Content: c.Text, Metadata: c.Metadata, Distance: d},
		})
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].id < candidates[j].id
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]rag.RetrievalResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.RetrievalResult
	}
	return results, nil
}

func (r *ChunkRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.chunks {
		if c.Metadata.UserID == userID {
			delete(r.chunks, id)
		}
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, userID, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.chunks {
		if c.Metadata.UserID == userID && c.Metadata.DocumentID == documentID {
			delete(r.chunks, id)
		}
	}
	return nil
}

func (r *ChunkRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.chunks {
		if c.Metadata.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Get returns a stored chunk by id.
func (r *ChunkRepository) Get(id string) (rag.ChunkRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	return c, ok
}

func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}

var _ rag.VectorIndex = (*ChunkRepository)(nil)
