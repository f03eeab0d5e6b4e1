package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ChunkMetadata is stored next to every chunk vector.
type ChunkMetadata struct {
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	ChunkIndex int       `json:"chunk_index"`
	TextLength int       `json:"text_length"`
}

// ChunkRecord is the unit written to a VectorIndex.
type ChunkRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
}

// ChunkID returns the deterministic identifier of the index-th chunk of a
// document. Document ids are unique per upload, so re-uploading a filename
// never collides with chunks of an earlier upload.
func ChunkID(documentID uuid.UUID, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// RetrievalResult is a chunk returned by a similarity query. Distance is the
// cosine distance to the query vector; smaller is closer.
type RetrievalResult struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// Retrieval is the outcome of Retriever.Retrieve. Degraded is set when the
// results are empty because a dependency failed rather than because nothing
// matched.
type Retrieval struct {
	Results  []RetrievalResult
	Degraded bool
	Reason   string
}

// VectorIndex is a user-scoped nearest-neighbour store using cosine distance.
//
// Query must only return chunks owned by userID, nearest first. Deletes are
// idempotent: removing an absent set is not an error.
type VectorIndex interface {
	Add(ctx context.Context, chunks []ChunkRecord) error
	Query(ctx context.Context, embedding []float32, userID uuid.UUID, topK int) ([]RetrievalResult, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteByDocument(ctx context.Context, userID, documentID uuid.UUID) error
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// EmbeddingService is the raw embedding backend. It reports failures as
// errors; EmbeddingClient turns them into degraded embeddings.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder produces embeddings without failing.
type Embedder interface {
	Embed(ctx context.Context, text string) Embedding
}

// Embedding is a vector plus a flag telling whether it is the zero-vector
// placeholder used when the embedding service was unavailable.
type Embedding struct {
	Vector   []float32
	Degraded bool
}

// GenerationOptions are the sampling parameters passed to the language model.
type GenerationOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// LanguageModel is the external text generation service.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
	Stream(ctx context.Context, prompt string, opts GenerationOptions) (TokenStream, error)
}

// TokenStream is a pull-based sequence of answer increments. Next returns
// io.EOF after the last increment. Cancelling ctx aborts a pending Next.
// Close releases the underlying transport and is safe to call more than once.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Message roles understood by ChatStore.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatStore persists conversations. ResolveChat returns chatID when it is set
// and owned by userID, or creates a new chat titled title when chatID is
// uuid.Nil.
type ChatStore interface {
	ResolveChat(ctx context.Context, userID, chatID uuid.UUID, title string) (uuid.UUID, error)
	SaveMessage(ctx context.Context, chatID uuid.UUID, role, content string) error
}
