package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/rag"
)

// ChunkRepository is the pgvector-backed rag.VectorIndex. Distances are
// cosine distances computed by the <=> operator.
type ChunkRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB, logger *zap.Logger) *ChunkRepository {
	return &ChunkRepository{db: db, logger: logger}
}

var _ rag.VectorIndex = (*ChunkRepository)(nil)

// Add upserts chunks by id in a single transaction
func (r *ChunkRepository) Add(ctx context.Context, chunks []rag.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO document_chunks
			(id, user_id, document_id, filename, chunk_index, text_length, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			document_id = EXCLUDED.document_id,
			filename = EXCLUDED.filename,
			chunk_index = EXCLUDED.chunk_index,
			text_length = EXCLUDED.text_length,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.Metadata.UserID,
			c.Metadata.DocumentID,
			c.Metadata.Filename,
			c.Metadata.ChunkIndex,
			c.Metadata.TextLength,
			c.Text,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	r.logger.Debug("chunks indexed", zap.Int("count", len(chunks)))
	return nil
}

// Query returns the user's topK nearest chunks. Rows whose stored vector is
// all zeros yield a NaN distance and are dropped.
func (r *ChunkRepository) Query(ctx context.Context, embedding []float32, userID uuid.UUID, topK int) ([]rag.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, content, user_id, document_id, filename, chunk_index, text_length,
		       embedding <=> $1 AS distance
		FROM document_chunks
		WHERE user_id = $2
		ORDER BY distance ASC, id ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), userID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []rag.RetrievalResult
	for rows.Next() {
		var (
			id  string
			res rag.RetrievalResult
		)
		err := rows.Scan(
			&id,
			&res.Content,
			&res.Metadata.UserID,
			&res.Metadata.DocumentID,
			&res.Metadata.Filename,
			&res.Metadata.ChunkIndex,
			&res.Metadata.TextLength,
			&res.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if math.IsNaN(res.Distance) {
			continue
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}
	return results, nil
}

// DeleteByUser removes every chunk owned by userID
func (r *ChunkRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		r.logger.Debug("chunks deleted", zap.String("user_id", userID.String()), zap.Int64("count", n))
	}
	return nil
}

// DeleteByDocument removes the chunks of one document, scoped to its owner
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, userID, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE user_id = $1 AND document_id = $2`, userID, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// CountByUser returns how many chunks userID owns
func (r *ChunkRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return countRows(r.db, ctx, `SELECT COUNT(*) FROM document_chunks WHERE user_id = $1`, userID)
}
