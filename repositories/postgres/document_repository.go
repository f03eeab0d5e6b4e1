package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
)

// DocumentRepository implements the repositories.DocumentRepository interface
type DocumentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, logger *zap.Logger) repositories.DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

const documentColumns = `id, user_id, filename, file_path, size_bytes, chunk_count, uploaded_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Filename,
		&doc.FilePath,
		&doc.SizeBytes,
		&doc.ChunkCount,
		&doc.UploadedAt,
	)
	return doc, err
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) get(ctx context.Context, what, query string, args ...interface{}) (*models.Document, error) {
	doc, err := scanDocument(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", what, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Create records an ingested document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.Filename,
		doc.FilePath,
		doc.SizeBytes,
		doc.ChunkCount,
		doc.UploadedAt,
	)
	if err != nil {
		return mapWriteError("failed to create document", err)
	}

	r.logger.Debug("document created",
		zap.String("id", doc.ID.String()),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", doc.ChunkCount))
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return r.get(ctx, id.String(), `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
}

// GetByUserAndFilename finds the user's document with the given name
func (r *DocumentRepository) GetByUserAndFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Document, error) {
	return r.get(ctx, fmt.Sprintf("%q", filename),
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 AND filename = $2`, userID, filename)
}

// ListByUser returns the user's documents, newest first
func (r *DocumentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	return r.list(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`, userID)
}

// ListAll returns every document, newest first
func (r *DocumentRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	return r.list(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		ORDER BY uploaded_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// Delete deletes a document record
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := requireAffected(result, "document "+id.String()); err != nil {
		return err
	}

	r.logger.Debug("document deleted", zap.String("id", id.String()))
	return nil
}

// DeleteByUser deletes every document record owned by userID
func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of documents
func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	return countRows(GetExecutor(ctx, r.db), ctx, `SELECT COUNT(*) FROM documents`)
}
