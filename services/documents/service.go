// Package documents stores uploaded files, extracts their text and keeps the
// vector index in step with the document records.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/internal/extract"
	"github.com/upb/docchat/internal/rag"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/repositories"
	"github.com/upb/docchat/services"
)

// DefaultMaxUploadBytes is the upload cap when none is configured
const DefaultMaxUploadBytes = 10 << 20

// Ingester indexes document text
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (rag.IngestResult, error)
}

// TextExtractor turns a stored file into plain text
type TextExtractor interface {
	Supports(filename string) bool
	Extensions() []string
	Extract(ctx context.Context, path string) (string, error)
}

// UploadResult describes an ingested document
type UploadResult struct {
	Document       *models.Document `json:"document"`
	Chunks         int              `json:"chunks"`
	DegradedChunks int              `json:"degraded_chunks"`
	Replaced       bool             `json:"replaced"`
}

// Service manages the document lifecycle
type Service struct {
	documents repositories.DocumentRepository
	index     rag.VectorIndex
	ingester  Ingester
	extractor TextExtractor
	dir       string
	maxBytes  int64
	logger    *zap.Logger
}

// NewService creates a document service storing files under dir
func NewService(
	documents repositories.DocumentRepository,
	index rag.VectorIndex,
	ingester Ingester,
	extractor TextExtractor,
	dir string,
	maxBytes int64,
	logger *zap.Logger,
) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Service{
		documents: documents,
		index:     index,
		ingester:  ingester,
		extractor: extractor,
		dir:       dir,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// MaxBytes is the upload cap
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores, extracts and indexes a file for userID. A previous document
// with the same filename is replaced once the new one is indexed.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader) (*UploadResult, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "filename is required", nil)
	}
	if !s.extractor.Supports(filename) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrUnsupportedFileType.Message, nil).
			WithDetail("supported", s.extractor.Extensions())
	}

	docID := uuid.New()
	path, size, err := s.store(userID, docID, filename, r)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(
		zap.String("user_id", userID.String()),
		zap.String("document_id", docID.String()),
		zap.String("filename", filename))

	discard := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove stored file", zap.Error(err))
		}
	}

	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		discard()
		if errors.Is(err, extract.ErrUnsupportedType) {
			return nil, services.ErrUnsupportedFileType
		}
		return nil, services.WrapValidation("failed to extract text", err)
	}
	if strings.TrimSpace(text) == "" {
		discard()
		return nil, services.ErrNoExtractableText
	}

	res, err := s.ingester.Ingest(ctx, rag.IngestRequest{
		UserID:     userID,
		DocumentID: docID,
		Filename:   filename,
		Text:       text,
	})
	if err != nil {
		discard()
		if errors.Is(err, rag.ErrNoContent) {
			return nil, services.ErrNoExtractableText
		}
		if cleanupErr := s.index.DeleteByDocument(context.WithoutCancel(ctx), userID, docID); cleanupErr != nil {
			log.Warn("failed to clean partial index", zap.Error(cleanupErr))
		}
		return nil, services.WrapExternal("failed to index document", err)
	}

	replaced, err := s.replacePrevious(ctx, userID, filename)
	if err != nil {
		log.Warn("failed to replace previous document", zap.Error(err))
	}

	doc := models.NewDocument(userID, filename, path, size)
	doc.ID = docID
	doc.ChunkCount = res.Chunks
	if err := s.documents.Create(ctx, doc); err != nil {
		_ = s.index.DeleteByDocument(context.WithoutCancel(ctx), userID, docID)
		discard()
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, "a document with this name is being uploaded", err)
		}
		return nil, services.WrapInternal("failed to record document", err)
	}

	log.Info("document ingested",
		zap.Int64("size_bytes", size),
		zap.Int("chunks", res.Chunks),
		zap.Int("degraded_chunks", res.Degraded),
		zap.Bool("replaced", replaced))

	return &UploadResult{Document: doc, Chunks: res.Chunks, DegradedChunks: res.Degraded, Replaced: replaced}, nil
}

// store copies r to <dir>/<user>/<doc><ext>, enforcing the size cap
func (s *Service) store(userID, docID uuid.UUID, filename string, r io.Reader) (string, int64, error) {
	userDir := filepath.Join(s.dir, userID.String())
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return "", 0, services.WrapInternal("failed to prepare upload directory", err)
	}

	path := filepath.Join(userDir, docID.String()+strings.ToLower(filepath.Ext(filename)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, services.WrapInternal("failed to create upload file", err)
	}

	size, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, services.WrapInternal("failed to store upload", err)
	}
	if size > s.maxBytes {
		_ = os.Remove(path)
		return "", 0, services.NewDomainError(services.ErrorTypeValidation, services.ErrFileTooLarge.Message, nil).
			WithDetail("max_bytes", s.maxBytes)
	}
	if size == 0 {
		_ = os.Remove(path)
		return "", 0, services.ErrNoExtractableText
	}
	return path, size, nil
}

func (s *Service) replacePrevious(ctx context.Context, userID uuid.UUID, filename string) (bool, error) {
	prev, err := s.documents.GetByUserAndFilename(ctx, userID, filename)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.remove(ctx, prev); err != nil {
		return false, err
	}
	return true, nil
}

// remove deletes chunks, then the record, then the stored file
func (s *Service) remove(ctx context.Context, doc *models.Document) error {
	if err := s.index.DeleteByDocument(ctx, doc.UserID, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("delete record: %w", err)
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove document file",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// List returns the user's documents, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	docs, err := s.documents.ListByUser(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to list documents", err)
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}

// ListAll returns every document
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.documents.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list documents", err)
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}

// Delete removes a document owned by userID
func (s *Service) Delete(ctx context.Context, userID, docID uuid.UUID) error {
	doc, err := s.get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		return services.ErrDocumentNotFound
	}
	return s.delete(ctx, doc)
}

// DeleteAny removes a document regardless of owner
func (s *Service) DeleteAny(ctx context.Context, docID uuid.UUID) error {
	doc, err := s.get(ctx, docID)
	if err != nil {
		return err
	}
	return s.delete(ctx, doc)
}

// DeleteAllForUser removes every chunk, record and stored file of userID
func (s *Service) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	docs, err := s.documents.ListByUser(ctx, userID)
	if err != nil {
		return services.WrapInternal("failed to list documents", err)
	}
	if err := s.index.DeleteByUser(ctx, userID); err != nil {
		return services.WrapExternal("failed to delete chunks", err)
	}
	if err := s.documents.DeleteByUser(ctx, userID); err != nil {
		return services.WrapInternal("failed to delete documents", err)
	}
	for _, doc := range docs {
		if doc.FilePath == "" {
			continue
		}
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove document file", zap.String("document_id", doc.ID.String()), zap.Error(err))
		}
	}
	_ = os.Remove(filepath.Join(s.dir, userID.String()))
	return nil
}

func (s *Service) get(ctx context.Context, docID uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDocumentNotFound
		}
		return nil, services.WrapInternal("failed to load document", err)
	}
	return doc, nil
}

func (s *Service) delete(ctx context.Context, doc *models.Document) error {
	if err := s.remove(ctx, doc); err != nil {
		return services.WrapExternal("failed to delete document", err)
	}
	s.logger.Info("document deleted",
		zap.String("document_id", doc.ID.String()),
		zap.String("user_id", doc.UserID.String()))
	return nil
}
