package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services/documents"
	"github.com/upb/docchat/utils"
)

// multipartOverhead is allowed on top of the file cap for boundaries and headers
const multipartOverhead = 1 << 20

// uploadField is the multipart field carrying the file
const uploadField = "file"

// DocumentService is the document API used by DocumentHandler
type DocumentService interface {
	MaxBytes() int64
	Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader) (*documents.UploadResult, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
	Delete(ctx context.Context, userID, docID uuid.UUID) error
}

// DocumentHandler serves the current user's documents
type DocumentHandler struct {
	documents DocumentService
	logger    *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// HandleUpload handles POST /api/documents/upload. The file part is streamed
// straight to the service without buffering the whole form.
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.documents.MaxBytes()+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		_ = utils.WriteError(w, r, http.StatusBadRequest, "Expected a multipart/form-data upload", nil)
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			HandleServiceError(w, r, err, h.logger)
			return
		}
		_ = utils.WriteError(w, r, http.StatusBadRequest, "Missing file field", map[string]interface{}{"field": uploadField})
		return
	}
	defer part.Close()

	result, err := h.documents.Upload(ctx, userID, part.FileName(), part)
	if err != nil {
		h.logger.Info("upload rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("filename", part.FileName()),
			zap.Error(err))
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteCreated(w, result); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleList handles GET /api/documents
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	docs, err := h.documents.List(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, docs); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/documents/{documentID}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	docID, err := pathUUID(r, "documentID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.documents.Delete(r.Context(), userID, docID); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// nextFilePart skips ordinary fields until the file part
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}
