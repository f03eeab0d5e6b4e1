package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/docchat/models"
	"github.com/upb/docchat/services"
	"github.com/upb/docchat/services/documents"
)

// MockDocumentService is a mock implementation of DocumentService
type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) MaxBytes() int64 {
	return int64(m.Called().Int(0))
}

func (m *MockDocumentService) Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader) (*documents.UploadResult, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, userID, filename, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*documents.UploadResult), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, userID, docID uuid.UUID) error {
	return m.Called(ctx, userID, docID).Error(0)
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	logger := zap.NewNop()
	userID := uuid.New()

	t.Run("streams the file part to the service", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("MaxBytes").Return(1024)
		doc := models.NewDocument(userID, "notes.txt", "/data/x.txt", 11)
		svc.On("Upload", mock.Anything, userID, "notes.txt", "hello world").
			Return(&documents.UploadResult{Document: doc, Chunks: 1}, nil).Once()

		body, contentType := multipartBody(t, "file", "notes.txt", "hello world")
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/documents/upload", body), userID)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleUpload(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		var result documents.UploadResult
		decodeData(t, w, &result)
		assert.Equal(t, 1, result.Chunks)
		assert.Equal(t, "notes.txt", result.Document.Filename)
		assert.Empty(t, result.Document.FilePath)
		svc.AssertExpectations(t)
	})

	t.Run("missing file field", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("MaxBytes").Return(1024)

		body, contentType := multipartBody(t, "attachment", "notes.txt", "hello")
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/documents/upload", body), userID)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleUpload(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing file field", decodeError(t, w).Message)
	})

	t.Run("not multipart", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("MaxBytes").Return(1024)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/documents/upload", bytes.NewBufferString("{}")), userID)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleUpload(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsupported type from service", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("MaxBytes").Return(1024)
		svc.On("Upload", mock.Anything, userID, "image.png", "png").Return(nil, services.ErrUnsupportedFileType).Once()

		body, contentType := multipartBody(t, "file", "image.png", "png")
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/documents/upload", body), userID)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleUpload(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "unsupported file type", decodeError(t, w).Message)
	})

	t.Run("requires authentication", func(t *testing.T) {
		svc := new(MockDocumentService)
		req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleUpload(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "MaxBytes")
	})
}

func TestHandleListDocuments(t *testing.T) {
	userID := uuid.New()
	svc := new(MockDocumentService)
	svc.On("List", mock.Anything, userID).Return([]*models.Document{
		models.NewDocument(userID, "a.pdf", "/x/a.pdf", 10),
		models.NewDocument(userID, "b.docx", "/x/b.docx", 20),
	}, nil).Once()

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/documents", nil), userID)
	w := httptest.NewRecorder()

	NewDocumentHandler(svc, zap.NewNop()).HandleList(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var docs []models.Document
	decodeData(t, w, &docs)
	assert.Len(t, docs, 2)
}

func TestHandleDeleteDocument(t *testing.T) {
	logger := zap.NewNop()
	userID := uuid.New()
	docID := uuid.New()

	t.Run("deletes", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("Delete", mock.Anything, userID, docID).Return(nil).Once()

		req := asUser(httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID.String(), nil), userID)
		req = withParam(req, "documentID", docID.String())
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleDelete(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("foreign document is not found", func(t *testing.T) {
		svc := new(MockDocumentService)
		svc.On("Delete", mock.Anything, userID, docID).Return(services.ErrDocumentNotFound).Once()

		req := asUser(httptest.NewRequest(http.MethodDelete, "/", nil), userID)
		req = withParam(req, "documentID", docID.String())
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleDelete(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockDocumentService)
		req := asUser(httptest.NewRequest(http.MethodDelete, "/", nil), userID)
		req = withParam(req, "documentID", "nope")
		w := httptest.NewRecorder()

		NewDocumentHandler(svc, logger).HandleDelete(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Details, "documentID")
	})
}
