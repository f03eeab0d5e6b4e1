package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/docchat/services"
	"github.com/upb/docchat/utils"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "not found error",
			err:            services.ErrChatNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
		},
		{
			name:           "validation error",
			err:            services.ErrEmptyMessage,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrInvalidCredentials,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "forbidden error",
			err:            services.ErrForbidden,
			expectedStatus: http.StatusForbidden,
			expectedError:  "forbidden",
		},
		{
			name:           "rate limit error",
			err:            services.ErrRateLimitExceeded,
			expectedStatus: http.StatusTooManyRequests,
			expectedError:  "rate_limit_exceeded",
		},
		{
			name:           "conflict error",
			err:            services.ErrDuplicateUsername,
			expectedStatus: http.StatusConflict,
			expectedError:  "conflict",
		},
		{
			name:           "external dependency error",
			err:            services.WrapExternal("failed to index document", errors.New("connection refused")),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:           "internal error",
			err:            services.ErrInternal,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "oversized body",
			err:            services.WrapInternal("failed to store upload", &http.MaxBytesError{Limit: 42}),
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedError:  "payload_too_large",
		},
		{
			name:           "unknown error",
			err:            errors.New("some unknown error"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, testRequest(), tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedError, response.Error)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestHandleServiceErrorWithDetails(t *testing.T) {
	logger := zap.NewNop()

	err := services.NewDomainError(services.ErrorTypeValidation, "unsupported file type", nil).
		WithDetail("supported", []string{".pdf", ".txt"})

	w := httptest.NewRecorder()
	HandleServiceError(w, testRequest(), err, logger)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "unsupported file type", response.Message)
	assert.Equal(t, []interface{}{".pdf", ".txt"}, response.Details["supported"])
}

func TestHandleServiceErrorMergesValidationFields(t *testing.T) {
	cause := &utils.ValidationError{Message: "Validation failed", Fields: map[string]string{"username": "username is required"}}
	err := services.WrapValidation("invalid credentials", fmt.Errorf("decode: %w", cause))

	w := httptest.NewRecorder()
	HandleServiceError(w, testRequest(), err, zap.NewNop())

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username is required", response.Details["username"])
}

func TestHandleServiceErrorNil(t *testing.T) {
	w := httptest.NewRecorder()

	HandleServiceError(w, testRequest(), nil, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("field errors", func(t *testing.T) {
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields: map[string]string{
				"username": "username is required",
				"password": "password must be at least 6 characters",
			},
		}

		w := httptest.NewRecorder()
		HandleValidationError(w, testRequest(), err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "Validation failed", response.Message)
		assert.Equal(t, "username is required", response.Details["username"])
		assert.Equal(t, "password must be at least 6 characters", response.Details["password"])
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, testRequest(), errors.New("generic validation error"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "generic validation error", response.Message)
	})
}

func TestHandleDecodeError(t *testing.T) {
	w := httptest.NewRecorder()
	HandleDecodeError(w, testRequest(), errors.New("unexpected EOF"), zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	HandleDecodeError(w, testRequest(), &http.MaxBytesError{Limit: 1 << 20}, zap.NewNop())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func testRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
}

func TestHandleServiceErrorEchoesRequestID(t *testing.T) {
	handler := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleServiceError(w, r, services.ErrChatNotFound, zap.NewNop())
	}))

	w := httptest.NewRecorder()
	r := testRequest()
	r.Header.Set(chimw.RequestIDHeader, "req-7")
	handler.ServeHTTP(w, r)

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-7", response.RequestID)
}
