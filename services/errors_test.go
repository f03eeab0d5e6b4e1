package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "chat not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "chat not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
	assert.Equal(t, "not_found: chat not found (base error)", domainErr.Error())
	assert.Equal(t, "validation: invalid input", ErrInvalidInput.Error())
	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same error type", NewDomainError(ErrorTypeNotFound, "gone", nil), ErrDocumentNotFound, true},
		{"different error type", NewDomainError(ErrorTypeValidation, "bad", nil), ErrChatNotFound, false},
		{"not a domain error", NewDomainError(ErrorTypeNotFound, "gone", nil), errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "username").WithDetail("min", 3)

	assert.Equal(t, "username", err.Details["field"])
	assert.Equal(t, 3, GetErrorDetails(err)["min"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestErrorTypeCheckers(t *testing.T) {
	typeCheckers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeRateLimit:    IsRateLimitError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeInternal:     IsInternalError,
		ErrorTypeExternal:     IsExternalError,
	}

	for errType, checker := range typeCheckers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "test error", nil)
			assert.True(t, checker(err))
			assert.True(t, checker(fmt.Errorf("wrapped: %w", err)))
			assert.False(t, checker(errors.New("plain")))
			assert.False(t, checker(nil))
			assert.Equal(t, errType, GetErrorType(err))
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	baseErr := errors.New("connection refused")

	assert.True(t, IsInternalError(WrapInternal("query failed", baseErr)))
	assert.True(t, IsExternalError(WrapExternal("index down", baseErr)))
	assert.True(t, IsValidationError(WrapValidation("bad file", baseErr)))
	assert.True(t, IsConflictError(WrapError(ErrorTypeConflict, "taken", baseErr)))
	assert.Equal(t, baseErr, errors.Unwrap(WrapInternal("query failed", baseErr)))
}

func TestAllErrorVariablesAreDefined(t *testing.T) {
	errorVars := []error{
		ErrUserNotFound, ErrChatNotFound, ErrDocumentNotFound,
		ErrInvalidInput, ErrEmptyMessage, ErrUnsupportedFileType, ErrFileTooLarge,
		ErrNoExtractableText, ErrCannotDeleteSelf,
		ErrUnauthorized, ErrInvalidCredentials,
		ErrForbidden,
		ErrRateLimitExceeded,
		ErrDuplicateUsername,
		ErrInternal, ErrDatabaseError,
		ErrIndexUnavailable,
	}

	for _, err := range errorVars {
		assert.NotNil(t, err)
		assert.NotEmpty(t, err.Error())
	}
}
