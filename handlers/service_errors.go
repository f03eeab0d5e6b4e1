package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/docchat/services"
	"github.com/upb/docchat/utils"
)

// errorStatus maps domain error types to HTTP statuses
var errorStatus = map[services.ErrorType]int{
	services.ErrorTypeNotFound:     http.StatusNotFound,
	services.ErrorTypeValidation:   http.StatusBadRequest,
	services.ErrorTypeUnauthorized: http.StatusUnauthorized,
	services.ErrorTypeForbidden:    http.StatusForbidden,
	services.ErrorTypeRateLimit:    http.StatusTooManyRequests,
	services.ErrorTypeConflict:     http.StatusConflict,
	services.ErrorTypeExternal:     http.StatusBadGateway,
	services.ErrorTypeInternal:     http.StatusInternalServerError,
}

// HandleServiceError maps domain errors to HTTP responses. Internal and
// unknown errors are logged and answered with a generic message.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "Request body exceeds the upload limit",
			map[string]interface{}{"max_bytes": maxBytesErr.Limit}, logger)
		return
	}

	errType := services.GetErrorType(err)
	status, ok := errorStatus[errType]
	if !ok {
		logger.Error("unhandled error type", zap.Error(err), zap.String("error_type", string(errType)))
		writeError(w, r, http.StatusInternalServerError, "An unexpected error occurred", nil, logger)
		return
	}

	details := services.GetErrorDetails(err)
	message := publicMessage(err)
	switch errType {
	case services.ErrorTypeValidation:
		if fields := utils.GetValidationFields(err); len(fields) > 0 {
			details = mergeFields(details, fields)
		}
	case services.ErrorTypeExternal:
		logger.Warn("upstream dependency failed", zap.Error(err))
	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))
		message, details = "An internal error occurred", nil
	}
	writeError(w, r, status, message, details, logger)
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var details map[string]interface{}
	if utils.IsValidationError(err) {
		details = mergeFields(nil, utils.GetValidationFields(err))
	}
	writeError(w, r, http.StatusBadRequest, err.Error(), details, logger)
}

// HandleDecodeError answers a request whose body could not be decoded
func HandleDecodeError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		HandleServiceError(w, r, err, logger)
		return
	}
	writeError(w, r, http.StatusBadRequest, "Invalid request body", map[string]interface{}{"reason": err.Error()}, logger)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]interface{}, logger *zap.Logger) {
	if err := utils.WriteError(w, r, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// publicMessage is the client-facing text of err; the wrapped cause is omitted
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return err.Error()
}

func mergeFields(details map[string]interface{}, fields map[string]string) map[string]interface{} {
	if details == nil {
		details = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		details[k] = v
	}
	return details
}
