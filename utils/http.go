package utils

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeConflict         = "conflict"
	CodePayloadTooLarge  = "payload_too_large"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInternal         = "internal_error"
	CodeBadGateway       = "bad_gateway"
	CodeUnavailable      = "service_unavailable"
)

var errorCodes = map[int]string{
	http.StatusBadRequest:            CodeBadRequest,
	http.StatusUnauthorized:          CodeUnauthorized,
	http.StatusForbidden:             CodeForbidden,
	http.StatusNotFound:              CodeNotFound,
	http.StatusMethodNotAllowed:      CodeMethodNotAllowed,
	http.StatusConflict:              CodeConflict,
	http.StatusRequestEntityTooLarge: CodePayloadTooLarge,
	http.StatusTooManyRequests:       CodeRateLimited,
	http.StatusInternalServerError:   CodeInternal,
	http.StatusBadGateway:            CodeBadGateway,
	http.StatusServiceUnavailable:    CodeUnavailable,
}

var defaultMessages = map[int]string{
	http.StatusUnauthorized:          "Authentication required",
	http.StatusForbidden:             "Access forbidden",
	http.StatusNotFound:              "Resource not found",
	http.StatusRequestEntityTooLarge: "Payload too large",
	http.StatusTooManyRequests:       "Rate limit exceeded",
	http.StatusInternalServerError:   "Internal server error",
	http.StatusBadGateway:            "Upstream service unavailable",
}

// Envelope wraps every successful JSON body.
type Envelope struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the body of every error answer. RequestID echoes the id
// assigned by the RequestID middleware so clients can quote it.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorCode returns the ErrorResponse code for an HTTP status. Unknown
// statuses map to CodeInternal.
func ErrorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	return CodeInternal
}

// WriteJSON writes v as JSON with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

// WriteOK writes data in an Envelope with 200
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Data: data})
}

// WriteCreated writes data in an Envelope with 201
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Data: data})
}

// WriteNoContent answers 204 with no body
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes an ErrorResponse for status. An empty message falls back
// to the status default.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]interface{}) error {
	if message == "" {
		message = defaultMessages[status]
	}
	if message == "" {
		message = http.StatusText(status)
	}

	resp := ErrorResponse{
		Error:   ErrorCode(status),
		Message: message,
		Details: details,
	}
	if r != nil {
		resp.RequestID = middleware.GetReqID(r.Context())
	}
	return WriteJSON(w, status, resp)
}
