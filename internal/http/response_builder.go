// This file implements a small builder for JSON responses and the mapping
// from ledger errors to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/storage"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later")
}

// FromError maps a ledger error to a response. Validation problems are the
// caller's fault and echo the reason; persistence details stay in the logs.
func FromError(err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		b := ErrorResponse(http.StatusUnprocessableEntity, "validation", ve.Reason)
		b.body = errorBody{Error: errorDetail{Code: "validation", Message: ve.Reason, Field: ve.Field}}
		return b
	case errors.Is(err, core.ErrInvalidPolicy):
		return ErrorResponse(http.StatusUnprocessableEntity, "invalid_policy", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return NotFoundError("not found")
	case errors.Is(err, storage.ErrDuplicate):
		return ErrorResponse(http.StatusConflict, "duplicate", "record already exists")
	case errors.Is(err, storage.ErrConflict):
		return ErrorResponse(http.StatusConflict, "conflict", "concurrent modification, retry")
	}
	return InternalServerError("internal error")
}

// writeError logs err at a level matching its class and writes the mapped
// response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context())
	resp := FromError(err)
	fields := log.NewFields().WithOperation(op).WithStatus(resp.statusCode)
	switch {
	case resp.statusCode >= 500:
		errType := log.ErrorTypeInternal
		if core.IsPersistence(err) {
			errType = log.ErrorTypeDatabase
		}
		logger.ErrorContext(r.Context(), "Request failed", fields.WithError(err, errType).ToSlice()...)
	case resp.statusCode == http.StatusNotFound:
		logger.DebugContext(r.Context(), "Record not found", fields.WithError(err, log.ErrorTypeNotFound).ToSlice()...)
	case resp.statusCode == http.StatusConflict:
		logger.WarnContext(r.Context(), "Request conflicted", fields.WithError(err, log.ErrorTypeConflict).ToSlice()...)
	default:
		logger.InfoContext(r.Context(), "Request rejected", fields.WithError(err, log.ErrorTypeValidation).ToSlice()...)
	}
	resp.Write(w)
}
