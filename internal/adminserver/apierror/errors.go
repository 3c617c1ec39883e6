// Package apierror is the admin API's structured error taxonomy: every
// handler returns one of these instead of writing http.Error directly,
// so every failure response carries the same JSON envelope.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Code identifies a class of admin API error.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeCacheDisabled Code = "CACHE_DISABLED"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is the structured error every admin handler returns.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Response wraps Error for JSON responses.
type Response struct {
	Error Error `json:"error"`
}

// New builds an Error with the current timestamp.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// WithRequestID attaches a request ID for correlation.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// StatusCode maps Code to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCacheDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Write serializes e as the standard error envelope.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(Response{Error: *err})
}

func Validation(message string) *Error    { return New(CodeValidation, message) }
func NotFound(resource string) *Error     { return New(CodeNotFound, resource+" not found") }
func CacheDisabled() *Error               { return New(CodeCacheDisabled, "cache is disabled") }
func Internal(message string) *Error      { return New(CodeInternal, message) }
