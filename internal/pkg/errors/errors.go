// Package errors defines the application error type shared by all
// handlers and services, plus helpers for rendering errors as JSON.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
)

// Machine-readable error codes carried in API responses.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidRequest = "INVALID_REQUEST"

	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
	CodeRetrieval   = "RETRIEVAL_ERROR"
)

// statusByCode maps each code to the HTTP status it renders as.
// Codes missing from the map are treated as internal errors.
var statusByCode = map[string]int{
	CodeValidation:     http.StatusBadRequest,
	CodeInvalidRequest: http.StatusBadRequest,
	CodeNotFound:       http.StatusNotFound,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeForbidden:      http.StatusForbidden,
	CodeRateLimited:    http.StatusTooManyRequests,
	CodeUnavailable:    http.StatusServiceUnavailable,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// AppError is an error with a stable code, a client-safe message, and
// optional key/value details. The wrapped cause never reaches clients.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatus resolves the response status for the error's code.
func (e *AppError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails replaces the detail map.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail sets one detail, allocating the map on first use.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// New builds an AppError without a cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap builds an AppError around a cause.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// ValidationError reports rejected input.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError reports a missing resource by name.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// RetrievalError wraps a ranker or storage failure during retrieval.
func RetrievalError(message string, err error) *AppError {
	return Wrap(CodeRetrieval, message, err)
}

// InvalidRequestError reports a malformed request.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// UnauthorizedError reports a request with no caller identity.
func UnauthorizedError() *AppError {
	return New(CodeUnauthorized, "unauthorized")
}

// RateLimitedError reports throttling, with a retry hint when known.
func RateLimitedError(retryAfterSeconds int) *AppError {
	e := New(CodeRateLimited, "rate limit exceeded")
	if retryAfterSeconds > 0 {
		e.WithDetail("retry_after", strconv.Itoa(retryAfterSeconds))
	}
	return e
}

// TimeoutError reports that the named operation ran out of time.
func TimeoutError(operation string) *AppError {
	if operation == "" {
		return New(CodeTimeout, "operation timed out")
	}
	return New(CodeTimeout, operation+" timed out")
}

// ServiceUnavailableError reports that a named dependency is down.
func ServiceUnavailableError(service string) *AppError {
	if service == "" {
		return New(CodeUnavailable, "service unavailable")
	}
	return New(CodeUnavailable, service+" is unavailable")
}

// hasCode reports whether err is (or wraps) an AppError with the code.
func hasCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsRetrieval reports whether err carries CodeRetrieval.
func IsRetrieval(err error) bool { return hasCode(err, CodeRetrieval) }

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// responseFor converts an AppError into its wire form.
func responseFor(appErr *AppError) ErrorResponse {
	return ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

// opaqueResponse hides server-side failures from clients.
func opaqueResponse() ErrorResponse {
	return ErrorResponse{
		Error:   "internal server error",
		Code:    CodeInternal,
		Message: "An unexpected error occurred",
	}
}

// WriteJSON writes resp with the given status. Encoding failures are
// dropped since the header has already gone out.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError renders err as JSON. AppErrors choose their own status
// and expose their message; anything else becomes an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), responseFor(appErr))
		return
	}
	WriteJSON(w, http.StatusInternalServerError, opaqueResponse())
}

// WriteErrorWithStatus renders err under a caller-chosen status. Plain
// error messages are exposed only for 4xx statuses; 5xx bodies stay
// opaque regardless of the error.
func WriteErrorWithStatus(w http.ResponseWriter, status int, err error) {
	var appErr *AppError
	switch {
	case stderrors.As(err, &appErr):
		WriteJSON(w, status, responseFor(appErr))
	case status >= 400 && status < 500:
		WriteJSON(w, status, ErrorResponse{
			Error:   err.Error(),
			Code:    codeForStatus(status),
			Message: err.Error(),
		})
	default:
		WriteJSON(w, status, opaqueResponse())
	}
}

// codeForStatus picks a code for plain errors written by status.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusGatewayTimeout:
		return CodeTimeout
	}
	return CodeInternal
}
