package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppErrorError(t *testing.T) {
	plain := New(CodeValidation, "invalid input")
	if got := plain.Error(); got != "VALIDATION_ERROR: invalid input" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(CodeInternal, "something failed", errors.New("underlying"))
	if got := wrapped.Error(); got != "INTERNAL_ERROR: something failed: underlying" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{CodeRetrieval, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetail("field", "query").
		WithDetail("reason", "required")

	if err.Details["field"] != "query" || err.Details["reason"] != "required" {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err     *AppError
		code    string
		message string
	}{
		{ValidationError("bad input"), CodeValidation, "bad input"},
		{NotFoundError("history entry"), CodeNotFound, "history entry not found"},
		{InvalidRequestError("no body"), CodeInvalidRequest, "no body"},
		{UnauthorizedError(), CodeUnauthorized, "unauthorized"},
		{TimeoutError("embedding"), CodeTimeout, "embedding timed out"},
		{TimeoutError(""), CodeTimeout, "operation timed out"},
		{ServiceUnavailableError("qdrant"), CodeUnavailable, "qdrant is unavailable"},
		{ServiceUnavailableError(""), CodeUnavailable, "service unavailable"},
		{RetrievalError("text search failed", errors.New("refused")), CodeRetrieval, "text search failed"},
		{InternalError("boom", errors.New("refused")), CodeInternal, "boom"},
	}

	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
		}
		if tt.err.Message != tt.message {
			t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
		}
	}
}

func TestRateLimitedError(t *testing.T) {
	if err := RateLimitedError(5); err.Details["retry_after"] != "5" {
		t.Errorf("Details[retry_after] = %q, want 5", err.Details["retry_after"])
	}
	if err := RateLimitedError(0); err.Details != nil {
		t.Errorf("zero retry hint should leave details empty, got %v", err.Details)
	}
}

func TestPredicates(t *testing.T) {
	if !IsValidation(ValidationError("x")) {
		t.Error("IsValidation missed a validation error")
	}
	if !IsNotFound(NotFoundError("x")) {
		t.Error("IsNotFound missed a not found error")
	}
	if !IsRetrieval(fmt.Errorf("wrapped: %w", RetrievalError("x", nil))) {
		t.Error("IsRetrieval should see through fmt.Errorf wrapping")
	}
	if IsNotFound(ValidationError("x")) || IsValidation(errors.New("plain")) {
		t.Error("predicates matched the wrong error kind")
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, ValidationError("query is required"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Code != CodeValidation || resp.Error != "query is required" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("plain error is opaque", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("dial tcp 10.0.0.3: refused"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Code != CodeInternal || resp.Error != "internal server error" {
			t.Errorf("response = %+v", resp)
		}
	})
}

func TestWriteErrorWithStatus(t *testing.T) {
	t.Run("client error keeps message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErrorWithStatus(rec, http.StatusTooManyRequests, errors.New("slow down"))

		resp := decodeResponse(t, rec)
		if rec.Code != http.StatusTooManyRequests || resp.Code != CodeRateLimited {
			t.Errorf("status = %d, code = %s", rec.Code, resp.Code)
		}
		if resp.Error != "slow down" {
			t.Errorf("Error = %q", resp.Error)
		}
	})

	t.Run("server error hides message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErrorWithStatus(rec, http.StatusBadGateway, errors.New("secret detail"))

		resp := decodeResponse(t, rec)
		if resp.Error != "internal server error" {
			t.Errorf("Error = %q, internal details leaked", resp.Error)
		}
	})
}
