package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeIO, "write failed", errors.New("disk full")),
			want: "IO_ERROR: write failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := IOError("wrapped", underlying)

	if !errors.Is(err, underlying) {
		t.Errorf("errors.Is() = false, want true")
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeUnknownMetric, http.StatusBadRequest},
		{CodeUnknownCorrection, http.StatusBadRequest},
		{CodeFormat, http.StatusBadRequest},
		{CodeAlignment, http.StatusUnprocessableEntity},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeIO, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("UnknownMetricError", func(t *testing.T) {
		err := UnknownMetricError("bpref")
		if err.Code != CodeUnknownMetric {
			t.Errorf("Code = %s, want %s", err.Code, CodeUnknownMetric)
		}
		if err.Details["metric"] != "bpref" {
			t.Errorf("Details[metric] = %s, want bpref", err.Details["metric"])
		}
	})

	t.Run("FormatError", func(t *testing.T) {
		err := FormatError("bm25.res", 7, "expected 6 fields")
		if err.Message != "bm25.res:7: expected 6 fields" {
			t.Errorf("Message = %q", err.Message)
		}
		if err.Details["line"] != "7" {
			t.Errorf("Details[line] = %s, want 7", err.Details["line"])
		}
	})

	t.Run("AlignmentError", func(t *testing.T) {
		err := AlignmentError("bm25", "tfidf", "query sets differ")
		if err.Details["baseline"] != "bm25" || err.Details["system"] != "tfidf" {
			t.Errorf("Details = %v", err.Details)
		}
	})

	t.Run("RateLimitedError", func(t *testing.T) {
		err := RateLimitedError(3)
		if err.Details["retry_after"] != "3" {
			t.Errorf("retry_after = %s, want 3", err.Details["retry_after"])
		}
	})
}

func TestHasCode_Wrapped(t *testing.T) {
	inner := UnknownCorrectionError("sidak")
	wrapped := fmt.Errorf("comparing systems: %w", inner)

	if !IsUnknownCorrection(wrapped) {
		t.Error("IsUnknownCorrection(wrapped) = false, want true")
	}
	if IsUnknownMetric(wrapped) {
		t.Error("IsUnknownMetric(wrapped) = true, want false")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain) should be empty")
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("evaluating: %w", UnknownMetricError("bpref")))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeUnknownMetric {
			t.Errorf("Code = %s, want %s", resp.Code, CodeUnknownMetric)
		}
	})

	t.Run("plain error is sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("secret path /var/lib"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Error != "internal server error" {
			t.Errorf("Error = %q, want sanitized message", resp.Error)
		}
	})

	t.Run("client status keeps message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErrorWithStatus(rec, http.StatusBadRequest, errors.New("bad json"))

		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeInvalidRequest || resp.Message != "bad json" {
			t.Errorf("resp = %+v", resp)
		}
	})
}
