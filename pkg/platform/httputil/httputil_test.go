package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dErrors "naturewatch/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("validation error includes field", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.NewField(dErrors.CodeValidation, "lat", "must be in [-90,90]"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "validation" {
			t.Fatalf("expected error code validation, got %q", body["error"])
		}
		if body["field"] != "lat" {
			t.Fatalf("expected field lat, got %q", body["field"])
		}
	})
}

func TestStatusOf(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:              http.StatusBadRequest,
		dErrors.CodeUnauthorized:            http.StatusUnauthorized,
		dErrors.CodeInsufficientCredibility: http.StatusForbidden,
		dErrors.CodeNotEligible:             http.StatusForbidden,
		dErrors.CodeNotOwner:                http.StatusForbidden,
		dErrors.CodeNotFound:                http.StatusNotFound,
		dErrors.CodeAlreadyVoted:            http.StatusConflict,
		dErrors.CodeInvalidState:            http.StatusConflict,
		dErrors.CodeConcurrentModification:  http.StatusConflict,
		dErrors.CodeInternal:                http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusOf(code); got != want {
			t.Errorf("StatusOf(%s) = %d, want %d", code, got, want)
		}
	}
}
