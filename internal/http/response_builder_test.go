package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"conti/internal/core"
	"conti/internal/storage"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/1").
		Body(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Location") != "/api/expenses/1" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
	if w.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got["id"] != "1" {
		t.Errorf("body = %s (%v)", w.Body.String(), err)
	}
}

func TestJSONResponseBuilderNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"validation", &core.ValidationError{Field: "amount", Reason: "must be positive"}, http.StatusUnprocessableEntity, "validation"},
		{"invalid policy", fmt.Errorf("resolve: %w", core.ErrInvalidPolicy), http.StatusUnprocessableEntity, "invalid_policy"},
		{"not found", core.NewPersistenceError("get", fmt.Errorf("x: %w", storage.ErrNotFound)), http.StatusNotFound, "not_found"},
		{"duplicate", core.NewPersistenceError("create", storage.ErrDuplicate), http.StatusConflict, "duplicate"},
		{"conflict", storage.ErrConflict, http.StatusConflict, "conflict"},
		{"storage down", core.NewPersistenceError("list", errors.New("connection refused")), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(tt.err).Write(w)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.kind {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.kind)
			}
		})
	}
}

func TestFromErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	FromError(errors.New("dial tcp 10.0.0.5:5432: secret-host")).Write(w)
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error.Message != "internal error" {
		t.Errorf("message leaks details: %q", body.Error.Message)
	}
}
