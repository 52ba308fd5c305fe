package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]string{"card_name": "火焰 <龍>"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if xct := w.Header().Get("X-Content-Type-Options"); xct != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", xct)
	}
	if got := w.Body.String(); got != "{\"card_name\":\"火焰 <龍>\"}\n" {
		t.Errorf("body = %q, want unescaped text", got)
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) model.ErrorEnvelope {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error
}

func TestWriteError_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, model.NewNotFoundError("card not found"))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if got := decodeEnvelope(t, w); got.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", got.Code)
	}
}

func TestWriteError_nonEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("something went wrong"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 for unknown error", w.Code)
	}
}

func TestWriteError_coreErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{
			name:   "duplicate id",
			err:    fmt.Errorf("save: %w", &editor.DuplicateIDError{Collection: model.Cards, Field: "card_id", ID: "C1"}),
			code:   model.ErrDuplicateID,
			status: 409,
		},
		{
			name:   "persist failure",
			err:    &store.PersistError{Path: "data/cards.json", Err: errors.New("disk full")},
			code:   model.ErrPersistFailure,
			status: 500,
		},
		{
			name:   "missing file",
			err:    &store.LoadError{Collection: model.Cards, Path: "data/cards.json", Err: store.ErrMissingFile},
			code:   model.ErrMissingFile,
			status: 409,
		},
		{
			name:   "malformed document",
			err:    &store.LoadError{Collection: model.Cards, Path: "data/cards.json", Err: fmt.Errorf("%w: line 3", store.ErrMalformedDocument)},
			code:   model.ErrMalformedDocument,
			status: 409,
		},
		{name: "invalid id", err: fmt.Errorf("%w: empty", editor.ErrInvalidID), code: model.ErrValidationError, status: 422},
		{name: "not found", err: editor.ErrNotFound, code: model.ErrNotFound, status: 404},
		{name: "unknown collection", err: store.ErrUnknownCollection, code: model.ErrNotFound, status: 404},
		{name: "no session", err: editor.ErrNoSession, code: model.ErrInvalidTransition, status: 409},
		{name: "not editable", err: editor.ErrNotEditable, code: model.ErrBadRequest, status: 400},
		{name: "not loaded", err: store.ErrNotLoaded, code: model.ErrConflict, status: 409},
		{name: "read only", err: store.ErrReadOnly, code: model.ErrForbidden, status: 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := decodeEnvelope(t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestWriteError_persistFailureKeepsCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, &store.PersistError{Path: "data/cards.json", Err: errors.New("permission denied")})

	got := decodeEnvelope(t, w)
	if got.Message != "writing data/cards.json failed: permission denied" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNotFound(w, "resource missing")
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWriteForbidden(t *testing.T) {
	w := httptest.NewRecorder()
	WriteForbidden(w, "access denied")
	if w.Code != 403 {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRejectionReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&editor.DuplicateIDError{}, "duplicate_id"},
		{editor.ErrInvalidID, "invalid_id"},
		{store.ErrNotLoaded, "not_loaded"},
		{store.ErrReadOnly, "read_only"},
		{errors.New("x"), "other"},
	}
	for _, tt := range tests {
		if got := rejectionReason(tt.err); got != tt.want {
			t.Errorf("rejectionReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
