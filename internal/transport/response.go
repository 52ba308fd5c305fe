// Package transport contains the HTTP router, middleware chain, and all
// request handlers of the content editing API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Errors that are not envelopes are converted by
// envelopeFor; anything it does not recognize becomes a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	ee := envelopeFor(err)
	WriteJSON(w, ee.Status(), struct {
		Error *model.ErrorEnvelope `json:"error"`
	}{ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewForbiddenError(msg))
}

// envelopeFor converts core errors into API envelopes.
func envelopeFor(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}

	var dup *editor.DuplicateIDError
	if errors.As(err, &dup) {
		return model.NewDuplicateIDError(dup.Field, dup.ID)
	}
	var perr *store.PersistError
	if errors.As(err, &perr) {
		return model.NewPersistFailureError(perr.Path, perr.Err)
	}
	var lerr *store.LoadError
	if errors.As(err, &lerr) {
		return envelopeForLoadError(lerr)
	}

	switch {
	case errors.Is(err, editor.ErrInvalidID):
		return model.NewValidationError([]model.FieldError{{
			Field:   "id",
			Code:    "INVALID_ID",
			Message: err.Error(),
		}})
	case errors.Is(err, editor.ErrNotFound), errors.Is(err, store.ErrUnknownCollection):
		return model.NewNotFoundError(err.Error())
	case errors.Is(err, editor.ErrNoSession), errors.Is(err, editor.ErrInvalidTransition):
		return model.NewInvalidTransitionError(err.Error())
	case errors.Is(err, editor.ErrNotEditable):
		return model.NewBadRequestError(err.Error())
	case errors.Is(err, store.ErrNotLoaded):
		return model.NewConflictError(err.Error())
	case errors.Is(err, store.ErrReadOnly):
		return model.NewForbiddenError("the project is opened read-only")
	default:
		return model.NewInternalError()
	}
}

func envelopeForLoadError(lerr *store.LoadError) *model.ErrorEnvelope {
	switch {
	case errors.Is(lerr, store.ErrMissingFile):
		return model.NewMissingFileError(lerr.Path)
	case errors.Is(lerr, store.ErrMalformedDocument):
		return model.NewMalformedDocumentError(lerr.Path, lerr.Err.Error())
	default:
		return model.NewConflictError(lerr.Error())
	}
}

// rejectionReason labels save rejections for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, editor.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, editor.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, store.ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, store.ErrReadOnly):
		return "read_only"
	default:
		return "other"
	}
}
