package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/model"
)

func handleListSessions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := deps.Editor.Sessions()
		if views == nil {
			views = []editor.View{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": views})
	}
}

func handleGetSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		view, ok := deps.Editor.Session(c)
		if !ok {
			WriteNotFound(w, fmt.Sprintf("no edit session for %s", c))
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleBeginSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		var body struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "editor.begin",
			observability.AttrCollection.String(string(c)),
			observability.AttrEntityID.String(body.ID),
		)
		view, err := deps.Editor.Begin(ctx, c, body.ID)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, c, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleUpdateSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		var body struct {
			Draft model.Record `json:"draft"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.Draft == nil {
			WriteError(w, model.NewBadRequestError("draft is required"))
			return
		}
		view, err := deps.Editor.Update(c, body.Draft)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleSaveSession(deps Dependencies) http.HandlerFunc {
	return sessionSave(deps, "editor.save", deps.Editor.Save)
}

func handleAutoSaveSession(deps Dependencies) http.HandlerFunc {
	return sessionSave(deps, "editor.autosave", deps.Editor.AutoSave)
}

func sessionSave(deps Dependencies, spanName string, save func(context.Context, model.Collection) (editor.SaveResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		ctx, span := observability.StartSpan(r.Context(), spanName,
			observability.AttrCollection.String(string(c)),
		)
		start := time.Now()
		res, err := save(ctx, c)
		observeSave(deps, c, start, err)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, c, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func handleCancelSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		view, err := deps.Editor.Cancel(r.Context(), c)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}
