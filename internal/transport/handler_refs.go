package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/model"
)

func handleResolveName(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := readableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		id := chi.URLParam(r, "id")
		g := deps.Editor.Graph()
		WriteJSON(w, http.StatusOK, map[string]any{
			"collection": c,
			"id":         id,
			"name":       g.ResolveName(c, id),
			"exists":     g.Exists(c, id),
		})
	}
}

func handleStageCandidates(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		excluding := r.URL.Query().Get("excluding")
		writeCandidates(w, deps.Editor.Graph().AvailableStages(excluding))
	}
}

func handleCardCandidates(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCandidates(w, deps.Editor.Graph().AvailableCards())
	}
}

func handleSkillCandidates(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := readableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if !c.IsSkill() {
			WriteError(w, model.NewBadRequestError(fmt.Sprintf("%s is not a skill collection", c)))
			return
		}
		writeCandidates(w, deps.Editor.Graph().AvailableSkills(c))
	}
}

func writeCandidates(w http.ResponseWriter, candidates []refgraph.Candidate) {
	if candidates == nil {
		candidates = []refgraph.Candidate{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": candidates})
}
