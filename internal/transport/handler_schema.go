package transport

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/model"
)

// effectView is a registry entry as the form generator consumes it.
type effectView struct {
	schema.Entry
	Side       schema.Side      `json:"side"`
	JSONSchema *openapi3.Schema `json:"json_schema,omitempty"`
}

func registryOf(deps Dependencies) *schema.Registry {
	if reg := deps.Editor.Registry(); reg != nil {
		return reg
	}
	return schema.NewRegistry()
}

func handleListEffects(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := registryOf(deps)
		entries := reg.Entries()
		side := r.URL.Query().Get("side")

		out := make([]effectView, 0, len(entries))
		for _, e := range entries {
			v := effectView{Entry: e, Side: reg.Classify(e.Type)}
			if side != "" && v.Side.String() != side {
				continue
			}
			out = append(out, v)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func handleGetEffect(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := registryOf(deps)
		tag := chi.URLParam(r, "type")
		e, ok := reg.Entry(tag)
		if !ok {
			WriteNotFound(w, fmt.Sprintf("effect type %q is not registered", tag))
			return
		}
		v := effectView{Entry: e, Side: reg.Classify(tag)}
		if s, ok := reg.JSONSchema(tag); ok {
			v.JSONSchema = s
		}
		WriteJSON(w, http.StatusOK, v)
	}
}

func handleChoices(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := registryOf(deps)
		param := chi.URLParam(r, "param")
		if !slices.Contains(reg.ChoiceParams(), param) {
			WriteNotFound(w, fmt.Sprintf("parameter %q has no choice set", param))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"param":  param,
			"values": reg.ChoicesFor(param),
		})
	}
}

func handleElements(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"data": registryOf(deps).Elements()})
	}
}

// handleEffectTypes lists every effect type a skill of one side may use: the
// registered tags plus any tag already present in the loaded skills.
func handleEffectTypes(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("side")
		if name == "" {
			name = schema.PlayerSide.String()
		}
		side, err := schema.ParseSide(name)
		if err != nil {
			WriteError(w, model.NewBadRequestError(err.Error()))
			return
		}
		types := deps.Editor.Graph().EffectTypeUniverse(side)
		if types == nil {
			types = []string{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"side": side,
			"data": types,
		})
	}
}
