package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// maxBodyBytes bounds request bodies. Documents are small; a whole stage
// list is far below this.
const maxBodyBytes = 8 << 20

type collectionSummary struct {
	model.CollectionInfo
	Loaded    bool   `json:"loaded"`
	Count     int    `json:"count"`
	LoadError string `json:"load_error,omitempty"`
}

func handleListCollections(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Editor.Store()
		catalog := model.Catalog()
		out := make([]collectionSummary, 0, len(catalog))
		for _, info := range catalog {
			s := collectionSummary{CollectionInfo: info}
			if doc, ok := st.Document(info.Name); ok {
				s.Loaded = true
				s.Count = len(doc.Records)
			}
			if lerr := st.LoadError(info.Name); lerr != nil {
				s.LoadError = lerr.Error()
			}
			out = append(out, s)
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"location":   st.Location(),
			"read_only":  st.ReadOnly(),
			"generation": st.Generation(),
			"loaded_at":  st.LoadedAt(),
			"data":       out,
		})
	}
}

func handleGetCollection(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := readableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		records, err := recordsOf(deps, c)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"collection": c,
			"count":      len(records),
			"data":       records,
		})
	}
}

func handleGetEntity(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := readableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		records, err := recordsOf(deps, c)
		if err != nil {
			WriteError(w, err)
			return
		}
		info, _ := model.Info(c)
		id := chi.URLParam(r, "id")
		for _, rec := range records {
			if rec.String(info.IDField) == id {
				WriteJSON(w, http.StatusOK, rec)
				return
			}
		}
		WriteNotFound(w, fmt.Sprintf("%s %q not found", c, id))
	}
}

func handleReferrers(deps Dependencies) http.HandlerFunc {
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
			"exists":     g.Exists(c, id),
			"referrers":  nonNil(g.ReferrersOf(c, id)),
			"references": nonNil(g.ReferencesFrom(c, id)),
		})
	}
}

func handleCreateEntity(deps Dependencies) http.HandlerFunc {
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

		ctx, span := observability.StartSpan(r.Context(), "editor.create",
			observability.AttrCollection.String(string(c)),
		)
		start := time.Now()
		res, err := deps.Editor.Create(ctx, c, body.ID)
		observeSave(deps, c, start, err)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, c, err)
			return
		}
		WriteJSON(w, http.StatusCreated, res)
	}
}

func handleDeleteEntity(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := writableCollection(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		id := chi.URLParam(r, "id")

		ctx, span := observability.StartSpan(r.Context(), "editor.delete",
			observability.AttrCollection.String(string(c)),
			observability.AttrEntityID.String(id),
		)
		start := time.Now()
		res, err := deps.Editor.Delete(ctx, c, id)
		observeSave(deps, c, start, err)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, c, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// --- helpers ---

// readableCollection parses the {collection} parameter. Chapters can be
// read even though they are edited through their region.
func readableCollection(r *http.Request) (model.Collection, error) {
	name := chi.URLParam(r, "collection")
	if model.Collection(name) == model.Chapters {
		return model.Chapters, nil
	}
	c, ok := model.ParseCollection(name)
	if !ok {
		return "", model.NewNotFoundError(fmt.Sprintf("unknown collection %q", name))
	}
	return c, nil
}

func writableCollection(r *http.Request) (model.Collection, error) {
	c, err := readableCollection(r)
	if err != nil {
		return "", err
	}
	if c == model.Chapters {
		return "", model.NewBadRequestError("chapters are edited through their region")
	}
	return c, nil
}

// recordsOf returns the current records of c. Chapters are flattened out of
// their regions and carry the owning region_id.
func recordsOf(deps Dependencies, c model.Collection) ([]model.Record, error) {
	st := deps.Editor.Store()
	if c == model.Chapters {
		regions, ok := st.Document(model.Regions)
		if !ok {
			return nil, notLoadedError(st, model.Regions)
		}
		var out []model.Record
		for _, region := range regions.Records {
			for _, item := range region.Slice("chapters") {
				ch, ok := item.(map[string]any)
				if !ok {
					continue
				}
				rec := model.Record(ch).Clone()
				rec["region_id"] = region.String("region_id")
				out = append(out, rec)
			}
		}
		if out == nil {
			out = []model.Record{}
		}
		return out, nil
	}
	doc, ok := st.Document(c)
	if !ok {
		return nil, notLoadedError(st, c)
	}
	return doc.Records, nil
}

func notLoadedError(st *store.Store, c model.Collection) error {
	if lerr := st.LoadError(c); lerr != nil {
		return lerr
	}
	return fmt.Errorf("%w: %s", store.ErrNotLoaded, c)
}

// decodeJSON decodes a request body keeping numbers as their source text.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewBadRequestError("request body is empty")
		}
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}

// observeSave records save metrics. Successful saves refresh the project
// gauges.
func observeSave(deps Dependencies, c model.Collection, start time.Time, err error) {
	if deps.Metrics == nil {
		return
	}
	if err != nil {
		deps.Metrics.RecordSave(string(c), "error", time.Since(start))
		if editor.IsRejection(err) {
			deps.Metrics.RecordSaveRejection(string(c), rejectionReason(err))
		}
		return
	}
	deps.Metrics.RecordSave(string(c), "success", time.Since(start))
	ObserveProject(deps.Metrics, deps.Editor)
}

// writeSaveError reports a failed save. A collection that failed to load is
// reported through its load error.
func writeSaveError(w http.ResponseWriter, r *http.Request, deps Dependencies, c model.Collection, err error) {
	logger := observability.LoggerFrom(r.Context(), deps.logger())
	if errors.Is(err, store.ErrNotLoaded) {
		if lerr := deps.Editor.Store().LoadError(c); lerr != nil {
			err = lerr
		}
	}
	if editor.IsRejection(err) || errors.Is(err, store.ErrMissingFile) || errors.Is(err, store.ErrMalformedDocument) {
		logger.Warn("save rejected", zap.String("collection", string(c)), zap.Error(err))
	} else if errors.Is(err, store.ErrPersist) {
		logger.Error("save failed", zap.String("collection", string(c)), zap.Error(err))
	}
	WriteError(w, err)
}

func nonNil(refs []refgraph.Reference) []refgraph.Reference {
	if refs == nil {
		return []refgraph.Reference{}
	}
	return refs
}

// --- chapters ---

func handleCreateChapter(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regionID := chi.URLParam(r, "region")
		var body struct {
			ChapterID   string `json:"chapter_id"`
			ChapterName string `json:"chapter_name"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "editor.create_chapter",
			observability.EntityAttrs(model.Regions, regionID)...,
		)
		start := time.Now()
		res, err := deps.Editor.CreateChapter(ctx, regionID, body.ChapterID, body.ChapterName)
		observeSave(deps, model.Regions, start, err)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, model.Regions, err)
			return
		}
		WriteJSON(w, http.StatusCreated, res)
	}
}

func handleDeleteChapter(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regionID := chi.URLParam(r, "region")
		chapterID := chi.URLParam(r, "chapter")

		ctx, span := observability.StartSpan(r.Context(), "editor.delete_chapter",
			observability.EntityAttrs(model.Chapters, chapterID)...,
		)
		start := time.Now()
		res, err := deps.Editor.DeleteChapter(ctx, regionID, chapterID)
		observeSave(deps, model.Regions, start, err)
		observability.EndSpanWithError(span, err)
		if err != nil {
			writeSaveError(w, r, deps, model.Regions, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}
