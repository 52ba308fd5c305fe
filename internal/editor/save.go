package editor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/identity"
	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// legacyStageField is the flat enemy list stages carried before waves.
const legacyStageField = "enemies"

// SaveResult describes a successful save.
type SaveResult struct {
	Collection model.Collection `json:"collection"`
	ID         string           `json:"id"`
	Record     model.Record     `json:"record"`
	// Warnings are references held by the saved entity that resolve to nothing.
	Warnings []refgraph.Reference `json:"warnings"`
	// Referrers point at the entity's previous id after a rename.
	Referrers []refgraph.Reference `json:"referrers,omitempty"`
	Session   *View                `json:"session,omitempty"`
}

// DeleteResult describes a successful delete.
type DeleteResult struct {
	Collection model.Collection `json:"collection"`
	ID         string           `json:"id"`
	// Referrers still point at the deleted entity.
	Referrers []refgraph.Reference `json:"referrers"`
}

// persistLocked runs the save flow for one record: normalize the id, reject
// duplicates, write the whole collection, rebuild the graph and collect
// warnings. originalID is "" for a record that does not exist yet.
func (e *Editor) persistLocked(ctx context.Context, c model.Collection, draft model.Record, originalID string) (SaveResult, error) {
	_, info, err := e.lookup(c)
	if err != nil {
		return SaveResult{}, err
	}
	doc, ok := e.store.Document(c)
	if !ok {
		return SaveResult{}, e.notLoaded(c)
	}

	rec := draft.Clone()
	id := identity.EnsurePrefix(c, rec.String(info.IDField))
	if id == "" || id == identity.PrefixFor(c) {
		return SaveResult{}, fmt.Errorf("%w: %s must not be empty", ErrInvalidID, info.IDField)
	}
	if rec.String(info.IDField) != id {
		rec[info.IDField] = id
	}
	if c == model.Stages {
		delete(rec, legacyStageField)
	}

	if identity.IsDuplicate(doc.Records, info.IDField, id, originalID) {
		err := &DuplicateIDError{Collection: c, Field: info.IDField, ID: id}
		e.logger.Warn("save rejected", zap.String("collection", string(c)), zap.String("entity_id", id), zap.Error(err))
		return SaveResult{}, err
	}
	if c == model.Regions {
		if err := e.checkChapters(doc.Records, rec, originalID); err != nil {
			e.logger.Warn("save rejected", zap.String("collection", string(c)), zap.String("entity_id", id), zap.Error(err))
			return SaveResult{}, err
		}
	}

	records := make([]model.Record, 0, len(doc.Records)+1)
	replaced := false
	for _, r := range doc.Records {
		if !replaced && originalID != "" && r.String(info.IDField) == originalID {
			records = append(records, rec)
			replaced = true
			continue
		}
		records = append(records, r)
	}
	if !replaced {
		records = append(records, rec)
	}

	if err := e.store.Save(ctx, c, records); err != nil {
		return SaveResult{}, err
	}

	g := e.graphLocked()
	res := SaveResult{
		Collection: c,
		ID:         id,
		Record:     rec.Clone(),
		Warnings:   danglingFrom(g, c, rec),
	}
	if originalID != "" && originalID != id {
		res.Referrers = g.ReferrersOf(c, originalID)
	}
	if len(res.Warnings) > 0 {
		e.logger.Warn("saved with dangling references",
			zap.String("collection", string(c)),
			zap.String("entity_id", id),
			zap.Int("count", len(res.Warnings)),
		)
	}
	e.publish(model.Event{Type: model.EventSaved, Collection: c, EntityID: id})
	return res, nil
}

// checkChapters rejects a region whose chapters reuse a chapter id, either
// within the region or from any other region.
func (e *Editor) checkChapters(regions []model.Record, region model.Record, originalID string) error {
	taken := make(map[string]bool)
	for _, r := range regions {
		if originalID != "" && r.String("region_id") == originalID {
			continue
		}
		for _, id := range chapterIDs(r) {
			taken[id] = true
		}
	}
	for _, id := range chapterIDs(region) {
		if taken[id] {
			return &DuplicateIDError{Collection: model.Chapters, Field: "chapter_id", ID: id}
		}
		taken[id] = true
	}
	return nil
}

func chapterIDs(region model.Record) []string {
	var out []string
	for _, item := range region.Slice("chapters") {
		ch, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id := model.Record(ch).String("chapter_id"); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func danglingFrom(g *refgraph.Graph, c model.Collection, rec model.Record) []refgraph.Reference {
	info, _ := model.Info(c)
	out := []refgraph.Reference{}
	add := func(refs []refgraph.Reference) {
		for _, r := range refs {
			if !r.Resolved {
				out = append(out, r)
			}
		}
	}
	add(g.ReferencesFrom(c, rec.String(info.IDField)))
	if c == model.Regions {
		for _, id := range chapterIDs(rec) {
			add(g.ReferencesFrom(model.Chapters, id))
		}
	}
	return out
}

// Create adds a new entity built from the collection template and persists
// it at once. rawID gets the collection prefix when it lacks one. The new
// entity becomes the collection's open session; an edit already open is
// autosaved first.
func (e *Editor) Create(ctx context.Context, c model.Collection, rawID string) (SaveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cc, info, err := e.lookup(c)
	if err != nil {
		return SaveResult{}, err
	}
	doc, ok := e.store.Document(c)
	if !ok {
		return SaveResult{}, e.notLoaded(c)
	}
	id := identity.EnsurePrefix(c, rawID)
	if id == "" || id == identity.PrefixFor(c) {
		return SaveResult{}, fmt.Errorf("%w: %s must not be empty", ErrInvalidID, info.IDField)
	}
	if identity.IsDuplicate(doc.Records, info.IDField, id, "") {
		err := &DuplicateIDError{Collection: c, Field: info.IDField, ID: id}
		e.logger.Warn("create rejected", zap.String("collection", string(c)), zap.Error(err))
		return SaveResult{}, err
	}

	if cur := cc.session; cur != nil && cur.Editing() {
		if _, err := e.saveLocked(ctx, cur, eventAutosave); err != nil {
			return SaveResult{}, fmt.Errorf("autosave %s %q: %w", c, cur.OriginalID, err)
		}
	}

	rec, ok := model.Template(c, id)
	if !ok {
		return SaveResult{}, fmt.Errorf("%w: %s", ErrNotEditable, c)
	}
	res, err := e.persistLocked(ctx, c, rec, "")
	if err != nil {
		return SaveResult{}, err
	}
	view, err := e.beginLocked(ctx, c, res.ID)
	if err != nil {
		return SaveResult{}, err
	}
	res.Session = &view
	e.logger.Info("entity created", zap.String("collection", string(c)), zap.String("entity_id", res.ID))
	return res, nil
}

// Delete removes an entity and persists its collection. Entities that still
// reference it are returned; they are not changed. An open session on the
// entity is cancelled.
func (e *Editor) Delete(ctx context.Context, c model.Collection, id string) (DeleteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cc, info, err := e.lookup(c)
	if err != nil {
		return DeleteResult{}, err
	}
	doc, ok := e.store.Document(c)
	if !ok {
		return DeleteResult{}, e.notLoaded(c)
	}
	_, idx := doc.Find(info.IDField, id)
	if idx < 0 {
		return DeleteResult{}, fmt.Errorf("%w: %s %q", ErrNotFound, c, id)
	}

	records := make([]model.Record, 0, len(doc.Records)-1)
	records = append(records, doc.Records[:idx]...)
	records = append(records, doc.Records[idx+1:]...)
	if err := e.store.Save(ctx, c, records); err != nil {
		return DeleteResult{}, err
	}

	if s := cc.session; s != nil && s.Editing() && s.OriginalID == id {
		if err := s.fire(ctx, eventCancel); err == nil {
			s.Draft = nil
		}
	}

	res := DeleteResult{Collection: c, ID: id, Referrers: e.graphLocked().ReferrersOf(c, id)}
	if res.Referrers == nil {
		res.Referrers = []refgraph.Reference{}
	}
	e.logger.Info("entity deleted",
		zap.String("collection", string(c)),
		zap.String("entity_id", id),
		zap.Int("referrers", len(res.Referrers)),
	)
	e.publish(model.Event{Type: model.EventDeleted, Collection: c, EntityID: id})
	return res, nil
}

// IsRejection reports whether err is a save refused for its content rather
// than a failure to write.
func IsRejection(err error) bool {
	return errors.Is(err, ErrDuplicateID) || errors.Is(err, ErrInvalidID) || errors.Is(err, store.ErrNotLoaded) || errors.Is(err, store.ErrReadOnly)
}
