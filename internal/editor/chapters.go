package editor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/model"
)

// CreateChapter appends a chapter built from the chapter template to a region
// and persists the regions document. An open draft of the same region is
// autosaved first and reopened afterwards so it carries the new chapter.
func (e *Editor) CreateChapter(ctx context.Context, regionID, chapterID, name string) (SaveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return SaveResult{}, fmt.Errorf("%w: chapter_id must not be empty", ErrInvalidID)
	}
	region, reopen, err := e.regionLocked(ctx, regionID)
	if err != nil {
		return SaveResult{}, err
	}
	regionID = region.String("region_id")

	chapter := model.NewChapter(chapterID)
	if name = strings.TrimSpace(name); name != "" {
		chapter["chapter_name"] = name
	}
	region["chapters"] = append(region.Slice("chapters"), map[string]any(chapter))

	res, err := e.persistLocked(ctx, model.Regions, region, regionID)
	if err != nil {
		return SaveResult{}, err
	}
	if err := e.reopenLocked(ctx, regionID, reopen, &res); err != nil {
		return SaveResult{}, err
	}
	e.logger.Info("chapter created", zap.String("region_id", regionID), zap.String("chapter_id", chapterID))
	return res, nil
}

// DeleteChapter removes a chapter from its region and persists the regions
// document. Chapters that still name it as their previous chapter are
// returned unchanged.
func (e *Editor) DeleteChapter(ctx context.Context, regionID, chapterID string) (DeleteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	region, reopen, err := e.regionLocked(ctx, regionID)
	if err != nil {
		return DeleteResult{}, err
	}
	regionID = region.String("region_id")

	chapters := region.Slice("chapters")
	kept := make([]any, 0, len(chapters))
	for _, item := range chapters {
		if ch, ok := item.(map[string]any); ok && model.Record(ch).String("chapter_id") == chapterID {
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) == len(chapters) {
		return DeleteResult{}, fmt.Errorf("%w: chapter %q in region %q", ErrNotFound, chapterID, regionID)
	}
	region["chapters"] = kept

	res, err := e.persistLocked(ctx, model.Regions, region, regionID)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := e.reopenLocked(ctx, regionID, reopen, &res); err != nil {
		return DeleteResult{}, err
	}

	out := DeleteResult{Collection: model.Chapters, ID: chapterID, Referrers: e.graphLocked().ReferrersOf(model.Chapters, chapterID)}
	if out.Referrers == nil {
		out.Referrers = []refgraph.Reference{}
	}
	e.logger.Info("chapter deleted",
		zap.String("region_id", regionID),
		zap.String("chapter_id", chapterID),
		zap.Int("referrers", len(out.Referrers)),
	)
	e.publish(model.Event{Type: model.EventDeleted, Collection: model.Chapters, EntityID: chapterID})
	return out, nil
}

// regionLocked returns a copy of the persisted region. reopen is true when
// the region had an open draft, which is autosaved on the way.
func (e *Editor) regionLocked(ctx context.Context, regionID string) (model.Record, bool, error) {
	cc, _, err := e.lookup(model.Regions)
	if err != nil {
		return nil, false, err
	}
	reopen := false
	if cur := cc.session; cur != nil && cur.Editing() && cur.OriginalID == regionID {
		if _, err := e.saveLocked(ctx, cur, eventAutosave); err != nil {
			return nil, false, fmt.Errorf("autosave %s %q: %w", model.Regions, regionID, err)
		}
		regionID = cur.OriginalID
		reopen = true
	}
	doc, ok := e.store.Document(model.Regions)
	if !ok {
		return nil, false, e.notLoaded(model.Regions)
	}
	rec, _ := doc.Find("region_id", regionID)
	if rec == nil {
		return nil, false, fmt.Errorf("%w: %s %q", ErrNotFound, model.Regions, regionID)
	}
	return rec.Clone(), reopen, nil
}

func (e *Editor) reopenLocked(ctx context.Context, regionID string, reopen bool, res *SaveResult) error {
	if !reopen {
		return nil
	}
	view, err := e.beginLocked(ctx, model.Regions, regionID)
	if err != nil {
		return err
	}
	res.Session = &view
	return nil
}
