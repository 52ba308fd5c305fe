package editor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// ReloadResult describes a reload of the whole project.
type ReloadResult struct {
	Reloaded   bool                   `json:"reloaded"`
	Changed    []string               `json:"changed,omitempty"`
	Discarded  []model.DiscardedDraft `json:"discarded"`
	LoadErrors []string               `json:"load_errors,omitempty"`
	Generation uint64                 `json:"generation"`
}

// Refresh reloads the project when any collection file changed on disk since
// the last load or save. Every open draft is discarded by a reload.
func (e *Editor) Refresh(ctx context.Context) (ReloadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ReloadResult{}, err
	}
	changed, reloaded := e.store.CheckExternalChange(ctx)
	if !reloaded {
		return ReloadResult{Discarded: []model.DiscardedDraft{}, Generation: e.store.Generation()}, nil
	}
	res := e.afterLoadLocked(model.EventReloaded, e.store.LoadErrors())
	res.Changed = changed
	return res, nil
}

// Reload reloads the project unconditionally.
func (e *Editor) Reload(ctx context.Context) (ReloadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ReloadResult{}, err
	}
	_, errs := e.store.LoadAll(ctx)
	return e.afterLoadLocked(model.EventReloaded, errs), nil
}

// SwitchProject points the store at another project and loads it.
func (e *Editor) SwitchProject(ctx context.Context, fsys store.FS) (ReloadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ReloadResult{}, err
	}
	_, errs := e.store.SwitchFS(ctx, fsys)
	e.logger.Info("project switched", zap.String("location", fsys.Location()))
	return e.afterLoadLocked(model.EventProjectChanged, errs), nil
}

func (e *Editor) afterLoadLocked(kind model.EventType, errs []*store.LoadError) ReloadResult {
	res := ReloadResult{
		Reloaded:   true,
		Discarded:  e.discardLocked(),
		Generation: e.store.Generation(),
	}
	for _, le := range errs {
		res.LoadErrors = append(res.LoadErrors, le.Error())
	}
	e.graph = nil

	e.publish(model.Event{Type: kind, Errors: res.LoadErrors})
	if len(errs) > 0 {
		e.publish(model.Event{Type: model.EventLoadFailed, Errors: res.LoadErrors})
	}
	if len(res.Discarded) > 0 {
		e.logger.Warn("reload discarded unsaved drafts", zap.Int("count", len(res.Discarded)))
		e.publish(model.Event{Type: model.EventDraftsDiscarded, Discarded: res.Discarded})
	}
	return res
}

// discardLocked drops every session. Drafts that were still open are
// returned.
func (e *Editor) discardLocked() []model.DiscardedDraft {
	out := []model.DiscardedDraft{}
	for c, cc := range e.contexts {
		if s := cc.session; s != nil && s.Editing() {
			out = append(out, model.DiscardedDraft{SessionID: s.ID, Collection: c, EntityID: s.OriginalID})
		}
		cc.session = nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}
