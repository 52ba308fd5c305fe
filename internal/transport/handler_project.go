package transport

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/integrity"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// Reload triggers, used as metric labels.
const (
	TriggerPoll   = "poll"
	TriggerManual = "manual"
	TriggerSwitch = "switch"
)

func handleIntegrity(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := observability.StartSpan(r.Context(), "integrity.validate")
		docs := deps.Editor.Store().Documents()
		issues := deps.Validator.Validate(docs, deps.Editor.Graph())
		span.End()

		report := integrity.NewReport(issues)
		if severity := r.URL.Query().Get("severity"); severity != "" {
			var filtered []integrity.Issue
			for _, i := range report.Issues {
				if string(i.Severity) == severity {
					filtered = append(filtered, i)
				}
			}
			report = integrity.NewReport(filtered)
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func handleReload(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "editor.reload",
			observability.AttrTrigger.String(TriggerManual),
		)
		res, err := deps.Editor.Reload(ctx)
		observability.EndSpanWithError(span, err)
		if err != nil {
			WriteError(w, err)
			return
		}
		ObserveReload(deps.Metrics, deps.Editor, TriggerManual, res)
		WriteJSON(w, http.StatusOK, res)
	}
}

func handleSwitchProject(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Location string `json:"location"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.Location == "" {
			WriteError(w, model.NewValidationError([]model.FieldError{{
				Field:   "location",
				Code:    "REQUIRED",
				Message: "location is required",
			}}))
			return
		}
		if !deps.Config.Project.SwitchAllowed(body.Location) {
			observability.LoggerFrom(r.Context(), deps.logger()).Warn("project switch outside allowed roots",
				zap.String("location", body.Location),
				zap.Strings("switch_roots", deps.Config.Project.SwitchRoots),
			)
			WriteError(w, model.NewForbiddenError("location is outside the configured project roots"))
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "editor.switch_project",
			observability.AttrTrigger.String(TriggerSwitch),
		)

		open := deps.OpenProject
		if open == nil {
			open = store.Open
		}
		fsys, err := open(ctx, body.Location)
		if err != nil {
			observability.EndSpanWithError(span, err)
			observability.LoggerFrom(r.Context(), deps.logger()).Warn("project switch rejected",
				zap.String("location", body.Location),
				zap.Error(err),
			)
			WriteError(w, model.NewBadRequestError(fmt.Sprintf("cannot open project: %v", err)))
			return
		}
		res, err := deps.Editor.SwitchProject(ctx, fsys)
		observability.EndSpanWithError(span, err)
		if err != nil {
			WriteError(w, err)
			return
		}
		if deps.ProjectSwitched != nil {
			deps.ProjectSwitched()
		}
		ObserveReload(deps.Metrics, deps.Editor, TriggerSwitch, res)
		WriteJSON(w, http.StatusOK, map[string]any{
			"location": fsys.Location(),
			"result":   res,
		})
	}
}

func handleBackup(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("cardforge-backup-%s.tar.gz", time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		if err := deps.Editor.Store().Backup(r.Context(), w); err != nil {
			// Headers are gone; the client sees a truncated archive.
			observability.LoggerFrom(r.Context(), deps.logger()).Error("backup failed", zap.Error(err))
		}
	}
}

// ObserveReload records one reload and refreshes the project gauges.
func ObserveReload(m *observability.Metrics, ed *editor.Editor, trigger string, res editor.ReloadResult) {
	if m == nil || !res.Reloaded {
		return
	}
	status := "success"
	if len(res.LoadErrors) > 0 {
		status = "error"
	}
	m.RecordReload(trigger, status, len(res.Discarded))
	ObserveProject(m, ed)
}

// ObserveProject sets the document and dangling reference gauges from the
// current project state.
func ObserveProject(m *observability.Metrics, ed *editor.Editor) {
	if m == nil {
		return
	}
	docs := ed.Store().Documents()
	for _, c := range model.Collections() {
		m.SetDocumentsLoaded(string(c), float64(len(docs.Records(c))))
	}

	dangling := make(map[model.Collection]int)
	for _, ref := range ed.Graph().Dangling() {
		dangling[ref.From]++
	}
	for _, c := range append(model.Collections(), model.Chapters) {
		m.SetDanglingReferences(string(c), float64(dangling[c]))
	}
}
