package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/events"
	"github.com/pitabwire/cardforge/internal/integrity"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/store"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Editor    *editor.Editor
	Validator *integrity.Validator
	Events    *events.Bus
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	// Authenticate verifies callers. Nil disables authentication.
	Authenticate func(http.Handler) http.Handler
	Readiness    observability.ReadinessChecks
	// MetricsHandler serves /metrics. Nil selects the default registry.
	MetricsHandler http.Handler
	// OpenProject opens the document filesystem at a new location. Nil
	// treats every location as a local directory.
	OpenProject func(ctx context.Context, location string) (store.FS, error)
	// ProjectSwitched runs after the project root changed.
	ProjectSwitched func()
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	if deps.Validator == nil {
		deps.Validator = integrity.NewValidator(deps.Editor.Registry())
	}
	logger := deps.logger()

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(Correlate)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes bypass authentication.
	r.Get("/api/health", observability.HandleHealth())
	r.Get("/api/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		metricsHandler := deps.MetricsHandler
		if metricsHandler == nil {
			metricsHandler = observability.Handler()
		}
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, metricsHandler)
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(RequestLogging(logger))

		// Long-lived stream, no handler deadline.
		r.Get("/api/events", handleEvents(deps))

		r.Group(func(r chi.Router) {
			r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

			r.Get("/api/collections", handleListCollections(deps))
			r.Get("/api/collections/{collection}", handleGetCollection(deps))
			r.Get("/api/collections/{collection}/{id}", handleGetEntity(deps))
			r.Get("/api/collections/{collection}/{id}/referrers", handleReferrers(deps))

			r.Get("/api/sessions", handleListSessions(deps))
			r.Get("/api/sessions/{collection}", handleGetSession(deps))

			r.Get("/api/schema/effects", handleListEffects(deps))
			r.Get("/api/schema/effects/{type}", handleGetEffect(deps))
			r.Get("/api/schema/choices/{param}", handleChoices(deps))
			r.Get("/api/schema/elements", handleElements(deps))
			r.Get("/api/effect-types", handleEffectTypes(deps))

			r.Get("/api/names/{collection}/{id}", handleResolveName(deps))
			r.Get("/api/candidates/stages", handleStageCandidates(deps))
			r.Get("/api/candidates/cards", handleCardCandidates(deps))
			r.Get("/api/candidates/skills/{collection}", handleSkillCandidates(deps))

			r.Get("/api/integrity", handleIntegrity(deps))
			r.Get("/api/backup", handleBackup(deps))

			r.Group(func(r chi.Router) {
				r.Use(RequireEditor)

				r.Post("/api/collections/{collection}", handleCreateEntity(deps))
				r.Delete("/api/collections/{collection}/{id}", handleDeleteEntity(deps))
				r.Post("/api/regions/{region}/chapters", handleCreateChapter(deps))
				r.Delete("/api/regions/{region}/chapters/{chapter}", handleDeleteChapter(deps))

				r.Post("/api/sessions/{collection}", handleBeginSession(deps))
				r.Put("/api/sessions/{collection}", handleUpdateSession(deps))
				r.Post("/api/sessions/{collection}/save", handleSaveSession(deps))
				r.Post("/api/sessions/{collection}/autosave", handleAutoSaveSession(deps))
				r.Post("/api/sessions/{collection}/cancel", handleCancelSession(deps))

				r.Post("/api/reload", handleReload(deps))
				r.Put("/api/project", handleSwitchProject(deps))
			})
		})
	})

	return r
}
