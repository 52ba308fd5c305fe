package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/events"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

// testProject holds every required collection file. S1 requires a stage
// that does not exist.
var testProject = map[string]string{
	"cards.json":                 `{"cards": [{"card_id": "C1", "card_name": "Flame Dragon", "active_skill_id": "AS_A", "attack": 1200.50}, {"card_id": "C2", "card_name": "Frost Wolf"}]}`,
	"enemies.json":               `{"enemies": [{"enemy_id": "E1", "enemy_name": "Slime", "passive_skill_ids": ["ES_X"]}]}`,
	"stages.json":                `{"stages": [{"stage_id": "S1", "stage_name": "First", "waves": [{"wave_number": 1, "enemies": [{"enemy_id": "E1", "count": 2}]}], "unlock_requirements": {"required_stages": ["STAGE_999"]}}, {"stage_id": "S2", "stage_name": "Second", "waves": []}]}`,
	"config/active_skills.json":  `{"active_skills": [{"skill_id": "AS_A", "skill_name": "Blaze", "effects": [{"effect_type": "HP_MULTIPLIER", "target_element": "FIRE", "multiplier": 1.5}]}]}`,
	"config/leader_skills.json":  `{"leader_skills": []}`,
	"config/enemy_skills.json":   `{"enemy_skills": [{"skill_id": "ES_X", "skill_name": "Shell", "effects": [{"effect_type": "SEAL_ACTIVE_SKILL", "duration": 2}]}]}`,
	"config/regions.json":        `{"regions": [{"region_id": "R1", "region_name": "Plains", "chapters": [{"chapter_id": "CH1", "chapter_name": "Dawn", "stages": ["S1"]}]}]}`,
	"config/shop_items.json":     `{"items": []}`,
	"config/gacha_pools.json":    `{"pools": []}`,
	"config/training_rooms.json": `{"training_rooms": []}`,
}

func writeTestProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// testDeps returns Dependencies over a freshly loaded copy of testProject
// with authentication off, plus the project directory.
func testDeps(t *testing.T, opts ...store.Option) (Dependencies, string) {
	t.Helper()
	dir := writeTestProject(t, testProject)
	st := store.New(store.NewOSFS(dir), opts...)
	if _, errs := st.LoadAll(context.Background()); len(errs) != 0 {
		t.Fatalf("LoadAll() errors = %v", errs)
	}

	bus := events.NewBus(16)
	ed := editor.New(st, schema.NewRegistry(), editor.WithPublisher(bus))

	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second

	reg := prometheus.NewRegistry()
	return Dependencies{
		Config:         cfg,
		Editor:         ed,
		Events:         bus,
		Metrics:        observability.InitMetrics(reg),
		MetricsHandler: observability.HandlerFor(reg),
		Readiness: observability.ReadinessChecks{
			DocumentsLoaded: st.RequiredLoaded,
			SchemaLoaded:    func() bool { return true },
			Storage:         st,
		},
	}, dir
}

func rejectAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, model.NewUnauthorizedError("rejected"))
	})
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/ready", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var body observability.ReadinessResponse
	json.NewDecoder(w.Body).Decode(&body)
	for _, name := range []string{"documents", "schema", "storage"} {
		if body.Checks[name].Status != "ok" {
			t.Errorf("check %s = %+v, want ok", name, body.Checks[name])
		}
	}
}

func TestNewRouter_readyMissingDocument(t *testing.T) {
	deps, dir := testDeps(t)
	if err := os.Remove(filepath.Join(dir, "cards.json")); err != nil {
		t.Fatal(err)
	}
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/ready", nil))

	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/collections", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `cardforge_http_requests_total{method="GET",path_pattern="/api/collections",status="200"} 1`) {
		t.Errorf("metrics output lacks the collections request:\n%s", w.Body.String())
	}
}

func TestNewRouter_metricsDisabled(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Config.Observability.Metrics.Enabled = false
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// With auth rejecting all requests, all authenticated routes should
	// return 401, confirming they are registered and not 404/405.
	deps, _ := testDeps(t)
	deps.Authenticate = rejectAll
	r := NewRouter(deps)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/events"},
		{"GET", "/api/collections"},
		{"GET", "/api/collections/cards"},
		{"GET", "/api/collections/cards/C1"},
		{"GET", "/api/collections/cards/C1/referrers"},
		{"POST", "/api/collections/cards"},
		{"DELETE", "/api/collections/cards/C1"},
		{"POST", "/api/regions/R1/chapters"},
		{"DELETE", "/api/regions/R1/chapters/CH1"},
		{"GET", "/api/sessions"},
		{"GET", "/api/sessions/cards"},
		{"POST", "/api/sessions/cards"},
		{"PUT", "/api/sessions/cards"},
		{"POST", "/api/sessions/cards/save"},
		{"POST", "/api/sessions/cards/autosave"},
		{"POST", "/api/sessions/cards/cancel"},
		{"GET", "/api/schema/effects"},
		{"GET", "/api/schema/effects/HP_MULTIPLIER"},
		{"GET", "/api/schema/choices/target_scope"},
		{"GET", "/api/schema/elements"},
		{"GET", "/api/effect-types"},
		{"GET", "/api/names/cards/C1"},
		{"GET", "/api/candidates/stages"},
		{"GET", "/api/candidates/cards"},
		{"GET", "/api/candidates/skills/active_skills"},
		{"GET", "/api/integrity"},
		{"GET", "/api/backup"},
		{"POST", "/api/reload"},
		{"PUT", "/api/project"},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			if w.Code != 401 {
				t.Errorf("status = %d, want 401 (auth should reject)", w.Code)
			}
		})
	}
}

func TestNewRouter_publicRoutesBypassAuth(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Authenticate = rejectAll
	r := NewRouter(deps)

	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			if w.Code != 200 {
				t.Errorf("status = %d, want 200 (public route)", w.Code)
			}
		})
	}
}

func TestNewRouter_viewerCannotWrite(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Authenticate = JWTAuthenticator(testIdentityCfg(), testKey, zap.NewNop())
	r := NewRouter(deps)

	viewer, err := IssueToken(testIdentityCfg(), testKey, "viewer-1", []string{model.RoleViewer}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	editorToken, err := IssueToken(testIdentityCfg(), testKey, "designer-1", []string{model.RoleEditor}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	get := httptest.NewRequest("GET", "/api/collections/cards", nil)
	get.Header.Set("Authorization", "Bearer "+viewer)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, get)
	if w.Code != 200 {
		t.Errorf("viewer GET status = %d, want 200", w.Code)
	}

	post := httptest.NewRequest("POST", "/api/collections/cards", strings.NewReader(`{"id": "C3"}`))
	post.Header.Set("Authorization", "Bearer "+viewer)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, post)
	if w.Code != 403 {
		t.Errorf("viewer POST status = %d, want 403", w.Code)
	}

	post = httptest.NewRequest("POST", "/api/collections/cards", strings.NewReader(`{"id": "C3"}`))
	post.Header.Set("Authorization", "Bearer "+editorToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, post)
	if w.Code != 201 {
		t.Errorf("editor POST status = %d, want 201: %s", w.Code, w.Body.String())
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
	if logs.FilterMessage("handler panicked").Len() != 1 {
		t.Errorf("panic was not logged: %v", logs.All())
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRecovery_rethrowsAbort(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recover() = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestCORS_preflight(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for preflight")
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q, want 3600", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Authorization"},
	}

	called := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should still be called for non-preflight")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin should be empty for disallowed origin, got %q", got)
	}
}

func TestCorrelate_generated(t *testing.T) {
	handler := Correlate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CorrelationIDFrom(r.Context()) == "" {
			t.Error("correlation ID should be generated")
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("response should have X-Correlation-Id header")
	}
}

func TestCorrelate_propagated(t *testing.T) {
	handler := Correlate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := CorrelationIDFrom(r.Context()); id != "test-corr-123" {
			t.Errorf("correlation ID = %q, want test-corr-123", id)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "test-corr-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-Id"); got != "test-corr-123" {
		t.Errorf("response X-Correlation-Id = %q, want test-corr-123", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "0",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestBuildRequestContext_fromClaims(t *testing.T) {
	claims := map[string]any{
		"sub":   "designer-42",
		"roles": []any{"viewer", "editor"},
	}

	handler := BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			t.Fatal("RequestContext should be in context")
		}
		if rctx.SubjectID != "designer-42" {
			t.Errorf("SubjectID = %q, want designer-42", rctx.SubjectID)
		}
		if len(rctx.Roles) != 2 || rctx.Roles[0] != "viewer" {
			t.Errorf("Roles = %v, want [viewer editor]", rctx.Roles)
		}
		if !rctx.CanWrite() {
			t.Error("CanWrite() = false, want true")
		}
		if rctx.CorrelationID != "corr-1" {
			t.Errorf("CorrelationID = %q, want corr-1", rctx.CorrelationID)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	ctx := WithClaims(req.Context(), claims)
	w := httptest.NewRecorder()
	Correlate(handler).ServeHTTP(w, req.WithContext(ctx))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestBuildRequestContext_withoutClaimsIsLocalEditor(t *testing.T) {
	handler := BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			t.Fatal("RequestContext should be in context")
		}
		if rctx.SubjectID != "local" {
			t.Errorf("SubjectID = %q, want local", rctx.SubjectID)
		}
		if !rctx.CanWrite() {
			t.Error("local caller should be an editor")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestRequireEditor(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		rctx *model.RequestContext
		want int
	}{
		{"no request context", nil, 401},
		{"viewer", &model.RequestContext{SubjectID: "v", Roles: []string{model.RoleViewer}}, 403},
		{"editor", &model.RequestContext{SubjectID: "e", Roles: []string{model.RoleEditor}}, 204},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			if tc.rctx != nil {
				req = req.WithContext(model.WithRequestContext(req.Context(), tc.rctx))
			}
			w := httptest.NewRecorder()
			RequireEditor(ok).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestHandlerTimeout_setsDeadline(t *testing.T) {
	handler := HandlerTimeout(5*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("context should have deadline")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestHandlerTimeout_zeroNoDeadline(t *testing.T) {
	handler := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("context should not have deadline when timeout is 0")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestRequestLogging_capturesStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.LoggerFrom(r.Context(), nil) == nil {
			t.Error("request logger should be in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d request entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn for a 4xx", entries[0].Level)
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusTeapot) {
		t.Errorf("status field = %v, want %d", got, http.StatusTeapot)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	track := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next.ServeHTTP(w, r)
			})
		}
	}

	deps, _ := testDeps(t)
	deps.Authenticate = track("authenticate")
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/collections", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(order) != 1 || order[0] != "authenticate" {
		t.Errorf("order = %v, want [authenticate]", order)
	}
	// Global middleware ran before the authenticated group.
	if w.Header().Get("X-Correlation-Id") == "" || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("global middleware did not run")
	}

	order = nil
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))
	if len(order) != 0 {
		t.Errorf("health should bypass authentication, order = %v", order)
	}
}

func TestSecurityHeaders_onHealth(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("health should still get X-Correlation-Id")
	}
}
