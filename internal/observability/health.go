package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	checkOK    = "ok"
	checkError = "error"

	checkTimeout = 2 * time.Second
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the readiness body. Status is "ready" or "not_ready".
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker is a dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks are the checks behind /api/ready. DocumentsLoaded and
// SchemaLoaded always run and fail when unset. Storage runs when set.
type ReadinessChecks struct {
	DocumentsLoaded func() error
	SchemaLoaded    func() bool
	Storage         HealthChecker
}

type namedCheck struct {
	name string
	run  func(context.Context) error
}

var (
	errNoDocumentCheck = errors.New("no document check configured")
	errSchemaMissing   = errors.New("effect schema not loaded")
)

func (c ReadinessChecks) list() []namedCheck {
	documents := func(context.Context) error {
		if c.DocumentsLoaded == nil {
			return errNoDocumentCheck
		}
		return c.DocumentsLoaded()
	}
	schema := func(context.Context) error {
		if c.SchemaLoaded == nil || !c.SchemaLoaded() {
			return errSchemaMissing
		}
		return nil
	}

	list := []namedCheck{{"documents", documents}, {"schema", schema}}
	if c.Storage != nil {
		list = append(list, namedCheck{"storage", c.Storage.HealthCheck})
	}
	return list
}

// HandleHealth serves liveness. It never fails while the process runs.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version, Commit: Commit})
	}
}

// HandleReady serves readiness: 200 once every required collection and the
// effect schema are loaded and storage answers, 503 otherwise. Checks run
// concurrently, each bounded by checkTimeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := checks.list()
		results := make([]CheckResult, len(list))

		var g errgroup.Group
		for i, p := range list {
			g.Go(func() error {
				results[i] = runCheck(r.Context(), p.run)
				return nil
			})
		}
		_ = g.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: make(map[string]CheckResult, len(list))}
		code := http.StatusOK
		for i, p := range list {
			resp.Checks[p.name] = results[i]
			if results[i].Status != checkOK {
				resp.Status = "not_ready"
				code = http.StatusServiceUnavailable
			}
		}
		writeHealthJSON(w, code, resp)
	}
}

func runCheck(parent context.Context, run func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	res := CheckResult{Status: checkOK, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = checkError
		res.Error = err.Error()
	}
	return res
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
