package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandleHealth(t *testing.T) {
	v, c := Version, Commit
	Version, Commit = "1.2.3", "abc1234"
	t.Cleanup(func() { Version, Commit = v, c })

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp != (HealthResponse{Status: "ok", Version: "1.2.3", Commit: "abc1234"}) {
		t.Errorf("body = %+v", resp)
	}
}

type storageCheck func(context.Context) error

func (f storageCheck) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHandleReady(t *testing.T) {
	loaded := func() error { return nil }
	schema := func() bool { return true }

	tests := []struct {
		name       string
		checks     ReadinessChecks
		wantCode   int
		wantChecks map[string]string // name -> error, "" for ok
	}{
		{
			name:       "all healthy",
			checks:     ReadinessChecks{DocumentsLoaded: loaded, SchemaLoaded: schema, Storage: storageCheck(func(context.Context) error { return nil })},
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"documents": "", "schema": "", "storage": ""},
		},
		{
			name:       "required collection missing",
			checks:     ReadinessChecks{DocumentsLoaded: func() error { return errors.New("not loaded: cards") }, SchemaLoaded: schema},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"documents": "not loaded: cards", "schema": ""},
		},
		{
			name:       "schema empty",
			checks:     ReadinessChecks{DocumentsLoaded: loaded, SchemaLoaded: func() bool { return false }},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"documents": "", "schema": "effect schema not loaded"},
		},
		{
			name:       "storage down",
			checks:     ReadinessChecks{DocumentsLoaded: loaded, SchemaLoaded: schema, Storage: storageCheck(func(context.Context) error { return errors.New("bucket unreachable") })},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"documents": "", "schema": "", "storage": "bucket unreachable"},
		},
		{
			name:       "nothing configured",
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"documents": "no document check configured", "schema": "effect schema not loaded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleReady(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			wantStatus := "ready"
			if tt.wantCode != http.StatusOK {
				wantStatus = "not_ready"
			}
			if resp.Status != wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, wantStatus)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %d entries", resp.Checks, len(tt.wantChecks))
			}
			for name, wantErr := range tt.wantChecks {
				got, ok := resp.Checks[name]
				if !ok {
					t.Errorf("check %s missing", name)
					continue
				}
				if got.Error != wantErr {
					t.Errorf("%s error = %q, want %q", name, got.Error, wantErr)
				}
				if (got.Status == "ok") != (wantErr == "") {
					t.Errorf("%s status = %q", name, got.Status)
				}
			}
		})
	}
}

func TestHandleReady_storageTimeout(t *testing.T) {
	slow := storageCheck(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > checkTimeout {
			return errors.New("check not bounded")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	HandleReady(ReadinessChecks{
		DocumentsLoaded: func() error { return nil },
		SchemaLoaded:    func() bool { return true },
		Storage:         slow,
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body)
	}
}
