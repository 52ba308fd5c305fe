// Package integration provides a reusable test harness for end-to-end
// integration testing of the cardforge server. It starts a full HTTP server
// over a project held in an in-memory bucket, with token authentication on.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/events"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/internal/transport"
	"github.com/pitabwire/cardforge/model"
)

// projectLocation names the harness bucket in responses and logs.
const projectLocation = "mem://integration"

// TestHarness is a running server over a memblob project. Its components
// are exported so tests can act behind the API, as an external editor would.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	Bucket   *blob.Bucket
	Registry *schema.Registry
	Store    *store.Store
	Editor   *editor.Editor
	Events   *events.Bus
	Metrics  *observability.Metrics
	Gatherer *prometheus.Registry

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	files           map[string]string
	without         []string
	readOnly        bool
	schemaExtension string
}

// WithFile replaces or adds one project file before loading.
func WithFile(name, content string) HarnessOption {
	return func(c *harnessConfig) {
		if c.files == nil {
			c.files = make(map[string]string)
		}
		c.files[name] = content
	}
}

// WithoutFile leaves one project file out of the bucket.
func WithoutFile(name string) HarnessOption {
	return func(c *harnessConfig) {
		c.without = append(c.without, name)
	}
}

// WithReadOnly opens the project read-only.
func WithReadOnly() HarnessOption {
	return func(c *harnessConfig) {
		c.readOnly = true
	}
}

// WithSchemaExtension applies a YAML effect schema extension.
func WithSchemaExtension(yaml string) HarnessOption {
	return func(c *harnessConfig) {
		c.schemaExtension = yaml
	}
}

// NewTestHarness seeds a bucket with testdata/project, loads it and serves
// the API until the test ends.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	ctx := context.Background()
	h := &TestHarness{t: t}

	// Seed the bucket from testdata/project, then apply the overrides.
	h.Bucket = memblob.OpenBucket(nil)
	files := projectFiles(t)
	for name, content := range hc.files {
		files[name] = []byte(content)
	}
	for _, name := range hc.without {
		delete(files, name)
	}
	for name, data := range files {
		if err := h.Bucket.WriteAll(ctx, name, data, nil); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	h.Registry = schema.NewRegistry()
	if hc.schemaExtension != "" {
		if err := h.Registry.ApplyExtension([]byte(hc.schemaExtension)); err != nil {
			t.Fatalf("apply schema extension: %v", err)
		}
	}

	h.Store = store.New(store.NewBucketFS(h.Bucket, projectLocation), store.WithReadOnly(hc.readOnly))
	h.Store.LoadAll(ctx)
	t.Cleanup(func() { h.Store.Close() })

	h.Events = events.NewBus(64)
	h.Editor = editor.New(h.Store, h.Registry, editor.WithPublisher(h.Events))

	h.Gatherer = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Gatherer)

	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = 10 * time.Second
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Project.StorageURL = projectLocation
	h.cfg.Project.SwitchRoots = []string{"mem://"}
	h.cfg.Identity.Issuer = h.issuer.issuer
	h.cfg.Identity.Audience = h.issuer.audience

	router := transport.NewRouter(transport.Dependencies{
		Config:         h.cfg,
		Editor:         h.Editor,
		Events:         h.Events,
		Metrics:        h.Metrics,
		Logger:         zap.NewNop(),
		Authenticate:   transport.JWTAuthenticator(h.cfg.Identity, h.issuer.Key(), zap.NewNop()),
		MetricsHandler: observability.HandlerFor(h.Gatherer),
		Readiness: observability.ReadinessChecks{
			DocumentsLoaded: h.Store.RequiredLoaded,
			SchemaLoaded:    func() bool { return len(h.Registry.Tags()) > 0 },
			Storage:         h.Store,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// Token signs claims with the harness key.
func (h *TestHarness) Token(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// ExpiredToken signs claims that expired an hour ago.
func (h *TestHarness) ExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- Project helpers ---

// WriteObject changes a project file behind the server's back, the way an
// external tool would.
func (h *TestHarness) WriteObject(name, content string) {
	h.t.Helper()
	if err := h.Bucket.WriteAll(context.Background(), name, []byte(content), nil); err != nil {
		h.t.Fatalf("write %s: %v", name, err)
	}
}

// ReadObject returns a project file as persisted.
func (h *TestHarness) ReadObject(name string) string {
	h.t.Helper()
	data, err := h.Bucket.ReadAll(context.Background(), name)
	if err != nil {
		h.t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// DialEvents opens the event stream.
func (h *TestHarness) DialEvents(token string) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/events"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		h.t.Fatalf("dial event stream: %v", err)
	}
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

// NextEvent reads one event from the stream, failing after timeout.
func (h *TestHarness) NextEvent(conn *websocket.Conn, timeout time.Duration) model.Event {
	h.t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	var ev model.Event
	if err := conn.ReadJSON(&ev); err != nil {
		h.t.Fatalf("read event: %v", err)
	}
	return ev
}

// --- HTTP client helpers ---

var client = &http.Client{Timeout: 10 * time.Second}

// GET sends a GET with an optional bearer token and extra headers given as
// name, value pairs.
func (h *TestHarness) GET(path, token string, header ...string) *http.Response {
	h.t.Helper()
	return h.send(http.MethodGet, path, nil, token, header...)
}

// POST sends body as JSON. A nil body sends no content.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.send(http.MethodPost, path, body, token)
}

func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.send(http.MethodPut, path, body, token)
}

func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.send(http.MethodDelete, path, nil, token)
}

func (h *TestHarness) send(method, path string, body any, token string, header ...string) *http.Response {
	h.t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err, "encode %s %s body", method, path)
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, payload)
	require.NoError(h.t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := client.Do(req)
	require.NoError(h.t, err, "%s %s", method, path)
	return resp
}

// ReadBody drains and closes the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err, "read response body")
	return data
}

// AssertStatus checks the status and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	body := h.ReadBody(resp)
	assert.Equal(t, want, resp.StatusCode, "body: %s", body)
}

// AssertJSON requires status want and decodes the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, want int, target any) {
	t.Helper()
	body := h.ReadBody(resp)
	require.Equal(t, want, resp.StatusCode, "body: %s", body)
	require.NoError(t, json.Unmarshal(body, target), "body: %s", body)
}

// AssertErrorCode requires status want and an error envelope with code.
func (h *TestHarness) AssertErrorCode(t *testing.T, resp *http.Response, want int, code string) {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, want, &body)
	assert.Equal(t, code, body.Error.Code, "message %q", body.Error.Message)
}

// --- Default test claims ---

// EditorClaims returns TestClaims for a designer allowed to change content.
func EditorClaims() TestClaims {
	return TestClaims{
		SubjectID: "designer-1",
		Roles:     []string{model.RoleEditor},
	}
}

// ViewerClaims returns TestClaims for a read-only reviewer.
func ViewerClaims() TestClaims {
	return TestClaims{
		SubjectID: "reviewer-1",
		Roles:     []string{model.RoleViewer},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// projectFiles reads the testdata project keyed by slash separated path.
func projectFiles(t *testing.T) map[string][]byte {
	t.Helper()
	root := filepath.Join(testdataDir(), "project")
	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		t.Fatalf("read testdata project: %v", err)
	}
	return files
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
