package integration

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// ==========================================================================
// Authentication Tests
// ==========================================================================

func TestSecurity_NoAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	endpoints := []string{
		"/api/collections",
		"/api/collections/cards/CARD_001",
		"/api/sessions",
		"/api/schema/effects",
		"/api/integrity",
		"/api/backup",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestSecurity_ExpiredJWT_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.ExpiredToken(EditorClaims())

	resp := h.GET("/api/collections", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_InvalidSignature_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	claims := h.issuer.Claims(EditorClaims())
	signed := Sign(jwt.SigningMethodHS256, claims, []byte("another-key-another-key-another!"))

	resp := h.GET("/api/collections", signed)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_NoneAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin","iss":"cardforge-test","aud":"cardforge-editor-test","roles":["editor"],"exp":4102444800}`))
	noneToken := header + "." + payload + "."

	resp := h.GET("/api/collections", noneToken)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_WrongAudience_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	claims := h.issuer.Claims(EditorClaims())
	claims["aud"] = "some-other-service"
	resp := h.GET("/api/collections", Sign(jwt.SigningMethodHS256, claims, h.issuer.Key()))
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_QueryToken_ForEventStream(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token(ViewerClaims())

	resp := h.GET("/api/collections?access_token="+token, "")
	h.AssertStatus(t, resp, http.StatusOK)
}

// ==========================================================================
// Authorization Tests
// ==========================================================================

func TestSecurity_ViewerCannotChangeContent(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token(ViewerClaims())

	writes := []struct {
		method string
		path   string
		body   any
	}{
		{"POST", "/api/collections/cards", map[string]any{"id": "CARD_999"}},
		{"DELETE", "/api/collections/cards/CARD_001", nil},
		{"POST", "/api/sessions/cards", map[string]any{"id": "CARD_001"}},
		{"POST", "/api/sessions/cards/save", nil},
		{"POST", "/api/reload", nil},
		{"PUT", "/api/project", map[string]any{"location": "mem://"}},
	}

	for _, w := range writes {
		t.Run(w.method+" "+w.path, func(t *testing.T) {
			resp := h.send(w.method, w.path, w.body, token)
			h.AssertErrorCode(t, resp, http.StatusForbidden, "FORBIDDEN")
		})
	}

	if got := h.ReadObject("cards.json"); got != string(projectFiles(t)["cards.json"]) {
		t.Error("cards.json changed after forbidden writes")
	}
}

func TestSecurity_ViewerCanRead(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token(ViewerClaims())

	for _, ep := range []string{"/api/collections/stages", "/api/names/cards/CARD_001", "/api/effect-types?side=enemy"} {
		t.Run(ep, func(t *testing.T) {
			h.AssertStatus(t, h.GET(ep, token), http.StatusOK)
		})
	}
}

func TestSecurity_ReadOnlyProject_RejectsEditors(t *testing.T) {
	h := NewTestHarness(t, WithReadOnly())
	token := h.Token(EditorClaims())

	resp := h.POST("/api/collections/cards", map[string]any{"id": "CARD_999"}, token)
	h.AssertErrorCode(t, resp, http.StatusForbidden, "FORBIDDEN")
}

// ==========================================================================
// Header Tests
// ==========================================================================

func TestSecurity_ResponseHeaders(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/collections", h.Token(ViewerClaims()))
	defer resp.Body.Close()

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for header, want := range expected {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if resp.Header.Get("X-Correlation-Id") == "" {
		t.Error("missing X-Correlation-Id")
	}
}

func TestSecurity_CORS(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.send(http.MethodOptions, "/api/collections", nil, "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST",
	)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}

	resp = h.GET("/api/health", "", "Origin", "https://evil.example.com")
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for foreign origin = %q, want empty", got)
	}
}
