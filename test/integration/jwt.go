package integration

import (
	"crypto/rand"
	"maps"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer holds an HS256 key and the claims the server expects.
type tokenIssuer struct {
	key      []byte
	issuer   string
	audience string
}

// newTokenIssuer creates a token issuer with a fresh random key.
func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	return &tokenIssuer{
		key:      key,
		issuer:   "cardforge-test",
		audience: "cardforge-editor-test",
	}
}

func (ti *tokenIssuer) claims(c TestClaims, issuedAt, expiresAt time.Time) jwt.MapClaims {
	mapClaims := jwt.MapClaims{
		"iss": ti.issuer,
		"aud": ti.audience,
		"iat": jwt.NewNumericDate(issuedAt),
		"exp": jwt.NewNumericDate(expiresAt),
		"sub": c.SubjectID,
	}
	if len(c.Roles) > 0 {
		// Store as []any to match JWT decode behavior.
		roles := make([]any, len(c.Roles))
		for i, r := range c.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}
	maps.Copy(mapClaims, c.Extra)
	return mapClaims
}

// Sign signs arbitrary claims with the given method and key.
func Sign(method jwt.SigningMethod, claims jwt.MapClaims, key any) string {
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// GenerateToken creates a valid, signed JWT token with the given claims.
func (ti *tokenIssuer) GenerateToken(c TestClaims) string {
	now := time.Now()
	return Sign(jwt.SigningMethodHS256, ti.claims(c, now, now.Add(time.Hour)), ti.key)
}

// GenerateExpiredToken creates a JWT token that expired in the past.
func (ti *tokenIssuer) GenerateExpiredToken(c TestClaims) string {
	now := time.Now()
	return Sign(jwt.SigningMethodHS256, ti.claims(c, now.Add(-2*time.Hour), now.Add(-time.Hour)), ti.key)
}

// Claims returns the claims a valid token for c carries, for tests that
// tamper with them before signing.
func (ti *tokenIssuer) Claims(c TestClaims) jwt.MapClaims {
	now := time.Now()
	return ti.claims(c, now, now.Add(time.Hour))
}

// Key returns the signing key.
func (ti *tokenIssuer) Key() []byte {
	return ti.key
}
