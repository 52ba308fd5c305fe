package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/model"
)

// signingMethods are the only algorithms accepted for bearer tokens.
var signingMethods = []string{jwt.SigningMethodHS256.Alg()}

// IssueToken mints an HS256 bearer token for subject carrying roles.
func IssueToken(cfg config.IdentityConfig, key []byte, subject string, roles []string, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", errors.New("transport: signing key is empty")
	}
	if subject == "" {
		return "", errors.New("transport: subject is empty")
	}
	claims := jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
		"iss":   cfg.Issuer,
		"aud":   cfg.Audience,
		"iat":   now.Unix(),
		"exp":   now.Add(cfg.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("transport: signing token: %w", err)
	}
	return signed, nil
}

// JWTAuthenticator returns middleware that verifies HS256 tokens and stores
// verified claims in the request context. Tokens come from the Authorization
// header, or from the access_token query parameter for clients that cannot
// set headers (browser websockets).
func JWTAuthenticator(cfg config.IdentityConfig, key []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, msg := bearerToken(r)
			if msg != "" {
				WriteError(w, model.NewUnauthorizedError(msg))
				return
			}

			token, err := jwt.Parse(tokenStr,
				func(*jwt.Token) (any, error) { return key, nil },
				jwt.WithValidMethods(signingMethods),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(cfg.Leeway),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				WriteError(w, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}
			if sub, _ := claims["sub"].(string); sub == "" {
				WriteError(w, model.NewUnauthorizedError("Token has no subject"))
				return
			}

			if ce := logger.Check(zap.DebugLevel, "token verified"); ce != nil {
				ce.Write(zap.Any("claims", observability.RedactClaims(claims)))
			}
			ctx := WithClaims(r.Context(), map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, ""
		}
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", "Invalid authorization header format"
	}
	return auth[len("Bearer "):], ""
}

func classifyJWTError(err error) string {
	switch {
	case strings.Contains(err.Error(), "signing method"):
		return "Disallowed signing algorithm"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "Token is missing a required claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Malformed token"
	default:
		return "Invalid token"
	}
}
