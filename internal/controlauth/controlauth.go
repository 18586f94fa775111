// Package controlauth is the bearer-token guard in front of supervisor
// operations (spec.md §6): the one non-goal'd "auth" sliver the core must
// still enforce, since hangup/transfer/listen/whisper/barge and queue
// mutations are in scope even though a full user/session system is not.
//
// Adapted from internal/auth/jwt.go: same HS256 + bcrypt pair, generalized
// to carry a per-token Scope so the control API and pushgateway can both
// restrict a caller to a subset of extensions/queues.
package controlauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"callcore/internal/snapshot"
)

type contextKey string

const claimsContextKey contextKey = "controlauth.claims"

// Claims identifies the caller and the scope their supervisor operations
// and subscriptions are restricted to. An empty AllowedExtensions/Queues
// means "all" (operator-level token).
type Claims struct {
	Username          string   `json:"username"`
	Role              string   `json:"role"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	AllowedQueues     []string `json:"allowed_queues,omitempty"`
	jwt.RegisteredClaims
}

// Scope converts the claims into a snapshot.Scope for projector filtering.
func (c *Claims) Scope() snapshot.Scope {
	scope := snapshot.Scope{}
	if len(c.AllowedExtensions) > 0 {
		scope.AllowExtensions = make(map[string]struct{}, len(c.AllowedExtensions))
		for _, e := range c.AllowedExtensions {
			scope.AllowExtensions[e] = struct{}{}
		}
	}
	if len(c.AllowedQueues) > 0 {
		scope.AllowQueues = make(map[string]struct{}, len(c.AllowedQueues))
		for _, q := range c.AllowedQueues {
			scope.AllowQueues[q] = struct{}{}
		}
	}
	return scope
}

// Guard issues and verifies bearer tokens for a single HMAC secret.
type Guard struct {
	secret []byte
}

// New constructs a Guard over the configured JWT secret.
func New(secret string) *Guard {
	return &Guard{secret: []byte(secret)}
}

// IssueToken signs a token for username/role valid for the given duration.
func (g *Guard) IssueToken(username, role string, ttl time.Duration, allowedExtensions, allowedQueues []string) (string, error) {
	claims := &Claims{
		Username:          username,
		Role:              role,
		AllowedExtensions: allowedExtensions,
		AllowedQueues:     allowedQueues,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Issuer:    "callcore",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// HashPassword hashes an operator password for storage.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword checks a password against its stored hash.
func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// Verify parses and validates a bearer token string, returning its claims.
func (g *Guard) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects any request without a valid "Bearer <token>"
// Authorization header before it reaches a supervisor operation.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := g.Verify(parts[1])
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext retrieves the verified claims a Middleware call attached.
func FromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil, errors.New("no caller claims in context")
	}
	return claims, nil
}
