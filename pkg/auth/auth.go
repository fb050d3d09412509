// Package auth consumes the identity provider as a black box: a bearer
// credential in, a user identity out.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrTokenRequired is returned when no bearer credential is present
	ErrTokenRequired = errors.New("authorization token required")

	// ErrInvalidToken is returned for a bad, expired, or unverifiable credential
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the verified user behind a credential.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier validates a bearer credential and yields the user identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the bearer credential from a request's Authorization
// header, or "" when absent.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type contextKey struct{}

// WithIdentity returns a context carrying a verified identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the verified identity set by the auth
// middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
