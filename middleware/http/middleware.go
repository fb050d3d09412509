// Package http provides HTTP middleware for bearer-token authentication
package http

import (
	"net/http"

	"github.com/yokaihq/paddlesync/pkg/auth"
)

// TokenExtractor extracts the bearer credential from an HTTP request
// Return empty string if no credential is present
type TokenExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Verifier validates bearer credentials (required)
	Verifier auth.TokenVerifier

	// GetToken extracts the credential from the request
	// Default: the Authorization header's Bearer value
	GetToken TokenExtractor

	// Optional lets unauthenticated requests through without an identity
	// instead of rejecting them
	Optional bool

	// OnUnauthorized is called when the credential is missing or invalid
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that authenticates requests and
// stores the verified identity on the request context
func Middleware(config Config) func(http.Handler) http.Handler {
	// Set defaults
	if config.GetToken == nil {
		config.GetToken = auth.BearerToken
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := config.GetToken(r)
			if token == "" {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(config, w, r, auth.ErrTokenRequired)
				return
			}

			id, err := config.Verifier.Verify(r.Context(), token)
			if err != nil {
				unauthorized(config, w, r, auth.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// HandlerFunc creates an HTTP middleware that authenticates requests (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func unauthorized(config Config, w http.ResponseWriter, r *http.Request, err error) {
	if config.OnUnauthorized != nil {
		config.OnUnauthorized(w, r, err)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// Common extractors for convenience

// FromHeader returns a TokenExtractor that reads the credential from a header
func FromHeader(headerName string) TokenExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns a TokenExtractor that reads the credential from a query
// parameter. Useful for webhook-style callbacks that cannot set headers
func FromQuery(param string) TokenExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}
