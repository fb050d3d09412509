// Package echo provides Echo middleware for bearer-token authentication
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/yokaihq/paddlesync/pkg/auth"
)

// IdentityKey is the Echo context key the verified identity is stored under
const IdentityKey = "paddlesync:identity"

// TokenExtractor extracts the bearer credential from an Echo context
// Return empty string if no credential is present
type TokenExtractor func(c echo.Context) string

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
	// If nil, returns 401 JSON
	OnUnauthorized func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that authenticates requests. The
// verified identity is stored both in the Echo context under IdentityKey and
// on the request context for handlers that use auth.IdentityFromContext.
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Verifier == nil {
		panic("paddlesync/echo: Config.Verifier is required")
	}

	// Set defaults
	if cfg.GetToken == nil {
		cfg.GetToken = func(c echo.Context) string {
			return auth.BearerToken(c.Request())
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := cfg.GetToken(c)
			if token == "" {
				if cfg.Optional {
					return next(c)
				}
				return unauthorized(cfg, c, auth.ErrTokenRequired)
			}

			id, err := cfg.Verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return unauthorized(cfg, c, auth.ErrInvalidToken)
			}

			c.Set(IdentityKey, id)
			c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

func unauthorized(cfg Config, c echo.Context, err error) error {
	if cfg.OnUnauthorized != nil {
		return cfg.OnUnauthorized(c, err)
	}
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
}

// IdentityFromContext returns the verified identity stored by the
// middleware, or nil.
func IdentityFromContext(c echo.Context) *auth.Identity {
	if id, ok := c.Get(IdentityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// Convenience extractors

// FromHeader returns a TokenExtractor that reads the credential from a header
func FromHeader(headerName string) TokenExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromQuery returns a TokenExtractor that reads the credential from a query parameter
func FromQuery(queryName string) TokenExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
