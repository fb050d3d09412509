// Package gin provides Gin middleware for bearer-token authentication
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"
	"github.com/yokaihq/paddlesync/pkg/auth"
)

// IdentityKey is the Gin context key the verified identity is stored under
const IdentityKey = "paddlesync:identity"

// TokenExtractor extracts the bearer credential from a Gin context
// Return empty string if no credential is present
type TokenExtractor func(c *gongin.Context) string

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
	OnUnauthorized func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that authenticates requests. The
// verified identity is stored both in the Gin context under IdentityKey and
// on the request context for handlers that use auth.IdentityFromContext.
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Verifier == nil {
		panic("paddlesync/gin: Config.Verifier is required")
	}

	// Set defaults
	if cfg.GetToken == nil {
		cfg.GetToken = func(c *gongin.Context) string {
			return auth.BearerToken(c.Request)
		}
	}

	return func(c *gongin.Context) {
		token := cfg.GetToken(c)
		if token == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			unauthorized(cfg, c, auth.ErrTokenRequired)
			return
		}

		id, err := cfg.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			unauthorized(cfg, c, auth.ErrInvalidToken)
			return
		}

		c.Set(IdentityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func unauthorized(cfg Config, c *gongin.Context, err error) {
	if cfg.OnUnauthorized != nil {
		cfg.OnUnauthorized(c, err)
	} else {
		c.JSON(http.StatusUnauthorized, gongin.H{"error": err.Error()})
	}
	c.Abort()
}

// IdentityFromContext returns the verified identity stored by the
// middleware, or nil.
func IdentityFromContext(c *gongin.Context) *auth.Identity {
	if val, exists := c.Get(IdentityKey); exists {
		if id, ok := val.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// Convenience extractors

// FromHeader returns a TokenExtractor that reads the credential from a header
func FromHeader(headerName string) TokenExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromQuery returns a TokenExtractor that reads the credential from a query parameter
func FromQuery(queryName string) TokenExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
