// Package fiber provides Fiber middleware for bearer-token authentication
package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yokaihq/paddlesync/pkg/auth"
)

// IdentityKey is the Fiber locals key the verified identity is stored under
const IdentityKey = "paddlesync:identity"

// TokenExtractor extracts the bearer credential from a Fiber context
// Return empty string if no credential is present
type TokenExtractor func(c *fiber.Ctx) string

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
	OnUnauthorized func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that authenticates requests. The
// verified identity is stored in Fiber locals under IdentityKey.
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Verifier == nil {
		panic("paddlesync/fiber: Config.Verifier is required")
	}

	// Set defaults
	if cfg.GetToken == nil {
		cfg.GetToken = bearerToken
	}

	return func(c *fiber.Ctx) error {
		token := cfg.GetToken(c)
		if token == "" {
			if cfg.Optional {
				return c.Next()
			}
			return unauthorized(cfg, c, auth.ErrTokenRequired)
		}

		id, err := cfg.Verifier.Verify(c.Context(), token)
		if err != nil {
			return unauthorized(cfg, c, auth.ErrInvalidToken)
		}

		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(cfg Config, c *fiber.Ctx, err error) error {
	if cfg.OnUnauthorized != nil {
		return cfg.OnUnauthorized(c, err)
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
}

// IdentityFromContext returns the verified identity stored by the
// middleware, or nil.
func IdentityFromContext(c *fiber.Ctx) *auth.Identity {
	if id, ok := c.Locals(IdentityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// Convenience extractors

// FromHeader returns a TokenExtractor that reads the credential from a header
func FromHeader(headerName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromQuery returns a TokenExtractor that reads the credential from a query parameter
func FromQuery(queryName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
