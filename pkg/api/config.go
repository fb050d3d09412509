package api

import (
	"fmt"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
	"github.com/yokaihq/paddlesync/pkg/auth"
	"github.com/yokaihq/paddlesync/pkg/billing"
)

// Config holds configuration for the dashboard API handler
type Config struct {
	// Store is the account document store (required)
	Store accountsync.Store

	// Verifier authenticates bearer credentials on every request (required)
	Verifier auth.TokenVerifier

	// Provider is the billing backend used by the dashboard fallback sync,
	// the transaction history endpoint, and subscription actions
	// If nil, those paths return 503 and the dashboard serves store state only
	Provider billing.Provider

	// Catalog maps price ids to credit allocations; used to repair the credit
	// total during a fallback sync
	// If nil, the fallback sync leaves credits untouched
	Catalog *accountsync.Catalog

	// ClientToken is the provider's client-side checkout token, served to the
	// frontend as-is
	ClientToken string

	// AllowedOrigins lists origins permitted by the CORS headers
	// If empty, any origin is allowed
	AllowedOrigins []string

	// Logger is optional structured logging
	// If nil, logging is disabled
	Logger accountsync.Logger

	// Metrics is optional metrics recorder for dashboard operations
	// If nil, metrics are not recorded
	Metrics accountsync.Metrics
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Verifier == nil {
		return fmt.Errorf("verifier is required")
	}
	return nil
}

// NewHandler creates a new dashboard API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &accountsync.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &accountsync.NoopMetrics{}
	}
	return &Handler{
		config: config,
	}, nil
}
