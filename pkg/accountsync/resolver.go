package accountsync

import (
	"context"
	"errors"
	"fmt"
)

// Resolution strategies, in priority order.
const (
	strategyCustomerID    = "customer_id"
	strategyProviderEmail = "provider_email"
	strategyPayloadEmail  = "payload_email"
	strategyNone          = "none"
)

// Resolver maps a billing customer id to an account using a prioritized
// multi-strategy search: stored customer id first, then the customer email
// reported by the billing provider, then an email embedded in the event
// payload itself. An email hit backfills billing_customer_id on the account
// so future lookups take the fast path.
type Resolver struct {
	store     Store
	directory CustomerDirectory
	logger    Logger
	metrics   Metrics
}

// NewResolver creates a resolver. The directory is optional; without it the
// provider-email strategy is skipped.
func NewResolver(store Store, directory CustomerDirectory, logger Logger, metrics Metrics) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Resolver{
		store:     store,
		directory: directory,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Resolve finds the account for a billing customer id. The payload is
// searched for an embedded customer email as a last resort; pass nil outside
// webhook context. Returns ErrCustomerNotResolved when every strategy
// misses; the caller must treat that as an operational alert, not a crash.
func (r *Resolver) Resolve(ctx context.Context, customerID string, payload map[string]interface{}) (*Account, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: empty customer id", ErrCustomerNotResolved)
	}

	// 1. Fast path: stored billing_customer_id.
	acct, err := r.store.FindByCustomerID(ctx, customerID)
	if err == nil {
		r.metrics.RecordResolution(strategyCustomerID, "hit")
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("customer id lookup failed: %w", err)
	}
	r.metrics.RecordResolution(strategyCustomerID, "miss")

	// 2. Email on file with the billing provider.
	if r.directory != nil {
		email, err := r.directory.CustomerEmail(ctx, customerID)
		if err != nil {
			r.logger.Warn("provider customer lookup failed",
				Field{Key: "customer_id", Value: customerID},
				Field{Key: "error", Value: err.Error()})
		} else if email != "" {
			if acct, err := r.resolveByEmail(ctx, customerID, email, strategyProviderEmail); err == nil {
				return acct, nil
			} else if !errors.Is(err, ErrAccountNotFound) {
				return nil, err
			}
		}
	}

	// 3. Email embedded in the event payload, webhook context only.
	if email := payloadEmail(payload); email != "" {
		if acct, err := r.resolveByEmail(ctx, customerID, email, strategyPayloadEmail); err == nil {
			return acct, nil
		} else if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
	}

	r.metrics.RecordResolution(strategyNone, "miss")
	return nil, fmt.Errorf("%w: customer %s", ErrCustomerNotResolved, customerID)
}

func (r *Resolver) resolveByEmail(ctx context.Context, customerID, email, strategy string) (*Account, error) {
	acct, err := r.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			r.metrics.RecordResolution(strategy, "miss")
		}
		return nil, err
	}
	r.metrics.RecordResolution(strategy, "hit")

	// Backfill the customer id so future lookups take the fast path. Writing
	// the same value twice is safe; the backfill is an idempotent repair.
	if acct.BillingCustomerID != customerID {
		if err := r.store.Update(ctx, acct.UserID, &AccountPatch{BillingCustomerID: &customerID}); err != nil {
			r.logger.Warn("customer id backfill failed",
				Field{Key: "user_id", Value: acct.UserID},
				Field{Key: "customer_id", Value: customerID},
				Field{Key: "error", Value: err.Error()})
		} else {
			acct.BillingCustomerID = customerID
		}
	}
	return acct, nil
}

// payloadEmail searches the known payload locations for a customer email.
func payloadEmail(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	if customer, _ := payload["customer"].(map[string]interface{}); customer != nil {
		if email := stringField(customer, "email"); email != "" {
			return email
		}
	}
	if email := stringField(payload, "customer_email"); email != "" {
		return email
	}
	if billing, _ := payload["billing_details"].(map[string]interface{}); billing != nil {
		if email := stringField(billing, "email"); email != "" {
			return email
		}
	}
	return ""
}
