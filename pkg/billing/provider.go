// Package billing defines the interface to the external subscription
// management provider. The provider is consumed as a black box: the core
// never interprets provider responses beyond the fields modeled here.
package billing

import "context"

// Customer is a billing provider customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Subscription is a provider-side subscription record, used by the dashboard
// slow path when local state is stale or missing.
type Subscription struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	CustomerID   string  `json:"customer_id"`
	PriceID      string  `json:"price_id"`
	PlanName     string  `json:"plan_name"`
	NextBilledAt string  `json:"next_billed_at"`
	Interval     string  `json:"interval"`
	Amount       float64 `json:"amount"`
}

// LicenseKey is a provider-issued license key attached to a subscription.
type LicenseKey struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

// Transaction is a provider-side payment record.
type Transaction struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	Type        string  `json:"type"`
	Currency    string  `json:"currency"`
	InvoiceURL  string  `json:"invoiceUrl,omitempty"`
}

// Provider is the interface any billing backend must implement.
type Provider interface {
	// Name returns the provider name (e.g. "paddle").
	Name() string

	// CustomerByEmail returns the active customer for an email, or
	// ErrCustomerNotFound.
	CustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// Customer returns a customer by id, or ErrCustomerNotFound.
	Customer(ctx context.Context, customerID string) (*Customer, error)

	// Subscriptions lists a customer's subscriptions.
	Subscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// LicenseKeys lists the license keys of a subscription.
	LicenseKeys(ctx context.Context, subscriptionID string) ([]LicenseKey, error)

	// Transactions lists a customer's most recent transactions.
	Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error)

	// CreateSubscription subscribes a customer to a price.
	CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error)

	// CancelSubscription cancels a subscription, immediately or at the end
	// of the billing period.
	CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error
}
