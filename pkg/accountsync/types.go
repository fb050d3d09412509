package accountsync

import (
	"strings"
	"time"
)

// Transaction types recorded in the per-account ledger
const (
	// TransactionSubscriptionPayment records the initial payment of a new subscription
	TransactionSubscriptionPayment = "subscription_payment"
	// TransactionSubscriptionRenewal records an automatic renewal billing
	TransactionSubscriptionRenewal = "subscription_renewal"
	// TransactionCreditPurchase records a one-time credit top-up purchase
	TransactionCreditPurchase = "credit_purchase"
)

// Subscription statuses reported by the billing provider
const (
	StatusActive    = "active"
	StatusTrialing  = "trialing"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

// Account is the per-user document kept in the Store. It is created by the
// sign-up path before any billing event arrives and mutated only by the
// reconciliation engine and the dashboard repair sync.
type Account struct {
	UserID            string
	Email             string
	BillingCustomerID string
	Subscription      *Subscription
	CreditUsage       CreditUsage
	LicenseKey        string
}

// Subscription is the billing sub-record cached on an Account.
type Subscription struct {
	ID              string
	Status          string
	Active          bool
	Plan            Plan
	NextBillingDate string
	Amount          float64
	Interval        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CanceledAt      time.Time
}

// Plan identifies the purchased price within the provider's catalog.
type Plan struct {
	ID   string
	Name string
}

// CreditUsage tracks usage credits granted by the current plan plus top-ups.
// Total never decreases as a webhook side effect; it is only reset to a new
// plan allocation or incremented by top-up purchases.
type CreditUsage struct {
	Used  int
	Total int
}

// Transaction is one append-only ledger entry per money movement or credit
// grant. Records are never mutated or deleted.
type Transaction struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	Amount         float64
	Currency       string
	Date           string
	Status         string
	Type           string
	Description    string
	CreatedAt      time.Time
}

// DebugRecord captures the full context of a failure that needs manual
// reconciliation (unresolvable customer, store write failure).
type DebugRecord struct {
	EventType      string
	CustomerID     string
	SubscriptionID string
	Email          string
	Detail         string
	Payload        map[string]interface{}
	CreatedAt      time.Time
}

// Event is one inbound billing webhook event.
type Event struct {
	// ID is the provider-issued event id, used for optional deduplication.
	// May be empty; deduplication is skipped when it is.
	ID string

	// Type is the provider event type, e.g. "subscription.created".
	Type string

	// Data is the raw event payload. Its shape varies by event family, so it
	// is kept as a generic map and interpreted by the normalizer.
	Data map[string]interface{}
}

// PriceInfo is the canonical price tuple extracted from an event payload.
type PriceInfo struct {
	PriceID  string
	PlanName string
	Amount   float64
	Interval string
}

// IsActiveStatus reports whether a provider-reported subscription status maps
// to the derived active=true umbrella state. Unknown statuses map to false,
// which keeps the mapping forward-compatible with new provider statuses.
func IsActiveStatus(status string) bool {
	switch strings.ToLower(status) {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	default:
		return false
	}
}

// NormalizeEmail lowercases an email for account lookups. The store indexes
// emails in this normalized form, so every comparison must go through here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountPatch is a partial update applied to an Account document. Nil fields
// are left untouched. Storage backends translate the patch into their native
// field-path update primitive.
type AccountPatch struct {
	BillingCustomerID *string

	// Subscription replaces the whole subscription sub-record.
	Subscription *Subscription

	// SubscriptionPatch updates individual subscription fields. Ignored when
	// Subscription is set.
	SubscriptionPatch *SubscriptionPatch

	CreditUsage *CreditUsage
	LicenseKey  *string
}

// SubscriptionPatch updates individual fields of the subscription sub-record.
type SubscriptionPatch struct {
	Status          *string
	Active          *bool
	PlanID          *string
	PlanName        *string
	NextBillingDate *string
	Amount          *float64
	Interval        *string
	UpdatedAt       *time.Time
	CanceledAt      *time.Time
}
