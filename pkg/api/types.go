package api

import "github.com/yokaihq/paddlesync/pkg/billing"

// DashboardResponse is the complete billing state for a user, served from the
// store when it is fresh and repaired from the provider when it is not.
type DashboardResponse struct {
	UserID       string            `json:"user_id"`
	Email        string            `json:"email"`
	Subscription *SubscriptionView `json:"subscription"`
	Credits      CreditsView       `json:"credits"`
	LicenseKey   string            `json:"license_key,omitempty"`
}

// SubscriptionView is the subscription sub-record as rendered to clients.
type SubscriptionView struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Active          bool     `json:"active"`
	Plan            PlanView `json:"plan"`
	NextBillingDate string   `json:"next_billing_date,omitempty"`
	Amount          float64  `json:"amount"`
	Interval        string   `json:"interval"`
}

// PlanView identifies the purchased price.
type PlanView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreditsView is the credit balance with the derived remaining count.
type CreditsView struct {
	Used      int `json:"used"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// TransactionsResponse wraps the provider-side payment history.
type TransactionsResponse struct {
	Transactions []billing.Transaction `json:"transactions"`
}

// SubscriptionActionRequest asks the provider to create or cancel a
// subscription on behalf of the authenticated user.
type SubscriptionActionRequest struct {
	Action         string `json:"action"` // "create" or "cancel"
	PriceID        string `json:"price_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Immediate      bool   `json:"immediate,omitempty"`
}

// ValidateLicenseRequest checks a license key against the account on file.
type ValidateLicenseRequest struct {
	LicenseKey string `json:"license_key"`
}

// ValidateLicenseResponse reports whether the presented key matches.
type ValidateLicenseResponse struct {
	Valid bool `json:"valid"`
}

// ClientTokenResponse carries the provider's client-side checkout token.
type ClientTokenResponse struct {
	ClientToken string `json:"client_token"`
}
