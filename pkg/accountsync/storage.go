package accountsync

import "context"

// Store is the document store holding one Account per user. Implementations
// must provide per-document atomic partial updates; IncrementCreditTotal in
// particular must not be a read-modify-write.
type Store interface {
	// Get returns the account for a user id, or ErrAccountNotFound.
	Get(ctx context.Context, userID string) (*Account, error)

	// FindByCustomerID returns the account whose billing_customer_id equals
	// customerID, or ErrAccountNotFound. At most one account may hold a given
	// customer id.
	FindByCustomerID(ctx context.Context, customerID string) (*Account, error)

	// FindByEmail returns the account whose normalized email equals email,
	// or ErrAccountNotFound. Callers pass emails through NormalizeEmail.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Update applies a partial update to the account document. Nil patch
	// fields are left untouched.
	Update(ctx context.Context, userID string, patch *AccountPatch) error

	// IncrementCreditTotal atomically adds delta to credit_usage.total.
	IncrementCreditTotal(ctx context.Context, userID string, delta int) error

	// AppendTransaction appends one record to the account's transaction
	// ledger. The ledger is append-only.
	AppendTransaction(ctx context.Context, userID string, txn *Transaction) error
}

// DebugSink is an append-only diagnostic store for failures that need manual
// reconciliation. Recording must never fail the webhook; implementations
// should swallow their own errors where possible.
type DebugSink interface {
	Record(ctx context.Context, rec *DebugRecord) error
}

// EventLedger deduplicates webhook deliveries on the provider-issued event
// id. It exists because renewal detection is a wall-clock heuristic: a
// duplicate delivery inside the detection window is otherwise
// indistinguishable from a genuine renewal and double-resets credits.
type EventLedger interface {
	// MarkProcessed records an event id and reports whether this is the
	// first time it has been seen.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// CustomerDirectory answers customer lookups against the billing provider.
// It is the narrow slice of the provider API the resolver needs.
type CustomerDirectory interface {
	// CustomerEmail returns the email on file for a billing customer id.
	// An empty string with nil error means the provider has no email.
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}
