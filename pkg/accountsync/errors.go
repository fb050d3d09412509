package accountsync

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches a lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrCustomerNotResolved is returned when every resolution strategy missed
	ErrCustomerNotResolved = errors.New("billing customer could not be resolved to an account")

	// ErrStoreUnavailable is returned when the account store is unreachable
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrInvalidConfig is returned when a component is constructed with missing dependencies
	ErrInvalidConfig = errors.New("invalid configuration")
)
