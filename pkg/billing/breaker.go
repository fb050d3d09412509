package billing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("billing provider circuit breaker is open")
)

// CircuitBreaker trips after consecutive provider failures so a degraded
// billing API cannot stall every dashboard load behind slow timeouts.
type CircuitBreaker struct {
	mu sync.RWMutex

	state               CircuitBreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	lastFailureTime     time.Time

	onStateChange func(state CircuitBreakerState)
}

// NewCircuitBreaker creates a circuit breaker. onStateChange may be nil.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration,
	onStateChange func(state CircuitBreakerState)) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		onStateChange:    onStateChange,
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() CircuitBreakerState {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) execute(fn func() error) error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.failure()
		return err
	}

	cb.success()
	return nil
}

func (cb *CircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen || cb.state == StateOpen {
		cb.changeState(StateClosed)
	}
	cb.consecutiveFailures = 0
}

func (cb *CircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == StateClosed && cb.consecutiveFailures >= cb.failureThreshold {
		cb.changeState(StateOpen)
	} else if cb.state == StateHalfOpen {
		cb.changeState(StateOpen)
	}
}

func (cb *CircuitBreaker) changeState(newState CircuitBreakerState) {
	if cb.state != newState {
		cb.state = newState
		if cb.onStateChange != nil {
			cb.onStateChange(newState)
		}
	}
}

// breakerProvider wraps a Provider with a CircuitBreaker. Lookups that miss
// (ErrCustomerNotFound and friends) count as successes: the provider
// answered, the resource just does not exist.
type breakerProvider struct {
	provider Provider
	breaker  *CircuitBreaker
}

// WithCircuitBreaker wraps a Provider so every call goes through the given
// circuit breaker.
func WithCircuitBreaker(provider Provider, breaker *CircuitBreaker) Provider {
	return &breakerProvider{provider: provider, breaker: breaker}
}

func (b *breakerProvider) Name() string {
	return b.provider.Name()
}

func (b *breakerProvider) CustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var out *Customer
	err := b.run(func() error {
		var err error
		out, err = b.provider.CustomerByEmail(ctx, email)
		return err
	})
	return out, err
}

func (b *breakerProvider) Customer(ctx context.Context, customerID string) (*Customer, error) {
	var out *Customer
	err := b.run(func() error {
		var err error
		out, err = b.provider.Customer(ctx, customerID)
		return err
	})
	return out, err
}

func (b *breakerProvider) Subscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	var out []Subscription
	err := b.run(func() error {
		var err error
		out, err = b.provider.Subscriptions(ctx, customerID)
		return err
	})
	return out, err
}

func (b *breakerProvider) LicenseKeys(ctx context.Context, subscriptionID string) ([]LicenseKey, error) {
	var out []LicenseKey
	err := b.run(func() error {
		var err error
		out, err = b.provider.LicenseKeys(ctx, subscriptionID)
		return err
	})
	return out, err
}

func (b *breakerProvider) Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	var out []Transaction
	err := b.run(func() error {
		var err error
		out, err = b.provider.Transactions(ctx, customerID, limit)
		return err
	})
	return out, err
}

func (b *breakerProvider) CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error) {
	var out *Subscription
	err := b.run(func() error {
		var err error
		out, err = b.provider.CreateSubscription(ctx, customerID, priceID)
		return err
	})
	return out, err
}

func (b *breakerProvider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error {
	return b.run(func() error {
		return b.provider.CancelSubscription(ctx, subscriptionID, immediate)
	})
}

func (b *breakerProvider) run(fn func() error) error {
	var callErr error
	err := b.breaker.execute(func() error {
		callErr = fn()
		if callErr == nil || !errors.Is(callErr, ErrProviderAPIError) {
			// Not-found and validation errors are healthy responses.
			return nil
		}
		return callErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return callErr
}
