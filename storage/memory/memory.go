// Package memory provides an in-memory implementation of the accountsync
// storage interfaces. This implementation is primarily intended for testing
// and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

// Storage implements accountsync.Store and accountsync.DebugSink using
// in-memory maps
type Storage struct {
	mu           sync.RWMutex
	accounts     map[string]*accountsync.Account
	transactions map[string][]accountsync.Transaction
	debug        []accountsync.DebugRecord
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		accounts:     make(map[string]*accountsync.Account),
		transactions: make(map[string][]accountsync.Transaction),
	}
}

// Put creates or replaces an account document. Used by the sign-up path and
// by tests to seed state.
func (s *Storage) Put(ctx context.Context, account *accountsync.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.UserID] = copyAccount(account)
	return nil
}

// Get implements accountsync.Store
func (s *Storage) Get(ctx context.Context, userID string) (*accountsync.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, accountsync.ErrAccountNotFound
	}

	return copyAccount(account), nil
}

// FindByCustomerID implements accountsync.Store
func (s *Storage) FindByCustomerID(ctx context.Context, customerID string) (*accountsync.Account, error) {
	if customerID == "" {
		return nil, accountsync.ErrAccountNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.BillingCustomerID == customerID {
			return copyAccount(account), nil
		}
	}
	return nil, accountsync.ErrAccountNotFound
}

// FindByEmail implements accountsync.Store
func (s *Storage) FindByEmail(ctx context.Context, email string) (*accountsync.Account, error) {
	if email == "" {
		return nil, accountsync.ErrAccountNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if accountsync.NormalizeEmail(account.Email) == email {
			return copyAccount(account), nil
		}
	}
	return nil, accountsync.ErrAccountNotFound
}

// Update implements accountsync.Store
func (s *Storage) Update(ctx context.Context, userID string, patch *accountsync.AccountPatch) error {
	if patch == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return accountsync.ErrAccountNotFound
	}

	if patch.BillingCustomerID != nil {
		account.BillingCustomerID = *patch.BillingCustomerID
	}
	switch {
	case patch.Subscription != nil:
		sub := *patch.Subscription
		account.Subscription = &sub
	case patch.SubscriptionPatch != nil:
		applySubscriptionPatch(account, patch.SubscriptionPatch)
	}
	if patch.CreditUsage != nil {
		account.CreditUsage = *patch.CreditUsage
	}
	if patch.LicenseKey != nil {
		account.LicenseKey = *patch.LicenseKey
	}

	return nil
}

// IncrementCreditTotal implements accountsync.Store
func (s *Storage) IncrementCreditTotal(ctx context.Context, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return accountsync.ErrAccountNotFound
	}

	account.CreditUsage.Total += delta
	return nil
}

// AppendTransaction implements accountsync.Store
func (s *Storage) AppendTransaction(ctx context.Context, userID string, txn *accountsync.Transaction) error {
	if txn == nil {
		return fmt.Errorf("invalid transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[userID] = append(s.transactions[userID], *txn)
	return nil
}

// Transactions returns the recorded ledger for a user, newest last. Useful
// for tests and the development server.
func (s *Storage) Transactions(userID string) []accountsync.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txns := s.transactions[userID]
	out := make([]accountsync.Transaction, len(txns))
	copy(out, txns)
	return out
}

// Record implements accountsync.DebugSink
func (s *Storage) Record(ctx context.Context, rec *accountsync.DebugRecord) error {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.debug = append(s.debug, stored)
	return nil
}

// DebugRecords returns all recorded debug entries. Useful for tests.
func (s *Storage) DebugRecords() []accountsync.DebugRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]accountsync.DebugRecord, len(s.debug))
	copy(out, s.debug)
	return out
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*accountsync.Account)
	s.transactions = make(map[string][]accountsync.Transaction)
	s.debug = nil
}

func applySubscriptionPatch(account *accountsync.Account, patch *accountsync.SubscriptionPatch) {
	if account.Subscription == nil {
		account.Subscription = &accountsync.Subscription{}
	}
	sub := account.Subscription
	if patch.Status != nil {
		sub.Status = *patch.Status
	}
	if patch.Active != nil {
		sub.Active = *patch.Active
	}
	if patch.PlanID != nil {
		sub.Plan.ID = *patch.PlanID
	}
	if patch.PlanName != nil {
		sub.Plan.Name = *patch.PlanName
	}
	if patch.NextBillingDate != nil {
		sub.NextBillingDate = *patch.NextBillingDate
	}
	if patch.Amount != nil {
		sub.Amount = *patch.Amount
	}
	if patch.Interval != nil {
		sub.Interval = *patch.Interval
	}
	if patch.UpdatedAt != nil {
		sub.UpdatedAt = *patch.UpdatedAt
	}
	if patch.CanceledAt != nil {
		sub.CanceledAt = *patch.CanceledAt
	}
}

// copyAccount returns a deep copy to prevent external mutations
func copyAccount(account *accountsync.Account) *accountsync.Account {
	out := *account
	if account.Subscription != nil {
		sub := *account.Subscription
		out.Subscription = &sub
	}
	return &out
}
