// Package tiered provides a caching storage adapter that layers a fast
// in-process account cache (Hot) over a durable backing store (Cold). Reads
// go through the cache; every write invalidates the cached document so the
// next read observes the backing store's truth.
package tiered

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

// Config configures the tiered storage behavior
type Config struct {
	// Cold is the durable backing store and source of truth (required)
	Cold accountsync.Store

	// TTL bounds how long a cached account may be served without re-reading
	// the backing store. Default: 30s
	TTL time.Duration

	// MaxEntries caps the cache size. When exceeded the whole cache is
	// dropped rather than tracking LRU order; account documents are small
	// and re-reads are cheap. Default: 10000
	MaxEntries int
}

// Storage implements accountsync.Store with a read-through account cache.
// Only Get is served from the cache: lookups by customer id or email go
// straight to the backing store, since they happen once per webhook rather
// than once per dashboard load.
type Storage struct {
	cold accountsync.Store
	conf Config

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	account *accountsync.Account
	fetched time.Time
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Cold == nil {
		return nil, errors.New("tiered storage: cold storage is required")
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}

	return &Storage{
		cold:  config.Cold,
		conf:  config,
		cache: make(map[string]cacheEntry),
	}, nil
}

// Get implements accountsync.Store with a read-through strategy.
func (s *Storage) Get(ctx context.Context, userID string) (*accountsync.Account, error) {
	s.mu.RLock()
	entry, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetched) < s.conf.TTL {
		return copyAccount(entry.account), nil
	}

	account, err := s.cold.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.cache) >= s.conf.MaxEntries {
		s.cache = make(map[string]cacheEntry)
	}
	s.cache[userID] = cacheEntry{account: copyAccount(account), fetched: time.Now()}
	s.mu.Unlock()

	return account, nil
}

// FindByCustomerID implements accountsync.Store (pass-through).
func (s *Storage) FindByCustomerID(ctx context.Context, customerID string) (*accountsync.Account, error) {
	return s.cold.FindByCustomerID(ctx, customerID)
}

// FindByEmail implements accountsync.Store (pass-through).
func (s *Storage) FindByEmail(ctx context.Context, email string) (*accountsync.Account, error) {
	return s.cold.FindByEmail(ctx, email)
}

// Update implements accountsync.Store, invalidating the cached document.
func (s *Storage) Update(ctx context.Context, userID string, patch *accountsync.AccountPatch) error {
	if err := s.cold.Update(ctx, userID, patch); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// IncrementCreditTotal implements accountsync.Store, invalidating the cached
// document.
func (s *Storage) IncrementCreditTotal(ctx context.Context, userID string, delta int) error {
	if err := s.cold.IncrementCreditTotal(ctx, userID, delta); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// AppendTransaction implements accountsync.Store (pass-through; the ledger
// is not cached).
func (s *Storage) AppendTransaction(ctx context.Context, userID string, txn *accountsync.Transaction) error {
	return s.cold.AppendTransaction(ctx, userID, txn)
}

// Invalidate drops a cached account, forcing the next read to hit the
// backing store. Exposed for callers that mutate accounts outside this
// adapter.
func (s *Storage) Invalidate(userID string) {
	s.invalidate(userID)
}

func (s *Storage) invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

func copyAccount(account *accountsync.Account) *accountsync.Account {
	out := *account
	if account.Subscription != nil {
		sub := *account.Subscription
		out.Subscription = &sub
	}
	return &out
}
