package tiered_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
	"github.com/yokaihq/paddlesync/storage/memory"
	"github.com/yokaihq/paddlesync/storage/tiered"
)

// countingStore tracks how many Get calls reach the backing store.
type countingStore struct {
	*memory.Storage
	gets int
}

func (c *countingStore) Get(ctx context.Context, userID string) (*accountsync.Account, error) {
	c.gets++
	return c.Storage.Get(ctx, userID)
}

func newTieredStore(t *testing.T, ttl time.Duration) (*tiered.Storage, *countingStore) {
	t.Helper()

	cold := &countingStore{Storage: memory.New()}
	require.NoError(t, cold.Put(context.Background(), &accountsync.Account{
		UserID:      "user1",
		Email:       "alice@example.com",
		CreditUsage: accountsync.CreditUsage{Used: 10, Total: 150},
	}))

	s, err := tiered.New(tiered.Config{Cold: cold, TTL: ttl})
	require.NoError(t, err)
	return s, cold
}

func TestNew_RequiresCold(t *testing.T) {
	_, err := tiered.New(tiered.Config{})
	assert.Error(t, err)
}

func TestStorage_GetCachesReads(t *testing.T) {
	s, cold := newTieredStore(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		account, err := s.Get(ctx, "user1")
		require.NoError(t, err)
		assert.Equal(t, "user1", account.UserID)
	}
	assert.Equal(t, 1, cold.gets, "repeat reads inside the TTL stay in the cache")
}

func TestStorage_TTLExpiry(t *testing.T) {
	s, cold := newTieredStore(t, 20*time.Millisecond)
	ctx := context.Background()

	_, err := s.Get(ctx, "user1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, cold.gets)
}

func TestStorage_UpdateInvalidates(t *testing.T) {
	s, cold := newTieredStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "user1")
	require.NoError(t, err)

	customerID := "ctm_1"
	require.NoError(t, s.Update(ctx, "user1", &accountsync.AccountPatch{BillingCustomerID: &customerID}))

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", account.BillingCustomerID, "post-write read observes the new state")
	assert.Equal(t, 2, cold.gets)
}

func TestStorage_IncrementInvalidates(t *testing.T) {
	s, _ := newTieredStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "user1")
	require.NoError(t, err)

	require.NoError(t, s.IncrementCreditTotal(ctx, "user1", 100))

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 250, account.CreditUsage.Total)
}

func TestStorage_ExplicitInvalidate(t *testing.T) {
	s, cold := newTieredStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "user1")
	require.NoError(t, err)

	s.Invalidate("user1")

	_, err = s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, cold.gets)
}

func TestStorage_FindsBypassCache(t *testing.T) {
	s, _ := newTieredStore(t, time.Minute)
	ctx := context.Background()

	account, err := s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)

	_, err = s.FindByCustomerID(ctx, "ctm_missing")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
}

func TestStorage_MissesAreNotCached(t *testing.T) {
	s, cold := newTieredStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
	assert.Equal(t, 2, cold.gets)
}

func TestStorage_CachedCopyIsIsolated(t *testing.T) {
	s, _ := newTieredStore(t, time.Minute)
	ctx := context.Background()

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	account.Email = "mutated@example.com"

	fresh, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", fresh.Email)
}
