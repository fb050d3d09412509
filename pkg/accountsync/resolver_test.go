package accountsync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
	"github.com/yokaihq/paddlesync/storage/memory"
)

func TestResolver_CustomerIDFastPath(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedAccount(t, store, &accountsync.Account{UserID: "user1", Email: "a@example.com", BillingCustomerID: "ctm_1"})

	resolver, err := accountsync.NewResolver(store, nil, nil, nil)
	require.NoError(t, err)

	account, err := resolver.Resolve(ctx, "ctm_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)
}

func TestResolver_ProviderEmailFallback(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedAccount(t, store, &accountsync.Account{UserID: "user1", Email: "alice@example.com"})

	resolver, err := accountsync.NewResolver(store, stubDirectory{"ctm_1": "ALICE@example.com"}, nil, nil)
	require.NoError(t, err)

	account, err := resolver.Resolve(ctx, "ctm_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)
	assert.Equal(t, "ctm_1", account.BillingCustomerID)

	// The backfill persisted, so the next lookup takes the fast path even
	// with the directory gone.
	resolver, err = accountsync.NewResolver(store, nil, nil, nil)
	require.NoError(t, err)
	account, err = resolver.Resolve(ctx, "ctm_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)
}

func TestResolver_PayloadEmailFallback(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedAccount(t, store, &accountsync.Account{UserID: "user1", Email: "alice@example.com"})

	// Directory errors must not abort resolution while a payload email remains.
	resolver, err := accountsync.NewResolver(store, stubDirectory{}, nil, nil)
	require.NoError(t, err)

	payload := map[string]interface{}{
		"customer": map[string]interface{}{"email": "alice@example.com"},
	}
	account, err := resolver.Resolve(ctx, "ctm_1", payload)
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)
	assert.Equal(t, "ctm_1", account.BillingCustomerID)
}

func TestResolver_PayloadEmailLocations(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{
			name: "customer.email",
			payload: map[string]interface{}{
				"customer": map[string]interface{}{"email": "alice@example.com"},
			},
		},
		{
			name:    "customer_email",
			payload: map[string]interface{}{"customer_email": "alice@example.com"},
		},
		{
			name: "billing_details.email",
			payload: map[string]interface{}{
				"billing_details": map[string]interface{}{"email": "alice@example.com"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			seedAccount(t, store, &accountsync.Account{UserID: "user1", Email: "alice@example.com"})

			resolver, err := accountsync.NewResolver(store, nil, nil, nil)
			require.NoError(t, err)

			account, err := resolver.Resolve(context.Background(), "ctm_1", tt.payload)
			require.NoError(t, err)
			assert.Equal(t, "user1", account.UserID)
		})
	}
}

func TestResolver_AllStrategiesMiss(t *testing.T) {
	store := memory.New()
	resolver, err := accountsync.NewResolver(store, nil, nil, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "ctm_unknown", map[string]interface{}{
		"customer": map[string]interface{}{"email": "nobody@example.com"},
	})
	assert.ErrorIs(t, err, accountsync.ErrCustomerNotResolved)
}

func TestResolver_EmptyCustomerID(t *testing.T) {
	resolver, err := accountsync.NewResolver(memory.New(), nil, nil, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "", nil)
	assert.ErrorIs(t, err, accountsync.ErrCustomerNotResolved)
}

func TestResolver_RequiresStore(t *testing.T) {
	_, err := accountsync.NewResolver(nil, nil, nil, nil)
	assert.ErrorIs(t, err, accountsync.ErrInvalidConfig)
}

// brokenStore fails every lookup with a backend error.
type brokenStore struct {
	accountsync.Store
}

func (brokenStore) FindByCustomerID(context.Context, string) (*accountsync.Account, error) {
	return nil, errors.New("backend down")
}

func TestResolver_StoreErrorSurfaces(t *testing.T) {
	resolver, err := accountsync.NewResolver(brokenStore{}, nil, nil, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "ctm_1", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, accountsync.ErrCustomerNotResolved)
}
