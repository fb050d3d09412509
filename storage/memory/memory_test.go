package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

func TestStorage_PutAndLookups(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &accountsync.Account{
		UserID:            "user1",
		Email:             "Alice@Example.com",
		BillingCustomerID: "ctm_1",
	}))

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)

	account, err = s.FindByCustomerID(ctx, "ctm_1")
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)

	// Lookups use the normalized form regardless of stored casing.
	account, err = s.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user1", account.UserID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
	_, err = s.FindByCustomerID(ctx, "ctm_missing")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
	_, err = s.FindByCustomerID(ctx, "")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
}

func TestStorage_Put_Invalid(t *testing.T) {
	s := New()
	assert.Error(t, s.Put(context.Background(), nil))
	assert.Error(t, s.Put(context.Background(), &accountsync.Account{}))
}

func TestStorage_Update_SubscriptionReplace(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{UserID: "user1", Email: "a@example.com"}))

	customerID := "ctm_1"
	licenseKey := "KEY-1"
	err := s.Update(ctx, "user1", &accountsync.AccountPatch{
		BillingCustomerID: &customerID,
		Subscription: &accountsync.Subscription{
			ID:     "sub_1",
			Status: accountsync.StatusActive,
			Active: true,
			Plan:   accountsync.Plan{ID: "pri_1", Name: "Starter"},
		},
		CreditUsage: &accountsync.CreditUsage{Used: 0, Total: 150},
		LicenseKey:  &licenseKey,
	})
	require.NoError(t, err)

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", account.BillingCustomerID)
	assert.Equal(t, "sub_1", account.Subscription.ID)
	assert.Equal(t, 150, account.CreditUsage.Total)
	assert.Equal(t, "KEY-1", account.LicenseKey)
}

func TestStorage_Update_SubscriptionPatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{
		UserID: "user1",
		Email:  "a@example.com",
		Subscription: &accountsync.Subscription{
			ID:              "sub_1",
			Status:          accountsync.StatusActive,
			Active:          true,
			Plan:            accountsync.Plan{ID: "pri_1", Name: "Starter"},
			NextBillingDate: "2026-04-15",
			Amount:          29,
		},
	}))

	status := accountsync.StatusCancelled
	active := false
	canceledAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	err := s.Update(ctx, "user1", &accountsync.AccountPatch{
		SubscriptionPatch: &accountsync.SubscriptionPatch{
			Status:     &status,
			Active:     &active,
			CanceledAt: &canceledAt,
		},
	})
	require.NoError(t, err)

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, accountsync.StatusCancelled, account.Subscription.Status)
	assert.False(t, account.Subscription.Active)
	assert.Equal(t, canceledAt, account.Subscription.CanceledAt)

	// Untouched fields survive the patch.
	assert.Equal(t, "pri_1", account.Subscription.Plan.ID)
	assert.Equal(t, "2026-04-15", account.Subscription.NextBillingDate)
	assert.Equal(t, 29.0, account.Subscription.Amount)
}

func TestStorage_Update_PatchCreatesSubscription(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{UserID: "user1", Email: "a@example.com"}))

	status := accountsync.StatusActive
	err := s.Update(ctx, "user1", &accountsync.AccountPatch{
		SubscriptionPatch: &accountsync.SubscriptionPatch{Status: &status},
	})
	require.NoError(t, err)

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, account.Subscription)
	assert.Equal(t, accountsync.StatusActive, account.Subscription.Status)
}

func TestStorage_Update_MissingAccount(t *testing.T) {
	s := New()
	customerID := "ctm_1"
	err := s.Update(context.Background(), "missing", &accountsync.AccountPatch{BillingCustomerID: &customerID})
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
}

func TestStorage_IncrementCreditTotal(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{
		UserID:      "user1",
		Email:       "a@example.com",
		CreditUsage: accountsync.CreditUsage{Used: 20, Total: 150},
	}))

	require.NoError(t, s.IncrementCreditTotal(ctx, "user1", 100))

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, accountsync.CreditUsage{Used: 20, Total: 250}, account.CreditUsage)

	err = s.IncrementCreditTotal(ctx, "missing", 100)
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
}

func TestStorage_Transactions(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.AppendTransaction(ctx, "user1", &accountsync.Transaction{ID: "txn_1"}))
	require.NoError(t, s.AppendTransaction(ctx, "user1", &accountsync.Transaction{ID: "txn_2"}))
	assert.Error(t, s.AppendTransaction(ctx, "user1", nil))

	txns := s.Transactions("user1")
	require.Len(t, txns, 2)
	assert.Equal(t, "txn_1", txns[0].ID)
	assert.Equal(t, "txn_2", txns[1].ID)

	assert.Empty(t, s.Transactions("other"))
}

func TestStorage_DebugRecords(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, &accountsync.DebugRecord{EventType: "subscription.created", CustomerID: "ctm_1"}))
	require.NoError(t, s.Record(ctx, nil))

	records := s.DebugRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "ctm_1", records[0].CustomerID)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestStorage_CopiesOnRead(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{
		UserID:       "user1",
		Email:        "a@example.com",
		Subscription: &accountsync.Subscription{ID: "sub_1"},
	}))

	account, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	account.Subscription.ID = "mutated"
	account.Email = "mutated@example.com"

	fresh, err := s.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", fresh.Subscription.ID)
	assert.Equal(t, "a@example.com", fresh.Email)
}

func TestStorage_Clear(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &accountsync.Account{UserID: "user1", Email: "a@example.com"}))

	s.Clear()

	_, err := s.Get(ctx, "user1")
	assert.ErrorIs(t, err, accountsync.ErrAccountNotFound)
}
