// Package firestore provides a Firestore implementation of the accountsync
// storage interfaces. This implementation uses Google Cloud Firestore for
// production-grade account persistence.
package firestore

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

// Storage implements accountsync.Store and accountsync.DebugSink using
// Google Cloud Firestore
type Storage struct {
	client                 *firestore.Client
	usersCollection        string
	transactionsCollection string
	debugCollection        string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection for account documents
	// Default: "users"
	UsersCollection string

	// TransactionsCollection is the per-account subcollection for the
	// transaction ledger
	// Default: "transactions"
	TransactionsCollection string

	// DebugCollection is the Firestore collection for webhook debug records
	// Default: "webhook_debug"
	DebugCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}
	if config.TransactionsCollection == "" {
		config.TransactionsCollection = "transactions"
	}
	if config.DebugCollection == "" {
		config.DebugCollection = "webhook_debug"
	}

	return &Storage{
		client:                 client,
		usersCollection:        config.UsersCollection,
		transactionsCollection: config.TransactionsCollection,
		debugCollection:        config.DebugCollection,
	}, nil
}

// Put creates or replaces an account document. Used by the sign-up path.
func (s *Storage) Put(ctx context.Context, account *accountsync.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	doc := s.client.Collection(s.usersCollection).Doc(account.UserID)
	data := map[string]interface{}{
		"email":        accountsync.NormalizeEmail(account.Email),
		"credit_usage": creditUsageData(account.CreditUsage),
	}
	if account.BillingCustomerID != "" {
		data["paddle_customer_id"] = account.BillingCustomerID
	}
	if account.LicenseKey != "" {
		data["license_key"] = account.LicenseKey
	}
	if account.Subscription != nil {
		data["subscription"] = subscriptionData(account.Subscription)
	}

	if _, err := doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Get implements accountsync.Store
func (s *Storage) Get(ctx context.Context, userID string) (*accountsync.Account, error) {
	doc := s.client.Collection(s.usersCollection).Doc(userID)
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, accountsync.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !snap.Exists() {
		return nil, accountsync.ErrAccountNotFound
	}

	return accountFromData(userID, snap.Data()), nil
}

// FindByCustomerID implements accountsync.Store
func (s *Storage) FindByCustomerID(ctx context.Context, customerID string) (*accountsync.Account, error) {
	if customerID == "" {
		return nil, accountsync.ErrAccountNotFound
	}
	return s.findOne(ctx, "paddle_customer_id", customerID)
}

// FindByEmail implements accountsync.Store
func (s *Storage) FindByEmail(ctx context.Context, email string) (*accountsync.Account, error) {
	if email == "" {
		return nil, accountsync.ErrAccountNotFound
	}
	return s.findOne(ctx, "email", email)
}

func (s *Storage) findOne(ctx context.Context, field, value string) (*accountsync.Account, error) {
	iter := s.client.Collection(s.usersCollection).
		Where(field, "==", value).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, accountsync.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts by %s: %w", field, err)
	}

	return accountFromData(snap.Ref.ID, snap.Data()), nil
}

// Update implements accountsync.Store
func (s *Storage) Update(ctx context.Context, userID string, patch *accountsync.AccountPatch) error {
	if patch == nil {
		return nil
	}

	updates := patchUpdates(patch)
	if len(updates) == 0 {
		return nil
	}

	doc := s.client.Collection(s.usersCollection).Doc(userID)
	if _, err := doc.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return accountsync.ErrAccountNotFound
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// IncrementCreditTotal implements accountsync.Store using Firestore's atomic
// increment, so concurrent top-ups never lose a grant
func (s *Storage) IncrementCreditTotal(ctx context.Context, userID string, delta int) error {
	doc := s.client.Collection(s.usersCollection).Doc(userID)
	_, err := doc.Update(ctx, []firestore.Update{
		{Path: "credit_usage.total", Value: firestore.Increment(delta)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return accountsync.ErrAccountNotFound
		}
		return fmt.Errorf("failed to increment credit total: %w", err)
	}
	return nil
}

// AppendTransaction implements accountsync.Store
func (s *Storage) AppendTransaction(ctx context.Context, userID string, txn *accountsync.Transaction) error {
	if txn == nil {
		return fmt.Errorf("invalid transaction")
	}

	createdAt := txn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	col := s.client.Collection(s.usersCollection).
		Doc(userID).
		Collection(s.transactionsCollection)
	_, _, err := col.Add(ctx, map[string]interface{}{
		"transaction_id":  txn.ID,
		"subscription_id": txn.SubscriptionID,
		"customer_id":     txn.CustomerID,
		"amount":          txn.Amount,
		"currency":        txn.Currency,
		"date":            txn.Date,
		"status":          txn.Status,
		"type":            txn.Type,
		"description":     txn.Description,
		"created_at":      createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Record implements accountsync.DebugSink
func (s *Storage) Record(ctx context.Context, rec *accountsync.DebugRecord) error {
	if rec == nil {
		return nil
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, _, err := s.client.Collection(s.debugCollection).Add(ctx, map[string]interface{}{
		"event_type":      rec.EventType,
		"customer_id":     rec.CustomerID,
		"subscription_id": rec.SubscriptionID,
		"email":           rec.Email,
		"detail":          rec.Detail,
		"payload":         rec.Payload,
		"created_at":      createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record debug entry: %w", err)
	}
	return nil
}

// patchUpdates translates an AccountPatch into Firestore field-path updates
func patchUpdates(patch *accountsync.AccountPatch) []firestore.Update {
	var updates []firestore.Update

	if patch.BillingCustomerID != nil {
		updates = append(updates, firestore.Update{
			Path: "paddle_customer_id", Value: *patch.BillingCustomerID,
		})
	}
	switch {
	case patch.Subscription != nil:
		updates = append(updates, firestore.Update{
			Path: "subscription", Value: subscriptionData(patch.Subscription),
		})
	case patch.SubscriptionPatch != nil:
		updates = append(updates, subscriptionPatchUpdates(patch.SubscriptionPatch)...)
	}
	if patch.CreditUsage != nil {
		updates = append(updates, firestore.Update{
			Path: "credit_usage", Value: creditUsageData(*patch.CreditUsage),
		})
	}
	if patch.LicenseKey != nil {
		updates = append(updates, firestore.Update{
			Path: "license_key", Value: *patch.LicenseKey,
		})
	}

	return updates
}

func subscriptionPatchUpdates(patch *accountsync.SubscriptionPatch) []firestore.Update {
	var updates []firestore.Update

	add := func(path string, value interface{}) {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if patch.Status != nil {
		add("subscription.status", *patch.Status)
	}
	if patch.Active != nil {
		add("subscription.active", *patch.Active)
	}
	if patch.PlanID != nil {
		add("subscription.plan.id", *patch.PlanID)
	}
	if patch.PlanName != nil {
		add("subscription.plan.name", *patch.PlanName)
	}
	if patch.NextBillingDate != nil {
		add("subscription.next_billing_date", *patch.NextBillingDate)
	}
	if patch.Amount != nil {
		add("subscription.amount", *patch.Amount)
	}
	if patch.Interval != nil {
		add("subscription.interval", *patch.Interval)
	}
	if patch.UpdatedAt != nil {
		add("subscription.updated_at", *patch.UpdatedAt)
	}
	if patch.CanceledAt != nil {
		add("subscription.canceled_at", *patch.CanceledAt)
	}

	return updates
}

func subscriptionData(sub *accountsync.Subscription) map[string]interface{} {
	data := map[string]interface{}{
		"id":     sub.ID,
		"status": sub.Status,
		"active": sub.Active,
		"plan": map[string]interface{}{
			"id":   sub.Plan.ID,
			"name": sub.Plan.Name,
		},
		"next_billing_date": sub.NextBillingDate,
		"amount":            sub.Amount,
		"interval":          sub.Interval,
		"created_at":        sub.CreatedAt,
		"updated_at":        sub.UpdatedAt,
	}
	if !sub.CanceledAt.IsZero() {
		data["canceled_at"] = sub.CanceledAt
	}
	return data
}

func creditUsageData(usage accountsync.CreditUsage) map[string]interface{} {
	return map[string]interface{}{
		"used":  usage.Used,
		"total": usage.Total,
	}
}

func accountFromData(userID string, data map[string]interface{}) *accountsync.Account {
	account := &accountsync.Account{
		UserID:            userID,
		Email:             getString(data, "email"),
		BillingCustomerID: getString(data, "paddle_customer_id"),
		LicenseKey:        getString(data, "license_key"),
	}

	if usage, ok := data["credit_usage"].(map[string]interface{}); ok {
		account.CreditUsage = accountsync.CreditUsage{
			Used:  getInt(usage, "used"),
			Total: getInt(usage, "total"),
		}
	}

	if sub, ok := data["subscription"].(map[string]interface{}); ok {
		account.Subscription = &accountsync.Subscription{
			ID:              getString(sub, "id"),
			Status:          getString(sub, "status"),
			Active:          getBool(sub, "active"),
			NextBillingDate: getString(sub, "next_billing_date"),
			Amount:          getFloat(sub, "amount"),
			Interval:        getString(sub, "interval"),
			CreatedAt:       getTime(sub, "created_at"),
			UpdatedAt:       getTime(sub, "updated_at"),
			CanceledAt:      getTime(sub, "canceled_at"),
		}
		if plan, ok := sub["plan"].(map[string]interface{}); ok {
			account.Subscription.Plan = accountsync.Plan{
				ID:   getString(plan, "id"),
				Name: getString(plan, "name"),
			}
		}
	}

	return account
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getFloat(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
