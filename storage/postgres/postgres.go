// Package postgres provides a PostgreSQL implementation of the accountsync
// storage interfaces. Account documents live in a relational row with the
// subscription sub-record stored as JSONB; the transaction ledger and debug
// records are append-only tables.
//
// Expected schema:
//
//	CREATE TABLE accounts (
//	    user_id            TEXT PRIMARY KEY,
//	    email              TEXT NOT NULL DEFAULT '',
//	    paddle_customer_id TEXT NOT NULL DEFAULT '',
//	    subscription       JSONB,
//	    credit_used        INTEGER NOT NULL DEFAULT 0,
//	    credit_total       INTEGER NOT NULL DEFAULT 0,
//	    license_key        TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX accounts_customer_idx ON accounts (paddle_customer_id);
//	CREATE INDEX accounts_email_idx ON accounts (email);
//
//	CREATE TABLE account_transactions (
//	    id              BIGSERIAL PRIMARY KEY,
//	    user_id         TEXT NOT NULL,
//	    transaction_id  TEXT NOT NULL,
//	    subscription_id TEXT NOT NULL DEFAULT '',
//	    customer_id     TEXT NOT NULL DEFAULT '',
//	    amount          DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    currency        TEXT NOT NULL DEFAULT '',
//	    date            TEXT NOT NULL DEFAULT '',
//	    status          TEXT NOT NULL DEFAULT '',
//	    type            TEXT NOT NULL DEFAULT '',
//	    description     TEXT NOT NULL DEFAULT '',
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE webhook_debug (
//	    id              BIGSERIAL PRIMARY KEY,
//	    event_type      TEXT NOT NULL DEFAULT '',
//	    customer_id     TEXT NOT NULL DEFAULT '',
//	    subscription_id TEXT NOT NULL DEFAULT '',
//	    email           TEXT NOT NULL DEFAULT '',
//	    detail          TEXT NOT NULL DEFAULT '',
//	    payload         JSONB,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

// Storage implements accountsync.Store and accountsync.DebugSink using
// PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Put creates or replaces an account row. Used by the sign-up path.
func (s *Storage) Put(ctx context.Context, account *accountsync.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	subJSON, err := marshalSubscription(account.Subscription)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, email, paddle_customer_id, subscription,
			credit_used, credit_total, license_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) DO UPDATE SET
				email = EXCLUDED.email,
				paddle_customer_id = EXCLUDED.paddle_customer_id,
				subscription = EXCLUDED.subscription,
				credit_used = EXCLUDED.credit_used,
				credit_total = EXCLUDED.credit_total,
				license_key = EXCLUDED.license_key`,
		account.UserID,
		accountsync.NormalizeEmail(account.Email),
		account.BillingCustomerID,
		subJSON,
		account.CreditUsage.Used,
		account.CreditUsage.Total,
		account.LicenseKey,
	)
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

const accountColumns = `user_id, email, paddle_customer_id, subscription,
	credit_used, credit_total, license_key`

// Get implements accountsync.Store
func (s *Storage) Get(ctx context.Context, userID string) (*accountsync.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	return scanAccount(row)
}

// FindByCustomerID implements accountsync.Store
func (s *Storage) FindByCustomerID(ctx context.Context, customerID string) (*accountsync.Account, error) {
	if customerID == "" {
		return nil, accountsync.ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE paddle_customer_id = $1 LIMIT 1`,
		customerID)
	return scanAccount(row)
}

// FindByEmail implements accountsync.Store
func (s *Storage) FindByEmail(ctx context.Context, email string) (*accountsync.Account, error) {
	if email == "" {
		return nil, accountsync.ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 LIMIT 1`, email)
	return scanAccount(row)
}

// Update implements accountsync.Store
func (s *Storage) Update(ctx context.Context, userID string, patch *accountsync.AccountPatch) error {
	if patch == nil {
		return nil
	}

	var (
		sets []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.BillingCustomerID != nil {
		sets = append(sets, "paddle_customer_id = "+arg(*patch.BillingCustomerID))
	}
	switch {
	case patch.Subscription != nil:
		subJSON, err := marshalSubscription(patch.Subscription)
		if err != nil {
			return err
		}
		sets = append(sets, "subscription = "+arg(subJSON))
	case patch.SubscriptionPatch != nil:
		partial, err := marshalSubscriptionPatch(patch.SubscriptionPatch)
		if err != nil {
			return err
		}
		// JSONB merge keeps fields the patch does not mention.
		sets = append(sets,
			"subscription = COALESCE(subscription, '{}'::jsonb) || "+arg(partial)+"::jsonb")
	}
	if patch.CreditUsage != nil {
		sets = append(sets, "credit_used = "+arg(patch.CreditUsage.Used))
		sets = append(sets, "credit_total = "+arg(patch.CreditUsage.Total))
	}
	if patch.LicenseKey != nil {
		sets = append(sets, "license_key = "+arg(*patch.LicenseKey))
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE accounts SET " + strings.Join(sets, ", ") +
		" WHERE user_id = " + arg(userID)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accountsync.ErrAccountNotFound
	}
	return nil
}

// IncrementCreditTotal implements accountsync.Store with a single atomic
// UPDATE, so concurrent top-ups never lose a grant
func (s *Storage) IncrementCreditTotal(ctx context.Context, userID string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET credit_total = credit_total + $2 WHERE user_id = $1`,
		userID, delta)
	if err != nil {
		return fmt.Errorf("failed to increment credit total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accountsync.ErrAccountNotFound
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO account_transactions (user_id, transaction_id, subscription_id,
			customer_id, amount, currency, date, status, type, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		userID, txn.ID, txn.SubscriptionID, txn.CustomerID, txn.Amount,
		txn.Currency, txn.Date, txn.Status, txn.Type, txn.Description, createdAt)
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

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO webhook_debug (event_type, customer_id, subscription_id,
			email, detail, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.EventType, rec.CustomerID, rec.SubscriptionID, rec.Email,
		rec.Detail, payload, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record debug entry: %w", err)
	}
	return nil
}

// subscriptionRecord is the JSONB wire form of the subscription sub-record
type subscriptionRecord struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Active          bool       `json:"active"`
	PlanID          string     `json:"plan_id"`
	PlanName        string     `json:"plan_name"`
	NextBillingDate string     `json:"next_billing_date"`
	Amount          float64    `json:"amount"`
	Interval        string     `json:"interval"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
}

func marshalSubscription(sub *accountsync.Subscription) ([]byte, error) {
	if sub == nil {
		return nil, nil
	}
	rec := subscriptionRecord{
		ID:              sub.ID,
		Status:          sub.Status,
		Active:          sub.Active,
		PlanID:          sub.Plan.ID,
		PlanName:        sub.Plan.Name,
		NextBillingDate: sub.NextBillingDate,
		Amount:          sub.Amount,
		Interval:        sub.Interval,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
	if !sub.CanceledAt.IsZero() {
		canceledAt := sub.CanceledAt
		rec.CanceledAt = &canceledAt
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscription: %w", err)
	}
	return out, nil
}

func marshalSubscriptionPatch(patch *accountsync.SubscriptionPatch) ([]byte, error) {
	fields := make(map[string]interface{})
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Active != nil {
		fields["active"] = *patch.Active
	}
	if patch.PlanID != nil {
		fields["plan_id"] = *patch.PlanID
	}
	if patch.PlanName != nil {
		fields["plan_name"] = *patch.PlanName
	}
	if patch.NextBillingDate != nil {
		fields["next_billing_date"] = *patch.NextBillingDate
	}
	if patch.Amount != nil {
		fields["amount"] = *patch.Amount
	}
	if patch.Interval != nil {
		fields["interval"] = *patch.Interval
	}
	if patch.UpdatedAt != nil {
		fields["updated_at"] = *patch.UpdatedAt
	}
	if patch.CanceledAt != nil {
		fields["canceled_at"] = *patch.CanceledAt
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscription patch: %w", err)
	}
	return out, nil
}

func scanAccount(row pgx.Row) (*accountsync.Account, error) {
	var (
		account accountsync.Account
		subJSON []byte
	)
	err := row.Scan(
		&account.UserID,
		&account.Email,
		&account.BillingCustomerID,
		&subJSON,
		&account.CreditUsage.Used,
		&account.CreditUsage.Total,
		&account.LicenseKey,
	)
	if err == pgx.ErrNoRows {
		return nil, accountsync.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if len(subJSON) > 0 {
		var rec subscriptionRecord
		if err := json.Unmarshal(subJSON, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		sub := &accountsync.Subscription{
			ID:              rec.ID,
			Status:          rec.Status,
			Active:          rec.Active,
			Plan:            accountsync.Plan{ID: rec.PlanID, Name: rec.PlanName},
			NextBillingDate: rec.NextBillingDate,
			Amount:          rec.Amount,
			Interval:        rec.Interval,
			CreatedAt:       rec.CreatedAt,
			UpdatedAt:       rec.UpdatedAt,
		}
		if rec.CanceledAt != nil {
			sub.CanceledAt = *rec.CanceledAt
		}
		account.Subscription = sub
	}

	return &account, nil
}
