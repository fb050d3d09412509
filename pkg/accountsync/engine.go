package accountsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the engine.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventTransactionCreated    = "transaction.created"
	EventTransactionCompleted  = "transaction.completed"
)

// renewalWindow is the heuristic threshold for renewal detection: an update
// whose previously_billed_at lies within this window of now is taken to be
// the provider's automatic renewal firing rather than a human-initiated
// change. Duplicate delivery of the same update inside the window is
// indistinguishable from a renewal; configure an EventLedger to close that
// gap.
const renewalWindow = time.Hour

// Config holds the engine's dependencies. Store and Catalog are required.
type Config struct {
	// Store is the account document store (required).
	Store Store

	// Catalog maps price ids to credit allocations (required).
	Catalog *Catalog

	// Directory resolves customer emails against the billing provider
	// (optional; email fallback resolution is skipped without it).
	Directory CustomerDirectory

	// DebugSink records failures needing manual reconciliation (optional).
	DebugSink DebugSink

	// EventLedger deduplicates deliveries on provider event ids (optional).
	// Without it duplicate deliveries within the renewal window double-reset
	// credits; see renewalWindow.
	EventLedger EventLedger

	// Logger for structured logging (optional, defaults to noop).
	Logger Logger

	// Metrics collector (optional, defaults to noop).
	Metrics Metrics

	// TimeSource overrides the clock, for tests (optional).
	TimeSource func() time.Time

	// LicenseKeyFunc overrides license key generation, for tests (optional).
	LicenseKeyFunc func() string
}

// Engine is the state machine that converges per-account state (subscription
// fields, credit totals, license key) from asynchronous, possibly duplicated,
// possibly out-of-order billing events. Each invocation is stateless; the
// Store is the only shared mutable resource.
type Engine struct {
	store      Store
	catalog    *Catalog
	resolver   *Resolver
	debug      DebugSink
	ledger     EventLedger
	logger     Logger
	metrics    Metrics
	now        func() time.Time
	licenseKey func() string
}

// NewEngine creates a reconciliation engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = &NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetrics{}
	}
	if cfg.TimeSource == nil {
		cfg.TimeSource = time.Now
	}
	if cfg.LicenseKeyFunc == nil {
		cfg.LicenseKeyFunc = NewLicenseKey
	}

	resolver, err := NewResolver(cfg.Store, cfg.Directory, cfg.Logger, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		resolver:   resolver,
		debug:      cfg.DebugSink,
		ledger:     cfg.EventLedger,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.TimeSource,
		licenseKey: cfg.LicenseKeyFunc,
	}, nil
}

// Process dispatches one billing event to its transition handler. Unknown
// event types and unresolvable customers are handled-successfully no-ops;
// only store and provider failures surface as errors, and the webhook
// endpoint swallows even those so the provider never retries.
func (e *Engine) Process(ctx context.Context, evt *Event) error {
	if evt == nil || evt.Type == "" {
		return fmt.Errorf("%w: missing event type", ErrInvalidConfig)
	}

	start := e.now()
	if e.ledger != nil && evt.ID != "" {
		first, err := e.ledger.MarkProcessed(ctx, evt.ID)
		if err != nil {
			// A broken ledger must not block reconciliation; fall through.
			e.logger.Warn("event ledger unavailable",
				Field{Key: "event_id", Value: evt.ID},
				Field{Key: "error", Value: err.Error()})
		} else if !first {
			e.logger.Info("duplicate event skipped",
				Field{Key: "event_id", Value: evt.ID},
				Field{Key: "event_type", Value: evt.Type})
			e.metrics.RecordWebhookEvent(evt.Type, "skipped")
			return nil
		}
	}

	var err error
	switch evt.Type {
	case EventSubscriptionCreated:
		err = e.handleSubscriptionCreated(ctx, evt)
	case EventSubscriptionUpdated:
		err = e.handleSubscriptionUpdated(ctx, evt)
	case EventSubscriptionCancelled, "subscription.canceled":
		err = e.handleSubscriptionCancelled(ctx, evt)
	case EventTransactionCreated, EventTransactionCompleted:
		err = e.handleTransaction(ctx, evt)
	default:
		// Forward-compatible with new provider event types.
		e.metrics.RecordWebhookEvent(evt.Type, "skipped")
		return nil
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordWebhookEvent(evt.Type, status)
	e.metrics.RecordWebhookDuration(evt.Type, e.now().Sub(start))
	return err
}

func (e *Engine) handleSubscriptionCreated(ctx context.Context, evt *Event) error {
	data := evt.Data
	subscriptionID := stringField(data, "id")
	customerID := stringField(data, "customer_id")

	price := NormalizePrice(data)
	allocation := e.catalog.SubscriptionCredits(price.PriceID)

	acct, err := e.resolver.Resolve(ctx, customerID, data)
	if err != nil {
		// A missing account is an operational alert, not a protocol error:
		// record the full context and acknowledge the webhook successfully.
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account resolution failed: "+err.Error())
		return nil
	}

	// License keys are stable across the subscription lifetime; reprocessing
	// an account that already holds one preserves it.
	licenseKey := acct.LicenseKey
	if licenseKey == "" {
		licenseKey = e.licenseKey()
	}

	now := e.now()
	sub := &Subscription{
		ID:              subscriptionID,
		Status:          StatusActive,
		Active:          true,
		Plan:            Plan{ID: price.PriceID, Name: price.PlanName},
		NextBillingDate: stringField(data, "next_billed_at"),
		Amount:          price.Amount,
		Interval:        price.Interval,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	patch := &AccountPatch{
		BillingCustomerID: &customerID,
		Subscription:      sub,
		CreditUsage:       &CreditUsage{Used: 0, Total: allocation},
		LicenseKey:        &licenseKey,
	}
	if err := e.store.Update(ctx, acct.UserID, patch); err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account update failed: "+err.Error())
		return fmt.Errorf("failed to apply subscription %s: %w", subscriptionID, err)
	}
	e.metrics.RecordCreditGrant("allocation", allocation)

	txn := &Transaction{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		Amount:         price.Amount,
		Currency:       currencyOf(data),
		Date:           now.UTC().Format(time.RFC3339),
		Status:         "completed",
		Type:           TransactionSubscriptionPayment,
		Description:    price.PlanName + " Subscription",
		CreatedAt:      now,
	}
	if err := e.store.AppendTransaction(ctx, acct.UserID, txn); err != nil {
		// The account update already landed; a short ledger is an accepted
		// eventual-consistency gap, not a reason to fail the event.
		e.logger.Error("transaction append failed",
			Field{Key: "user_id", Value: acct.UserID},
			Field{Key: "subscription_id", Value: subscriptionID},
			Field{Key: "error", Value: err.Error()})
	}

	e.logger.Info("subscription created",
		Field{Key: "user_id", Value: acct.UserID},
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "plan", Value: price.PlanName},
		Field{Key: "credits", Value: allocation})
	return nil
}

func (e *Engine) handleSubscriptionUpdated(ctx context.Context, evt *Event) error {
	data := evt.Data
	subscriptionID := stringField(data, "id")
	customerID := stringField(data, "customer_id")

	price := NormalizePrice(data)

	acct, err := e.resolver.Resolve(ctx, customerID, data)
	if err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account resolution failed: "+err.Error())
		return nil
	}

	// Top-up purchases ride in on subscription.updated but never touch
	// subscription state: the credit total is a pure atomic increment.
	if e.catalog.IsTopUp(price.PriceID) {
		return e.applyTopUp(ctx, evt, acct, price.PriceID, subscriptionID, customerID)
	}

	now := e.now()
	isRenewal := e.isRenewal(data, now)
	isPlanChange := price.PriceID != "" && (acct.Subscription == nil || acct.Subscription.Plan.ID != price.PriceID)

	subPatch := &SubscriptionPatch{UpdatedAt: &now}
	if status := stringField(data, "status"); status != "" {
		active := IsActiveStatus(status)
		subPatch.Status = &status
		subPatch.Active = &active
	}
	// Partial update: absent fields stay untouched, never zeroed.
	if next := stringField(data, "next_billed_at"); next != "" {
		subPatch.NextBillingDate = &next
	}
	if price.PriceID != "" {
		subPatch.PlanID = &price.PriceID
		subPatch.PlanName = &price.PlanName
		subPatch.Interval = &price.Interval
		if price.Amount > 0 {
			subPatch.Amount = &price.Amount
		}
	}

	patch := &AccountPatch{SubscriptionPatch: subPatch}
	if isRenewal || isPlanChange {
		// Credit-reset policy: a renewal or plan change re-grants the plan's
		// base allocation and discards carry-over.
		allocation := e.catalog.SubscriptionCredits(price.PriceID)
		patch.CreditUsage = &CreditUsage{Used: 0, Total: allocation}
	}

	if err := e.store.Update(ctx, acct.UserID, patch); err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account update failed: "+err.Error())
		return fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}
	if patch.CreditUsage != nil {
		e.metrics.RecordCreditGrant("reset", patch.CreditUsage.Total)
	}

	if isRenewal {
		txn := &Transaction{
			ID:             uuid.NewString(),
			SubscriptionID: subscriptionID,
			CustomerID:     customerID,
			Amount:         price.Amount,
			Currency:       currencyOf(data),
			Date:           now.UTC().Format(time.RFC3339),
			Status:         "completed",
			Type:           TransactionSubscriptionRenewal,
			Description:    price.PlanName + " Renewal",
			CreatedAt:      now,
		}
		if err := e.store.AppendTransaction(ctx, acct.UserID, txn); err != nil {
			e.logger.Error("transaction append failed",
				Field{Key: "user_id", Value: acct.UserID},
				Field{Key: "subscription_id", Value: subscriptionID},
				Field{Key: "error", Value: err.Error()})
		}
	}

	e.logger.Info("subscription updated",
		Field{Key: "user_id", Value: acct.UserID},
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "renewal", Value: isRenewal},
		Field{Key: "plan_change", Value: isPlanChange})
	return nil
}

func (e *Engine) handleSubscriptionCancelled(ctx context.Context, evt *Event) error {
	data := evt.Data
	subscriptionID := stringField(data, "id")
	customerID := stringField(data, "customer_id")

	acct, err := e.resolver.Resolve(ctx, customerID, data)
	if err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account resolution failed: "+err.Error())
		return nil
	}

	now := e.now()
	status := StatusCancelled
	active := false
	patch := &AccountPatch{SubscriptionPatch: &SubscriptionPatch{
		Status:     &status,
		Active:     &active,
		UpdatedAt:  &now,
		CanceledAt: &now,
	}}
	if err := e.store.Update(ctx, acct.UserID, patch); err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "account update failed: "+err.Error())
		return fmt.Errorf("failed to cancel subscription %s: %w", subscriptionID, err)
	}

	e.logger.Info("subscription cancelled",
		Field{Key: "user_id", Value: acct.UserID},
		Field{Key: "subscription_id", Value: subscriptionID})
	return nil
}

// handleTransaction scans a transaction event's line items for top-up
// products. Events without top-up items are assumed covered by the
// subscription transitions and are a no-op here.
func (e *Engine) handleTransaction(ctx context.Context, evt *Event) error {
	data := evt.Data
	customerID := stringField(data, "customer_id")

	credits := 0
	for _, item := range LineItems(data) {
		if priceID := ItemPriceID(item); e.catalog.IsTopUp(priceID) {
			credits += e.catalog.TopUpCredits(priceID)
		}
	}
	if credits == 0 {
		return nil
	}

	acct, err := e.resolver.Resolve(ctx, customerID, data)
	if err != nil {
		e.recordDebug(ctx, evt, customerID, stringField(data, "subscription_id"), "account resolution failed: "+err.Error())
		return nil
	}

	if err := e.store.IncrementCreditTotal(ctx, acct.UserID, credits); err != nil {
		e.recordDebug(ctx, evt, customerID, stringField(data, "subscription_id"), "credit increment failed: "+err.Error())
		return fmt.Errorf("failed to add %d credits: %w", credits, err)
	}
	e.metrics.RecordCreditGrant("topup", credits)

	now := e.now()
	txn := &Transaction{
		ID:             firstNonEmpty(stringField(data, "id"), uuid.NewString()),
		SubscriptionID: stringField(data, "subscription_id"),
		CustomerID:     customerID,
		Amount:         transactionTotal(data),
		Currency:       currencyOf(data),
		Date:           now.UTC().Format(time.RFC3339),
		Status:         firstNonEmpty(stringField(data, "status"), "completed"),
		Type:           TransactionCreditPurchase,
		Description:    fmt.Sprintf("%d Credit Purchase", credits),
		CreatedAt:      now,
	}
	if err := e.store.AppendTransaction(ctx, acct.UserID, txn); err != nil {
		e.logger.Error("transaction append failed",
			Field{Key: "user_id", Value: acct.UserID},
			Field{Key: "error", Value: err.Error()})
	}

	e.logger.Info("credits topped up",
		Field{Key: "user_id", Value: acct.UserID},
		Field{Key: "credits", Value: credits})
	return nil
}

// applyTopUp handles top-up purchases delivered as subscription.updated.
func (e *Engine) applyTopUp(ctx context.Context, evt *Event, acct *Account, priceID, subscriptionID, customerID string) error {
	credits := e.catalog.TopUpCredits(priceID)
	if err := e.store.IncrementCreditTotal(ctx, acct.UserID, credits); err != nil {
		e.recordDebug(ctx, evt, customerID, subscriptionID, "credit increment failed: "+err.Error())
		return fmt.Errorf("failed to add %d credits: %w", credits, err)
	}
	e.metrics.RecordCreditGrant("topup", credits)

	now := e.now()
	txn := &Transaction{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		Currency:       currencyOf(evt.Data),
		Date:           now.UTC().Format(time.RFC3339),
		Status:         "completed",
		Type:           TransactionCreditPurchase,
		Description:    fmt.Sprintf("%d Credit Purchase", credits),
		CreatedAt:      now,
	}
	if err := e.store.AppendTransaction(ctx, acct.UserID, txn); err != nil {
		e.logger.Error("transaction append failed",
			Field{Key: "user_id", Value: acct.UserID},
			Field{Key: "error", Value: err.Error()})
	}

	e.logger.Info("credits topped up",
		Field{Key: "user_id", Value: acct.UserID},
		Field{Key: "credits", Value: credits})
	return nil
}

// isRenewal applies the renewal heuristic: a previously_billed_at timestamp
// within renewalWindow of now means the provider's automatic renewal fired.
func (e *Engine) isRenewal(data map[string]interface{}, now time.Time) bool {
	raw := stringField(data, "previously_billed_at")
	if raw == "" {
		return false
	}
	billedAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	delta := now.Sub(billedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= renewalWindow
}

func (e *Engine) recordDebug(ctx context.Context, evt *Event, customerID, subscriptionID, detail string) {
	e.logger.Warn("recording debug artifact",
		Field{Key: "event_type", Value: evt.Type},
		Field{Key: "customer_id", Value: customerID},
		Field{Key: "detail", Value: detail})
	if e.debug == nil {
		return
	}
	rec := &DebugRecord{
		EventType:      evt.Type,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Email:          payloadEmail(evt.Data),
		Detail:         detail,
		Payload:        evt.Data,
		CreatedAt:      e.now(),
	}
	if err := e.debug.Record(ctx, rec); err != nil {
		e.logger.Error("debug sink write failed",
			Field{Key: "event_type", Value: evt.Type},
			Field{Key: "error", Value: err.Error()})
	}
}

func currencyOf(data map[string]interface{}) string {
	if c := stringField(data, "currency_code"); c != "" {
		return c
	}
	return "USD"
}

// transactionTotal extracts details.totals.grand_total in major units.
func transactionTotal(data map[string]interface{}) float64 {
	details, _ := data["details"].(map[string]interface{})
	if details == nil {
		return 0
	}
	totals, _ := details["totals"].(map[string]interface{})
	if totals == nil {
		return 0
	}
	return minorUnits(totals["grand_total"]) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
