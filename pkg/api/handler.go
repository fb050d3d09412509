// Package api serves the authenticated billing dashboard endpoints. Reads
// come from the account store when it already reflects an active
// subscription; otherwise the handler falls back to the billing provider and
// writes the repaired state back, so a missed webhook heals on the next
// dashboard load.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
	"github.com/yokaihq/paddlesync/pkg/auth"
	"github.com/yokaihq/paddlesync/pkg/billing"
)

const (
	actionCreate = "create"
	actionCancel = "cancel"

	defaultTransactionLimit = 10
	maxTransactionLimit     = 50
)

// Handler provides the HTTP endpoints of the billing dashboard API
type Handler struct {
	config Config

	// sync deduplicates concurrent fallback syncs for the same user
	sync singleflight.Group
}

// Routes mounts the API endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.withCORS)
	r.Get("/client-token", h.GetClientToken)
	r.Group(func(r chi.Router) {
		r.Use(h.withAuth)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/transactions", h.GetTransactions)
		r.Post("/subscription", h.PostSubscription)
		r.Post("/license/validate", h.ValidateLicense)
	})
	return r
}

// GetDashboard returns the user's subscription, credit balance, and license
// key. Store state with an active subscription is served directly; anything
// else triggers a provider sync whose result is written back to the store.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		h.handleError(w, fmt.Errorf("identity not found"), http.StatusUnauthorized)
		return
	}

	account, err := h.config.Store.Get(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, accountsync.ErrAccountNotFound) {
			h.handleError(w, fmt.Errorf("account not found"), http.StatusNotFound)
			return
		}
		h.handleError(w, fmt.Errorf("failed to load account: %w", err), http.StatusInternalServerError)
		return
	}

	// Fast path: the store already reflects an active subscription.
	if account.Subscription == nil || !account.Subscription.Active {
		account = h.syncAccount(ctx, account)
	}

	h.writeJSON(w, http.StatusOK, dashboardResponse(account))
}

// syncAccount reconciles an account against the billing provider, writing the
// repaired state back to the store. Concurrent syncs for the same user are
// collapsed into one provider round-trip. On any failure the stored account
// is returned unchanged: the dashboard degrades rather than erroring.
func (h *Handler) syncAccount(ctx context.Context, account *accountsync.Account) *accountsync.Account {
	if h.config.Provider == nil {
		return account
	}

	result, err, _ := h.sync.Do(account.UserID, func() (interface{}, error) {
		return h.syncFromProvider(ctx, account)
	})
	if err != nil {
		h.config.Metrics.RecordDashboardSync("error")
		h.config.Logger.Warn("Dashboard provider sync failed",
			accountsync.Field{Key: "user_id", Value: account.UserID},
			accountsync.Field{Key: "error", Value: err.Error()},
		)
		return account
	}
	h.config.Metrics.RecordDashboardSync("success")
	return result.(*accountsync.Account)
}

func (h *Handler) syncFromProvider(ctx context.Context, account *accountsync.Account) (*accountsync.Account, error) {
	customerID := account.BillingCustomerID
	if customerID == "" {
		customer, err := h.config.Provider.CustomerByEmail(ctx, accountsync.NormalizeEmail(account.Email))
		if err != nil {
			if errors.Is(err, billing.ErrCustomerNotFound) {
				// No billing record at all: a free user, nothing to repair.
				return account, nil
			}
			return nil, err
		}
		customerID = customer.ID
	}

	subs, err := h.config.Provider.Subscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sub := pickSubscription(subs)
	if sub == nil {
		return account, nil
	}

	now := time.Now().UTC()
	stored := &accountsync.Subscription{
		ID:              sub.ID,
		Status:          sub.Status,
		Active:          accountsync.IsActiveStatus(sub.Status),
		Plan:            accountsync.Plan{ID: sub.PriceID, Name: sub.PlanName},
		NextBillingDate: sub.NextBilledAt,
		Amount:          sub.Amount,
		Interval:        sub.Interval,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	patch := &accountsync.AccountPatch{
		BillingCustomerID: &customerID,
		Subscription:      stored,
	}

	licenseKey := account.LicenseKey
	if licenseKey == "" {
		keys, err := h.config.Provider.LicenseKeys(ctx, sub.ID)
		if err != nil {
			h.config.Logger.Warn("Failed to fetch license keys during sync",
				accountsync.Field{Key: "subscription_id", Value: sub.ID},
				accountsync.Field{Key: "error", Value: err.Error()},
			)
		} else if len(keys) > 0 {
			licenseKey = keys[0].Key
			patch.LicenseKey = &licenseKey
		}
	}

	// Only seed credits for an account that never received an allocation;
	// an existing balance is the webhook path's to manage.
	credits := account.CreditUsage
	if h.config.Catalog != nil && account.CreditUsage.Total == 0 {
		if allocation := h.config.Catalog.SubscriptionCredits(sub.PriceID); allocation > 0 {
			credits = accountsync.CreditUsage{Used: 0, Total: allocation}
			patch.CreditUsage = &credits
		}
	}

	if err := h.config.Store.Update(ctx, account.UserID, patch); err != nil {
		return nil, fmt.Errorf("failed to write repaired account: %w", err)
	}

	repaired := *account
	repaired.BillingCustomerID = customerID
	repaired.Subscription = stored
	repaired.CreditUsage = credits
	repaired.LicenseKey = licenseKey
	return &repaired, nil
}

// pickSubscription chooses the subscription to surface on the dashboard:
// the first active one, else the most recent record the provider returned.
func pickSubscription(subs []billing.Subscription) *billing.Subscription {
	for i := range subs {
		if accountsync.IsActiveStatus(subs[i].Status) {
			return &subs[i]
		}
	}
	if len(subs) > 0 {
		return &subs[0]
	}
	return nil
}

// GetTransactions returns the user's provider-side payment history.
// Supports ?type= to filter by transaction type and ?limit= to cap the
// result count.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		h.handleError(w, fmt.Errorf("identity not found"), http.StatusUnauthorized)
		return
	}
	if h.config.Provider == nil {
		h.handleError(w, billing.ErrProviderNotConfigured, http.StatusServiceUnavailable)
		return
	}

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.handleError(w, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		if n > maxTransactionLimit {
			n = maxTransactionLimit
		}
		limit = n
	}

	customerID, err := h.customerID(ctx, id.UserID)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	if customerID == "" {
		h.writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: []billing.Transaction{}})
		return
	}

	txns, err := h.config.Provider.Transactions(ctx, customerID, limit)
	if err != nil {
		h.handleError(w, fmt.Errorf("failed to fetch transactions: %w", err), http.StatusBadGateway)
		return
	}

	if typeFilter := r.URL.Query().Get("type"); typeFilter != "" {
		filtered := txns[:0]
		for _, txn := range txns {
			if txn.Type == typeFilter {
				filtered = append(filtered, txn)
			}
		}
		txns = filtered
	}
	if txns == nil {
		txns = []billing.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: txns})
}

// PostSubscription creates or cancels a subscription through the provider.
func (h *Handler) PostSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		h.handleError(w, fmt.Errorf("identity not found"), http.StatusUnauthorized)
		return
	}
	if h.config.Provider == nil {
		h.handleError(w, billing.ErrProviderNotConfigured, http.StatusServiceUnavailable)
		return
	}

	var req SubscriptionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case actionCreate:
		if req.PriceID == "" {
			h.handleError(w, fmt.Errorf("price_id is required"), http.StatusBadRequest)
			return
		}
		customerID, err := h.customerID(ctx, id.UserID)
		if err != nil {
			h.handleError(w, err, http.StatusInternalServerError)
			return
		}
		if customerID == "" {
			h.handleError(w, fmt.Errorf("no billing customer for user"), http.StatusConflict)
			return
		}
		sub, err := h.config.Provider.CreateSubscription(ctx, customerID, req.PriceID)
		if err != nil {
			h.handleError(w, fmt.Errorf("failed to create subscription: %w", err), http.StatusBadGateway)
			return
		}
		h.writeJSON(w, http.StatusCreated, sub)

	case actionCancel:
		subID := req.SubscriptionID
		if subID == "" {
			account, err := h.config.Store.Get(ctx, id.UserID)
			if err == nil && account.Subscription != nil {
				subID = account.Subscription.ID
			}
		}
		if subID == "" {
			h.handleError(w, fmt.Errorf("no subscription to cancel"), http.StatusConflict)
			return
		}
		if err := h.config.Provider.CancelSubscription(ctx, subID, req.Immediate); err != nil {
			h.handleError(w, fmt.Errorf("failed to cancel subscription: %w", err), http.StatusBadGateway)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		h.handleError(w, fmt.Errorf("unknown action %q", req.Action), http.StatusBadRequest)
	}
}

// ValidateLicense checks a presented license key against the account on file.
func (h *Handler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		h.handleError(w, fmt.Errorf("identity not found"), http.StatusUnauthorized)
		return
	}

	var req ValidateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LicenseKey == "" {
		h.handleError(w, fmt.Errorf("license_key is required"), http.StatusBadRequest)
		return
	}

	account, err := h.config.Store.Get(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, accountsync.ErrAccountNotFound) {
			h.writeJSON(w, http.StatusOK, ValidateLicenseResponse{Valid: false})
			return
		}
		h.handleError(w, fmt.Errorf("failed to load account: %w", err), http.StatusInternalServerError)
		return
	}

	presented := strings.ToUpper(strings.TrimSpace(req.LicenseKey))
	valid := account.LicenseKey != "" &&
		subtle.ConstantTimeCompare([]byte(presented), []byte(account.LicenseKey)) == 1
	h.writeJSON(w, http.StatusOK, ValidateLicenseResponse{Valid: valid})
}

// GetClientToken returns the provider's client-side checkout token.
func (h *Handler) GetClientToken(w http.ResponseWriter, r *http.Request) {
	if h.config.ClientToken == "" {
		h.handleError(w, fmt.Errorf("client token not configured"), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, ClientTokenResponse{ClientToken: h.config.ClientToken})
}

// customerID resolves the billing customer id for a user, preferring the
// stored id and falling back to a provider email lookup. Returns "" when the
// user has no billing record.
func (h *Handler) customerID(ctx context.Context, userID string) (string, error) {
	account, err := h.config.Store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, accountsync.ErrAccountNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load account: %w", err)
	}
	if account.BillingCustomerID != "" {
		return account.BillingCustomerID, nil
	}
	if account.Email == "" {
		return "", nil
	}
	customer, err := h.config.Provider.CustomerByEmail(ctx, accountsync.NormalizeEmail(account.Email))
	if err != nil {
		if errors.Is(err, billing.ErrCustomerNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up customer: %w", err)
	}
	return customer.ID, nil
}

// withAuth verifies the bearer credential and stores the identity on the
// request context.
func (h *Handler) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			h.handleError(w, auth.ErrTokenRequired, http.StatusUnauthorized)
			return
		}
		id, err := h.config.Verifier.Verify(r.Context(), token)
		if err != nil {
			h.handleError(w, auth.ErrInvalidToken, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// withCORS sets CORS headers and answers preflight requests.
func (h *Handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func dashboardResponse(account *accountsync.Account) DashboardResponse {
	resp := DashboardResponse{
		UserID:     account.UserID,
		Email:      account.Email,
		Credits:    creditsView(account.CreditUsage),
		LicenseKey: account.LicenseKey,
	}
	if sub := account.Subscription; sub != nil {
		resp.Subscription = &SubscriptionView{
			ID:              sub.ID,
			Status:          sub.Status,
			Active:          sub.Active,
			Plan:            PlanView{ID: sub.Plan.ID, Name: sub.Plan.Name},
			NextBillingDate: sub.NextBillingDate,
			Amount:          sub.Amount,
			Interval:        sub.Interval,
		}
	}
	return resp
}

func creditsView(usage accountsync.CreditUsage) CreditsView {
	remaining := usage.Total - usage.Used
	if remaining < 0 {
		remaining = 0
	}
	return CreditsView{Used: usage.Used, Total: usage.Total, Remaining: remaining}
}

// handleError writes a JSON error body with the given status code
func (h *Handler) handleError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		_ = encodeErr
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}
