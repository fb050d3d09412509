package paddle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokaihq/paddlesync/pkg/billing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider(Config{APIKey: "pdl_test", BaseURL: server.URL})
	require.NoError(t, err)
	return p
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)

	_, err = NewProvider(Config{APIKey: "   "})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)
}

func TestProvider_CustomerByEmail(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers", r.URL.Path)
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer pdl_test", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"id": "ctm_1", "email": "alice@example.com", "name": "Alice"},
			},
		})
	})

	cust, err := p.CustomerByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", cust.ID)
	assert.Equal(t, "Alice", cust.Name)
}

func TestProvider_CustomerByEmail_NoMatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	})

	_, err := p.CustomerByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
}

func TestProvider_Customer_NotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := p.Customer(context.Background(), "ctm_missing")
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
}

func TestProvider_Subscriptions(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.Equal(t, "ctm_1", r.URL.Query().Get("customer_id"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"id":             "sub_1",
					"status":         "active",
					"customer_id":    "ctm_1",
					"next_billed_at": "2026-04-15T00:00:00Z",
					"items": []map[string]interface{}{
						{
							"price": map[string]interface{}{
								"id":          "pri_starter",
								"description": "Starter",
								"unit_price": map[string]string{
									"amount": "2900",
								},
								"billing_cycle": map[string]string{
									"interval": "month",
								},
							},
						},
					},
				},
			},
		})
	})

	subs, err := p.Subscriptions(context.Background(), "ctm_1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].ID)
	assert.Equal(t, "pri_starter", subs[0].PriceID)
	assert.Equal(t, "Starter", subs[0].PlanName)
	assert.Equal(t, 29.0, subs[0].Amount)
	assert.Equal(t, "month", subs[0].Interval)
}

func TestProvider_Transactions(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"id":            "txn_1",
					"status":        "completed",
					"currency_code": "EUR",
					"billed_at":     "2026-03-15T00:00:00Z",
					"items": []map[string]interface{}{
						{"price": map[string]interface{}{"description": "Starter"}},
					},
					"details": map[string]interface{}{
						"totals": map[string]string{"grand_total": "2900"},
					},
				},
				{
					"id":         "txn_2",
					"created_at": "2026-02-15T00:00:00Z",
				},
			},
		})
	})

	txns, err := p.Transactions(context.Background(), "ctm_1", 5)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "txn_1", txns[0].ID)
	assert.Equal(t, 29.0, txns[0].Amount)
	assert.Equal(t, "EUR", txns[0].Currency)
	assert.Equal(t, "Starter", txns[0].Description)
	assert.Equal(t, "2026-03-15T00:00:00Z", txns[0].Date)

	// Sparse records fall back to defaults.
	assert.Equal(t, "completed", txns[1].Status)
	assert.Equal(t, "USD", txns[1].Currency)
	assert.Equal(t, "Payment", txns[1].Description)
	assert.Equal(t, "2026-02-15T00:00:00Z", txns[1].Date)
}

func TestProvider_CreateSubscription(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "ctm_1", payload["customer_id"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"id":          "sub_new",
				"status":      "active",
				"customer_id": "ctm_1",
			},
		})
	})

	sub, err := p.CreateSubscription(context.Background(), "ctm_1", "pri_starter")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.ID)
}

func TestProvider_CancelSubscription(t *testing.T) {
	var gotEffectiveFrom string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions/sub_1/cancel", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotEffectiveFrom = payload["effective_from"]

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{}})
	})

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_1", false))
	assert.Equal(t, "next_billing_period", gotEffectiveFrom)

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_1", true))
	assert.Equal(t, "immediately", gotEffectiveFrom)
}

func TestProvider_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Subscriptions(context.Background(), "ctm_1")
	assert.ErrorIs(t, err, billing.ErrProviderAPIError)
}

func TestProvider_CustomerEmail(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"id": "ctm_1", "email": "alice@example.com"},
		})
	})

	email, err := p.CustomerEmail(context.Background(), "ctm_1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/customers", endpointLabel("/customers"))
	assert.Equal(t, "/customers", endpointLabel("/customers/ctm_1"))
	assert.Equal(t, "/subscriptions", endpointLabel("/subscriptions/sub_1/cancel"))
	assert.Equal(t, "/", endpointLabel("/"))
}
