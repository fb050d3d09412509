package paddle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/yokaihq/paddlesync/pkg/billing"
)

// Wire shapes for the slice of the Paddle API this provider consumes.

type customerData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type priceData struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Name        string `json:"name"`
	UnitPrice   struct {
		Amount string `json:"amount"`
	} `json:"unit_price"`
	BillingCycle struct {
		Interval string `json:"interval"`
	} `json:"billing_cycle"`
}

type itemData struct {
	Price priceData `json:"price"`
}

type subscriptionData struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	CustomerID   string     `json:"customer_id"`
	NextBilledAt string     `json:"next_billed_at"`
	Items        []itemData `json:"items"`
}

type transactionData struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	CurrencyCode string     `json:"currency_code"`
	BilledAt     string     `json:"billed_at"`
	CreatedAt    string     `json:"created_at"`
	Items        []itemData `json:"items"`
	Details      struct {
		Totals struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

// CustomerByEmail implements billing.Provider. Only active customers match,
// mirroring the dashboard's expectation that stale customers don't resolve.
func (p *Provider) CustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	var res struct {
		Data []customerData `json:"data"`
	}
	query := url.Values{"email": {email}, "status": {"active"}}
	if err := p.get(ctx, "/customers?"+query.Encode(), &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, billing.ErrCustomerNotFound
	}
	first := res.Data[0]
	return &billing.Customer{ID: first.ID, Email: first.Email, Name: first.Name}, nil
}

// Customer implements billing.Provider.
func (p *Provider) Customer(ctx context.Context, customerID string) (*billing.Customer, error) {
	var res struct {
		Data customerData `json:"data"`
	}
	if err := p.get(ctx, "/customers/"+url.PathEscape(customerID), &res); err != nil {
		return nil, err
	}
	return &billing.Customer{ID: res.Data.ID, Email: res.Data.Email, Name: res.Data.Name}, nil
}

// Subscriptions implements billing.Provider.
func (p *Provider) Subscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	var res struct {
		Data []subscriptionData `json:"data"`
	}
	query := url.Values{"customer_id": {customerID}}
	if err := p.get(ctx, "/subscriptions?"+query.Encode(), &res); err != nil {
		return nil, err
	}
	subs := make([]billing.Subscription, 0, len(res.Data))
	for _, d := range res.Data {
		subs = append(subs, mapSubscription(d))
	}
	return subs, nil
}

// LicenseKeys implements billing.Provider.
func (p *Provider) LicenseKeys(ctx context.Context, subscriptionID string) ([]billing.LicenseKey, error) {
	var res struct {
		Data []billing.LicenseKey `json:"data"`
	}
	if err := p.get(ctx, "/subscriptions/"+url.PathEscape(subscriptionID)+"/license-keys", &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Transactions implements billing.Provider. Records are reshaped for the
// dashboard: minor units become decimal amounts, the description comes from
// the first item's price.
func (p *Provider) Transactions(ctx context.Context, customerID string, limit int) ([]billing.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var res struct {
		Data []transactionData `json:"data"`
	}
	query := url.Values{"customer_id": {customerID}, "per_page": {strconv.Itoa(limit)}}
	if err := p.get(ctx, "/transactions?"+query.Encode(), &res); err != nil {
		return nil, err
	}

	txns := make([]billing.Transaction, 0, len(res.Data))
	for _, d := range res.Data {
		txn := billing.Transaction{
			ID:       d.ID,
			Status:   d.Status,
			Currency: d.CurrencyCode,
			Type:     "subscription",
			Date:     d.BilledAt,
		}
		if txn.Date == "" {
			txn.Date = d.CreatedAt
		}
		if txn.Status == "" {
			txn.Status = "completed"
		}
		if txn.Currency == "" {
			txn.Currency = "USD"
		}
		if total, err := strconv.ParseFloat(d.Details.Totals.GrandTotal, 64); err == nil {
			txn.Amount = total / 100
		}
		txn.Description = "Payment"
		if len(d.Items) > 0 {
			if desc := d.Items[0].Price.Description; desc != "" {
				txn.Description = desc
			} else if name := d.Items[0].Price.Name; name != "" {
				txn.Description = name
			}
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// CreateSubscription implements billing.Provider.
func (p *Provider) CreateSubscription(ctx context.Context, customerID, priceID string) (*billing.Subscription, error) {
	payload := map[string]interface{}{
		"customer_id": customerID,
		"items": []map[string]interface{}{
			{"price_id": priceID, "quantity": 1},
		},
	}
	var res struct {
		Data subscriptionData `json:"data"`
	}
	if err := p.post(ctx, "/subscriptions", payload, &res); err != nil {
		return nil, err
	}
	sub := mapSubscription(res.Data)
	return &sub, nil
}

// CancelSubscription implements billing.Provider.
func (p *Provider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error {
	effectiveFrom := "next_billing_period"
	if immediate {
		effectiveFrom = "immediately"
	}
	payload := map[string]string{"effective_from": effectiveFrom}
	path := "/subscriptions/" + url.PathEscape(subscriptionID) + "/cancel"
	if err := p.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("failed to cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func mapSubscription(d subscriptionData) billing.Subscription {
	sub := billing.Subscription{
		ID:           d.ID,
		Status:       d.Status,
		CustomerID:   d.CustomerID,
		NextBilledAt: d.NextBilledAt,
		Interval:     "month",
	}
	if len(d.Items) > 0 {
		price := d.Items[0].Price
		sub.PriceID = price.ID
		sub.PlanName = price.Description
		if sub.PlanName == "" {
			sub.PlanName = price.Name
		}
		if price.BillingCycle.Interval != "" {
			sub.Interval = price.BillingCycle.Interval
		}
		if amount, err := strconv.ParseFloat(price.UnitPrice.Amount, 64); err == nil {
			sub.Amount = amount / 100
		}
	}
	return sub
}
