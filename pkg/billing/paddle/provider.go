// Package paddle implements the billing.Provider interface against the
// Paddle Billing REST API.
package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yokaihq/paddlesync/pkg/billing"
)

const (
	providerName       = "paddle"
	sandboxAPIBaseURL  = "https://sandbox-api.paddle.com"
	liveAPIBaseURL     = "https://api.paddle.com"
	defaultHTTPTimeout = 10 * time.Second
)

// Config holds Paddle provider configuration.
type Config struct {
	// APIKey is the Paddle API key used as a bearer token (required).
	APIKey string

	// BaseURL overrides the API base URL. Defaults to the sandbox; pass
	// LiveBaseURL() for production.
	BaseURL string

	// HTTPClient is an optional HTTP client. If nil, a default client with a
	// 10s timeout is used. All outbound calls inherit its timeout.
	HTTPClient *http.Client

	// Metrics is an optional collector for API call counts and latency.
	Metrics billing.Metrics
}

// LiveBaseURL returns the production API base URL.
func LiveBaseURL() string { return liveAPIBaseURL }

// Provider implements billing.Provider for Paddle. It also satisfies
// accountsync.CustomerDirectory through CustomerEmail.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	metrics    billing.Metrics
}

// NewProvider creates a Paddle billing provider.
func NewProvider(config Config) (*Provider, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = sandboxAPIBaseURL
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		metrics:    metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// CustomerEmail implements accountsync.CustomerDirectory.
func (p *Provider) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	cust, err := p.Customer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return cust.Email, nil
}

func (p *Provider) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return p.do(req, out)
}

func (p *Provider) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Provider) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	endpoint := endpointLabel(req.URL.Path)
	start := time.Now()
	res, err := p.httpClient.Do(req)
	p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, endpoint, "error")
		return fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
	}
	defer func() { _ = res.Body.Close() }()
	p.metrics.RecordAPICall(providerName, endpoint, fmt.Sprintf("%d", res.StatusCode))

	switch {
	case res.StatusCode == http.StatusNotFound:
		return billing.ErrCustomerNotFound
	case res.StatusCode < 200 || res.StatusCode > 299:
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return fmt.Errorf("%w: status %d: %s", billing.ErrProviderAPIError, res.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: undecodable response: %v", billing.ErrProviderAPIError, err)
	}
	return nil
}

// endpointLabel reduces a request path to its first segment so metric label
// cardinality stays bounded regardless of resource ids in the path.
func endpointLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}
