package billing

import "time"

// Metrics defines the interface for tracking billing provider API traffic.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordAPICall records an API call to the billing provider.
	// endpoint: The API endpoint called (e.g., "/customers", "/subscriptions")
	// status: HTTP status code as string (e.g., "200", "404", "500")
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordAPICall(_, _, _ string)                       {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration) {}
