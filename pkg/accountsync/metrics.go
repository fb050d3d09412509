package accountsync

import "time"

// Metrics defines the interface for tracking reconciliation operations.
// All methods are optional - components should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a processed webhook event.
	// status: "success", "error", or "skipped" (unknown type / duplicate)
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookDuration records how long it took to process a webhook.
	RecordWebhookDuration(eventType string, duration time.Duration)

	// RecordResolution records a user resolution attempt.
	// strategy: "customer_id", "provider_email", "payload_email", "none"
	// outcome: "hit" or "miss"
	RecordResolution(strategy, outcome string)

	// RecordCreditGrant records credits granted to an account.
	// reason: "allocation", "reset", "topup"
	RecordCreditGrant(reason string, credits int)

	// RecordDashboardSync records a dashboard fallback sync against the
	// billing provider. status: "success" or "error"
	RecordDashboardSync(status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                  {}
func (n *NoopMetrics) RecordWebhookDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordResolution(_, _ string)                    {}
func (n *NoopMetrics) RecordCreditGrant(_ string, _ int)               {}
func (n *NoopMetrics) RecordDashboardSync(_ string)                    {}
