package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements accountsync.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal  *prometheus.CounterVec
	webhookDuration     *prometheus.HistogramVec
	resolutionTotal     *prometheus.CounterVec
	creditGrantsTotal   *prometheus.CounterVec
	creditsGrantedTotal *prometheus.CounterVec
	dashboardSyncsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events processed.",
		}, []string{"event_type", "status"}),

		webhookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_duration_seconds",
			Help:      "Latency of webhook event processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		resolutionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_resolution_total",
			Help:      "Total number of customer-to-account resolution attempts.",
		}, []string{"strategy", "outcome"}),

		creditGrantsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_grants_total",
			Help:      "Total number of credit grant operations.",
		}, []string{"reason"}),

		creditsGrantedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Total credits granted across all accounts.",
		}, []string{"reason"}),

		dashboardSyncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_syncs_total",
			Help:      "Total number of dashboard fallback syncs against the billing provider.",
		}, []string{"status"}),
	}
}

// RecordWebhookEvent implements accountsync.Metrics
func (m *Metrics) RecordWebhookEvent(eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

// RecordWebhookDuration implements accountsync.Metrics
func (m *Metrics) RecordWebhookDuration(eventType string, duration time.Duration) {
	m.webhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordResolution implements accountsync.Metrics
func (m *Metrics) RecordResolution(strategy, outcome string) {
	m.resolutionTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordCreditGrant implements accountsync.Metrics
func (m *Metrics) RecordCreditGrant(reason string, credits int) {
	m.creditGrantsTotal.WithLabelValues(reason).Inc()
	m.creditsGrantedTotal.WithLabelValues(reason).Add(float64(credits))
}

// RecordDashboardSync implements accountsync.Metrics
func (m *Metrics) RecordDashboardSync(status string) {
	m.dashboardSyncsTotal.WithLabelValues(status).Inc()
}
