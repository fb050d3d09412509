package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("subscription.created", "processed")
	metrics.RecordWebhookEvent("subscription.updated", "skipped")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) == 0 {
		t.Error("Expected metrics to be recorded")
	}
}

func TestRecordWebhookDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookDuration("subscription.created", 50*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) == 0 {
		t.Error("Expected webhook duration metrics to be recorded")
	}
}

func TestRecordResolution(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordResolution("stored_id", "hit")
	metrics.RecordResolution("payload_email", "miss")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) == 0 {
		t.Error("Expected resolution metrics to be recorded")
	}
}

func TestRecordDashboardSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordDashboardSync("repaired")
	metrics.RecordDashboardSync("failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) == 0 {
		t.Error("Expected dashboard sync metrics to be recorded")
	}
}

func TestRecordCreditGrant_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordCreditGrant("renewal", 500)
	metrics.RecordCreditGrant("plan_change", 1000)
	metrics.RecordCreditGrant("topup", 100)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var granted *dto.MetricFamily
	for _, m := range families {
		if m.GetName() == "test_credits_granted_total" {
			granted = m
			break
		}
	}

	if granted == nil {
		t.Fatal("Expected to find credits granted metric")
	}

	// One time series per grant reason
	if len(granted.Metric) != 3 {
		t.Errorf("Expected 3 time series, got %d", len(granted.Metric))
	}

	for _, m := range granted.Metric {
		if len(m.Label) == 1 && m.Label[0].GetValue() == "renewal" {
			if got := m.Counter.GetValue(); got != 500 {
				t.Errorf("Expected 500 credits granted for renewal, got %v", got)
			}
		}
	}
}

func TestMultipleOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("subscription.created", "processed")
	metrics.RecordWebhookDuration("subscription.created", 5*time.Millisecond)
	metrics.RecordResolution("provider_email", "hit")
	metrics.RecordCreditGrant("renewal", 500)
	metrics.RecordDashboardSync("clean")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) < 5 {
		t.Errorf("Expected at least 5 metric families, got %d", len(families))
	}
}
