package metrics

import (
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{Enabled: true, Namespace: "relay", Subsystem: "gateway"}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollector_RecordRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	collector.RecordRequest("openai", "claude-sonnet-4.5", "success", 500*time.Millisecond, 1500)

	got := counterValue(t, collector.requestMetrics.requestsTotal.WithLabelValues("openai", "claude-sonnet-4.5", "success"))
	if got != 1 {
		t.Errorf("requestsTotal = %v, want 1", got)
	}
	tokens := counterValue(t, collector.requestMetrics.tokensTotal.WithLabelValues("openai", "claude-sonnet-4.5", "total"))
	if tokens != 1500 {
		t.Errorf("tokensTotal = %v, want 1500", tokens)
	}
}

func TestCollector_RecordRequest_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRequest("anthropic", "claude-opus-4.6", "success", time.Second, 100)

	got := counterValue(t, collector.requestMetrics.requestsTotal.WithLabelValues("anthropic", "claude-opus-4.6", "success"))
	if got != 0 {
		t.Errorf("requestsTotal = %v, want 0 when collector disabled", got)
	}
}

func TestCollector_AccountHealthAndErrors(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.UpdateAccountHealth("prod-1", true)
	if v := gaugeValue(t, collector.accountMetrics.health.WithLabelValues("prod-1")); v != 1 {
		t.Errorf("health = %v, want 1", v)
	}

	collector.UpdateAccountHealth("prod-1", false)
	if v := gaugeValue(t, collector.accountMetrics.health.WithLabelValues("prod-1")); v != 0 {
		t.Errorf("health = %v, want 0", v)
	}

	collector.RecordAccountError("prod-1", "rate_limit")
	if v := counterValue(t, collector.accountMetrics.errors.WithLabelValues("prod-1", "rate_limit")); v != 1 {
		t.Errorf("errors = %v, want 1", v)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("expected first two label sets to be allowed")
	}
	if !limiter.Allow("a") {
		t.Fatal("expected already-tracked label set to stay allowed")
	}
	if limiter.Allow("c") {
		t.Fatal("expected third distinct label set to be rejected past the limit")
	}
	if limiter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", limiter.Count())
	}
}

func TestCollector_Registry(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)
	if collector.Registry() != registry {
		t.Error("Registry() did not return the registry passed to NewCollector")
	}
}
