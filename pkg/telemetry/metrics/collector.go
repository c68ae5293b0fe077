package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the orchestrator for all Prometheus metrics relay exposes.
// It owns metric registration and gives handlers and the account pool a
// single place to record request volume, latency, tokens, and per-account
// health without reaching into prometheus directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	accountMetrics *ProviderMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is used rather than the global default, so tests and
// multiple instances never collide.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "relay"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.accountMetrics = NewProviderMetrics(cfg, registry)

	return c
}

// RecordRequest records metrics for a completed gateway request.
//
// dialect is the client-facing API shape ("openai" or "anthropic"),
// model is the resolved upstream model ID, and status is "success",
// "error", or "blocked".
func (c *Collector) RecordRequest(dialect, model, status string, duration time.Duration, tokens int) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s:%s", dialect, model, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		model = "other"
	}

	c.requestMetrics.RecordRequest(dialect, model, status, duration, tokens)
}

// UpdateAccountHealth updates the health gauge for an upstream account.
func (c *Collector) UpdateAccountHealth(account string, healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.accountMetrics.UpdateHealth(account, healthy)
}

// RecordAccountError records an error surfaced by an upstream account.
func (c *Collector) RecordAccountError(account, errorType string) {
	if !c.config.Enabled {
		return
	}
	c.accountMetrics.RecordError(account, errorType)
}

// Registry returns the Prometheus registry backing this collector, for
// mounting a /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations recorded per metric family.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the given
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be recorded: true if it's already
// tracked or the limit hasn't been reached, false if recording it would
// exceed the cardinality limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
