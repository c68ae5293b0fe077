// Package metrics provides Prometheus metrics for the relay gateway.
//
// # Overview
//
// The metrics package tracks request volume, latency, and token counts per
// client dialect and upstream model, plus per-account health and error
// counts for the account pool. It is enabled with MetricsConfig.Enabled
// and mounted at GET /metrics via Collector.Handler.
//
// # Metrics Categories
//
//   - Request Metrics: request count, duration, and tokens by dialect/model/status
//   - Account Metrics: account health, latency, and error rates
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Metrics, nil)
//
//	collector.RecordRequest("openai", "claude-sonnet-4.5", "success", 900*time.Millisecond, 1500)
//	collector.UpdateAccountHealth("prod-1", true)
//	collector.RecordAccountError("prod-1", "rate_limit")
//
//	http.Handle("/metrics", collector.Handler())
//
// # Cardinality Management
//
// The collector limits distinct dialect/model/status combinations to
// 10,000; beyond that, the model label is folded into "other" rather than
// letting an unbounded model namespace blow up Prometheus cardinality.
package metrics
