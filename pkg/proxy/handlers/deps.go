// Package handlers implements the gateway's public HTTP surface: the two
// client-dialect chat endpoints, the models listing, and liveness/readiness
// probes. Each handler is a thin orchestrator over the pipeline packages —
// resolution, translation, the unified build step, the account pool, the
// upstream client, and the dialect re-emitters — none of the request
// handling logic lives here beyond wiring those pieces together.
package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/accounts/pool"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/ratelimit"
	"mercator-hq/relay/pkg/resolver"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/truncation"
	"mercator-hq/relay/pkg/upstream"
	"mercator-hq/relay/pkg/usage"
)

// MaxRequestBodySize bounds how much of an incoming request body a handler
// will read before giving up, guarding against a client streaming an
// unbounded body at the gateway.
const MaxRequestBodySize = 10 << 20 // 10MB

// Deps bundles every component a handler needs, built once at startup and
// shared across requests.
type Deps struct {
	Resolver   *resolver.Resolver
	Pool       *pool.Pool
	Client     *upstream.Client
	Models     *upstream.ModelsCache
	Limiter    *ratelimit.Limiter
	Truncation *truncation.Store
	Usage      *usage.Store
	Metrics    *metrics.Collector

	Behavior config.BehaviorConfig
	Upstream config.UpstreamConfig

	Log *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Deps) generateConfig() upstream.GenerateConfig {
	return upstream.GenerateConfig{
		FirstTokenTimeout:    d.Upstream.FirstTokenTimeout,
		FirstTokenMaxRetries: d.Upstream.FirstTokenMaxRetries,
		StreamingReadTimeout: d.Upstream.StreamingReadTimeout,
	}
}

func (d *Deps) shouldInjectThinking(model string) bool {
	fr := d.Behavior.FakeReasoning
	if !fr.Enabled {
		return false
	}
	if len(fr.InjectForModels) == 0 {
		return true
	}
	for _, m := range fr.InjectForModels {
		if m == model {
			return true
		}
	}
	return false
}

func durationSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func (d *Deps) recordAccountOutcome(accountID int64, errType string) {
	if d.Metrics == nil {
		return
	}
	account := fmt.Sprintf("%d", accountID)
	if errType == "" {
		d.Metrics.UpdateAccountHealth(account, true)
		return
	}
	d.Metrics.UpdateAccountHealth(account, false)
	d.Metrics.RecordAccountError(account, errType)
}

func (d *Deps) recordRequestMetric(endpoint, model string, statusCode int, start time.Time, tokens int) {
	if d.Metrics == nil {
		return
	}
	dialect := "anthropic"
	if endpoint == "/v1/chat/completions" {
		dialect = "openai"
	}
	status := "success"
	if statusCode >= 400 {
		status = "error"
	}
	d.Metrics.RecordRequest(dialect, model, status, time.Since(start), tokens)
}
