package config

import "time"

// Default values, applied by ApplyDefaults to any zero-valued field.
const (
	DefaultListenAddress = "0.0.0.0:8080"

	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute // streaming responses can run long
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultAPIKeysDBPath    = "data/api_keys.db"
	DefaultAccountsDBPath   = "data/accounts.db"
	DefaultUsageDBPath      = "data/usage.db"
	DefaultTruncationDBPath = "data/truncation.db"

	DefaultRegion = "us-east-1"

	DefaultMaxRetries           = 3
	DefaultBaseRetryDelay       = 500 * time.Millisecond
	DefaultFirstTokenTimeout    = 15 * time.Second
	DefaultFirstTokenMaxRetries = 2
	DefaultStreamingReadTimeout = 5 * time.Minute
	DefaultTokenRefreshThreshold = 10 * time.Minute

	DefaultRateLimitMaxConcurrent = 4
	DefaultRateLimitMinInterval   = 100 * time.Millisecond
	DefaultRateLimit429Backoff    = 10 * time.Second

	DefaultHTTPMaxConnections          = 100
	DefaultHTTPMaxKeepAliveConnections = 20
	DefaultHTTPKeepAliveExpiry         = 90 * time.Second
	DefaultHTTPPoolTimeout             = 10 * time.Second

	DefaultToolDescriptionMaxLength = 10000
	DefaultTokenEstimateCorrection  = 0.95

	DefaultFakeReasoningMode              = "as_reasoning_content"
	DefaultFakeReasoningMaxThinkingLength = 4096
	DefaultFakeReasoningTagName           = "thinking"

	DefaultMetricsNamespace = "relay"
	DefaultMetricsSubsystem = "gateway"
)

// ApplyDefaults fills in zero-valued fields with their defaults. It is
// idempotent and safe to call on a partially-populated Config.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.APIKeysDBPath == "" {
		cfg.Server.APIKeysDBPath = DefaultAPIKeysDBPath
	}
	if cfg.Server.AccountsDBPath == "" {
		cfg.Server.AccountsDBPath = DefaultAccountsDBPath
	}
	if cfg.Server.UsageDBPath == "" {
		cfg.Server.UsageDBPath = DefaultUsageDBPath
	}
	if cfg.Server.TruncationDBPath == "" {
		cfg.Server.TruncationDBPath = DefaultTruncationDBPath
	}

	if cfg.Upstream.Region == "" {
		cfg.Upstream.Region = DefaultRegion
	}
	if cfg.Upstream.MaxRetries == 0 {
		cfg.Upstream.MaxRetries = DefaultMaxRetries
	}
	if cfg.Upstream.BaseRetryDelay == 0 {
		cfg.Upstream.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if cfg.Upstream.FirstTokenTimeout == 0 {
		cfg.Upstream.FirstTokenTimeout = DefaultFirstTokenTimeout
	}
	if cfg.Upstream.FirstTokenMaxRetries == 0 {
		cfg.Upstream.FirstTokenMaxRetries = DefaultFirstTokenMaxRetries
	}
	if cfg.Upstream.StreamingReadTimeout == 0 {
		cfg.Upstream.StreamingReadTimeout = DefaultStreamingReadTimeout
	}
	if cfg.Upstream.TokenRefreshThreshold == 0 {
		cfg.Upstream.TokenRefreshThreshold = DefaultTokenRefreshThreshold
	}

	if cfg.RateLimit.MaxConcurrent == 0 {
		cfg.RateLimit.MaxConcurrent = DefaultRateLimitMaxConcurrent
	}
	if cfg.RateLimit.MinInterval == 0 {
		cfg.RateLimit.MinInterval = DefaultRateLimitMinInterval
	}
	if cfg.RateLimit.Backoff429 == 0 {
		cfg.RateLimit.Backoff429 = DefaultRateLimit429Backoff
	}

	if cfg.HTTPClient.MaxConnections == 0 {
		cfg.HTTPClient.MaxConnections = DefaultHTTPMaxConnections
	}
	if cfg.HTTPClient.MaxKeepAliveConnections == 0 {
		cfg.HTTPClient.MaxKeepAliveConnections = DefaultHTTPMaxKeepAliveConnections
	}
	if cfg.HTTPClient.KeepAliveExpiry == 0 {
		cfg.HTTPClient.KeepAliveExpiry = DefaultHTTPKeepAliveExpiry
	}
	if cfg.HTTPClient.PoolTimeout == 0 {
		cfg.HTTPClient.PoolTimeout = DefaultHTTPPoolTimeout
	}

	if cfg.Behavior.ToolDescriptionMaxLength == 0 {
		cfg.Behavior.ToolDescriptionMaxLength = DefaultToolDescriptionMaxLength
	}
	if cfg.Behavior.TokenEstimateCorrection == 0 {
		cfg.Behavior.TokenEstimateCorrection = DefaultTokenEstimateCorrection
	}
	if cfg.Behavior.FakeReasoning.Mode == "" {
		cfg.Behavior.FakeReasoning.Mode = DefaultFakeReasoningMode
	}
	if cfg.Behavior.FakeReasoning.MaxThinkingLength == 0 {
		cfg.Behavior.FakeReasoning.MaxThinkingLength = DefaultFakeReasoningMaxThinkingLength
	}
	if cfg.Behavior.FakeReasoning.TagName == "" {
		cfg.Behavior.FakeReasoning.TagName = DefaultFakeReasoningTagName
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}
