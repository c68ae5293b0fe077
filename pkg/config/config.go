// Package config loads and validates the gateway's configuration surface:
// the upstream credential source, retry/timeout tuning, rate-limit knobs,
// the HTTP client pool, and the behavior toggles (truncation recovery,
// fake-reasoning injection, tool description relocation). Every field can
// be set from a YAML file; environment variables always take precedence,
// matching the reference implementation's override order.
package config

import "time"

// Config is the gateway's complete runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	HTTPClient HTTPClientConfig `yaml:"http_client"`
	Behavior BehaviorConfig `yaml:"behavior"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig controls the public-facing HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address:port the gateway listens on.
	ListenAddress string `yaml:"listen_address"`

	// ProxyAPIKey holds PROXY_API_KEY. It is only loaded: no middleware
	// checks it, so client requests are authenticated by pkg/apikeys alone.
	ProxyAPIKey string `yaml:"-"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`

	CORS CORSConfig `yaml:"cors"`

	APIKeysDBPath    string `yaml:"api_keys_db_path"`
	AccountsDBPath   string `yaml:"accounts_db_path"`
	UsageDBPath      string `yaml:"usage_db_path"`
	TruncationDBPath string `yaml:"truncation_db_path"`
}

// CORSConfig controls cross-origin request handling.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// UpstreamConfig controls how the gateway talks to the upstream provider.
type UpstreamConfig struct {
	Region string `yaml:"region"`

	// Credential source: exactly one should be configured. RefreshToken is
	// a literal refresh token; CredsFile/CLIDBFile point at on-disk
	// credential stores the reference client also reads.
	RefreshToken string `yaml:"-"`
	CredsFile    string `yaml:"creds_file"`
	CLIDBFile    string `yaml:"cli_db_file"`

	MaxRetries              int           `yaml:"max_retries"`
	BaseRetryDelay          time.Duration `yaml:"base_retry_delay"`
	FirstTokenTimeout       time.Duration `yaml:"first_token_timeout"`
	FirstTokenMaxRetries    int           `yaml:"first_token_max_retries"`
	StreamingReadTimeout    time.Duration `yaml:"streaming_read_timeout"`
	TokenRefreshThreshold   time.Duration `yaml:"token_refresh_threshold"`

	VPNProxyURL string `yaml:"vpn_proxy_url"`

	HiddenModels    []string          `yaml:"hidden_models"`
	ModelAliases    map[string]string `yaml:"model_aliases"`
	HiddenFromList  []string          `yaml:"hidden_from_list"`
}

// RateLimitConfig controls local admission control ahead of the upstream.
type RateLimitConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MinInterval   time.Duration `yaml:"min_interval"`
	Backoff429    time.Duration `yaml:"backoff_429"`
}

// HTTPClientConfig controls the connection pool used to talk to the
// upstream.
type HTTPClientConfig struct {
	MaxConnections         int           `yaml:"max_connections"`
	MaxKeepAliveConnections int          `yaml:"max_keepalive_connections"`
	KeepAliveExpiry        time.Duration `yaml:"keepalive_expiry"`
	PoolTimeout            time.Duration `yaml:"pool_timeout"`
}

// BehaviorConfig toggles request/response transformation features that
// aren't purely about transport.
type BehaviorConfig struct {
	ToolDescriptionMaxLength int     `yaml:"tool_description_max_length"`
	TokenEstimateCorrection  float64 `yaml:"token_estimate_correction"`

	TruncationRecovery bool `yaml:"truncation_recovery"`

	FakeReasoning           FakeReasoningConfig `yaml:"fake_reasoning"`
}

// FakeReasoningConfig controls synthetic <thinking> tag injection for
// models that don't natively emit a reasoning channel.
type FakeReasoningConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Mode              string `yaml:"mode"` // as_reasoning_content | strip_tags | remove | pass
	MaxThinkingLength int    `yaml:"max_thinking_length"`
	InjectForModels   []string `yaml:"inject_for_models"`
	TagName           string `yaml:"tag_name"`
}

// MetricsConfig controls the Prometheus metrics surface exposed at
// Server.ListenAddress + "/metrics".
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
	TokenCountBuckets      []float64 `yaml:"token_count_buckets"`
}
