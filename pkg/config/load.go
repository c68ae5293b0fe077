package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file (if path is non-empty and the
// file exists), applies defaults, then applies environment variable
// overrides — env vars always win, matching the reference client's
// override order. It then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides reads the gateway's documented environment variables,
// overriding any value already set from file or defaults.
func applyEnvOverrides(cfg *Config) {
	str(&cfg.Server.ProxyAPIKey, "PROXY_API_KEY")
	str(&cfg.Upstream.Region, "REGION")
	str(&cfg.Upstream.RefreshToken, "REFRESH_TOKEN")
	str(&cfg.Upstream.CredsFile, "KIRO_CREDS_FILE")
	str(&cfg.Upstream.CLIDBFile, "KIRO_CLI_DB_FILE")

	intVal(&cfg.Upstream.MaxRetries, "MAX_RETRIES")
	duration(&cfg.Upstream.BaseRetryDelay, "BASE_RETRY_DELAY")
	duration(&cfg.Upstream.FirstTokenTimeout, "FIRST_TOKEN_TIMEOUT")
	intVal(&cfg.Upstream.FirstTokenMaxRetries, "FIRST_TOKEN_MAX_RETRIES")
	duration(&cfg.Upstream.StreamingReadTimeout, "STREAMING_READ_TIMEOUT")
	duration(&cfg.Upstream.TokenRefreshThreshold, "TOKEN_REFRESH_THRESHOLD")
	str(&cfg.Upstream.VPNProxyURL, "VPN_PROXY_URL")
	csv(&cfg.Upstream.HiddenModels, "HIDDEN_MODELS")
	csv(&cfg.Upstream.HiddenFromList, "HIDDEN_FROM_LIST")
	kvMap(&cfg.Upstream.ModelAliases, "MODEL_ALIASES")

	intVal(&cfg.RateLimit.MaxConcurrent, "RATE_LIMIT_MAX_CONCURRENT")
	duration(&cfg.RateLimit.MinInterval, "RATE_LIMIT_MIN_INTERVAL")
	duration(&cfg.RateLimit.Backoff429, "RATE_LIMIT_429_BACKOFF")

	intVal(&cfg.HTTPClient.MaxConnections, "HTTP_MAX_CONNECTIONS")
	intVal(&cfg.HTTPClient.MaxKeepAliveConnections, "HTTP_MAX_KEEPALIVE_CONNECTIONS")
	duration(&cfg.HTTPClient.KeepAliveExpiry, "HTTP_KEEPALIVE_EXPIRY")
	duration(&cfg.HTTPClient.PoolTimeout, "HTTP_POOL_TIMEOUT")

	intVal(&cfg.Behavior.ToolDescriptionMaxLength, "TOOL_DESCRIPTION_MAX_LENGTH")
	floatVal(&cfg.Behavior.TokenEstimateCorrection, "TOKEN_ESTIMATE_CORRECTION")
	boolVal(&cfg.Behavior.TruncationRecovery, "TRUNCATION_RECOVERY")

	boolVal(&cfg.Behavior.FakeReasoning.Enabled, "FAKE_REASONING_ENABLED")
	str(&cfg.Behavior.FakeReasoning.Mode, "FAKE_REASONING_MODE")
	intVal(&cfg.Behavior.FakeReasoning.MaxThinkingLength, "FAKE_REASONING_MAX_THINKING_LENGTH")
	csv(&cfg.Behavior.FakeReasoning.InjectForModels, "FAKE_REASONING_INJECT_FOR_MODELS")
	str(&cfg.Behavior.FakeReasoning.TagName, "FAKE_REASONING_TAG_NAME")

	boolVal(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	str(&cfg.Metrics.Namespace, "METRICS_NAMESPACE")
	str(&cfg.Metrics.Subsystem, "METRICS_SUBSYSTEM")
}

func str(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func intVal(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatVal(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolVal(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func duration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func csv(dst *[]string, env string) {
	if v := os.Getenv(env); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func kvMap(dst *map[string]string, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	m := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	*dst = m
}
