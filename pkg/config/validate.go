package config

import "fmt"

// Validate checks invariants Load's defaults/env overrides can't guarantee
// on their own: presence of an upstream credential source and sane numeric
// ranges.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("config: server.listen_address must not be empty")
	}
	if cfg.Upstream.RefreshToken == "" && cfg.Upstream.CredsFile == "" && cfg.Upstream.CLIDBFile == "" {
		return fmt.Errorf("config: an upstream credential source is required (REFRESH_TOKEN, KIRO_CREDS_FILE, or KIRO_CLI_DB_FILE)")
	}
	if cfg.Upstream.MaxRetries < 0 {
		return fmt.Errorf("config: upstream.max_retries must be >= 0")
	}
	if cfg.Upstream.FirstTokenMaxRetries < 0 {
		return fmt.Errorf("config: upstream.first_token_max_retries must be >= 0")
	}
	if cfg.RateLimit.MaxConcurrent < 1 {
		return fmt.Errorf("config: rate_limit.max_concurrent must be >= 1")
	}
	if cfg.Behavior.TokenEstimateCorrection <= 0 {
		return fmt.Errorf("config: behavior.token_estimate_correction must be > 0")
	}
	switch cfg.Behavior.FakeReasoning.Mode {
	case "as_reasoning_content", "strip_tags", "remove", "pass":
	default:
		return fmt.Errorf("config: behavior.fake_reasoning.mode %q is not one of as_reasoning_content, strip_tags, remove, pass", cfg.Behavior.FakeReasoning.Mode)
	}
	return nil
}
