package config

import (
	"os"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("REFRESH_TOKEN", "test-token")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Upstream.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want %d", cfg.Upstream.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Behavior.FakeReasoning.Mode != DefaultFakeReasoningMode {
		t.Errorf("fake reasoning mode = %q, want %q", cfg.Behavior.FakeReasoning.Mode, DefaultFakeReasoningMode)
	}
}

func TestLoadRejectsMissingCredentialSource(t *testing.T) {
	for _, env := range []string{"REFRESH_TOKEN", "KIRO_CREDS_FILE", "KIRO_CLI_DB_FILE"} {
		os.Unsetenv(env)
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when no upstream credential source is configured")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	if err := os.WriteFile(path, []byte("server:\n  listen_address: \"0.0.0.0:9999\"\nrate_limit:\n  max_concurrent: 3\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("REFRESH_TOKEN", "test-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Fatalf("expected file value to apply, got %q", cfg.Server.ListenAddress)
	}

	t.Setenv("RATE_LIMIT_MAX_CONCURRENT", "7")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.MaxConcurrent != 7 {
		t.Fatalf("expected env override to win, got %d", cfg.RateLimit.MaxConcurrent)
	}
}

func TestValidateRejectsBadFakeReasoningMode(t *testing.T) {
	cfg := &Config{Upstream: UpstreamConfig{RefreshToken: "x"}}
	ApplyDefaults(cfg)
	cfg.Behavior.FakeReasoning.Mode = "not_a_real_mode"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for bad fake reasoning mode")
	}
}

func TestModelAliasesParsedFromEnv(t *testing.T) {
	t.Setenv("REFRESH_TOKEN", "test-token")
	t.Setenv("MODEL_ALIASES", "gpt-4=claude-sonnet-4.5, gpt-4o=claude-opus-4.5")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.ModelAliases["gpt-4"] != "claude-sonnet-4.5" {
		t.Fatalf("unexpected model aliases: %+v", cfg.Upstream.ModelAliases)
	}
}
