// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and payment validation

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:9090"

platform:
  base_url: "https://platform.example.com/api"
  api_key: "sk-default"
  service_key: "svc-key"
  timeout: "10s"

database:
  path: "./test.db"

payment:
  mode: "per_call"
  destination: "0xWALLET"
  per_call:
    fail_open: false

atxp:
  enabled: true
  receipt_secret: "shh"
  settle_timeout: "2s"
  replay_window: "1m"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Platform.BaseURL != "https://platform.example.com/api" {
		t.Errorf("Platform.BaseURL = %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.Timeout != 10*time.Second {
		t.Errorf("Platform.Timeout = %v, want %v", cfg.Platform.Timeout, 10*time.Second)
	}
	if cfg.Payment.Mode != PaymentModePerCall {
		t.Errorf("Payment.Mode = %q, want %q", cfg.Payment.Mode, PaymentModePerCall)
	}
	if cfg.Payment.PerCall.FailOpenEnabled() {
		t.Error("Payment.PerCall.FailOpenEnabled() = true, want false")
	}
	if cfg.ATXP.SettleTimeout != 2*time.Second {
		t.Errorf("ATXP.SettleTimeout = %v, want %v", cfg.ATXP.SettleTimeout, 2*time.Second)
	}
	if cfg.ATXP.ReplayWindow != time.Minute {
		t.Errorf("ATXP.ReplayWindow = %v, want %v", cfg.ATXP.ReplayWindow, time.Minute)
	}
	if cfg.ATXP.Destination != "0xWALLET" {
		t.Errorf("ATXP.Destination = %q, want payment destination to be inherited", cfg.ATXP.Destination)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
platform:
  base_url: "http://localhost:3000"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.Payment.Mode != PaymentModeFree {
		t.Errorf("Payment.Mode = %q, want free", cfg.Payment.Mode)
	}
	if !cfg.Payment.PerCall.FailOpenEnabled() {
		t.Error("fail-open should default to true")
	}
	if cfg.Platform.Timeout != DefaultPlatformTimeout {
		t.Errorf("Platform.Timeout = %v, want %v", cfg.Platform.Timeout, DefaultPlatformTimeout)
	}
	if cfg.ATXP.SettleTimeout != DefaultSettleTimeout {
		t.Errorf("ATXP.SettleTimeout = %v, want %v", cfg.ATXP.SettleTimeout, DefaultSettleTimeout)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[platform]
base_url = "https://platform.example.com"

[payment]
mode = "subscription"
destination = "0xTOML"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Payment.Mode != PaymentModeSubscription {
		t.Errorf("Payment.Mode = %q, want subscription", cfg.Payment.Mode)
	}
	if cfg.Payment.Destination != "0xTOML" {
		t.Errorf("Payment.Destination = %q, want 0xTOML", cfg.Payment.Destination)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("AGENTMCP_TEST_KEY", "sk-from-env")
	t.Setenv("AGENTMCP_TEST_WALLET", "0xENV")

	configPath := writeConfig(t, "config.yaml", `
platform:
  base_url: "https://platform.example.com"
  api_key: "${AGENTMCP_TEST_KEY}"
  service_key: "svc"
payment:
  mode: per_call
  destination: "${AGENTMCP_TEST_WALLET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Platform.APIKey != "sk-from-env" {
		t.Errorf("Platform.APIKey = %q, want %q", cfg.Platform.APIKey, "sk-from-env")
	}
	if cfg.Payment.Destination != "0xENV" {
		t.Errorf("Payment.Destination = %q, want %q", cfg.Payment.Destination, "0xENV")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
platform:
  base_url: "https://platform.example.com"
  timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "platform.timeout") {
		t.Errorf("error = %v, want mention of platform.timeout", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantErrSubstr string
		wantErrIs     error
	}{
		{
			name:          "missing base url",
			content:       "payment:\n  mode: free\n",
			wantErrSubstr: "platform.base_url is required",
		},
		{
			name:          "non http base url",
			content:       "platform:\n  base_url: \"ftp://x\"\n",
			wantErrSubstr: "must be an http(s) URL",
		},
		{
			name:          "unknown payment mode",
			content:       "platform:\n  base_url: \"http://x\"\npayment:\n  mode: barter\n",
			wantErrSubstr: "payment.mode must be one of",
		},
		{
			name:      "per call without destination",
			content:   "platform:\n  base_url: \"http://x\"\npayment:\n  mode: per_call\n",
			wantErrIs: ErrMissingDestination,
		},
		{
			name:      "subscription without destination",
			content:   "platform:\n  base_url: \"http://x\"\npayment:\n  mode: subscription\n",
			wantErrIs: ErrMissingDestination,
		},
		{
			name:      "per call without service key",
			content:   "platform:\n  base_url: \"http://x\"\npayment:\n  mode: per_call\n  destination: w\n",
			wantErrIs: ErrMissingServiceKey,
		},
		{
			name:      "per call without service key even when fail open",
			content:   "platform:\n  base_url: \"http://x\"\npayment:\n  mode: per_call\n  destination: w\n  per_call:\n    fail_open: true\n",
			wantErrIs: ErrMissingServiceKey,
		},
		{
			name:          "atxp without secret",
			content:       "platform:\n  base_url: \"http://x\"\npayment:\n  destination: w\natxp:\n  enabled: true\n",
			wantErrSubstr: "atxp.receipt_secret is required",
		},
		{
			name:          "atxp without destination",
			content:       "platform:\n  base_url: \"http://x\"\natxp:\n  enabled: true\n  receipt_secret: s\n",
			wantErrSubstr: "atxp.destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), false)
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.wantErrIs)
			}
			if tt.wantErrSubstr != "" && !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErrSubstr)
			}
		})
	}
}

func TestValidate_FreeFallbackAllowed(t *testing.T) {
	cfg, err := Parse([]byte(`
platform:
  base_url: "http://localhost"
payment:
  mode: per_call
  allow_free_fallback: true
`), false)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.IsPaidMode() {
		t.Error("IsPaidMode() = false, want true (fallback is decided at start-up)")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AGENTMCP_A", "alpha")

	got := expandEnvVars("x=${AGENTMCP_A} y=${AGENTMCP_UNSET_VAR_XYZ}")
	if got != "x=alpha y=" {
		t.Errorf("expandEnvVars() = %q, want %q", got, "x=alpha y=")
	}
}
