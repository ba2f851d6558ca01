// ABOUTME: Configuration loading and parsing for agentmcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Payment modes
const (
	PaymentModeFree         = "free"
	PaymentModePerCall      = "per_call"
	PaymentModeSubscription = "subscription"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultDatabasePath    = "./data/agentmcp.db"
	DefaultPlatformTimeout = 30 * time.Second
	DefaultSettleTimeout   = 5 * time.Second
	DefaultReplayWindow    = 10 * time.Minute
	DefaultMetricsPath     = "/metrics"
)

// ErrMissingDestination is returned by Validate when a paid payment mode has
// no payment destination and free fallback was not requested.
var ErrMissingDestination = errors.New("payment.destination is required for paid payment modes")

// ErrMissingServiceKey is returned by Validate when per_call mode has no
// platform.service_key to authenticate balance lookups.
var ErrMissingServiceKey = errors.New("platform.service_key is required for per_call payment mode")

// Config represents the complete agentmcp configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Platform PlatformConfig `yaml:"platform" toml:"platform"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Payment  PaymentConfig  `yaml:"payment" toml:"payment"`
	ATXP     ATXPConfig     `yaml:"atxp" toml:"atxp"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// PlatformConfig describes the remote platform API that owns agents and grants.
type PlatformConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// APIKey is the default caller key, used by stdio sessions that do not pass api_key.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// ServiceKey authenticates server-side billing lookups (per-call balances).
	ServiceKey string        `yaml:"service_key" toml:"service_key"`
	Timeout    time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// PaymentConfig selects and configures the payment strategy
type PaymentConfig struct {
	Mode        string `yaml:"mode" toml:"mode"`
	Destination string `yaml:"destination" toml:"destination"`
	// AllowFreeFallback downgrades a paid mode with no destination to free mode
	// with a warning instead of aborting start-up.
	AllowFreeFallback bool          `yaml:"allow_free_fallback" toml:"allow_free_fallback"`
	PerCall           PerCallConfig `yaml:"per_call" toml:"per_call"`
}

// PerCallConfig holds metered payment options
type PerCallConfig struct {
	// FailOpen allows the call when the balance lookup fails. Defaults to true.
	FailOpen *bool `yaml:"fail_open" toml:"fail_open"`
}

// FailOpenEnabled reports the effective fail-open policy.
func (p PerCallConfig) FailOpenEnabled() bool {
	return p.FailOpen == nil || *p.FailOpen
}

// ATXPConfig configures the paywalled HTTP envelope
type ATXPConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	Network        string `yaml:"network" toml:"network"`
	Destination    string `yaml:"destination" toml:"destination"`
	ReceiptSecret  string `yaml:"receipt_secret" toml:"receipt_secret"`
	FacilitatorURL string `yaml:"facilitator_url" toml:"facilitator_url"`

	SettleTimeout time.Duration `yaml:"-" toml:"-"`
	ReplayWindow  time.Duration `yaml:"-" toml:"-"`

	SettleTimeoutRaw string `yaml:"settle_timeout" toml:"settle_timeout"`
	ReplayWindowRaw  string `yaml:"replay_window" toml:"replay_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Payment.Mode == "" {
		c.Payment.Mode = PaymentModeFree
	}
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = DefaultPlatformTimeout
	}
	if c.ATXP.SettleTimeout == 0 {
		c.ATXP.SettleTimeout = DefaultSettleTimeout
	}
	if c.ATXP.ReplayWindow == 0 {
		c.ATXP.ReplayWindow = DefaultReplayWindow
	}
	if c.ATXP.Destination == "" {
		c.ATXP.Destination = c.Payment.Destination
	}
	if c.ATXP.Network == "" {
		c.ATXP.Network = "base"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// IsPaidMode reports whether the configured payment mode charges callers.
func (c *Config) IsPaidMode() bool {
	return c.Payment.Mode == PaymentModePerCall || c.Payment.Mode == PaymentModeSubscription
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if !strings.HasPrefix(c.Platform.BaseURL, "http://") && !strings.HasPrefix(c.Platform.BaseURL, "https://") {
		return fmt.Errorf("platform.base_url must be an http(s) URL, got %q", c.Platform.BaseURL)
	}

	switch c.Payment.Mode {
	case PaymentModeFree, PaymentModePerCall, PaymentModeSubscription:
	default:
		return fmt.Errorf("payment.mode must be one of free, per_call, subscription (got %q)", c.Payment.Mode)
	}

	// A paid mode without a destination is only tolerated when the operator
	// explicitly asked to fall back to free mode.
	if c.IsPaidMode() && c.Payment.Destination == "" && !c.Payment.AllowFreeFallback {
		return ErrMissingDestination
	}

	// Balance lookups authenticate with the service key.
	fallsBackToFree := c.Payment.Destination == "" && c.Payment.AllowFreeFallback
	if c.Payment.Mode == PaymentModePerCall && !fallsBackToFree && c.Platform.ServiceKey == "" {
		return ErrMissingServiceKey
	}

	if c.ATXP.Enabled {
		if c.ATXP.ReceiptSecret == "" {
			return fmt.Errorf("atxp.receipt_secret is required when atxp is enabled")
		}
		if c.ATXP.Destination == "" {
			return fmt.Errorf("atxp.destination (or payment.destination) is required when atxp is enabled")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"platform.timeout", cfg.Platform.TimeoutRaw, &cfg.Platform.Timeout},
		{"atxp.settle_timeout", cfg.ATXP.SettleTimeoutRaw, &cfg.ATXP.SettleTimeout},
		{"atxp.replay_window", cfg.ATXP.ReplayWindowRaw, &cfg.ATXP.ReplayWindow},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
