// Package config loads and validates the gateway's layered configuration:
// built-in defaults, then an optional YAML file (with $include support),
// then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`

	Secrets  SecretsConfig  `yaml:"secrets"`
	LLM      LLMConfig      `yaml:"llm"`
	Budget   BudgetConfig   `yaml:"budget"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Calendar CalendarConfig `yaml:"calendar"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// DataDir is the root directory for the embedded relational store and
	// the skills directory (skills/<name>/skill.json).
	DataDir string `yaml:"data_dir"`

	// Timezone is the default IANA timezone used when a trigger omits one.
	Timezone string `yaml:"timezone"`

	// DefaultSystemPrompt seeds a tenant's system prompt when none is configured.
	DefaultSystemPrompt string `yaml:"default_system_prompt"`
}

// ServerConfig configures the process's listening addresses.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// SecretsConfig configures the Secret Store's key material.
type SecretsConfig struct {
	// OperatorKey, if set, is hashed to a 32-byte AEAD key. If empty, a
	// deterministic dev-mode key is derived from DevFallbackSeed — documented
	// as weak and unsuitable for production.
	OperatorKey     string `yaml:"operator_key"`
	DevFallbackSeed string `yaml:"dev_fallback_seed"`
}

// BudgetConfig configures default per-tenant budget behavior.
type BudgetConfig struct {
	AlertThresholdPct int `yaml:"alert_threshold_pct"`
}

// CalendarConfig configures iCal polling defaults.
type CalendarConfig struct {
	DefaultPollIntervalMinutes int      `yaml:"default_poll_interval_minutes"`
	HolidayKeywords            []string `yaml:"holiday_keywords"`
}

// WebhooksConfig configures inbound/outbound webhook defaults.
type WebhooksConfig struct {
	InboundTimeout  time.Duration `yaml:"inbound_timeout"`
	OutboundTimeout time.Duration `yaml:"outbound_timeout"`
}

// SMTPConfig configures the scheduler's email output route collaborator.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// RateLimitConfig bounds inbound webhook invocation rates.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Window            time.Duration `yaml:"window"`
}

// Defaults returns a Config populated with the gateway's built-in defaults.
func Defaults() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:        "0.0.0.0",
			HTTPPort:    8080,
			MetricsPort: 9090,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{Enabled: false, ServiceName: "loop-gateway"},
			Metrics: MetricsConfig{Enabled: true, Addr: ":9090", Path: "/metrics"},
		},
		Secrets: SecretsConfig{DevFallbackSeed: "dev-only-insecure-seed"},
		Budget:  BudgetConfig{AlertThresholdPct: 80},
		Scheduler: SchedulerConfig{
			Enabled:         "true",
			PollInterval:    5 * time.Second,
			LockDuration:    10 * time.Minute,
			MaxConcurrency:  16,
			CleanupInterval: time.Minute,
			StaleTimeout:    30 * time.Minute,
		},
		Calendar: CalendarConfig{
			DefaultPollIntervalMinutes: 15,
			HolidayKeywords:            []string{"holiday", "feiertag", "christmas", "ostern", "weihnachten"},
		},
		Webhooks: WebhooksConfig{
			InboundTimeout:  30 * time.Second,
			OutboundTimeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 20, Window: time.Second},
		DataDir:   "./data",
		Timezone:  "UTC",
	}
}

// Load reads a YAML config file (resolving $include directives), merges it
// over Defaults(), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		b, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("marshal merged config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// ValidationError aggregates config validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Issues, "; "))
}

// Validate checks structural invariants that can be caught before any
// component starts, matching spec's "fail-fast on an invalid cron
// expression, missing encryption key material outside dev mode, or
// malformed webhook/provider URLs" requirement.
func (c *Config) Validate() []string {
	var issues []string
	if c.Timezone == "" {
		issues = append(issues, "timezone must not be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		issues = append(issues, fmt.Sprintf("timezone %q is not a valid IANA zone: %v", c.Timezone, err))
	}
	if c.DataDir == "" {
		issues = append(issues, "data_dir must not be empty")
	}
	if c.Budget.AlertThresholdPct < 0 || c.Budget.AlertThresholdPct > 100 {
		issues = append(issues, "budget.alert_threshold_pct must be between 0 and 100")
	}
	if c.Scheduler.MaxConcurrency <= 0 {
		issues = append(issues, "scheduler.max_concurrency must be > 0")
	}
	return issues
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_OPERATOR_KEY"); v != "" {
		cfg.Secrets.OperatorKey = v
	}
	if v := os.Getenv("GATEWAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GATEWAY_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("GATEWAY_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = p
		}
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GATEWAY_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
}
