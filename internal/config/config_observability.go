package config

import "time"

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}


// SchedulerConfig configures the durable job engine.
type SchedulerConfig struct {
	Enabled string `yaml:"enabled"`

	// WorkerID uniquely identifies this scheduler instance for per-jobId locking.
	// Defaults to a generated UUID if empty.
	WorkerID string `yaml:"worker_id"`

	// PollInterval is how often the scheduler checks for due jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// LockDuration is how long a per-job execution lock is held.
	LockDuration time.Duration `yaml:"lock_duration"`

	// MaxConcurrency bounds concurrently running distinct jobs.
	MaxConcurrency int `yaml:"max_concurrency"`

	// CleanupInterval is how often stale locks/executions are cleaned up.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// StaleTimeout is how long an execution can run before being considered stale.
	StaleTimeout time.Duration `yaml:"stale_timeout"`
}
