// Package config provides configuration management for chime.
package config

import (
	"time"
)

// Config is the root configuration structure for chime.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	TaskFile  TaskFileConfig  `mapstructure:"task_file"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tasks     []TaskConfig    `mapstructure:"tasks"`
}

// SchedulerConfig holds the scheduling engine settings.
type SchedulerConfig struct {
	// Maximum number of concurrently in-flight task executions
	MaxWorkers int `mapstructure:"max_workers"`

	// How often the poll loop checks for due tasks
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Pause after an unexpected poll-loop error
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`

	// Bound on graceful shutdown waits
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// Register script tasks with the OS-native scheduler adapter
	UseOSScheduler bool `mapstructure:"use_os_scheduler"`
}

// TaskFileConfig holds task persistence settings.
type TaskFileConfig struct {
	// Path of the persisted task file (.yaml, .yml or .json)
	Path string `mapstructure:"path"`

	// Reload the task file (merge mode) when it changes on disk
	Watch bool `mapstructure:"watch"`
}

// HistoryConfig holds execution-history store settings.
type HistoryConfig struct {
	// Enable the SQLite execution history store
	Enabled bool `mapstructure:"enabled"`

	// Path to the SQLite database file
	Path string `mapstructure:"path"`

	// Keep execution rows for this long
	Retention time.Duration `mapstructure:"retention"`

	// Busy timeout in milliseconds
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Serve /metrics
	Enabled bool `mapstructure:"enabled"`

	// Listen address for the metrics endpoint
	Addr string `mapstructure:"addr"`
}

// TaskConfig is one declaratively configured task, loaded at startup.
// Exactly one of Every or Cron must be set; only script tasks can be
// declared in configuration.
type TaskConfig struct {
	Name          string        `mapstructure:"name"`
	Script        string        `mapstructure:"script"`
	Every         string        `mapstructure:"every"`
	Cron          string        `mapstructure:"cron"`
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Notify        []string      `mapstructure:"notify"`
	Sandbox       bool          `mapstructure:"sandbox"`
	MaxMemoryMB   int           `mapstructure:"max_memory_mb"`
	MaxCPUSeconds int           `mapstructure:"max_cpu_seconds"`
}
