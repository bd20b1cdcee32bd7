package config

import "time"

// Default configuration values.
const (
	// Scheduler defaults.
	DefaultMaxWorkers   = 4
	DefaultPollInterval = 1 * time.Second
	DefaultErrorBackoff = 5 * time.Second
	DefaultStopTimeout  = 5 * time.Second

	// Task file defaults.
	DefaultTaskFile = "chime-tasks.yaml"

	// History defaults.
	DefaultHistoryPath      = "chime-history.db"
	DefaultHistoryRetention = 30 * 24 * time.Hour
	DefaultBusyTimeout      = 5 * time.Second
	DefaultMaxOpenConns     = 1 // SQLite works best with single writer
	DefaultMaxIdleConns     = 1

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Metrics defaults.
	DefaultMetricsAddr = "localhost:9190"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxWorkers:   DefaultMaxWorkers,
			PollInterval: DefaultPollInterval,
			ErrorBackoff: DefaultErrorBackoff,
			StopTimeout:  DefaultStopTimeout,
		},
		TaskFile: TaskFileConfig{
			Path: DefaultTaskFile,
		},
		History: HistoryConfig{
			Enabled:      true,
			Path:         DefaultHistoryPath,
			Retention:    DefaultHistoryRetention,
			BusyTimeout:  DefaultBusyTimeout,
			WALMode:      true,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
	}
}
