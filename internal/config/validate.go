package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError is a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Validate checks the full configuration and returns every problem found.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateTaskFile(&cfg.TaskFile)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateTasks(cfg.Tasks)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxWorkers < 1 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.max_workers",
			Message: "must be a positive integer",
		})
	}
	if cfg.PollInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.poll_interval",
			Message: "must be non-negative",
		})
	}
	if cfg.ErrorBackoff < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.error_backoff",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateTaskFile(cfg *TaskFileConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path != "" {
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".yaml", ".yml", ".json":
		default:
			errs = append(errs, ValidationError{
				Field:   "task_file.path",
				Message: "must end in .yaml, .yml or .json",
			})
		}
	}

	return errs
}

func validateHistory(cfg *HistoryConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Enabled && cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "required when history is enabled",
		})
	}
	if cfg.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.retention",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "json", "console", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be json or console",
		})
	}

	return errs
}

func validateTasks(tasks []TaskConfig) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool, len(tasks))
	for i, tc := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)

		if tc.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "required"})
		} else if seen[tc.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate task name %q", tc.Name)})
		}
		seen[tc.Name] = true

		if tc.Script == "" {
			errs = append(errs, ValidationError{Field: field + ".script", Message: "required; only script tasks can be configured declaratively"})
		}
		if tc.Every == "" && tc.Cron == "" {
			errs = append(errs, ValidationError{Field: field, Message: "one of every or cron is required"})
		}
		if tc.Every != "" && tc.Cron != "" {
			errs = append(errs, ValidationError{Field: field, Message: "every and cron are mutually exclusive"})
		}
		if tc.Retries < 0 {
			errs = append(errs, ValidationError{Field: field + ".retries", Message: "must be non-negative"})
		}
	}

	return errs
}
