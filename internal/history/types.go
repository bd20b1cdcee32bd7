// Package history records task executions in SQLite and aggregates
// per-task statistics from them.
package history

import "time"

// Execution is one recorded task run.
type Execution struct {
	ID         string    `json:"id"`
	TaskName   string    `json:"task_name"`
	Success    bool      `json:"success"`
	DurationMs int       `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Retries    int       `json:"retries"`
	StartedAt  time.Time `json:"started_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskStats aggregates the recorded executions of one task.
type TaskStats struct {
	TaskName      string    `json:"task_name"`
	TotalRuns     int       `json:"total_runs"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	MaxDurationMs int       `json:"max_duration_ms"`
	LastRun       time.Time `json:"last_run"`
}
