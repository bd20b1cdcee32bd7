package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zalrik/chime/internal/database"
)

// Store handles database operations for recorded executions.
type Store struct {
	db *database.DB
}

// NewStore creates a new execution store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a recorded execution.
func (s *Store) Create(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (
			id, task_name, success, duration_ms, error, retries, started_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := exec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		exec.ID,
		exec.TaskName,
		exec.Success,
		exec.DurationMs,
		exec.Error,
		exec.Retries,
		exec.StartedAt.UTC().Format(time.RFC3339),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	return nil
}

// Get retrieves a recorded execution by ID.
func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	query := `
		SELECT id, task_name, success, duration_ms, error, retries, started_at, created_at
		FROM executions
		WHERE id = ?
	`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution not found: %s", id)
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}

	return exec, nil
}

// ListByTask retrieves the most recent executions of one task, newest first.
func (s *Store) ListByTask(ctx context.Context, taskName string, limit int) ([]*Execution, error) {
	query := `
		SELECT id, task_name, success, duration_ms, error, retries, started_at, created_at
		FROM executions
		WHERE task_name = ?
		ORDER BY started_at DESC
	`
	args := []any{taskName}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}

	return execs, nil
}

// Stats aggregates the recorded executions of one task.
func (s *Store) Stats(ctx context.Context, taskName string) (*TaskStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0),
			COALESCE(MAX(started_at), '')
		FROM executions
		WHERE task_name = ?
	`

	stats := &TaskStats{TaskName: taskName}
	var lastRun string

	err := s.db.QueryRowContext(ctx, query, taskName).Scan(
		&stats.TotalRuns,
		&stats.Successes,
		&stats.AvgDurationMs,
		&stats.MaxDurationMs,
		&lastRun,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating executions: %w", err)
	}

	stats.Failures = stats.TotalRuns - stats.Successes
	if lastRun != "" {
		t, err := time.Parse(time.RFC3339, lastRun)
		if err != nil {
			return nil, fmt.Errorf("parsing last run: %w", err)
		}
		stats.LastRun = t
	}

	return stats, nil
}

// AllStats aggregates the recorded executions of every task.
func (s *Store) AllStats(ctx context.Context) ([]*TaskStats, error) {
	query := `
		SELECT
			task_name,
			COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0),
			COALESCE(MAX(started_at), '')
		FROM executions
		GROUP BY task_name
		ORDER BY task_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregating executions: %w", err)
	}
	defer rows.Close()

	var all []*TaskStats
	for rows.Next() {
		stats := &TaskStats{}
		var lastRun string

		if err := rows.Scan(
			&stats.TaskName,
			&stats.TotalRuns,
			&stats.Successes,
			&stats.AvgDurationMs,
			&stats.MaxDurationMs,
			&lastRun,
		); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}

		stats.Failures = stats.TotalRuns - stats.Successes
		if lastRun != "" {
			t, err := time.Parse(time.RFC3339, lastRun)
			if err != nil {
				return nil, fmt.Errorf("parsing last run: %w", err)
			}
			stats.LastRun = t
		}

		all = append(all, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats: %w", err)
	}

	return all, nil
}

// DeleteOlderThan removes executions that started before now minus age.
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) error {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE started_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("deleting old executions: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var startedAt, createdAt string

	if err := row.Scan(
		&exec.ID,
		&exec.TaskName,
		&exec.Success,
		&exec.DurationMs,
		&exec.Error,
		&exec.Retries,
		&startedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	exec.StartedAt = t

	t, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	exec.CreatedAt = t

	return &exec, nil
}
