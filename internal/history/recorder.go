package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zalrik/chime/internal/database"
	"github.com/zalrik/chime/internal/retry"
)

const cleanupInterval = 1 * time.Hour

// Recorder persists terminal task outcomes and prunes old records in
// the background.
type Recorder struct {
	store     *Store
	retention time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRecorder creates a recorder over db. A zero retention defaults to
// 30 days.
func NewRecorder(db *database.DB, retention time.Duration) *Recorder {
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Recorder{
		store:     NewStore(db),
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Store exposes the underlying store for queries.
func (r *Recorder) Store() *Store {
	return r.store
}

// Record implements retry.Recorder.
func (r *Recorder) Record(ctx context.Context, e retry.Execution) error {
	exec := &Execution{
		ID:         uuid.New().String(),
		TaskName:   e.TaskName,
		Success:    e.Success,
		DurationMs: int(e.Duration.Milliseconds()),
		Error:      e.Error,
		Retries:    e.Retries,
		StartedAt:  e.StartedAt,
	}

	if err := r.store.Create(ctx, exec); err != nil {
		return fmt.Errorf("recording execution: %w", err)
	}

	log.Debug().
		Str("execution_id", exec.ID).
		Str("task", exec.TaskName).
		Bool("success", exec.Success).
		Int("duration_ms", exec.DurationMs).
		Msg("Execution recorded")

	return nil
}

// Start begins background cleanup of expired records.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.cleanupLoop(cleanupInterval)
}

// Stop ends background cleanup and waits for it to exit.
func (r *Recorder) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Recorder) cleanupLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.DeleteOlderThan(r.ctx, r.retention); err != nil {
				log.Error().Err(err).Msg("Failed to clean up old executions")
			}
		}
	}
}
