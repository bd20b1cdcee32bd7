// Package retry drives one task execution sequence: the attempt loop, the
// backoff policy between attempts, and terminal-outcome bookkeeping.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zalrik/chime/internal/executor"
	"github.com/zalrik/chime/internal/metrics"
	"github.com/zalrik/chime/internal/task"
)

// DefaultMaxDelay caps exponential backoff between attempts.
const DefaultMaxDelay = 5 * time.Minute

// Notifier delivers task outcome notifications. Implementations live
// outside the core; their failures never affect task state.
type Notifier interface {
	NotifySuccess(taskName string, duration time.Duration, channels []string)
	NotifyFailure(taskName string, err error, attempt, maxAttempts int, channels []string)
}

// Execution is one terminal outcome reported to the analytics collaborator.
type Execution struct {
	TaskName  string
	Success   bool
	Duration  time.Duration
	Error     string
	Retries   int
	StartedAt time.Time
}

// Recorder persists terminal outcomes. Recording failures are swallowed.
type Recorder interface {
	Record(ctx context.Context, e Execution) error
}

// Controller runs execution sequences. The zero value is usable; Notifier
// and Recorder are optional collaborators.
type Controller struct {
	Notifier Notifier
	Recorder Recorder

	// MaxDelay caps the backoff between attempts; DefaultMaxDelay if zero.
	MaxDelay time.Duration

	// Sleep is swappable for tests; time.Sleep if nil. It blocks only the
	// executing attempt, never the poll loop.
	Sleep func(time.Duration)
}

// Execute runs the task's attempt sequence: up to Retries+1 attempts with
// exponential backoff between failures. The task's next run is recomputed
// exactly once, at the terminal outcome — success or exhausted retries —
// never between attempts.
func (c *Controller) Execute(ctx context.Context, t *task.Task) {
	maxAttempts := t.Retries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		log.Debug().
			Str("task", t.Name).
			Str("task_id", t.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("Task attempt starting")

		start := time.Now()
		_, err := executor.Run(ctx, t)
		duration := time.Since(start)

		if err == nil {
			c.finishSuccess(ctx, t, start, duration, attempt)
			return
		}

		t.IncrementFailCount()
		log.Warn().
			Err(err).
			Str("task", t.Name).
			Str("task_id", t.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("duration", duration).
			Msg("Task attempt failed")

		if attempt == t.Retries {
			c.finishFailure(ctx, t, start, duration, attempt, err)
			return
		}

		delay := Backoff(attempt, t.RetryDelay, c.maxDelay())
		log.Info().
			Str("task", t.Name).
			Int("next_attempt", attempt+2).
			Dur("delay", delay).
			Msg("Retrying task after backoff")
		c.sleep(delay)
	}
}

func (c *Controller) finishSuccess(ctx context.Context, t *task.Task, start time.Time, duration time.Duration, attempt int) {
	t.IncrementRunCount()
	t.AdvanceSchedule(time.Now())
	metrics.RecordTaskRun(t.Name, "success", duration)

	log.Info().
		Str("task", t.Name).
		Str("task_id", t.ID).
		Dur("duration", duration).
		Msg("Task completed")

	if len(t.Notify) > 0 && c.Notifier != nil {
		c.Notifier.NotifySuccess(t.Name, duration, t.Notify)
	}
	invokeCallback(t.Name, "success", t.OnSuccess)
	c.record(ctx, Execution{
		TaskName:  t.Name,
		Success:   true,
		Duration:  duration,
		Retries:   attempt,
		StartedAt: start,
	})
}

func (c *Controller) finishFailure(ctx context.Context, t *task.Task, start time.Time, duration time.Duration, attempt int, err error) {
	t.AdvanceSchedule(time.Now())
	metrics.RecordTaskRun(t.Name, "failure", duration)

	log.Error().
		Err(err).
		Str("task", t.Name).
		Str("task_id", t.ID).
		Int("attempts", attempt+1).
		Msg("Task failed, retries exhausted")

	if len(t.Notify) > 0 && c.Notifier != nil {
		c.Notifier.NotifyFailure(t.Name, err, attempt+1, t.Retries+1, t.Notify)
	}
	if t.OnFailure != nil {
		failErr := err
		invokeCallback(t.Name, "failure", func() { t.OnFailure(failErr) })
	}
	c.record(ctx, Execution{
		TaskName:  t.Name,
		Success:   false,
		Duration:  duration,
		Error:     err.Error(),
		Retries:   attempt + 1,
		StartedAt: start,
	})
}

// invokeCallback runs a task hook in-process. Panics are caught and logged,
// never propagated: a broken hook must not take down the executor.
func invokeCallback(taskName, kind string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task", taskName).
				Str("callback", kind).
				Interface("panic", r).
				Msg("Error in task callback")
		}
	}()
	fn()
}

func (c *Controller) record(ctx context.Context, e Execution) {
	if c.Recorder == nil {
		return
	}
	if err := c.Recorder.Record(ctx, e); err != nil {
		log.Warn().Err(err).Str("task", e.TaskName).Msg("Failed to record execution")
	}
}

func (c *Controller) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *Controller) maxDelay() time.Duration {
	if c.MaxDelay > 0 {
		return c.MaxDelay
	}
	return DefaultMaxDelay
}

// Backoff returns the delay before the attempt following attempt (0-based):
// base doubled per attempt, shift clamped at 16, capped at maxDelay.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := base << attempt
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
