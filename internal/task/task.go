// Package task defines the schedulable unit: its executable and schedule
// variants, retry and sandbox policy, and mutable run-state.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zalrik/chime/internal/schedule"
)

// ErrConfig marks task configuration errors. These are surfaced to the
// caller at construction time and never retried.
var ErrConfig = errors.New("invalid task configuration")

// Runnable is the executable variant of a task. Exactly one concrete type
// backs every task, so executor selection never needs a validity check.
type Runnable interface {
	isRunnable()
}

// Func is a synchronous in-process callable. When a timeout is configured,
// a timed-out Func is abandoned, not cancelled.
type Func func() error

func (Func) isRunnable() {}

// CtxFunc is a cooperatively-cancellable in-process callable. Timeouts are
// applied through context cancellation, so this path can be interrupted
// cleanly.
type CtxFunc func(ctx context.Context) error

func (CtxFunc) isRunnable() {}

// Script is the path of an external script to run as a subprocess.
type Script string

func (Script) isRunnable() {}

// SandboxPolicy configures sandboxed subprocess execution. Only meaningful
// for Script tasks.
type SandboxPolicy struct {
	Enabled       bool
	MaxMemoryMB   int // 0 = no ceiling
	MaxCPUSeconds int // 0 = no ceiling
}

// Config is the construction surface for tasks. Exactly one of Func,
// CtxFunc or Script must be set, and exactly one of Every or Cron.
type Config struct {
	Name string

	Func    func() error
	CtxFunc func(ctx context.Context) error
	Script  string

	Every string // interval expression, e.g. "5m"
	Cron  string // cron expression, e.g. "*/15 * * * *"

	Retries    int
	RetryDelay time.Duration // base backoff delay, default 1m
	Timeout    time.Duration // 0 = no timeout

	Notify      []string
	EmailConfig map[string]string

	OnSuccess func()
	OnFailure func(error)

	Sandbox       bool
	MaxMemoryMB   int
	MaxCPUSeconds int
}

// Task is one schedulable unit. Run-state fields are guarded by a per-task
// mutex; the structural task collection is owned by the scheduler under its
// own lock, and the two are never acquired in nested order from both
// directions.
type Task struct {
	ID       string
	Name     string
	Run      Runnable
	Schedule schedule.Spec

	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	Sandbox    SandboxPolicy

	Notify      []string
	EmailConfig map[string]string
	OnSuccess   func()
	OnFailure   func(error)

	mu        sync.Mutex
	enabled   bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int
	failCount int
}

// New validates a Config and builds a Task. The executable and schedule
// variants are checked here once; the resulting Task carries them as tagged
// values with no further runtime branching.
func New(cfg Config) (*Task, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrConfig)
	}

	var run Runnable
	set := 0
	if cfg.Func != nil {
		run = Func(cfg.Func)
		set++
	}
	if cfg.CtxFunc != nil {
		run = CtxFunc(cfg.CtxFunc)
		set++
	}
	if cfg.Script != "" {
		run = Script(cfg.Script)
		set++
	}
	switch {
	case set == 0:
		return nil, fmt.Errorf("%w: task %q: one of func, ctx_func or script is required", ErrConfig, cfg.Name)
	case set > 1:
		return nil, fmt.Errorf("%w: task %q: func, ctx_func and script are mutually exclusive", ErrConfig, cfg.Name)
	}

	if cfg.Every != "" && cfg.Cron != "" {
		return nil, fmt.Errorf("%w: task %q: every and cron are mutually exclusive", ErrConfig, cfg.Name)
	}
	if cfg.Every == "" && cfg.Cron == "" {
		return nil, fmt.Errorf("%w: task %q: one of every or cron is required", ErrConfig, cfg.Name)
	}

	var spec schedule.Spec
	var err error
	if cfg.Every != "" {
		spec, err = schedule.ParseEvery(cfg.Every)
	} else {
		spec, err = schedule.ParseCron(cfg.Cron)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: task %q: %v", ErrConfig, cfg.Name, err)
	}

	if cfg.Retries < 0 {
		return nil, fmt.Errorf("%w: task %q: retries must be >= 0", ErrConfig, cfg.Name)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: task %q: timeout must be >= 0", ErrConfig, cfg.Name)
	}
	if cfg.Sandbox && cfg.Script == "" {
		return nil, fmt.Errorf("%w: task %q: sandbox applies to script tasks only", ErrConfig, cfg.Name)
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Minute
	}

	now := time.Now()
	t := &Task{
		ID:         uuid.New().String(),
		Name:       cfg.Name,
		Run:        run,
		Schedule:   spec,
		Retries:    cfg.Retries,
		RetryDelay: retryDelay,
		Timeout:    cfg.Timeout,
		Sandbox: SandboxPolicy{
			Enabled:       cfg.Sandbox,
			MaxMemoryMB:   cfg.MaxMemoryMB,
			MaxCPUSeconds: cfg.MaxCPUSeconds,
		},
		Notify:      cfg.Notify,
		EmailConfig: cfg.EmailConfig,
		OnSuccess:   cfg.OnSuccess,
		OnFailure:   cfg.OnFailure,
		enabled:     true,
	}
	t.nextRun = spec.NextRun(time.Time{}, now)

	return t, nil
}

// ShouldRun reports whether the task is due at the given instant.
func (t *Task) ShouldRun(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || t.nextRun.IsZero() {
		return false
	}
	return !now.Before(t.nextRun)
}

// AdvanceSchedule records the given instant as the last run and recomputes
// the next run from it. Called exactly once per execution sequence, at the
// terminal outcome.
func (t *Task) AdvanceSchedule(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = now
	t.nextRun = t.Schedule.NextRun(t.lastRun, now)
}

// IncrementRunCount records one successful execution.
func (t *Task) IncrementRunCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runCount++
}

// IncrementFailCount records one failed attempt.
func (t *Task) IncrementFailCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failCount++
}

// Enabled reports whether the task is eligible for scheduling.
func (t *Task) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled toggles scheduling eligibility.
func (t *Task) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// LastRun returns the last execution time, zero if never run.
func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

// NextRun returns the next scheduled execution time.
func (t *Task) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRun
}

// RunCount returns the number of successful executions.
func (t *Task) RunCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCount
}

// FailCount returns the number of failed attempts.
func (t *Task) FailCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failCount
}

// State is a consistent snapshot of a task's mutable run-state.
type State struct {
	Enabled   bool
	LastRun   time.Time
	NextRun   time.Time
	RunCount  int
	FailCount int
}

// Snapshot returns the task's run-state under its lock.
func (t *Task) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Enabled:   t.enabled,
		LastRun:   t.lastRun,
		NextRun:   t.nextRun,
		RunCount:  t.runCount,
		FailCount: t.failCount,
	}
}

// Restore overwrites the task's run-state, used when reconstructing a task
// from a persisted file.
func (t *Task) Restore(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = s.Enabled
	t.lastRun = s.LastRun
	if !s.NextRun.IsZero() {
		t.nextRun = s.NextRun
	}
	t.runCount = s.RunCount
	t.failCount = s.FailCount
}

func (t *Task) String() string {
	return fmt.Sprintf("Task(name=%q, %s=%s, enabled=%t)", t.Name, t.Schedule.Kind(), t.Schedule.Value(), t.Enabled())
}
