// Package scheduler runs the poll loop that dispatches due tasks to
// worker goroutines.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zalrik/chime/internal/config"
	"github.com/zalrik/chime/internal/metrics"
	"github.com/zalrik/chime/internal/osched"
	"github.com/zalrik/chime/internal/retry"
	"github.com/zalrik/chime/internal/schedule"
	"github.com/zalrik/chime/internal/task"
)

// ErrNotFound is returned when no task matches the given ID or name.
var ErrNotFound = errors.New("task not found")

// handle tracks one in-flight execution sequence.
type handle struct {
	t    *task.Task
	done chan struct{}
}

// Scheduler owns the task registry and the dispatch loop.
type Scheduler struct {
	cfg     config.SchedulerConfig
	retrier *retry.Controller
	adapter osched.Adapter

	mu       sync.Mutex
	tasks    map[string]*task.Task // by ID
	byName   map[string]string     // name -> ID
	inflight []*handle
	running  bool
	stop     chan struct{}
	loopDone chan struct{}

	// beforeTick is swappable for tests; it runs inside the tick's
	// recover, so an injected panic exercises the loop's backoff path.
	beforeTick func(now time.Time)
}

// Option configures optional collaborators.
type Option func(*Scheduler)

// WithNotifier sets the outcome notifier.
func WithNotifier(n retry.Notifier) Option {
	return func(s *Scheduler) { s.retrier.Notifier = n }
}

// WithRecorder sets the execution recorder.
func WithRecorder(r retry.Recorder) Option {
	return func(s *Scheduler) { s.retrier.Recorder = r }
}

// WithOSAdapter mirrors script tasks into the OS scheduler.
func WithOSAdapter(a osched.Adapter) Option {
	return func(s *Scheduler) { s.adapter = a }
}

// New creates a scheduler. Zero config fields fall back to defaults.
func New(cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = config.DefaultMaxWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = config.DefaultErrorBackoff
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = config.DefaultStopTimeout
	}

	s := &Scheduler{
		cfg:     cfg,
		retrier: &retry.Controller{},
		tasks:   make(map[string]*task.Task),
		byName:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add validates the given configuration, registers the resulting task
// and returns it.
func (s *Scheduler) Add(cfg task.Config) (*task.Task, error) {
	t, err := task.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.AddTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddTask registers an already-constructed task. Names must be unique.
func (s *Scheduler) AddTask(t *task.Task) error {
	s.mu.Lock()
	if _, exists := s.byName[t.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task %q already registered", t.Name)
	}
	s.tasks[t.ID] = t
	s.byName[t.Name] = t.ID
	count := len(s.tasks)
	s.mu.Unlock()

	metrics.SetScheduledTasks(count)
	s.mirrorToOS(t)

	log.Info().
		Str("task", t.Name).
		Str("task_id", t.ID).
		Str("schedule", t.Schedule.Value()).
		Time("next_run", t.NextRun()).
		Msg("Task added")

	return nil
}

// Remove unregisters the task with the given ID.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.tasks, id)
	delete(s.byName, t.Name)
	count := len(s.tasks)
	s.mu.Unlock()

	metrics.SetScheduledTasks(count)
	s.unmirrorFromOS(t)

	log.Info().Str("task", t.Name).Str("task_id", t.ID).Msg("Task removed")
	return nil
}

// RemoveByName unregisters the task with the given name.
func (s *Scheduler) RemoveByName(name string) error {
	s.mu.Lock()
	id, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.Remove(id)
}

// Get returns the task with the given ID.
func (s *Scheduler) Get(id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// GetByName returns the task with the given name.
func (s *Scheduler) GetByName(name string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.tasks[id], nil
}

// List returns all registered tasks.
func (s *Scheduler) List() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Start begins the dispatch loop. With blocking true it runs in the
// calling goroutine until Stop; otherwise it returns immediately.
// Starting an already-running scheduler logs and returns.
func (s *Scheduler) Start(blocking bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("Scheduler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	log.Info().
		Int("max_workers", s.cfg.MaxWorkers).
		Dur("poll_interval", s.cfg.PollInterval).
		Msg("Scheduler started")

	if blocking {
		s.run()
		return
	}
	go s.run()
}

// Stop ends the dispatch loop and waits up to StopTimeout for in-flight
// executions to finish. Executions still running after the timeout are
// abandoned, not killed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone

	// One absolute deadline shared by every handle: time.After with a
	// negative duration fires immediately, so handles checked after the
	// budget expires are abandoned without waiting.
	deadline := time.Now().Add(s.cfg.StopTimeout)
	for _, h := range s.snapshotInflight() {
		select {
		case <-h.done:
		case <-time.After(time.Until(deadline)):
			log.Warn().
				Str("task", h.t.Name).
				Msg("Stop timeout reached, abandoning in-flight task")
		}
	}

	log.Info().Msg("Scheduler stopped")
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) snapshotInflight() []*handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*handle, len(s.inflight))
	copy(out, s.inflight)
	return out
}

func (s *Scheduler) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if err := s.tick(now); err != nil {
				log.Error().Err(err).Msg("Scheduler tick failed")
				select {
				case <-s.stop:
					return
				case <-time.After(s.cfg.ErrorBackoff):
				}
			}
		}
	}
}

// tick dispatches every due task, bounded by the worker cap. A panic
// escaping dispatch must not kill the loop.
func (s *Scheduler) tick(now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	if s.beforeTick != nil {
		s.beforeTick(now)
	}

	s.mu.Lock()
	s.pruneInflightLocked()

	var due []*task.Task
	for _, t := range s.tasks {
		if t.ShouldRun(now) {
			due = append(due, t)
		}
	}

	for _, t := range due {
		if len(s.inflight) >= s.cfg.MaxWorkers {
			metrics.RecordDispatchSkip()
			log.Warn().
				Str("task", t.Name).
				Int("max_workers", s.cfg.MaxWorkers).
				Msg("Worker cap reached, task deferred to next tick")
			continue
		}
		// A task stays due until its terminal outcome advances next_run,
		// so a slow execution can be dispatched again on a later tick.
		if s.inflightLocked(t) {
			log.Debug().
				Str("task", t.Name).
				Msg("Task still due while a previous dispatch is running")
		}
		s.dispatchLocked(t)
	}
	s.mu.Unlock()

	return nil
}

func (s *Scheduler) pruneInflightLocked() {
	kept := s.inflight[:0]
	for _, h := range s.inflight {
		select {
		case <-h.done:
		default:
			kept = append(kept, h)
		}
	}
	s.inflight = kept
}

func (s *Scheduler) inflightLocked(t *task.Task) bool {
	for _, h := range s.inflight {
		if h.t == t {
			select {
			case <-h.done:
			default:
				return true
			}
		}
	}
	return false
}

// dispatchLocked launches one execution sequence. The execution gets a
// background context so Stop abandons it rather than killing a running
// subprocess mid-write.
func (s *Scheduler) dispatchLocked(t *task.Task) {
	h := &handle{t: t, done: make(chan struct{})}
	s.inflight = append(s.inflight, h)

	metrics.IncrementInFlight()
	go func() {
		defer close(h.done)
		defer metrics.DecrementInFlight()
		s.retrier.Execute(context.Background(), t)
	}()
}

func (s *Scheduler) mirrorToOS(t *task.Task) {
	if s.adapter == nil {
		return
	}
	script, ok := t.Run.(task.Script)
	if !ok {
		return
	}

	expr := t.Schedule.Value()
	if iv, ok := t.Schedule.(schedule.Interval); ok {
		expr = osched.IntervalToCron(iv.Every())
	}

	if err := s.adapter.Register(t.Name, string(script), expr); err != nil {
		log.Warn().Err(err).Str("task", t.Name).Msg("Failed to register OS scheduler entry")
	}
}

func (s *Scheduler) unmirrorFromOS(t *task.Task) {
	if s.adapter == nil {
		return
	}
	if _, ok := t.Run.(task.Script); !ok {
		return
	}
	if err := s.adapter.Remove(t.Name); err != nil {
		log.Warn().Err(err).Str("task", t.Name).Msg("Failed to remove OS scheduler entry")
	}
}
