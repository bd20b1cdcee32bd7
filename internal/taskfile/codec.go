// Package taskfile saves and loads script task definitions, in YAML or
// JSON, so a scheduler can be torn down and rebuilt across restarts.
package taskfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/zalrik/chime/internal/schedule"
	"github.com/zalrik/chime/internal/task"
)

// Version identifies the file layout.
const Version = 1

// ErrUnsupportedFormat is returned for file extensions other than
// .yaml, .yml and .json.
var ErrUnsupportedFormat = errors.New("unsupported task file format")

// Record is one persisted task. Only script tasks can be persisted;
// in-process functions cannot be reconstructed from a file.
type Record struct {
	ID            string            `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string            `yaml:"name" json:"name"`
	Script        string            `yaml:"script" json:"script"`
	ScheduleKind  string            `yaml:"schedule_kind" json:"schedule_kind"`
	ScheduleValue string            `yaml:"schedule_value" json:"schedule_value"`
	Retries       int               `yaml:"retries" json:"retries"`
	RetryDelaySec int               `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
	TimeoutSec    int               `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Notify        []string          `yaml:"notify,omitempty" json:"notify,omitempty"`
	EmailConfig   map[string]string `yaml:"email_config,omitempty" json:"email_config,omitempty"`
	Sandbox       bool              `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
	MaxMemoryMB   int               `yaml:"max_memory_mb,omitempty" json:"max_memory_mb,omitempty"`
	MaxCPUSeconds int               `yaml:"max_cpu_seconds,omitempty" json:"max_cpu_seconds,omitempty"`

	Enabled   bool       `yaml:"enabled" json:"enabled"`
	LastRun   *time.Time `yaml:"last_run,omitempty" json:"last_run,omitempty"`
	NextRun   *time.Time `yaml:"next_run,omitempty" json:"next_run,omitempty"`
	RunCount  int        `yaml:"run_count,omitempty" json:"run_count,omitempty"`
	FailCount int        `yaml:"fail_count,omitempty" json:"fail_count,omitempty"`
}

// Envelope is the top-level file structure.
type Envelope struct {
	Version int       `yaml:"version" json:"version"`
	SavedAt time.Time `yaml:"saved_at" json:"saved_at"`
	Tasks   []Record  `yaml:"tasks" json:"tasks"`
}

// FromTask converts a task to its persisted form. It returns false for
// tasks that run in-process functions.
func FromTask(t *task.Task) (Record, bool) {
	script, ok := t.Run.(task.Script)
	if !ok {
		return Record{}, false
	}

	state := t.Snapshot()
	rec := Record{
		ID:            t.ID,
		Name:          t.Name,
		Script:        string(script),
		ScheduleKind:  string(t.Schedule.Kind()),
		ScheduleValue: t.Schedule.Value(),
		Retries:       t.Retries,
		RetryDelaySec: int(t.RetryDelay.Seconds()),
		TimeoutSec:    int(t.Timeout.Seconds()),
		Notify:        t.Notify,
		EmailConfig:   t.EmailConfig,
		Sandbox:       t.Sandbox.Enabled,
		MaxMemoryMB:   t.Sandbox.MaxMemoryMB,
		MaxCPUSeconds: t.Sandbox.MaxCPUSeconds,
		Enabled:       state.Enabled,
		RunCount:      state.RunCount,
		FailCount:     state.FailCount,
	}
	if !state.LastRun.IsZero() {
		lastRun := state.LastRun.UTC()
		rec.LastRun = &lastRun
	}
	if !state.NextRun.IsZero() {
		nextRun := state.NextRun.UTC()
		rec.NextRun = &nextRun
	}

	return rec, true
}

// ToTask reconstructs a task from its persisted form, restoring its
// run-state.
func ToTask(rec Record) (*task.Task, error) {
	cfg := task.Config{
		Name:          rec.Name,
		Script:        rec.Script,
		Retries:       rec.Retries,
		RetryDelay:    time.Duration(rec.RetryDelaySec) * time.Second,
		Timeout:       time.Duration(rec.TimeoutSec) * time.Second,
		Notify:        rec.Notify,
		EmailConfig:   rec.EmailConfig,
		Sandbox:       rec.Sandbox,
		MaxMemoryMB:   rec.MaxMemoryMB,
		MaxCPUSeconds: rec.MaxCPUSeconds,
	}

	switch schedule.Kind(rec.ScheduleKind) {
	case schedule.KindInterval:
		cfg.Every = rec.ScheduleValue
	case schedule.KindCron:
		cfg.Cron = rec.ScheduleValue
	default:
		return nil, fmt.Errorf("task %q: unknown schedule kind %q", rec.Name, rec.ScheduleKind)
	}

	t, err := task.New(cfg)
	if err != nil {
		return nil, err
	}
	if rec.ID != "" {
		t.ID = rec.ID
	}

	state := task.State{
		Enabled:   rec.Enabled,
		RunCount:  rec.RunCount,
		FailCount: rec.FailCount,
	}
	if rec.LastRun != nil {
		state.LastRun = *rec.LastRun
	}
	if rec.NextRun != nil {
		state.NextRun = *rec.NextRun
	}
	t.Restore(state)

	return t, nil
}

// Save writes the given tasks to path, choosing the encoding from the
// file extension. It returns the number of tasks skipped because they
// run in-process functions.
func Save(path string, tasks []*task.Task) (skipped int, err error) {
	env := Envelope{
		Version: Version,
		SavedAt: time.Now().UTC(),
	}

	for _, t := range tasks {
		rec, ok := FromTask(t)
		if !ok {
			skipped++
			log.Debug().Str("task", t.Name).Msg("Skipping in-process task; only script tasks persist")
			continue
		}
		env.Tasks = append(env.Tasks, rec)
	}
	if env.Tasks == nil {
		env.Tasks = []Record{}
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&env)
	case ".json":
		data, err = json.MarshalIndent(&env, "", "  ")
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return 0, fmt.Errorf("encoding task file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("writing task file: %w", err)
	}

	return skipped, nil
}

// Load reads a task file and reconstructs its tasks. Records that fail
// to reconstruct are skipped, not fatal; their count is returned.
func Load(path string) (tasks []*task.Task, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading task file: %w", err)
	}

	var env Envelope
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &env)
	case ".json":
		err = json.Unmarshal(data, &env)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("decoding task file: %w", err)
	}

	if env.Tasks == nil {
		return nil, 0, fmt.Errorf("malformed task file %s: missing tasks list", path)
	}

	for _, rec := range env.Tasks {
		t, err := ToTask(rec)
		if err != nil {
			skipped++
			log.Warn().Err(err).Str("task", rec.Name).Msg("Skipping unloadable task record")
			continue
		}
		tasks = append(tasks, t)
	}

	return tasks, skipped, nil
}
