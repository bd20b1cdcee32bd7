package scheduler

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zalrik/chime/internal/metrics"
	"github.com/zalrik/chime/internal/task"
	"github.com/zalrik/chime/internal/taskfile"
)

// SaveTasks persists the registered script tasks to path. In-process
// tasks cannot survive a restart and are skipped with a log.
func (s *Scheduler) SaveTasks(path string) error {
	tasks := s.List()

	skipped, err := taskfile.Save(path, tasks)
	if err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("saved", len(tasks)-skipped).
		Int("skipped", skipped).
		Msg("Tasks saved")

	return nil
}

// LoadTasks reads tasks from path and registers them. With replace
// true the current registry is cleared first; otherwise loaded tasks
// merge in and records whose names collide with registered tasks are
// skipped. It returns the number of tasks added.
func (s *Scheduler) LoadTasks(path string, replace bool) (int, error) {
	loaded, bad, err := taskfile.Load(path)
	if err != nil {
		return 0, fmt.Errorf("loading tasks: %w", err)
	}

	if replace {
		s.clear()
	}

	added, dupes := 0, 0
	for _, t := range loaded {
		if err := s.AddTask(t); err != nil {
			dupes++
			log.Warn().Str("task", t.Name).Msg("Skipping task from file, name already registered")
			continue
		}
		added++
	}

	log.Info().
		Str("path", path).
		Int("added", added).
		Int("duplicates", dupes).
		Int("unloadable", bad).
		Msg("Tasks loaded")

	return added, nil
}

func (s *Scheduler) clear() {
	s.mu.Lock()
	cleared := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		cleared = append(cleared, id)
	}
	removed := s.tasks
	s.tasks = make(map[string]*task.Task)
	s.byName = make(map[string]string)
	s.mu.Unlock()

	metrics.SetScheduledTasks(0)
	for _, id := range cleared {
		s.unmirrorFromOS(removed[id])
	}
}
