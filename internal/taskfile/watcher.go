package taskfile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultDebounceDuration = 500 * time.Millisecond

// Watcher watches a task file and invokes a callback when it changes.
// Editors often produce bursts of write events; changes are debounced
// before the callback fires.
type Watcher struct {
	path             string
	onChange         func(path string)
	watcher          *fsnotify.Watcher
	debounceDuration time.Duration
	debounceTimer    *time.Timer
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// NewWatcher creates a watcher for the given task file.
func NewWatcher(path string, onChange func(path string)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		path:             path,
		onChange:         onChange,
		watcher:          watcher,
		debounceDuration: defaultDebounceDuration,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// SetDebounceDuration sets the debounce duration for change events.
func (w *Watcher) SetDebounceDuration(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDuration = d
}

// Start begins watching. The parent directory is watched rather than
// the file itself so atomic rename-over saves are still seen.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("adding watch for %s: %w", dir, err)
	}

	log.Debug().Str("path", w.path).Msg("Watching task file")

	w.wg.Add(1)
	go w.eventLoop()

	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.debounce()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Task file watcher error")
		}
	}
}

func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceDuration, func() {
		if w.ctx.Err() != nil {
			return
		}
		log.Info().Str("path", w.path).Msg("Task file changed, reloading")
		w.onChange(w.path)
	})
}
