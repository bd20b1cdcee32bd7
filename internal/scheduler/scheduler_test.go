package scheduler

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalrik/chime/internal/config"
	"github.com/zalrik/chime/internal/task"
)

func testScheduler(t *testing.T, maxWorkers int) *Scheduler {
	t.Helper()

	s := New(config.SchedulerConfig{
		MaxWorkers:   maxWorkers,
		PollInterval: 10 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
		StopTimeout:  time.Second,
	})
	t.Cleanup(s.Stop)

	return s
}

func TestScheduler_AddRemove(t *testing.T) {
	s := testScheduler(t, 2)

	tk, err := s.Add(task.Config{
		Name:   "backup",
		Script: "/bin/true",
		Every:  "5m",
	})
	require.NoError(t, err)

	got, err := s.GetByName("backup")
	require.NoError(t, err)
	assert.Same(t, tk, got)

	got, err = s.Get(tk.ID)
	require.NoError(t, err)
	assert.Same(t, tk, got)

	// Duplicate names are rejected.
	_, err = s.Add(task.Config{Name: "backup", Script: "/bin/true", Every: "1m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.NoError(t, s.RemoveByName("backup"))
	_, err = s.GetByName("backup")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.List())
}

func TestScheduler_Remove_NotFound(t *testing.T) {
	s := testScheduler(t, 2)

	assert.ErrorIs(t, s.Remove("missing"), ErrNotFound)
	assert.ErrorIs(t, s.RemoveByName("missing"), ErrNotFound)
}

func TestScheduler_WorkerCap(t *testing.T) {
	s := testScheduler(t, 2)

	var concurrent, peak, runs atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 5; i++ {
		_, err := s.Add(task.Config{
			Name:  fmt.Sprintf("slow-%d", i),
			Every: "1h",
			Func: func() error {
				n := concurrent.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				concurrent.Add(-1)
				runs.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	s.Start(false)

	// All five tasks are due immediately; only two may run at once.
	require.Eventually(t, func() bool {
		return concurrent.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Holding the cap for several ticks must not admit a third.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 2, concurrent.Load())

	close(release)
	require.Eventually(t, func() bool {
		return runs.Load() >= 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestScheduler_RunsDueTask(t *testing.T) {
	s := testScheduler(t, 2)

	ran := make(chan struct{}, 1)
	_, err := s.Add(task.Config{
		Name:  "quick",
		Every: "1s",
		Func: func() error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start(false)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestScheduler_StopTimeoutBounded(t *testing.T) {
	s := New(config.SchedulerConfig{
		MaxWorkers:   2,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  100 * time.Millisecond,
	})

	release := make(chan struct{})
	defer close(release)

	var running atomic.Int32
	for i := 0; i < 2; i++ {
		_, err := s.Add(task.Config{
			Name:  fmt.Sprintf("stuck-%d", i),
			Every: "1h",
			Func: func() error {
				running.Add(1)
				<-release
				return nil
			},
		})
		require.NoError(t, err)
	}

	s.Start(false)
	require.Eventually(t, func() bool {
		return running.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Both stuck executions share one stop budget; once it expires the
	// remaining handles are abandoned rather than each waited in turn.
	start := time.Now()
	s.Stop()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestScheduler_TickPanicBacksOffAndContinues(t *testing.T) {
	s := New(config.SchedulerConfig{
		MaxWorkers:   2,
		PollInterval: 10 * time.Millisecond,
		ErrorBackoff: 150 * time.Millisecond,
		StopTimeout:  time.Second,
	})
	t.Cleanup(s.Stop)

	var tickTimes []time.Time
	var mu sync.Mutex
	s.beforeTick = func(now time.Time) {
		mu.Lock()
		tickTimes = append(tickTimes, time.Now())
		n := len(tickTimes)
		mu.Unlock()
		if n == 1 {
			panic("injected tick failure")
		}
	}

	ran := make(chan struct{}, 1)
	_, err := s.Add(task.Config{
		Name:  "survivor",
		Every: "1h",
		Func: func() error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start(false)

	// The loop survives the panicked tick and still dispatches.
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not recover from tick panic")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(tickTimes), 2)
	gap := tickTimes[1].Sub(tickTimes[0])
	assert.GreaterOrEqual(t, gap, 150*time.Millisecond)
}

func TestScheduler_StartIdempotent(t *testing.T) {
	s := testScheduler(t, 2)

	s.Start(false)
	s.Start(false) // logs and returns
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // no-op
}

type fakeAdapter struct {
	mu         sync.Mutex
	registered map[string]string
}

func (a *fakeAdapter) Register(name, script, cronExpr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registered == nil {
		a.registered = make(map[string]string)
	}
	a.registered[name] = cronExpr
	return nil
}

func (a *fakeAdapter) Remove(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.registered, name)
	return nil
}

func TestScheduler_OSMirroring(t *testing.T) {
	adapter := &fakeAdapter{}
	s := New(config.SchedulerConfig{}, WithOSAdapter(adapter))

	_, err := s.Add(task.Config{Name: "backup", Script: "/opt/backup.sh", Every: "5m"})
	require.NoError(t, err)
	_, err = s.Add(task.Config{Name: "inproc", Func: func() error { return nil }, Every: "5m"})
	require.NoError(t, err)

	// Intervals are approximated as cron expressions; in-process tasks
	// are never mirrored.
	assert.Equal(t, map[string]string{"backup": "*/5 * * * *"}, adapter.registered)

	require.NoError(t, s.RemoveByName("backup"))
	assert.Empty(t, adapter.registered)
}

func TestScheduler_SaveLoadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")

	s := testScheduler(t, 2)
	_, err := s.Add(task.Config{Name: "one", Script: "/bin/true", Every: "5m"})
	require.NoError(t, err)
	_, err = s.Add(task.Config{Name: "two", Script: "/bin/true", Cron: "0 2 * * *"})
	require.NoError(t, err)

	require.NoError(t, s.SaveTasks(path))

	// Merge keeps existing tasks and skips colliding names.
	other := testScheduler(t, 2)
	_, err = other.Add(task.Config{Name: "one", Script: "/bin/false", Every: "1m"})
	require.NoError(t, err)

	added, err := other.LoadTasks(path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Len(t, other.List(), 2)

	existing, err := other.GetByName("one")
	require.NoError(t, err)
	assert.Equal(t, task.Script("/bin/false"), existing.Run)

	// Replace clears the registry first.
	added, err = other.LoadTasks(path, true)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Len(t, other.List(), 2)

	replaced, err := other.GetByName("one")
	require.NoError(t, err)
	assert.Equal(t, task.Script("/bin/true"), replaced.Run)
}
