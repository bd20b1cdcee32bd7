package taskfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalrik/chime/internal/task"
)

func scriptTask(t *testing.T, cfg task.Config) *task.Task {
	t.Helper()
	tk, err := task.New(cfg)
	require.NoError(t, err)
	return tk
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tasks"+ext)

			backup := scriptTask(t, task.Config{
				Name:       "backup",
				Script:     "/opt/backup.sh",
				Cron:       "0 2 * * *",
				Retries:    3,
				RetryDelay: 30 * time.Second,
				Timeout:    5 * time.Minute,
				Notify:     []string{"email"},
			})
			backup.IncrementRunCount()
			backup.AdvanceSchedule(time.Now().UTC().Truncate(time.Second))

			sandboxed := scriptTask(t, task.Config{
				Name:        "untrusted",
				Script:      "/opt/untrusted.sh",
				Every:       "5m",
				Sandbox:     true,
				MaxMemoryMB: 128,
			})
			sandboxed.SetEnabled(false)

			skipped, err := Save(path, []*task.Task{backup, sandboxed})
			require.NoError(t, err)
			assert.Zero(t, skipped)

			loaded, skipped, err := Load(path)
			require.NoError(t, err)
			assert.Zero(t, skipped)
			require.Len(t, loaded, 2)

			got := loaded[0]
			assert.Equal(t, backup.ID, got.ID)
			assert.Equal(t, "backup", got.Name)
			assert.Equal(t, task.Script("/opt/backup.sh"), got.Run)
			assert.Equal(t, "0 2 * * *", got.Schedule.Value())
			assert.Equal(t, 3, got.Retries)
			assert.Equal(t, 30*time.Second, got.RetryDelay)
			assert.Equal(t, 5*time.Minute, got.Timeout)
			assert.Equal(t, []string{"email"}, got.Notify)
			assert.Equal(t, 1, got.RunCount())
			assert.True(t, got.LastRun().Equal(backup.LastRun()))
			assert.True(t, got.NextRun().Equal(backup.NextRun()))

			got = loaded[1]
			assert.True(t, got.Sandbox.Enabled)
			assert.Equal(t, 128, got.Sandbox.MaxMemoryMB)
			assert.False(t, got.Enabled())
		})
	}
}

func TestSave_SkipsFuncTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")

	fn := scriptTask(t, task.Config{
		Name:  "in-process",
		Func:  func() error { return nil },
		Every: "1m",
	})
	sc := scriptTask(t, task.Config{
		Name:   "script",
		Script: "/bin/true",
		Every:  "1m",
	})

	skipped, err := Save(path, []*task.Task{fn, sc})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	loaded, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "script", loaded[0].Name)
}

func TestSave_UnsupportedExtension(t *testing.T) {
	_, err := Save(filepath.Join(t.TempDir(), "tasks.toml"), nil)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingTasksList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nsaved_at: 2026-01-01T00:00:00Z\n"), 0o644))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tasks list")
}

func TestLoad_SkipsBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	content := `
version: 1
saved_at: 2026-01-01T00:00:00Z
tasks:
  - name: good
    script: /bin/true
    schedule_kind: interval
    schedule_value: 5m
    enabled: true
  - name: bad
    script: /bin/true
    schedule_kind: interval
    schedule_value: not-a-duration
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, skipped, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, loaded, 1)
	assert.Equal(t, "good", loaded[0].Name)
}

func TestWatcher_FiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\ntasks: []\n"), 0o644))

	changed := make(chan string, 1)
	w, err := NewWatcher(path, func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	require.NoError(t, err)
	w.SetDebounceDuration(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("version: 1\ntasks: []\n# edited\n"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
}
