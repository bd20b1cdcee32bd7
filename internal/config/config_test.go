package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultMaxWorkers, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, DefaultPollInterval, cfg.Scheduler.PollInterval)
	assert.Equal(t, DefaultTaskFile, cfg.TaskFile.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chime.yaml")
	content := `
scheduler:
  max_workers: 8
  poll_interval: 2s
logging:
  level: debug
  format: json
tasks:
  - name: nightly-backup
    script: /usr/local/bin/backup.sh
    cron: "0 2 * * *"
    retries: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, "nightly-backup", cfg.Tasks[0].Name)
	assert.Equal(t, 2, cfg.Tasks[0].Retries)
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_workers: 2\n"), 0o644))

	t.Setenv("CHIME_SCHEDULER_MAX_WORKERS", "16")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Scheduler.MaxWorkers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "zero workers",
			mutate:  func(cfg *Config) { cfg.Scheduler.MaxWorkers = 0 },
			wantErr: "scheduler.max_workers",
		},
		{
			name:    "negative poll interval",
			mutate:  func(cfg *Config) { cfg.Scheduler.PollInterval = -time.Second },
			wantErr: "scheduler.poll_interval",
		},
		{
			name:    "bad task file extension",
			mutate:  func(cfg *Config) { cfg.TaskFile.Path = "tasks.toml" },
			wantErr: "task_file.path",
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "history enabled without path",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Path = ""
			},
			wantErr: "history.path",
		},
		{
			name: "task missing schedule",
			mutate: func(cfg *Config) {
				cfg.Tasks = []TaskConfig{{Name: "t", Script: "/bin/true"}}
			},
			wantErr: "one of every or cron is required",
		},
		{
			name: "task with both schedules",
			mutate: func(cfg *Config) {
				cfg.Tasks = []TaskConfig{{Name: "t", Script: "/bin/true", Every: "5m", Cron: "* * * * *"}}
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "duplicate task names",
			mutate: func(cfg *Config) {
				cfg.Tasks = []TaskConfig{
					{Name: "t", Script: "/bin/true", Every: "5m"},
					{Name: "t", Script: "/bin/false", Every: "1m"},
				}
			},
			wantErr: "duplicate task name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
