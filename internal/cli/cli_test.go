package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		cfgFile = ""
		tasksFilter = ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
tasks:
  - name: backup
    script: /opt/backup.sh
    cron: "0 2 * * *"
`)

	out, err := execute(t, "--config", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "1 task(s) declared")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  max_workers: 0
`)

	_, err := execute(t, "--config", path, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.max_workers")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chime version")
}

func TestTasksCommand(t *testing.T) {
	dir := t.TempDir()
	taskPath := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(taskPath, []byte(`
version: 1
saved_at: 2026-01-01T00:00:00Z
tasks:
  - name: backup-nightly
    script: /opt/backup.sh
    schedule_kind: cron
    schedule_value: "0 2 * * *"
    enabled: true
  - name: report
    script: /opt/report.sh
    schedule_kind: interval
    schedule_value: 5m
    enabled: true
`), 0o644))

	cfgPath := writeConfig(t, "task_file:\n  path: "+taskPath+"\n")

	out, err := execute(t, "--config", cfgPath, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "backup-nightly")
	assert.Contains(t, out, "report")

	out, err = execute(t, "--config", cfgPath, "tasks", "--filter", "backup-*")
	require.NoError(t, err)
	assert.Contains(t, out, "backup-nightly")
	assert.NotContains(t, out, "report")
}
