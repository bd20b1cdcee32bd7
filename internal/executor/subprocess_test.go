//go:build unix

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalrik/chime/internal/task"
)

// writeScript drops an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	require.NoError(t, err)
	return path
}

func newScriptTask(t *testing.T, script string, timeout time.Duration, sandbox bool, memMB int) *task.Task {
	t.Helper()
	tk, err := task.New(task.Config{
		Name:        "script-task",
		Script:      script,
		Every:       "1m",
		Timeout:     timeout,
		Sandbox:     sandbox,
		MaxMemoryMB: memMB,
	})
	require.NoError(t, err)
	return tk
}

func TestRun_Script(t *testing.T) {
	script := writeScript(t, `echo hello`)
	tk := newScriptTask(t, script, 0, false, 0)

	out, err := Run(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestRun_Script_NonzeroExit(t *testing.T) {
	script := writeScript(t, `echo "something broke" >&2; exit 3`)
	tk := newScriptTask(t, script, 0, false, 0)

	_, err := Run(context.Background(), tk)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "something broke")
}

func TestRun_Script_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	tk := newScriptTask(t, script, 100*time.Millisecond, false, 0)

	start := time.Now()
	_, err := Run(context.Background(), tk)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	// Hard kill bound: the five second sleep must not run to completion.
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRun_Script_Missing(t *testing.T) {
	tk := newScriptTask(t, "/nonexistent/script.sh", 0, false, 0)

	_, err := Run(context.Background(), tk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing script")
}

func TestRun_Script_OutputTruncated(t *testing.T) {
	// ~30k characters of output.
	script := writeScript(t, `i=0; while [ $i -lt 300 ]; do printf '%0100d' 0; i=$((i+1)); done`)
	tk := newScriptTask(t, script, 0, false, 0)

	out, err := Run(context.Background(), tk)
	require.NoError(t, err)
	assert.Len(t, out, maxCapturedOutput+len(truncationMarker))
	assert.Contains(t, out, "output truncated")
}

func TestRun_Sandboxed_EnvMarker(t *testing.T) {
	script := writeScript(t, `echo "marker=$CHIME_SANDBOX"`)
	tk := newScriptTask(t, script, 0, true, 0)

	out, err := Run(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "marker=1\n", out)
}

func TestRun_Sandboxed_CapabilityEnforced(t *testing.T) {
	assert.True(t, Capability().Enforced)
}

func TestRun_Sandboxed_MemoryLimit(t *testing.T) {
	// Grow a shell variable well past the 16MB address-space ceiling. The
	// platform enforces the ceiling, so this must be reported as a failure
	// rather than hanging or silently succeeding.
	script := writeScript(t, `x=a
i=0
while [ $i -lt 30 ]; do x="$x$x"; i=$((i+1)); done
echo done`)
	tk := newScriptTask(t, script, 10*time.Second, true, 16)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = Run(context.Background(), tk)
		close(done)
	}()

	select {
	case <-done:
		assert.Error(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("sandboxed execution hung")
	}
}
