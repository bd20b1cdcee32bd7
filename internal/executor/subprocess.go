package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zalrik/chime/internal/task"
)

// runScript spawns the script as a child process, capturing stdout and
// stderr. A configured timeout is a hard bound: the process is killed when
// the context deadline passes.
func runScript(ctx context.Context, script string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, script) //nolint:gosec // Script path comes from task configuration
	return capture(ctx, cmd, script, timeout)
}

// runSandboxed spawns the script with a sandbox environment marker and,
// where the platform supports it, resource ceilings applied before the
// child executes user code. On platforms without rlimit support the
// ceilings are accepted but not enforced; that asymmetry is surfaced
// through Capability and a warning, never papered over.
func runSandboxed(ctx context.Context, script string, timeout time.Duration, pol task.SandboxPolicy) (string, error) {
	capa := Capability()
	if !capa.Enforced && (pol.MaxMemoryMB > 0 || pol.MaxCPUSeconds > 0) {
		log.Warn().
			Str("script", script).
			Int("max_memory_mb", pol.MaxMemoryMB).
			Int("max_cpu_seconds", pol.MaxCPUSeconds).
			Str("reason", capa.Reason).
			Msg("Sandbox resource limits accepted but not enforced on this platform")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := sandboxCommand(ctx, script, pol)
	cmd.Env = append(os.Environ(), sandboxEnvVar+"=1")

	out, err := capture(ctx, cmd, script, timeout)
	if err == nil {
		return out, nil
	}

	var exitErr *ExitError
	if pol.MaxMemoryMB > 0 && errors.As(err, &exitErr) && looksLikeMemoryFailure(exitErr.Stderr) {
		return out, &MemoryLimitError{LimitMB: pol.MaxMemoryMB}
	}
	return out, err
}

// capture runs the prepared command and classifies failure as timeout,
// nonzero exit, or generic execution error.
func capture(ctx context.Context, cmd *exec.Cmd, script string, timeout time.Duration) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := truncate(stdout.String())
	if err == nil {
		return out, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return out, &TimeoutError{Timeout: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{
			Code:   exitErr.ExitCode(),
			Stderr: truncate(stderr.String()),
		}
	}

	return out, fmt.Errorf("executing script %s: %w", script, err)
}

// looksLikeMemoryFailure guesses from stderr whether a nonzero exit was an
// allocation failure under the address-space ceiling. The child is killed
// or errors out by the OS, so this heuristic is the best signal available.
func looksLikeMemoryFailure(stderr string) bool {
	for _, marker := range []string{
		"out of memory",
		"Cannot allocate memory",
		"cannot allocate memory",
		"MemoryError",
		"std::bad_alloc",
	} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}
