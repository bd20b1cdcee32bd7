// Package executor runs one task attempt using the execution strategy
// selected by the task's configuration: an in-process call, a plain
// subprocess, or a sandboxed subprocess with resource ceilings.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/zalrik/chime/internal/task"
)

const (
	// maxCapturedOutput bounds stdout/stderr captured from subprocesses.
	maxCapturedOutput = 10000
	truncationMarker  = "\n... (output truncated)"

	// sandboxEnvVar marks sandboxed execution in the child's environment.
	sandboxEnvVar = "CHIME_SANDBOX"
)

// TimeoutError reports an execution that exceeded its configured timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

// ExitError reports a subprocess that exited with a nonzero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script failed with exit code %d: %s", e.Code, e.Stderr)
}

// MemoryLimitError reports a sandboxed subprocess that violated its memory
// ceiling.
type MemoryLimitError struct {
	LimitMB int
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("script exceeded memory limit (%dMB)", e.LimitMB)
}

// Run executes one attempt of the task and returns captured output, if any.
// The strategy follows from the task's executable variant and sandbox
// policy; there is no invalid combination to reject here.
func Run(ctx context.Context, t *task.Task) (string, error) {
	switch r := t.Run.(type) {
	case task.Func:
		return "", runFunc(r, t.Timeout)
	case task.CtxFunc:
		return "", runCtxFunc(ctx, r, t.Timeout)
	case task.Script:
		if t.Sandbox.Enabled {
			return runSandboxed(ctx, string(r), t.Timeout, t.Sandbox)
		}
		return runScript(ctx, string(r), t.Timeout)
	default:
		return "", fmt.Errorf("unsupported executable type %T", t.Run)
	}
}

func truncate(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + truncationMarker
}
