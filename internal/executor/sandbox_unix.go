//go:build unix

package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zalrik/chime/internal/task"
)

// SandboxCapability reports whether sandbox resource ceilings are actually
// enforced on this platform.
type SandboxCapability struct {
	Enforced bool
	Reason   string
}

// Capability reports that POSIX rlimits are available.
func Capability() SandboxCapability {
	return SandboxCapability{Enforced: true}
}

// sandboxCommand wraps the script in a shell that applies rlimits before
// exec'ing it, so the ceilings bind the child before any user code runs.
// ulimit -v takes kilobytes, ulimit -t CPU seconds.
func sandboxCommand(ctx context.Context, script string, pol task.SandboxPolicy) *exec.Cmd {
	var limits []string
	if pol.MaxMemoryMB > 0 {
		limits = append(limits, fmt.Sprintf("ulimit -v %d", pol.MaxMemoryMB*1024))
	}
	if pol.MaxCPUSeconds > 0 {
		limits = append(limits, fmt.Sprintf("ulimit -t %d", pol.MaxCPUSeconds))
	}
	if len(limits) == 0 {
		return exec.CommandContext(ctx, script) //nolint:gosec // Script path comes from task configuration
	}

	wrapper := strings.Join(limits, "; ") + `; exec "$0"`
	return exec.CommandContext(ctx, "/bin/sh", "-c", wrapper, script)
}
