//go:build !unix

package executor

import (
	"context"
	"os/exec"

	"github.com/zalrik/chime/internal/task"
)

// SandboxCapability reports whether sandbox resource ceilings are actually
// enforced on this platform.
type SandboxCapability struct {
	Enforced bool
	Reason   string
}

// Capability reports that this platform has no rlimit equivalent; ceilings
// are accepted but not enforced.
func Capability() SandboxCapability {
	return SandboxCapability{
		Enforced: false,
		Reason:   "resource limits require POSIX rlimits",
	}
}

// sandboxCommand spawns the script without resource ceilings. The caller
// logs the accepted-but-unenforced limits; timeouts still apply.
func sandboxCommand(ctx context.Context, script string, _ task.SandboxPolicy) *exec.Cmd {
	return exec.CommandContext(ctx, script) //nolint:gosec // Script path comes from task configuration
}
