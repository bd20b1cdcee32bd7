package osched

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

const markerPrefix = "# chime:"

// Crontab mirrors tasks into the user's crontab. Managed entries carry
// a trailing marker comment so Remove only touches lines chime wrote.
type Crontab struct {
	// run is swappable for tests; defaults to invoking crontab(1).
	run func(args []string, stdin string) (string, error)
}

// NewCrontab creates a crontab adapter. It returns an error when the
// crontab binary is not on PATH.
func NewCrontab() (*Crontab, error) {
	if _, err := exec.LookPath("crontab"); err != nil {
		return nil, fmt.Errorf("crontab not available: %w", err)
	}
	return &Crontab{run: runCrontab}, nil
}

func runCrontab(args []string, stdin string) (string, error) {
	cmd := exec.Command("crontab", args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		// "no crontab for user" on first use is not an error here.
		if strings.Contains(string(out), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("crontab %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Register writes or replaces the crontab entry for name.
func (c *Crontab) Register(name, scriptPath, cronExpr string) error {
	current, err := c.run([]string{"-l"}, "")
	if err != nil {
		return fmt.Errorf("reading crontab: %w", err)
	}

	lines := withoutEntry(current, name)
	lines = append(lines, Entry(name, scriptPath, cronExpr))

	if err := c.install(lines); err != nil {
		return err
	}

	log.Debug().Str("task", name).Str("cron", cronExpr).Msg("Registered crontab entry")
	return nil
}

// Remove deletes the crontab entry for name, if present.
func (c *Crontab) Remove(name string) error {
	current, err := c.run([]string{"-l"}, "")
	if err != nil {
		return fmt.Errorf("reading crontab: %w", err)
	}

	lines := withoutEntry(current, name)
	return c.install(lines)
}

func (c *Crontab) install(lines []string) error {
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if _, err := c.run([]string{"-"}, content); err != nil {
		return fmt.Errorf("writing crontab: %w", err)
	}
	return nil
}

// Entry renders one managed crontab line.
func Entry(name, scriptPath, cronExpr string) string {
	return fmt.Sprintf("%s %s %s%s", cronExpr, scriptPath, markerPrefix, name)
}

func withoutEntry(crontab, name string) []string {
	marker := markerPrefix + name
	var kept []string
	for _, line := range strings.Split(crontab, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasSuffix(strings.TrimSpace(line), marker) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}
