// Package notify delivers task outcome notifications.
package notify

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogNotifier writes notifications to the structured log. It is the
// default notifier when no external channel is configured.
type LogNotifier struct {
	// Logger overrides the global logger when set, mainly for tests.
	Logger *zerolog.Logger
}

func (n *LogNotifier) logger() *zerolog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return &log.Logger
}

func (n *LogNotifier) NotifySuccess(taskName string, duration time.Duration, channels []string) {
	n.logger().Info().
		Str("task", taskName).
		Dur("duration", duration).
		Strs("channels", channels).
		Msg("Task succeeded")
}

func (n *LogNotifier) NotifyFailure(taskName string, err error, attempt, maxAttempts int, channels []string) {
	n.logger().Error().
		Str("task", taskName).
		Err(err).
		Int("attempt", attempt).
		Int("max_attempts", maxAttempts).
		Strs("channels", channels).
		Msg("Task failed")
}
