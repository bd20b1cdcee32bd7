// Package osched mirrors script tasks into the operating system's
// native scheduler so they survive process restarts.
package osched

import (
	"fmt"
	"time"
)

// Adapter registers and removes native scheduler entries for script
// tasks. Only script tasks can be mirrored; in-process functions have
// nothing the OS could invoke.
type Adapter interface {
	Register(name, scriptPath, cronExpr string) error
	Remove(name string) error
}

// Noop discards all registrations. Used when no native scheduler is
// available or mirroring is disabled.
type Noop struct{}

func (Noop) Register(name, scriptPath, cronExpr string) error { return nil }
func (Noop) Remove(name string) error                         { return nil }

// IntervalToCron approximates an interval as a five-field cron
// expression. Sub-minute intervals round up to every minute, the
// finest resolution cron offers.
func IntervalToCron(every time.Duration) string {
	seconds := int(every.Seconds())

	switch {
	case seconds < 60:
		return "* * * * *"
	case seconds < 3600:
		return fmt.Sprintf("*/%d * * * *", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("0 */%d * * *", seconds/3600)
	default:
		return "0 0 * * *"
	}
}
