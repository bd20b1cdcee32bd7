// Package schedule computes execution instants for interval and cron
// based task schedules.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind identifies the schedule variant.
type Kind string

const (
	// KindInterval is a fixed-duration recurrence anchored to the previous run.
	KindInterval Kind = "interval"
	// KindCron is a calendar-field recurrence expression.
	KindCron Kind = "cron"
)

// Spec is a parsed, immutable schedule. Implementations are pure: the same
// inputs always yield the same next instant.
type Spec interface {
	Kind() Kind
	// Value returns the original schedule expression.
	Value() string
	// NextRun returns the next execution instant. A zero lastRun means the
	// schedule has never fired.
	NextRun(lastRun, now time.Time) time.Time
}

// Interval is a fixed-duration schedule.
type Interval struct {
	every time.Duration
	raw   string
}

// ParseEvery parses an interval expression such as "30s", "5m", "2h" or "1d".
// Day suffixes are handled explicitly; everything else goes through
// time.ParseDuration. Sub-second intervals are rejected.
func ParseEvery(expr string) (Interval, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Interval{}, fmt.Errorf("parsing interval: empty expression")
	}

	var d time.Duration
	if strings.HasSuffix(expr, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(expr, "d"))
		if err != nil {
			return Interval{}, fmt.Errorf("parsing interval %q: %w", expr, err)
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		var err error
		d, err = time.ParseDuration(expr)
		if err != nil {
			return Interval{}, fmt.Errorf("parsing interval %q: %w", expr, err)
		}
	}

	if d < time.Second {
		return Interval{}, fmt.Errorf("parsing interval %q: must be at least 1 second", expr)
	}

	return Interval{every: d, raw: expr}, nil
}

// Kind returns KindInterval.
func (i Interval) Kind() Kind { return KindInterval }

// Value returns the original interval expression.
func (i Interval) Value() string { return i.raw }

// Every returns the parsed duration.
func (i Interval) Every() time.Duration { return i.every }

// NextRun returns now for a schedule that has never fired (immediate
// eligibility), otherwise lastRun plus the interval.
func (i Interval) NextRun(lastRun, now time.Time) time.Time {
	if lastRun.IsZero() {
		return now
	}
	return lastRun.Add(i.every)
}

// cronParser accepts standard 5-field expressions with ranges, steps and
// lists, plus @descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron is a calendar-field schedule.
type Cron struct {
	expr  string
	sched cron.Schedule
}

// ParseCron parses a cron expression, failing on invalid syntax.
func ParseCron(expr string) (Cron, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Cron{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return Cron{expr: expr, sched: sched}, nil
}

// Kind returns KindCron.
func (c Cron) Kind() Kind { return KindCron }

// Value returns the original cron expression.
func (c Cron) Value() string { return c.expr }

// NextRun returns the next instant strictly after the reference time that
// satisfies the cron fields. The reference is lastRun, or now for a schedule
// that has never fired.
func (c Cron) NextRun(lastRun, now time.Time) time.Time {
	ref := lastRun
	if ref.IsZero() {
		ref = now
	}
	return c.sched.Next(ref)
}

// Parse builds a Spec from a kind and expression, used when reconstructing
// tasks from a persisted file.
func Parse(kind Kind, value string) (Spec, error) {
	switch kind {
	case KindInterval:
		return ParseEvery(value)
	case KindCron:
		return ParseCron(value)
	default:
		return nil, fmt.Errorf("unknown schedule type: %s", kind)
	}
}
