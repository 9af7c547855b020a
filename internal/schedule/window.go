// Package schedule decides when the usage total is due for its periodic reset.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTolerance is how long after an activation a poll still counts as
// landing inside the reset window.
const DefaultTolerance = 10 * time.Second

// Window is a recurring reset rule. An activation "fires" for any instant in
// [activation, activation+tolerance), so a poll that lands a few seconds
// after the configured minute still triggers the reset.
type Window struct {
	spec      string
	schedule  cron.Schedule
	tolerance time.Duration
}

// Parse builds a Window from spec, which is either a daily "HH:MM" wall-clock
// time or a standard 5-field cron expression (optionally prefixed with
// CRON_TZ=<zone>), e.g. "0 0 1 * *" for a monthly reset.
// A non-positive tolerance selects DefaultTolerance.
func Parse(spec string, tolerance time.Duration) (*Window, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty reset schedule")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	expr := spec
	if daily, ok := dailyExpression(spec); ok {
		expr = daily
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", spec, err)
	}

	return &Window{spec: spec, schedule: sched, tolerance: tolerance}, nil
}

// dailyExpression converts "HH:MM" into the equivalent cron expression.
func dailyExpression(spec string) (string, bool) {
	if strings.Contains(spec, " ") {
		return "", false
	}
	t, err := time.Parse("15:04", spec)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), true
}

// String returns the schedule as configured.
func (w *Window) String() string {
	return w.spec
}

// Tolerance returns the width of the window after each activation.
func (w *Window) Tolerance() time.Duration {
	return w.tolerance
}

// Active reports whether now falls inside a reset window and, if so, which
// activation it belongs to. Callers use the activation to reset only once.
func (w *Window) Active(now time.Time) (time.Time, bool) {
	activation := w.schedule.Next(now.Add(-w.tolerance))
	if activation.After(now) {
		return time.Time{}, false
	}
	return activation, true
}

// Next returns the first activation strictly after now.
func (w *Window) Next(now time.Time) time.Time {
	return w.schedule.Next(now)
}
