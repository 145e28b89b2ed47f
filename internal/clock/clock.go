package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so billing dates can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Today truncates the clock's current time to UTC midnight.
func Today(c Clock) time.Time {
	return StartOfDay(c.Now())
}

// StartOfDay returns midnight UTC of the calendar date of t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
