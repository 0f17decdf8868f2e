// Package clock provides an injectable time source.
// Services take a Clock instead of calling time.Now directly so tests can
// supply deterministic business dates.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Today returns the date-only value (UTC midnight) for the clock's current time.
// Used as the default effective date for ledger entries.
func Today(c Clock) time.Time {
	return Truncate(c.Now())
}

// Truncate drops the time-of-day component, normalizing to UTC midnight.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// System is the wall-clock implementation.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. For tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// At creates a Fixed clock at the given instant.
func At(t time.Time) Fixed { return Fixed{T: t} }
