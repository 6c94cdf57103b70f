package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyWindow is returned for a session whose start equals its end
var ErrEmptyWindow = errors.New("session start equals end")

// ClockTime is a wall-clock time of day
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// Gate admits timestamps whose local time of day falls in [Start, End).
// A start later than the end wraps past midnight.
type Gate struct {
	Enabled  bool
	Start    ClockTime
	End      ClockTime
	Location *time.Location
}

// NewGate validates the window and returns an enabled gate
func NewGate(start, end ClockTime, loc *time.Location) (Gate, error) {
	if start == end {
		return Gate{}, fmt.Errorf("%w: %s", ErrEmptyWindow, start)
	}
	for _, c := range []ClockTime{start, end} {
		if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
			return Gate{}, fmt.Errorf("clock time out of range: %d:%d", c.Hour, c.Minute)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return Gate{Enabled: true, Start: start, End: end, Location: loc}, nil
}

// Allows reports whether ts is inside the session. A disabled gate admits everything.
func (g Gate) Allows(ts time.Time) bool {
	if !g.Enabled {
		return true
	}
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	m := local.Hour()*60 + local.Minute()

	start, end := g.Start.minutes(), g.End.minutes()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}
