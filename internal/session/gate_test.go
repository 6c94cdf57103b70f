package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(loc *time.Location, h, m int) time.Time {
	return time.Date(2024, 6, 3, h, m, 0, 0, loc)
}

func TestGateDaySession(t *testing.T) {
	g, err := NewGate(ClockTime{8, 30}, ClockTime{20, 30}, time.UTC)
	require.NoError(t, err)

	assert.True(t, g.Allows(at(time.UTC, 8, 30)), "start is inclusive")
	assert.True(t, g.Allows(at(time.UTC, 12, 0)))
	assert.False(t, g.Allows(at(time.UTC, 20, 30)), "end is exclusive")
	assert.False(t, g.Allows(at(time.UTC, 8, 29)))
}

func TestGateWrapsPastMidnight(t *testing.T) {
	g, err := NewGate(ClockTime{22, 0}, ClockTime{2, 0}, time.UTC)
	require.NoError(t, err)

	assert.True(t, g.Allows(at(time.UTC, 23, 30)))
	assert.True(t, g.Allows(at(time.UTC, 1, 30)))
	assert.True(t, g.Allows(at(time.UTC, 22, 0)))
	assert.False(t, g.Allows(at(time.UTC, 2, 0)))
	assert.False(t, g.Allows(at(time.UTC, 12, 0)))
}

func TestGateUsesConfiguredTimezone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	g, err := NewGate(ClockTime{8, 30}, ClockTime{20, 30}, berlin)
	require.NoError(t, err)

	// 07:00 UTC is 09:00 in Berlin summer time
	assert.True(t, g.Allows(at(time.UTC, 7, 0)))
	// 19:00 UTC is 21:00 in Berlin
	assert.False(t, g.Allows(at(time.UTC, 19, 0)))
}

func TestGateRejectsEmptyWindow(t *testing.T) {
	_, err := NewGate(ClockTime{9, 0}, ClockTime{9, 0}, time.UTC)
	assert.True(t, errors.Is(err, ErrEmptyWindow))
}

func TestDisabledGateAdmitsAll(t *testing.T) {
	var g Gate
	assert.True(t, g.Allows(at(time.UTC, 3, 0)))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{8, 30}, c)
	assert.Equal(t, "08:30", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
