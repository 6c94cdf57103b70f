package indicators

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/wbws/internal/bars"
)

func closesSeries(closes ...float64) bars.Series {
	s := bars.Series{Timeframe: time.Minute}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Bars = append(s.Bars, bars.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
		})
	}
	return s
}

func TestRSIWilder(t *testing.T) {
	h := NewHistory(closesSeries(10, 12, 11, 13))

	_, err := h.At(1).RSI(2)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))

	v, err := h.At(2).RSI(2)
	require.NoError(t, err)
	assert.InDelta(t, 66.6667, v, 1e-3)

	v, err = h.At(3).RSI(2)
	require.NoError(t, err)
	assert.InDelta(t, 85.7143, v, 1e-3)
}

func TestRSIIsCausal(t *testing.T) {
	closes := []float64{100, 101, 103, 102, 104, 107, 105, 106, 108, 107, 110, 111, 109, 112, 115, 113}
	full := NewHistory(closesSeries(closes...))
	prefix := NewHistory(closesSeries(closes[:12]...))

	for i := 5; i < 12; i++ {
		a, err := full.At(i).RSI(5)
		require.NoError(t, err)
		b, err := prefix.At(i).RSI(5)
		require.NoError(t, err)
		assert.Equal(t, a, b, "bar %d", i)
	}
}

func TestATRConstantRange(t *testing.T) {
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	s := closesSeries(closes...)
	for i := range s.Bars {
		s.Bars[i].High = 105
		s.Bars[i].Low = 95
	}
	h := NewHistory(s)

	_, err := h.At(13).ATR(14)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))

	v, err := h.At(14).ATR(14)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)

	v, err = h.At(19).ATR(14)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestShortSeriesIsInsufficientNotPanic(t *testing.T) {
	h := NewHistory(closesSeries(1, 2, 3))
	_, err := h.At(2).ATR(14)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	_, err = h.At(2).RSI(14)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	_, _, _, err = h.At(2).BBands(20, 2)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestBBandsFlatSeries(t *testing.T) {
	h := NewHistory(closesSeries(50, 50, 50, 50, 50))
	upper, middle, lower, err := h.At(4).BBands(3, 2)
	require.NoError(t, err)
	assert.InDelta(t, 50, middle, 1e-9)
	assert.InDelta(t, 50, upper, 1e-9)
	assert.InDelta(t, 50, lower, 1e-9)
}

func TestTrueRanges(t *testing.T) {
	s := closesSeries(100, 104, 98)
	// gap: bar 1 opens above the prior close
	s.Bars[1].High, s.Bars[1].Low = 106, 103
	h := NewHistory(s)

	tr, err := h.At(2).TrueRanges(3)
	require.NoError(t, err)
	require.Len(t, tr, 3)
	assert.InDelta(t, 2, tr[0], 1e-9) // high-low of first bar
	assert.InDelta(t, 6, tr[1], 1e-9) // 106 - prior close 100
	assert.InDelta(t, 7, tr[2], 1e-9) // prior close 104 - low 97
}
