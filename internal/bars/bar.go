package bars

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV candle. Timestamp labels the start of the bar's period.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Range returns high minus low
func (b Bar) Range() float64 { return b.High - b.Low }

// Body returns the absolute open-to-close distance
func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

// Series is an ordered run of bars sharing one fixed timeframe. Location is the
// zone whose calendar day-multiple bars follow; nil means each bar's own zone.
type Series struct {
	Symbol    string         `json:"symbol"`
	Timeframe time.Duration  `json:"timeframe"`
	Location  *time.Location `json:"-"`
	Bars      []Bar          `json:"bars"`
}

// Len returns the number of bars in the series
func (s Series) Len() int { return len(s.Bars) }

// CloseTime returns the instant bar i is fully formed. A day-multiple bar
// labelled at local midnight closes at local midnight of its last day, so a
// 25-hour DST day closes an hour later than label plus timeframe.
func (s Series) CloseTime(i int) time.Time {
	return periodEnd(s.Bars[i].Timestamp, s.Timeframe, s.Location)
}

// Closes returns the close prices in bar order
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high prices in bar order
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low prices in bar order
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Head returns a copy of the series truncated to its first n bars
func (s Series) Head(n int) Series {
	if n > len(s.Bars) {
		n = len(s.Bars)
	}
	if n < 0 {
		n = 0
	}
	out := s
	out.Bars = append([]Bar(nil), s.Bars[:n]...)
	return out
}

// DataIntegrityError reports structurally corrupt input. A run that hits one must halt.
type DataIntegrityError struct {
	Series    string
	Index     int
	Timestamp time.Time
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("data integrity: %s series: %s", e.Series, e.Reason)
	}
	return fmt.Sprintf("data integrity: %s series bar %d (%s): %s",
		e.Series, e.Index, e.Timestamp.Format(time.RFC3339), e.Reason)
}

// Validate checks ordering and OHLCV consistency. name labels the series in diagnostics.
func (s Series) Validate(name string) error {
	if s.Timeframe <= 0 {
		return &DataIntegrityError{Series: name, Index: -1, Reason: fmt.Sprintf("non-positive timeframe %v", s.Timeframe)}
	}

	for i, b := range s.Bars {
		fail := func(format string, args ...interface{}) error {
			return &DataIntegrityError{Series: name, Index: i, Timestamp: b.Timestamp, Reason: fmt.Sprintf(format, args...)}
		}

		if b.Timestamp.IsZero() {
			return fail("missing timestamp")
		}
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fail("non-finite value")
			}
		}
		if b.Volume < 0 {
			return fail("negative volume %.4f", b.Volume)
		}
		if b.High < b.Low {
			return fail("negative range: high %.5f < low %.5f", b.High, b.Low)
		}
		if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
			return fail("open/close outside high-low range")
		}
		if i > 0 && !b.Timestamp.After(s.Bars[i-1].Timestamp) {
			return fail("timestamp not after previous bar %s", s.Bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}

	return nil
}
