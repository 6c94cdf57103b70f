package bars

import (
	"fmt"
	"math"
	"time"
)

// Resample aggregates s into period-aligned buckets: open first, high max, low min,
// close last, volume sum. Day-multiple buckets are local calendar days in loc and
// shorter ones are counted from local midnight, so bucket starts stay increasing
// across DST changes. Buckets without source bars are left out.
func Resample(s Series, period time.Duration, loc *time.Location) (Series, error) {
	if loc == nil {
		loc = time.UTC
	}
	if s.Timeframe <= 0 {
		return Series{}, fmt.Errorf("source timeframe must be positive, got %v", s.Timeframe)
	}
	if period < s.Timeframe || period%s.Timeframe != 0 {
		return Series{}, fmt.Errorf("period %v must be a multiple of source timeframe %v", period, s.Timeframe)
	}

	out := Series{Symbol: s.Symbol, Timeframe: period, Location: loc}
	if len(s.Bars) == 0 {
		return out, nil
	}

	var current Bar
	var bucket time.Time
	open := false

	for _, b := range s.Bars {
		start := bucketStart(b.Timestamp, period, loc)
		if open && start.Equal(bucket) {
			current.High = math.Max(current.High, b.High)
			current.Low = math.Min(current.Low, b.Low)
			current.Close = b.Close
			current.Volume += b.Volume
			continue
		}
		if open {
			out.Bars = append(out.Bars, current)
		}
		bucket = start
		current = Bar{
			Timestamp: start,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
		open = true
	}
	out.Bars = append(out.Bars, current)

	return out, nil
}
