package candles

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/wbws/internal/bars"
)

func bar(o, h, l, c float64) bars.Bar {
	return bars.Bar{Timestamp: time.Unix(0, 0), Open: o, High: h, Low: l, Close: c}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		bar       bars.Bar
		threshold float64
		want      Type
		strength  float64
		zeroRange bool
	}{
		{"strong bullish", bar(100, 110, 100, 108), 0.1, Bullish, 0.8, false},
		{"strong bearish", bar(108, 110, 100, 100), 0.1, Bearish, 0.8, false},
		{"doji below threshold", bar(100, 110, 100, 100.5), 0.1, Neutral, 0.05, false},
		{"exactly at threshold is directional", bar(100, 110, 100, 101), 0.1, Bullish, 0.1, false},
		{"close equals open", bar(105, 110, 100, 105), 0, Neutral, 0, false},
		{"zero range", bar(100, 100, 100, 100), 0.1, Neutral, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.bar, tt.threshold)
			assert.Equal(t, tt.want, got.Type)
			assert.InDelta(t, tt.strength, got.Strength, 1e-9)
			assert.Equal(t, tt.zeroRange, got.ZeroRange)
		})
	}
}

func TestClassifyIsTotalAndIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		low := rng.Float64() * 100
		high := low + rng.Float64()*5
		if i%50 == 0 {
			high = low
		}
		open := low + rng.Float64()*(high-low)
		closePx := low + rng.Float64()*(high-low)
		b := bar(open, high, low, closePx)

		first := Classify(b, 0.1)
		second := Classify(b, 0.1)
		assert.Equal(t, first, second)
		assert.Contains(t, []Type{Bullish, Bearish, Neutral}, first.Type)
		assert.GreaterOrEqual(t, first.Strength, 0.0)
		assert.LessOrEqual(t, first.Strength, 1.0+1e-12)
	}
}

func TestStratType(t *testing.T) {
	prev := bar(100, 110, 90, 105)

	assert.Equal(t, StratInside, StratType(prev, bar(100, 110, 90, 100)))
	assert.Equal(t, StratOutside, StratType(prev, bar(100, 111, 89, 100)))
	assert.Equal(t, StratTwoUp, StratType(prev, bar(100, 112, 95, 100)))
	assert.Equal(t, StratTwoDown, StratType(prev, bar(100, 105, 85, 100)))
	assert.Equal(t, "2u", StratTwoUp.String())
}

func TestStratSeriesFirstBarUnknown(t *testing.T) {
	s := bars.Series{Timeframe: time.Minute, Bars: []bars.Bar{bar(1, 2, 0, 1), bar(1, 3, 0.5, 2)}}
	out := StratSeries(s)
	assert.Equal(t, []Strat{StratUnknown, StratTwoUp}, out)
}
