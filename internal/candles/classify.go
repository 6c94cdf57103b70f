package candles

import (
	"github.com/sawpanic/wbws/internal/bars"
)

// Type is the directional class of a single candle
type Type int

const (
	Neutral Type = iota
	Bullish
	Bearish
)

func (t Type) String() string {
	switch t {
	case Neutral:
		return "neutral"
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// Opposite returns the reverse direction; neutral has no opposite
func (t Type) Opposite() Type {
	switch t {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return Neutral
	}
}

// Classification is the derived view of one bar
type Classification struct {
	Type     Type    `json:"type"`
	Strength float64 `json:"strength"` // body / range, 0 when range is zero
	// ZeroRange marks a bar whose high equals its low. Strength is undefined
	// for such a bar and the classification falls back to neutral.
	ZeroRange bool `json:"zero_range,omitempty"`
}

// Classify maps a bar onto bullish, bearish or neutral. A body-to-range ratio
// below dojiThreshold is neutral, as is any bar that closes where it opened.
func Classify(b bars.Bar, dojiThreshold float64) Classification {
	rng := b.Range()
	if rng <= 0 {
		return Classification{Type: Neutral, ZeroRange: true}
	}

	strength := b.Body() / rng
	c := Classification{Strength: strength}

	switch {
	case strength < dojiThreshold:
		c.Type = Neutral
	case b.Close > b.Open:
		c.Type = Bullish
	case b.Close < b.Open:
		c.Type = Bearish
	default:
		c.Type = Neutral
	}
	return c
}

// ClassifyAll classifies every bar of s, index for index.
func ClassifyAll(s bars.Series, dojiThreshold float64) []Classification {
	out := make([]Classification, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = Classify(b, dojiThreshold)
	}
	return out
}
