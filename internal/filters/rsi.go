package filters

import (
	"errors"
	"fmt"

	"github.com/sawpanic/wbws/internal/indicators"
	"github.com/sawpanic/wbws/internal/signals"
)

const RSIName = "rsi"

// MomentumState buckets an RSI reading
type MomentumState int

const (
	MomentumNeutral MomentumState = iota
	Oversold
	Overbought
)

func (m MomentumState) String() string {
	switch m {
	case Oversold:
		return "oversold"
	case Overbought:
		return "overbought"
	default:
		return "neutral"
	}
}

// RSIFilter vetoes buys into overbought and sells into oversold momentum.
type RSIFilter struct {
	Length     int
	Overbought float64
	Oversold   float64
}

// NewRSIFilter builds an RSI filter from length, overbought and oversold params
func NewRSIFilter(p Params) (Filter, error) {
	f := &RSIFilter{
		Length:     int(p.Get("length", 14)),
		Overbought: p.Get("overbought", 70),
		Oversold:   p.Get("oversold", 30),
	}
	if f.Length < 2 {
		return nil, fmt.Errorf("length must be >= 2, got %d", f.Length)
	}
	if f.Oversold < 0 || f.Overbought > 100 || f.Oversold >= f.Overbought {
		return nil, fmt.Errorf("need 0 <= oversold < overbought <= 100, got %.2f/%.2f", f.Oversold, f.Overbought)
	}
	return f, nil
}

func (f *RSIFilter) Name() string { return RSIName }

// State classifies an RSI value. The bounds themselves are neutral.
func (f *RSIFilter) State(rsi float64) MomentumState {
	switch {
	case rsi > f.Overbought:
		return Overbought
	case rsi < f.Oversold:
		return Oversold
	default:
		return MomentumNeutral
	}
}

func (f *RSIFilter) Evaluate(sig signals.Signal, w indicators.Window) Vote {
	rsi, err := w.RSI(f.Length)
	if errors.Is(err, indicators.ErrInsufficientHistory) {
		return Veto(ReasonInsufficientHistory)
	}
	if err != nil {
		return Veto(err.Error())
	}

	state := f.State(rsi)
	reason := fmt.Sprintf("rsi=%.2f %s", rsi, state)
	switch {
	case sig.Side == signals.Buy && state == Overbought:
		return Veto(reason)
	case sig.Side == signals.Sell && state == Oversold:
		return Veto(reason)
	default:
		return Pass(reason)
	}
}
