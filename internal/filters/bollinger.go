package filters

import (
	"errors"
	"fmt"

	"github.com/sawpanic/wbws/internal/indicators"
	"github.com/sawpanic/wbws/internal/signals"
)

const BollingerName = "bollinger"

// BollingerFilter vetoes buys that close above the upper band and sells that
// close below the lower band.
type BollingerFilter struct {
	Length int
	K      float64
}

func NewBollingerFilter(p Params) (Filter, error) {
	f := &BollingerFilter{
		Length: int(p.Get("length", 20)),
		K:      p.Get("k", 2),
	}
	if f.Length < 2 {
		return nil, fmt.Errorf("length must be >= 2, got %d", f.Length)
	}
	if f.K <= 0 {
		return nil, fmt.Errorf("k must be positive, got %.2f", f.K)
	}
	return f, nil
}

func (f *BollingerFilter) Name() string { return BollingerName }

func (f *BollingerFilter) Evaluate(sig signals.Signal, w indicators.Window) Vote {
	upper, _, lower, err := w.BBands(f.Length, f.K)
	if errors.Is(err, indicators.ErrInsufficientHistory) {
		return Veto(ReasonInsufficientHistory)
	}
	if err != nil {
		return Veto(err.Error())
	}

	closePx := w.Close()
	switch {
	case sig.Side == signals.Buy && closePx > upper:
		return Veto(fmt.Sprintf("close %.5f above upper band %.5f", closePx, upper))
	case sig.Side == signals.Sell && closePx < lower:
		return Veto(fmt.Sprintf("close %.5f below lower band %.5f", closePx, lower))
	default:
		return Pass("")
	}
}
