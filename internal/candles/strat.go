package candles

import "github.com/sawpanic/wbws/internal/bars"

// Strat labels a bar by how its range relates to the previous bar's range.
type Strat int

const (
	StratUnknown Strat = iota
	StratInside        // 1: range contained in the prior bar
	StratOutside       // 3: takes out both prior extremes
	StratTwoUp         // 2u: takes out the prior high only
	StratTwoDown       // 2d: takes out the prior low only
)

func (s Strat) String() string {
	switch s {
	case StratInside:
		return "1"
	case StratOutside:
		return "3"
	case StratTwoUp:
		return "2u"
	case StratTwoDown:
		return "2d"
	default:
		return "unknown"
	}
}

// StratType classifies cur against prev
func StratType(prev, cur bars.Bar) Strat {
	switch {
	case cur.High <= prev.High && cur.Low >= prev.Low:
		return StratInside
	case cur.High > prev.High && cur.Low < prev.Low:
		return StratOutside
	case cur.High > prev.High:
		return StratTwoUp
	case cur.Low < prev.Low:
		return StratTwoDown
	default:
		return StratUnknown
	}
}

// StratSeries types every bar; the first bar has no predecessor and stays unknown.
func StratSeries(s bars.Series) []Strat {
	out := make([]Strat, len(s.Bars))
	for i := 1; i < len(s.Bars); i++ {
		out[i] = StratType(s.Bars[i-1], s.Bars[i])
	}
	return out
}
