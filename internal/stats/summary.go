package stats

import (
	"github.com/shopspring/decimal"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/risk"
)

// Summary aggregates one run's signals and trades. R values are in units of
// the initial stop distance.
type Summary struct {
	Candidates  int `json:"candidates"`
	HTFRejected int `json:"htf_rejected"`
	Signals     int `json:"signals"`
	Survived    int `json:"survived"`
	Skipped     int `json:"skipped"`

	Trades  int `json:"trades"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Expired int `json:"expired"`

	WinRate              float64 `json:"win_rate"` // wins over all trades
	TotalR               float64 `json:"total_r"`
	AverageR             float64 `json:"average_r"`
	AverageWinR          float64 `json:"average_win_r"`  // over trades closed above entry
	AverageLossR         float64 `json:"average_loss_r"` // over trades closed below entry, negative
	Expectancy           float64 `json:"expectancy"`
	ProfitFactor         float64 `json:"profit_factor"`
	MaxDrawdownR         float64 `json:"max_drawdown_r"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AverageBarsHeld      float64 `json:"average_bars_held"`
	CappedTrades         int     `json:"capped_trades"`

	SignalsBySide map[string]int `json:"signals_by_side"`
	RejectedBy    map[string]int `json:"rejected_by"`
	Outcomes      map[string]int `json:"outcomes"`
	ExitReasons   map[string]int `json:"exit_reasons"`
	CandleCounts  map[string]int `json:"candle_counts"`
	StratCounts   map[string]int `json:"strat_counts"`
	HTFBiasCounts map[string]int `json:"htf_bias_counts"`
}

// Summarize builds the execution statistics of res
func Summarize(res *engine.Result) Summary {
	s := Summary{
		Candidates:    res.Candidates,
		HTFRejected:   res.HTFRejected,
		Signals:       len(res.Signals),
		Skipped:       res.Skipped,
		Trades:        len(res.Trades),
		SignalsBySide: make(map[string]int),
		RejectedBy:    make(map[string]int),
		Outcomes:      make(map[string]int),
		ExitReasons:   make(map[string]int),
		CandleCounts:  copyCounts(res.CandleCounts),
		StratCounts:   copyCounts(res.StratCounts),
		HTFBiasCounts: copyCounts(res.HTFBiasCounts),
	}

	for _, sig := range res.Signals {
		s.SignalsBySide[sig.Side.String()]++
		if sig.Survived {
			s.Survived++
		} else {
			s.RejectedBy[sig.RejectedBy]++
		}
	}

	total, winSum, lossSum := decimal.Zero, decimal.Zero, decimal.Zero
	peak, drawdown := decimal.Zero, decimal.Zero
	held, streak := 0, 0
	positive, negative := 0, 0

	for _, tr := range res.Trades {
		r := decimal.NewFromFloat(tr.RMultiple)
		total = total.Add(r)
		held += tr.BarsHeld
		s.Outcomes[tr.Outcome.String()]++
		s.ExitReasons[tr.ExitReason.String()]++
		if tr.Capped {
			s.CappedTrades++
		}

		switch tr.Outcome {
		case risk.Win:
			s.Wins++
		case risk.Loss:
			s.Losses++
		case risk.Expired:
			s.Expired++
		}

		if r.IsPositive() {
			winSum = winSum.Add(r)
			positive++
		} else if r.IsNegative() {
			lossSum = lossSum.Add(r.Neg())
			negative++
		}

		if tr.Outcome == risk.Loss {
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		} else {
			streak = 0
		}

		if total.GreaterThan(peak) {
			peak = total
		}
		if dd := peak.Sub(total); dd.GreaterThan(drawdown) {
			drawdown = dd
		}
	}

	s.TotalR = total.InexactFloat64()
	s.MaxDrawdownR = drawdown.InexactFloat64()
	if s.Trades == 0 {
		return s
	}

	n := decimal.NewFromInt(int64(s.Trades))
	s.WinRate = ratio(decimal.NewFromInt(int64(s.Wins)), n)
	s.AverageR = ratio(total, n)
	s.Expectancy = s.AverageR
	s.AverageBarsHeld = ratio(decimal.NewFromInt(int64(held)), n)
	if positive > 0 {
		s.AverageWinR = ratio(winSum, decimal.NewFromInt(int64(positive)))
	}
	if negative > 0 {
		s.AverageLossR = ratio(lossSum.Neg(), decimal.NewFromInt(int64(negative)))
	}
	if lossSum.IsPositive() {
		s.ProfitFactor = ratio(winSum, lossSum)
	}
	return s
}

func ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.DivRound(den, 8).InexactFloat64()
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
