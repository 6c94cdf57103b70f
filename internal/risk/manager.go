package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/indicators"
	"github.com/sawpanic/wbws/internal/signals"
)

var (
	// ErrZeroStop is returned when the computed stop distance is not positive
	ErrZeroStop = errors.New("stop distance is zero")
	// ErrZeroTarget is returned when tick rounding puts the target on the entry
	ErrZeroTarget = errors.New("target distance is zero")
)

// SkipError means no trade can be opened for a signal. It is signal-scoped:
// the run continues and the signal carries Annotation.
type SkipError struct {
	Annotation string
	Err        error
}

func (e *SkipError) Error() string { return fmt.Sprintf("skip trade (%s): %v", e.Annotation, e.Err) }

func (e *SkipError) Unwrap() error { return e.Err }

// Plan holds the levels fixed at entry
type Plan struct {
	SignalIndex  int
	Side         signals.Side
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	StopDistance float64
	TargetR      float64 // R paid at the take-profit level
	ATR          float64
	Capped       bool
	CapValue     float64
}

// Manager turns signals into trades
type Manager struct {
	params Params
}

// NewManager validates p and creates a manager
func NewManager(p Params) (*Manager, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Manager{params: p}, nil
}

// Params returns the manager's settings
func (m *Manager) Params() Params { return m.params }

// Plan computes entry, stop and target for sig using bars up to its anchor.
func (m *Manager) Plan(sig signals.Signal, w indicators.Window) (Plan, error) {
	p := m.params

	atr, err := w.ATR(p.ATRLength)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientHistory) {
			return Plan{}, &SkipError{Annotation: "insufficient_history:atr", Err: err}
		}
		return Plan{}, err
	}

	stop := decimal.NewFromFloat(atr).Mul(decimal.NewFromFloat(p.ATRMultiplier))
	plan := Plan{SignalIndex: sig.Index, Side: sig.Side, Entry: w.Close(), ATR: atr}

	if p.PercentileCap > 0 {
		ranges, err := w.TrueRanges(p.PercentileLookback)
		if err != nil {
			if errors.Is(err, indicators.ErrInsufficientHistory) {
				return Plan{}, &SkipError{Annotation: "insufficient_history:percentile", Err: err}
			}
			return Plan{}, err
		}
		limit := decimal.NewFromFloat(percentile(ranges, p.PercentileCap))
		plan.CapValue = limit.InexactFloat64()
		if stop.GreaterThan(limit) {
			stop = limit
			plan.Capped = true
		}
	}

	if !stop.IsPositive() {
		return Plan{}, &SkipError{Annotation: "zero_stop_distance", Err: ErrZeroStop}
	}

	entry := decimal.NewFromFloat(plan.Entry)
	target := stop.Mul(decimal.NewFromFloat(p.RewardToRisk))
	var sl, tp decimal.Decimal
	if sig.Side == signals.Buy {
		sl, tp = entry.Sub(stop), entry.Add(target)
	} else {
		sl, tp = entry.Add(stop), entry.Sub(target)
	}

	// distances are re-read from the rounded levels so R matches what is traded
	if p.TickSize > 0 {
		sl, tp = m.roundTick(sl), m.roundTick(tp)
		dir := decimal.NewFromInt(1)
		if sig.Side == signals.Sell {
			dir = dir.Neg()
		}
		// an entry off the tick grid can round a level onto or past it
		stop = entry.Sub(sl).Mul(dir)
		if !stop.IsPositive() {
			return Plan{}, &SkipError{Annotation: "zero_stop_distance", Err: ErrZeroStop}
		}
		if !tp.Sub(entry).Mul(dir).IsPositive() {
			return Plan{}, &SkipError{Annotation: "zero_target_distance", Err: ErrZeroTarget}
		}
	}

	plan.StopDistance = stop.InexactFloat64()
	plan.StopLoss = sl.InexactFloat64()
	plan.TakeProfit = tp.InexactFloat64()
	plan.TargetR = tp.Sub(entry).Abs().Div(stop).InexactFloat64()
	return plan, nil
}

func (m *Manager) roundTick(v decimal.Decimal) decimal.Decimal {
	tick := decimal.NewFromFloat(m.params.TickSize)
	return v.Div(tick).Round(0).Mul(tick)
}

// Simulate walks the bars after the plan's signal bar until a level is hit,
// the hold limit is reached, or the series ends.
func (m *Manager) Simulate(plan Plan, s bars.Series) Trade {
	tr := Trade{
		SignalIndex:  plan.SignalIndex,
		EntryTime:    s.Bars[plan.SignalIndex].Timestamp,
		EntryPrice:   plan.Entry,
		Side:         plan.Side,
		StopLoss:     plan.StopLoss,
		TakeProfit:   plan.TakeProfit,
		StopDistance: plan.StopDistance,
		ATR:          plan.ATR,
		Capped:       plan.Capped,
		CapValue:     plan.CapValue,
	}

	buy := plan.Side == signals.Buy
	for j := plan.SignalIndex + 1; j < s.Len(); j++ {
		b := s.Bars[j]
		held := j - plan.SignalIndex

		var stopHit, targetHit bool
		if buy {
			stopHit, targetHit = b.Low <= plan.StopLoss, b.High >= plan.TakeProfit
		} else {
			stopHit, targetHit = b.High >= plan.StopLoss, b.Low <= plan.TakeProfit
		}
		if stopHit && targetHit {
			stopHit = m.stopWinsTie(b, buy)
			targetHit = !stopHit
		}

		switch {
		case stopHit:
			return m.close(plan, tr, j, b, plan.StopLoss, Loss, StopLoss, held)
		case targetHit:
			return m.close(plan, tr, j, b, plan.TakeProfit, Win, TakeProfit, held)
		case m.params.MaxHoldBars > 0 && held >= m.params.MaxHoldBars:
			return m.close(plan, tr, j, b, b.Close, Expired, MaxHold, held)
		}
	}

	last := s.Len() - 1
	return m.close(plan, tr, last, s.Bars[last], s.Bars[last].Close, Expired, EndOfData, last-plan.SignalIndex)
}

func (m *Manager) stopWinsTie(b bars.Bar, buy bool) bool {
	switch m.params.TieBreak {
	case TargetFirst:
		return false
	case OpenProximity:
		toHigh := math.Abs(b.High - b.Open)
		toLow := math.Abs(b.Open - b.Low)
		if buy {
			return toLow <= toHigh
		}
		return toHigh <= toLow
	default:
		return true
	}
}

func (m *Manager) close(plan Plan, tr Trade, idx int, b bars.Bar, price float64, outcome Outcome, reason ExitReason, held int) Trade {
	tr.ExitIndex = idx
	tr.ExitTime = b.Timestamp
	tr.ExitPrice = price
	tr.Outcome = outcome
	tr.ExitReason = reason
	tr.BarsHeld = held

	switch outcome {
	case Win:
		tr.RMultiple = plan.TargetR
	case Loss:
		tr.RMultiple = -1
	default:
		move := price - tr.EntryPrice
		if tr.Side == signals.Sell {
			move = -move
		}
		tr.RMultiple = move / tr.StopDistance
	}
	return tr
}

// Open plans and simulates a trade for sig over s. w must be anchored at sig.Index.
func (m *Manager) Open(sig signals.Signal, w indicators.Window, s bars.Series) (Trade, error) {
	plan, err := m.Plan(sig, w)
	if err != nil {
		return Trade{}, err
	}
	return m.Simulate(plan, s), nil
}
