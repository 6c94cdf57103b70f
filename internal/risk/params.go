package risk

import (
	"fmt"
)

// TieBreak decides the outcome when one bar touches both stop and target.
type TieBreak int

const (
	StopFirst TieBreak = iota
	TargetFirst
	// OpenProximity assumes the bar extreme nearer to its open traded first.
	// Equal distances resolve as StopFirst.
	OpenProximity
)

func (t TieBreak) String() string {
	switch t {
	case StopFirst:
		return "stop_first"
	case TargetFirst:
		return "target_first"
	case OpenProximity:
		return "open_proximity"
	default:
		return "unknown"
	}
}

// ParseTieBreak accepts the String() form; empty selects StopFirst
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "stop_first":
		return StopFirst, nil
	case "target_first":
		return TargetFirst, nil
	case "open_proximity":
		return OpenProximity, nil
	default:
		return StopFirst, fmt.Errorf("unknown tie-break policy %q", s)
	}
}

// Params are the risk settings of one run
type Params struct {
	ATRLength     int
	ATRMultiplier float64
	RewardToRisk  float64
	// PercentileCap clamps the stop distance to this percentile of recent true
	// ranges. Zero disables the clamp.
	PercentileCap      float64
	PercentileLookback int
	TieBreak           TieBreak
	TickSize           float64
	MaxHoldBars        int
}

// DefaultParams mirrors the stock strategy settings
func DefaultParams() Params {
	return Params{
		ATRLength:          14,
		ATRMultiplier:      1.4,
		RewardToRisk:       2.0,
		PercentileCap:      0,
		PercentileLookback: 0,
		TieBreak:           StopFirst,
	}
}

// FieldError names the offending setting
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }

// Validate checks ranges. It returns a *FieldError.
func (p Params) Validate() error {
	switch {
	case p.ATRLength < 1:
		return &FieldError{"atr_length", fmt.Sprintf("must be >= 1, got %d", p.ATRLength)}
	case p.ATRMultiplier <= 0:
		return &FieldError{"atr_multiplier", fmt.Sprintf("must be positive, got %g", p.ATRMultiplier)}
	case p.RewardToRisk <= 0:
		return &FieldError{"reward_to_risk", fmt.Sprintf("must be positive, got %g", p.RewardToRisk)}
	case p.PercentileCap < 0 || p.PercentileCap > 100:
		return &FieldError{"risk_percentile_cap", fmt.Sprintf("must be 0 (off) or in (0, 100], got %g", p.PercentileCap)}
	case p.PercentileCap > 0 && p.PercentileLookback < 1:
		return &FieldError{"risk_lookback", "required when risk_percentile_cap is set"}
	case p.TieBreak < StopFirst || p.TieBreak > OpenProximity:
		return &FieldError{"tie_break", fmt.Sprintf("unknown policy %d", p.TieBreak)}
	case p.TickSize < 0:
		return &FieldError{"tick_size", fmt.Sprintf("must be >= 0, got %g", p.TickSize)}
	case p.MaxHoldBars < 0:
		return &FieldError{"max_hold_bars", fmt.Sprintf("must be >= 0, got %d", p.MaxHoldBars)}
	}
	return nil
}
