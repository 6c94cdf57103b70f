package risk

import (
	"fmt"
	"time"

	"github.com/sawpanic/wbws/internal/signals"
)

// Outcome of a simulated trade
type Outcome int

const (
	Win Outcome = iota + 1
	Loss
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{Win, Loss, Expired} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// ExitReason tells which level or limit closed the trade
type ExitReason int

const (
	TakeProfit ExitReason = iota + 1
	StopLoss
	EndOfData
	MaxHold
)

func (r ExitReason) String() string {
	switch r {
	case TakeProfit:
		return "take_profit"
	case StopLoss:
		return "stop_loss"
	case EndOfData:
		return "end_of_data"
	case MaxHold:
		return "max_hold"
	default:
		return "unknown"
	}
}

func (r ExitReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ExitReason) UnmarshalText(b []byte) error {
	for _, c := range []ExitReason{TakeProfit, StopLoss, EndOfData, MaxHold} {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown exit reason %q", b)
}

// Trade is one signal's simulated position. Times are bar labels.
type Trade struct {
	SignalIndex  int          `json:"signal_index"`
	EntryTime    time.Time    `json:"entry_time"`
	EntryPrice   float64      `json:"entry_price"`
	Side         signals.Side `json:"side"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit   float64      `json:"take_profit"`
	StopDistance float64      `json:"stop_distance"`
	ATR          float64      `json:"atr"`
	Capped       bool         `json:"capped"`
	CapValue     float64      `json:"cap_value,omitempty"`
	ExitIndex    int          `json:"exit_index"`
	ExitTime     time.Time    `json:"exit_time"`
	ExitPrice    float64      `json:"exit_price"`
	Outcome      Outcome      `json:"outcome"`
	ExitReason   ExitReason   `json:"exit_reason"`
	BarsHeld     int          `json:"bars_held"`
	RMultiple    float64      `json:"r_multiple"`
}
