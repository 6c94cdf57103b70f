package reversal

import (
	"fmt"

	"github.com/sawpanic/wbws/internal/candles"
)

// Side is the trade direction of a candidate or signal
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "none"
	}
}

// MarshalText encodes the side by name
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes "buy" or "sell"
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// State of the detector
type State int

const (
	Seeking State = iota
	ArmedBuy
	ArmedSell
)

func (s State) String() string {
	switch s {
	case ArmedBuy:
		return "armed_buy"
	case ArmedSell:
		return "armed_sell"
	default:
		return "seeking"
	}
}

// Candidate is a raw reversal fired on the close of the reversing candle.
type Candidate struct {
	Index     int     `json:"index"`
	Side      Side    `json:"side"`
	Strength  float64 `json:"strength"`
	RunLength int     `json:"run_length"`
}

// Detector scans classified candles for a run of RunLength same-direction
// candles followed by a strong candle in the other direction. It keeps only
// the current run direction and length.
type Detector struct {
	RunLength         int
	StrengthThreshold float64

	dir    candles.Type
	length int
}

// NewDetector creates a detector in the seeking state
func NewDetector(runLength int, strengthThreshold float64) *Detector {
	return &Detector{RunLength: runLength, StrengthThreshold: strengthThreshold}
}

// State reports whether a reversal is currently armed
func (d *Detector) State() State {
	if d.length < d.RunLength || d.RunLength <= 0 {
		return Seeking
	}
	switch d.dir {
	case candles.Bearish:
		return ArmedBuy
	case candles.Bullish:
		return ArmedSell
	default:
		return Seeking
	}
}

// Reset returns the detector to seeking with an empty run
func (d *Detector) Reset() {
	d.dir = candles.Neutral
	d.length = 0
}

// Step feeds the classification of bar i and reports a candidate when it fires.
func (d *Detector) Step(i int, c candles.Classification) (Candidate, bool) {
	if c.Type == candles.Neutral {
		d.Reset()
		return Candidate{}, false
	}

	if state := d.State(); state != Seeking && c.Type == d.dir.Opposite() {
		if c.Strength > d.StrengthThreshold {
			cand := Candidate{Index: i, Strength: c.Strength, RunLength: d.length, Side: Buy}
			if state == ArmedSell {
				cand.Side = Sell
			}
			d.Reset()
			return cand, true
		}
		// too weak to reverse: it opens a run of its own
		d.dir = c.Type
		d.length = 1
		return Candidate{}, false
	}

	if c.Type == d.dir {
		d.length++
	} else {
		d.dir = c.Type
		d.length = 1
	}
	return Candidate{}, false
}

// Scan runs a fresh detector over the whole sequence.
func Scan(classes []candles.Classification, runLength int, strengthThreshold float64) []Candidate {
	d := NewDetector(runLength, strengthThreshold)
	var out []Candidate
	for i, c := range classes {
		if cand, ok := d.Step(i, c); ok {
			out = append(out, cand)
		}
	}
	return out
}
