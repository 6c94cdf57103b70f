package signals

import (
	"time"

	"github.com/sawpanic/wbws/internal/htf"
	"github.com/sawpanic/wbws/internal/reversal"
)

// Side re-exports the candidate direction so callers need only this package
type Side = reversal.Side

const (
	Buy  = reversal.Buy
	Sell = reversal.Sell
)

// Decision is a single filter's verdict
type Decision string

const (
	Pass Decision = "pass"
	Veto Decision = "veto"
)

// FilterVote records one evaluated filter, in chain order
type FilterVote struct {
	Name     string   `json:"name"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// RejectedBySession marks signals dropped by the session gate
const RejectedBySession = "session"

// Signal is a confirmed candidate together with its audit trail
type Signal struct {
	Index       int          `json:"index"`
	Timestamp   time.Time    `json:"timestamp"`
	Side        Side         `json:"side"`
	HTFBias     htf.Bias     `json:"htf_bias"`
	Strength    float64      `json:"strength"`
	FilterVotes []FilterVote `json:"filter_votes"`
	Survived    bool         `json:"survived"`
	RejectedBy  string       `json:"rejected_by,omitempty"`
	Annotations []string     `json:"annotations,omitempty"`
}

// WithVote returns a copy of s with vote appended. A veto marks the copy rejected.
func (s Signal) WithVote(v FilterVote) Signal {
	out := s.clone()
	out.FilterVotes = append(out.FilterVotes, v)
	if v.Decision == Veto && out.Survived {
		out.Survived = false
		out.RejectedBy = v.Name
	}
	return out
}

// Rejected returns a copy of s rejected by stage
func (s Signal) Rejected(stage string) Signal {
	out := s.clone()
	out.Survived = false
	out.RejectedBy = stage
	return out
}

// Annotated returns a copy of s carrying note
func (s Signal) Annotated(note string) Signal {
	out := s.clone()
	out.Annotations = append(out.Annotations, note)
	return out
}

func (s Signal) clone() Signal {
	out := s
	out.FilterVotes = append([]FilterVote(nil), s.FilterVotes...)
	out.Annotations = append([]string(nil), s.Annotations...)
	return out
}

// Composer confirms raw candidates against the higher-timeframe bias.
type Composer struct {
	// RequireAlignment demands the HTF bias point the same way as the signal.
	// When false only an opposing bias rejects; a neutral bias passes.
	RequireAlignment bool
}

// Compose confirms cand with the context of its bar. Rejected candidates yield false.
func (c Composer) Compose(cand reversal.Candidate, ts time.Time, ctx htf.Context) (Signal, bool) {
	want, opposing := htf.Up, htf.Down
	if cand.Side == Sell {
		want, opposing = htf.Down, htf.Up
	}

	if c.RequireAlignment {
		if ctx.Bias != want {
			return Signal{}, false
		}
	} else if ctx.Bias == opposing {
		return Signal{}, false
	}

	return Signal{
		Index:     cand.Index,
		Timestamp: ts,
		Side:      cand.Side,
		HTFBias:   ctx.Bias,
		Strength:  cand.Strength,
		Survived:  true,
	}, true
}
