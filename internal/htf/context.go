package htf

import (
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/candles"
)

// ErrTimeframeOrder is returned when the higher timeframe is shorter than the base one.
var ErrTimeframeOrder = errors.New("htf timeframe shorter than ltf timeframe")

// Bias is the trend direction of a closed higher-timeframe candle
type Bias int

const (
	Neutral Bias = iota
	Up
	Down
)

func (b Bias) String() string {
	switch b {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "neutral"
	}
}

func (b Bias) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bias) UnmarshalText(text []byte) error {
	switch string(text) {
	case "up":
		*b = Up
	case "down":
		*b = Down
	case "neutral":
		*b = Neutral
	default:
		return fmt.Errorf("unknown bias %q", text)
	}
	return nil
}

// BiasOf maps a candle class onto a trend bias
func BiasOf(t candles.Type) Bias {
	switch t {
	case candles.Bullish:
		return Up
	case candles.Bearish:
		return Down
	default:
		return Neutral
	}
}

// Context is the higher-timeframe view attached to one LTF bar.
type Context struct {
	Bias        Bias      `json:"bias"`
	SourceIndex int       `json:"source_index"` // -1 until the first HTF bar has closed
	SourceTime  time.Time `json:"source_time,omitempty"`
}

// Build attaches to every LTF bar the bias of the latest HTF bar that had
// closed by the time the LTF bar closed. An HTF bar still forming is never used.
func Build(ltf, htfSeries bars.Series, dojiThreshold float64) ([]Context, error) {
	if htfSeries.Timeframe < ltf.Timeframe {
		return nil, fmt.Errorf("%w: %v < %v", ErrTimeframeOrder, htfSeries.Timeframe, ltf.Timeframe)
	}

	classes := candles.ClassifyAll(htfSeries, dojiThreshold)
	out := make([]Context, len(ltf.Bars))

	j := -1
	for i := range ltf.Bars {
		closed := ltf.CloseTime(i)
		for j+1 < len(htfSeries.Bars) && !htfSeries.CloseTime(j+1).After(closed) {
			j++
		}

		if j < 0 {
			out[i] = Context{Bias: Neutral, SourceIndex: -1}
			continue
		}
		out[i] = Context{
			Bias:        BiasOf(classes[j].Type),
			SourceIndex: j,
			SourceTime:  htfSeries.Bars[j].Timestamp,
		}
	}

	return out, nil
}
