package indicators

import (
	"errors"
	"fmt"
	"sync"

	"github.com/markcheno/go-talib"

	"github.com/sawpanic/wbws/internal/bars"
)

// ErrInsufficientHistory is returned when an indicator has not warmed up at the requested bar.
var ErrInsufficientHistory = errors.New("insufficient history")

type bandKey struct {
	length int
	k      float64
}

type bands struct {
	upper, middle, lower []float64
}

// History owns the rolling indicator state of one bar series. Every indicator
// is a forward recursion or trailing window, so the value at bar t depends on
// bars 0..t only and can be computed once for the whole series.
type History struct {
	series bars.Series

	mu    sync.Mutex
	rsi   map[int][]float64
	atr   map[int][]float64
	bb    map[bandKey]bands
	trues []float64
}

// NewHistory creates a history over s
func NewHistory(s bars.Series) *History {
	return &History{
		series: s,
		rsi:    make(map[int][]float64),
		atr:    make(map[int][]float64),
		bb:     make(map[bandKey]bands),
	}
}

// Len returns the number of bars
func (h *History) Len() int { return h.series.Len() }

// At returns a window that can only see bars up to and including anchor.
func (h *History) At(anchor int) Window {
	return Window{h: h, anchor: anchor}
}

func (h *History) rsiSeries(length int) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := h.rsi[length]; ok {
		return v
	}
	var out []float64
	// talib indexes past the first length closes
	if h.series.Len() > length {
		out = talib.Rsi(h.series.Closes(), length)
	}
	h.rsi[length] = out
	return out
}

func (h *History) atrSeries(length int) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := h.atr[length]; ok {
		return v
	}
	var out []float64
	if h.series.Len() > length {
		out = talib.Atr(h.series.Highs(), h.series.Lows(), h.series.Closes(), length)
	}
	h.atr[length] = out
	return out
}

func (h *History) bandSeries(length int, k float64) bands {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := bandKey{length, k}
	if v, ok := h.bb[key]; ok {
		return v
	}
	var out bands
	if h.series.Len() >= length {
		out.upper, out.middle, out.lower = talib.BBands(h.series.Closes(), length, k, k, talib.SMA)
	}
	h.bb[key] = out
	return out
}

func (h *History) trueRanges() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.trues != nil {
		return h.trues
	}
	n := h.series.Len()
	out := make([]float64, n)
	if n > 0 {
		copy(out, talib.TRange(h.series.Highs(), h.series.Lows(), h.series.Closes()))
		// first bar has no previous close
		out[0] = h.series.Bars[0].Range()
	}
	h.trues = out
	return out
}

// Window is a causal view of a History anchored at one bar.
type Window struct {
	h      *History
	anchor int
}

// Anchor returns the index of the newest visible bar
func (w Window) Anchor() int { return w.anchor }

// Bar returns the anchor bar
func (w Window) Bar() bars.Bar { return w.h.series.Bars[w.anchor] }

// Close returns the anchor bar's close
func (w Window) Close() float64 { return w.Bar().Close }

// RSI returns the Wilder RSI at the anchor. It needs length+1 closes.
func (w Window) RSI(length int) (float64, error) {
	if length < 2 {
		return 0, fmt.Errorf("rsi length must be >= 2, got %d", length)
	}
	if w.anchor < length {
		return 0, fmt.Errorf("rsi(%d) at bar %d: %w", length, w.anchor, ErrInsufficientHistory)
	}
	return w.h.rsiSeries(length)[w.anchor], nil
}

// ATR returns the Wilder average true range at the anchor. It needs length
// bars before the anchor.
func (w Window) ATR(length int) (float64, error) {
	if length < 1 {
		return 0, fmt.Errorf("atr length must be >= 1, got %d", length)
	}
	if w.anchor < length {
		return 0, fmt.Errorf("atr(%d) at bar %d: %w", length, w.anchor, ErrInsufficientHistory)
	}
	return w.h.atrSeries(length)[w.anchor], nil
}

// BBands returns SMA Bollinger bands of width k standard deviations.
func (w Window) BBands(length int, k float64) (upper, middle, lower float64, err error) {
	if length < 2 {
		return 0, 0, 0, fmt.Errorf("bollinger length must be >= 2, got %d", length)
	}
	if w.anchor < length-1 {
		return 0, 0, 0, fmt.Errorf("bollinger(%d) at bar %d: %w", length, w.anchor, ErrInsufficientHistory)
	}
	b := w.h.bandSeries(length, k)
	return b.upper[w.anchor], b.middle[w.anchor], b.lower[w.anchor], nil
}

// TrueRanges returns the true ranges of the last lookback bars ending at the anchor.
func (w Window) TrueRanges(lookback int) ([]float64, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be >= 1, got %d", lookback)
	}
	if w.anchor+1 < lookback {
		return nil, fmt.Errorf("true ranges(%d) at bar %d: %w", lookback, w.anchor, ErrInsufficientHistory)
	}
	all := w.h.trueRanges()
	out := make([]float64, lookback)
	copy(out, all[w.anchor+1-lookback:w.anchor+1])
	return out, nil
}
