package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/signals"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveRun(t *testing.T) {
	m := NewRegistry(nil)

	res := &engine.Result{
		Bars:        500,
		Skipped:     1,
		HTFRejected: 3,
		Signals: []signals.Signal{
			{Side: signals.Buy, Survived: true},
			{Side: signals.Buy, Survived: false, RejectedBy: "rsi"},
			{Side: signals.Sell, Survived: false, RejectedBy: "session"},
		},
		Trades: []risk.Trade{
			{Outcome: risk.Win, RMultiple: 2},
		},
	}
	m.ObserveRun(res, 20*time.Millisecond)

	assert.Equal(t, 500.0, counterValue(t, m.Bars))
	assert.Equal(t, 1.0, counterValue(t, m.Skipped))
	assert.Equal(t, 3.0, counterValue(t, m.Rejected))
	assert.Equal(t, 1.0, counterValue(t, m.Signals.WithLabelValues("buy", "survived")))
	assert.Equal(t, 1.0, counterValue(t, m.Signals.WithLabelValues("buy", "rsi")))
	assert.Equal(t, 1.0, counterValue(t, m.Signals.WithLabelValues("sell", "session")))
	assert.Equal(t, 1.0, counterValue(t, m.Trades.WithLabelValues("win")))
	assert.Equal(t, 1.0, counterValue(t, m.TotalRuns.WithLabelValues("ok")))
}

func TestCacheCounters(t *testing.T) {
	m := NewRegistry(nil)
	m.RecordCacheHit("result")
	m.RecordCacheHit("result")
	m.RecordCacheMiss("result")

	assert.Equal(t, 2.0, counterValue(t, m.CacheHits.WithLabelValues("result")))
	assert.Equal(t, 1.0, counterValue(t, m.CacheMisses.WithLabelValues("result")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewRegistry(prometheus.NewRegistry())
	m.ObserveFailure(time.Second)
	m.StartStepTimer("load_bars").Stop("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wbws_runs_total{result="error"} 1`)
	assert.Contains(t, string(body), "wbws_step_duration_seconds")
}
