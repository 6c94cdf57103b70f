package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/config"
	"github.com/sawpanic/wbws/internal/persistence"
)

var start = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

// Five bullish bars then a strong bearish one at index 19, followed by a
// slide that reaches the short target.
func sellSetup() bars.Series {
	var rows [][4]float64
	for i := 0; i < 14; i++ {
		rows = append(rows, [4]float64{100, 100.5, 99.5, 100})
	}
	for i := 0; i < 5; i++ {
		rows = append(rows, [4]float64{100, 101, 99.9, 100.9})
	}
	rows = append(rows, [4]float64{101, 101, 99, 99.4})
	for px := 99.4; px > 90; px -= 1 {
		rows = append(rows, [4]float64{px, px + 0.1, px - 1, px - 1})
	}

	s := bars.Series{Symbol: "TEST", Timeframe: time.Minute}
	for i, v := range rows {
		s.Bars = append(s.Bars, bars.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      v[0], High: v[1], Low: v[2], Close: v[3], Volume: 1,
		})
	}
	return s
}

func writeInputs(t *testing.T) RunRequest {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Symbol = "TEST"
	cfg.Timezone = "UTC"
	cfg.Session.Enabled = false
	cfg.Filters = nil
	cfg.Reversal.RunLength = 5
	cfg.HTF.RequireAlignment = false
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	cfgPath := filepath.Join(dir, "wbws.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	var buf bytes.Buffer
	require.NoError(t, bars.WriteCSV(&buf, sellSetup()))
	barsPath := filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(barsPath, buf.Bytes(), 0o644))

	return RunRequest{ConfigPath: cfgPath, BarsPath: barsPath}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	// t.TempDir lives under os.TempDir
	cfg.DataRoot = os.TempDir()
	ts := httptest.NewServer(NewServer(cfg, deps).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postRun(t *testing.T, ts *httptest.Server, req RunRequest) (*http.Response, RunResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out RunResponse
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestCreateAndFetchRun(t *testing.T) {
	ts := newTestServer(t, Deps{})
	req := writeInputs(t)

	resp, created := postRun(t, ts, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, created.Cached)
	assert.False(t, created.Persisted)
	assert.Equal(t, "TEST", created.Run.Symbol)
	require.NotNil(t, created.Summary)
	assert.Equal(t, 1, created.Summary.Signals)
	assert.Equal(t, 1, created.Summary.Trades)
	assert.Equal(t, "/runs/"+created.Run.ID.String(), resp.Header.Get("Location"))

	get, err := http.Get(ts.URL + "/runs/" + created.Run.ID.String())
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "application/json", get.Header.Get("Content-Type"))

	var fetched RunResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&fetched))
	assert.Equal(t, created.Run.ID, fetched.Run.ID)

	tr, err := http.Get(ts.URL + "/runs/" + created.Run.ID.String() + "/trades")
	require.NoError(t, err)
	defer tr.Body.Close()
	var trades []persistence.Trade
	require.NoError(t, json.NewDecoder(tr.Body).Decode(&trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "sell", trades[0].Side)
	assert.Equal(t, 19, trades[0].SignalIndex)
}

func TestSecondIdenticalRunIsCached(t *testing.T) {
	ts := newTestServer(t, Deps{})
	req := writeInputs(t)

	_, first := postRun(t, ts, req)
	resp, second := postRun(t, ts, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.Run.ID, second.Run.ID)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestCreateRunErrors(t *testing.T) {
	ts := newTestServer(t, Deps{})
	good := writeInputs(t)

	badCfg := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badCfg, []byte("timezone: Mars/Olympus\n"), 0o644))

	tests := []struct {
		name   string
		req    RunRequest
		status int
	}{
		{"missing paths", RunRequest{}, http.StatusBadRequest},
		{"missing bars file", RunRequest{ConfigPath: good.ConfigPath, BarsPath: filepath.Join(filepath.Dir(good.BarsPath), "missing.csv")}, http.StatusBadRequest},
		{"bars outside data root", RunRequest{ConfigPath: good.ConfigPath, BarsPath: "/etc/hostname"}, http.StatusForbidden},
		{"relative escape", RunRequest{ConfigPath: "../../etc/wbws.yaml", BarsPath: good.BarsPath}, http.StatusForbidden},
		{"bad config", RunRequest{ConfigPath: badCfg, BarsPath: good.BarsPath}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postRun(t, ts, tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestUnknownAndMalformedIDs(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp, err := http.Get(ts.URL + "/runs/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/runs/" + uuid.New().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "run_not_found", e.Code)
	assert.NotEqual(t, "unknown", e.RequestID)
}

type memStore struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]persistence.Run
	trades map[uuid.UUID][]persistence.Trade
	err    error
}

func newMemStore() *memStore {
	return &memStore{runs: map[uuid.UUID]persistence.Run{}, trades: map[uuid.UUID][]persistence.Trade{}}
}

func (m *memStore) SaveRun(_ context.Context, run persistence.Run, trades []persistence.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs[run.ID] = run
	m.trades[run.ID] = trades
	return nil
}

func (m *memStore) GetRun(_ context.Context, id uuid.UUID) (*persistence.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &run, nil
}

func (m *memStore) ListRuns(context.Context, persistence.TimeRange, int) ([]persistence.Run, error) {
	return nil, nil
}

func (m *memStore) ListTrades(_ context.Context, id uuid.UUID) ([]persistence.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades[id], nil
}

func (m *memStore) CountByOutcome(context.Context, uuid.UUID) (map[string]int64, error) {
	return nil, nil
}

func (m *memStore) Ping(context.Context) error { return m.err }

func TestRunsArePersistedAndServedFromStore(t *testing.T) {
	store := newMemStore()
	ts := newTestServer(t, Deps{Store: store})

	_, created := postRun(t, ts, writeInputs(t))
	assert.True(t, created.Persisted)

	store.mu.Lock()
	require.Contains(t, store.runs, created.Run.ID)
	assert.Len(t, store.trades[created.Run.ID], 1)
	stored := persistence.Run{ID: uuid.New(), Name: "older", Symbol: "OLD"}
	store.runs[stored.ID] = stored
	store.mu.Unlock()

	resp, err := http.Get(ts.URL + "/runs/" + stored.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "OLD", got.Run.Symbol)
	assert.True(t, got.Persisted)
	assert.Nil(t, got.Summary)
}

func TestPersistFailureStillServesRun(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	ts := newTestServer(t, Deps{Store: store})

	resp, created := postRun(t, ts, writeInputs(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, created.Persisted)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	var h HealthResponse
	require.NoError(t, json.NewDecoder(health.Body).Decode(&h))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, 1, h.Runs)
	require.NotNil(t, h.Database)
	assert.Equal(t, "db down", h.Database.Error)
}

func TestStreamReplaysInBarOrder(t *testing.T) {
	ts := newTestServer(t, Deps{})
	_, created := postRun(t, ts, writeInputs(t))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/runs/" + created.Run.ID.String() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	last := -1
	for {
		var ev StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		types = append(types, ev.Type)
		assert.GreaterOrEqual(t, ev.Index, last)
		last = ev.Index
		if ev.Type == "done" {
			break
		}
	}
	assert.Equal(t, []string{"signal", "trade", "done"}, types)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Deps{})
	postRun(t, ts, writeInputs(t))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `wbws_runs_total{result="ok"} 1`)
	assert.Contains(t, buf.String(), `wbws_cache_misses_total{cache_type="result"} 1`)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	ts := httptest.NewServer(NewServer(cfg, Deps{}).Handler())
	defer ts.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestResolvePath(t *testing.T) {
	root := dataRoot(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "btc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "btc", "bars.csv"), []byte("x"), 0o644))

	got, err := resolvePath(root, "btc/bars.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "btc", "bars.csv"), got)

	got, err = resolvePath(root, filepath.Join(root, "btc", "../btc/bars.csv"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "btc", "bars.csv"), got)

	got, err = resolvePath(root, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, p := range []string{"../outside.csv", "/etc/passwd", root + "-sibling/bars.csv"} {
		_, err := resolvePath(root, p)
		assert.ErrorIs(t, err, errOutsideRoot, p)
	}

	// a link inside the root pointing out of it is refused
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.csv"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(outside, "secret.csv"), filepath.Join(root, "link.csv")); err == nil {
		_, err := resolvePath(root, "link.csv")
		assert.ErrorIs(t, err, errOutsideRoot)
	}
}

func TestIsLocal(t *testing.T) {
	assert.True(t, NewServer(DefaultConfig(), Deps{}).IsLocal())
	cfg := DefaultConfig()
	cfg.Host = "0.0.0.0"
	assert.False(t, NewServer(cfg, Deps{}).IsLocal())
}
