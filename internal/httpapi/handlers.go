package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/cache"
	"github.com/sawpanic/wbws/internal/config"
	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/persistence"
	"github.com/sawpanic/wbws/internal/stats"
)

type runEntry struct {
	run       persistence.Run
	result    *engine.Result
	cached    bool
	persisted bool
}

func (e *runEntry) response() RunResponse {
	sum := stats.Summarize(e.result)
	return RunResponse{Run: e.run, Cached: e.cached, Persisted: e.persisted, Summary: &sum}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.deps.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: s.deps.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.runs)
	s.mu.RUnlock()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: s.deps.Now().UTC(),
		Uptime:    s.deps.Now().Sub(s.started).Round(time.Second).String(),
		Runs:      n,
	}
	if s.deps.Store != nil {
		hc := persistence.Health(r.Context(), s.deps.Store)
		resp.Database = &hc
		if !hc.Healthy {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.ConfigPath == "" || req.BarsPath == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", "config_path and bars_path are required")
		return
	}

	paths := [...]*string{&req.ConfigPath, &req.BarsPath, &req.HTFBarsPath}
	for _, p := range paths {
		resolved, err := resolvePath(s.root, *p)
		if err != nil {
			s.writeError(w, r, http.StatusForbidden, "path_forbidden", err.Error())
			return
		}
		*p = resolved
	}

	timer := s.deps.Metrics.StartStepTimer("load_inputs")
	in, err := engine.LoadInputs(req.ConfigPath, req.BarsPath, req.HTFBarsPath, req.Symbol)
	if err != nil {
		timer.Stop("error")
		s.writeInputError(w, r, err)
		return
	}
	timer.Stop("ok")

	start := time.Now()
	key := cache.Key(in.Config.Hash(), in.LTF, in.HTF)
	res, err := s.deps.Results.Get(r.Context(), key)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.deps.Logger.Warn().Err(err).Str("backend", s.deps.Results.Backend()).Msg("Result cache unavailable")
	}
	cached := err == nil
	if cached {
		s.deps.Metrics.RecordCacheHit("result")
	} else {
		s.deps.Metrics.RecordCacheMiss("result")
		s.deps.Metrics.ActiveRuns.Inc()
		res, err = engine.Run(in.LTF, in.HTF, in.Config, engine.WithLogger(s.deps.Logger))
		s.deps.Metrics.ActiveRuns.Dec()
		if err != nil {
			s.deps.Metrics.ObserveFailure(time.Since(start))
			s.writeInputError(w, r, err)
			return
		}
		s.deps.Metrics.ObserveRun(res, time.Since(start))
		if err := s.deps.Results.Put(r.Context(), key, res); err != nil {
			s.deps.Logger.Warn().Err(err).Msg("Failed to cache run result")
		}
	}

	id := uuid.New()
	entry := &runEntry{
		run:    persistence.NewRun(id, in.Config.Name, res, s.deps.Now().UTC()),
		result: res,
		cached: cached,
	}
	if s.deps.Store != nil {
		err := s.deps.Store.SaveRun(r.Context(), entry.run, persistence.NewTrades(id, res.Trades))
		if err != nil {
			s.deps.Logger.Error().Err(err).Str("run_id", id.String()).Msg("Failed to persist run")
		} else {
			entry.persisted = true
		}
	}

	s.mu.Lock()
	s.runs[id] = entry
	s.mu.Unlock()

	s.deps.Logger.Info().
		Str("run_id", id.String()).
		Bool("cached", cached).
		Int("signals", len(res.Signals)).
		Int("trades", len(res.Trades)).
		Msg("Run completed")

	w.Header().Set("Location", "/runs/"+id.String())
	s.writeJSON(w, http.StatusCreated, entry.response())
}

// writeInputError maps run failures onto status codes. Bad config and bad
// data are the caller's fault, anything else is ours.
func (s *Server) writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *config.ConfigurationError
	var de *bars.DataIntegrityError
	switch {
	case errors.As(err, &ce):
		s.writeError(w, r, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	case errors.As(err, &de):
		s.writeError(w, r, http.StatusUnprocessableEntity, "data_integrity_error", err.Error())
	case errors.Is(err, os.ErrNotExist):
		s.writeError(w, r, http.StatusBadRequest, "file_not_found", err.Error())
	default:
		s.writeError(w, r, http.StatusInternalServerError, "run_failed", err.Error())
	}
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_run_id", "run id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) entry(id uuid.UUID) (*runEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	return e, ok
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	if e, ok := s.entry(id); ok {
		s.writeJSON(w, http.StatusOK, e.response())
		return
	}
	if s.deps.Store == nil {
		s.writeError(w, r, http.StatusNotFound, "run_not_found", "no run with id "+id.String())
		return
	}

	run, err := s.deps.Store.GetRun(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "run_not_found", "no run with id "+id.String())
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{Run: *run, Persisted: true})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	e, ok := s.entry(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "run_not_found", "signals are kept for runs started by this server only")
		return
	}
	s.writeJSON(w, http.StatusOK, e.result.Signals)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	if e, ok := s.entry(id); ok {
		s.writeJSON(w, http.StatusOK, persistence.NewTrades(id, e.result.Trades))
		return
	}
	if s.deps.Store == nil {
		s.writeError(w, r, http.StatusNotFound, "run_not_found", "no run with id "+id.String())
		return
	}

	if _, err := s.deps.Store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "run_not_found", "no run with id "+id.String())
			return
		}
		s.writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	trades, err := s.deps.Store.ListTrades(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// replay orders a run's decisions the way they happened: a signal at its
// bar, a trade at the bar it closed.
func replay(res *engine.Result) []StreamEvent {
	events := make([]StreamEvent, 0, len(res.Signals)+len(res.Trades)+1)
	for _, sig := range res.Signals {
		events = append(events, StreamEvent{Type: "signal", Index: sig.Index, Data: sig})
	}
	for _, tr := range res.Trades {
		events = append(events, StreamEvent{Type: "trade", Index: tr.ExitIndex, Data: tr})
	}
	sort.SliceStable(events, func(a, b int) bool { return events[a].Index < events[b].Index })
	return append(events, StreamEvent{Type: "done", Index: res.Bars})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	e, ok := s.entry(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		s.writeError(w, r, http.StatusNotFound, "run_not_found", "no run with id "+id.String())
		return
	}

	var pace time.Duration
	if v := r.URL.Query().Get("pace_ms"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil && d > 0 {
			pace = d
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	for _, ev := range replay(e.result) {
		if err := conn.WriteJSON(ev); err != nil {
			s.deps.Logger.Debug().Err(err).Str("run_id", id.String()).Msg("Stream client went away")
			return
		}
		if pace > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(pace):
			}
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replay complete"))
}
