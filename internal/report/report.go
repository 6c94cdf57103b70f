package report

import (
	"time"

	"github.com/sawpanic/wbws/internal/config"
	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/signals"
	"github.com/sawpanic/wbws/internal/stats"
)

// Report is the execution report of one run
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	ConfigHash  string           `json:"config_hash"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	Bars        int              `json:"bars"`
	HTFBars     int              `json:"htf_bars"`
	Config      config.Config    `json:"config"`
	Summary     stats.Summary    `json:"summary"`
	Signals     []signals.Signal `json:"signals"`
	Trades      []risk.Trade     `json:"trades"`
}

// New assembles the report of res
func New(runID string, cfg config.Config, res *engine.Result, generatedAt time.Time) *Report {
	return &Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Name:        cfg.Name,
		Symbol:      res.Symbol,
		ConfigHash:  res.ConfigHash,
		Start:       res.Start,
		End:         res.End,
		Bars:        res.Bars,
		HTFBars:     res.HTFBars,
		Config:      cfg,
		Summary:     stats.Summarize(res),
		Signals:     res.Signals,
		Trades:      res.Trades,
	}
}
