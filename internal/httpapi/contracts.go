package httpapi

import (
	"time"

	"github.com/sawpanic/wbws/internal/persistence"
	"github.com/sawpanic/wbws/internal/stats"
)

// RunRequest starts a run from files on the server host
type RunRequest struct {
	ConfigPath  string `json:"config_path"`
	BarsPath    string `json:"bars_path"`
	HTFBarsPath string `json:"htf_bars_path,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
}

// RunResponse describes a run held by the server or the database
type RunResponse struct {
	Run       persistence.Run `json:"run"`
	Cached    bool            `json:"cached"`
	Persisted bool            `json:"persisted"`
	Summary   *stats.Summary  `json:"summary,omitempty"`
}

// StreamEvent is one websocket replay message
type StreamEvent struct {
	Type  string      `json:"type"` // signal, trade or done
	Index int         `json:"index"`
	Data  interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Runs      int                      `json:"runs"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
