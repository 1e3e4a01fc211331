package http

import (
	"time"

	"github.com/sawpanic/cryptovat/internal/jobs"
	"github.com/sawpanic/cryptovat/internal/metrics"
	"github.com/sawpanic/cryptovat/internal/persistence"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"` // healthy, degraded
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Lifetime  int64                    `json:"lifetime_scans"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Providers *metrics.FreshnessReport `json:"providers,omitempty"`
}

// JobStarted is returned when a job is accepted
type JobStarted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobView is a job's progress plus its result once finished
type JobView struct {
	jobs.Progress
	Result interface{} `json:"result,omitempty"`
}

// LogsChunk is one page of a job's log tail
type LogsChunk struct {
	Logs      []string `json:"logs"`
	LastIndex int      `json:"last_index"`
}

// AnalyzeBody is the request body of POST /jobs/analyze
type AnalyzeBody struct {
	FuturesPath string `json:"futures_path"`
	SpotPath    string `json:"spot_path"`
	Cleanup     bool   `json:"cleanup"`
}
