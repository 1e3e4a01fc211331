// Package persistence defines the optional scan history store.
package persistence

import (
	"context"
	"time"
)

// Scan kinds
const (
	KindSpot    = "spot"
	KindAnalyze = "analyze"
)

// ScanRun is one completed spot scan or cross-market analysis.
type ScanRun struct {
	ID          string    `json:"id" db:"id"`
	Kind        string    `json:"kind" db:"kind"`
	UserID      string    `json:"user_id" db:"user_id"`
	Status      string    `json:"status" db:"status"`
	Providers   []string  `json:"providers" db:"-"`
	Tokens      int       `json:"tokens" db:"tokens"`
	PeakVTMR    float64   `json:"peak_vtmr" db:"peak_vtmr"`
	BothMarkets int       `json:"both_markets" db:"both_markets"`
	FuturesOnly int       `json:"futures_only" db:"futures_only"`
	SpotOnly    int       `json:"spot_only" db:"spot_only"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ScanRepo stores scan history.
type ScanRepo interface {
	// InsertRun records a finished run and fills its CreatedAt
	InsertRun(ctx context.Context, run *ScanRun) error

	// LatestRuns returns the newest runs first
	LatestRuns(ctx context.Context, limit int) ([]ScanRun, error)

	// CountRuns counts runs with the given status; "" counts all
	CountRuns(ctx context.Context, status string) (int64, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs ScanRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
