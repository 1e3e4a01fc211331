package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/cryptovat/internal/persistence"
)

// Schema creates the scan history table.
const Schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id           UUID PRIMARY KEY,
	kind         TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	providers    TEXT[] NOT NULL DEFAULT '{}',
	tokens       INTEGER NOT NULL DEFAULT 0,
	peak_vtmr    DOUBLE PRECISION NOT NULL DEFAULT 0,
	both_markets INTEGER NOT NULL DEFAULT 0,
	futures_only INTEGER NOT NULL DEFAULT 0,
	spot_only    INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS scan_runs_created_at_idx ON scan_runs (created_at DESC);`

// scanRow adds the text[] column, which sqlx cannot scan into []string.
type scanRow struct {
	persistence.ScanRun
	ProviderList pq.StringArray `db:"providers"`
}

// scanRepo implements persistence.ScanRepo for PostgreSQL
type scanRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScanRepo creates a new PostgreSQL scan history repository
func NewScanRepo(db *sqlx.DB, timeout time.Duration) persistence.ScanRepo {
	return &scanRepo{
		db:      db,
		timeout: timeout,
	}
}

func (r *scanRepo) InsertRun(ctx context.Context, run *persistence.ScanRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return fmt.Errorf("scan run id is required")
	}

	query := `
		INSERT INTO scan_runs (id, kind, user_id, status, providers, tokens, peak_vtmr,
			both_markets, futures_only, spot_only, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		run.ID, run.Kind, run.UserID, run.Status, pq.Array(run.Providers),
		run.Tokens, run.PeakVTMR, run.BothMarkets, run.FuturesOnly, run.SpotOnly,
		run.StartedAt, run.FinishedAt).
		Scan(&run.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate scan run %s: %w", run.ID, err)
		}
		return fmt.Errorf("failed to insert scan run: %w", err)
	}
	return nil
}

func (r *scanRepo) LatestRuns(ctx context.Context, limit int) ([]persistence.ScanRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, user_id, status, providers, tokens, peak_vtmr,
			both_markets, futures_only, spot_only, started_at, finished_at, created_at
		FROM scan_runs
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []scanRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}

	runs := make([]persistence.ScanRun, 0, len(rows))
	for _, row := range rows {
		run := row.ScanRun
		run.Providers = []string(row.ProviderList)
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *scanRepo) CountRuns(ctx context.Context, status string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		count int64
		err   error
	)
	if status == "" {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM scan_runs`)
	} else {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM scan_runs WHERE status = $1`, status)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count scan runs: %w", err)
	}
	return count, nil
}
