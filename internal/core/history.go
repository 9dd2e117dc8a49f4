package core

// history.go persists one row per finished run into etl_runs so operators
// can see what was loaded for each window without keeping the process alive.

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// RunRecord is one row of etl_runs.
type RunRecord struct {
	RunID             string    `json:"run_id"`
	Profile           string    `json:"profile"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	Status            RunStatus `json:"status"`
	Fetched           int64     `json:"fetched"`
	ProjectionSkipped int64     `json:"projection_skipped"`
	Inserted          int64     `json:"inserted"`
	LoadSkipped       int64     `json:"load_skipped"`
	Failed            int64     `json:"failed"`
	StartedAt         time.Time `json:"started_at"`
	DurationMs        int64     `json:"duration_ms"`
	Trigger           string    `json:"trigger"`
	RequestedBy       string    `json:"requested_by,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// HistoryStore reads and writes etl_runs.
type HistoryStore struct {
	db DBTX
}

// NewHistoryStore creates a store over db (a pool or a transaction).
func NewHistoryStore(db DBTX) *HistoryStore {
	return &HistoryStore{db: db}
}

const insertRunSQL = `
INSERT INTO etl_runs (
	run_id, profile, window_start, window_end, status,
	fetched, projection_skipped, inserted, load_skipped, failed,
	started_at, duration_ms, trigger, requested_by, error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	fetched = EXCLUDED.fetched,
	projection_skipped = EXCLUDED.projection_skipped,
	inserted = EXCLUDED.inserted,
	load_skipped = EXCLUDED.load_skipped,
	failed = EXCLUDED.failed,
	duration_ms = EXCLUDED.duration_ms,
	error = EXCLUDED.error`

// Record upserts the summary of a run.
func (h *HistoryStore) Record(ctx context.Context, s *RunSummary) error {
	_, err := h.db.Exec(ctx, insertRunSQL,
		ToPgUUID(s.RunID),
		s.Profile,
		ToPgTimestamptz(s.Window.Start),
		ToPgTimestamptz(s.Window.End),
		string(s.Status()),
		s.Fetched(),
		s.ProjectionSkipped(),
		s.Inserted(),
		s.LoadSkipped(),
		s.Failed(),
		ToPgTimestamptz(s.StartedAt()),
		s.Duration().Milliseconds(),
		TriggerFromContext(ctx),
		ToPgText(RequesterFromContext(ctx)),
		ToPgText(s.FatalError()),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}
	return nil
}

const recentRunsSQL = `
SELECT run_id, profile, window_start, window_end, status,
	fetched, projection_skipped, inserted, load_skipped, failed,
	started_at, duration_ms, trigger, requested_by, error
FROM etl_runs
WHERE ($1::text = '' OR profile = $1::text)
ORDER BY started_at DESC
LIMIT $2`

// Recent returns the latest runs, optionally filtered by profile.
func (h *HistoryStore) Recent(ctx context.Context, profile string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(ctx, recentRunsSQL, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r           RunRecord
			id          pgtype.UUID
			status      string
			requestedBy pgtype.Text
			errText     pgtype.Text
		)
		if err := rows.Scan(&id, &r.Profile, &r.WindowStart, &r.WindowEnd, &status,
			&r.Fetched, &r.ProjectionSkipped, &r.Inserted, &r.LoadSkipped, &r.Failed,
			&r.StartedAt, &r.DurationMs, &r.Trigger, &requestedBy, &errText); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		r.RunID = PgUUIDToString(id)
		r.Status = RunStatus(status)
		r.RequestedBy = PgTextToString(requestedBy)
		r.Error = PgTextToString(errText)
		out = append(out, r)
	}
	return out, rows.Err()
}

const cleanRunsSQL = `
SELECT count(*)
FROM etl_runs
WHERE profile = $1 AND window_start = $2 AND window_end = $3 AND status = 'clean'`

// LoadedClean reports whether a clean run of profile over w is on record.
func (h *HistoryStore) LoadedClean(ctx context.Context, profile string, w TimeWindow) (bool, error) {
	rows, err := h.db.Query(ctx, cleanRunsSQL, profile, ToPgTimestamptz(w.Start), ToPgTimestamptz(w.End))
	if err != nil {
		return false, fmt.Errorf("query clean runs: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, fmt.Errorf("scan clean runs: %w", err)
		}
	}
	return n > 0, rows.Err()
}
