package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is the durable summary of one finished sync run.
type RunRecord struct {
	ID        string        `json:"id"`
	ImportID  string        `json:"importId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Status    string        `json:"status"` // "complete" or "cancelled"
}

// RunRecorder persists finished sync runs. The service treats the
// recorder as optional; a nil recorder disables run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// PGRecorder stores run records in PostgreSQL.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder creates a recorder backed by the given pool.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// EnsureSchema creates the run history table if it does not exist.
// Called once at startup.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id          UUID PRIMARY KEY,
			import_id   UUID NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			total       INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			status      TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create sync_runs table: %w", err)
	}
	return nil
}

// RecordRun inserts one run record.
func (r *PGRecorder) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, import_id, started_at, duration_ms, total, succeeded, failed, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.ImportID, rec.StartedAt, rec.Duration.Milliseconds(),
		rec.Total, rec.Succeeded, rec.Failed, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *PGRecorder) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, import_id, started_at, duration_ms, total, succeeded, failed, status
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.ImportID, &rec.StartedAt, &durationMs,
			&rec.Total, &rec.Succeeded, &rec.Failed, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}
