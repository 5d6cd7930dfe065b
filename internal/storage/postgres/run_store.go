package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// RunStore persists run summaries as JSONB keyed by run id.
type RunStore struct {
	db    DB
	table string
}

// NewRunStore wraps an existing pool.
func NewRunStore(db DB, table string) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "harvest_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	summary JSONB NOT NULL,
	error_text TEXT
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveRun upserts a summary.
func (s *RunStore) SaveRun(ctx context.Context, summary catalog.RunSummary) error {
	if summary.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	var errText *string
	if summary.ErrorText != "" {
		errText = &summary.ErrorText
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, status, started_at, finished_at, summary, error_text)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO UPDATE
SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at, summary = EXCLUDED.summary, error_text = EXCLUDED.error_text`, s.table)
	if _, err := s.db.Exec(ctx, query, summary.RunID, string(summary.Status), summary.Started, summary.Finished, body, errText); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun fetches one summary.
func (s *RunStore) GetRun(ctx context.Context, runID string) (catalog.RunSummary, error) {
	query := fmt.Sprintf(`SELECT summary FROM %s WHERE run_id = $1`, s.table)
	var body []byte
	if err := s.db.QueryRow(ctx, query, runID).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.RunSummary{}, catalog.ErrRunNotFound
		}
		return catalog.RunSummary{}, fmt.Errorf("select run: %w", err)
	}
	var summary catalog.RunSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return catalog.RunSummary{}, fmt.Errorf("decode run: %w", err)
	}
	return summary, nil
}

// ListRuns returns up to limit summaries, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]catalog.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT summary FROM %s ORDER BY started_at DESC LIMIT $1`, s.table)
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []catalog.RunSummary
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var summary catalog.RunSummary
		if err := json.Unmarshal(body, &summary); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
