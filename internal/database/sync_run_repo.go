package database

import (
	"context"
	"fmt"

	"github.com/reachbox/reachbox/pkg/models"
)

// RecordSyncRun persists the outcome of one account sync
func (db *DB) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (run_id, account_id, outcome, error, seen, stored, failed, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.ExecContext(ctx, query,
		run.RunID,
		run.AccountID,
		run.Outcome,
		run.Error,
		run.Seen,
		run.Stored,
		run.Failed,
		run.StartedAt,
		run.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// LatestSyncRuns returns the most recent runs for an account
func (db *DB) LatestSyncRuns(ctx context.Context, accountID int64, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []*models.SyncRun
	query := `SELECT * FROM sync_runs WHERE account_id = ? ORDER BY id DESC LIMIT ?`
	err := db.SelectContext(ctx, &runs, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}
