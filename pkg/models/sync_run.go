package models

import "time"

// Outcome of one sync run against one account
type SyncOutcome string

const (
	SyncSuccess SyncOutcome = "success"
	SyncPartial SyncOutcome = "partial"
	SyncFailed  SyncOutcome = "failed"
)

// SyncRun records one execution of the sync pipeline against one account
type SyncRun struct {
	ID        int64       `db:"id"`
	RunID     string      `db:"run_id"` // UUID for log correlation
	AccountID int64       `db:"account_id"`
	Outcome   SyncOutcome `db:"outcome"`
	Error     string      `db:"error"` // Cause when outcome is failed
	Seen      int         `db:"seen"`
	Stored    int         `db:"stored"`
	Failed    int         `db:"failed"`
	StartedAt time.Time   `db:"started_at"`
	Duration  int64       `db:"duration_ms"`
}
