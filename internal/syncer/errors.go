package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrPersistence marks a message that could not be stored. Isolated
// failures skip the message and continue the batch; systemic ones abort
// the remaining batch for the account.
var ErrPersistence = errors.New("persistence error")

// errStorageOutage aborts the rest of an account's batch when storage
// looks down rather than unhappy about one row.
type errStorageOutage struct {
	err error
}

func (e *errStorageOutage) Error() string {
	return fmt.Sprintf("storage outage: %v", e.err)
}

func (e *errStorageOutage) Unwrap() error {
	return ErrPersistence
}

// isSystemic reports whether a storage error indicates an outage rather
// than a per-row problem such as a constraint race.
func isSystemic(err error) bool {
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrFull, sqlite3.ErrNotADB:
			return true
		}
	}
	return false
}
