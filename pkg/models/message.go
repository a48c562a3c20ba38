package models

import "time"

// Message represents a normalized, classified email stored for a user
type Message struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AccountID   int64     `db:"account_id"`
	Fingerprint string    `db:"fingerprint"` // Content hash, unique per user
	Subject     string    `db:"subject"`
	Sender      string    `db:"sender"`     // From header display form
	Body        string    `db:"body"`       // Plain-text body / snippet
	Category    string    `db:"category"`   // Classifier label
	Confidence  float64   `db:"confidence"` // Classifier confidence
	ReceivedAt  time.Time `db:"received_at"`
	SyncedAt    time.Time `db:"synced_at"`
}
