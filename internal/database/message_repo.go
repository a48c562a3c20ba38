package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reachbox/reachbox/pkg/models"
)

// UpsertMessage inserts a message keyed by (user_id, fingerprint), or
// updates the mutable fields of the existing row when the fingerprint has
// been seen before. The UNIQUE constraint makes this safe under concurrent
// invocation for the same identity. Returns the stored row.
func (db *DB) UpsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (user_id, account_id, fingerprint, subject, sender, body, category, confidence, received_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, fingerprint) DO UPDATE SET
			subject = excluded.subject,
			sender = excluded.sender,
			body = excluded.body,
			category = excluded.category,
			confidence = excluded.confidence,
			received_at = excluded.received_at,
			synced_at = excluded.synced_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		msg.UserID,
		msg.AccountID,
		msg.Fingerprint,
		msg.Subject,
		msg.Sender,
		msg.Body,
		msg.Category,
		msg.Confidence,
		msg.ReceivedAt,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert message: %w", err)
	}

	return db.GetMessageByFingerprint(ctx, msg.UserID, msg.Fingerprint)
}

// GetMessageByFingerprint returns a message by its stable identity
func (db *DB) GetMessageByFingerprint(ctx context.Context, userID int64, fingerprint string) (*models.Message, error) {
	var msg models.Message
	query := `SELECT * FROM messages WHERE user_id = ? AND fingerprint = ?`
	err := db.GetContext(ctx, &msg, query, userID, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the most recently received messages for a user
func (db *DB) ListMessages(ctx context.Context, userID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []*models.Message
	query := `SELECT * FROM messages WHERE user_id = ? ORDER BY received_at DESC LIMIT ?`
	err := db.SelectContext(ctx, &messages, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// MessageFilter narrows a message search
type MessageFilter struct {
	Query     string // Matches subject, sender or body
	Category  string
	AccountID int64
	From      time.Time
	To        time.Time
	SortAsc   bool // Oldest first when set
	Limit     int
}

// SearchMessages returns a user's messages matching the filter
func (db *DB) SearchMessages(ctx context.Context, userID int64, filter MessageFilter) ([]*models.Message, error) {
	query := `SELECT * FROM messages WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.Query != "" {
		query += ` AND (subject LIKE ? OR sender LIKE ? OR body LIKE ?)`
		term := "%" + filter.Query + "%"
		args = append(args, term, term, term)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.AccountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	if !filter.From.IsZero() {
		query += ` AND received_at >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND received_at <= ?`
		args = append(args, filter.To)
	}

	if filter.SortAsc {
		query += ` ORDER BY received_at ASC`
	} else {
		query += ` ORDER BY received_at DESC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	var messages []*models.Message
	err := db.SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

// CountByCategory returns per-category message counts for a user
func (db *DB) CountByCategory(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT category, COUNT(*) FROM messages WHERE user_id = ? GROUP BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category counts: %w", err)
	}
	return counts, nil
}
