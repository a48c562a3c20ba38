package models

import (
	"fmt"
	"time"
)

// Account represents an IMAP mailbox credential set owned by a user
type Account struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	Email      string    `db:"email"`       // Mailbox address
	IMAPHost   string    `db:"imap_host"`   // e.g. imap.gmail.com
	IMAPPort   int       `db:"imap_port"`   // 993 for IMAPS
	Secret     string    `db:"secret"`      // IMAP password / app password
	Provider   string    `db:"provider"`    // Provider tag, e.g. "gmail"
	IsActive   bool      `db:"is_active"`   // Soft-delete flag; inactive accounts are skipped by sync
	AuthFailed bool      `db:"auth_failed"` // Set when the last run failed to authenticate
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Addr returns the host:port dial address for the account's IMAP server
func (a *Account) Addr() string {
	port := a.IMAPPort
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", a.IMAPHost, port)
}
