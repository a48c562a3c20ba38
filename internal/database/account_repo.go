package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reachbox/reachbox/pkg/models"
)

// CreateAccount creates a new IMAP account for a user
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (user_id, email, imap_host, imap_port, secret, provider, is_active, auth_failed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.UserID,
		account.Email,
		account.IMAPHost,
		account.IMAPPort,
		account.Secret,
		account.Provider,
		account.IsActive,
		account.AuthFailed,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccount returns an account by ID, secret included
func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	query := `SELECT * FROM accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// ListActiveAccounts returns all active accounts for a user
func (db *DB) ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE user_id = ? AND is_active = true ORDER BY created_at`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accounts, nil
}

// DeactivateAccount soft-deletes an account. Messages already synced from
// it stay queryable; the account is excluded from future sync runs.
func (db *DB) DeactivateAccount(ctx context.Context, userID, accountID int64) error {
	query := `UPDATE accounts SET is_active = false, updated_at = ? WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, time.Now(), accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAuthFailed flags an account whose last run failed to authenticate.
// The account stays active; the flag is for user attention only.
func (db *DB) SetAuthFailed(ctx context.Context, accountID int64, failed bool) error {
	query := `UPDATE accounts SET auth_failed = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, failed, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to set auth failed flag: %w", err)
	}
	return nil
}
