package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachbox/reachbox/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func seedUser(t *testing.T, db *DB) *models.User {
	t.Helper()
	user, err := db.CreateUser(context.Background(), "Alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	return user
}

func seedAccount(t *testing.T, db *DB, userID int64, email string) *models.Account {
	t.Helper()
	account := &models.Account{
		UserID:   userID,
		Email:    email,
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		Secret:   "app-password",
		Provider: "gmail",
		IsActive: true,
	}
	require.NoError(t, db.CreateAccount(context.Background(), account))
	return account
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	// Email comparison is case-insensitive on the normalized form
	_, err := db.CreateUser(ctx, "Alice Again", " ALICE@example.com ", "other")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)

	got, err := db.GetUserByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, db.ValidatePassword(got, "s3cret"))
	assert.False(t, db.ValidatePassword(got, "wrong"))

	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateAccountExcludesFromSync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)
	acc1 := seedAccount(t, db, user.ID, "alice@gmail.com")
	acc2 := seedAccount(t, db, user.ID, "alice@work.com")

	active, err := db.ListActiveAccounts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	require.NoError(t, db.DeactivateAccount(ctx, user.ID, acc1.ID))

	active, err = db.ListActiveAccounts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, acc2.ID, active[0].ID)

	// The row itself survives the soft delete
	got, err := db.GetAccount(ctx, acc1.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Deactivating someone else's account must not succeed
	err = db.DeactivateAccount(ctx, user.ID+1, acc2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAuthFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)
	account := seedAccount(t, db, user.ID, "alice@gmail.com")

	require.NoError(t, db.SetAuthFailed(ctx, account.ID, true))
	got, err := db.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.AuthFailed)
	assert.True(t, got.IsActive, "auth failure must not deactivate the account")

	require.NoError(t, db.SetAuthFailed(ctx, account.ID, false))
	got, err = db.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, got.AuthFailed)
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)
	account := seedAccount(t, db, user.ID, "alice@gmail.com")

	msg := &models.Message{
		UserID:      user.ID,
		AccountID:   account.ID,
		Fingerprint: "fp-1",
		Subject:     "Your invoice",
		Sender:      "Billing <billing@vendor.com>",
		Body:        "please pay this invoice",
		Category:    "finance",
		Confidence:  0.8,
		ReceivedAt:  time.Now().Add(-time.Hour),
	}

	first, err := db.UpsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	// Same fingerprint again: no new row, mutable fields refreshed
	msg.Category = "important"
	second, err := db.UpsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "important", second.Category)

	messages, err := db.ListMessages(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestUpsertMessageScopedPerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db)
	bob, err := db.CreateUser(ctx, "Bob", "bob@example.com", "pw")
	require.NoError(t, err)
	aliceAcc := seedAccount(t, db, alice.ID, "alice@gmail.com")
	bobAcc := seedAccount(t, db, bob.ID, "bob@gmail.com")

	// Same content fingerprint under two users stays two rows
	for _, tc := range []struct {
		userID    int64
		accountID int64
	}{{alice.ID, aliceAcc.ID}, {bob.ID, bobAcc.ID}} {
		_, err := db.UpsertMessage(ctx, &models.Message{
			UserID:      tc.userID,
			AccountID:   tc.accountID,
			Fingerprint: "shared-fp",
			Subject:     "hello",
			Sender:      "x@y.com",
			Body:        "hi",
			Category:    "general",
			Confidence:  0.8,
			ReceivedAt:  time.Now(),
		})
		require.NoError(t, err)
	}

	aliceMsgs, err := db.ListMessages(ctx, alice.ID, 10)
	require.NoError(t, err)
	bobMsgs, err := db.ListMessages(ctx, bob.ID, 10)
	require.NoError(t, err)
	assert.Len(t, aliceMsgs, 1)
	assert.Len(t, bobMsgs, 1)
}

func TestSearchMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)
	account := seedAccount(t, db, user.ID, "alice@gmail.com")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed := []struct {
		fp       string
		subject  string
		body     string
		category string
		offset   time.Duration
	}{
		{"fp-a", "Your invoice", "please pay promptly", "finance", 0},
		{"fp-b", "Team sync", "let's schedule a meeting", "meetings", time.Hour},
		{"fp-c", "Weekly newsletter", "unsubscribe anytime", "marketing", 2 * time.Hour},
	}
	for _, s := range seed {
		_, err := db.UpsertMessage(ctx, &models.Message{
			UserID:      user.ID,
			AccountID:   account.ID,
			Fingerprint: s.fp,
			Subject:     s.subject,
			Sender:      "x@y.com",
			Body:        s.body,
			Category:    s.category,
			Confidence:  0.8,
			ReceivedAt:  base.Add(s.offset),
		})
		require.NoError(t, err)
	}

	byCategory, err := db.SearchMessages(ctx, user.ID, MessageFilter{Category: "finance"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Your invoice", byCategory[0].Subject)

	byText, err := db.SearchMessages(ctx, user.ID, MessageFilter{Query: "meeting"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "fp-b", byText[0].Fingerprint)

	inWindow, err := db.SearchMessages(ctx, user.ID, MessageFilter{
		From: base.Add(30 * time.Minute),
		To:   base.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, inWindow, 1)
	assert.Equal(t, "fp-b", inWindow[0].Fingerprint)

	newestFirst, err := db.SearchMessages(ctx, user.ID, MessageFilter{})
	require.NoError(t, err)
	require.Len(t, newestFirst, 3)
	assert.Equal(t, "fp-c", newestFirst[0].Fingerprint)

	oldestFirst, err := db.SearchMessages(ctx, user.ID, MessageFilter{SortAsc: true})
	require.NoError(t, err)
	assert.Equal(t, "fp-a", oldestFirst[0].Fingerprint)

	counts, err := db.CountByCategory(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"finance": 1, "meetings": 1, "marketing": 1}, counts)
}

func TestRecordSyncRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db)
	account := seedAccount(t, db, user.ID, "alice@gmail.com")

	for i, outcome := range []models.SyncOutcome{models.SyncFailed, models.SyncSuccess} {
		run := &models.SyncRun{
			RunID:     "run-" + string(rune('a'+i)),
			AccountID: account.ID,
			Outcome:   outcome,
			Seen:      i,
			StartedAt: time.Now(),
			Duration:  12,
		}
		require.NoError(t, db.RecordSyncRun(ctx, run))
		assert.NotZero(t, run.ID)
	}

	runs, err := db.LatestSyncRuns(ctx, account.ID, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first
	assert.Equal(t, models.SyncSuccess, runs[0].Outcome)
}

func TestGetMessageByFingerprintNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetMessageByFingerprint(context.Background(), 1, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
