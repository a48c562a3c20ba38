package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachbox/reachbox/internal/classifier"
	"github.com/reachbox/reachbox/internal/mailbox"
	"github.com/reachbox/reachbox/pkg/models"
)

type fakeStore struct {
	mu        sync.Mutex
	accounts  []*models.Account
	messages  map[string]*models.Message // userID:fingerprint
	runs      []*models.SyncRun
	authFlags map[int64]bool
	upsertErr error // injected on every upsert when set
}

func newFakeStore(accounts ...*models.Account) *fakeStore {
	return &fakeStore{
		accounts:  accounts,
		messages:  make(map[string]*models.Message),
		authFlags: make(map[int64]bool),
	}
}

func (s *fakeStore) ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range s.accounts {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	key := fmt.Sprintf("%d:%s", msg.UserID, msg.Fingerprint)
	stored := *msg
	stored.SyncedAt = time.Now()
	s.messages[key] = &stored
	return &stored, nil
}

func (s *fakeStore) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) SetAuthFailed(ctx context.Context, accountID int64, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFlags[accountID] = failed
	return nil
}

func (s *fakeStore) storedMessages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	return out
}

type fakeSource struct {
	batches map[int64][][]byte
	errs    map[int64]error
	fetched map[int64]int // messages handed to fn per account
}

func (s *fakeSource) Fetch(ctx context.Context, account *models.Account, since time.Time, limit int, fn func(mailbox.RawMessage) error) error {
	if err, ok := s.errs[account.ID]; ok {
		return err
	}
	if s.fetched == nil {
		s.fetched = make(map[int64]int)
	}
	for i, raw := range s.batches[account.ID] {
		s.fetched[account.ID]++
		if err := fn(mailbox.RawMessage{UID: uint32(i + 1), Body: raw}); err != nil {
			return err
		}
	}
	return nil
}

func rawMessage(from, subject, body string) []byte {
	headers := strings.Join([]string{
		"From: " + from,
		"Subject: " + subject,
		"Date: Mon, 02 Jan 2006 15:04:05 -0700",
		"Content-Type: text/plain; charset=utf-8",
	}, "\r\n")
	return []byte(headers + "\r\n\r\n" + body)
}

func testOrchestrator(store Store, source Source) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(store, source, nil, Config{}, logger)
}

func testAccount(id, userID int64) *models.Account {
	return &models.Account{
		ID:       id,
		UserID:   userID,
		Email:    fmt.Sprintf("account%d@example.com", id),
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		IsActive: true,
	}
}

func TestSyncAccountEndToEnd(t *testing.T) {
	user := &models.User{ID: 1, Email: "alice@example.com"}
	account := testAccount(1, user.ID)
	store := newFakeStore(account)
	source := &fakeSource{batches: map[int64][][]byte{
		account.ID: {
			rawMessage("billing@vendor.com", "Your invoice", "please pay this invoice by Friday"),
			rawMessage("bob@example.com", "Catch up", "let's schedule a meeting next week"),
		},
	}}
	orc := testOrchestrator(store, source)

	run := orc.SyncAccount(context.Background(), user, account)

	assert.Equal(t, models.SyncSuccess, run.Outcome)
	assert.Equal(t, 2, run.Seen)
	assert.Equal(t, 2, run.Stored)
	assert.Equal(t, 0, run.Failed)
	assert.NotEmpty(t, run.RunID)

	messages := store.storedMessages()
	require.Len(t, messages, 2)
	categories := map[string]bool{}
	for _, m := range messages {
		categories[m.Category] = true
		assert.Equal(t, user.ID, m.UserID)
		assert.Equal(t, account.ID, m.AccountID)
		assert.Equal(t, classifier.Confidence, m.Confidence)
		assert.NotEmpty(t, m.Fingerprint)
	}
	assert.True(t, categories[classifier.CategoryFinance])
	assert.True(t, categories[classifier.CategoryMeetings])

	// Re-syncing the same two messages must not create duplicates
	run2 := orc.SyncAccount(context.Background(), user, account)
	assert.Equal(t, models.SyncSuccess, run2.Outcome)
	assert.Len(t, store.storedMessages(), 2)

	// One persisted run record per pass
	assert.Len(t, store.runs, 2)
}

func TestSyncUserPartialFailureIsolation(t *testing.T) {
	user := &models.User{ID: 1, Email: "alice@example.com"}
	acc1, acc2, acc3 := testAccount(1, user.ID), testAccount(2, user.ID), testAccount(3, user.ID)
	store := newFakeStore(acc1, acc2, acc3)
	source := &fakeSource{
		batches: map[int64][][]byte{
			acc1.ID: {rawMessage("a@x.com", "one", "hello")},
			acc3.ID: {rawMessage("c@x.com", "three", "hello")},
		},
		errs: map[int64]error{
			acc2.ID: &mailbox.Error{Kind: mailbox.KindAuthFailed, Email: acc2.Email, Err: fmt.Errorf("LOGIN failed")},
		},
	}
	orc := testOrchestrator(store, source)

	runs, err := orc.SyncUser(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, models.SyncSuccess, runs[0].Outcome)
	assert.Equal(t, models.SyncFailed, runs[1].Outcome)
	assert.NotEmpty(t, runs[1].Error)
	assert.Equal(t, models.SyncSuccess, runs[2].Outcome)

	// The failing account is flagged for attention, the others untouched
	assert.True(t, store.authFlags[acc2.ID])
	assert.False(t, store.authFlags[acc1.ID])

	// Accounts 1 and 3 still stored their messages
	assert.Len(t, store.storedMessages(), 2)
}

func TestSyncAccountPerMessageIsolation(t *testing.T) {
	user := &models.User{ID: 1}
	account := testAccount(1, user.ID)
	store := newFakeStore(account)
	source := &fakeSource{batches: map[int64][][]byte{
		account.ID: {
			rawMessage("a@x.com", "m1", "one"),
			rawMessage("a@x.com", "m2", "two"),
			[]byte("this is not a header\r\n\r\nbody"),
			rawMessage("a@x.com", "m4", "four"),
			rawMessage("a@x.com", "m5", "five"),
		},
	}}
	orc := testOrchestrator(store, source)

	run := orc.SyncAccount(context.Background(), user, account)

	assert.Equal(t, models.SyncPartial, run.Outcome)
	assert.Equal(t, 5, run.Seen)
	assert.Equal(t, 4, run.Stored)
	assert.Equal(t, 1, run.Failed)
	assert.Len(t, store.storedMessages(), 4)
}

func TestSyncAccountStorageOutage(t *testing.T) {
	user := &models.User{ID: 1}
	account := testAccount(1, user.ID)
	store := newFakeStore(account)
	store.upsertErr = fmt.Errorf("upsert: %w", sql.ErrConnDone)
	source := &fakeSource{batches: map[int64][][]byte{
		account.ID: {
			rawMessage("a@x.com", "m1", "one"),
			rawMessage("a@x.com", "m2", "two"),
			rawMessage("a@x.com", "m3", "three"),
		},
	}}
	orc := testOrchestrator(store, source)

	run := orc.SyncAccount(context.Background(), user, account)

	assert.Equal(t, models.SyncFailed, run.Outcome)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, 0, run.Stored)
	// The batch is abandoned after the first systemic failure
	assert.Equal(t, 1, source.fetched[account.ID])
}

func TestSyncAccountIsolatedPersistenceFailure(t *testing.T) {
	user := &models.User{ID: 1}
	account := testAccount(1, user.ID)
	store := newFakeStore(account)
	store.upsertErr = fmt.Errorf("constraint race")
	source := &fakeSource{batches: map[int64][][]byte{
		account.ID: {
			rawMessage("a@x.com", "m1", "one"),
			rawMessage("a@x.com", "m2", "two"),
		},
	}}
	orc := testOrchestrator(store, source)

	run := orc.SyncAccount(context.Background(), user, account)

	// Non-systemic storage errors skip the message but finish the batch
	assert.Equal(t, models.SyncPartial, run.Outcome)
	assert.Equal(t, 2, run.Seen)
	assert.Equal(t, 2, run.Failed)
	assert.Equal(t, 2, source.fetched[account.ID])
}
