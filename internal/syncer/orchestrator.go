package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reachbox/reachbox/internal/classifier"
	"github.com/reachbox/reachbox/internal/mailbox"
	"github.com/reachbox/reachbox/internal/metrics"
	"github.com/reachbox/reachbox/internal/normalizer"
	"github.com/reachbox/reachbox/pkg/models"
)

// Store is the storage surface the pipeline writes through
type Store interface {
	ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error)
	UpsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error
	SetAuthFailed(ctx context.Context, accountID int64, failed bool) error
}

// Source streams raw messages for an account. Implemented by
// mailbox.Connector; faked in tests.
type Source interface {
	Fetch(ctx context.Context, account *models.Account, since time.Time, limit int, fn func(mailbox.RawMessage) error) error
}

// Config configuration for the orchestrator
type Config struct {
	LookbackWindow  time.Duration
	FetchBatchLimit int
}

// Orchestrator drives the Connector → Normalizer → Classifier → Gate
// pipeline per account and aggregates per-account outcomes without letting
// one account's failure abort the others.
type Orchestrator struct {
	store      Store
	source     Source
	normalizer *normalizer.Normalizer
	reporter   metrics.Reporter
	config     Config
	logger     *slog.Logger
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(store Store, source Source, reporter metrics.Reporter, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.LookbackWindow == 0 {
		cfg.LookbackWindow = 30 * 24 * time.Hour
	}
	return &Orchestrator{
		store:      store,
		source:     source,
		normalizer: normalizer.New(),
		reporter:   reporter,
		config:     cfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

// SyncAccount runs one full pipeline pass for a single account. It never
// returns an error: every failure mode is folded into the SyncRun outcome
// so callers keep going with other accounts.
func (o *Orchestrator) SyncAccount(ctx context.Context, user *models.User, account *models.Account) *models.SyncRun {
	run := &models.SyncRun{
		RunID:     uuid.NewString(),
		AccountID: account.ID,
		StartedAt: time.Now(),
	}
	logger := o.logger.With("run_id", run.RunID, "email", account.Email)
	since := time.Now().Add(-o.config.LookbackWindow)

	err := o.source.Fetch(ctx, account, since, o.config.FetchBatchLimit, func(raw mailbox.RawMessage) error {
		run.Seen++

		email, err := o.normalizer.Normalize(raw.Body)
		if err != nil {
			run.Failed++
			logger.Warn("failed to parse message", "uid", raw.UID, "error", err)
			return nil
		}

		msg := &models.Message{
			UserID:      user.ID,
			AccountID:   account.ID,
			Fingerprint: Fingerprint(email.Sender, email.Subject, email.Body),
			Subject:     email.Subject,
			Sender:      email.Sender,
			Body:        email.Body,
			Category:    classifier.Classify(email.Body),
			Confidence:  classifier.Confidence,
			ReceivedAt:  email.ReceivedAt,
		}

		if _, err := o.store.UpsertMessage(ctx, msg); err != nil {
			run.Failed++
			logger.Warn("failed to store message", "uid", raw.UID, "error", err)
			if isSystemic(err) {
				return &errStorageOutage{err: err}
			}
			return nil
		}

		run.Stored++
		if run.Seen%10 == 0 {
			logger.Debug("sync progress", "seen", run.Seen, "stored", run.Stored)
		}
		return nil
	})

	switch {
	case err == nil && run.Failed == 0:
		run.Outcome = models.SyncSuccess
	case err == nil:
		run.Outcome = models.SyncPartial
	default:
		run.Outcome = models.SyncFailed
		run.Error = err.Error()
		logger.Error("account sync failed", "error", err)
	}

	o.updateAuthFlag(ctx, account, err)

	run.Duration = time.Since(run.StartedAt).Milliseconds()
	if recErr := o.store.RecordSyncRun(ctx, run); recErr != nil {
		logger.Warn("failed to record sync run", "error", recErr)
	}
	if o.reporter != nil {
		o.reporter.RunCompleted(account, run)
	}
	return run
}

// SyncUser synchronizes every active account of a user, sequentially so at
// most one IMAP connection per user is open at a time. An account failure
// never prevents attempting the remaining accounts.
func (o *Orchestrator) SyncUser(ctx context.Context, user *models.User) ([]*models.SyncRun, error) {
	accounts, err := o.store.ListActiveAccounts(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.SyncRun, 0, len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		runs = append(runs, o.SyncAccount(ctx, user, account))
	}
	return runs, nil
}

// updateAuthFlag flags the account on a credential rejection and clears a
// stale flag after a clean run. Transient failures leave the flag alone.
func (o *Orchestrator) updateAuthFlag(ctx context.Context, account *models.Account, runErr error) {
	var connErr *mailbox.Error
	authFailed := errors.As(runErr, &connErr) && connErr.Kind == mailbox.KindAuthFailed

	if authFailed == account.AuthFailed {
		return
	}
	if !authFailed && runErr != nil {
		return
	}
	if err := o.store.SetAuthFailed(ctx, account.ID, authFailed); err != nil {
		o.logger.Warn("failed to update auth flag", "account_id", account.ID, "error", err)
		return
	}
	account.AuthFailed = authFailed
}
