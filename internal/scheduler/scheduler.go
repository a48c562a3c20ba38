package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/reachbox/reachbox/pkg/models"
)

// Store is the lookup surface the scheduler reads from
type Store interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error)
}

// Syncer runs the pipeline for one account
type Syncer interface {
	SyncAccount(ctx context.Context, user *models.User, account *models.Account) *models.SyncRun
}

// Config configuration for the scheduler
type Config struct {
	Interval    time.Duration // Sweep period, default 2m
	SyncTimeout time.Duration // Per-account run budget
}

// Scheduler triggers orchestrator runs on a fixed interval and on demand,
// holding a per-account lock so two pipelines never run concurrently for
// the same account. Each account moves Idle -> Running -> Idle; a failed
// run simply waits for the next tick.
type Scheduler struct {
	store  Store
	syncer Syncer
	config Config
	logger *slog.Logger

	running sync.Map // account id -> struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new scheduler. Start must be called before triggers fire.
func New(store Store, syncer Syncer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:  store,
		syncer: syncer,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the jittered initial pass and the periodic sweep
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", "interval", s.config.Interval)
	s.startupPass()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop cancels in-flight work and waits for it to settle
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// TriggerUser requests an immediate sync of all of a user's accounts.
// Fire-and-forget: the caller is never blocked on mailbox I/O.
func (s *Scheduler) TriggerUser(userID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		user, err := s.store.GetUserByID(s.ctx, userID)
		if err != nil {
			s.logger.Error("manual sync: unknown user", "user_id", userID, "error", err)
			return
		}
		s.syncUser(user)
	}()
}

// TriggerAccount requests an immediate sync of one account, typically right
// after it was added. Fire-and-forget, same per-account mutual exclusion.
func (s *Scheduler) TriggerAccount(accountID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		account, err := s.store.GetAccount(s.ctx, accountID)
		if err != nil {
			s.logger.Error("manual sync: unknown account", "account_id", accountID, "error", err)
			return
		}
		if !account.IsActive {
			s.logger.Warn("manual sync: account is deactivated, skipping", "account_id", accountID)
			return
		}
		user, err := s.store.GetUserByID(s.ctx, account.UserID)
		if err != nil {
			s.logger.Error("manual sync: unknown user", "user_id", account.UserID, "error", err)
			return
		}
		s.runAccount(user, account)
	}()
}

// startupPass syncs every existing user once, with random jitter per user
// so a restart does not stampede the mail servers.
func (s *Scheduler) startupPass() {
	users, err := s.store.ListUsers(s.ctx)
	if err != nil {
		s.logger.Error("startup pass: failed to list users", "error", err)
		return
	}
	s.logger.Info("startup sync pass", "users", len(users))

	for _, user := range users {
		jitter := time.Duration(rand.Int63n(int64(s.config.Interval)))
		s.wg.Add(1)
		go func(user *models.User, jitter time.Duration) {
			defer s.wg.Done()
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(jitter):
			}
			s.syncUser(user)
		}(user, jitter)
	}
}

// sweep runs one scheduled pass over all users, pacing between them the
// way the periodic sweep always has.
func (s *Scheduler) sweep() {
	users, err := s.store.ListUsers(s.ctx)
	if err != nil {
		s.logger.Error("sweep: failed to list users", "error", err)
		return
	}

	for i, user := range users {
		if s.ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
		s.syncUser(user)
	}
}

// syncUser runs the pipeline for each of the user's active accounts in
// turn, skipping any account that is already mid-run.
func (s *Scheduler) syncUser(user *models.User) {
	accounts, err := s.store.ListActiveAccounts(s.ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to list accounts", "user_id", user.ID, "error", err)
		return
	}
	for _, account := range accounts {
		if s.ctx.Err() != nil {
			return
		}
		s.runAccount(user, account)
	}
}

// runAccount executes one pipeline run under the account's lock
func (s *Scheduler) runAccount(user *models.User, account *models.Account) {
	if !s.tryLock(account.ID) {
		s.logger.Debug("sync already running, skipping", "account_id", account.ID)
		return
	}
	defer s.unlock(account.ID)

	ctx, cancel := context.WithTimeout(s.ctx, s.config.SyncTimeout)
	defer cancel()

	s.syncer.SyncAccount(ctx, user, account)
}

func (s *Scheduler) tryLock(accountID int64) bool {
	_, loaded := s.running.LoadOrStore(accountID, struct{}{})
	return !loaded
}

func (s *Scheduler) unlock(accountID int64) {
	s.running.Delete(accountID)
}
