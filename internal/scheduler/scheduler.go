// Package scheduler runs the periodic background scan that keeps pool
// sessions fresh. Refreshes run one at a time with a fixed delay between
// attempts so the upstream login endpoint is never bursted.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
)

// refreshAllThreshold is large enough to include every account regardless of
// expiry. Used by the manual refresh-everything variant.
const refreshAllThreshold = 100 * 365 * 24 * time.Hour

// Lifecycle is the subset of the token manager the scheduler drives.
type Lifecycle interface {
	Login(ctx context.Context, email, password string) (string, *time.Time, error)
	Refresh(ctx context.Context, account *models.Account) (*models.Account, error)
	IsExpiringSoon(expiry *time.Time, threshold time.Duration) bool
}

// Persister is the subset of the storage collaborator the scheduler writes
// refreshed records through.
type Persister interface {
	SaveAccount(account *models.Account) error
}

// Options configure the scheduler.
type Options struct {
	Interval  time.Duration // background scan interval
	Threshold time.Duration // refresh sessions expiring within this window
	Delay     time.Duration // fixed delay between serial attempts
}

// Scheduler owns the recurring refresh scan. Its lifecycle is explicit:
// Start() registers the cron entry, Stop() cancels it deterministically
// before process exit.
type Scheduler struct {
	store     *store.AccountStore
	lifecycle Lifecycle
	persister Persister
	opts      Options
	logger    logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a scheduler over the given pool.
func New(pool *store.AccountStore, lifecycle Lifecycle, persister Persister, opts Options) *Scheduler {
	return &Scheduler{
		store:     pool,
		lifecycle: lifecycle,
		persister: persister,
		opts:      opts,
		logger:    logging.WithFields(logging.Field{Key: "component", Value: "scheduler"}),
	}
}

// Start registers and starts the recurring scan.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule refresh scan: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true

	s.logger.Info("Refresh scheduler started",
		logging.Duration("interval", s.opts.Interval),
		logging.Duration("threshold", s.opts.Threshold),
	)
	return nil
}

// Stop cancels the recurring scan and waits for an in-flight cycle to end.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	s.logger.Info("Refresh scheduler stopped")
}

func (s *Scheduler) tick() {
	s.RefreshExpiring(context.Background(), s.opts.Threshold)
}

// RefreshExpiring scans a snapshot of the pool and serially refreshes every
// account whose session expires within the threshold. One account's failure
// never aborts the batch; a failed refresh leaves the previous token in
// place. Returns the aggregate success and failure counts.
func (s *Scheduler) RefreshExpiring(ctx context.Context, threshold time.Duration) (refreshed, failed int) {
	candidates := make([]*models.Account, 0)
	for _, account := range s.store.List() {
		if s.lifecycle.IsExpiringSoon(account.ExpireTime, threshold) {
			candidates = append(candidates, account)
		}
	}

	if len(candidates) == 0 {
		return 0, 0
	}

	s.logger.Info("Refresh scan started",
		logging.Int("candidates", len(candidates)),
	)

	for i, account := range candidates {
		if i > 0 && s.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				s.logger.Warn("Refresh scan canceled",
					logging.Int("refreshed", refreshed),
					logging.Int("failed", failed),
				)
				return refreshed, failed
			case <-time.After(s.opts.Delay):
			}
		}

		if err := s.refreshOne(ctx, account); err != nil {
			failed++
			s.logger.Warn("Account refresh failed",
				logging.String("email", account.Email),
				logging.Err(err),
			)
			continue
		}
		refreshed++
	}

	s.logger.Info("Refresh scan finished",
		logging.Int("refreshed", refreshed),
		logging.Int("failed", failed),
	)
	return refreshed, failed
}

// RefreshAll runs the identical scan with a threshold wide enough to cover
// every account. It is the manual, caller-triggered variant of the periodic
// scan, not a separate code path.
func (s *Scheduler) RefreshAll(ctx context.Context) (refreshed, failed int) {
	return s.RefreshExpiring(ctx, refreshAllThreshold)
}

// refreshOne refreshes a single account and applies the result atomically:
// replace in the pool matched by email, then write through to persistence.
// When the session exchange is rejected it falls back to a full credential
// login before giving up.
func (s *Scheduler) refreshOne(ctx context.Context, account *models.Account) error {
	updated, err := s.lifecycle.Refresh(ctx, account)
	if err != nil {
		if account.Password == "" {
			return err
		}

		session, expiry, loginErr := s.lifecycle.Login(ctx, account.Email, account.Password)
		if loginErr != nil {
			return err
		}

		updated = account.Clone()
		updated.SessionID = session
		updated.ExpireTime = expiry
	}

	if err := s.store.Replace(account.Email, updated); err != nil {
		// Account was removed while its refresh was in flight
		return err
	}

	if err := s.persister.SaveAccount(updated); err != nil {
		s.logger.Warn("Failed to persist refreshed account",
			logging.String("email", account.Email),
			logging.Err(err),
		)
	}
	return nil
}
