package mailsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/pkg/models"
)

// SchedulerOptions controls periodic sync
type SchedulerOptions struct {
	Interval      time.Duration
	StartDelay    time.Duration
	MaxConcurrent int // 0 means one goroutine per account
}

// Scheduler periodically syncs every active account
type Scheduler struct {
	syncer *Syncer
	db     *database.DB
	opts   SchedulerOptions
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	passes  conc.WaitGroup
	running bool
}

// NewScheduler creates a scheduler
func NewScheduler(syncer *Syncer, db *database.DB, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	return &Scheduler{
		syncer: syncer,
		db:     db,
		opts:   opts,
		logger: logger.With("component", "scheduler"),
	}
}

// Start runs the first pass after the start delay, then one per interval
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started", "interval", s.opts.Interval, "start_delay", s.opts.StartDelay)
}

// Stop cancels the loop and waits for in-flight sessions to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.passes.Wait()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.opts.StartDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		// passes are not awaited so a slow account never delays the next tick
		s.passes.Go(func() { s.RunOnce(ctx) })

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce syncs every active account concurrently and returns the
// number of sessions that ran. Accounts already syncing are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	accounts, err := s.db.GetAllActiveAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list active accounts", "error", err)
		return 0
	}
	if len(accounts) == 0 {
		return 0
	}

	s.logger.Debug("sync pass", "accounts", len(accounts))

	p := pool.New()
	if s.opts.MaxConcurrent > 0 {
		p = p.WithMaxGoroutines(s.opts.MaxConcurrent)
	}

	var (
		mu  sync.Mutex
		ran int
	)
	for _, account := range accounts {
		p.Go(func() {
			if s.syncOne(ctx, account.ID) {
				mu.Lock()
				ran++
				mu.Unlock()
			}
		})
	}
	p.Wait()

	return ran
}

// syncOne isolates one account: a panic is logged and swallowed
func (s *Scheduler) syncOne(ctx context.Context, accountID int64) bool {
	logger := s.logger.With("account_id", accountID)

	var (
		ran bool
		pc  panics.Catcher
	)
	pc.Try(func() {
		var result models.SyncResult
		result, ran = s.syncer.TrySyncAccount(ctx, accountID)
		if !ran {
			logger.Debug("account already syncing, skipped")
			return
		}
		if !result.Success {
			logger.Warn("scheduled sync failed", "error", result.Error, "details", result.Details)
		}
	})

	if r := pc.Recovered(); r != nil {
		logger.Error("scheduled sync panicked", "error", r.AsError())
		return false
	}
	return ran
}
