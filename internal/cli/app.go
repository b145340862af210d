package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixelka/mailsync/internal/config"
	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/mailsync"
	"github.com/mixelka/mailsync/internal/vault"
)

// app wires the engine for one command invocation
type app struct {
	cfg      *config.Config
	db       *database.DB
	syncer   *mailsync.Syncer
	accounts *mailsync.Accounts
	sender   *mailsync.Sender
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.New(cfg.DatabasePath, database.Options{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var opts []vault.Option
	if cfg.CredentialLegacyKey {
		opts = append(opts, vault.WithLegacyKey())
	}
	v, err := vault.New(cfg.CredentialSecret, cfg.CredentialSalt, opts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credential vault: %w", err)
	}

	syncOpts := mailsync.OptionsFromConfig(cfg)
	syncer := mailsync.NewSyncer(db, v, syncOpts, logger)

	return &app{
		cfg:      cfg,
		db:       db,
		syncer:   syncer,
		accounts: mailsync.NewAccounts(db, v, syncer, syncOpts, logger),
		sender:   mailsync.NewSender(db, v, email.SMTPTransport{}, syncOpts, logger),
		logger:   logger,
	}, nil
}

// close waits for background syncs before closing the database
func (a *app) close() {
	a.accounts.Wait()
	a.db.Close()
}

func (a *app) scheduler() *mailsync.Scheduler {
	return mailsync.NewScheduler(a.syncer, a.db, mailsync.SchedulerOptions{
		Interval:      a.cfg.SyncInterval,
		StartDelay:    a.cfg.SyncStartDelay,
		MaxConcurrent: a.cfg.SyncMaxConcurrent,
	}, a.logger)
}
