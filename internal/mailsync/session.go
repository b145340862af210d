package mailsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/vault"
	"github.com/mixelka/mailsync/pkg/models"
)

// Syncer runs IMAP sync sessions for stored accounts
type Syncer struct {
	db          *database.DB
	vault       *vault.Vault
	opts        Options
	locks       *AccountLocks
	reconciler  *Reconciler
	attachments *AttachmentExtractor
	dial        DialFunc
	now         func() time.Time
	logger      *slog.Logger
}

// NewSyncer creates a syncer that dials accounts over IMAPS
func NewSyncer(db *database.DB, v *vault.Vault, opts Options, logger *slog.Logger) *Syncer {
	opts = opts.withDefaults()
	logger = logger.With("component", "sync")
	return &Syncer{
		db:          db,
		vault:       v,
		opts:        opts,
		locks:       NewAccountLocks(),
		reconciler:  NewReconciler(db, logger),
		attachments: NewAttachmentExtractor(db, opts.UploadsRoot, opts.APIBaseURL, logger),
		dial:        imapDialer(logger),
		now:         time.Now,
		logger:      logger,
	}
}

// SyncAccount runs one session, waiting for any session already running
// for the same account to finish first.
func (s *Syncer) SyncAccount(ctx context.Context, accountID int64) models.SyncResult {
	release, err := s.locks.Acquire(ctx, accountID)
	if err != nil {
		return failureResult(fmt.Errorf("waiting for running sync: %w", err))
	}
	defer release()

	return s.syncLocked(ctx, accountID)
}

// TrySyncAccount runs one session unless the account is already syncing
func (s *Syncer) TrySyncAccount(ctx context.Context, accountID int64) (models.SyncResult, bool) {
	release, _ := s.locks.TryAcquire(accountID)
	if release == nil {
		return models.SyncResult{}, false
	}
	defer release()

	return s.syncLocked(ctx, accountID), true
}

func (s *Syncer) syncLocked(ctx context.Context, accountID int64) models.SyncResult {
	logger := s.logger.With("account_id", accountID)

	account, err := s.db.GetAccountByID(ctx, accountID)
	if err != nil {
		return failureResult(fmt.Errorf("failed to load account: %w", err))
	}
	if !account.IsActive {
		return failureResult(ErrAccountInactive)
	}

	started := time.Now()
	summary, err := s.runSession(ctx, account)
	if err != nil {
		logger.Error("sync failed", "error", err, "processed", summary.Processed, "new", summary.NewEmails)
		return failureResult(err)
	}

	logger.Info("sync completed",
		"new", summary.NewEmails,
		"found", summary.Total,
		"failed", summary.Failed,
		"duration", time.Since(started),
	)

	return models.SyncResult{
		Success:    true,
		NewEmails:  summary.NewEmails,
		TotalFound: summary.Total,
		Processed:  summary.Processed,
		Failed:     summary.Failed,
		Message:    fmt.Sprintf("Sync completed: %d new emails", summary.NewEmails),
	}
}

// runSession syncs every configured folder over one connection and
// advances the cursor to the session start time.
func (s *Syncer) runSession(ctx context.Context, account *models.MailAccount) (Summary, error) {
	password, ok := s.vault.Decrypt(account.Password)
	if !ok {
		return Summary{}, ErrNoCredential
	}

	started := s.now()

	ctx, cancel := context.WithTimeout(ctx, s.opts.SessionTimeout)
	defer cancel()

	mb, err := s.dial(ctx, s.opts.imapConfig(account.IMAPHost, account.IMAPPort, account.LoginName(), password))
	if err != nil {
		return Summary{}, err
	}
	defer mb.Close()

	var (
		total   Summary
		skipped []string
	)
	for _, folder := range s.opts.Folders {
		summary, scanned := s.syncFolder(ctx, mb, account, folder)
		total.add(summary)
		if !scanned {
			skipped = append(skipped, folder)
		}
	}

	// an interrupted session must not move the cursor past unseen mail
	if err := ctx.Err(); err != nil {
		return total, fmt.Errorf("session interrupted: %w", err)
	}

	// neither may a folder that was never searched
	if len(skipped) > 0 {
		s.logger.Warn("cursor kept, folders not scanned",
			"account_id", account.ID,
			"folders", skipped,
		)
		return total, nil
	}

	if err := s.db.UpdateAccountLastSynced(ctx, account.ID, started); err != nil {
		return total, err
	}

	return total, nil
}

// syncFolder never fails: a folder that cannot be opened or searched
// yields a zero summary and scanned=false.
func (s *Syncer) syncFolder(ctx context.Context, mb email.Mailbox, account *models.MailAccount, folder string) (summary Summary, scanned bool) {
	logger := s.logger.With("account_id", account.ID, "folder", folder)

	if err := mb.Select(ctx, folder); err != nil {
		logger.Warn("failed to open folder", "error", err)
		return Summary{}, false
	}

	var since time.Time
	if account.LastSyncedAt != nil {
		since = account.LastSyncedAt.Add(-s.opts.SinceMargin)
	}

	uids, err := mb.SearchUIDs(ctx, since)
	if err != nil {
		logger.Warn("failed to search folder", "error", err)
		return Summary{}, false
	}
	uids = slices.Clone(uids)
	slices.Sort(uids)

	// first sync keeps only the most recent messages
	if since.IsZero() && len(uids) > s.opts.FirstLimit {
		uids = uids[len(uids)-s.opts.FirstLimit:]
	}

	logger.Debug("messages found", "count", len(uids), "since", since)

	local := localFolder(folder)
	summary = Summary{Total: len(uids)}
	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		outcome := s.syncMessage(ctx, mb, account, local, uid)
		if outcome.Failed() {
			logger.Debug("message not stored", "uid", uid, "outcome", string(outcome))
		}
		summary.record(outcome)
	}

	return summary, true
}

func (s *Syncer) syncMessage(ctx context.Context, mb email.Mailbox, account *models.MailAccount, folder models.Folder, uid uint32) (outcome Outcome) {
	logger := s.logger.With("account_id", account.ID, "uid", uid)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing message", "panic", r)
			outcome = OutcomeParseError
		}
	}()

	if uid == 0 {
		return OutcomeUIDInvalid
	}

	header, text, err := mb.FetchParts(ctx, uid)
	if err != nil {
		logger.Warn("failed to fetch message", "error", err)
		return OutcomeFetchError
	}
	if len(bytes.TrimSpace(header)) == 0 && len(bytes.TrimSpace(text)) == 0 {
		return OutcomeEmpty
	}

	h, err := email.ParseHeader(header)
	if err != nil {
		logger.Warn("failed to parse header", "error", err)
		return OutcomeParseError
	}
	parsed, err := email.ParseMessage(email.BuildRFC822(h, text))
	if err != nil {
		logger.Warn("failed to parse message", "error", err)
		return OutcomeParseError
	}

	outcome, stored, err := s.reconciler.Reconcile(ctx, account, folder, uid, parsed)
	if err != nil {
		logger.Warn("failed to store message", "error", err)
		return outcome
	}

	if outcome == OutcomeStored && len(parsed.Attachments) > 0 {
		s.attachments.Extract(ctx, stored, parsed.Attachments)
	}

	return outcome
}

// localFolder maps a remote folder name to a local folder
func localFolder(remote string) models.Folder {
	name := strings.ToLower(remote)
	switch {
	case name == "inbox":
		return models.FolderInbox
	case strings.Contains(name, "sent"):
		return models.FolderSent
	case strings.Contains(name, "trash"), strings.Contains(name, "deleted"):
		return models.FolderTrash
	case strings.Contains(name, "archive"), strings.Contains(name, "all mail"):
		return models.FolderArchive
	default:
		return models.FolderInbox
	}
}

func failureResult(err error) models.SyncResult {
	result := models.SyncResult{
		Success: false,
		Error:   "Failed to sync emails",
		Details: err.Error(),
	}

	var connErr *email.ConnError
	switch {
	case errors.As(err, &connErr):
		result.Error = connErr.Kind.Message()
	case errors.Is(err, ErrNoCredential):
		result.Error = "Stored password cannot be decrypted, re-enter the account password"
	case errors.Is(err, ErrAccountInactive):
		result.Error = "Account is inactive"
	case errors.Is(err, database.ErrNotFound):
		result.Error = "Account not found"
	}

	return result
}
