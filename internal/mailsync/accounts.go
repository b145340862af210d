package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/vault"
	"github.com/mixelka/mailsync/pkg/models"
)

const (
	defaultIMAPPort = 993
	defaultSMTPPort = 587
)

// ErrInvalidAccount is returned for incomplete account requests
var ErrInvalidAccount = errors.New("invalid account")

// CreateAccountRequest describes a mailbox to connect
type CreateAccountRequest struct {
	UserID       int64  `json:"userId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	IMAPHost     string `json:"imapHost"`
	IMAPPort     int    `json:"imapPort"`
	SMTPHost     string `json:"smtpHost"`
	SMTPPort     int    `json:"smtpPort"`
	Username     string `json:"username"`
	Password     string `json:"-"`
}

// CreateAccountResult is returned once credentials are verified and stored
type CreateAccountResult struct {
	AuthSuccess bool                `json:"authSuccess"`
	Account     *models.MailAccount `json:"account"`
}

// Accounts manages stored mailboxes
type Accounts struct {
	db     *database.DB
	vault  *vault.Vault
	syncer *Syncer
	opts   Options
	probe  ProbeFunc
	logger *slog.Logger

	background sync.WaitGroup
}

// NewAccounts creates the account service
func NewAccounts(db *database.DB, v *vault.Vault, syncer *Syncer, opts Options, logger *slog.Logger) *Accounts {
	logger = logger.With("component", "accounts")
	return &Accounts{
		db:     db,
		vault:  v,
		syncer: syncer,
		opts:   opts,
		probe:  imapProber(logger),
		logger: logger,
	}
}

func (req *CreateAccountRequest) normalize() error {
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	req.IMAPHost = strings.TrimSpace(req.IMAPHost)
	req.SMTPHost = strings.TrimSpace(req.SMTPHost)

	var missing []string
	if req.EmailAddress == "" {
		missing = append(missing, "emailAddress")
	}
	if req.IMAPHost == "" {
		missing = append(missing, "imapHost")
	}
	if req.SMTPHost == "" {
		missing = append(missing, "smtpHost")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidAccount, strings.Join(missing, ", "))
	}

	if req.IMAPPort == 0 {
		req.IMAPPort = defaultIMAPPort
	}
	if req.SMTPPort == 0 {
		req.SMTPPort = defaultSMTPPort
	}
	if req.Username == "" {
		req.Username = req.EmailAddress
	}
	return nil
}

// Create verifies the credentials against IMAP, stores the account and
// starts its first sync in the background. Nothing is stored when the
// login probe fails; the error is then an *email.ConnError.
func (a *Accounts) Create(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	logger := a.logger.With("email", req.EmailAddress)

	cfg := a.opts.imapConfig(req.IMAPHost, req.IMAPPort, req.Username, req.Password)
	if err := a.probe(ctx, cfg); err != nil {
		logger.Warn("login probe failed", "error", err)
		return nil, err
	}

	encrypted, err := a.vault.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	account := &models.MailAccount{
		UserID:       req.UserID,
		EmailAddress: req.EmailAddress,
		DisplayName:  req.DisplayName,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		SMTPHost:     req.SMTPHost,
		SMTPPort:     req.SMTPPort,
		Username:     req.Username,
		Password:     encrypted,
		IsActive:     true,
	}
	if err := a.db.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	logger.Info("account created", "account_id", account.ID)

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		result := a.syncer.SyncAccount(context.WithoutCancel(ctx), account.ID)
		if !result.Success {
			logger.Warn("initial sync failed", "error", result.Error, "details", result.Details)
		}
	}()

	return &CreateAccountResult{AuthSuccess: true, Account: account}, nil
}

// Wait blocks until background syncs started by Create have finished
func (a *Accounts) Wait() {
	a.background.Wait()
}

// Delete removes an account with its emails and attachment files
func (a *Accounts) Delete(ctx context.Context, id int64) error {
	paths, err := a.db.GetAttachmentPathsByAccountID(ctx, id)
	if err != nil {
		return err
	}

	if err := a.db.DeleteAccount(ctx, id); err != nil {
		return err
	}

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove attachment file", "path", path, "error", err)
		}
	}

	a.logger.Info("account deleted", "account_id", id, "files", len(paths))
	return nil
}

// SetActive enables or disables scheduled sync for an account
func (a *Accounts) SetActive(ctx context.Context, id int64, active bool) error {
	return a.db.SetAccountActive(ctx, id, active)
}

// List returns a user's accounts
func (a *Accounts) List(ctx context.Context, userID int64) ([]*models.MailAccount, error) {
	return a.db.GetAccountsByUserID(ctx, userID)
}
