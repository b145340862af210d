package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/vault"
)

// SendRequest is an outbound message for a stored account
type SendRequest struct {
	AccountID int64    `json:"accountId"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	IsHTML    bool     `json:"isHtml"`
}

// SendResult is returned for an accepted message
type SendResult struct {
	MessageID string `json:"messageId"`
}

// SendError is a classified submission failure
type SendError struct {
	Kind email.ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send email: %s: %v", e.Kind.Message(), e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Sender submits mail through an account's SMTP server
type Sender struct {
	db         *database.DB
	vault      *vault.Vault
	transport  email.Transport
	reconciler *Reconciler
	opts       Options
	logger     *slog.Logger
}

// NewSender creates a sender using the given transport
func NewSender(db *database.DB, v *vault.Vault, transport email.Transport, opts Options, logger *slog.Logger) *Sender {
	logger = logger.With("component", "sender")
	return &Sender{
		db:         db,
		vault:      v,
		transport:  transport,
		reconciler: NewReconciler(db, logger),
		opts:       opts,
		logger:     logger,
	}
}

// Send submits one message. It is not retried; on success a copy is
// stored in the sent folder on a best-effort basis.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if len(req.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	account, err := s.db.GetAccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	password, ok := s.vault.Decrypt(account.Password)
	if !ok {
		return nil, ErrNoCredential
	}

	now := time.Now()
	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), domainOf(account.EmailAddress))

	raw, err := email.ComposeMessage(email.Outgoing{
		From:      email.Address{Name: account.DisplayName, Address: account.EmailAddress},
		To:        req.To,
		Subject:   req.Subject,
		Body:      req.Body,
		IsHTML:    req.IsHTML,
		MessageID: messageID,
		Date:      now,
	})
	if err != nil {
		return nil, err
	}

	cfg := email.SMTPConfig{
		Host:               account.SMTPHost,
		Port:               account.SMTPPort,
		Username:           account.LoginName(),
		Password:           password,
		Timeout:            s.opts.SMTPTimeout,
		InsecureSkipVerify: s.opts.SMTPTLSInsecure,
	}

	logger := s.logger.With("account_id", account.ID, "message_id", messageID)

	if err := s.transport.Send(ctx, cfg, account.EmailAddress, req.To, raw); err != nil {
		logger.Error("send failed", "error", err)
		return nil, &SendError{Kind: email.Classify(err), Err: err}
	}

	if _, err := s.reconciler.StoreSent(ctx, account, messageID, req, now); err != nil {
		logger.Warn("failed to store sent copy", "error", err)
	}

	logger.Info("email sent", "recipients", len(req.To))

	return &SendResult{MessageID: messageID}, nil
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
