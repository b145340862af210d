// Package mailsync pulls remote mailboxes into the local store and sends
// outbound mail on behalf of stored accounts.
package mailsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mixelka/mailsync/internal/config"
	"github.com/mixelka/mailsync/internal/email"
)

var (
	// ErrNoCredential is returned when an account password cannot be decrypted
	ErrNoCredential = errors.New("stored credential cannot be decrypted")
	// ErrAccountInactive is returned for operations on a disabled account
	ErrAccountInactive = errors.New("account is inactive")
)

// Options tunes sync sessions and outbound mail
type Options struct {
	Folders        []string
	FirstLimit     int
	SinceMargin    time.Duration
	SessionTimeout time.Duration

	UploadsRoot string
	APIBaseURL  string

	IMAPConnectTimeout time.Duration
	IMAPAuthTimeout    time.Duration
	IMAPCommandTimeout time.Duration
	IMAPTLSInsecure    bool

	SMTPTimeout     time.Duration
	SMTPTLSInsecure bool
}

// OptionsFromConfig maps environment configuration to Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Folders:            cfg.SyncFolders,
		FirstLimit:         cfg.SyncFirstLimit,
		SinceMargin:        cfg.SyncSinceMargin,
		SessionTimeout:     cfg.SyncSessionTimeout,
		UploadsRoot:        cfg.UploadsRoot,
		APIBaseURL:         cfg.APIBaseURL,
		IMAPConnectTimeout: cfg.IMAPConnectTimeout,
		IMAPAuthTimeout:    cfg.IMAPAuthTimeout,
		IMAPCommandTimeout: cfg.IMAPCommandTimeout,
		IMAPTLSInsecure:    cfg.IMAPTLSInsecure,
		SMTPTimeout:        cfg.SMTPTimeout,
		SMTPTLSInsecure:    cfg.SMTPTLSInsecure,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Folders) == 0 {
		o.Folders = []string{"INBOX"}
	}
	if o.FirstLimit <= 0 {
		o.FirstLimit = 500
	}
	if o.SinceMargin <= 0 {
		o.SinceMargin = 24 * time.Hour
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 15 * time.Minute
	}
	return o
}

func (o Options) imapConfig(host string, port int, username, password string) email.ClientConfig {
	return email.ClientConfig{
		Host:               host,
		Port:               port,
		Username:           username,
		Password:           password,
		ConnectTimeout:     o.IMAPConnectTimeout,
		AuthTimeout:        o.IMAPAuthTimeout,
		CommandTimeout:     o.IMAPCommandTimeout,
		InsecureSkipVerify: o.IMAPTLSInsecure,
	}
}

// DialFunc opens an authenticated IMAP session
type DialFunc func(ctx context.Context, cfg email.ClientConfig) (email.Mailbox, error)

// ProbeFunc verifies credentials without keeping the session
type ProbeFunc func(ctx context.Context, cfg email.ClientConfig) error

func imapDialer(logger *slog.Logger) DialFunc {
	return func(ctx context.Context, cfg email.ClientConfig) (email.Mailbox, error) {
		return email.Dial(ctx, cfg, logger)
	}
}

func imapProber(logger *slog.Logger) ProbeFunc {
	return func(ctx context.Context, cfg email.ClientConfig) error {
		return email.Probe(ctx, cfg, logger)
	}
}

// Outcome of syncing a single UID
type Outcome string

const (
	OutcomeStored     Outcome = "stored"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeEmpty      Outcome = "empty"
	OutcomeParseError Outcome = "parse-error"
	OutcomeUIDInvalid Outcome = "uid-invalid"
	OutcomeFetchError Outcome = "fetch-error"
	OutcomeStoreError Outcome = "store-error"
)

// Failed reports whether the outcome counts as a failure
func (o Outcome) Failed() bool {
	return o != OutcomeStored && o != OutcomeDuplicate
}

// Summary counts per-UID outcomes of a folder or session
type Summary struct {
	NewEmails int
	Processed int
	Failed    int
	Total     int
}

func (s *Summary) record(o Outcome) {
	s.Processed++
	switch {
	case o == OutcomeStored:
		s.NewEmails++
	case o.Failed():
		s.Failed++
	}
}

func (s *Summary) add(other Summary) {
	s.NewEmails += other.NewEmails
	s.Processed += other.Processed
	s.Failed += other.Failed
	s.Total += other.Total
}
