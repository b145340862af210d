package mailsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/vault"
	"github.com/mixelka/mailsync/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), database.Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()

	v, err := vault.New("test-secret-0123456789", "test-salt")
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func seedAccount(t *testing.T, db *database.DB, v *vault.Vault) *models.MailAccount {
	t.Helper()

	password, err := v.Encrypt("app-password")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	account := &models.MailAccount{
		UserID:       1,
		EmailAddress: "owner@example.com",
		DisplayName:  "Owner",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		Username:     "owner@example.com",
		Password:     password,
		IsActive:     true,
	}
	if err := db.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

type fakeMessage struct {
	header   string
	text     string
	date     time.Time
	fetchErr error
}

// fakeMailbox serves messages from memory; folders other than INBOX fail to open
type fakeMailbox struct {
	mu        sync.Mutex
	messages  map[uint32]fakeMessage
	folders   []string
	sinces    []time.Time
	fetched   []uint32
	closed    int
	selectErr error
	searchErr error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{messages: make(map[uint32]fakeMessage), folders: []string{"INBOX"}}
}

func simpleHeader(uid uint32) string {
	return fmt.Sprintf("From: Sender %d <sender%d@example.com>\r\n"+
		"To: owner@example.com\r\n"+
		"Subject: Message %d\r\n"+
		"Message-ID: <msg-%d@example.com>\r\n"+
		"Date: Mon, 02 Jun 2025 09:00:00 +0000\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n\r\n", uid, uid, uid, uid)
}

func (m *fakeMailbox) add(uid uint32, date time.Time) {
	m.put(uid, fakeMessage{header: simpleHeader(uid), text: fmt.Sprintf("body %d", uid), date: date})
}

func (m *fakeMailbox) put(uid uint32, msg fakeMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[uid] = msg
}

func (m *fakeMailbox) Select(_ context.Context, folder string) error {
	if m.selectErr != nil {
		return m.selectErr
	}
	if !slices.Contains(m.folders, folder) {
		return fmt.Errorf("no such mailbox %q", folder)
	}
	return nil
}

// SearchUIDs returns matches in descending order so callers must sort
func (m *fakeMailbox) SearchUIDs(_ context.Context, since time.Time) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sinces = append(m.sinces, since)
	if m.searchErr != nil {
		return nil, m.searchErr
	}

	var uids []uint32
	for uid, msg := range m.messages {
		if since.IsZero() || !msg.date.Before(since) {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	slices.Reverse(uids)
	return uids, nil
}

func (m *fakeMailbox) FetchParts(_ context.Context, uid uint32) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetched = append(m.fetched, uid)

	msg, ok := m.messages[uid]
	if !ok {
		return nil, nil, email.ErrMessageNotFound
	}
	if msg.fetchErr != nil {
		return nil, nil, msg.fetchErr
	}
	return []byte(msg.header), []byte(msg.text), nil
}

func (m *fakeMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func newTestSyncer(t *testing.T, db *database.DB, v *vault.Vault, mb email.Mailbox) *Syncer {
	t.Helper()

	s := NewSyncer(db, v, Options{UploadsRoot: t.TempDir(), APIBaseURL: ""}, testLogger())
	s.dial = func(context.Context, email.ClientConfig) (email.Mailbox, error) {
		return mb, nil
	}
	return s
}

func simpleMessageID(uid uint32) string {
	return fmt.Sprintf("msg-%d@example.com", uid)
}

func simpleSubject(uid uint32) string {
	return fmt.Sprintf("Message %d", uid)
}

func newVaultWithSecret(secret string) (*vault.Vault, error) {
	return vault.New(secret, "test-salt")
}

func formatInt(n int64) string {
	return fmt.Sprintf("%d", n)
}
