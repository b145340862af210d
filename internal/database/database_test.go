package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/mailsync/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"), Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db *DB) *models.MailAccount {
	t.Helper()
	account := &models.MailAccount{
		UserID:       1,
		EmailAddress: "alice@example.com",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		Password:     "blob",
		IsActive:     true,
	}
	if err := db.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seedAccount: %v", err)
	}
	return account
}

func TestCreateAndGetAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)

	if account.ID == 0 {
		t.Fatal("account ID not set")
	}

	got, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID() error: %v", err)
	}
	if got.EmailAddress != "alice@example.com" {
		t.Errorf("EmailAddress = %q, want %q", got.EmailAddress, "alice@example.com")
	}
	if got.LastSyncedAt != nil {
		t.Errorf("LastSyncedAt = %v, want nil", got.LastSyncedAt)
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}

	if err := db.CreateAccount(ctx, &models.MailAccount{
		UserID: 1, EmailAddress: "alice@example.com", IMAPHost: "h", SMTPHost: "h", Password: "p",
	}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetAccountByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetAccountByID(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAccountLastSynced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)

	syncedAt := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	if err := db.UpdateAccountLastSynced(ctx, account.ID, syncedAt); err != nil {
		t.Fatalf("UpdateAccountLastSynced() error: %v", err)
	}

	got, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID() error: %v", err)
	}
	if got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(syncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", got.LastSyncedAt, syncedAt)
	}
}

func TestGetAllActiveAccounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	active := seedAccount(t, db)

	inactive := &models.MailAccount{
		UserID: 2, EmailAddress: "bob@example.com", IMAPHost: "h", SMTPHost: "h", Password: "p", IsActive: true,
	}
	if err := db.CreateAccount(ctx, inactive); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	if err := db.SetAccountActive(ctx, inactive.ID, false); err != nil {
		t.Fatalf("SetAccountActive() error: %v", err)
	}

	accounts, err := db.GetAllActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("GetAllActiveAccounts() error: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != active.ID {
		t.Errorf("active accounts = %v, want only %d", accounts, active.ID)
	}
}

func newEmail(accountID int64, messageID string) *models.Email {
	return &models.Email{
		AccountID:  accountID,
		UserID:     1,
		MessageID:  messageID,
		Subject:    "Hello",
		FromAddr:   "carol@example.com",
		FromName:   "Carol",
		ToAddrs:    models.AddressList{"alice@example.com", "dave@example.com"},
		BodyText:   "hi",
		Folder:     models.FolderInbox,
		ReceivedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCreateEmail_Dedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)

	email := newEmail(account.ID, "<m1@example.com>")
	if err := db.CreateEmail(ctx, email); err != nil {
		t.Fatalf("CreateEmail() error: %v", err)
	}
	if email.ID == 0 {
		t.Fatal("email ID not set")
	}

	if err := db.CreateEmail(ctx, newEmail(account.ID, "<m1@example.com>")); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second CreateEmail() error = %v, want ErrAlreadyExists", err)
	}

	exists, err := db.EmailExists(ctx, "<m1@example.com>", account.ID)
	if err != nil || !exists {
		t.Errorf("EmailExists() = %v, %v; want true, nil", exists, err)
	}

	got, err := db.GetEmailByID(ctx, email.ID)
	if err != nil {
		t.Fatalf("GetEmailByID() error: %v", err)
	}
	if len(got.ToAddrs) != 2 || got.ToAddrs[1] != "dave@example.com" {
		t.Errorf("ToAddrs = %v, want [alice@example.com dave@example.com]", got.ToAddrs)
	}
	if got.Folder != models.FolderInbox {
		t.Errorf("Folder = %q, want %q", got.Folder, models.FolderInbox)
	}
}

func TestCreateEmail_ConcurrentDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateEmail(ctx, newEmail(account.ID, "<race@example.com>"))
			if err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			} else if !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("CreateEmail() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	n, err := db.CountEmails(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountEmails() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountEmails() = %d, want 1", n)
	}
}

func TestCreateEmail_SameMessageIDOtherAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := seedAccount(t, db)
	b := &models.MailAccount{UserID: 1, EmailAddress: "other@example.com", IMAPHost: "h", SMTPHost: "h", Password: "p"}
	if err := db.CreateAccount(ctx, b); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}

	if err := db.CreateEmail(ctx, newEmail(a.ID, "<shared@example.com>")); err != nil {
		t.Fatalf("CreateEmail(a) error: %v", err)
	}
	if err := db.CreateEmail(ctx, newEmail(b.ID, "<shared@example.com>")); err != nil {
		t.Errorf("CreateEmail(b) error = %v, want nil", err)
	}
}

func TestDeleteAccount_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)

	email := newEmail(account.ID, "<m1@example.com>")
	if err := db.CreateEmail(ctx, email); err != nil {
		t.Fatalf("CreateEmail() error: %v", err)
	}
	cid := "logo"
	att := &models.EmailAttachment{
		ID: "att-1", EmailID: email.ID, Filename: "logo.png", ContentType: "image/png",
		Size: 3, StoragePath: "/tmp/x", ContentID: &cid,
	}
	if err := db.CreateAttachment(ctx, att); err != nil {
		t.Fatalf("CreateAttachment() error: %v", err)
	}

	paths, err := db.GetAttachmentPathsByAccountID(ctx, account.ID)
	if err != nil || len(paths) != 1 {
		t.Fatalf("GetAttachmentPathsByAccountID() = %v, %v", paths, err)
	}

	if err := db.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if _, err := db.GetEmailByID(ctx, email.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("email after delete: error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetAttachmentByID(ctx, "att-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("attachment after delete: error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteAccount(ctx, account.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteAccount() error = %v, want ErrNotFound", err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	email := newEmail(account.ID, "<m1@example.com>")
	if err := db.CreateEmail(ctx, email); err != nil {
		t.Fatalf("CreateEmail() error: %v", err)
	}

	att := &models.EmailAttachment{
		ID: "att-2", EmailID: email.ID, Filename: "report.pdf", ContentType: "application/pdf",
		Size: 1024, StoragePath: "/data/attachments/1-att-2-report.pdf",
	}
	if err := db.CreateAttachment(ctx, att); err != nil {
		t.Fatalf("CreateAttachment() error: %v", err)
	}

	got, err := db.GetAttachmentsByEmailID(ctx, email.ID)
	if err != nil {
		t.Fatalf("GetAttachmentsByEmailID() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d attachments, want 1", len(got))
	}
	if got[0].IsInline() {
		t.Error("IsInline() = true for attachment without content id")
	}
	if got[0].Size != 1024 {
		t.Errorf("Size = %d, want 1024", got[0].Size)
	}
}
