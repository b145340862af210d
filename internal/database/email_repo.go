package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailsync/pkg/models"
)

// EmailExists reports whether a message is already stored for the account
func (db *DB) EmailExists(ctx context.Context, messageID string, accountID int64) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM emails WHERE message_id = ? AND account_id = ?`
	if err := db.GetContext(ctx, &n, query, messageID, accountID); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

// CreateEmail stores an email. The (message_id, account_id) unique key makes
// the insert atomic: a concurrent or repeated insert returns ErrAlreadyExists.
func (db *DB) CreateEmail(ctx context.Context, email *models.Email) error {
	query := `
		INSERT OR IGNORE INTO emails (account_id, user_id, message_id, subject, from_addr, from_name, to_addrs, body_text, body_html, folder, is_read, is_starred, is_draft, has_attachments, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if email.ToAddrs == nil {
		email.ToAddrs = models.AddressList{}
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		email.AccountID,
		email.UserID,
		email.MessageID,
		email.Subject,
		email.FromAddr,
		email.FromName,
		email.ToAddrs,
		email.BodyText,
		email.BodyHTML,
		email.Folder,
		email.IsRead,
		email.IsStarred,
		email.IsDraft,
		email.HasAttachments,
		email.ReceivedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	email.ID = id
	email.CreatedAt = now
	return nil
}

// GetEmailByID returns an email by ID
func (db *DB) GetEmailByID(ctx context.Context, id int64) (*models.Email, error) {
	var email models.Email
	query := `SELECT * FROM emails WHERE id = ?`
	err := db.GetContext(ctx, &email, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

// GetEmailByMessageID returns an email by its dedup key
func (db *DB) GetEmailByMessageID(ctx context.Context, messageID string, accountID int64) (*models.Email, error) {
	var email models.Email
	query := `SELECT * FROM emails WHERE message_id = ? AND account_id = ?`
	err := db.GetContext(ctx, &email, query, messageID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

// ListEmails returns an account's emails in a folder, newest first
func (db *DB) ListEmails(ctx context.Context, accountID int64, folder models.Folder) ([]*models.Email, error) {
	var emails []*models.Email
	query := `SELECT * FROM emails WHERE account_id = ? AND folder = ? ORDER BY received_at DESC`
	if err := db.SelectContext(ctx, &emails, query, accountID, folder); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// CountEmails returns the number of emails stored for an account
func (db *DB) CountEmails(ctx context.Context, accountID int64) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM emails WHERE account_id = ?`, accountID); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return n, nil
}

// UpdateEmailHTML replaces the stored HTML body
func (db *DB) UpdateEmailHTML(ctx context.Context, id int64, html string) error {
	query := `UPDATE emails SET body_html = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, html, id)
	if err != nil {
		return fmt.Errorf("failed to update email html: %w", err)
	}
	return nil
}
