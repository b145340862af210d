package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailsync/pkg/models"
)

// CreateAttachment stores attachment metadata
func (db *DB) CreateAttachment(ctx context.Context, att *models.EmailAttachment) error {
	query := `
		INSERT INTO email_attachments (id, email_id, filename, content_type, size, storage_path, content_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		att.ID,
		att.EmailID,
		att.Filename,
		att.ContentType,
		att.Size,
		att.StoragePath,
		att.ContentID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	att.CreatedAt = now
	return nil
}

// GetAttachmentByID returns an attachment by ID
func (db *DB) GetAttachmentByID(ctx context.Context, id string) (*models.EmailAttachment, error) {
	var att models.EmailAttachment
	query := `SELECT * FROM email_attachments WHERE id = ?`
	err := db.GetContext(ctx, &att, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}

// GetAttachmentsByEmailID returns the attachments of an email
func (db *DB) GetAttachmentsByEmailID(ctx context.Context, emailID int64) ([]*models.EmailAttachment, error) {
	var atts []*models.EmailAttachment
	query := `SELECT * FROM email_attachments WHERE email_id = ? ORDER BY created_at`
	if err := db.SelectContext(ctx, &atts, query, emailID); err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return atts, nil
}

// GetAttachmentPathsByAccountID returns storage paths of every attachment of an account
func (db *DB) GetAttachmentPathsByAccountID(ctx context.Context, accountID int64) ([]string, error) {
	var paths []string
	query := `
		SELECT a.storage_path FROM email_attachments a
		JOIN emails e ON a.email_id = e.id
		WHERE e.account_id = ?
	`
	if err := db.SelectContext(ctx, &paths, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to get attachment paths: %w", err)
	}
	return paths, nil
}
