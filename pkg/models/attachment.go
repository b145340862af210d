package models

import "time"

// EmailAttachment represents a file extracted from an email.
// ContentID is set only for inline images referenced from the HTML body.
type EmailAttachment struct {
	ID          string    `db:"id" json:"id"`
	EmailID     int64     `db:"email_id" json:"emailId"`
	Filename    string    `db:"filename" json:"filename"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	StoragePath string    `db:"storage_path" json:"-"`
	ContentID   *string   `db:"content_id" json:"contentId,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// IsInline reports whether the attachment is referenced by cid: from the HTML body
func (a *EmailAttachment) IsInline() bool {
	return a.ContentID != nil && *a.ContentID != ""
}
