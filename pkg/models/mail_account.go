package models

import "time"

// MailAccount represents a remote IMAP/SMTP mailbox owned by a user
type MailAccount struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int64      `db:"user_id" json:"userId"`
	EmailAddress string     `db:"email_address" json:"emailAddress"`
	DisplayName  string     `db:"display_name" json:"displayName"`
	IMAPHost     string     `db:"imap_host" json:"imapHost"`
	IMAPPort     int        `db:"imap_port" json:"imapPort"`
	SMTPHost     string     `db:"smtp_host" json:"smtpHost"`
	SMTPPort     int        `db:"smtp_port" json:"smtpPort"`
	Username     string     `db:"username" json:"username"`
	Password     string     `db:"password" json:"-"` // Encrypted password blob
	IsActive     bool       `db:"is_active" json:"isActive"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"` // Sync cursor, nil before the first sync
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// LoginName returns the IMAP/SMTP login, falling back to the email address
func (a *MailAccount) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.EmailAddress
}
