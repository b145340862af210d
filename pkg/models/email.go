package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Folder names an email's local folder
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderArchive Folder = "archive"
	FolderTrash   Folder = "trash"
)

// Email represents a stored email message
type Email struct {
	ID             int64       `db:"id" json:"id"`
	AccountID      int64       `db:"account_id" json:"accountId"` // FK to MailAccount
	UserID         int64       `db:"user_id" json:"userId"`
	MessageID      string      `db:"message_id" json:"messageId"` // Message-ID header or "{accountId}-{uid}"
	Subject        string      `db:"subject" json:"subject"`
	FromAddr       string      `db:"from_addr" json:"fromAddr"`
	FromName       string      `db:"from_name" json:"fromName"`
	ToAddrs        AddressList `db:"to_addrs" json:"toAddrs"`
	BodyText       string      `db:"body_text" json:"bodyText"`
	BodyHTML       string      `db:"body_html" json:"bodyHtml"`
	Folder         Folder      `db:"folder" json:"folder"`
	IsRead         bool        `db:"is_read" json:"isRead"`
	IsStarred      bool        `db:"is_starred" json:"isStarred"`
	IsDraft        bool        `db:"is_draft" json:"isDraft"`
	HasAttachments bool        `db:"has_attachments" json:"hasAttachments"`
	ReceivedAt     time.Time   `db:"received_at" json:"receivedAt"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
}

// AddressList is a list of addresses stored as a JSON array
type AddressList []string

// Value implements driver.Valuer
func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		l = AddressList{}
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *AddressList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = AddressList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported address list type %T", src)
	}
	if len(data) == 0 {
		*l = AddressList{}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode address list: %w", err)
	}
	*l = list
	return nil
}
