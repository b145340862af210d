package mailsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/pkg/models"
)

var unsafeFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// AttachmentExtractor writes attachments to disk and points inline
// cid: references at their download URL
type AttachmentExtractor struct {
	db      *database.DB
	dir     string
	apiBase string
	logger  *slog.Logger
}

// NewAttachmentExtractor creates an extractor storing files under uploadsRoot/attachments
func NewAttachmentExtractor(db *database.DB, uploadsRoot, apiBase string, logger *slog.Logger) *AttachmentExtractor {
	return &AttachmentExtractor{
		db:      db,
		dir:     filepath.Join(uploadsRoot, "attachments"),
		apiBase: strings.TrimRight(apiBase, "/"),
		logger:  logger,
	}
}

// Extract stores every attachment of a stored email. Failures are logged
// per attachment and never affect the email row.
func (x *AttachmentExtractor) Extract(ctx context.Context, msg *models.Email, attachments []email.Attachment) []*models.EmailAttachment {
	logger := x.logger.With("email_id", msg.ID)

	var stored []*models.EmailAttachment
	for _, att := range attachments {
		saved, err := x.save(ctx, msg.ID, att)
		if err != nil {
			logger.Warn("failed to store attachment", "filename", att.Filename, "error", err)
			continue
		}
		stored = append(stored, saved)
	}

	html := msg.BodyHTML
	replaced := 0
	for _, att := range stored {
		if !att.IsInline() {
			continue
		}
		var n int
		html, n = rewriteCID(html, *att.ContentID, x.URL(att.ID))
		replaced += n
	}

	if replaced > 0 {
		if err := x.db.UpdateEmailHTML(ctx, msg.ID, html); err != nil {
			logger.Warn("failed to update inline references", "error", err)
		} else {
			msg.BodyHTML = html
		}
	}

	return stored
}

// URL returns the download URL of an attachment
func (x *AttachmentExtractor) URL(attachmentID string) string {
	return x.apiBase + "/mail/attachments/" + attachmentID
}

func (x *AttachmentExtractor) save(ctx context.Context, emailID int64, att email.Attachment) (*models.EmailAttachment, error) {
	data, err := contentBytes(att.Content)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	filename := attachmentName(att, id)
	path := filepath.Join(x.dir, fmt.Sprintf("%d-%s-%s", emailID, id, filename))

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}

	row := &models.EmailAttachment{
		ID:          id,
		EmailID:     emailID,
		Filename:    filename,
		ContentType: att.ContentType,
		Size:        int64(len(data)),
		StoragePath: path,
	}
	if att.ContentID != "" {
		cid := att.ContentID
		row.ContentID = &cid
	}

	if err := x.db.CreateAttachment(ctx, row); err != nil {
		os.Remove(path)
		return nil, err
	}

	return row, nil
}

// attachmentName sanitizes the filename, falling back to the content id
// and then to a generated name
func attachmentName(att email.Attachment, id string) string {
	for _, candidate := range []string{att.Filename, att.ContentID} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return sanitizeFilename(candidate)
		}
	}
	return "attachment-" + id
}

func sanitizeFilename(name string) string {
	return unsafeFilenameRegex.ReplaceAllString(name, "_")
}

// contentBytes normalizes attachment content
func contentBytes(content any) ([]byte, error) {
	switch c := content.(type) {
	case []byte:
		return c, nil
	case string:
		return []byte(c), nil
	case io.Reader:
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, c); err != nil {
			return nil, fmt.Errorf("failed to read attachment content: %w", err)
		}
		return buf.Bytes(), nil
	case nil:
		return nil, fmt.Errorf("attachment has no content")
	default:
		return nil, fmt.Errorf("unsupported attachment content type %T", content)
	}
}

// rewriteCID replaces quoted and bare cid:<contentID> references with a
// double-quoted url and returns the number of replacements
func rewriteCID(html, contentID, url string) (string, int) {
	if html == "" || contentID == "" {
		return html, 0
	}

	// a bare reference must not be the prefix of a longer id
	re := regexp.MustCompile(`(["']?)cid:` + regexp.QuoteMeta(contentID) + `(["']?)([^\w@.$%+\-]|$)`)

	n := len(re.FindAllStringIndex(html, -1))
	if n == 0 {
		return html, 0
	}

	replacement := `"` + strings.ReplaceAll(url, "$", "$$") + `"${3}`
	return re.ReplaceAllString(html, replacement), n
}
