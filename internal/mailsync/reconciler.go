package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mixelka/mailsync/internal/database"
	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/parser"
	"github.com/mixelka/mailsync/pkg/models"
)

// "Name <addr>" in a raw From header the address parser rejected
var fromRegex = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<([^>]+)>`)

const unknownSender = "unknown"

// Reconciler turns parsed messages into deduplicated email rows
type Reconciler struct {
	db     *database.DB
	html   *parser.HTMLParser
	logger *slog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(db *database.DB, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		db:     db,
		html:   parser.NewHTMLParser(),
		logger: logger,
	}
}

// Reconcile stores a parsed message unless the account already has it.
// The returned email is set only for OutcomeStored.
func (r *Reconciler) Reconcile(ctx context.Context, account *models.MailAccount, folder models.Folder, uid uint32, msg *email.ParsedMessage) (Outcome, *models.Email, error) {
	messageID := msg.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("%d-%d", account.ID, uid)
	}

	exists, err := r.db.EmailExists(ctx, messageID, account.ID)
	if err != nil {
		return OutcomeStoreError, nil, err
	}
	if exists {
		return OutcomeDuplicate, nil, nil
	}

	fromAddr, fromName := sender(msg)
	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	row := &models.Email{
		AccountID:      account.ID,
		UserID:         account.UserID,
		MessageID:      messageID,
		Subject:        msg.Subject,
		FromAddr:       fromAddr,
		FromName:       fromName,
		ToAddrs:        models.AddressList(msg.To),
		BodyText:       r.plainText(msg.Text, msg.HTML),
		BodyHTML:       msg.HTML,
		Folder:         folder,
		HasAttachments: len(msg.Attachments) > 0,
		ReceivedAt:     receivedAt,
	}

	if err := r.db.CreateEmail(ctx, row); err != nil {
		// another session stored it between the check and the insert
		if errors.Is(err, database.ErrAlreadyExists) {
			return OutcomeDuplicate, nil, nil
		}
		return OutcomeStoreError, nil, err
	}

	return OutcomeStored, row, nil
}

// StoreSent mirrors a sent message into the sent folder
func (r *Reconciler) StoreSent(ctx context.Context, account *models.MailAccount, messageID string, req SendRequest, sentAt time.Time) (*models.Email, error) {
	row := &models.Email{
		AccountID:  account.ID,
		UserID:     account.UserID,
		MessageID:  messageID,
		Subject:    req.Subject,
		FromAddr:   account.EmailAddress,
		FromName:   account.DisplayName,
		ToAddrs:    models.AddressList(req.To),
		Folder:     models.FolderSent,
		IsRead:     true,
		ReceivedAt: sentAt,
	}
	if req.IsHTML {
		row.BodyHTML = req.Body
		row.BodyText = r.plainText("", req.Body)
	} else {
		row.BodyText = req.Body
	}

	if err := r.db.CreateEmail(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Reconciler) plainText(text, html string) string {
	if strings.TrimSpace(text) != "" || html == "" {
		return text
	}
	derived, err := r.html.Parse(html)
	if err != nil {
		r.logger.Debug("failed to derive text from html", "error", err)
		return ""
	}
	return derived
}

// sender picks the From address: structured, then raw "Name <addr>", then unknown
func sender(msg *email.ParsedMessage) (addr, name string) {
	if msg.From != nil && msg.From.Address != "" {
		return msg.From.Address, msg.From.Name
	}
	if m := fromRegex.FindStringSubmatch(msg.FromRaw); m != nil {
		return strings.TrimSpace(m[2]), strings.TrimSpace(m[1])
	}
	return unknownSender, ""
}
