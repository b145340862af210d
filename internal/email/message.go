package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Attachment is a non-body MIME part.
// Content is []byte for binary parts and string for decoded text parts.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Content     any
}

// ParsedMessage is a MIME message reduced to what the store keeps
type ParsedMessage struct {
	MessageID   string
	Subject     string
	From        *Address
	FromRaw     string
	To          []string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []Attachment
}

// ParseMessage parses a full RFC 822 message
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &ParsedMessage{}
	parseEnvelope(&mr.Header, msg)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// keep what was read so far
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			if err := readInlinePart(h, part.Body, msg); err != nil {
				return nil, err
			}
		case *mail.AttachmentHeader:
			if isBareBody(&h.Header) {
				if err := readInlinePart(&mail.InlineHeader{Header: h.Header}, part.Body, msg); err != nil {
					return nil, err
				}
				continue
			}
			att, err := readAttachment(&h.Header, part.Body)
			if err != nil {
				return nil, err
			}
			if name, err := h.Filename(); err == nil && name != "" {
				att.Filename = name
			}
			msg.Attachments = append(msg.Attachments, att)
		}
	}

	return msg, nil
}

func parseEnvelope(h *mail.Header, msg *ParsedMessage) {
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	msg.Subject = subject

	if date, err := h.Date(); err == nil {
		msg.Date = date
	}

	msg.FromRaw = h.Get("From")
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = &Address{Name: from[0].Name, Address: from[0].Address}
	}

	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}
}

// isBareBody reports a part with no type, disposition or name,
// which is plain text per RFC 2045 defaults
func isBareBody(h *message.Header) bool {
	return h.Get("Content-Type") == "" && h.Get("Content-Disposition") == ""
}

func readInlinePart(h *mail.InlineHeader, body io.Reader, msg *ParsedMessage) error {
	ct, _, _ := h.ContentType()

	switch {
	case strings.HasPrefix(ct, "text/") && hasFilename(&h.Header):
		// a named text part is a file shown inline, not a body
		att, err := readAttachment(&h.Header, body)
		if err != nil {
			return err
		}
		msg.Attachments = append(msg.Attachments, att)
	case ct == "text/html" && msg.HTML == "":
		b, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read html part: %w", err)
		}
		msg.HTML = string(b)
	case (ct == "text/plain" || ct == "") && msg.Text == "":
		b, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read text part: %w", err)
		}
		msg.Text = string(b)
	case strings.HasPrefix(ct, "text/"):
		// alternative bodies beyond the first are dropped
		_, _ = io.Copy(io.Discard, body)
	default:
		// inline images of multipart/related
		att, err := readAttachment(&h.Header, body)
		if err != nil {
			return err
		}
		att.Inline = true
		msg.Attachments = append(msg.Attachments, att)
	}
	return nil
}

func hasFilename(h *message.Header) bool {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return true
	}
	_, params, _ := h.ContentType()
	return params["name"] != ""
}

func readAttachment(h *message.Header, body io.Reader) (Attachment, error) {
	ct, params, _ := h.ContentType()
	if ct == "" {
		ct = "application/octet-stream"
	}

	att := Attachment{
		ContentType: ct,
		ContentID:   strings.Trim(strings.TrimSpace(h.Get("Content-Id")), "<>"),
		Filename:    params["name"],
	}
	if disp, dispParams, err := h.ContentDisposition(); err == nil {
		if dispParams["filename"] != "" {
			att.Filename = dispParams["filename"]
		}
		att.Inline = disp == "inline"
	}
	if att.Filename != "" {
		if decoded, err := new(mime.WordDecoder).DecodeHeader(att.Filename); err == nil {
			att.Filename = decoded
		}
	}

	b, err := io.ReadAll(body)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment %q: %w", att.Filename, err)
	}
	if strings.HasPrefix(ct, "text/") {
		att.Content = string(b)
	} else {
		att.Content = b
	}
	return att, nil
}
