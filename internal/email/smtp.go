package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPConfig configuration for a submission server
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration

	InsecureSkipVerify bool
}

// Address returns host:port
func (c SMTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ImplicitTLS reports whether the port speaks TLS from the first byte
func (c SMTPConfig) ImplicitTLS() bool {
	return c.Port == 465
}

// Transport submits a composed message
type Transport interface {
	Send(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error
}

// SMTPTransport submits over SMTP with PLAIN auth.
// Port 465 uses implicit TLS, any other port STARTTLS.
type SMTPTransport struct{}

var _ Transport = SMTPTransport{}

func (SMTPTransport) Send(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	c, err := dialSMTP(ctx, cfg, timeout)
	if err != nil {
		return err
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	c.CommandTimeout = timeout
	c.SubmissionTimeout = timeout

	if err := c.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
		return loginError("smtp auth", err)
	}

	if err := c.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return newConnError("smtp send", err)
	}

	// the message is accepted at this point
	_ = c.Quit()
	return nil
}

// dialSMTP connects and completes the greeting, EHLO and, off port 465,
// STARTTLS. The whole handshake is bounded by timeout and ctx.
func dialSMTP(ctx context.Context, cfg SMTPConfig, timeout time.Duration) (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	netDialer := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if cfg.ImplicitTLS() {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", cfg.Address())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", cfg.Address())
	}
	if err != nil {
		return nil, newConnError("smtp connect", err)
	}

	// go-smtp resets conn deadlines per command, so closing is the only
	// way to interrupt the handshake
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var c *smtp.Client
	if cfg.ImplicitTLS() {
		c = smtp.NewClient(conn)
		c.CommandTimeout = timeout
		err = c.Hello("localhost")
	} else {
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
	}
	if err != nil {
		if c != nil {
			_ = c.Close()
		} else {
			_ = conn.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, newConnError("smtp handshake", err)
	}

	return c, nil
}

// Outgoing is a single-part message to compose
type Outgoing struct {
	From      Address
	To        []string
	Subject   string
	Body      string
	IsHTML    bool
	MessageID string
	Date      time.Time
}

// ComposeMessage renders an outgoing message as RFC 822 bytes
func ComposeMessage(out Outgoing) ([]byte, error) {
	to, err := mail.ParseAddressList(strings.Join(out.To, ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}

	var h mail.Header
	h.SetDate(out.Date)
	h.SetAddressList("From", []*mail.Address{{Name: out.From.Name, Address: out.From.Address}})
	h.SetAddressList("To", to)
	h.SetSubject(out.Subject)
	if out.MessageID != "" {
		h.SetMessageID(out.MessageID)
	}

	contentType := "text/plain"
	if out.IsHTML {
		contentType = "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, out.Body); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}
