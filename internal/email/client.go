package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap/client"
)

// ErrMessageNotFound is returned when a UID fetch yields no message
var ErrMessageNotFound = errors.New("message not found")

// ErrNotConnected is returned when a closed session is used
var ErrNotConnected = errors.New("not connected")

const logoutGrace = 2 * time.Second

// Address represents an email address
type Address struct {
	Name    string
	Address string
}

// Mailbox is the part of an IMAP session driven by the sync loop
type Mailbox interface {
	Select(ctx context.Context, folder string) error
	// SearchUIDs returns matching UIDs in ascending order; a zero since matches all.
	SearchUIDs(ctx context.Context, since time.Time) ([]uint32, error)
	// FetchParts returns the raw header block and raw text of a single message.
	FetchParts(ctx context.Context, uid uint32) (header, text []byte, err error)
	Close() error
}

// State of an IMAP session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateFolderOpen
	StateSearching
	StateFetching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateFolderOpen:
		return "folder-open"
	case StateSearching:
		return "searching"
	case StateFetching:
		return "fetching"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	ConnectTimeout time.Duration
	AuthTimeout    time.Duration
	CommandTimeout time.Duration

	// InsecureSkipVerify accepts self-signed and mismatched certificates.
	InsecureSkipVerify bool
}

// Address returns host:port
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client IMAP session for a single email account
type Client struct {
	config ClientConfig
	client *client.Client
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	stopWatch func() bool
	closeOnce sync.Once
}

var _ Mailbox = (*Client)(nil)

// Dial connects over implicit TLS, identifies itself and logs in.
// Cancelling ctx after Dial returns terminates the session.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger.With("server", cfg.Address(), "user", cfg.Username),
		state:  StateDisconnected,
	}

	c.setState(StateConnecting)

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 60 * time.Second
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: connectTimeout},
		Config: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		c.setState(StateClosed)
		return nil, newConnError("connect", err)
	}

	// greeting must arrive within the connect window
	_ = conn.SetDeadline(time.Now().Add(connectTimeout))
	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		c.setState(StateClosed)
		return nil, newConnError("greeting", err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = imapClient
	c.stopWatch = context.AfterFunc(ctx, func() {
		c.logger.Debug("context done, terminating session")
		_ = imapClient.Terminate()
	})

	// ID and LOGIN share the auth window
	imapClient.Timeout = cfg.AuthTimeout
	c.identify()

	if err := imapClient.Login(cfg.Username, cfg.Password); err != nil {
		c.Close()
		return nil, loginError("login", err)
	}
	imapClient.Timeout = cfg.CommandTimeout

	c.setState(StateAuthenticated)
	c.logger.Debug("logged in")

	return c, nil
}

// identify sends IMAP ID when the server supports it, some providers require it
func (c *Client) identify() {
	ok, err := c.client.Support("ID")
	if err != nil || !ok {
		return
	}
	idClient := id.NewClient(c.client)
	if _, err := idClient.ID(id.ID{
		id.FieldName:    "mailsync",
		id.FieldVersion: "1.0",
	}); err != nil {
		c.logger.Debug("IMAP ID rejected", "error", err)
	}
}

// loginError classifies a failed LOGIN. A tagged NO carries no network
// cause, so anything unrecognised is treated as rejected credentials.
func loginError(op string, err error) *ConnError {
	kind := Classify(err)
	if kind == KindUnknown {
		kind = KindAuth
		err = fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return &ConnError{Op: op, Kind: kind, Err: err}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("session state", "from", prev.String(), "to", s.String())
	}
}

// State returns the current session state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.State() == StateClosed || c.client == nil {
		return ErrNotConnected
	}
	return nil
}

// Select opens a folder read-only
func (c *Client) Select(ctx context.Context, folder string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}

	mbox, err := c.client.Select(folder, true)
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}

	c.setState(StateFolderOpen)
	c.logger.Debug("folder selected", "folder", folder, "messages", mbox.Messages)

	return nil
}

// SearchUIDs searches the selected folder by internal date
func (c *Client) SearchUIDs(ctx context.Context, since time.Time) ([]uint32, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	c.setState(StateSearching)
	defer c.setState(StateFolderOpen)

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	slices.Sort(uids)
	return uids, nil
}

// FetchParts fetches BODY.PEEK[HEADER] and BODY.PEEK[TEXT] of one message
func (c *Client) FetchParts(ctx context.Context, uid uint32) ([]byte, []byte, error) {
	if err := c.ready(ctx); err != nil {
		return nil, nil, err
	}

	c.setState(StateFetching)
	defer c.setState(StateFolderOpen)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	textSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchUid, headerSection.FetchItem(), textSection.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}

	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("failed to fetch uid %d: %w", uid, err)
	}
	if msg == nil {
		return nil, nil, fmt.Errorf("uid %d: %w", uid, ErrMessageNotFound)
	}

	header, err := readSection(msg, imap.HeaderSpecifier)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of uid %d: %w", uid, err)
	}
	text, err := readSection(msg, imap.TextSpecifier)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read text of uid %d: %w", uid, err)
	}

	return header, text, nil
}

func readSection(msg *imap.Message, spec imap.PartSpecifier) ([]byte, error) {
	for name, literal := range msg.Body {
		if name.Specifier != spec || len(name.Path) != 0 || literal == nil {
			continue
		}
		return io.ReadAll(literal)
	}
	return nil, nil
}

// Close logs out once. Logout failures are ignored and a stuck logout
// falls back to dropping the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.stopWatch != nil {
			c.stopWatch()
		}
		c.setState(StateClosed)

		imapClient := c.client
		if imapClient == nil {
			return
		}

		done := make(chan struct{})
		go func() {
			_ = imapClient.Logout()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(logoutGrace):
			_ = imapClient.Terminate()
		}
	})
	return nil
}

// Probe verifies that the account can log in and open INBOX
func Probe(ctx context.Context, cfg ClientConfig, logger *slog.Logger) error {
	c, err := Dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Select(ctx, "INBOX"); err != nil {
		return newConnError("select", err)
	}
	return nil
}
