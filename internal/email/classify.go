package email

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies a connection-level failure for the user
type ErrorKind string

const (
	KindAuth    ErrorKind = "auth"
	KindTimeout ErrorKind = "timeout"
	KindDNS     ErrorKind = "dns"
	KindRefused ErrorKind = "refused"
	KindReset   ErrorKind = "reset"
	KindTLS     ErrorKind = "tls"
	KindUnknown ErrorKind = "unknown"
)

// ErrAuthFailed marks a login rejected by the server
var ErrAuthFailed = errors.New("authentication rejected")

// Message returns a human-readable explanation of the kind
func (k ErrorKind) Message() string {
	switch k {
	case KindAuth:
		return "authentication failed: check the username and app password"
	case KindTimeout:
		return "connection timed out: the server did not respond in time"
	case KindDNS:
		return "server not found: check the host name"
	case KindRefused:
		return "connection refused: check the port and firewall"
	case KindReset:
		return "connection closed by the server, often an authentication policy rejection"
	case KindTLS:
		return "TLS handshake failed: check the port and certificate settings"
	default:
		return "connection failed"
	}
}

// ConnError is a classified IMAP or SMTP connection failure
type ConnError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Message(), e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

func newConnError(op string, err error) *ConnError {
	return &ConnError{Op: op, Kind: Classify(err), Err: err}
}

// Classify maps a raw connection error to an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var connErr *ConnError
	if errors.As(err, &connErr) {
		return connErr.Kind
	}
	if errors.Is(err, ErrAuthFailed) {
		return KindAuth
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return KindReset
	}

	var (
		certErr      *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		recordErr    tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &authorityErr) || errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return KindTLS
	}

	return classifyText(err.Error())
}

// classifyText covers errors that only carry a server message
func classifyText(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "authenticationfailed"),
		strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "invalid credentials"),
		strings.Contains(msg, "login failed"),
		strings.Contains(msg, "username and password not accepted"),
		strings.Contains(msg, "535"):
		return KindAuth
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "no such host"):
		return KindDNS
	case strings.Contains(msg, "connection refused"):
		return KindRefused
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection closed"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return KindReset
	case strings.Contains(msg, "tls"), strings.Contains(msg, "certificate"):
		return KindTLS
	default:
		return KindUnknown
	}
}
