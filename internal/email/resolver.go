package email

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Servers holds the IMAP and SMTP endpoints of a provider
type Servers struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

const (
	imapsPort      = 993
	submissionPort = 587
	smtpsPort      = 465
)

func provider(imapHost, smtpHost string, smtpPort int) Servers {
	return Servers{IMAPHost: imapHost, IMAPPort: imapsPort, SMTPHost: smtpHost, SMTPPort: smtpPort}
}

// Common servers for popular email providers
var knownServers = map[string]Servers{
	"gmail.com":      provider("imap.gmail.com", "smtp.gmail.com", smtpsPort),
	"googlemail.com": provider("imap.gmail.com", "smtp.gmail.com", smtpsPort),
	"outlook.com":    provider("outlook.office365.com", "smtp.office365.com", submissionPort),
	"hotmail.com":    provider("outlook.office365.com", "smtp.office365.com", submissionPort),
	"live.com":       provider("outlook.office365.com", "smtp.office365.com", submissionPort),
	"msn.com":        provider("outlook.office365.com", "smtp.office365.com", submissionPort),
	"yahoo.com":      provider("imap.mail.yahoo.com", "smtp.mail.yahoo.com", smtpsPort),
	"yahoo.co.uk":    provider("imap.mail.yahoo.com", "smtp.mail.yahoo.com", smtpsPort),
	"yandex.ru":      provider("imap.yandex.ru", "smtp.yandex.ru", smtpsPort),
	"yandex.com":     provider("imap.yandex.com", "smtp.yandex.com", smtpsPort),
	"mail.ru":        provider("imap.mail.ru", "smtp.mail.ru", smtpsPort),
	"bk.ru":          provider("imap.mail.ru", "smtp.mail.ru", smtpsPort),
	"list.ru":        provider("imap.mail.ru", "smtp.mail.ru", smtpsPort),
	"inbox.ru":       provider("imap.mail.ru", "smtp.mail.ru", smtpsPort),
	"icloud.com":     provider("imap.mail.me.com", "smtp.mail.me.com", submissionPort),
	"me.com":         provider("imap.mail.me.com", "smtp.mail.me.com", submissionPort),
	"mac.com":        provider("imap.mail.me.com", "smtp.mail.me.com", submissionPort),
	"aol.com":        provider("imap.aol.com", "smtp.aol.com", smtpsPort),
	"zoho.com":       provider("imap.zoho.com", "smtp.zoho.com", smtpsPort),
	"fastmail.com":   provider("imap.fastmail.com", "smtp.fastmail.com", smtpsPort),
	"gmx.com":        provider("imap.gmx.com", "mail.gmx.com", submissionPort),
	"gmx.de":         provider("imap.gmx.net", "mail.gmx.net", submissionPort),
	"web.de":         provider("imap.web.de", "smtp.web.de", submissionPort),
	"t-online.de":    provider("secureimap.t-online.de", "securesmtp.t-online.de", smtpsPort),
	"rambler.ru":     provider("imap.rambler.ru", "smtp.rambler.ru", smtpsPort),
	"qq.com":         provider("imap.qq.com", "smtp.qq.com", smtpsPort),
	"163.com":        provider("imap.163.com", "smtp.163.com", smtpsPort),
	"126.com":        provider("imap.126.com", "smtp.126.com", smtpsPort),
}

// Resolver guesses server settings for an address
type Resolver struct {
	// Probe reports whether host:port accepts TCP connections
	Probe func(ctx context.Context, host string, port int) bool
	// LookupMX defaults to net.DefaultResolver
	LookupMX func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewResolver creates a resolver that probes the network
func NewResolver() *Resolver {
	return &Resolver{
		Probe:    dialProbe,
		LookupMX: net.DefaultResolver.LookupMX,
	}
}

// Resolve determines IMAP and SMTP servers for an email address
func (r *Resolver) Resolve(ctx context.Context, email string) (Servers, error) {
	domain := GetDomainFromEmail(email)
	if domain == "" {
		return Servers{}, fmt.Errorf("invalid email format")
	}

	// Check known providers first
	if servers, ok := knownServers[domain]; ok {
		return servers, nil
	}

	servers := Servers{IMAPPort: imapsPort, SMTPPort: submissionPort}
	servers.IMAPHost = r.firstReachable(ctx, imapsPort, "imap."+domain, "mail."+domain, domain)
	servers.SMTPHost = r.firstReachable(ctx, submissionPort, "smtp."+domain, "mail."+domain, domain)

	if servers.IMAPHost == "" || servers.SMTPHost == "" {
		if base := r.mxBase(ctx, domain); base != "" {
			if servers.IMAPHost == "" {
				servers.IMAPHost = r.firstReachable(ctx, imapsPort, "imap."+base, "mail."+base)
			}
			if servers.SMTPHost == "" {
				servers.SMTPHost = r.firstReachable(ctx, submissionPort, "smtp."+base, "mail."+base)
			}
		}
	}

	// Default fallback
	if servers.IMAPHost == "" {
		servers.IMAPHost = "imap." + domain
	}
	if servers.SMTPHost == "" {
		servers.SMTPHost = "smtp." + domain
	}

	return servers, nil
}

func (r *Resolver) firstReachable(ctx context.Context, port int, hosts ...string) string {
	if r.Probe == nil {
		return ""
	}
	for _, host := range hosts {
		if r.Probe(ctx, host, port) {
			return host
		}
	}
	return ""
}

// mxBase derives the provider domain from the primary MX record,
// e.g. mx.example.com -> example.com
func (r *Resolver) mxBase(ctx context.Context, domain string) string {
	if r.LookupMX == nil {
		return ""
	}
	records, err := r.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return ""
	}

	mxHost := strings.TrimSuffix(records[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

func dialProbe(ctx context.Context, host string, port int) bool {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetDomainFromEmail extracts domain from email address
func GetDomainFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
