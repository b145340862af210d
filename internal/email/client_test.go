package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mixelka/mailsync/internal/imaptest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(srv *imaptest.Server) ClientConfig {
	return ClientConfig{
		Host:               srv.Host,
		Port:               srv.Port,
		Username:           imaptest.Username,
		Password:           imaptest.Password,
		ConnectTimeout:     5 * time.Second,
		AuthTimeout:        5 * time.Second,
		CommandTimeout:     5 * time.Second,
		InsecureSkipVerify: true,
	}
}

const sampleMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Date: Mon, 02 Jun 2025 09:00:00 +0000\r\n" +
	"Message-ID: <q2@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached.\r\n"

func TestClient_SelectSearchFetch(t *testing.T) {
	srv := imaptest.New(t)
	srv.Append(t, "INBOX", time.Now(), sampleMessage)

	ctx := context.Background()
	c, err := Dial(ctx, testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if c.State() != StateAuthenticated {
		t.Errorf("State() = %s, want %s", c.State(), StateAuthenticated)
	}

	if err := c.Select(ctx, "INBOX"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	uids, err := c.SearchUIDs(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SearchUIDs: %v", err)
	}
	if len(uids) != 2 {
		t.Fatalf("SearchUIDs returned %d uids, want 2", len(uids))
	}
	if uids[0] >= uids[1] {
		t.Errorf("uids = %v, want ascending", uids)
	}

	header, text, err := c.FetchParts(ctx, uids[1])
	if err != nil {
		t.Fatalf("FetchParts: %v", err)
	}
	h, err := ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got := h.Get("Subject"); got != "Quarterly numbers" {
		t.Errorf("Subject = %q, want %q", got, "Quarterly numbers")
	}
	if !strings.Contains(string(text), "See attached.") {
		t.Errorf("text = %q, want it to contain the body", text)
	}

	msg, err := ParseMessage(BuildRFC822(h, text))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.MessageID != "q2@example.com" {
		t.Errorf("MessageID = %q, want %q", msg.MessageID, "q2@example.com")
	}
}

func TestClient_SearchSince(t *testing.T) {
	srv := imaptest.New(t)
	srv.Append(t, "INBOX", time.Now().AddDate(0, 0, -30), sampleMessage)

	ctx := context.Background()
	c, err := Dial(ctx, testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Select(ctx, "INBOX"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	uids, err := c.SearchUIDs(ctx, time.Now().AddDate(0, 0, -2))
	if err != nil {
		t.Fatalf("SearchUIDs: %v", err)
	}
	if len(uids) != 1 {
		t.Errorf("SearchUIDs(since 2 days) returned %d uids, want 1", len(uids))
	}
}

func TestClient_SelectMissingFolder(t *testing.T) {
	srv := imaptest.New(t)

	ctx := context.Background()
	c, err := Dial(ctx, testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Select(ctx, "Does/Not/Exist"); err == nil {
		t.Error("Select(missing) error = nil, want error")
	}
}

func TestDial_BadCredentials(t *testing.T) {
	srv := imaptest.New(t)
	cfg := testConfig(srv)
	cfg.Password = "wrong"

	_, err := Dial(context.Background(), cfg, testLogger())
	if err == nil {
		t.Fatal("Dial error = nil, want error")
	}

	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnError", err)
	}
	if connErr.Kind != KindAuth {
		t.Errorf("Kind = %q, want %q", connErr.Kind, KindAuth)
	}
}

// stallingServer greets with ID support and never answers a command
func stallingServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln := imaptest.Listen(t)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { conn.Close() })
			go func() {
				_, _ = io.WriteString(conn, "* OK [CAPABILITY IMAP4rev1 ID AUTH=PLAIN] ready\r\n")
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestDial_StalledServerTimesOut(t *testing.T) {
	host, port := stallingServer(t)
	cfg := ClientConfig{
		Host:               host,
		Port:               port,
		Username:           imaptest.Username,
		Password:           imaptest.Password,
		ConnectTimeout:     5 * time.Second,
		AuthTimeout:        300 * time.Millisecond,
		CommandTimeout:     300 * time.Millisecond,
		InsecureSkipVerify: true,
	}

	done := make(chan error, 1)
	go func() {
		_, err := Dial(context.Background(), cfg, testLogger())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Dial error = nil, want timeout")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Dial did not return on a server that never answers")
	}
}

func TestDial_Refused(t *testing.T) {
	srv := imaptest.New(t)
	cfg := testConfig(srv)
	cfg.Port = 1 // nothing listens on tcpmux

	_, err := Dial(context.Background(), cfg, testLogger())
	if got := Classify(err); got != KindRefused {
		t.Errorf("Classify(Dial err) = %q, want %q (err: %v)", got, KindRefused, err)
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := imaptest.New(t)

	ctx := context.Background()
	c, err := Dial(ctx, testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := c.Select(ctx, "INBOX"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Select after Close = %v, want ErrNotConnected", err)
	}
}

func TestProbe(t *testing.T) {
	srv := imaptest.New(t)

	if err := Probe(context.Background(), testConfig(srv), testLogger()); err != nil {
		t.Errorf("Probe: %v", err)
	}

	cfg := testConfig(srv)
	cfg.Password = "nope"
	if err := Probe(context.Background(), cfg, testLogger()); Classify(err) != KindAuth {
		t.Errorf("Probe(bad password) kind = %q, want %q", Classify(err), KindAuth)
	}
}
