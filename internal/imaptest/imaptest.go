// Package imaptest runs an in-memory IMAPS server for tests.
package imaptest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
)

// Credentials accepted by the memory backend
const (
	Username = "username"
	Password = "password"
)

// Server is a running IMAPS server
type Server struct {
	Host    string
	Port    int
	Backend *memory.Backend
}

// New starts a server on a loopback port and stops it on cleanup.
// INBOX starts with the single message seeded by the memory backend.
func New(t testing.TB) *Server {
	t.Helper()

	ln := Listen(t)

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return &Server{Host: addr.IP.String(), Port: addr.Port, Backend: be}
}

// Listen opens a TLS listener with a self-signed certificate on a
// loopback port. It is closed on cleanup.
func Listen(t testing.TB) net.Listener {
	t.Helper()

	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

// Address returns host:port
func (s *Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Append stores a raw message in a mailbox of the test user
func (s *Server) Append(t testing.TB, mailbox string, date time.Time, raw string) {
	t.Helper()

	user, err := s.Backend.Login(nil, Username, Password)
	if err != nil {
		t.Fatalf("backend login: %v", err)
	}
	mbox, err := user.GetMailbox(mailbox)
	if err != nil {
		t.Fatalf("get mailbox %s: %v", mailbox, err)
	}
	if err := mbox.CreateMessage(nil, date, bytes.NewBufferString(raw)); err != nil {
		t.Fatalf("append to %s: %v", mailbox, err)
	}
}

func selfSignedCert(t testing.TB) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
