package email

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// silentSMTPServer accepts connections and never sends a greeting
func silentSMTPServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSMTPTransport_HandshakeBounded(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		cancel  time.Duration
		check   func(t *testing.T, err error)
	}{
		{
			name:    "timeout",
			timeout: 300 * time.Millisecond,
			check: func(t *testing.T, err error) {
				if got := Classify(err); got != KindTimeout {
					t.Errorf("Classify(err) = %q, want %q (err: %v)", got, KindTimeout, err)
				}
			},
		},
		{
			name:    "cancelled",
			timeout: time.Minute,
			cancel:  100 * time.Millisecond,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, context.Canceled) {
					t.Errorf("err = %v, want context.Canceled", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := silentSMTPServer(t)
			cfg := SMTPConfig{
				Host:               host,
				Port:               port,
				Username:           "user",
				Password:           "secret",
				Timeout:            tt.timeout,
				InsecureSkipVerify: true,
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel > 0 {
				time.AfterFunc(tt.cancel, cancel)
			}

			done := make(chan error, 1)
			go func() {
				done <- SMTPTransport{}.Send(ctx, cfg, "a@example.com", []string{"b@example.com"}, []byte("hi"))
			}()

			select {
			case err := <-done:
				if err == nil {
					t.Fatal("Send error = nil, want error")
				}
				tt.check(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("Send did not return while the server stayed silent")
			}
		})
	}
}
