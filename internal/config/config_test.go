package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "0123456789abcdef-secret")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %s, want 10m", cfg.SyncInterval)
	}
	if cfg.SyncFirstLimit != 500 {
		t.Errorf("SyncFirstLimit = %d, want 500", cfg.SyncFirstLimit)
	}
	if cfg.SyncSinceMargin != 24*time.Hour {
		t.Errorf("SyncSinceMargin = %s, want 24h", cfg.SyncSinceMargin)
	}
	if cfg.IMAPConnectTimeout != 60*time.Second {
		t.Errorf("IMAPConnectTimeout = %s, want 60s", cfg.IMAPConnectTimeout)
	}
	if cfg.IMAPAuthTimeout != 30*time.Second {
		t.Errorf("IMAPAuthTimeout = %s, want 30s", cfg.IMAPAuthTimeout)
	}
	if !cfg.IMAPTLSInsecure {
		t.Error("IMAPTLSInsecure = false, want true")
	}
	if len(cfg.SyncFolders) != 1 || cfg.SyncFolders[0] != "INBOX" {
		t.Errorf("SyncFolders = %v, want [INBOX]", cfg.SyncFolders)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "0123456789abcdef-secret")
	t.Setenv("SYNC_FOLDERS", "INBOX,Archive")
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("IMAP_TLS_INSECURE", "false")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(cfg.SyncFolders) != 2 || cfg.SyncFolders[1] != "Archive" {
		t.Errorf("SyncFolders = %v, want [INBOX Archive]", cfg.SyncFolders)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %s, want 30s", cfg.SyncInterval)
	}
	if cfg.IMAPTLSInsecure {
		t.Error("IMAPTLSInsecure = true, want false")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"CREDENTIAL_SECRET": ""}},
		{name: "short secret", env: map[string]string{"CREDENTIAL_SECRET": "short"}},
		{name: "zero first limit", env: map[string]string{
			"CREDENTIAL_SECRET": "0123456789abcdef-secret",
			"SYNC_FIRST_LIMIT":  "0",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}
