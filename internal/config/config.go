package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"./data/mailsync.db"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"` // One per concurrently syncing account

	// Storage
	UploadsRoot string `env:"UPLOADS_ROOT" envDefault:"./data/uploads"`
	APIBaseURL  string `env:"API_BASE_URL"` // Prefix for inline attachment URLs, e.g. https://mail.example.com/api

	// Security
	CredentialSecret    string `env:"CREDENTIAL_SECRET,required"`
	CredentialSalt      string `env:"CREDENTIAL_SALT" envDefault:"mailsync-credential-vault"`
	CredentialLegacyKey bool   `env:"CREDENTIAL_LEGACY_KEY" envDefault:"false"` // Also open blobs sealed with SHA-256(secret)

	// IMAP
	IMAPConnectTimeout time.Duration `env:"IMAP_CONNECT_TIMEOUT" envDefault:"60s"`
	IMAPAuthTimeout    time.Duration `env:"IMAP_AUTH_TIMEOUT" envDefault:"30s"`
	IMAPCommandTimeout time.Duration `env:"IMAP_COMMAND_TIMEOUT" envDefault:"2m"`
	IMAPTLSInsecure    bool          `env:"IMAP_TLS_INSECURE" envDefault:"true"` // Accept self-signed certificates

	// SMTP
	SMTPTimeout     time.Duration `env:"SMTP_TIMEOUT" envDefault:"60s"`
	SMTPTLSInsecure bool          `env:"SMTP_TLS_INSECURE" envDefault:"true"`

	// Sync
	SyncInterval       time.Duration `env:"SYNC_INTERVAL" envDefault:"10m"`
	SyncStartDelay     time.Duration `env:"SYNC_START_DELAY" envDefault:"10s"`
	SyncSessionTimeout time.Duration `env:"SYNC_SESSION_TIMEOUT" envDefault:"15m"`
	SyncFirstLimit     int           `env:"SYNC_FIRST_LIMIT" envDefault:"500"`
	SyncSinceMargin    time.Duration `env:"SYNC_SINCE_MARGIN" envDefault:"24h"`
	SyncFolders        []string      `env:"SYNC_FOLDERS" envDefault:"INBOX" envSeparator:","`
	SyncMaxConcurrent  int           `env:"SYNC_MAX_CONCURRENT" envDefault:"0"` // 0 means no limit

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return Parse()
}

// Parse parses the current environment without touching .env files
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	if len(c.CredentialSecret) < 16 {
		return fmt.Errorf("CREDENTIAL_SECRET must be at least 16 bytes, got %d", len(c.CredentialSecret))
	}
	if c.SyncFirstLimit <= 0 {
		return fmt.Errorf("SYNC_FIRST_LIMIT must be positive, got %d", c.SyncFirstLimit)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if len(c.SyncFolders) == 0 {
		return fmt.Errorf("SYNC_FOLDERS must name at least one folder")
	}
	return nil
}
