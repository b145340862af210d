// Package vault seals mailbox passwords for storage in a single text column.
//
// Blobs have the form hex(nonce):hex(tag):hex(ciphertext) and are sealed with
// AES-256-GCM under a key derived from the configured secret with Argon2id.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrEmptySecret is returned when the vault is created without a secret
var ErrEmptySecret = errors.New("vault secret is empty")

// Vault encrypts and decrypts stored credentials
type Vault struct {
	aead   cipher.AEAD
	legacy cipher.AEAD // decrypt-only, nil unless WithLegacyKey
}

// Option configures a Vault
type Option func(*options)

type options struct {
	legacy bool
}

// WithLegacyKey lets Decrypt also open blobs sealed with the old
// SHA-256(secret) key. Encrypt never uses it.
func WithLegacyKey() Option {
	return func(o *options) { o.legacy = true }
}

// New derives the vault key from secret and salt
func New(secret, salt string, opts ...Option) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	key := argon2.IDKey([]byte(secret), []byte(salt), argonTime, argonMemory, argonThreads, keySize)
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	v := &Vault{aead: aead}
	if o.legacy {
		legacyKey := sha256.Sum256([]byte(secret))
		v.legacy, err = newGCM(legacyKey[:])
		if err != nil {
			return nil, err
		}
	}

	return v, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with a fresh random nonce
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens a blob produced by Encrypt. It returns false for malformed
// blobs, failed authentication or a wrong key; callers treat that as
// "no usable credential".
func (v *Vault) Decrypt(blob string) (string, bool) {
	nonce, tag, ciphertext, ok := splitBlob(blob)
	if !ok {
		return "", false
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	if plaintext, err := v.aead.Open(nil, nonce, sealed, nil); err == nil {
		return string(plaintext), true
	}
	if v.legacy != nil {
		if plaintext, err := v.legacy.Open(nil, nonce, sealed, nil); err == nil {
			return string(plaintext), true
		}
	}
	return "", false
}

func splitBlob(blob string) (nonce, tag, ciphertext []byte, ok bool) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, nil, nil, false
	}

	var err error
	if nonce, err = hex.DecodeString(parts[0]); err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, false
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, false
	}
	if ciphertext, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, false
	}
	return nonce, tag, ciphertext, true
}
