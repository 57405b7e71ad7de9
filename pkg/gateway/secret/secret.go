// Package secret encrypts storage credentials at rest.
//
// Credentials are sealed with AES-256-GCM under a key derived from the
// ENCRYPTION_SECRET environment variable. Decryption happens once per
// process lifetime when an S3 client is built; plaintext never touches disk.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

// EnvEncryptionSecret names the environment variable holding the secret.
const EnvEncryptionSecret = "ENCRYPTION_SECRET"

// ErrNoSecret is returned when the encryption secret is not configured.
var ErrNoSecret = errors.New("encryption secret is not set")

// ErrMalformedCiphertext is returned when stored ciphertext cannot be parsed.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor seals and opens credential strings.
type Encryptor struct {
	aead cipher.AEAD
}

// New derives an AES-256-GCM encryptor from the given secret via SHA-256.
func New(s string) (*Encryptor, error) {
	if s == "" {
		return nil, ErrNoSecret
	}

	key := sha256.Sum256([]byte(s))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// NewFromEnv builds an encryptor from ENCRYPTION_SECRET.
func NewFromEnv() (*Encryptor, error) {
	return New(os.Getenv(EnvEncryptionSecret))
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext) produced by Encrypt.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := e.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}

	return string(plaintext), nil
}
