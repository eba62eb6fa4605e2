// Package vault encrypts manager credentials stored for unattended autolineup runs.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keySalt       = "hockey_manager_salt"
	keyIterations = 100000
)

// ErrDecryption is returned when a ciphertext is malformed or was sealed
// with a different key.
var ErrDecryption = errors.New("credential decryption failed")

// Vault seals and opens secrets with a key derived from a passphrase.
// Safe for concurrent use.
type Vault struct {
	key []byte
}

// New derives the key from passphrase with PBKDF2-SHA256.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("vault passphrase is empty")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), keyIterations, chacha20poly1305.KeySize, sha256.New)
	return &Vault{key: key}, nil
}

// Encrypt returns base64url(nonce || ciphertext). Each call uses a fresh nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (v *Vault) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrDecryption, err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}
