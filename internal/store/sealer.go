package store

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100000
	saltSize      = 16
)

var ErrNoPassphrase = errors.New("a passphrase is required to seal profiles")

// Sealer encrypts profile blobs with a key derived from a passphrase.
// Sealed output is nonce || ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key with PBKDF2-SHA256 over salt.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes", saltSize)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSalt returns fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext. ad binds the blob to its owner and column; the
// same ad must be passed to Open.
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open decrypts a blob produced by Seal. A wrong passphrase, a tampered blob
// or mismatched ad all yield ErrLocked.
func (s *Sealer) Open(sealed, ad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrLocked
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], ad)
	if err != nil {
		return nil, ErrLocked
	}
	return plain, nil
}
