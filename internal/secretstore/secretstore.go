// Package secretstore provides authenticated encryption for tenant API keys
// and personal access tokens. No ecosystem AEAD library is grounded anywhere
// in the reference corpus (see DESIGN.md), so this package is built directly
// on crypto/aes and crypto/cipher's GCM construction.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Kind identifies an error raised by the store, matching the error-kind
// surface values the gateway reports rather than typed exceptions.
type Kind string

const KindCryptoError Kind = "CryptoError"

// Error wraps a Secret Store failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func cryptoErr(err error) error { return &Error{Kind: KindCryptoError, Err: err} }

// Store encrypts and decrypts plaintext secrets with AES-256-GCM. Ciphertext
// layout is nonce‖authTag‖payload as a single opaque byte slice — GCM's Seal
// appends the tag to the payload, and the nonce is prepended so Decrypt is
// self-contained given only the stored ciphertext.
type Store struct {
	key [32]byte
}

// New derives a 32-byte AEAD key from operatorKey by SHA-256 hashing it. If
// operatorKey is empty, the key is derived from devFallbackSeed instead — a
// deterministic, documented-weak key suitable only for local development,
// never for a deployment holding real tenant credentials.
func New(operatorKey, devFallbackSeed string) (*Store, error) {
	material := operatorKey
	if material == "" {
		if devFallbackSeed == "" {
			return nil, cryptoErr(errors.New("no operator key and no dev fallback seed configured"))
		}
		material = "dev-fallback:" + devFallbackSeed
	}
	return &Store{key: sha256.Sum256([]byte(material))}, nil
}

// Encrypt authenticates and encrypts plaintext, returning nonce‖ciphertext‖tag.
func (s *Store) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, cryptoErr(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cryptoErr(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, cryptoErr(err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Decrypt authenticates and decrypts ciphertext produced by Encrypt. On
// authentication-tag mismatch (including any tampering with a single byte)
// it returns KindCryptoError and never a partially decoded plaintext.
func (s *Store) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, cryptoErr(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cryptoErr(err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, cryptoErr(errors.New("ciphertext shorter than nonce"))
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, cryptoErr(fmt.Errorf("authentication failed: %w", err))
	}
	return plaintext, nil
}

// EncryptString and DecryptString are convenience wrappers for the common
// case of encrypting a single API key or PAT string.
func (s *Store) EncryptString(plaintext string) ([]byte, error) {
	return s.Encrypt([]byte(plaintext))
}

func (s *Store) DecryptString(ciphertext []byte) (string, error) {
	pt, err := s.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
