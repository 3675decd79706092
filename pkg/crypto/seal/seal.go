// Package seal provides authenticated encryption for backup archives.
//
// It uses XChaCha20-Poly1305 with a random nonce prepended to the
// ciphertext. The extended nonce makes random generation safe without
// nonce bookkeeping across backups.
package seal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Common errors
var (
	ErrInvalidKeySize = errors.New("seal: key must be 32 bytes")
	ErrTooShort       = errors.New("seal: ciphertext too short")
)

// Sealer performs authenticated encryption with a fixed key.
type Sealer struct {
	key []byte
}

// New creates a Sealer with the given 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Sealer{key: k}, nil
}

// NewFromHex creates a Sealer from a hex-encoded 32-byte key, the form
// keys take in configuration.
func NewFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("seal: decode hex key: %w", err)
	}
	return New(key)
}

// Seal encrypts plaintext and binds additionalData into the
// authentication tag. The nonce is prepended to the returned blob.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a blob produced by Seal. The same additionalData must
// be supplied or authentication fails.
func (s *Sealer) Open(blob, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	if len(blob) < aead.NonceSize() {
		return nil, ErrTooShort
	}

	nonce := blob[:aead.NonceSize()]
	ciphertext := blob[aead.NonceSize():]

	return aead.Open(nil, nonce, ciphertext, additionalData)
}

// GenerateKey returns a fresh random key, hex-encoded for config use.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
