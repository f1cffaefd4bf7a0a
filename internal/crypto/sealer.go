package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrSealedTooShort is returned by Open when the input cannot hold a nonce.
var ErrSealedTooShort = errors.New("sealed token too short")

// TokenSealer seals provider access tokens with AES-256-GCM.
// Sealed output is laid out as [nonce][ciphertext+tag].
type TokenSealer struct {
	aead cipher.AEAD
}

// NewTokenSealer builds a sealer from a base64-encoded 32-byte key.
func NewTokenSealer(base64Key string) (*TokenSealer, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenSealer{aead: aead}, nil
}

// Seal encrypts a token with a fresh random nonce.
func (s *TokenSealer) Seal(token string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(token), nil), nil
}

// Open reverses Seal. It fails if the data was tampered with or sealed under another key.
func (s *TokenSealer) Open(sealed []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrSealedTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed token: %w", err)
	}

	return string(plaintext), nil
}
