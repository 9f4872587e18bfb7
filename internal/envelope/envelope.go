// Package envelope seals claim payloads into self-contained, expiring bearer tokens.
//
// A token is the unpadded base64url encoding of
//
//	version (1 byte) || nonce (12 bytes) || AES-256-GCM ciphertext
//
// with the version byte bound as additional data. The AES key is derived from the
// server secret with HKDF-SHA256, so nothing in the token helps recover it.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/core-coin/donum/internal/models"
)

const (
	tokenVersion byte = 1
	nonceSize         = 12
	minSecretLen      = 16
)

var (
	encoding = base64.RawURLEncoding.Strict()
	hkdfInfo = []byte("donum/claim-token/v1")
)

type Service struct {
	aead cipher.AEAD
	now  func() time.Time
}

// New derives the token key from secret.
func New(secret string) (*Service, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("claim token secret must be at least %d bytes", minSecretLen)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive claim token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Service{aead: aead, now: time.Now}, nil
}

// WithClock replaces the clock used for minting and expiry checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Mint seals claim with an absolute expiry of now+ttl.
func (s *Service) Mint(claim models.Claim, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("claim token ttl must be positive")
	}
	claim.ExpiresAt = s.now().Add(ttl).UnixMilli()

	plaintext, err := json.Marshal(claim)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claim: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+s.aead.Overhead())
	out = append(out, tokenVersion)
	out = append(out, nonce...)
	out = s.aead.Seal(out, nonce, plaintext, []byte{tokenVersion})

	return encoding.EncodeToString(out), nil
}

// Open authenticates and decrypts token. Every malformed or forged token yields
// models.ErrInvalidToken. An authentic token at or past its expiry yields
// models.ErrTokenExpired, which also matches models.ErrInvalidToken.
func (s *Service) Open(token string) (*models.Claim, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return nil, models.ErrInvalidToken
	}
	if len(raw) < 1+nonceSize+s.aead.Overhead() || raw[0] != tokenVersion {
		return nil, models.ErrInvalidToken
	}

	nonce := raw[1 : 1+nonceSize]
	plaintext, err := s.aead.Open(nil, nonce, raw[1+nonceSize:], raw[:1])
	if err != nil {
		return nil, models.ErrInvalidToken
	}

	var claim models.Claim
	if err := json.Unmarshal(plaintext, &claim); err != nil || claim.ExpiresAt == 0 {
		return nil, models.ErrInvalidToken
	}

	if !s.now().Before(time.UnixMilli(claim.ExpiresAt)) {
		return nil, models.ErrTokenExpired
	}
	return &claim, nil
}
