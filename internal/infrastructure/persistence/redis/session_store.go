package redis

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSessionCorrupted is returned when a stored session cannot be decrypted.
var ErrSessionCorrupted = errors.New("session: stored value cannot be decrypted")

// SessionStore keeps the portal session cookie encrypted at rest.
type SessionStore struct {
	cache *Cache
	key   [32]byte
	ttl   time.Duration
}

// NewSessionStore derives the encryption key from secret.
func NewSessionStore(cache *Cache, secret string, ttl time.Duration) (*SessionStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = TTLSessionData
	}

	s := &SessionStore{cache: cache, ttl: ttl}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("portal session cookie"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return s, nil
}

// Save encrypts and stores the cookie value of school.
func (s *SessionStore) Save(ctx context.Context, school, value string) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	encoded := base64.StdEncoding.EncodeToString(sealed)
	return s.cache.SetBytes(ctx, SessionKey(school), []byte(encoded), s.ttl)
}

// Load returns the stored cookie value of school, "" when nothing is stored.
func (s *SessionStore) Load(ctx context.Context, school string) (string, error) {
	encoded, err := s.cache.GetBytes(ctx, SessionKey(school))
	if errors.Is(err, ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil || len(sealed) < nonceSize {
		return "", ErrSessionCorrupted
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSessionCorrupted
	}
	return string(plain), nil
}

// Forget removes the stored cookie of school.
func (s *SessionStore) Forget(ctx context.Context, school string) error {
	return s.cache.Delete(ctx, SessionKey(school))
}
