package patientdata

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ViewTokenTTL is how long an issued view token stays valid.
const ViewTokenTTL = 10 * time.Minute

// ErrInvalidToken is returned for unknown and expired tokens alike.
var ErrInvalidToken = errors.New("invalid or expired view token")

type grant struct {
	seed      string
	expiresAt time.Time
}

// TokenStore maps view tokens to patient seeds. A token may be used any
// number of times until it expires.
type TokenStore struct {
	mu     sync.RWMutex
	grants map[string]grant
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenStore returns a store issuing tokens valid for ViewTokenTTL.
func NewTokenStore() *TokenStore {
	return &TokenStore{grants: make(map[string]grant), ttl: ViewTokenTTL, now: time.Now}
}

// WithClock replaces the store's clock. Used by tests.
func (s *TokenStore) WithClock(now func() time.Time) *TokenStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Issue stores a fresh 256-bit token for seed.
func (s *TokenStore) Issue(seed string) (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt := s.now().Add(s.ttl)
	s.grants[token] = grant{seed: seed, expiresAt: expiresAt}
	return token, expiresAt, nil
}

// Resolve returns the seed behind token. Expired entries are deleted.
func (s *TokenStore) Resolve(token string) (string, error) {
	s.mu.RLock()
	g, ok := s.grants[token]
	now := s.now()
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidToken
	}
	if !now.Before(g.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.grants[token]; ok && !now.Before(cur.expiresAt) {
			delete(s.grants, token)
		}
		s.mu.Unlock()
		return "", ErrInvalidToken
	}
	return g.seed, nil
}

// Sweep deletes every expired token and reports how many were removed.
func (s *TokenStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, g := range s.grants {
		if !now.Before(g.expiresAt) {
			delete(s.grants, token)
			n++
		}
	}
	return n
}

// Len returns the number of stored tokens, expired or not.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}
