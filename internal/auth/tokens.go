package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	errTokenRequired = errors.New("token required")
	errTokenInvalid  = errors.New("invalid token")
	errTokenExpired  = errors.New("token expired")
)

type session struct {
	studentID string
	expiresAt time.Time
}

// tokenStore keeps issued bearer tokens in memory. Tokens do not survive a restart.
type tokenStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]session
}

func newTokenStore(ttl time.Duration, now func() time.Time) *tokenStore {
	return &tokenStore{ttl: ttl, now: now, sessions: make(map[string]session)}
}

func (t *tokenStore) issue(studentID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, s := range t.sessions {
		if now.After(s.expiresAt) {
			delete(t.sessions, k)
		}
	}
	t.sessions[token] = session{studentID: studentID, expiresAt: now.Add(t.ttl)}
	return token, nil
}

func (t *tokenStore) validate(token string) (string, error) {
	if token == "" {
		return "", errTokenRequired
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[token]
	if !ok {
		return "", errTokenInvalid
	}
	if t.now().After(s.expiresAt) {
		delete(t.sessions, token)
		return "", errTokenExpired
	}
	return s.studentID, nil
}

func (t *tokenStore) revoke(token string) {
	t.mu.Lock()
	delete(t.sessions, token)
	t.mu.Unlock()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
