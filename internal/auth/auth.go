// Package auth checks operator credentials and tracks logged-in sessions.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MsgAccepted = "Authentication successful"
	MsgRejected = "Invalid credentials. Default is admin/admin123"
)

// Result is the outcome of a credential check.
type Result struct {
	Accepted bool   `json:"success"`
	Message  string `json:"message"`
	Identity string `json:"username,omitempty"`
}

// Checker compares submitted credentials against one configured pair.
type Checker struct {
	username string
	password string
}

func NewChecker(username, password string) *Checker {
	return &Checker{username: username, password: password}
}

// Validate trims surrounding whitespace and compares both values case-sensitively.
func (c *Checker) Validate(username, password string) Result {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == c.username && password == c.password {
		return Result{Accepted: true, Message: MsgAccepted, Identity: username}
	}
	return Result{Accepted: false, Message: MsgRejected}
}

type session struct {
	identity string
	expires  time.Time
}

// SessionStore keeps opaque tokens in memory for a fixed lifetime.
type SessionStore struct {
	mu       sync.Mutex
	lifetime time.Duration
	now      func() time.Time
	sessions map[string]session
}

func NewSessionStore(lifetime time.Duration) *SessionStore {
	return &SessionStore{
		lifetime: lifetime,
		now:      time.Now,
		sessions: make(map[string]session),
	}
}

func (s *SessionStore) Lifetime() time.Duration { return s.lifetime }

// Create issues a new token for identity.
func (s *SessionStore) Create(identity string) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.sessions[token] = session{identity: identity, expires: s.now().Add(s.lifetime)}
	return token
}

// Lookup returns the identity bound to token if it has not expired.
func (s *SessionStore) Lookup(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, token)
		return "", false
	}
	return sess.identity, true
}

func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *SessionStore) purgeLocked() {
	now := s.now()
	for token, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, token)
		}
	}
}
