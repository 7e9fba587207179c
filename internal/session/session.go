// Package session issues and validates the tokens that stand in for a
// successful login. Tokens are bearer capability handles: opaque random
// strings, never derived from user data. The session carries no role of
// its own; the current role is re-read from the identity store on every
// validation, so a role change applies immediately to live sessions.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound covers unknown and revoked tokens alike; a
	// revoked session must be indistinguishable from one that never
	// existed.
	ErrSessionNotFound = errors.New("session: session not found")
	// ErrSessionExpired means the absolute or idle deadline passed. The
	// caller may re-authenticate; the token itself was well-formed.
	ErrSessionExpired = errors.New("session: session expired")
)

// RoleResolver reports the current role for a user id. Validation calls
// it on every use so stale sessions never carry a stale role.
type RoleResolver interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

// Limits bound a session's lifetime. MaxAge is absolute from creation;
// IdleTimeout is measured from the last successful validation.
type Limits struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
}

// DefaultLimits expires sessions after 12 hours, or 30 idle minutes.
var DefaultLimits = Limits{MaxAge: 12 * time.Hour, IdleTimeout: 30 * time.Minute}

type session struct {
	userID    string
	createdAt time.Time
	lastSeen  time.Time
}

// Manager is the in-memory session table. Revocation is deletion: a
// revoked token is indistinguishable from one that never existed.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	resolver RoleResolver
	limits   Limits
	now      func() time.Time
}

// Identity is what a valid token resolves to.
type Identity struct {
	UserID string
	Role   string
}

func NewManager(resolver RoleResolver, limits Limits) *Manager {
	if limits.MaxAge <= 0 {
		limits.MaxAge = DefaultLimits.MaxAge
	}
	if limits.IdleTimeout <= 0 {
		limits.IdleTimeout = DefaultLimits.IdleTimeout
	}
	return &Manager{
		sessions: make(map[string]*session),
		resolver: resolver,
		limits:   limits,
		now:      time.Now,
	}
}

// Start creates a session for an already-authenticated user and returns
// its token. The caller must have verified credentials first.
func (m *Manager) Start(userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	token := "sess-" + hex.EncodeToString(raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sessions[token] = &session{userID: userID, createdAt: now, lastSeen: now}
	return token, nil
}

// Validate resolves a token to the user's identity and current role.
// Unknown and revoked tokens report ErrSessionNotFound; a token past its
// absolute or idle deadline reports ErrSessionExpired.
// Expired sessions are removed as a side effect; the idle clock is only
// extended when validation succeeds end to end, so a failed role lookup
// does not keep a session alive.
func (m *Manager) Validate(ctx context.Context, token string) (Identity, error) {
	m.mu.Lock()
	s, ok := m.sessions[token]
	if !ok {
		m.mu.Unlock()
		return Identity{}, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(s.createdAt) > m.limits.MaxAge || now.Sub(s.lastSeen) > m.limits.IdleTimeout {
		delete(m.sessions, token)
		m.mu.Unlock()
		return Identity{}, ErrSessionExpired
	}
	userID := s.userID
	m.mu.Unlock()

	role, err := m.resolver.GetRole(ctx, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("session: resolve role: %w", err)
	}

	m.mu.Lock()
	// The session may have been revoked while the role lookup ran.
	if s2, ok := m.sessions[token]; ok && s2 == s {
		s.lastSeen = m.now()
		m.mu.Unlock()
		return Identity{UserID: userID, Role: role}, nil
	}
	m.mu.Unlock()
	return Identity{}, ErrSessionNotFound
}

// End revokes a single token. Ending an unknown token is a no-op.
func (m *Manager) End(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// RevokeUser revokes every live session belonging to a user and returns
// how many were removed.
func (m *Manager) RevokeUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.userID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

// Active reports the number of live (not yet purged) sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
