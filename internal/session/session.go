// Package session issues and resolves login session tokens.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned for unknown or expired tokens.
var ErrInvalid = errors.New("invalid or expired session")

// DefaultTTL is used when a store is created with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

// Store maps session tokens to user ids.
type Store interface {
	Create(ctx context.Context, userID int64) (string, error)
	Lookup(ctx context.Context, token string) (int64, error)
	Expire(ctx context.Context, token string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func newToken() string {
	return uuid.NewString()
}

type entry struct {
	userID    int64
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions do not survive a restart.
type MemoryStore struct {
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[string]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(ttl, realClock{})
}

// NewMemoryStoreWithClock creates a MemoryStore with a custom clock (for testing).
func NewMemoryStoreWithClock(ttl time.Duration, clock Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{clock: clock, ttl: ttl, sessions: make(map[string]entry)}
}

func (m *MemoryStore) Create(ctx context.Context, userID int64) (string, error) {
	token := newToken()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = entry{userID: userID, expiresAt: m.clock.Now().Add(m.ttl)}
	return token, nil
}

func (m *MemoryStore) Lookup(ctx context.Context, token string) (int64, error) {
	m.mu.RLock()
	e, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrInvalid
	}
	if !m.clock.Now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return 0, ErrInvalid
	}
	return e.userID, nil
}

func (m *MemoryStore) Expire(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
