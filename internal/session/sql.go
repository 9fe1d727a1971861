package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/letterdesk/internal/storage"
)

// SessionStore defines the storage operations the SQLStore needs.
// Implemented by storage.Store.
type SessionStore interface {
	SaveSession(ctx context.Context, sess storage.Session) error
	GetSession(ctx context.Context, token string) (storage.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SQLStore persists sessions in the database so they survive restarts.
type SQLStore struct {
	db    SessionStore
	clock Clock
	ttl   time.Duration
}

func NewSQLStore(db SessionStore, ttl time.Duration) *SQLStore {
	return NewSQLStoreWithClock(db, ttl, realClock{})
}

// NewSQLStoreWithClock creates a SQLStore with a custom clock (for testing).
func NewSQLStoreWithClock(db SessionStore, ttl time.Duration, clock Clock) *SQLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLStore{db: db, clock: clock, ttl: ttl}
}

func (s *SQLStore) Create(ctx context.Context, userID int64) (string, error) {
	now := s.clock.Now().UTC()
	sess := storage.Session{Token: newToken(), UserID: userID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.db.SaveSession(ctx, sess); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return sess.Token, nil
}

func (s *SQLStore) Lookup(ctx context.Context, token string) (int64, error) {
	sess, err := s.db.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("looking up session: %w", err)
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		if err := s.db.DeleteSession(ctx, token); err != nil {
			slog.WarnContext(ctx, "failed to delete expired session", "error", err)
		}
		return 0, ErrInvalid
	}
	return sess.UserID, nil
}

func (s *SQLStore) Expire(ctx context.Context, token string) error {
	if err := s.db.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("expiring session: %w", err)
	}
	return nil
}

// Sweep removes every expired session and reports how many were deleted.
func (s *SQLStore) Sweep(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredSessions(ctx, s.clock.Now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SQLStore) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				slog.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
