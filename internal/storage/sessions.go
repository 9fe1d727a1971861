package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`),
		sess.Token, sess.UserID, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt)); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	var row struct {
		Token     string `db:"token"`
		UserID    int64  `db:"user_id"`
		CreatedAt string `db:"created_at"`
		ExpiresAt string `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, s.q(`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	expires, err := parseTime(row.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: row.Token, UserID: row.UserID, CreatedAt: created, ExpiresAt: expires}, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE token = ?`), token)
	return err
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE expires_at <= ?`), formatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
