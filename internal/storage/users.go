package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type userRow struct {
	ID              int64  `db:"id"`
	Email           string `db:"email"`
	Name            string `db:"name"`
	Role            string `db:"role"`
	PasswordHash    string `db:"password_hash"`
	Specializations string `db:"specializations"`
	Classifications string `db:"classifications"`
	CreatedAt       string `db:"created_at"`
}

const userColumns = `id, email, name, role, password_hash, specializations, classifications, created_at`

func (r userRow) toUser() (User, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:              r.ID,
		Email:           r.Email,
		Name:            r.Name,
		Role:            Role(r.Role),
		PasswordHash:    r.PasswordHash,
		Specializations: splitSet(r.Specializations),
		Classifications: splitSet(r.Classifications),
		CreatedAt:       created,
	}, nil
}

// CreateUser inserts a new user. Returns ErrDuplicate if the email is taken.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, string(u.Role), u.PasswordHash,
		joinSet(u.Specializations), joinSet(u.Classifications), formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail looks up a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return row.toUser()
}

// ListSpecialists returns every specialist in registration order (ascending id).
func (s *Store) ListSpecialists(ctx context.Context) ([]User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY id ASC`),
		string(RoleSpecialist)); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// UpdateSpecializations replaces a user's specialization and classification sets.
func (s *Store) UpdateSpecializations(ctx context.Context, id int64, specializations, classifications []string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET specializations = ?, classifications = ? WHERE id = ?`),
		joinSet(specializations), joinSet(classifications), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
