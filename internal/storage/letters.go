package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type letterRow struct {
	ID             int64          `db:"id"`
	Body           string         `db:"body"`
	Category       string         `db:"category"`
	Specialization string         `db:"specialization"`
	Deadline       string         `db:"deadline"`
	Status         string         `db:"status"`
	AuthorID       int64          `db:"author_id"`
	SpecialistID   sql.NullInt64  `db:"specialist_id"`
	Draft          sql.NullString `db:"draft"`
	FinalResponse  sql.NullString `db:"final_response"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

const letterColumns = `id, body, category, specialization, deadline, status, author_id, specialist_id, draft, final_response, created_at, updated_at`

func (r letterRow) toLetter() (Letter, error) {
	l := Letter{
		ID:             r.ID,
		Text:           r.Body,
		Category:       r.Category,
		Specialization: r.Specialization,
		Status:         Status(r.Status),
		AuthorID:       r.AuthorID,
		Draft:          r.Draft.String,
		FinalResponse:  r.FinalResponse.String,
	}
	if r.SpecialistID.Valid {
		id := r.SpecialistID.Int64
		l.SpecialistID = &id
	}
	var err error
	if l.Deadline, err = parseTime(r.Deadline); err != nil {
		return Letter{}, fmt.Errorf("letter %d: %w", r.ID, err)
	}
	if l.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return Letter{}, fmt.Errorf("letter %d: %w", r.ID, err)
	}
	if l.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return Letter{}, fmt.Errorf("letter %d: %w", r.ID, err)
	}
	return l, nil
}

func toLetters(rows []letterRow) ([]Letter, error) {
	out := make([]Letter, 0, len(rows))
	for _, r := range rows {
		l, err := r.toLetter()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreateLetter(ctx context.Context, l Letter) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO letters (`+letterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.Text, l.Category, l.Specialization, formatTime(l.Deadline), string(l.Status),
		l.AuthorID, nullID(l.SpecialistID), nullText(l.Draft), nullText(l.FinalResponse),
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting letter: %w", err)
	}
	return nil
}

func (s *Store) GetLetter(ctx context.Context, id int64) (Letter, error) {
	var row letterRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+letterColumns+` FROM letters WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Letter{}, ErrNotFound
	}
	if err != nil {
		return Letter{}, err
	}
	return row.toLetter()
}

// UpdateLetter writes every mutable field of l in a single statement.
// The body, author and creation time are never rewritten.
func (s *Store) UpdateLetter(ctx context.Context, l Letter) error {
	return updateLetter(ctx, s.db, l)
}

func updateLetter(ctx context.Context, ext sqlx.ExtContext, l Letter) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(`
		UPDATE letters SET category = ?, specialization = ?, deadline = ?, status = ?,
			specialist_id = ?, draft = ?, final_response = ?, updated_at = ?
		WHERE id = ?`),
		l.Category, l.Specialization, formatTime(l.Deadline), string(l.Status),
		nullID(l.SpecialistID), nullText(l.Draft), nullText(l.FinalResponse), formatTime(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating letter %d: %w", l.ID, err)
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

// ClaimLetter assigns a PENDING letter to specialistID and moves it to IN_WORK.
// It reports false when the letter exists but is no longer PENDING.
func (s *Store) ClaimLetter(ctx context.Context, id, specialistID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE letters SET status = ?, specialist_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(StatusInWork), specialistID, formatTime(at), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("claiming letter %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListLettersByAuthor returns the author's letters, newest first.
func (s *Store) ListLettersByAuthor(ctx context.Context, authorID int64) ([]Letter, error) {
	var rows []letterRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+letterColumns+` FROM letters
		WHERE author_id = ? ORDER BY created_at DESC, id DESC`), authorID); err != nil {
		return nil, err
	}
	return toLetters(rows)
}

// ListLetters returns letters matching f, newest first.
func (s *Store) ListLetters(ctx context.Context, f LetterFilter) ([]Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters`
	var args []any

	switch {
	case len(f.Specializations) > 0:
		query += ` WHERE specialization IN (?)`
		args = append(args, f.Specializations)
	case len(f.Categories) > 0:
		cats := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			cats[i] = strings.ToUpper(strings.TrimSpace(c))
		}
		query += ` WHERE (category IN (?)`
		if f.IncludeUnclassified {
			query += ` OR category = ''`
		}
		query += `)`
		args = append(args, cats)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	if len(args) > 0 {
		var err error
		if query, args, err = sqlx.In(query, args...); err != nil {
			return nil, fmt.Errorf("expanding letter filter: %w", err)
		}
	}

	var rows []letterRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	return toLetters(rows)
}

// CompletedHistory returns up to limit of the author's COMPLETED letters that
// carry a final response, newest first, excluding excludeID.
func (s *Store) CompletedHistory(ctx context.Context, authorID, excludeID int64, limit int) ([]Letter, error) {
	var rows []letterRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+letterColumns+` FROM letters
		WHERE author_id = ? AND id <> ? AND status = ? AND final_response IS NOT NULL AND final_response <> ''
		ORDER BY created_at DESC, id DESC LIMIT ?`),
		authorID, excludeID, string(StatusCompleted), limit); err != nil {
		return nil, err
	}
	return toLetters(rows)
}

// LetterCounts groups all letters by category, status and assigned specialist.
func (s *Store) LetterCounts(ctx context.Context) ([]LetterCount, error) {
	var rows []struct {
		Category     string        `db:"category"`
		Status       string        `db:"status"`
		SpecialistID sql.NullInt64 `db:"specialist_id"`
		Count        int           `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT category, status, specialist_id, COUNT(*) AS n
		FROM letters GROUP BY category, status, specialist_id`); err != nil {
		return nil, err
	}
	out := make([]LetterCount, 0, len(rows))
	for _, r := range rows {
		c := LetterCount{Category: r.Category, Status: Status(r.Status), Count: r.Count}
		if r.SpecialistID.Valid {
			id := r.SpecialistID.Int64
			c.SpecialistID = &id
		}
		out = append(out, c)
	}
	return out, nil
}
