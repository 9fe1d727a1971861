package storage

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UpsertFacts writes values for userID, replacing any existing value per key
// and pointing each row at letterID.
func (s *Store) UpsertFacts(ctx context.Context, userID, letterID int64, values map[string]string, at time.Time) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fact upsert: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.Rebind(`INSERT INTO business_facts (user_id, fact_key, fact_value, source_letter_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, fact_key) DO UPDATE SET
			fact_value = excluded.fact_value,
			source_letter_id = excluded.source_letter_id,
			updated_at = excluded.updated_at`)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, stmt, userID, k, values[k], letterID, formatTime(at)); err != nil {
			return fmt.Errorf("upserting fact %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ListFacts returns the user's facts sorted by key.
func (s *Store) ListFacts(ctx context.Context, userID int64) ([]BusinessFact, error) {
	var rows []struct {
		UserID         int64  `db:"user_id"`
		Key            string `db:"fact_key"`
		Value          string `db:"fact_value"`
		SourceLetterID int64  `db:"source_letter_id"`
		UpdatedAt      string `db:"updated_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT user_id, fact_key, fact_value, source_letter_id, updated_at
		FROM business_facts WHERE user_id = ? ORDER BY fact_key ASC`), userID); err != nil {
		return nil, err
	}
	facts := make([]BusinessFact, 0, len(rows))
	for _, r := range rows {
		updated, err := parseTime(r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		facts = append(facts, BusinessFact{
			UserID:         r.UserID,
			Key:            r.Key,
			Value:          r.Value,
			SourceLetterID: r.SourceLetterID,
			UpdatedAt:      updated,
		})
	}
	return facts, nil
}
