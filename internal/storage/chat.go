package storage

import (
	"context"
	"fmt"
)

type chatRow struct {
	ID        int64  `db:"id"`
	LetterID  int64  `db:"letter_id"`
	Role      string `db:"role"`
	Body      string `db:"body"`
	CreatedAt string `db:"created_at"`
}

// ListChatMessages returns a letter's chat log in append order.
func (s *Store) ListChatMessages(ctx context.Context, letterID int64) ([]ChatMessage, error) {
	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT id, letter_id, role, body, created_at
		FROM chat_messages WHERE letter_id = ? ORDER BY created_at ASC, id ASC`), letterID); err != nil {
		return nil, err
	}
	msgs := make([]ChatMessage, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, ChatMessage{
			ID:        r.ID,
			LetterID:  r.LetterID,
			Role:      ChatRole(r.Role),
			Text:      r.Body,
			CreatedAt: created,
		})
	}
	return msgs, nil
}

// SaveChatEdit appends msgs to the letter's chat log and writes l in one
// transaction. Either every row lands or none does.
func (s *Store) SaveChatEdit(ctx context.Context, l Letter, msgs ...ChatMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chat edit: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if m.LetterID != l.ID {
			return fmt.Errorf("chat message %d belongs to letter %d, not %d", m.ID, m.LetterID, l.ID)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO chat_messages (id, letter_id, role, body, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			m.ID, m.LetterID, string(m.Role), m.Text, formatTime(m.CreatedAt)); err != nil {
			return fmt.Errorf("inserting chat message: %w", err)
		}
	}
	if err := updateLetter(ctx, tx, l); err != nil {
		return err
	}
	return tx.Commit()
}
