package letters

import (
	"errors"
	"fmt"

	"github.com/kalambet/letterdesk/internal/storage"
)

var (
	// ErrNotFound is returned when the letter does not exist.
	ErrNotFound = storage.ErrNotFound
	// ErrForbidden is returned when the caller does not own the letter.
	ErrForbidden = errors.New("forbidden")
	// ErrEmptyText is returned for an empty letter, draft or chat message.
	ErrEmptyText = errors.New("text must not be empty")
)

// StateConflictError reports an action that the letter's current status does
// not allow.
type StateConflictError struct {
	Action  string
	Current storage.Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s letter in status %s", e.Action, e.Current)
}

func conflict(action string, current storage.Status) error {
	return &StateConflictError{Action: action, Current: current}
}
