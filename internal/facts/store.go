package facts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kalambet/letterdesk/internal/storage"
)

// FactStore defines the storage operations the Book needs.
// Implemented by storage.Store.
type FactStore interface {
	UpsertFacts(ctx context.Context, userID, letterID int64, values map[string]string, at time.Time) error
	ListFacts(ctx context.Context, userID int64) ([]storage.BusinessFact, error)
}

// Book persists facts per customer, last write wins per key.
type Book struct {
	store FactStore
	now   func() time.Time
}

func NewBook(store FactStore) *Book {
	return &Book{store: store, now: time.Now}
}

// Merge stores f for userID, recording letterID as the source.
func (b *Book) Merge(ctx context.Context, userID, letterID int64, f Facts) error {
	if len(f) == 0 {
		return nil
	}
	values := make(map[string]string, len(f))
	for k, v := range f {
		switch x := v.(type) {
		case bool:
			values[k] = strconv.FormatBool(x)
		case string:
			values[k] = x
		default:
			values[k] = fmt.Sprint(x)
		}
	}
	if err := b.store.UpsertFacts(ctx, userID, letterID, values, b.now().UTC()); err != nil {
		return fmt.Errorf("merging facts for user %d: %w", userID, err)
	}
	return nil
}

// Load returns the stored facts for userID. Boolean keys come back as bool.
func (b *Book) Load(ctx context.Context, userID int64) (Facts, error) {
	rows, err := b.store.ListFacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading facts for user %d: %w", userID, err)
	}
	f := make(Facts, len(rows))
	for _, r := range rows {
		if kind, ok := Keys[r.Key]; ok && kind == KindBool {
			if v, err := strconv.ParseBool(r.Value); err == nil {
				f[r.Key] = v
				continue
			}
		}
		f[r.Key] = r.Value
	}
	return f, nil
}
