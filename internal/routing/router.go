// Package routing picks the specialist a new letter is assigned to.
package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/letterdesk/internal/storage"
)

// SpecialistLister returns specialists in registration order.
// Implemented by storage.Store.
type SpecialistLister interface {
	ListSpecialists(ctx context.Context) ([]storage.User, error)
}

// Router assigns letters to the first matching specialist.
type Router struct {
	users SpecialistLister
}

func New(users SpecialistLister) *Router {
	return &Router{users: users}
}

// Route returns the id of the specialist who should handle a letter with the
// given specialization and category. The first pass matches specialization
// sets; the second matches legacy classification sets against the category.
// ok is false when nobody matches and the letter stays unassigned.
func (r *Router) Route(ctx context.Context, specialization, category string) (id int64, ok bool, err error) {
	specialists, err := r.users.ListSpecialists(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("listing specialists: %w", err)
	}

	if specialization != "" {
		for _, s := range specialists {
			if s.HasSpecialization(specialization) {
				slog.DebugContext(ctx, "routed by specialization", "specialist_id", s.ID, "specialization", specialization)
				return s.ID, true, nil
			}
		}
	}
	if category != "" {
		for _, s := range specialists {
			if s.HasClassification(category) {
				slog.DebugContext(ctx, "routed by classification", "specialist_id", s.ID, "category", category)
				return s.ID, true, nil
			}
		}
	}
	return 0, false, nil
}
