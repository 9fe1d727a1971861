// Package stats aggregates letter counts for the specialist dashboards.
package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/kalambet/letterdesk/internal/storage"
)

// CountSource returns letter counts grouped by category, status and specialist.
// Implemented by storage.Store.
type CountSource interface {
	LetterCounts(ctx context.Context) ([]storage.LetterCount, error)
}

// Summary is the short counter shown to a specialist. The Mine fields count
// letters assigned to the caller.
type Summary struct {
	TotalCompleted int `json:"total_completed"`
	MineCompleted  int `json:"mine_completed"`
	MineInProgress int `json:"mine_in_progress"`
}

type Overview struct {
	Total      int            `json:"total_letters"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
}

type CategoryStats struct {
	Category string         `json:"category"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// SpecialistStats is one specialist's workload. Processed counts letters
// that reached RESPONSE_READY or COMPLETED.
type SpecialistStats struct {
	SpecialistID int64          `json:"specialist_id"`
	Total        int            `json:"total_letters"`
	ByStatus     map[string]int `json:"by_status"`
	Processed    int            `json:"processed"`
}

// uncategorized labels letters stored without a category.
const uncategorized = "UNCLASSIFIED"

type Service struct {
	src CountSource
}

func NewService(src CountSource) *Service {
	return &Service{src: src}
}

func (s *Service) counts(ctx context.Context) ([]storage.LetterCount, error) {
	rows, err := s.src.LetterCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting letters: %w", err)
	}
	return rows, nil
}

func emptyByStatus() map[string]int {
	m := make(map[string]int, len(storage.Statuses))
	for _, st := range storage.Statuses {
		m[string(st)] = 0
	}
	return m
}

// Summary counts completed letters overall and the caller's own workload.
func (s *Service) Summary(ctx context.Context, specialistID int64) (Summary, error) {
	rows, err := s.counts(ctx)
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	for _, r := range rows {
		mine := r.SpecialistID != nil && *r.SpecialistID == specialistID
		switch r.Status {
		case storage.StatusCompleted:
			out.TotalCompleted += r.Count
			if mine {
				out.MineCompleted += r.Count
			}
		case storage.StatusInWork, storage.StatusResponseReady:
			if mine {
				out.MineInProgress += r.Count
			}
		}
	}
	return out, nil
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	rows, err := s.counts(ctx)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{ByStatus: emptyByStatus(), ByCategory: map[string]int{}}
	for _, r := range rows {
		out.Total += r.Count
		out.ByStatus[string(r.Status)] += r.Count
		out.ByCategory[categoryLabel(r.Category)] += r.Count
	}
	return out, nil
}

// ByCategory returns per-category totals sorted by category name.
func (s *Service) ByCategory(ctx context.Context) ([]CategoryStats, error) {
	rows, err := s.counts(ctx)
	if err != nil {
		return nil, err
	}
	idx := map[string]*CategoryStats{}
	for _, r := range rows {
		label := categoryLabel(r.Category)
		c, ok := idx[label]
		if !ok {
			c = &CategoryStats{Category: label, ByStatus: emptyByStatus()}
			idx[label] = c
		}
		c.Total += r.Count
		c.ByStatus[string(r.Status)] += r.Count
	}
	out := make([]CategoryStats, 0, len(idx))
	for _, c := range idx {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// BySpecialist returns per-specialist totals for assigned letters, by id.
func (s *Service) BySpecialist(ctx context.Context) ([]SpecialistStats, error) {
	rows, err := s.counts(ctx)
	if err != nil {
		return nil, err
	}
	idx := map[int64]*SpecialistStats{}
	for _, r := range rows {
		if r.SpecialistID == nil {
			continue
		}
		id := *r.SpecialistID
		sp, ok := idx[id]
		if !ok {
			sp = &SpecialistStats{SpecialistID: id, ByStatus: emptyByStatus()}
			idx[id] = sp
		}
		sp.Total += r.Count
		sp.ByStatus[string(r.Status)] += r.Count
		if r.Status == storage.StatusResponseReady || r.Status == storage.StatusCompleted {
			sp.Processed += r.Count
		}
	}
	out := make([]SpecialistStats, 0, len(idx))
	for _, sp := range idx {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpecialistID < out[j].SpecialistID })
	return out, nil
}

func categoryLabel(c string) string {
	if c == "" {
		return uncategorized
	}
	return c
}
