package letters

import (
	"time"

	"github.com/kalambet/letterdesk/internal/storage"
)

// CustomerView is the letter as its author sees it. The draft is never
// included and Response is set only once the letter is COMPLETED.
type CustomerView struct {
	ID             int64          `json:"id"`
	Text           string         `json:"text"`
	Category       string         `json:"category"`
	Specialization string         `json:"specialization"`
	Deadline       time.Time      `json:"deadline"`
	Status         storage.Status `json:"status"`
	SpecialistID   *int64         `json:"specialist_id"`
	Response       *string        `json:"response"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ForCustomer projects l onto the author's view.
func ForCustomer(l storage.Letter) CustomerView {
	v := CustomerView{
		ID:             l.ID,
		Text:           l.Text,
		Category:       l.Category,
		Specialization: l.Specialization,
		Deadline:       l.Deadline,
		Status:         l.Status,
		SpecialistID:   l.SpecialistID,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
	switch l.Status {
	case storage.StatusCompleted:
		resp := l.FinalResponse
		v.Response = &resp
	case storage.StatusPending, storage.StatusInWork, storage.StatusResponseReady, storage.StatusClosed:
	}
	return v
}

// ChatResult is the outcome of one chat-edit turn.
type ChatResult struct {
	ImprovedResponse string                `json:"improved_response"`
	Letter           storage.Letter        `json:"letter"`
	Messages         []storage.ChatMessage `json:"messages"`
}
