package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key (such as a user email) is taken.
var ErrDuplicate = errors.New("already exists")

// Status is the lifecycle state of a letter.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusInWork        Status = "IN_WORK"
	StatusResponseReady Status = "RESPONSE_READY"
	StatusCompleted     Status = "COMPLETED"
	// StatusClosed is reserved; no transition produces it.
	StatusClosed Status = "CLOSED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInWork, StatusResponseReady, StatusCompleted, StatusClosed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInWork, StatusResponseReady, StatusCompleted, StatusClosed:
		return true
	default:
		return false
	}
}

// Role distinguishes customers from bank specialists.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleSpecialist Role = "specialist"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSpecialist
}

// ChatRole is the author of a chat-edit turn.
type ChatRole string

const (
	ChatRoleSpecialist ChatRole = "specialist"
	ChatRoleAssistant  ChatRole = "assistant"
)

// User is a customer or a specialist. Specializations is the set of topic
// tags a specialist handles; Classifications is the legacy coarse category
// list used as a routing fallback.
type User struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            Role      `json:"role"`
	PasswordHash    string    `json:"-"`
	Specializations []string  `json:"specializations,omitempty"`
	Classifications []string  `json:"classifications,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasSpecialization reports whether tag is in the user's specialization set.
func (u User) HasSpecialization(tag string) bool {
	return containsFold(u.Specializations, tag)
}

// HasClassification reports whether category is in the user's legacy classification set.
func (u User) HasClassification(category string) bool {
	return containsFold(u.Classifications, category)
}

type Letter struct {
	ID             int64     `json:"id"`
	Text           string    `json:"text"`
	Category       string    `json:"category"`
	Specialization string    `json:"specialization"`
	Deadline       time.Time `json:"deadline"`
	Status         Status    `json:"status"`
	AuthorID       int64     `json:"author_id"`
	SpecialistID   *int64    `json:"specialist_id"`
	Draft          string    `json:"draft,omitempty"`
	FinalResponse  string    `json:"final_response,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AssignedTo reports whether the letter is assigned to the given specialist.
func (l Letter) AssignedTo(userID int64) bool {
	return l.SpecialistID != nil && *l.SpecialistID == userID
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	LetterID  int64     `json:"letter_id"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type BusinessFact struct {
	UserID         int64     `json:"user_id"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	SourceLetterID int64     `json:"source_letter_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LetterFilter narrows a specialist queue. Empty filter matches every letter.
// IncludeUnclassified also matches letters with no category when filtering by Categories.
type LetterFilter struct {
	Specializations     []string
	Categories          []string
	IncludeUnclassified bool
}

// LetterCount is one row of the grouped letter counts used by statistics.
type LetterCount struct {
	Category     string
	Status       Status
	SpecialistID *int64
	Count        int
}
