// Package letters runs a customer letter through its lifecycle: intake with
// classification and routing, drafting by the assigned specialist, chat edits
// and approval.
package letters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/facts"
	"github.com/kalambet/letterdesk/internal/ids"
	"github.com/kalambet/letterdesk/internal/storage"
)

// historyLimit caps how many earlier completed letters go into a draft context.
const historyLimit = 10

// LetterStore defines the storage operations the Service needs.
// Implemented by storage.Store.
type LetterStore interface {
	CreateLetter(ctx context.Context, l storage.Letter) error
	GetLetter(ctx context.Context, id int64) (storage.Letter, error)
	UpdateLetter(ctx context.Context, l storage.Letter) error
	ClaimLetter(ctx context.Context, id, specialistID int64, at time.Time) (bool, error)
	ListLettersByAuthor(ctx context.Context, authorID int64) ([]storage.Letter, error)
	ListLetters(ctx context.Context, f storage.LetterFilter) ([]storage.Letter, error)
	CompletedHistory(ctx context.Context, authorID, excludeID int64, limit int) ([]storage.Letter, error)
	ListChatMessages(ctx context.Context, letterID int64) ([]storage.ChatMessage, error)
	SaveChatEdit(ctx context.Context, l storage.Letter, msgs ...storage.ChatMessage) error
}

type Classifier interface {
	Classify(ctx context.Context, text string, now time.Time) (classifier.Result, error)
	Fallback(now time.Time) classifier.Result
}

type FactExtractor interface {
	Extract(ctx context.Context, text string) (facts.Facts, error)
}

type FactBook interface {
	Merge(ctx context.Context, userID, letterID int64, f facts.Facts) error
	Load(ctx context.Context, userID int64) (facts.Facts, error)
}

type Router interface {
	Route(ctx context.Context, specialization, category string) (int64, bool, error)
}

type Retriever interface {
	Retrieve(query string) string
}

type Assembler interface {
	Assemble(history []storage.Letter, f facts.Facts, knowledge string) string
}

type Drafter interface {
	Draft(ctx context.Context, l storage.Letter, assembled string) (string, error)
	ChatEdit(ctx context.Context, letterText, currentDraft string, chatLog []storage.ChatMessage, request string) (string, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Store      LetterStore
	Classifier Classifier
	Extractor  FactExtractor
	Facts      FactBook
	Router     Router
	Retriever  Retriever
	Composer   Assembler
	Generator  Drafter
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

// Create accepts a new letter from authorID. Classification and fact
// extraction run concurrently; either failing degrades to defaults rather
// than failing the submission. A routed letter starts IN_WORK, otherwise PENDING.
func (s *Service) Create(ctx context.Context, authorID int64, text string) (storage.Letter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Letter{}, ErrEmptyText
	}
	now := s.now().UTC()

	var (
		verdict     classifier.Result
		found       facts.Facts
		classifyErr error
		extractErr  error
		g           errgroup.Group
	)
	g.Go(func() error {
		verdict, classifyErr = s.Classifier.Classify(ctx, text, now)
		return nil
	})
	g.Go(func() error {
		found, extractErr = s.Extractor.Extract(ctx, text)
		return nil
	})
	g.Wait()

	if classifyErr != nil {
		slog.WarnContext(ctx, "classification failed, using defaults", "author_id", authorID, "error", classifyErr)
		verdict = s.Classifier.Fallback(now)
	}
	if extractErr != nil {
		slog.WarnContext(ctx, "fact extraction failed", "author_id", authorID, "error", extractErr)
		found = nil
	}

	l := storage.Letter{
		ID:             ids.New(),
		Text:           text,
		Category:       string(verdict.Category),
		Specialization: verdict.Specialization,
		Deadline:       verdict.Deadline,
		Status:         storage.StatusPending,
		AuthorID:       authorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	specialistID, routed, err := s.Router.Route(ctx, l.Specialization, l.Category)
	if err != nil {
		return storage.Letter{}, fmt.Errorf("routing letter: %w", err)
	}
	if routed {
		l.SpecialistID = &specialistID
		l.Status = storage.StatusInWork
	}

	if err := s.Store.CreateLetter(ctx, l); err != nil {
		return storage.Letter{}, fmt.Errorf("storing letter: %w", err)
	}

	if err := s.Facts.Merge(ctx, authorID, l.ID, found); err != nil {
		slog.WarnContext(ctx, "failed to store business facts", "letter_id", l.ID, "error", err)
	}

	slog.InfoContext(ctx, "letter created",
		"letter_id", l.ID,
		"category", l.Category,
		"specialization", l.Specialization,
		"routed", routed,
		"status", l.Status,
	)
	return l, nil
}

// Get returns a letter without any ownership check.
func (s *Service) Get(ctx context.Context, id int64) (storage.Letter, error) {
	return s.Store.GetLetter(ctx, id)
}

// GetForCustomer returns the author's view of a letter.
func (s *Service) GetForCustomer(ctx context.Context, authorID, id int64) (CustomerView, error) {
	l, err := s.Store.GetLetter(ctx, id)
	if err != nil {
		return CustomerView{}, err
	}
	if l.AuthorID != authorID {
		return CustomerView{}, ErrForbidden
	}
	return ForCustomer(l), nil
}

// ListMine returns the author's letters, newest first, in customer view.
func (s *Service) ListMine(ctx context.Context, authorID int64) ([]CustomerView, error) {
	list, err := s.Store.ListLettersByAuthor(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("listing letters: %w", err)
	}
	out := make([]CustomerView, 0, len(list))
	for _, l := range list {
		out = append(out, ForCustomer(l))
	}
	return out, nil
}

// ListQueue returns the letters a specialist may see. A specialization set
// filters by specialization; otherwise a classification set filters by
// category and also includes unclassified letters; otherwise all letters.
func (s *Service) ListQueue(ctx context.Context, specialist storage.User) ([]storage.Letter, error) {
	var f storage.LetterFilter
	switch {
	case len(specialist.Specializations) > 0:
		f.Specializations = specialist.Specializations
	case len(specialist.Classifications) > 0:
		f.Categories = specialist.Classifications
		f.IncludeUnclassified = true
	}
	list, err := s.Store.ListLetters(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	return list, nil
}

// Take assigns a PENDING letter to specialistID and moves it to IN_WORK.
// A second take of the same letter fails with a *StateConflictError.
func (s *Service) Take(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	l, err := s.Store.GetLetter(ctx, id)
	if err != nil {
		return storage.Letter{}, err
	}

	switch l.Status {
	case storage.StatusPending:
	case storage.StatusInWork, storage.StatusResponseReady, storage.StatusCompleted, storage.StatusClosed:
		return storage.Letter{}, conflict("take", l.Status)
	default:
		return storage.Letter{}, conflict("take", l.Status)
	}

	now := s.now().UTC()
	claimed, err := s.Store.ClaimLetter(ctx, id, specialistID, now)
	if err != nil {
		return storage.Letter{}, err
	}
	if !claimed {
		// Someone else claimed it between the read and the update.
		current, err := s.Store.GetLetter(ctx, id)
		if err != nil {
			return storage.Letter{}, err
		}
		return storage.Letter{}, conflict("take", current.Status)
	}

	l.Status = storage.StatusInWork
	l.SpecialistID = &specialistID
	l.UpdatedAt = now
	slog.InfoContext(ctx, "letter taken", "letter_id", id, "specialist_id", specialistID)
	return l, nil
}

// Open returns a letter to its assigned specialist. It changes nothing.
func (s *Service) Open(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	return s.owned(ctx, specialistID, id)
}

// Process writes the first draft of an IN_WORK letter and moves it to RESPONSE_READY.
func (s *Service) Process(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	l, err := s.owned(ctx, specialistID, id)
	if err != nil {
		return storage.Letter{}, err
	}

	switch l.Status {
	case storage.StatusInWork:
	case storage.StatusPending, storage.StatusResponseReady, storage.StatusCompleted, storage.StatusClosed:
		return storage.Letter{}, conflict("process", l.Status)
	default:
		return storage.Letter{}, conflict("process", l.Status)
	}

	return s.redraft(ctx, l)
}

// Regenerate replaces the draft with a freshly generated one.
func (s *Service) Regenerate(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	l, err := s.owned(ctx, specialistID, id)
	if err != nil {
		return storage.Letter{}, err
	}
	if err := requireEditable("regenerate", l.Status); err != nil {
		return storage.Letter{}, err
	}
	return s.redraft(ctx, l)
}

// UpdateResponse overwrites the draft with text verbatim.
func (s *Service) UpdateResponse(ctx context.Context, specialistID, id int64, text string) (storage.Letter, error) {
	if strings.TrimSpace(text) == "" {
		return storage.Letter{}, ErrEmptyText
	}
	l, err := s.owned(ctx, specialistID, id)
	if err != nil {
		return storage.Letter{}, err
	}
	if err := requireEditable("edit response of", l.Status); err != nil {
		return storage.Letter{}, err
	}

	l.Draft = text
	l.Status = storage.StatusResponseReady
	l.UpdatedAt = s.now().UTC()
	if err := s.Store.UpdateLetter(ctx, l); err != nil {
		return storage.Letter{}, fmt.Errorf("saving draft: %w", err)
	}
	return l, nil
}

// Chat runs one chat-edit turn: the draft is revised according to message and
// both turns are appended to the chat log. Nothing is written if generation fails.
func (s *Service) Chat(ctx context.Context, specialistID, id int64, message string) (ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, ErrEmptyText
	}
	l, err := s.owned(ctx, specialistID, id)
	if err != nil {
		return ChatResult{}, err
	}
	if err := requireEditable("chat on", l.Status); err != nil {
		return ChatResult{}, err
	}

	chatLog, err := s.Store.ListChatMessages(ctx, id)
	if err != nil {
		return ChatResult{}, fmt.Errorf("loading chat log: %w", err)
	}

	improved, err := s.Generator.ChatEdit(ctx, l.Text, l.Draft, chatLog, message)
	if err != nil {
		slog.ErrorContext(ctx, "chat edit failed", "letter_id", id, "error", err)
		return ChatResult{}, err
	}

	now := s.now().UTC()
	msgs := []storage.ChatMessage{
		{ID: ids.New(), LetterID: id, Role: storage.ChatRoleSpecialist, Text: message, CreatedAt: now},
		{ID: ids.New(), LetterID: id, Role: storage.ChatRoleAssistant, Text: improved, CreatedAt: now},
	}
	l.Draft = improved
	l.Status = storage.StatusResponseReady
	l.UpdatedAt = now
	if err := s.Store.SaveChatEdit(ctx, l, msgs...); err != nil {
		return ChatResult{}, fmt.Errorf("saving chat edit: %w", err)
	}
	return ChatResult{ImprovedResponse: improved, Letter: l, Messages: msgs}, nil
}

// ChatHistory returns the letter's chat log in order.
func (s *Service) ChatHistory(ctx context.Context, specialistID, id int64) ([]storage.ChatMessage, error) {
	if _, err := s.owned(ctx, specialistID, id); err != nil {
		return nil, err
	}
	return s.Store.ListChatMessages(ctx, id)
}

// Approve releases the current draft to the customer and completes the letter.
func (s *Service) Approve(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	l, err := s.owned(ctx, specialistID, id)
	if err != nil {
		return storage.Letter{}, err
	}

	switch l.Status {
	case storage.StatusResponseReady:
	case storage.StatusPending, storage.StatusInWork, storage.StatusCompleted, storage.StatusClosed:
		return storage.Letter{}, conflict("approve", l.Status)
	default:
		return storage.Letter{}, conflict("approve", l.Status)
	}

	l.FinalResponse = l.Draft
	l.Status = storage.StatusCompleted
	l.UpdatedAt = s.now().UTC()
	if err := s.Store.UpdateLetter(ctx, l); err != nil {
		return storage.Letter{}, fmt.Errorf("approving letter: %w", err)
	}
	slog.InfoContext(ctx, "letter approved", "letter_id", id, "specialist_id", specialistID)
	return l, nil
}

// owned loads a letter and checks it is assigned to specialistID.
// Ownership is checked before any status check.
func (s *Service) owned(ctx context.Context, specialistID, id int64) (storage.Letter, error) {
	l, err := s.Store.GetLetter(ctx, id)
	if err != nil {
		return storage.Letter{}, err
	}
	if !l.AssignedTo(specialistID) {
		return storage.Letter{}, ErrForbidden
	}
	return l, nil
}

// requireEditable admits the statuses in which the draft may change.
func requireEditable(action string, st storage.Status) error {
	switch st {
	case storage.StatusInWork, storage.StatusResponseReady:
		return nil
	case storage.StatusPending, storage.StatusCompleted, storage.StatusClosed:
		return conflict(action, st)
	default:
		return conflict(action, st)
	}
}

// redraft generates a draft from fresh context and stores it as RESPONSE_READY.
// On generation failure the letter is left untouched.
func (s *Service) redraft(ctx context.Context, l storage.Letter) (storage.Letter, error) {
	assembled := s.draftContext(ctx, l)

	draft, err := s.Generator.Draft(ctx, l, assembled)
	if err != nil {
		slog.ErrorContext(ctx, "draft generation failed", "letter_id", l.ID, "error", err)
		return storage.Letter{}, err
	}

	l.Draft = draft
	l.Status = storage.StatusResponseReady
	l.UpdatedAt = s.now().UTC()
	if err := s.Store.UpdateLetter(ctx, l); err != nil {
		return storage.Letter{}, fmt.Errorf("saving draft: %w", err)
	}
	return l, nil
}

// draftContext gathers history, facts and knowledge for l. Missing pieces are
// logged and left out.
func (s *Service) draftContext(ctx context.Context, l storage.Letter) string {
	history, err := s.Store.CompletedHistory(ctx, l.AuthorID, l.ID, historyLimit)
	if err != nil {
		slog.WarnContext(ctx, "failed to load letter history", "letter_id", l.ID, "error", err)
		history = nil
	}
	known, err := s.Facts.Load(ctx, l.AuthorID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load business facts", "letter_id", l.ID, "error", err)
		known = nil
	}
	return s.Composer.Assemble(history, known, s.Retriever.Retrieve(l.Text))
}

// IsStateConflict reports whether err is a *StateConflictError and returns it.
func IsStateConflict(err error) (*StateConflictError, bool) {
	var sc *StateConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}
