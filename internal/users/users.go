// Package users manages customer and specialist accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/ids"
	"github.com/kalambet/letterdesk/internal/storage"
)

const minPasswordLen = 6

var (
	// ErrInvalidCredentials is returned by Authenticate for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned by Register when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError describes a rejected registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UserStore defines the storage operations the Service needs.
// Implemented by storage.Store.
type UserStore interface {
	CreateUser(ctx context.Context, u storage.User) error
	GetUser(ctx context.Context, id int64) (storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	ListSpecialists(ctx context.Context) ([]storage.User, error)
	UpdateSpecializations(ctx context.Context, id int64, specializations, classifications []string) error
}

// Registration is the input to Register.
type Registration struct {
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	Password        string       `json:"password"`
	Role            storage.Role `json:"role"`
	Specializations []string     `json:"specializations"`
	Classifications []string     `json:"classifications"`
}

type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

// Register validates r, hashes the password and stores a new user.
func (s *Service) Register(ctx context.Context, r Registration) (storage.User, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return storage.User{}, &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return storage.User{}, &ValidationError{Field: "name", Message: "is required"}
	}
	if len(r.Password) < minPasswordLen {
		return storage.User{}, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	if r.Role == "" {
		r.Role = storage.RoleCustomer
	}
	if !r.Role.Valid() {
		return storage.User{}, &ValidationError{Field: "role", Message: "must be customer or specialist"}
	}

	specs, classes, err := normalizeSets(r.Specializations, r.Classifications)
	if err != nil {
		return storage.User{}, err
	}
	if r.Role == storage.RoleCustomer {
		specs, classes = nil, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return storage.User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := storage.User{
		ID:              ids.New(),
		Email:           email,
		Name:            name,
		Role:            r.Role,
		PasswordHash:    string(hash),
		Specializations: specs,
		Classifications: classes,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return storage.User{}, ErrEmailTaken
		}
		return storage.User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// Authenticate returns the user whose email and password match.
func (s *Service) Authenticate(ctx context.Context, email, password string) (storage.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("looking up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return storage.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (storage.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) ListSpecialists(ctx context.Context) ([]storage.User, error) {
	return s.store.ListSpecialists(ctx)
}

// SetSpecializations replaces a specialist's specialization and classification sets.
func (s *Service) SetSpecializations(ctx context.Context, id int64, specializations, classifications []string) (storage.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return storage.User{}, err
	}
	if u.Role != storage.RoleSpecialist {
		return storage.User{}, &ValidationError{Field: "role", Message: "only specialists carry specializations"}
	}
	specs, classes, err := normalizeSets(specializations, classifications)
	if err != nil {
		return storage.User{}, err
	}
	if err := s.store.UpdateSpecializations(ctx, id, specs, classes); err != nil {
		return storage.User{}, fmt.Errorf("updating specializations: %w", err)
	}
	u.Specializations, u.Classifications = specs, classes
	return u, nil
}

// normalizeSets maps specializations onto the canonical vocabulary spelling
// and validates classifications against the category enum.
func normalizeSets(specializations, classifications []string) ([]string, []string, error) {
	var specs []string
	for _, raw := range specializations {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		specs = append(specs, canonicalSpecialization(raw))
	}
	var classes []string
	for _, raw := range classifications {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, ok := classifier.ParseCategory(raw)
		if !ok {
			return nil, nil, &ValidationError{Field: "classifications", Message: fmt.Sprintf("unknown category %q", raw)}
		}
		classes = append(classes, string(c))
	}
	return specs, classes, nil
}

// canonicalSpecialization keeps tags outside the vocabulary as written.
func canonicalSpecialization(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, s := range classifier.Specializations {
		if strings.EqualFold(s, raw) {
			return s
		}
	}
	return raw
}
