package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/letterdesk/internal/letters"
	"github.com/kalambet/letterdesk/internal/session"
	"github.com/kalambet/letterdesk/internal/stats"
	"github.com/kalambet/letterdesk/internal/storage"
	"github.com/kalambet/letterdesk/internal/users"
)

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 500
)

type AppDeps struct {
	Letters  *letters.Service
	Users    *users.Service
	Sessions session.Store
	Stats    *stats.Service
	DB       Pinger // optional; /health skips the ping when nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string       `json:"session_id"`
	UserID    int64        `json:"user_id"`
	Role      storage.Role `json:"role"`
}

type createLetterRequest struct {
	Text string `json:"text"`
}

type createLetterResponse struct {
	ID             int64          `json:"id"`
	Category       string         `json:"category"`
	Specialization string         `json:"specialization"`
	Deadline       time.Time      `json:"deadline"`
	SpecialistID   *int64         `json:"specialist_id"`
	Status         storage.Status `json:"status"`
}

type responseRequest struct {
	Response string `json:"response"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	ImprovedResponse string         `json:"improved_response"`
	UpdatedDraft     string         `json:"updated_draft"`
	Letter           storage.Letter `json:"letter"`
}

// NewAppHandler builds the letterdesk HTTP API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps.DB))
	r.Post("/auth/register", handleRegister(deps))
	r.Post("/auth/login", handleLogin(deps))

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Sessions, deps.Users))

		r.Post("/auth/logout", handleLogout(deps))
		r.Get("/letters/{id}", handleGetLetter(deps))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(storage.RoleCustomer))
			r.Post("/letters", handleCreateLetter(deps))
			r.Get("/letters/mine", handleListMine(deps))
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(storage.RoleSpecialist))
			r.Get("/letters/all", handleListQueue(deps))
			r.Post("/letters/{id}/take", handleAction(deps.Letters.Take))
			r.Post("/letters/{id}/process", handleAction(deps.Letters.Process))
			r.Post("/letters/{id}/regenerate", handleAction(deps.Letters.Regenerate))
			r.Post("/letters/{id}/approve", handleAction(deps.Letters.Approve))
			r.Put("/letters/{id}/response", handleUpdateResponse(deps))
			r.Post("/letters/{id}/chat", handleChat(deps))
			r.Get("/letters/{id}/chat", handleChatHistory(deps))

			r.Get("/stats", handleSummary(deps))
			r.Get("/statistics/overview", handleOverview(deps))
			r.Get("/statistics/categories", handleCategoryStats(deps))
			r.Get("/statistics/specialists", handleSpecialistStats(deps))
		})
	})

	return r
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.Registration
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Users.Register(r.Context(), req)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		slog.Info("user registered", "user_id", u.ID, "role", u.Role)
		writeJSON(w, http.StatusCreated, u)
	}
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Users.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		token, err := deps.Sessions.Create(r.Context(), u.ID)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{SessionID: token, UserID: u.ID, Role: u.Role})
	}
}

func handleLogout(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Expire(r.Context(), sessionToken(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCreateLetter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		var req createLetterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		l, err := deps.Letters.Create(r.Context(), u.ID, req.Text)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, createLetterResponse{
			ID:             l.ID,
			Category:       l.Category,
			Specialization: l.Specialization,
			Deadline:       l.Deadline,
			SpecialistID:   l.SpecialistID,
			Status:         l.Status,
		})
	}
}

func handleListMine(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		list, err := deps.Letters.ListMine(r.Context(), u.ID)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"letters": list})
	}
}

func handleListQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		limit := parseIntParam(r, "limit", defaultQueueLimit, maxQueueLimit)
		list, err := deps.Letters.ListQueue(r.Context(), u)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"letters": list})
	}
}

// handleGetLetter serves the author's view to customers and opens the letter
// for its assigned specialist.
func handleGetLetter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := letterID(w, r)
		if !ok {
			return
		}
		u, _ := currentUser(r)
		switch u.Role {
		case storage.RoleCustomer:
			v, err := deps.Letters.GetForCustomer(r.Context(), u.ID, id)
			if err != nil {
				serviceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		case storage.RoleSpecialist:
			l, err := deps.Letters.Open(r.Context(), u.ID, id)
			if err != nil {
				serviceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, l)
		default:
			httpError(w, http.StatusForbidden, "permission_error", "unknown role %q", u.Role)
		}
	}
}

type letterAction func(ctx context.Context, specialistID, id int64) (storage.Letter, error)

// handleAction adapts a specialist transition that takes no body.
func handleAction(action letterAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := letterID(w, r)
		if !ok {
			return
		}
		u, _ := currentUser(r)
		l, err := action(r.Context(), u.ID, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleUpdateResponse(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := letterID(w, r)
		if !ok {
			return
		}
		var req responseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, _ := currentUser(r)
		l, err := deps.Letters.UpdateResponse(r.Context(), u.ID, id, req.Response)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := letterID(w, r)
		if !ok {
			return
		}
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, _ := currentUser(r)
		res, err := deps.Letters.Chat(r.Context(), u.ID, id, req.Message)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			ImprovedResponse: res.ImprovedResponse,
			UpdatedDraft:     res.Letter.Draft,
			Letter:           res.Letter,
		})
	}
}

func handleChatHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := letterID(w, r)
		if !ok {
			return
		}
		u, _ := currentUser(r)
		msgs, err := deps.Letters.ChatHistory(r.Context(), u.ID, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []storage.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		s, err := deps.Stats.Summary(r.Context(), u.ID)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleOverview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := deps.Stats.Overview(r.Context())
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func handleCategoryStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Stats.ByCategory(r.Context())
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": c})
	}
}

func handleSpecialistStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Stats.BySpecialist(r.Context())
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"specialists": s})
	}
}
