package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/letterdesk/internal/generator"
	"github.com/kalambet/letterdesk/internal/letters"
	"github.com/kalambet/letterdesk/internal/session"
	"github.com/kalambet/letterdesk/internal/storage"
	"github.com/kalambet/letterdesk/internal/users"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable")
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeErrorBody(w, code, map[string]any{
		"message": fmt.Sprintf(format, args...),
		"type":    errType,
	})
}

func writeErrorBody(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a size-limited JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// serviceError maps a domain error onto its HTTP status. Unknown errors are
// logged and reported without detail.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	if sc, ok := letters.IsStateConflict(err); ok {
		writeErrorBody(w, http.StatusConflict, map[string]any{
			"message":        sc.Error(),
			"type":           "state_conflict",
			"current_status": sc.Current,
		})
		return
	}

	var (
		gen *generator.GenerationError
		ve  *users.ValidationError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "letter not found")
	case errors.Is(err, letters.ErrForbidden):
		httpError(w, http.StatusForbidden, "permission_error", "letter is assigned to another specialist")
	case errors.As(err, &gen):
		slog.Warn("generation failed", "path", r.URL.Path, "error", err)
		httpError(w, http.StatusBadGateway, "generation_error", "response generation failed, please retry")
	case errors.Is(err, letters.ErrEmptyText):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", ve)
	case errors.Is(err, users.ErrEmailTaken):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, session.ErrInvalid):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

// letterID parses the {id} path parameter, answering 400 when malformed.
func letterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid letter id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
