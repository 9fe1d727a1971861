package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kalambet/letterdesk/internal/session"
	"github.com/kalambet/letterdesk/internal/storage"
)

// SessionHeader carries the session token issued by /auth/login.
const SessionHeader = "X-Session-ID"

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// UserGetter resolves a session's user. Implemented by users.Service.
type UserGetter interface {
	Get(ctx context.Context, id int64) (storage.User, error)
}

// SessionAuth resolves the X-Session-ID header to a user and stores it in
// the request context. Missing, unknown and expired tokens get 401.
func SessionAuth(sessions session.Store, lookup UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionHeader)
			if token == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing %s header", SessionHeader)
				return
			}
			userID, err := sessions.Lookup(r.Context(), token)
			if err != nil {
				if !errors.Is(err, session.ErrInvalid) {
					slog.Error("session lookup failed", "error", err)
				}
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or expired session")
				return
			}
			u, err := lookup.Get(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					slog.Error("loading session user", "user_id", userID, "error", err)
				}
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or expired session")
				return
			}
			ctx := context.WithValue(r.Context(), userKey, u)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated users whose role differs with 403.
func RequireRole(role storage.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := currentUser(r)
			if !ok || u.Role != role {
				httpError(w, http.StatusForbidden, "permission_error", "this action requires the %s role", role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func currentUser(r *http.Request) (storage.User, bool) {
	u, ok := r.Context().Value(userKey).(storage.User)
	return u, ok
}

func sessionToken(r *http.Request) string {
	t, _ := r.Context().Value(tokenKey).(string)
	return t
}
