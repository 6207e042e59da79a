package mw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/logger"
)

// SessionCookie is the cookie carrying the session token. A Bearer token in
// the Authorization header works as well.
const SessionCookie = "trimbox_session"

type ctxKey int

const userCtxKey ctxKey = iota

// Auth resolves the request's session token to a user and stores it in the
// request context. Requests without a valid session get 401.
func Auth(sessions deps.SessionStore, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				unauthorized(w, "missing session")
				return
			}

			user, err := sessions.UserBySession(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					unauthorized(w, "invalid or expired session")
					return
				}
				log.Error("session lookup failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), userCtxKey, user)))
		})
	}
}

// UserFrom returns the authenticated user stored by Auth.
func UserFrom(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userCtxKey).(*domain.User)
	return user, ok
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
