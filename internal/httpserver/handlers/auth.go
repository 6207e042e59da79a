package handlers

import (
	"errors"
	"net/http"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
	"github.com/trimbox/trimbox/internal/logger"
)

// stateCookie carries the anti-forgery state between the consent redirect
// and the callback. Single-use, short-lived.
const stateCookie = "trimbox_oauth_state"

// Login redirects the browser to the consent screen.
func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, state, err := d.Auth.AuthURL()
		if err != nil {
			d.Logger.Error("consent url generation failed", logger.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "sign-in unavailable"})
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// Callback finishes the sign-in: the state must match the cookie set by
// Login, the code is exchanged for a session, and the session cookie is set.
func Callback(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := r.Cookie(stateCookie)
		if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "state mismatch"})
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing authorization code"})
			return
		}

		token, _, err := d.Auth.Callback(r.Context(), code)
		if err != nil {
			if errors.Is(err, domain.ErrReauthRequired) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "sign-in was rejected, please retry"})
				return
			}
			d.Logger.Error("sign-in callback failed", logger.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "sign-in failed"})
			return
		}

		// The state cookie is single-use.
		http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
		http.SetCookie(w, &http.Cookie{
			Name:     mw.SessionCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int(d.SessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// Logout drops the session and clears the cookie.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(mw.SessionCookie); err == nil && c.Value != "" {
			if err := d.Auth.Logout(r.Context(), c.Value); err != nil {
				d.Logger.Warn("session delete failed", logger.Error(err))
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     mw.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		http.Redirect(w, r, "/", http.StatusFound)
	}
}
