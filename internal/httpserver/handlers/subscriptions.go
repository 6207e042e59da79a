package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
	"github.com/trimbox/trimbox/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Subscriptions triggers a scan for the session user and returns the user's
// service list.
func Subscriptions(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "no session"})
			return
		}

		result, err := d.Scanner.Run(r.Context(), user)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrScanInProgress):
				writeJSON(w, http.StatusConflict, errorResponse{Error: "a scan is already running"})
			case errors.Is(err, domain.ErrReauthRequired):
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "mailbox access expired, please sign in again"})
			case errors.Is(err, domain.ErrUpstream):
				d.Logger.Warn("scan failed upstream",
					logger.String("user_id", user.ID),
					logger.Error(err))
				writeJSON(w, http.StatusBadGateway, errorResponse{Error: "mail provider unavailable, please retry"})
			default:
				d.Logger.Error("scan failed",
					logger.String("user_id", user.ID),
					logger.Error(err))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "scan failed"})
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
