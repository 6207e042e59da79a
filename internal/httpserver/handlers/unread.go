package handlers

import (
	"net/http"

	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
	"github.com/trimbox/trimbox/internal/logger"
)

type unreadResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

// Unread reports the mailbox's unread message count. Upstream failures
// degrade to zero rather than erroring: the count is decoration, not truth.
func Unread(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "no session"})
			return
		}

		var count int64
		client, err := d.Mail.Handle(r.Context(), user)
		if err == nil {
			count, err = client.UnreadCount(r.Context())
		}
		if err != nil {
			d.Logger.Warn("unread count unavailable, serving 0",
				logger.String("user_id", user.ID),
				logger.Error(err))
			count = 0
		}

		writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: count})
	}
}
