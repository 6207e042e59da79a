package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
	"github.com/trimbox/trimbox/internal/logger"
)

// Unsubscribe executes the unsubscribe action for one of the session user's
// services.
func Unsubscribe(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "no session"})
			return
		}

		serviceID := chi.URLParam(r, "serviceID")
		if serviceID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing service id"})
			return
		}

		outcome, err := d.Unsubscriber.Unsubscribe(r.Context(), user, serviceID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotOwned):
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "service does not belong to this account"})
			case errors.Is(err, domain.ErrServiceNotFound):
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "service not found"})
			case errors.Is(err, domain.ErrNoUnsubscribeMethod):
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "sender offers no usable unsubscribe method"})
			default:
				d.Logger.Error("unsubscribe failed",
					logger.String("user_id", user.ID),
					logger.String("service", serviceID),
					logger.Error(err))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "unsubscribe failed"})
			}
			return
		}

		writeJSON(w, http.StatusOK, outcome)
	}
}
