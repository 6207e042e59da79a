package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/handlers"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
)

func init() { Register(registerUnread) }

func registerUnread(r chi.Router, d deps.Deps) {
	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.Auth(d.Sessions, d.Logger),
	).Get("/api/unread", handlers.Unread(d))
}
