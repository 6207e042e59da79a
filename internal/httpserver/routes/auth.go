package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/handlers"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	// Unauthenticated by nature; the rate limit blunts code-guessing and
	// consent-screen hammering.
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             5,
		RefillPerIPPerMin: 5,
		MaxEntries:        4096,
		IdleTTL:           15 * time.Minute,
		TrustProxy:        d.TrustProxy,
	})
	g := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		limit,
	)
	g.Get("/google", handlers.Login(d))
	g.Get("/google/callback", handlers.Callback(d))
	g.Get("/logout", handlers.Logout(d))
}
