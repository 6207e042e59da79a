package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/handlers"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
)

func init() { Register(registerSubscriptions) }

func registerSubscriptions(r chi.Router, d deps.Deps) {
	// A scan is expensive upstream; the rate limit keeps an impatient
	// client from burning the mailbox quota.
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             3,
		RefillPerIPPerMin: 2,
		MaxEntries:        4096,
		IdleTTL:           15 * time.Minute,
		TrustProxy:        d.TrustProxy,
	})
	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.Auth(d.Sessions, d.Logger),
		limit,
	).Get("/api/subscriptions", handlers.Subscriptions(d))
}
