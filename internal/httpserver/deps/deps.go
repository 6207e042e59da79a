package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/gmail"
	"github.com/trimbox/trimbox/internal/logger"
	"github.com/trimbox/trimbox/internal/unsub"
)

// Scanner runs one subscription scan for a user.
type Scanner interface {
	Run(ctx context.Context, user *domain.User) (domain.ScanResult, error)
}

// Unsubscriber executes an unsubscribe action against a service.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, user *domain.User, emailID string) (unsub.Outcome, error)
}

// SessionStore resolves a session token to its user.
type SessionStore interface {
	UserBySession(ctx context.Context, token string) (*domain.User, error)
}

// Authenticator runs the sign-in flow behind the auth routes.
type Authenticator interface {
	AuthURL() (url, state string, err error)
	Callback(ctx context.Context, code string) (string, *domain.User, error)
	Logout(ctx context.Context, token string) error
}

// MailProvider yields an authenticated mailbox handle for a user.
type MailProvider interface {
	Handle(ctx context.Context, user *domain.User) (gmail.Client, error)
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // IPs allowed to access healthz/readyz endpoints
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RedisClient  *redis.Client    // Redis client connection, pinged by readyz

	Sessions     SessionStore
	Auth         Authenticator
	SessionTTL   time.Duration // lifetime of the session cookie set on sign-in
	Scanner      Scanner
	Unsubscriber Unsubscriber
	Mail         MailProvider
}
