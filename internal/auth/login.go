package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/googleapi"
	"github.com/trimbox/trimbox/internal/logger"
)

// LoginStore persists the documents a completed sign-in produces.
type LoginStore interface {
	SaveUser(ctx context.Context, user *domain.User) error
	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	DeleteSession(ctx context.Context, token string) error
}

// exchangeFunc trades an authorization code for a token. Swapped out in tests.
type exchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

// profileFunc resolves the mailbox owner's address. Swapped out in tests.
type profileFunc func(ctx context.Context, ts oauth2.TokenSource) (string, error)

// Login runs the sign-in flow: consent redirect, code exchange, user upsert
// and session creation.
type Login struct {
	cfg    *oauth2.Config
	store  LoginStore
	ttl    time.Duration
	logger logger.Logger

	exchange exchangeFunc
	profile  profileFunc
	newToken func() (string, error)
}

// NewLogin builds a Login around the application's OAuth config. ttl bounds
// the lifetime of the sessions it opens.
func NewLogin(cfg *oauth2.Config, store LoginStore, ttl time.Duration, log logger.Logger) *Login {
	return &Login{
		cfg:      cfg,
		store:    store,
		ttl:      ttl,
		logger:   log,
		exchange: func(ctx context.Context, code string) (*oauth2.Token, error) { return cfg.Exchange(ctx, code) },
		profile:  googleProfile,
		newToken: randomToken,
	}
}

// AuthURL returns the consent URL plus the state value the callback must
// echo back. Offline access and a forced consent prompt make the provider
// return a refresh token on every sign-in, not only the first.
func (l *Login) AuthURL() (string, string, error) {
	state, err := l.newToken()
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	url := l.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	return url, state, nil
}

// Callback completes a sign-in: the code is exchanged, the granted
// credential is stored on the user document keyed by the normalized mailbox
// address, and a fresh session is opened. Counters and the scan watermark of
// a returning user survive because the store only seeds them on first save.
func (l *Login) Callback(ctx context.Context, code string) (string, *domain.User, error) {
	tok, err := l.exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
	}

	email, err := l.profile(ctx, l.cfg.TokenSource(ctx, tok))
	if err != nil {
		return "", nil, fmt.Errorf("fetch profile: %w", err)
	}

	user := &domain.User{
		ID:    strings.ToLower(strings.TrimSpace(email)),
		Email: email,
		Credential: domain.Credential{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.Expiry,
		},
	}
	if err := l.store.SaveUser(ctx, user); err != nil {
		return "", nil, fmt.Errorf("save user: %w", err)
	}

	token, err := l.newToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}
	if err := l.store.SaveSession(ctx, token, user.ID, l.ttl); err != nil {
		return "", nil, fmt.Errorf("save session: %w", err)
	}

	l.logger.Info("user signed in", logger.String("user_id", user.ID))
	return token, user, nil
}

// Logout drops the session. Unknown tokens are not an error.
func (l *Login) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return l.store.DeleteSession(ctx, token)
}

func googleProfile(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", fmt.Errorf("create gmail service: %w", err)
	}
	return googleapi.ProfileEmail(ctx, svc)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
