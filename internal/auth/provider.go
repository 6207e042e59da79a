// Package auth owns the delegated-access credential lifecycle: it turns a
// user's stored OAuth grant into an authenticated mail-API handle, refreshing
// and persisting the token first when it is stale.
package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trimbox/trimbox/internal/domain"
	gc "github.com/trimbox/trimbox/internal/gmail"
	"github.com/trimbox/trimbox/internal/googleapi"
	"github.com/trimbox/trimbox/internal/logger"
)

// CredentialStore persists refreshed credentials. The write happens before
// the handle is returned so a rotated token survives a failed scan.
type CredentialStore interface {
	SaveCredential(ctx context.Context, userID string, cred domain.Credential) error
}

// tokenSourceFunc builds a refreshing token source for a stored token.
// Swapped out in tests.
type tokenSourceFunc func(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource

// handleFunc builds a mail-API handle from a token source. Swapped out in tests.
type handleFunc func(ctx context.Context, ts oauth2.TokenSource) (gc.Client, error)

// Provider produces authenticated mail-API handles for users.
type Provider struct {
	store  CredentialStore
	logger logger.Logger

	tokenSource tokenSourceFunc
	newHandle   handleFunc
	now         func() time.Time
}

// NewProvider builds a Provider around the application's OAuth config.
func NewProvider(cfg *oauth2.Config, store CredentialStore, log logger.Logger) *Provider {
	return &Provider{
		store:       store,
		logger:      log,
		tokenSource: cfg.TokenSource,
		newHandle:   googleHandle,
		now:         time.Now,
	}
}

// Handle returns an authenticated mail-API handle for the user.
//
// When the stored access token is expired (or its expiry is unknown) the
// refresh token is exchanged first; the rotated credential is persisted
// before the handle is handed out. A still-valid token causes no store
// write. Refresh failure surfaces domain.ErrReauthRequired and must not be
// retried automatically.
func (p *Provider) Handle(ctx context.Context, user *domain.User) (gc.Client, error) {
	cred := user.Credential
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
	if cred.ExpiresAt.IsZero() {
		// Unknown expiry: force the token source to refresh.
		tok.Expiry = p.now().Add(-time.Minute)
	}

	ts := p.tokenSource(ctx, tok)
	fresh, err := ts.Token()
	if err != nil {
		p.logger.Warn("token refresh failed",
			logger.String("user_id", user.ID),
			logger.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
	}

	if fresh.AccessToken != cred.AccessToken {
		rotated := domain.Credential{
			AccessToken:  fresh.AccessToken,
			RefreshToken: cred.RefreshToken,
			ExpiresAt:    fresh.Expiry,
		}
		if fresh.RefreshToken != "" {
			rotated.RefreshToken = fresh.RefreshToken
		}
		if err := p.store.SaveCredential(ctx, user.ID, rotated); err != nil {
			return nil, fmt.Errorf("persist refreshed credential: %w", err)
		}
		user.Credential = rotated
		p.logger.Info("access token refreshed",
			logger.String("user_id", user.ID),
			logger.Time("expires_at", rotated.ExpiresAt))
	}

	return p.newHandle(ctx, oauth2.ReuseTokenSource(fresh, ts))
}

func googleHandle(ctx context.Context, ts oauth2.TokenSource) (gc.Client, error) {
	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return googleapi.NewClient(svc), nil
}
