package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/logger"
)

type fakeLoginStore struct {
	users    map[string]*domain.User
	sessions map[string]string
	ttls     map[string]time.Duration

	saveUserErr error
}

func newFakeLoginStore() *fakeLoginStore {
	return &fakeLoginStore{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]string),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeLoginStore) SaveUser(ctx context.Context, user *domain.User) error {
	_ = ctx
	if f.saveUserErr != nil {
		return f.saveUserErr
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeLoginStore) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	_ = ctx
	f.sessions[token] = userID
	f.ttls[token] = ttl
	return nil
}

func (f *fakeLoginStore) DeleteSession(ctx context.Context, token string) error {
	_ = ctx
	delete(f.sessions, token)
	return nil
}

func newTestLogin(store *fakeLoginStore, tok *oauth2.Token, exchangeErr error, email string) *Login {
	tokens := 0
	return &Login{
		cfg:    &oauth2.Config{ClientID: "cid", Endpoint: oauth2.Endpoint{AuthURL: "https://auth.example/consent"}},
		store:  store,
		ttl:    time.Hour,
		logger: logger.New("error", false),
		exchange: func(ctx context.Context, code string) (*oauth2.Token, error) {
			if exchangeErr != nil {
				return nil, exchangeErr
			}
			return tok, nil
		},
		profile: func(ctx context.Context, ts oauth2.TokenSource) (string, error) {
			if email == "" {
				return "", errors.New("profile unavailable")
			}
			return email, nil
		},
		newToken: func() (string, error) {
			tokens++
			return fmt.Sprintf("token-%d", tokens), nil
		},
	}
}

func TestAuthURLCarriesOfflineConsentAndState(t *testing.T) {
	l := newTestLogin(newFakeLoginStore(), nil, nil, "")

	url, state, err := l.AuthURL()
	if err != nil {
		t.Fatalf("AuthURL: %v", err)
	}
	if state == "" {
		t.Fatalf("state must be non-empty")
	}
	for _, want := range []string{"state=" + state, "access_type=offline", "prompt=consent"} {
		if !strings.Contains(url, want) {
			t.Fatalf("url %q missing %q", url, want)
		}
	}
}

func TestCallbackCreatesUserAndSession(t *testing.T) {
	store := newFakeLoginStore()
	expiry := time.Unix(1700000000, 0)
	l := newTestLogin(store, &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       expiry,
	}, nil, " Me@Example.COM ")

	token, user, err := l.Callback(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if user.ID != "me@example.com" {
		t.Fatalf("user ID = %q, want normalized address", user.ID)
	}

	saved, ok := store.users[user.ID]
	if !ok {
		t.Fatalf("user was not persisted")
	}
	if saved.Credential.AccessToken != "at" || saved.Credential.RefreshToken != "rt" {
		t.Fatalf("credential not stored: %+v", saved.Credential)
	}
	if !saved.Credential.ExpiresAt.Equal(expiry) {
		t.Fatalf("expiry = %v", saved.Credential.ExpiresAt)
	}

	if store.sessions[token] != user.ID {
		t.Fatalf("session %q does not resolve to %q", token, user.ID)
	}
	if store.ttls[token] != time.Hour {
		t.Fatalf("session ttl = %v, want the configured lifetime", store.ttls[token])
	}
}

func TestCallbackExchangeFailureIsReauthAndSavesNothing(t *testing.T) {
	store := newFakeLoginStore()
	l := newTestLogin(store, nil, errors.New("invalid_grant"), "me@example.com")

	_, _, err := l.Callback(context.Background(), "bad-code")
	if !errors.Is(err, domain.ErrReauthRequired) {
		t.Fatalf("err = %v, want ErrReauthRequired", err)
	}
	if len(store.users) != 0 || len(store.sessions) != 0 {
		t.Fatalf("failed exchange must not persist anything")
	}
}

func TestCallbackProfileFailureSavesNothing(t *testing.T) {
	store := newFakeLoginStore()
	l := newTestLogin(store, &oauth2.Token{AccessToken: "at"}, nil, "")

	if _, _, err := l.Callback(context.Background(), "code-1"); err == nil {
		t.Fatalf("expected error when the profile lookup fails")
	}
	if len(store.users) != 0 || len(store.sessions) != 0 {
		t.Fatalf("failed profile lookup must not persist anything")
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	store := newFakeLoginStore()
	store.sessions["tok-1"] = "me@example.com"
	l := newTestLogin(store, nil, nil, "")

	if err := l.Logout(context.Background(), "tok-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := store.sessions["tok-1"]; ok {
		t.Fatalf("session survived logout")
	}

	// Empty and unknown tokens are no-ops.
	if err := l.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout with empty token: %v", err)
	}
	if err := l.Logout(context.Background(), "never-issued"); err != nil {
		t.Fatalf("Logout with unknown token: %v", err)
	}
}
