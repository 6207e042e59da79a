package unsub

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/logger"
)

type fakeStore struct {
	services map[string]*domain.Service
	members  map[string]map[string]bool
	totals   map[string]int64
	unsubbed map[string]int64

	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services: make(map[string]*domain.Service),
		members:  make(map[string]map[string]bool),
		totals:   make(map[string]int64),
		unsubbed: make(map[string]int64),
	}
}

func (f *fakeStore) seed(userID string, svc *domain.Service) {
	f.services[svc.EmailID] = svc
	if f.members[userID] == nil {
		f.members[userID] = make(map[string]bool)
	}
	f.members[userID][svc.EmailID] = true
	f.totals[userID]++
}

func (f *fakeStore) GetService(ctx context.Context, emailID string) (*domain.Service, error) {
	_ = ctx
	svc, ok := f.services[emailID]
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return svc, nil
}

func (f *fakeStore) OwnsService(ctx context.Context, userID, emailID string) (bool, error) {
	_ = ctx
	return f.members[userID][emailID], nil
}

func (f *fakeStore) DeleteService(ctx context.Context, emailID string) error {
	_ = ctx
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.services, emailID)
	return nil
}

func (f *fakeStore) RemoveUserService(ctx context.Context, userID, emailID string) error {
	_ = ctx
	delete(f.members[userID], emailID)
	return nil
}

func (f *fakeStore) IncrTotalServices(ctx context.Context, userID string, delta int64) (int64, error) {
	_ = ctx
	f.totals[userID] += delta
	return f.totals[userID], nil
}

func (f *fakeStore) IncrUnsubscribed(ctx context.Context, userID string, delta int64) (int64, error) {
	_ = ctx
	f.unsubbed[userID] += delta
	return f.unsubbed[userID], nil
}

func discardLogger() logger.Logger {
	return logger.New("error", false)
}

func assertFreshSlate(t *testing.T, store *fakeStore, user *domain.User, emailID string) {
	t.Helper()
	if _, ok := store.services[emailID]; ok {
		t.Fatalf("service document must be deleted")
	}
	if store.members[user.ID][emailID] {
		t.Fatalf("membership must be removed")
	}
	if store.totals[user.ID] != 0 {
		t.Fatalf("totalServices = %d, want 0", store.totals[user.ID])
	}
	if store.unsubbed[user.ID] != 1 {
		t.Fatalf("unsubscribedCount = %d, want 1", store.unsubbed[user.ID])
	}
	if user.TotalServices != 0 || user.UnsubscribedCount != 1 {
		t.Fatalf("user counters not synced: total=%d unsubbed=%d",
			user.TotalServices, user.UnsubscribedCount)
	}
}

func TestUnsubscribeOneClick(t *testing.T) {
	var gotMethod, gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	user := &domain.User{ID: "u1", TotalServices: 1}
	store.seed("u1", &domain.Service{
		EmailID:           "news@a.com",
		UnsubscribeURL:    srv.URL,
		OneClickSupported: true,
	})

	exec := NewExecutor(store, srv.Client(), discardLogger())
	out, err := exec.Unsubscribe(context.Background(), user, "news@a.com")
	if err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if out.RedirectURL != "" {
		t.Fatalf("one-click path must not issue a redirect, got %q", out.RedirectURL)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s, want POST", gotMethod)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content-type = %q", gotContentType)
	}
	if gotBody != "List-Unsubscribe=One-Click" {
		t.Fatalf("body = %q", gotBody)
	}
	assertFreshSlate(t, store, user, "news@a.com")
}

func TestUnsubscribeOneClickFailureFallsBackToRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore()
	user := &domain.User{ID: "u1", TotalServices: 1}
	store.seed("u1", &domain.Service{
		EmailID:           "news@a.com",
		UnsubscribeURL:    srv.URL,
		OneClickSupported: true,
	})

	exec := NewExecutor(store, srv.Client(), discardLogger())
	out, err := exec.Unsubscribe(context.Background(), user, "news@a.com")
	if err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if out.RedirectURL != srv.URL {
		t.Fatalf("redirect = %q, want %q", out.RedirectURL, srv.URL)
	}
	assertFreshSlate(t, store, user, "news@a.com")
}

func TestUnsubscribeRedirectOnly(t *testing.T) {
	store := newFakeStore()
	user := &domain.User{ID: "u1", TotalServices: 1}
	store.seed("u1", &domain.Service{
		EmailID:        "deals@b.com",
		UnsubscribeURL: "https://b.com/unsub",
	})

	exec := NewExecutor(store, nil, discardLogger())
	out, err := exec.Unsubscribe(context.Background(), user, "deals@b.com")
	if err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if out.RedirectURL != "https://b.com/unsub" {
		t.Fatalf("redirect = %q", out.RedirectURL)
	}
	assertFreshSlate(t, store, user, "deals@b.com")
}

func TestUnsubscribeMailtoOnlyHasNoMethod(t *testing.T) {
	store := newFakeStore()
	user := &domain.User{ID: "u1", TotalServices: 1}
	store.seed("u1", &domain.Service{
		EmailID:           "list@c.com",
		UnsubscribeMailto: "mailto:leave@c.com",
	})

	exec := NewExecutor(store, nil, discardLogger())
	_, err := exec.Unsubscribe(context.Background(), user, "list@c.com")
	if !errors.Is(err, domain.ErrNoUnsubscribeMethod) {
		t.Fatalf("expected ErrNoUnsubscribeMethod, got %v", err)
	}
	// No method means no mutation.
	if _, ok := store.services["list@c.com"]; !ok {
		t.Fatalf("service must be untouched")
	}
	if store.totals["u1"] != 1 || store.unsubbed["u1"] != 0 {
		t.Fatalf("counters moved: total=%d unsubbed=%d", store.totals["u1"], store.unsubbed["u1"])
	}
}

func TestUnsubscribeRejectsForeignService(t *testing.T) {
	store := newFakeStore()
	owner := &domain.User{ID: "u1", TotalServices: 1}
	store.seed("u1", &domain.Service{
		EmailID:        "news@a.com",
		UnsubscribeURL: "https://a.com/unsub",
	})

	exec := NewExecutor(store, nil, discardLogger())
	_, err := exec.Unsubscribe(context.Background(), &domain.User{ID: "u2"}, "news@a.com")
	if !errors.Is(err, domain.ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
	if store.totals[owner.ID] != 1 {
		t.Fatalf("owner counters must be untouched")
	}
}

func TestUnsubscribeUnknownService(t *testing.T) {
	store := newFakeStore()
	store.members["u1"] = map[string]bool{"ghost@a.com": true}

	exec := NewExecutor(store, nil, discardLogger())
	_, err := exec.Unsubscribe(context.Background(), &domain.User{ID: "u1"}, "ghost@a.com")
	if !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}
