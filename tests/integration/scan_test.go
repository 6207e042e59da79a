package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trimbox/trimbox/internal/domain"
	"github.com/trimbox/trimbox/internal/gmail"
	"github.com/trimbox/trimbox/internal/httpserver/deps"
	"github.com/trimbox/trimbox/internal/httpserver/mw"
	"github.com/trimbox/trimbox/internal/httpserver/routes"
	"github.com/trimbox/trimbox/internal/logger"
	"github.com/trimbox/trimbox/internal/scan"
	"github.com/trimbox/trimbox/internal/unsub"
)

// memStore is an in-memory stand-in for the redis store, covering the
// surfaces the engine, the unsubscribe executor and the session middleware
// need.
type memStore struct {
	mu       sync.Mutex
	services map[string]*domain.Service
	members  map[string]map[string]bool
	totals   map[string]int64
	unsubbed map[string]int64
	lastScan map[string]time.Time
	sessions map[string]*domain.User
}

func newMemStore() *memStore {
	return &memStore{
		services: make(map[string]*domain.Service),
		members:  make(map[string]map[string]bool),
		totals:   make(map[string]int64),
		unsubbed: make(map[string]int64),
		lastScan: make(map[string]time.Time),
		sessions: make(map[string]*domain.User),
	}
}

func (m *memStore) UpsertService(ctx context.Context, upd domain.ServiceUpdate) (*domain.Service, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[upd.EmailID]
	if !ok {
		svc = &domain.Service{EmailID: upd.EmailID, CreatedAt: time.Now()}
		m.services[upd.EmailID] = svc
	}
	svc.Name = upd.Name
	svc.Domain = upd.Domain
	svc.Description = upd.Description
	svc.IconURL = upd.IconURL
	svc.LastEmailSubject = upd.LastEmailSubject
	if upd.LastEmailDate.After(svc.LastEmailDate) {
		svc.LastEmailDate = upd.LastEmailDate
	}
	svc.RecentEmails = upd.RecentEmails
	svc.EmailCount += upd.NewCount
	if upd.UnsubscribeURL != "" {
		svc.UnsubscribeURL = upd.UnsubscribeURL
	}
	if upd.UnsubscribeMailto != "" {
		svc.UnsubscribeMailto = upd.UnsubscribeMailto
	}
	if upd.OneClickSupported {
		svc.OneClickSupported = true
	}
	svc.UpdatedAt = time.Now()
	return svc, nil
}

func (m *memStore) AddUserServices(ctx context.Context, userID string, emailIDs []string) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.members[userID]
	if set == nil {
		set = make(map[string]bool)
		m.members[userID] = set
	}
	var added int64
	for _, id := range emailIDs {
		if !set[id] {
			set[id] = true
			added++
		}
	}
	return added, nil
}

func (m *memStore) IncrTotalServices(ctx context.Context, userID string, delta int64) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[userID] += delta
	return m.totals[userID], nil
}

func (m *memStore) UserServices(ctx context.Context, userID string) ([]*domain.Service, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Service
	for id := range m.members[userID] {
		if svc, ok := m.services[id]; ok {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastEmailDate.After(out[j].LastEmailDate)
	})
	return out, nil
}

func (m *memStore) SetLastScan(ctx context.Context, userID string, at time.Time) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastScan[userID] = at
	return nil
}

func (m *memStore) GetService(ctx context.Context, emailID string) (*domain.Service, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[emailID]
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return svc, nil
}

func (m *memStore) OwnsService(ctx context.Context, userID, emailID string) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[userID][emailID], nil
}

func (m *memStore) DeleteService(ctx context.Context, emailID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, emailID)
	return nil
}

func (m *memStore) RemoveUserService(ctx context.Context, userID, emailID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[userID], emailID)
	return nil
}

func (m *memStore) IncrUnsubscribed(ctx context.Context, userID string, delta int64) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubbed[userID] += delta
	return m.unsubbed[userID], nil
}

func (m *memStore) UserBySession(ctx context.Context, token string) (*domain.User, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.sessions[token]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// fakeAuth stands in for the OAuth consent flow: a fixed state and a session
// that lands straight in the store.
type fakeAuth struct {
	store *memStore
	user  *domain.User
}

func (f *fakeAuth) AuthURL() (string, string, error) {
	return "https://accounts.example/consent", "state-1", nil
}

func (f *fakeAuth) Callback(ctx context.Context, code string) (string, *domain.User, error) {
	_ = ctx
	if code != "good-code" {
		return "", nil, domain.ErrReauthRequired
	}
	f.store.mu.Lock()
	f.store.sessions["tok-login"] = f.user
	f.store.mu.Unlock()
	return "tok-login", f.user, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	_ = ctx
	f.store.mu.Lock()
	delete(f.store.sessions, token)
	f.store.mu.Unlock()
	return nil
}

// scriptedMail serves scripted pages once, then empty listings. It stands in
// for both the authenticated handle and its provider.
type scriptedMail struct {
	mu       sync.Mutex
	pages    []gmail.ListPage
	messages map[gmail.MessageID]gmail.Message
	unread   int64
}

// deliver queues one more listing page and its messages, as if new mail
// arrived between scans.
func (s *scriptedMail) deliver(page gmail.ListPage, msgs ...gmail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, page)
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
}

func (s *scriptedMail) Handle(ctx context.Context, user *domain.User) (gmail.Client, error) {
	_ = ctx
	_ = user
	return s, nil
}

func (s *scriptedMail) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	_ = pageSize
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return gmail.ListPage{}, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *scriptedMail) Get(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	return s.messages[id], nil
}

func (s *scriptedMail) UnreadCount(ctx context.Context) (int64, error) {
	_ = ctx
	return s.unread, nil
}

func newsletter(id, from, subject string, date int64, unsubURL string, oneClick bool) gmail.Message {
	headers := []gmail.Header{
		{Name: "From", Value: from},
		{Name: "Subject", Value: subject},
		{Name: "List-Unsubscribe", Value: "<" + unsubURL + ">"},
	}
	if oneClick {
		headers = append(headers, gmail.Header{
			Name: "List-Unsubscribe-Post", Value: "List-Unsubscribe=One-Click",
		})
	}
	return gmail.Message{
		ID:           gmail.MessageID(id),
		ThreadID:     "t-" + id,
		InternalDate: date,
		Snippet:      "snippet " + id,
		Headers:      headers,
	}
}

func newTestServer(t *testing.T, store *memStore, mail *scriptedMail) *httptest.Server {
	t.Helper()
	log := logger.New("error", false)

	scanner := scan.NewService(mail, store, scan.Config{
		Budget: time.Minute,
		Pager:  scan.PagerConfig{PageSize: 50, PageDelay: time.Millisecond},
	}, log)
	unsubscriber := unsub.NewExecutor(store, nil, log)

	d := deps.Deps{
		Logger:       log,
		StartTime:    time.Now(),
		TimeNow:      time.Now,
		Sessions:     store,
		Auth:         &fakeAuth{store: store, user: &domain.User{ID: "login-user", Email: "login@example.com"}},
		SessionTTL:   time.Hour,
		Scanner:      scanner,
		Unsubscriber: unsubscriber,
		Mail:         mail,
	}

	r := chi.NewRouter()
	routes.RegisterAll(r, d)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestScanAndUnsubscribeFlow(t *testing.T) {
	store := newMemStore()
	user := &domain.User{ID: "u1", Email: "me@example.com"}
	store.sessions["tok-1"] = user

	mail := &scriptedMail{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2", "m3"}}},
		messages: map[gmail.MessageID]gmail.Message{
			"m1": newsletter("m1", "News <news@a.com>", "issue 1", 1000, "https://a.com/u", false),
			"m2": newsletter("m2", "News <news@a.com>", "issue 2", 2000, "https://a.com/u", false),
			"m3": newsletter("m3", "Deals <deals@b.com>", "sale", 1500, "https://b.com/u", false),
		},
		unread: 7,
	}
	srv := newTestServer(t, store, mail)

	// Scan discovers two senders.
	var result domain.ScanResult
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/subscriptions", "tok-1", &result); code != http.StatusOK {
		t.Fatalf("scan status = %d", code)
	}
	if result.TotalServices != 2 {
		t.Fatalf("totalServicesCount = %d, want 2", result.TotalServices)
	}
	if len(result.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(result.Services))
	}
	// Newest mail first: news@a.com carries the newer message.
	if result.Services[0].EmailID != "news@a.com" {
		t.Fatalf("first service = %s, want news@a.com", result.Services[0].EmailID)
	}
	if result.Services[0].EmailCount != 2 {
		t.Fatalf("news@a.com emailCount = %d, want 2", result.Services[0].EmailCount)
	}

	// Unsubscribe from the second sender via redirect.
	var outcome unsub.Outcome
	code := doJSON(t, http.MethodPost,
		srv.URL+"/api/subscriptions/deals@b.com/unsubscribe", "tok-1", &outcome)
	if code != http.StatusOK {
		t.Fatalf("unsubscribe status = %d", code)
	}
	if outcome.RedirectURL != "https://b.com/u" {
		t.Fatalf("redirect = %q", outcome.RedirectURL)
	}

	// A rescan with no new mail shows the fresh slate.
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/subscriptions", "tok-1", &result); code != http.StatusOK {
		t.Fatalf("rescan status = %d", code)
	}
	if result.TotalServices != 1 {
		t.Fatalf("totalServicesCount after unsubscribe = %d, want 1", result.TotalServices)
	}
	if len(result.Services) != 1 || result.Services[0].EmailID != "news@a.com" {
		t.Fatalf("unexpected services after unsubscribe: %+v", result.Services)
	}

	// New mail from the unsubscribed sender: it comes back as a brand-new
	// service whose count covers only the new messages, and the user's
	// total grows again.
	mail.deliver(gmail.ListPage{IDs: []gmail.MessageID{"m4", "m5"}},
		newsletter("m4", "Deals <deals@b.com>", "we are back", 5000, "https://b.com/u", false),
		newsletter("m5", "Deals <deals@b.com>", "still here", 6000, "https://b.com/u", false))

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/subscriptions", "tok-1", &result); code != http.StatusOK {
		t.Fatalf("rediscovery scan status = %d", code)
	}
	if result.TotalServices != 2 {
		t.Fatalf("totalServicesCount after rediscovery = %d, want 2", result.TotalServices)
	}
	if result.Services[0].EmailID != "deals@b.com" {
		t.Fatalf("first service = %s, want the rediscovered deals@b.com", result.Services[0].EmailID)
	}
	if result.Services[0].EmailCount != 2 {
		t.Fatalf("rediscovered emailCount = %d, want only the new run's count", result.Services[0].EmailCount)
	}
	if result.Services[0].IsUnsubscribed {
		t.Fatalf("rediscovered service must not carry the old unsubscribed flag")
	}

	// Unread count comes straight from the mailbox.
	var unread struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/unread", "tok-1", &unread); code != http.StatusOK {
		t.Fatalf("unread status = %d", code)
	}
	if unread.UnreadCount != 7 {
		t.Fatalf("unreadCount = %d, want 7", unread.UnreadCount)
	}
}

func TestRejectsMissingSession(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(t, store, &scriptedMail{})

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/subscriptions", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("status without session = %d, want 401", code)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/subscriptions", "bogus", nil); code != http.StatusUnauthorized {
		t.Fatalf("status with bogus session = %d, want 401", code)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(t, store, &scriptedMail{
		messages: map[gmail.MessageID]gmail.Message{},
		unread:   3,
	})

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// The consent redirect carries the state cookie.
	resp, err := client.Get(srv.URL + "/google")
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://accounts.example/consent" {
		t.Fatalf("login redirect = %q", loc)
	}
	var state *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "trimbox_oauth_state" {
			state = c
		}
	}
	if state == nil || state.Value == "" {
		t.Fatalf("no state cookie set on login redirect")
	}

	// A callback without the matching state is rejected.
	resp, err = client.Get(srv.URL + "/google/callback?state=" + state.Value + "&code=good-code")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("callback without state cookie = %d, want 400", resp.StatusCode)
	}

	// The real callback opens a session and sets the cookie.
	req, err := http.NewRequest(http.MethodGet,
		srv.URL+"/google/callback?state="+state.Value+"&code=good-code", nil)
	if err != nil {
		t.Fatalf("build callback request: %v", err)
	}
	req.AddCookie(state)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d, want 302", resp.StatusCode)
	}
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == mw.SessionCookie && c.Value != "" {
			session = c
		}
	}
	if session == nil {
		t.Fatalf("no session cookie set by callback")
	}

	// The session works against the API.
	var unread struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/unread", session.Value, &unread); code != http.StatusOK {
		t.Fatalf("unread with fresh session = %d, want 200", code)
	}
	if unread.UnreadCount != 3 {
		t.Fatalf("unreadCount = %d, want 3", unread.UnreadCount)
	}

	// Logout kills the session.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/logout", nil)
	if err != nil {
		t.Fatalf("build logout request: %v", err)
	}
	req.AddCookie(session)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("logout status = %d, want 302", resp.StatusCode)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/unread", session.Value, nil); code != http.StatusUnauthorized {
		t.Fatalf("unread after logout = %d, want 401", code)
	}
}
