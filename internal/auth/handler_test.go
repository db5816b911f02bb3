package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall-app/rollcall/internal/account"
	"github.com/rollcall-app/rollcall/internal/auth"
	"github.com/rollcall-app/rollcall/internal/auth/google"
	"github.com/rollcall-app/rollcall/internal/shared"
	"github.com/rollcall-app/rollcall/internal/view"
	_ "github.com/rollcall-app/rollcall/testing"
)

type stubStore struct {
	byEmail map[string]*account.Account
	nextID  int64
}

func newStubStore() *stubStore {
	return &stubStore{byEmail: make(map[string]*account.Account)}
}

func (s *stubStore) put(a account.Account) *account.Account {
	s.nextID++
	a.ID = s.nextID
	a.Email = account.NormalizeEmail(a.Email)
	s.byEmail[a.Email] = &a
	return &a
}

func (s *stubStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if a, ok := s.byEmail[account.NormalizeEmail(email)]; ok {
		return a, nil
	}
	return nil, account.ErrNotFound
}

func (s *stubStore) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	for _, a := range s.byEmail {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *stubStore) InsertIfAbsent(ctx context.Context, draft account.Draft) (*account.Account, error) {
	if _, ok := s.byEmail[draft.Email]; ok {
		return nil, account.ErrConflict
	}
	return s.put(account.Account{
		Email:        draft.Email,
		Name:         draft.Name,
		Role:         draft.Role,
		Status:       draft.Status,
		Provider:     draft.Provider,
		PasswordHash: draft.PasswordHash,
		LastLogin:    draft.LastLogin,
	}), nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, id int64, expected, next account.Status) (*account.Account, error) {
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != expected {
		return nil, account.ErrConflict
	}
	a.Status = next
	return a, nil
}

func (s *stubStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if at.After(a.LastLogin) {
		a.LastLogin = at
	}
	return nil
}

func (s *stubStore) UpdateRole(ctx context.Context, id int64, role account.Role) (*account.Account, error) {
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Role = role
	return a, nil
}

func (s *stubStore) List(ctx context.Context) ([]account.Account, error) {
	out := make([]account.Account, 0, len(s.byEmail))
	for _, a := range s.byEmail {
		out = append(out, *a)
	}
	return out, nil
}

func (s *stubStore) CountByStatus(ctx context.Context) (map[account.Status]int64, error) {
	counts := make(map[account.Status]int64)
	for _, a := range s.byEmail {
		counts[a.Status]++
	}
	return counts, nil
}

type stubNotifier struct {
	emails []string
}

func (n *stubNotifier) EnqueueAccountPendingNotify(ctx context.Context, email, name string) error {
	n.emails = append(n.emails, email)
	return nil
}

func newAuthHandler(t *testing.T, store account.Store, provider *google.Provider, notifier auth.PendingNotifier) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	service := account.NewService(store, nil, nil, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, service, provider, templates, sessionManager, csrfManager, nil, notifier)
	return handler, sessionManager
}

func withSession(t *testing.T, sessionManager *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	return req.WithContext(ctx), sess
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubStore(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	if err := sessionManager.Commit(req.Context(), res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	store := newStubStore()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.put(account.Account{
		Email:        "user@test.local",
		Name:         "Test User",
		Role:         account.RoleTeacher,
		Status:       account.StatusActive,
		Provider:     account.ProviderCredentials,
		PasswordHash: string(hashed),
	})
	handler, sessionManager := newAuthHandler(t, store, nil, nil)

	postData := url.Values{}
	postData.Set("email", "user@test.local")
	postData.Set("password", "wrongpass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email or password is invalid") {
		t.Fatalf("expected error message in response")
	}
}

func TestLoginUnknownEmailGetsSameMessage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubStore(), nil, nil)

	postData := url.Values{}
	postData.Set("email", "nobody@test.local")
	postData.Set("password", "whateverpass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email or password is invalid") {
		t.Fatalf("unknown email must get the same message as a wrong password")
	}
}

func TestLoginAcceptedEstablishesSession(t *testing.T) {
	store := newStubStore()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.put(account.Account{
		Email:        "user@test.local",
		Name:         "Test User",
		Role:         account.RoleTeacher,
		Status:       account.StatusActive,
		Provider:     account.ProviderCredentials,
		PasswordHash: string(hashed),
	})
	handler, sessionManager := newAuthHandler(t, store, nil, nil)

	postData := url.Values{}
	postData.Set("email", "user@test.local")
	postData.Set("password", "correctpass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if sess.User() != "1" {
		t.Fatalf("expected session user 1, got %q", sess.User())
	}
}

func TestLoginPendingAccountGetsNoSession(t *testing.T) {
	store := newStubStore()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.put(account.Account{
		Email:        "user@test.local",
		Name:         "Test User",
		Role:         account.RoleTeacher,
		Status:       account.StatusPending,
		Provider:     account.ProviderCredentials,
		PasswordHash: string(hashed),
	})
	handler, sessionManager := newAuthHandler(t, store, nil, nil)

	postData := url.Values{}
	postData.Set("email", "user@test.local")
	postData.Set("password", "correctpass")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/auth/login" {
		t.Fatalf("expected redirect back to login, got %q", loc)
	}
	if sess.User() != "" {
		t.Fatalf("pending account must not get a session, got user %q", sess.User())
	}
}

func newGoogleProvider(t *testing.T, profile string) *google.Provider {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer"}`))
	}))
	t.Cleanup(tokenServer.Close)
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profile))
	}))
	t.Cleanup(userInfoServer.Close)

	return google.New(google.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})
}

func TestGoogleCallbackCreatesPendingAccount(t *testing.T) {
	store := newStubStore()
	provider := newGoogleProvider(t, `{"sub":"g-1","email":"new.teacher@test.local","email_verified":true,"name":"New Teacher"}`)
	notifier := &stubNotifier{}
	handler, sessionManager := newAuthHandler(t, store, provider, notifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=abc&code=authcode", nil)
	req, sess := withSession(t, sessionManager, req)
	sess.Set("oauth_state", "abc")

	res := httptest.NewRecorder()
	handler.GoogleCallbackForTest(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/auth/login" {
		t.Fatalf("new pending account must be sent back to login, got %q", loc)
	}
	if sess.User() != "" {
		t.Fatalf("pending account must not get a session")
	}

	created, err := store.FindByEmail(context.Background(), "new.teacher@test.local")
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if created.Role != account.RoleTeacher || created.Status != account.StatusPending {
		t.Fatalf("expected pending teacher, got %s %s", created.Role, created.Status)
	}
	if len(notifier.emails) != 1 || notifier.emails[0] != "new.teacher@test.local" {
		t.Fatalf("expected one pending notification, got %v", notifier.emails)
	}
}

func TestGoogleCallbackAcceptsActiveAccount(t *testing.T) {
	store := newStubStore()
	existing := store.put(account.Account{
		Email:    "mary@test.local",
		Name:     "Mary",
		Role:     account.RoleTeacher,
		Status:   account.StatusActive,
		Provider: account.ProviderGoogle,
	})
	provider := newGoogleProvider(t, `{"sub":"g-2","email":"mary@test.local","email_verified":true,"name":"Mary"}`)
	handler, sessionManager := newAuthHandler(t, store, provider, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=abc&code=authcode", nil)
	req, sess := withSession(t, sessionManager, req)
	sess.Set("oauth_state", "abc")

	res := httptest.NewRecorder()
	handler.GoogleCallbackForTest(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if sess.User() != "1" {
		t.Fatalf("expected session user 1, got %q", sess.User())
	}
	if existing.LastLogin.IsZero() {
		t.Fatalf("accepted sign-in must record last login")
	}
}

func TestGoogleCallbackRejectsStateMismatch(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubStore(), newGoogleProvider(t, `{}`), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=evil&code=authcode", nil)
	req, sess := withSession(t, sessionManager, req)
	sess.Set("oauth_state", "good")

	res := httptest.NewRecorder()
	handler.GoogleCallbackForTest(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}
