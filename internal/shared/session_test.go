package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rollcall-app/rollcall/internal/shared"
	_ "github.com/rollcall-app/rollcall/testing"
)

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "rollcall_session", "test-secret", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newSessionManager(t)
	if sm.CookieName() != "rollcall_session" {
		t.Fatalf("cookie name: %q", sm.CookieName())
	}
	if sm.TTL() != time.Hour {
		t.Fatalf("ttl: %v", sm.TTL())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("42")
	sess.Set("theme", "dark")

	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookies := res.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected a session cookie")
	}

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookies[0])
	loaded, err := sm.Load(context.Background(), again)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.User() != "42" {
		t.Fatalf("expected user 42, got %q", loaded.User())
	}
	if loaded.Get("theme") != "dark" {
		t.Fatalf("expected stored value to survive the round trip")
	}
}

func TestSessionFlashSurvivesOneCycle(t *testing.T) {
	sm := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "saved"})

	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(res.Result().Cookies()[0])
	loaded, err := sm.Load(context.Background(), again)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	flash := loaded.PopFlash()
	if flash == nil || flash.Message != "saved" {
		t.Fatalf("expected flash to survive one cycle, got %+v", flash)
	}
	if loaded.PopFlash() != nil {
		t.Fatalf("flash must pop exactly once")
	}
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("7")

	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookie := res.Result().Cookies()[0]

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), again)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	sm.Destroy(loaded)

	res = httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, again, loaded); err != nil {
		t.Fatalf("commit destroy: %v", err)
	}
	cleared := res.Result().Cookies()
	if len(cleared) == 0 || cleared[0].MaxAge != -1 {
		t.Fatalf("expected an expiring cookie after destroy")
	}

	final := httptest.NewRequest(http.MethodGet, "/", nil)
	final.AddCookie(cookie)
	fresh, err := sm.Load(context.Background(), final)
	if err != nil {
		t.Fatalf("load after destroy: %v", err)
	}
	if fresh.User() != "" {
		t.Fatalf("destroyed session must not resolve a user")
	}
}
