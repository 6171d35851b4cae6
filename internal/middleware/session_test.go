package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"idphoto/internal/session"
)

func TestSessions_CreatesAndReuses(t *testing.T) {
	store := session.NewStore(0)
	var seen *session.Session
	h := Sessions(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == nil {
		t.Fatal("expected session in context")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].Value != seen.ID() {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	first := seen

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != first {
		t.Fatal("expected the same session for the same cookie")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie should not be reissued for a live session")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", store.Len())
	}
}

func TestSessions_UnknownCookieGetsNewSession(t *testing.T) {
	store := session.NewStore(0)
	var seen *session.Session
	h := Sessions(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == nil || seen.ID() == "forged" {
		t.Fatalf("expected a fresh session, got %v", seen)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Error("expected a new session cookie")
	}
}

func TestSessionFrom_Empty(t *testing.T) {
	if SessionFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Fatal("expected nil session")
	}
}
