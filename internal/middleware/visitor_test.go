package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/visitor"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestVisitorMiddleware_NewVisitorGetsCookie(t *testing.T) {
	r := newTestRegistry(t, &stubAuthenticator{})
	mw := NewVisitorMiddleware(r, VisitorConfig{MaxAge: 3600})

	var seen *visitor.Visitor
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = VisitorFromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil {
		t.Fatal("visitor should be injected into context")
	}
	cookie := findCookie(w.Result(), visitorCookieName)
	if cookie == nil {
		t.Fatal("visitor cookie should be set")
	}
	if cookie.Value != seen.ID {
		t.Errorf("cookie = %q, want %q", cookie.Value, seen.ID)
	}
	if !cookie.HttpOnly {
		t.Error("visitor cookie must be HttpOnly")
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", cookie.MaxAge)
	}
	if r.Len() != 1 {
		t.Errorf("registry size = %d, want 1", r.Len())
	}
}

func TestVisitorMiddleware_ReusesExistingVisitor(t *testing.T) {
	r := newTestRegistry(t, &stubAuthenticator{})
	existing := r.Create("")
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	var seen *visitor.Visitor
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = VisitorFromContext(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: existing.ID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != existing {
		t.Error("existing visitor should be reused")
	}
	if findCookie(w.Result(), visitorCookieName) != nil {
		t.Error("visitor cookie should not be reissued")
	}
	if r.Len() != 1 {
		t.Errorf("registry size = %d, want 1", r.Len())
	}
}

// TestVisitorMiddleware_RestoresFromRefreshCookie は訪問者が失われても
// リフレッシュトークンのCookieからログインが復元されることを検証する。
func TestVisitorMiddleware_RestoresFromRefreshCookie(t *testing.T) {
	auth := &stubAuthenticator{
		refreshFn: func(rt string) (*model.Session, error) {
			if rt != "stored-refresh" {
				return nil, &model.InvalidCredentialError{Reason: "unknown"}
			}
			return refreshedSession("rotated-refresh"), nil
		},
	}
	r := newTestRegistry(t, auth)
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		v := VisitorFromContext(req.Context())
		st := waitState(t, v, loaded)
		if st.Phase != session.PhaseAuthenticated {
			t.Errorf("Phase = %v, want %v", st.Phase, session.PhaseAuthenticated)
		}
		if id, err := UserIDFromContext(req.Context()); err != nil || id != "u-restored" {
			t.Errorf("UserIDFromContext() = %q, %v", id, err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: "gone"})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "stored-refresh"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookie := findCookie(w.Result(), refreshCookieName)
	if cookie == nil {
		t.Fatal("rotated refresh token should be written back")
	}
	if cookie.Value != "rotated-refresh" {
		t.Errorf("refresh cookie = %q, want rotated-refresh", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("refresh cookie must be HttpOnly")
	}
}

func TestVisitorMiddleware_RejectedRefreshCookieIsCleared(t *testing.T) {
	auth := &stubAuthenticator{}
	r := newTestRegistry(t, auth)
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		st := waitState(t, VisitorFromContext(req.Context()), loaded)
		if st.Phase != session.PhaseAnonymous {
			t.Errorf("Phase = %v, want %v", st.Phase, session.PhaseAnonymous)
		}
		if st.Err != nil {
			t.Errorf("Err = %v, want nil for rejected credential", st.Err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "revoked"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookie := findCookie(w.Result(), refreshCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("refresh cookie should be deleted, got %+v", cookie)
	}
}

// TestVisitorMiddleware_RefreshesExpiringSession は期限切れ間近のアクセストークンが
// リクエスト時にリフレッシュされることを検証する。
func TestVisitorMiddleware_RefreshesExpiringSession(t *testing.T) {
	auth := &stubAuthenticator{
		expiresIn: time.Second,
		refreshFn: func(rt string) (*model.Session, error) {
			return refreshedSession("r2"), nil
		},
	}
	r := newTestRegistry(t, auth)
	v := signedInVisitor(t, r, "hanako@example.com")
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: v.ID})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "r1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := v.Gateway.CurrentRefreshToken(); got != "r2" {
		t.Errorf("CurrentRefreshToken() = %q, want r2", got)
	}
	cookie := findCookie(w.Result(), refreshCookieName)
	if cookie == nil || cookie.Value != "r2" {
		t.Errorf("refresh cookie = %+v, want r2", cookie)
	}
}

func TestVisitorMiddleware_RejectedRefreshSignsOut(t *testing.T) {
	auth := &stubAuthenticator{expiresIn: time.Second}
	r := newTestRegistry(t, auth)
	v := signedInVisitor(t, r, "hanako@example.com")
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if v.Gateway.CurrentRefreshToken() != "" {
			t.Error("rejected session should be discarded before the handler runs")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: v.ID})
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "r1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if auth.signOutCount() != 1 {
		t.Errorf("sign outs = %d, want 1", auth.signOutCount())
	}
	waitState(t, v, func(s session.State) bool { return s.Phase == session.PhaseAnonymous })
	cookie := findCookie(w.Result(), refreshCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("refresh cookie should be deleted, got %+v", cookie)
	}
}

func TestVisitorMiddleware_ClosedRegistryReturns503(t *testing.T) {
	r := newTestRegistry(t, &stubAuthenticator{})
	r.Close()
	mw := NewVisitorMiddleware(r, VisitorConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestUserIDFromContext(t *testing.T) {
	r := newTestRegistry(t, &stubAuthenticator{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("UserIDFromContext() without visitor should fail")
	}

	anon := r.Create("")
	waitState(t, anon, loaded)
	if _, err := UserIDFromContext(ContextWithVisitor(req.Context(), anon)); err == nil {
		t.Error("UserIDFromContext() for anonymous visitor should fail")
	}

	v := signedInVisitor(t, r, "taro@example.com")
	id, err := UserIDFromContext(ContextWithVisitor(req.Context(), v))
	if err != nil || id != "u-taro@example.com" {
		t.Errorf("UserIDFromContext() = %q, %v", id, err)
	}
}
