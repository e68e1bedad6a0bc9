package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

func newTestCSRFHandler(t *testing.T, called *bool) http.Handler {
	t.Helper()
	mw := NewCSRFMiddleware(CSRFConfig{CookieSecure: false})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

// cookieAuthRequest はトークンCookieで認証された状態変更リクエストを生成する。
func cookieAuthRequest(method string) *http.Request {
	req := httptest.NewRequest(method, "/api/tasks", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "session-token"})
	return req
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := newTestCSRFHandler(t, &called)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, cookieAuthRequest(method))

			if !called {
				t.Fatalf("handler should have been called for %s request", method)
			}
		})
	}
}

func TestCSRFMiddleware_CookieAuth_StateMutatingMethods_RequireToken(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := newTestCSRFHandler(t, &called)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, cookieAuthRequest(method))

			if called {
				t.Fatalf("handler should not be called for %s without CSRF token", method)
			}
			if w.Result().StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
			}
		})
	}
}

func TestCSRFMiddleware_CookieAuth_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		cookieToken string
		headerToken string
	}{
		{"Cookieなし", "", "token-abc"},
		{"ヘッダーなし", "token-abc", ""},
		{"不一致", "token-abc", "wrong-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newTestCSRFHandler(t, &called)

			req := cookieAuthRequest(http.MethodPost)
			if tt.cookieToken != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookieToken})
			}
			if tt.headerToken != "" {
				req.Header.Set(csrfHeaderName, tt.headerToken)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if called {
				t.Fatal("handler should not be called")
			}
			resp := w.Result()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Code != model.ErrCodeCSRFTokenInvalid {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFTokenInvalid)
			}
		})
	}
}

func TestCSRFMiddleware_CookieAuth_ValidToken_PassesThrough(t *testing.T) {
	called := false
	handler := newTestCSRFHandler(t, &called)

	req := cookieAuthRequest(http.MethodPatch)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "valid-token"})
	req.Header.Set(csrfHeaderName, "valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should have been called with valid token")
	}
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestCSRFMiddleware_BearerAuth_Exempt(t *testing.T) {
	called := false
	handler := newTestCSRFHandler(t, &called)

	// Bearerヘッダーがあれば、トークンCookieが同時に送られていても検証しない
	req := cookieAuthRequest(http.MethodPost)
	req.Header.Set("Authorization", "Bearer api-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should have been called for bearer-authenticated request")
	}
}

func TestCSRFMiddleware_NoAmbientCredentials_Exempt(t *testing.T) {
	called := false
	handler := newTestCSRFHandler(t, &called)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should have been called for request without token cookie")
	}
}

func TestCSRFMiddleware_GETRequest_SetsCSRFCookie(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{
		CookieSecure: true,
		CookieDomain: "example.com",
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	csrfCookie := findCookie(w.Result().Cookies(), csrfCookieName)
	if csrfCookie == nil {
		t.Fatal("expected CSRF cookie to be set on GET request")
	}
	if csrfCookie.Value == "" {
		t.Error("CSRF cookie value should not be empty")
	}
	if csrfCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("CSRF cookie SameSite = %v, want %v", csrfCookie.SameSite, http.SameSiteLaxMode)
	}
	if csrfCookie.HttpOnly {
		t.Error("CSRF cookie should NOT be HttpOnly (frontend needs to read it)")
	}
	if !csrfCookie.Secure {
		t.Error("CSRF cookie should be Secure when configured")
	}
}

func TestCSRFMiddleware_GETRequest_ExistingCookie_DoesNotReplace(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if findCookie(w.Result().Cookies(), csrfCookieName) != nil {
		t.Error("CSRF cookie should not be re-set when already present")
	}
}

// --- CSRFトークン取得エンドポイントのテスト ---

func TestCSRFTokenHandler_SetsTokenCookieAndReturnsJSON(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{CookieDomain: "example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token in response")
	}

	csrfCookie := findCookie(resp.Cookies(), csrfCookieName)
	if csrfCookie == nil {
		t.Fatal("expected CSRF cookie to be set")
	}
	if csrfCookie.Value != body.Token {
		t.Errorf("cookie value = %q, response token = %q; should match", csrfCookie.Value, body.Token)
	}
}

func TestCSRFTokenHandler_ExistingCookie_ReturnsSameToken(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token != "existing-csrf-token" {
		t.Errorf("token = %q, want %q (existing token should be returned)", body.Token, "existing-csrf-token")
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
