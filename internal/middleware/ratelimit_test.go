package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

func newTestRateLimiter(t *testing.T, generalBurst, authBurst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		AuthRate:        1,
		AuthBurst:       authBurst,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// userRequest はユーザーIDをコンテキストに持つリクエストを生成する。
func userRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

// ipRequest は指定IPから送信されたリクエストを生成する。
func ipRequest(method, path, ip string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":54321"
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- GeneralMiddleware のテスト ---

func TestGeneralMiddleware_AllowsBurstThenReturns429(t *testing.T) {
	rl := newTestRateLimiter(t, 2, 10)
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := serve(handler, userRequest("user-1")); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := serve(handler, userRequest("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestGeneralMiddleware_429HasRetryAfterAndJSONBody(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 10)
	handler := rl.GeneralMiddleware()(okHandler())

	serve(handler, userRequest("user-retry"))
	w := serve(handler, userRequest("user-retry"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After header should be a number, got %q", resp.Header.Get("Retry-After"))
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimitExceeded)
	}
	if body.Message == "" || body.Category == "" || body.Action == "" {
		t.Errorf("all error fields should be set: %+v", body)
	}
}

func TestGeneralMiddleware_IsolatesUsers(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 10)
	handler := rl.GeneralMiddleware()(okHandler())

	if w := serve(handler, userRequest("user-A")); w.Code != http.StatusOK {
		t.Errorf("user-A first request: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve(handler, userRequest("user-A")); w.Code != http.StatusTooManyRequests {
		t.Errorf("user-A second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := serve(handler, userRequest("user-B")); w.Code != http.StatusOK {
		t.Errorf("user-B first request: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGeneralMiddleware_AnonymousLimitedByIP(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 10)
	handler := rl.GeneralMiddleware()(okHandler())

	if w := serve(handler, ipRequest(http.MethodGet, "/api/tasks", "192.0.2.1")); w.Code != http.StatusOK {
		t.Errorf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve(handler, ipRequest(http.MethodGet, "/api/tasks", "192.0.2.1")); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request from same IP: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := serve(handler, ipRequest(http.MethodGet, "/api/tasks", "192.0.2.2")); w.Code != http.StatusOK {
		t.Errorf("request from other IP: status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- AuthMiddleware のテスト ---

func TestAuthMiddleware_LimitsPerIP(t *testing.T) {
	rl := newTestRateLimiter(t, 100, 2)
	handler := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := serve(handler, ipRequest(http.MethodPost, "/auth/login", "198.51.100.7")); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if w := serve(handler, ipRequest(http.MethodPost, "/auth/login", "198.51.100.7")); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := serve(handler, ipRequest(http.MethodPost, "/auth/login", "198.51.100.8")); w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_IndependentFromGeneralLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 5)
	general := rl.GeneralMiddleware()(okHandler())
	authHandler := rl.AuthMiddleware()(okHandler())

	serve(general, ipRequest(http.MethodGet, "/api/tasks", "203.0.113.5"))
	if w := serve(general, ipRequest(http.MethodGet, "/api/tasks", "203.0.113.5")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("general limit should be exhausted, got %d", w.Code)
	}

	if w := serve(authHandler, ipRequest(http.MethodPost, "/auth/register", "203.0.113.5")); w.Code != http.StatusOK {
		t.Errorf("auth request: status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 5, 5)

	serve(rl.GeneralMiddleware()(okHandler()), userRequest("user-cleanup"))
	serve(rl.AuthMiddleware()(okHandler()), ipRequest(http.MethodPost, "/auth/login", "192.0.2.9"))

	if rl.GeneralLimiterCount() != 1 || rl.AuthLimiterCount() != 1 {
		t.Fatalf("counts = (%d, %d), want (1, 1)", rl.GeneralLimiterCount(), rl.AuthLimiterCount())
	}

	// TTL(CleanupIntervalの2倍)以内では削除されない
	rl.cleanup(time.Now().Add(time.Minute))
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("entry should survive within TTL, got %d", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.AuthLimiterCount() != 0 {
		t.Errorf("counts after cleanup = (%d, %d), want (0, 0)", rl.GeneralLimiterCount(), rl.AuthLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestGeneralMiddleware_InChainWithTokenAndCORS(t *testing.T) {
	rl := newTestRateLimiter(t, 2, 10)

	corsMW := NewCORSMiddleware("http://localhost:3000")
	tokenMW := NewTokenMiddleware(acceptToken("rate-limit-token", "user-rate-chain"))
	rateMW := rl.GeneralMiddleware()

	// CORS -> Token -> RateLimit -> Handler
	handler := corsMW(tokenMW(rateMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
	}))))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.Header.Set("Authorization", "Bearer rate-limit-token")
		return req
	}

	for i := 0; i < 2; i++ {
		if w := serve(handler, newReq()); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := serve(handler, newReq())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS headers should be present on 429 responses")
	}
}

// --- 設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthBurst != 10 {
		t.Errorf("AuthBurst = %d, want 10", cfg.AuthBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

func TestNewRateLimiterConfig_PerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(60, 30)

	if cfg.GeneralRate != 1.0 {
		t.Errorf("GeneralRate = %f, want 1.0", cfg.GeneralRate)
	}
	if cfg.AuthRate != 0.5 {
		t.Errorf("AuthRate = %f, want 0.5", cfg.AuthRate)
	}
	if cfg.GeneralBurst != 60 || cfg.AuthBurst != 30 {
		t.Errorf("bursts = (%d, %d), want (60, 30)", cfg.GeneralBurst, cfg.AuthBurst)
	}
}
