// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// TokenCookieName はセッショントークンを保持するCookieの名前。
const TokenCookieName = "token"

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// tokenContextKey はリクエストから取り出した生のトークンを格納するキー。
	tokenContextKey = contextKey("token")
	// userIDContextKey は検証済みトークンのユーザーIDを格納するキー。
	userIDContextKey = contextKey("user_id")
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// token.Serviceが実装する。
type TokenVerifier interface {
	Verify(raw string) (*model.Identity, error)
}

// NewTokenMiddleware はリクエストからセッショントークンを取り出すミドルウェアを返す。
// Authorizationヘッダー（Bearer）をCookieより優先する。
// 生のトークンは常にコンテキストに格納し、検証に成功した場合のみユーザーIDも格納する。
// 未認証リクエストは拒否せず、認可の判断はサービス層が行う。
func NewTokenMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンを取得
			raw := TokenFromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithToken(r.Context(), raw)

			// 2. 検証に成功した場合のみユーザーIDを注入
			if identity, err := verifier.Verify(raw); err == nil {
				ctx = ContextWithUserID(ctx, identity.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest はAuthorizationヘッダーまたはCookieからトークンを取り出す。
// どちらにもない場合は空文字を返す。
func TokenFromRequest(r *http.Request) string {
	if raw, ok := bearerToken(r); ok {
		return raw
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// bearerToken はAuthorization: Bearerヘッダーの値を返す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	return raw, raw != ""
}

// ContextWithToken はコンテキストに生のトークンを注入する。
func ContextWithToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, tokenContextKey, raw)
}

// TokenFromContext はコンテキストから生のトークンを取得する。
// トークンがない場合は空文字を返す。
func TokenFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(tokenContextKey).(string)
	return raw
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// トークンミドルウェアで検証に成功したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
