// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/matchday/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// PrincipalLoader はセッションIDから認証済みユーザーを取得する。
// セッションが無効、またはユーザーが存在しない場合はnil, nilを返す。
type PrincipalLoader interface {
	Principal(ctx context.Context, sessionID string) (*model.User, error)
}

// NewAuthGate はCookieのセッションを検証し、認証済みユーザーをコンテキストに注入するミドルウェアを返す。
// 未認証のリクエストには401、セッションストアの障害には500を返す。
// セッションストアへの書き込みは行わない。
func NewAuthGate(loader PrincipalLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			user, err := loader.Principal(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to load session principal",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
				return
			}

			annotateUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(principalContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, principalContextKey, user)
}
