// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/matchday/internal/auth"
	"github.com/hitoshi/matchday/internal/metrics"
	"github.com/hitoshi/matchday/internal/middleware"
	"github.com/hitoshi/matchday/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	Authenticate(ctx context.Context, code string) auth.ExchangeResult
	Login(ctx context.Context, user *model.User) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string // ログイン完了後のリダイレクト先
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /api/v1/oauth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /api/v1/oauth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	// 3. 認可コードの交換とユーザーの解決
	result := h.service.Authenticate(r.Context(), code)
	h.recordLoginOutcome(result.Outcome)

	switch result.Outcome {
	case auth.OutcomeSuccess:
	case auth.OutcomeNoPrincipal:
		slog.Warn("no user returned by identity provider")
		middleware.WriteError(w, http.StatusUnauthorized, "User not authenticated")
		return
	default:
		slog.Error("oauth callback failed", slog.String("error", result.Err.Error()))
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Authentication failed",
			"details": result.Err.Error(),
		})
		return
	}

	// 4. セッションの発行
	session, err := h.service.Login(r.Context(), result.User)
	if err != nil {
		slog.Error("failed to establish session", slog.String("error", err.Error()))
		middleware.WriteError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	// 5. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.FrontendURL, http.StatusFound)
}

// CheckSession はセッションの認証状態を返す。
// ユーザーが削除済みのセッションは未認証として扱う。
// GET /api/v1/oauth/check-session
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		slog.Error("failed to check session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if user == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"isAuthenticated": false})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"isAuthenticated": true,
		"user":            user.ID,
	})
}

// Logout はセッションを破棄する。
// 破棄に失敗した場合はCookieを残し、500を返す。
// GET /api/v1/oauth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), sessionIDFromRequest(r)); err != nil {
		slog.Error("failed to logout", slog.String("error", err.Error()))
		if errors.Is(err, model.ErrSessionDestroy) {
			middleware.WriteError(w, http.StatusInternalServerError, "Session destruction failed")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	middleware.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *AuthHandler) recordLoginOutcome(outcome auth.Outcome) {
	if h.metrics != nil {
		h.metrics.RecordLoginOutcome(outcome.String())
	}
}

// sessionIDFromRequest はリクエストのセッションCookieの値を返す。Cookieが無い場合は空文字を返す。
func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
