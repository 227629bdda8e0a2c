// Package auth はOAuth認証フロー、ユーザー解決、セッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/matchday/internal/model"
)

// ProviderGrant はIdPとの認可コード交換で得られた情報を表す。
// AccessTokenは平文であり、永続化前に必ず暗号化する。
type ProviderGrant struct {
	AccessToken string
	ExternalID  string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// AuthCodeURL は認可画面のURLを生成する。
	AuthCodeURL(state string) string
	// Exchange は認可コードをトークンに交換し、ユーザーの識別子を取得する。
	Exchange(ctx context.Context, code string) (*ProviderGrant, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	resolver *Resolver
	sessions *SessionManager
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, resolver *Resolver, sessions *SessionManager) *Service {
	return &Service{
		oauth:    oauth,
		resolver: resolver,
		sessions: sessions,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Authenticate は認可コードを交換し、ユーザーを解決する。
// 交換に失敗した場合はユーザーストアを変更しない。
func (s *Service) Authenticate(ctx context.Context, code string) ExchangeResult {
	grant, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %w", model.ErrExchangeFailed, err))
	}
	if grant == nil || grant.ExternalID == "" || grant.AccessToken == "" {
		return noPrincipalResult()
	}

	user, err := s.resolver.Resolve(ctx, grant.AccessToken, grant.ExternalID)
	if err != nil {
		return errorResult(fmt.Errorf("failed to resolve user: %w", err))
	}

	slog.Info("user authenticated", slog.Int64("user_id", user.ID))
	return successResult(user)
}

// Login はユーザーのセッションを発行する。Authenticateの成功後にのみ呼び出す。
func (s *Service) Login(ctx context.Context, user *model.User) (*model.Session, error) {
	session, err := s.sessions.Login(ctx, user)
	if err != nil {
		return nil, err
	}
	slog.Info("session created", slog.Int64("user_id", user.ID))
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Logout(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("user logged out")
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。匿名の場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return s.sessions.Principal(ctx, sessionID)
}
