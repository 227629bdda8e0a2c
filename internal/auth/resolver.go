package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/repository"
)

// TokenEncrypter はアクセストークンを保存用エンベロープに暗号化する。
type TokenEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Resolver は外部IdPの識別子をローカルユーザーに解決する。
// 同じ識別子は常に同じuser_idに解決され、トークンは交換のたびに置き換わる。
type Resolver struct {
	users  repository.UserRepository
	cipher TokenEncrypter
}

// NewResolver はResolverを生成する。
func NewResolver(users repository.UserRepository, cipher TokenEncrypter) *Resolver {
	return &Resolver{users: users, cipher: cipher}
}

// Resolve はユーザーを検索し、未登録なら作成、登録済みならトークンを更新する。
// 同一ユーザーの同時ログインでは最後に書いたトークンが残る。
func (r *Resolver) Resolve(ctx context.Context, accessToken, externalID string) (*model.User, error) {
	existing, err := r.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	envelope, err := r.cipher.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	if existing == nil {
		user, err := r.users.Create(ctx, externalID, envelope)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil
	}

	user, err := r.users.UpdateAccessToken(ctx, externalID, envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to update user token: %w", err)
	}
	return user, nil
}
