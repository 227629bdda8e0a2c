// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/matchday/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByExternalID は外部IdPの識別子でユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDを含む行を返す。
	// 既に同じexternalIDの行がある場合はトークンを置き換えてその行を返す。
	Create(ctx context.Context, externalID, encryptedToken string) (*model.User, error)

	// UpdateAccessToken は外部IdPの識別子に対応するユーザーのトークンを置き換え、更新後の行を返す。
	UpdateAccessToken(ctx context.Context, externalID, encryptedToken string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// dataにはシリアライズしたプリンシパル参照のみを保存する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session, data []byte) error
	// FindData は有効期限内のセッションのdataを返す。存在しない、または期限切れの場合はnilを返す。
	FindData(ctx context.Context, id string) ([]byte, error)
	// UpdateData はセッションのdataを置き換える。
	UpdateData(ctx context.Context, id string, data []byte) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitRepository はレート制限記録の永続化インターフェース。
type RateLimitRepository interface {
	// CountSince は (ip, endpoint) について since より後に記録されたリクエスト数を返す。
	CountSince(ctx context.Context, ip, endpoint string, since time.Time) (int, error)
	// Record はリクエスト1件を記録する。
	Record(ctx context.Context, ip, endpoint string, at time.Time) error
	// DeleteOlderThan は before より前の記録を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// FavoriteTeamRepository はお気に入りチームの永続化インターフェース。
type FavoriteTeamRepository interface {
	// ListTeamIDs はユーザーのお気に入りチームID一覧を返す。
	ListTeamIDs(ctx context.Context, userID int64) ([]int, error)
	// Exists はユーザーがチームをお気に入り登録済みかを返す。
	Exists(ctx context.Context, userID int64, teamID int) (bool, error)
	// Add はお気に入りを追加し、作成した行を返す。
	Add(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error)
	// Delete はお気に入りを削除する。
	Delete(ctx context.Context, userID int64, teamID int) error
}
