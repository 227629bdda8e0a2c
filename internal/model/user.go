// Package model はドメインモデルを定義する。
package model

import "time"

// User はGoogleアカウントと紐付いたサービス利用ユーザーを表す。
// EncryptedAccessToken は TokenCipher で暗号化したエンベロープであり、
// 平文のアクセストークンは永続化もログ出力もしない。
type User struct {
	ID                   int64
	ExternalID           string // 外部IdPが発行する識別子（Googleのsub）
	EncryptedAccessToken string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Session はユーザーのログインセッションを表す。
// UserID はusersへの弱参照であり、セッションストアはトークン等の秘密情報を保持しない。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RateLimitRecord はレート制限の判定に使うリクエスト記録1件を表す。
type RateLimitRecord struct {
	ID         int64
	IP         string
	Endpoint   string
	ObservedAt time.Time
}

// FavoriteTeam はユーザーがお気に入り登録したチームを表す。
type FavoriteTeam struct {
	UserID    int64     `json:"user_id"`
	TeamID    int       `json:"team_id"`
	CreatedAt time.Time `json:"created_at"`
}
