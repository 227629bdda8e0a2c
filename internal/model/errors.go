package model

import (
	"errors"
	"fmt"
)

// 認証・セッションに関するエラー。
// ハンドラーは errors.Is でHTTPステータスを決定する。
var (
	// ErrExchangeFailed はIdPとの認可コード交換が失敗したことを示す（500）。
	ErrExchangeFailed = errors.New("oauth exchange failed")
	// ErrNoPrincipal は交換は完了したがプリンシパルが得られなかったことを示す（401）。
	ErrNoPrincipal = errors.New("no principal returned")
	// ErrLoginFailed はセッションの確立に失敗したことを示す（500）。
	ErrLoginFailed = errors.New("login failed")
	// ErrLogoutFailed はセッションとプリンシパルの紐付け解除に失敗したことを示す（500）。
	ErrLogoutFailed = errors.New("logout failed")
	// ErrSessionDestroy はセッションレコードの破棄に失敗したことを示す（500）。
	ErrSessionDestroy = errors.New("session destruction failed")
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
	Status  int    // HTTPステータス
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingTeamID      = "MISSING_TEAM_ID"
	ErrCodeInvalidTeamID      = "INVALID_TEAM_ID"
	ErrCodeDuplicateFavorite  = "DUPLICATE_FAVORITE"
	ErrCodeFavoriteNotFound   = "FAVORITE_NOT_FOUND"
	ErrCodeInvalidEvent       = "INVALID_EVENT"
	ErrCodeInvalidGameIDs     = "INVALID_GAME_IDS"
	ErrCodeMissingAccessToken = "MISSING_ACCESS_TOKEN"
)

// NewMissingTeamIDError はリクエストボディにteamIdが無い場合のエラーを生成する。
func NewMissingTeamIDError() *APIError {
	return &APIError{Code: ErrCodeMissingTeamID, Message: "Missing teamId in request body", Status: 400}
}

// NewInvalidTeamIDError はteamIdが正の整数でない場合のエラーを生成する。
func NewInvalidTeamIDError() *APIError {
	return &APIError{Code: ErrCodeInvalidTeamID, Message: "Invalid team ID", Status: 400}
}

// NewDuplicateFavoriteError は既にお気に入り登録済みのチームを再登録しようとした場合のエラーを生成する。
func NewDuplicateFavoriteError() *APIError {
	return &APIError{Code: ErrCodeDuplicateFavorite, Message: "This team is already a favorite for this user", Status: 409}
}

// NewFavoriteNotFoundError はお気に入りが存在しない場合のエラーを生成する。
func NewFavoriteNotFoundError() *APIError {
	return &APIError{Code: ErrCodeFavoriteNotFound, Message: "Favorite team not found", Status: 404}
}

// NewInvalidEventError はカレンダーイベントの入力が不足している場合のエラーを生成する。
func NewInvalidEventError() *APIError {
	return &APIError{Code: ErrCodeInvalidEvent, Message: "Invalid Event Details", Status: 400}
}

// NewInvalidGameIDsError はgameIdsが空配列または配列でない場合のエラーを生成する。
func NewInvalidGameIDsError() *APIError {
	return &APIError{Code: ErrCodeInvalidGameIDs, Message: "gameIds must be a non-empty array", Status: 400}
}

// NewMissingAccessTokenError はユーザーにGoogleアクセストークンが保存されていない場合のエラーを生成する。
func NewMissingAccessTokenError() *APIError {
	return &APIError{Code: ErrCodeMissingAccessToken, Message: "No Google access token found", Status: 403}
}
