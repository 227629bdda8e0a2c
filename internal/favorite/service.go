// Package favorite はお気に入りチーム管理のドメインロジックを提供する。
package favorite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/repository"
)

// Service はお気に入りチームのサービス層。
type Service struct {
	repo repository.FavoriteTeamRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.FavoriteTeamRepository) *Service {
	return &Service{repo: repo}
}

// List はユーザーのお気に入りチームID一覧を返す。登録が無い場合は空スライスを返す。
func (s *Service) List(ctx context.Context, userID int64) ([]int, error) {
	ids, err := s.repo.ListTeamIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗しました: %w", err)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

// Add はチームをお気に入りに追加する。
// 登録済みの場合は重複エラー(409)を返す。
func (s *Service) Add(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error) {
	exists, err := s.repo.Exists(ctx, userID, teamID)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの確認に失敗しました: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateFavoriteError()
	}

	fav, err := s.repo.Add(ctx, userID, teamID)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの追加に失敗しました: %w", err)
	}
	// 確認から追加までの間に同じチームが登録された
	if fav == nil {
		return nil, model.NewDuplicateFavoriteError()
	}
	return fav, nil
}

// Remove はチームをお気に入りから削除する。
// 登録されていない場合は未検出エラー(404)を返す。
func (s *Service) Remove(ctx context.Context, userID int64, teamID int) error {
	exists, err := s.repo.Exists(ctx, userID, teamID)
	if err != nil {
		return fmt.Errorf("お気に入りの確認に失敗しました: %w", err)
	}
	if !exists {
		return model.NewFavoriteNotFoundError()
	}

	if err := s.repo.Delete(ctx, userID, teamID); err != nil {
		return fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
	}
	return nil
}

// ParseTeamID はリクエストボディのteamIdを解釈する。
// 数値と数値文字列を受け付け、先頭の整数部分を使う（"12abc" は12）。
// 値が無い、null、0、空文字の場合は欠落エラー、正の整数が得られない場合は不正エラーを返す。
func ParseTeamID(raw json.RawMessage) (int, *model.APIError) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, model.NewMissingTeamIDError()
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, model.NewInvalidTeamIDError()
	}

	var text string
	switch x := v.(type) {
	case nil:
		return 0, model.NewMissingTeamIDError()
	case bool:
		if !x {
			return 0, model.NewMissingTeamIDError()
		}
		return 0, model.NewInvalidTeamIDError()
	case float64:
		if x == 0 {
			return 0, model.NewMissingTeamIDError()
		}
		text = string(raw)
	case string:
		if x == "" {
			return 0, model.NewMissingTeamIDError()
		}
		text = x
	default:
		return 0, model.NewInvalidTeamIDError()
	}

	id, ok := leadingInt(text)
	if !ok || id <= 0 {
		return 0, model.NewInvalidTeamIDError()
	}
	return id, nil
}

// leadingInt は文字列の先頭にある10進整数を返す。
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
