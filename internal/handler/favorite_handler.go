package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/matchday/internal/favorite"
	"github.com/hitoshi/matchday/internal/middleware"
	"github.com/hitoshi/matchday/internal/model"
)

// FavoriteServiceInterface はお気に入りハンドラーが必要とするサービスインターフェース。
type FavoriteServiceInterface interface {
	List(ctx context.Context, userID int64) ([]int, error)
	Add(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error)
	Remove(ctx context.Context, userID int64, teamID int) error
}

// FavoriteHandler はお気に入りチーム管理のHTTPハンドラー。
type FavoriteHandler struct {
	service FavoriteServiceInterface
}

// NewFavoriteHandler はFavoriteHandlerを生成する。
func NewFavoriteHandler(service FavoriteServiceInterface) *FavoriteHandler {
	return &FavoriteHandler{service: service}
}

// favoriteTeamRequest はお気に入り追加・削除リクエストのボディ。
// teamIdは数値と数値文字列のどちらも受け付ける。
type favoriteTeamRequest struct {
	TeamID json.RawMessage `json:"teamId"`
}

// addFavoriteResponse はお気に入り追加のレスポンス。
type addFavoriteResponse struct {
	Message      string              `json:"message"`
	FavoriteTeam *model.FavoriteTeam `json:"favoriteTeam"`
}

// List はお気に入りチームID一覧を返す。
// GET /api/v1/favorite-teams
func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
		return
	}

	ids, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ids)
}

// Add はチームをお気に入りに追加する。
// POST /api/v1/favorite-teams
func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	user, teamID, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	fav, err := h.service.Add(r.Context(), user.ID, teamID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, addFavoriteResponse{
		Message:      "Favorite team added successfully",
		FavoriteTeam: fav,
	})
}

// Remove はチームをお気に入りから削除する。
// DELETE /api/v1/favorite-teams
func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, teamID, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), user.ID, teamID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteMessage(w, http.StatusOK, "Team has been successfully unfavorited.")
}

// parseRequest は認証済みユーザーとリクエストボディのteamIdを取り出す。
// 失敗した場合はエラーレスポンスを書き込み、falseを返す。
func (h *FavoriteHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*model.User, int, bool) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
		return nil, 0, false
	}

	var req favoriteTeamRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, 0, false
	}

	teamID, apiErr := favorite.ParseTeamID(req.TeamID)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return nil, 0, false
	}
	return user, teamID, true
}
