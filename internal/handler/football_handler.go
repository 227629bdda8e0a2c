package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/matchday/internal/football"
	"github.com/hitoshi/matchday/internal/middleware"
)

// FootballClientInterface はスポーツデータプロキシが必要とするクライアントインターフェース。
type FootballClientInterface interface {
	Fixtures(ctx context.Context, teamID, season string) (*football.Response, error)
	SearchTeams(ctx context.Context, search string) (*football.Response, error)
	TeamByID(ctx context.Context, teamID string) (*football.Response, error)
}

// FootballHandler はスポーツデータAPIのプロキシハンドラー。
type FootballHandler struct {
	client FootballClientInterface
}

// NewFootballHandler はFootballHandlerを生成する。
func NewFootballHandler(client FootballClientInterface) *FootballHandler {
	return &FootballHandler{client: client}
}

// errorsResponse はプロキシの入力エラーレスポンス。
type errorsResponse struct {
	Errors []string `json:"errors"`
}

// proxyErrorResponse はプロキシの通信エラーレスポンス。
type proxyErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// Fixtures はチーム・シーズンの試合日程を返す。
// GET /api/v1/football-api/fixtures?teamId=xxx&season=yyyy
func (h *FootballHandler) Fixtures(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("teamId")
	season := r.URL.Query().Get("season")
	if teamID == "" || season == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, errorsResponse{
			Errors: []string{"Query parameters required: team, season"},
		})
		return
	}

	resp, err := h.client.Fixtures(r.Context(), teamID, season)
	writeProxyResponse(w, resp, err)
}

// SearchTeams はチーム名で検索する。
// GET /api/v1/football-api/teams?search=xxx
func (h *FootballHandler) SearchTeams(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	if search == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, errorsResponse{
			Errors: []string{"Missing required query parameter: search"},
		})
		return
	}

	resp, err := h.client.SearchTeams(r.Context(), search)
	writeProxyResponse(w, resp, err)
}

// TeamByID はチームIDでチーム情報を返す。
// GET /api/v1/football-api/team/{teamId}
func (h *FootballHandler) TeamByID(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamId")
	if teamID == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, errorsResponse{
			Errors: []string{"Missing required path parameter: teamId"},
		})
		return
	}

	resp, err := h.client.TeamByID(r.Context(), teamID)
	writeProxyResponse(w, resp, err)
}

// writeProxyResponse は上流のステータスとボディをそのまま書き込む。
func writeProxyResponse(w http.ResponseWriter, resp *football.Response, err error) {
	if err != nil {
		slog.Error("football proxy failed", slog.String("error", err.Error()))
		middleware.WriteJSON(w, http.StatusInternalServerError, proxyErrorResponse{
			Message: "Internal proxy error",
			Errors:  []string{err.Error()},
		})
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		slog.Error("failed to write proxy response", slog.String("error", err.Error()))
	}
}
