package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/matchday/internal/calendar"
	"github.com/hitoshi/matchday/internal/middleware"
	"github.com/hitoshi/matchday/internal/model"
)

// CalendarServiceInterface はGoogle連携ハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	AddEvent(ctx context.Context, user *model.User, details calendar.EventDetails) (string, error)
	Profile(ctx context.Context, user *model.User) (*calendar.Profile, error)
	CheckFixtures(ctx context.Context, user *model.User, gameIDs []any) (*calendar.FixtureCheck, error)
}

// GoogleHandler はGoogleカレンダー・プロフィール連携のHTTPハンドラー。
type GoogleHandler struct {
	service CalendarServiceInterface
}

// NewGoogleHandler はGoogleHandlerを生成する。
func NewGoogleHandler(service CalendarServiceInterface) *GoogleHandler {
	return &GoogleHandler{service: service}
}

// addEventRequest はカレンダー登録リクエストのボディ。
type addEventRequest struct {
	EventDetails *struct {
		Summary       string `json:"summary"`
		Description   string `json:"description"`
		StartDateTime string `json:"startDateTime"`
		EndDateTime   string `json:"endDateTime"`
		GameID        any    `json:"gameId"`
	} `json:"eventDetails"`
}

// checkFixturesRequest は登録済み試合確認リクエストのボディ。
type checkFixturesRequest struct {
	GameIDs json.RawMessage `json:"gameIds"`
}

// AddEvent は試合をGoogleカレンダーに登録する。
// POST /api/v1/google-api/calendar
func (h *GoogleHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
		return
	}

	var req addEventRequest
	if err := decodeJSONBody(w, r, &req); err != nil || req.EventDetails == nil {
		middleware.WriteMessage(w, http.StatusBadRequest, model.NewInvalidEventError().Message)
		return
	}

	details := calendar.EventDetails{
		Summary:       req.EventDetails.Summary,
		Description:   req.EventDetails.Description,
		StartDateTime: req.EventDetails.StartDateTime,
		EndDateTime:   req.EventDetails.EndDateTime,
		GameID:        calendar.GameIDString(req.EventDetails.GameID),
	}

	summary, err := h.service.AddEvent(r.Context(), user, details)
	if err != nil {
		handleGoogleError(w, err, "Failed to create event")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Event added to calendar",
		"fixture": summary,
	})
}

// Profile はGoogleプロフィールの名前とメールアドレスを返す。
// GET /api/v1/google-api/profile
func (h *GoogleHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
		return
	}

	profile, err := h.service.Profile(r.Context(), user)
	if err != nil {
		handleGoogleError(w, err, "Failed to fetch profile")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, profile)
}

// CheckFixtures はgameIdsのうちカレンダー登録済みのものを返す。
// POST /api/v1/google-api/check-fixtures
func (h *GoogleHandler) CheckFixtures(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized: Please log in")
		return
	}

	var req checkFixturesRequest
	var gameIDs []any
	if err := decodeJSONBody(w, r, &req); err != nil ||
		json.Unmarshal(req.GameIDs, &gameIDs) != nil || len(gameIDs) == 0 {
		middleware.WriteMessage(w, http.StatusBadRequest, model.NewInvalidGameIDsError().Message)
		return
	}

	result, err := h.service.CheckFixtures(r.Context(), user, gameIDs)
	if err != nil {
		handleGoogleError(w, err, "Failed to check events")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// handleGoogleError はGoogle連携のエラーを {"message": ...} 形式のレスポンスに変換する。
// Google APIの失敗はfailureMessageと詳細を返し、それ以外の内部エラーは詳細を返さない。
func handleGoogleError(w http.ResponseWriter, err error, failureMessage string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteMessage(w, apiErr.Status, apiErr.Message)
		return
	}

	var upstream *calendar.UpstreamError
	if errors.As(err, &upstream) {
		slog.Error("google api call failed", slog.String("error", err.Error()))
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": failureMessage,
			"error":   upstream.Detail(),
		})
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
