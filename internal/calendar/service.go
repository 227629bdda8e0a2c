// Package calendar はGoogleカレンダーへの試合登録とGoogleプロフィール取得を提供する。
// 委任アクセストークンの復号はこのパッケージで行い、平文のトークンは呼び出しの間だけ保持する。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/hitoshi/matchday/internal/metrics"
	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/security"
)

const (
	// appSource はこのサービスが作成したイベントを識別する非公開拡張プロパティの値。
	appSource = "matchday"
	// eventTimeZone はイベントの開始・終了時刻のタイムゾーン。
	eventTimeZone = "UTC"
	// defaultCheckConcurrency はcheck-fixturesで同時に実行するカレンダー検索の上限。
	defaultCheckConcurrency = 4

	unknownName  = "Unknown"
	unknownEmail = "No email found"
)

// TokenDecrypter は保存済みのアクセストークンを復号する。
type TokenDecrypter interface {
	Decrypt(envelope string) (string, error)
}

// EventDetails はカレンダーに登録する試合イベントの入力。
type EventDetails struct {
	Summary       string
	Description   string
	StartDateTime string
	EndDateTime   string
	GameID        string
}

// Profile はGoogleプロフィールの表示用情報。
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FixtureCheck はcheck-fixturesの結果。入力順を保持する。
type FixtureCheck struct {
	Found   []any `json:"foundGameIds"`
	Missing []any `json:"missingGameIds"`
}

// UpstreamError はGoogle API呼び出しの失敗を表す。
type UpstreamError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("google api %s failed: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Detail はクライアントに返すエラー詳細を返す。
// Google APIのエラーの場合はそのメッセージのみを返す。
func (e *UpstreamError) Detail() string {
	var gErr *googleapi.Error
	if errors.As(e.Err, &gErr) && gErr.Message != "" {
		return gErr.Message
	}
	return e.Err.Error()
}

// Service はGoogleカレンダー・プロフィール連携のサービス層。
type Service struct {
	google           GoogleAPI
	cipher           TokenDecrypter
	sanitizer        security.TextSanitizerService
	metrics          metrics.MetricsCollector
	checkConcurrency int
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(google GoogleAPI, cipher TokenDecrypter, sanitizer security.TextSanitizerService, collector metrics.MetricsCollector) *Service {
	return &Service{
		google:           google,
		cipher:           cipher,
		sanitizer:        sanitizer,
		metrics:          collector,
		checkConcurrency: defaultCheckConcurrency,
	}
}

// AddEvent は試合イベントをユーザーのメインカレンダーに登録し、作成されたイベントのタイトルを返す。
func (s *Service) AddEvent(ctx context.Context, user *model.User, details EventDetails) (string, error) {
	if details.Summary == "" || details.Description == "" ||
		details.StartDateTime == "" || details.EndDateTime == "" || details.GameID == "" {
		return "", model.NewInvalidEventError()
	}

	token, err := s.accessToken(user)
	if err != nil {
		return "", err
	}

	event := &gcalendar.Event{
		Summary:     s.sanitizer.Sanitize(details.Summary),
		Description: s.sanitizer.Sanitize(details.Description),
		Start:       &gcalendar.EventDateTime{DateTime: details.StartDateTime, TimeZone: eventTimeZone},
		End:         &gcalendar.EventDateTime{DateTime: details.EndDateTime, TimeZone: eventTimeZone},
		ExtendedProperties: &gcalendar.EventExtendedProperties{
			Private: map[string]string{
				"appSource": appSource,
				"gameId":    details.GameID,
			},
		},
	}

	created, err := s.google.InsertEvent(ctx, token, event)
	if err != nil {
		return "", &UpstreamError{Op: "events.insert", Err: err}
	}

	slog.Info("calendar event created",
		slog.Int64("user_id", user.ID),
		slog.String("game_id", details.GameID),
	)
	return created.Summary, nil
}

// Profile はユーザーのGoogleプロフィールを取得する。
// 名前またはメールアドレスが無い場合は既定の表示値を使う。
func (s *Service) Profile(ctx context.Context, user *model.User) (*Profile, error) {
	token, err := s.accessToken(user)
	if err != nil {
		return nil, err
	}

	person, err := s.google.GetProfile(ctx, token)
	if err != nil {
		return nil, &UpstreamError{Op: "people.get", Err: err}
	}

	profile := &Profile{Name: unknownName, Email: unknownEmail}
	if len(person.Names) > 0 && person.Names[0] != nil && person.Names[0].DisplayName != "" {
		profile.Name = person.Names[0].DisplayName
	}
	if len(person.EmailAddresses) > 0 && person.EmailAddresses[0] != nil && person.EmailAddresses[0].Value != "" {
		profile.Email = person.EmailAddresses[0].Value
	}
	return profile, nil
}

// CheckFixtures はgameIDsのうちカレンダーに登録済みのものと未登録のものを返す。
// 検索は並行に行い、結果は入力順を保持する。いずれかの検索が失敗した場合はエラーを返す。
func (s *Service) CheckFixtures(ctx context.Context, user *model.User, gameIDs []any) (*FixtureCheck, error) {
	if len(gameIDs) == 0 {
		return nil, model.NewInvalidGameIDsError()
	}

	token, err := s.accessToken(user)
	if err != nil {
		return nil, err
	}

	found := make([]bool, len(gameIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.checkConcurrency)
	for i, id := range gameIDs {
		g.Go(func() error {
			n, err := s.google.CountEventsByGameID(gctx, token, GameIDString(id))
			if err != nil {
				return err
			}
			found[i] = n > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &UpstreamError{Op: "events.list", Err: err}
	}

	result := &FixtureCheck{Found: []any{}, Missing: []any{}}
	for i, id := range gameIDs {
		if found[i] {
			result.Found = append(result.Found, id)
		} else {
			result.Missing = append(result.Missing, id)
		}
	}
	return result, nil
}

// accessToken はユーザーの保存済みトークンを復号する。
// トークンが無い場合は403のAPIErrorを返す。
func (s *Service) accessToken(user *model.User) (string, error) {
	if user == nil || user.EncryptedAccessToken == "" {
		return "", model.NewMissingAccessTokenError()
	}

	token, err := s.cipher.Decrypt(user.EncryptedAccessToken)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordDecryptionFailure()
		}
		slog.Error("failed to decrypt access token",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("アクセストークンの復号に失敗しました: %w", err)
	}
	if token == "" {
		return "", model.NewMissingAccessTokenError()
	}
	return token, nil
}

// GameIDString はJSONから読み取ったgameIdを文字列に変換する。
// 数値は指数表記を使わずに整形する。
func GameIDString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
