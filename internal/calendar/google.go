package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"github.com/hitoshi/matchday/internal/metrics"
)

const (
	// primaryCalendarID はユーザーのメインカレンダーを指すID。
	primaryCalendarID = "primary"
	// profileResourceName はログインユーザー自身を指すPeople APIのリソース名。
	profileResourceName = "people/me"
	// profilePersonFields はプロフィール取得で要求するフィールド。
	profilePersonFields = "names,emailAddresses"
)

// GoogleAPI はユーザーの委任アクセストークンでGoogle APIを呼び出す。
type GoogleAPI interface {
	// InsertEvent はメインカレンダーにイベントを作成し、作成されたイベントを返す。
	InsertEvent(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error)
	// CountEventsByGameID は非公開拡張プロパティgameIdが一致するイベント数を返す。
	CountEventsByGameID(ctx context.Context, accessToken, gameID string) (int, error)
	// GetProfile はログインユーザーの名前とメールアドレスを取得する。
	GetProfile(ctx context.Context, accessToken string) (*people.Person, error)
}

// GoogleClientConfig はGoogleClientの接続先を保持する。空の場合はGoogleの本番エンドポイントを使う。
type GoogleClientConfig struct {
	CalendarEndpoint string
	PeopleEndpoint   string
}

// GoogleClient はgoogle.golang.org/apiを使ったGoogleAPIの実装。
type GoogleClient struct {
	httpClient *http.Client
	config     GoogleClientConfig
	metrics    metrics.MetricsCollector
}

// NewGoogleClient はGoogleClientを生成する。
// httpClientはトークン付与前のベースクライアントとして使う。
func NewGoogleClient(httpClient *http.Client, config GoogleClientConfig, collector metrics.MetricsCollector) *GoogleClient {
	return &GoogleClient{
		httpClient: httpClient,
		config:     config,
		metrics:    collector,
	}
}

// InsertEvent はメインカレンダーにイベントを作成する。
func (c *GoogleClient) InsertEvent(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error) {
	svc, err := gcalendar.NewService(ctx, c.options(ctx, accessToken, c.config.CalendarEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	start := time.Now()
	created, err := svc.Events.Insert(primaryCalendarID, event).Context(ctx).Do()
	c.recordLatency("google_calendar", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CountEventsByGameID はgameIdの非公開拡張プロパティを持つイベント数を返す。
func (c *GoogleClient) CountEventsByGameID(ctx context.Context, accessToken, gameID string) (int, error) {
	svc, err := gcalendar.NewService(ctx, c.options(ctx, accessToken, c.config.CalendarEndpoint)...)
	if err != nil {
		return 0, fmt.Errorf("failed to create calendar service: %w", err)
	}

	start := time.Now()
	events, err := svc.Events.List(primaryCalendarID).
		PrivateExtendedProperty("gameId=" + gameID).
		Context(ctx).
		Do()
	c.recordLatency("google_calendar", err, time.Since(start))
	if err != nil {
		return 0, err
	}
	return len(events.Items), nil
}

// GetProfile はログインユーザーのプロフィールを取得する。
func (c *GoogleClient) GetProfile(ctx context.Context, accessToken string) (*people.Person, error) {
	svc, err := people.NewService(ctx, c.options(ctx, accessToken, c.config.PeopleEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create people service: %w", err)
	}

	start := time.Now()
	person, err := svc.People.Get(profileResourceName).
		PersonFields(profilePersonFields).
		Context(ctx).
		Do()
	c.recordLatency("google_people", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return person, nil
}

// options はアクセストークンを付与するHTTPクライアントでサービスを生成するためのオプションを返す。
func (c *GoogleClient) options(ctx context.Context, accessToken, endpoint string) []option.ClientOption {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	baseCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(baseCtx, ts))}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (c *GoogleClient) recordLatency(upstream string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = 0
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			status = gErr.Code
		}
	}
	c.metrics.RecordUpstreamLatency(upstream, status, d)
}

// compile-time interface check
var _ GoogleAPI = (*GoogleClient)(nil)
