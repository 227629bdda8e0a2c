// Package football はスポーツデータAPI（API-Football）のプロキシクライアントを提供する。
// 上流のレスポンスはステータスとボディをそのまま呼び出し元に返す。
package football

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hitoshi/matchday/internal/metrics"
)

const (
	// DefaultBaseURL はAPI-FootballのベースURL。
	DefaultBaseURL = "https://v3.football.api-sports.io"
	// rapidAPIHost はx-rapidapi-hostヘッダーに設定するホスト名。
	rapidAPIHost = "v3.football.api-sports.io"
	// maxBodyBytes は上流レスポンスボディの読み取り上限。
	maxBodyBytes = 5 << 20
	// upstreamName はメトリクスのupstreamラベル。
	upstreamName = "football"
)

// Response は上流APIのレスポンス。
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Config はClientの設定を保持する。
type Config struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec int // 上流への送信レート。0以下の場合は制限しない
}

// Client はスポーツデータAPIのプロキシクライアント。
// 同一URLへの同時リクエストは1回の上流呼び出しにまとめる。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	group      singleflight.Group
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientには本番ではSSRF防止機能付きのクライアントを渡す。
func NewClient(httpClient *http.Client, cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		metrics:    collector,
		logger:     logger,
	}
}

// Fixtures は指定チーム・シーズンの試合日程を取得する。
func (c *Client) Fixtures(ctx context.Context, teamID, season string) (*Response, error) {
	q := url.Values{}
	q.Set("team", teamID)
	q.Set("season", season)
	return c.get(ctx, "fixtures", q)
}

// SearchTeams はチーム名で検索する。
func (c *Client) SearchTeams(ctx context.Context, search string) (*Response, error) {
	q := url.Values{}
	q.Set("search", search)
	return c.get(ctx, "teams", q)
}

// TeamByID はチームIDでチーム情報を取得する。
func (c *Client) TeamByID(ctx context.Context, teamID string) (*Response, error) {
	q := url.Values{}
	q.Set("id", teamID)
	return c.get(ctx, "teams", q)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	reqURL := c.baseURL + "/" + path + "?" + query.Encode()

	// 呼び出し元のキャンセルで他の待機者の結果まで失われないよう、共有呼び出しはキャンセルを切り離す。
	// 上限はhttp.Clientのタイムアウトで担保する。
	ch := c.group.DoChan(reqURL, func() (any, error) {
		return c.do(context.WithoutCancel(ctx), reqURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) do(ctx context.Context, reqURL string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("送信レートの待機に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("x-rapidapi-host", rapidAPIHost)
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("X-Request-ID", requestID(ctx))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordLatency(0, time.Since(start))
		c.logger.Error("スポーツデータAPIの呼び出しに失敗しました",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.recordLatency(resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: contentTypeFor(body, resp.Header.Get("Content-Type")),
	}, nil
}

func (c *Client) recordLatency(statusCode int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamLatency(upstreamName, statusCode, d)
	}
}

// contentTypeFor はボディがJSONとして解釈できる場合にJSONのContent-Typeを返す。
// それ以外は上流のContent-Typeを引き継ぐ。
func contentTypeFor(body []byte, upstream string) string {
	if json.Valid(body) {
		return "application/json; charset=utf-8"
	}
	if upstream != "" {
		return upstream
	}
	return "text/html; charset=utf-8"
}

// requestID はリクエストスコープのIDを返す。chiのRequestIDが無い場合は新規に採番する。
func requestID(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
