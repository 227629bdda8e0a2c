package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/matchday/internal/metrics"
)

// RateLimitStore はレート制限の判定に使うリクエスト記録の保存先。
// repository.RateLimitRepositoryの部分集合として定義する。
type RateLimitStore interface {
	CountSince(ctx context.Context, ip, endpoint string, since time.Time) (int, error)
	Record(ctx context.Context, ip, endpoint string, at time.Time) error
}

// RateLimitConfig はスライディングウィンドウ方式のレート制限の設定を保持する。
type RateLimitConfig struct {
	Window      time.Duration // 集計対象とする直近の期間
	MaxRequests int           // Window内に受け付ける(ip, endpoint)ごとの最大リクエスト数
}

// DefaultRateLimitConfig はデフォルトのレート制限設定を返す。
// 1分あたり(ip, endpoint)ごとに50リクエスト。
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:      60 * time.Second,
		MaxRequests: 50,
	}
}

// Decision はレート制限の判定結果。
type Decision struct {
	Allowed bool
	Count   int // 判定時点でWindow内に記録されていたリクエスト数
}

// SlidingWindowLimiter は永続化されたリクエスト記録をもとに(ip, endpoint)ごとのレート制限を行う。
// 件数の確認と記録は不可分ではないため、同時リクエストでは上限をわずかに超えて受け付けることがある。
// 古い記録の削除は行わない（cleanupワーカーの責務）。
type SlidingWindowLimiter struct {
	store   RateLimitStore
	config  RateLimitConfig
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewSlidingWindowLimiter は新しいSlidingWindowLimiterを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewSlidingWindowLimiter(store RateLimitStore, config RateLimitConfig, collector metrics.MetricsCollector) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		store:   store,
		config:  config,
		metrics: collector,
		now:     time.Now,
	}
}

// Allow はリクエストを受け付けるか判定する。
// 受け付ける場合のみリクエストを記録する。記録に失敗した場合は受け付けない。
func (l *SlidingWindowLimiter) Allow(ctx context.Context, ip, endpoint string) (Decision, error) {
	now := l.now()
	windowStart := now.Add(-l.config.Window)

	count, err := l.store.CountSince(ctx, ip, endpoint, windowStart)
	if err != nil {
		return Decision{}, err
	}

	if count >= l.config.MaxRequests {
		l.recordDecision(false)
		return Decision{Allowed: false, Count: count}, nil
	}

	if err := l.store.Record(ctx, ip, endpoint, now); err != nil {
		return Decision{}, err
	}

	l.recordDecision(true)
	return Decision{Allowed: true, Count: count}, nil
}

// rateLimitedKey は同一リクエストが既に計数済みであることを示すコンテキストキー。
type rateLimitedKey struct{}

// Middleware はすべてのリクエストに適用するレート制限ミドルウェアを返す。
// 識別子にはクライアントIPとリクエストパスを使う。
// ネストしたルーターで複数回通過しても1リクエストにつき1回だけ数える。
func (l *SlidingWindowLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Context().Value(rateLimitedKey{}) != nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			endpoint := r.URL.Path

			decision, err := l.Allow(r.Context(), ip, endpoint)
			if err != nil {
				slog.Error("rate limiter store failed",
					slog.String("ip", ip),
					slog.String("endpoint", endpoint),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("endpoint", endpoint),
					slog.Int("count", decision.Count),
				)
				writeRateLimitResponse(w, l.config.Window)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rateLimitedKey{}, true)))
		})
	}
}

func (l *SlidingWindowLimiter) recordDecision(admitted bool) {
	if l.metrics != nil {
		l.metrics.RecordRateLimitDecision(admitted)
	}
}

// ClientIP はリクエスト元のIPアドレスを返す。
// RemoteAddrのホスト部を使う。プロキシ配下ではchiのRealIPで事前に書き換える。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはウィンドウ長の秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, window time.Duration) {
	retryAfterSec := int(math.Ceil(window.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteMessage(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
}
