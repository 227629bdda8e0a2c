// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginSuccess     = "success"
	LoginNoPrincipal = "no_principal"
	LoginError       = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordLoginOutcome(outcome string)
	RecordRateLimitDecision(admitted bool)
	RecordDecryptionFailure()
	RecordHTTPStatus(statusCode int)
	RecordUpstreamLatency(upstream string, statusCode int, duration time.Duration)
	RecordCleanupDeleted(table string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginOutcomes     *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	decryptionFail    prometheus.Counter
	httpStatus        *prometheus.CounterVec
	upstreamLatency   *prometheus.HistogramVec
	cleanupDeleted    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_login_total",
			Help: "OAuthコールバックの結果別件数",
		}, []string{"outcome"}),
		rateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_rate_limit_decisions_total",
			Help: "レート制限の判定結果別件数",
		}, []string{"decision"}),
		decryptionFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_token_decryption_failures_total",
			Help: "アクセストークン復号失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchday_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "status_code"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_cleanup_deleted_total",
			Help: "クリーンアップで削除した行数",
		}, []string{"table"}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.rateLimitDecision,
		c.decryptionFail,
		c.httpStatus,
		c.upstreamLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordLoginOutcome はOAuthコールバックの結果を記録する。
func (c *Collector) RecordLoginOutcome(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRateLimitDecision はレート制限の判定を記録する。
func (c *Collector) RecordRateLimitDecision(admitted bool) {
	decision := "rejected"
	if admitted {
		decision = "admitted"
	}
	c.rateLimitDecision.WithLabelValues(decision).Inc()
}

// RecordDecryptionFailure は復号失敗を記録する。
func (c *Collector) RecordDecryptionFailure() {
	c.decryptionFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は外部API呼び出しのレイテンシを記録する。
// statusCodeが0の場合は通信エラーを表す。
func (c *Collector) RecordUpstreamLatency(upstream string, statusCode int, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(upstream, strconv.Itoa(statusCode)).Observe(duration.Seconds())
}

// RecordCleanupDeleted はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanupDeleted(table string, count int64) {
	c.cleanupDeleted.WithLabelValues(table).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
