// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// レート制限記録は保持期間を超えたものを、セッションは有効期限を過ぎたものを削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/matchday/internal/metrics"
)

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitPurger は古いレート制限記録を削除する。
type RateLimitPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Job は期限切れデータの削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は同じになる。
type Job struct {
	sessions   SessionPurger
	rateLimits RateLimitPurger
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	// Retention はレート制限記録の保持期間。
	Retention time.Duration
	now       func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(sessions SessionPurger, rateLimits RateLimitPurger, retention time.Duration, collector metrics.MetricsCollector, logger *slog.Logger) *Job {
	return &Job{
		sessions:   sessions,
		rateLimits: rateLimits,
		metrics:    collector,
		logger:     logger,
		Retention:  retention,
		now:        time.Now,
	}
}

// Start はintervalごとにRunOnceを実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("retention", j.Retention),
	)

	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は保持期間を超えたレート制限記録と期限切れセッションを削除する。
// 一方の削除に失敗しても、もう一方の削除は実行する。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.now()

	var errs []error

	deletedRateLimits, err := j.rateLimits.DeleteOlderThan(ctx, start.Add(-j.Retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("レート制限記録の削除に失敗: %w", err))
	} else {
		j.record("rate_limits", deletedRateLimits)
	}

	deletedSessions, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		errs = append(errs, fmt.Errorf("期限切れセッションの削除に失敗: %w", err))
	} else {
		j.record("sessions", deletedSessions)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_rate_limits", deletedRateLimits),
		slog.Int64("deleted_sessions", deletedSessions),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *Job) record(table string, count int64) {
	if j.metrics != nil {
		j.metrics.RecordCleanupDeleted(table, count)
	}
}
