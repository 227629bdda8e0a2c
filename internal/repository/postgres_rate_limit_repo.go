package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRateLimitRepo はPostgreSQLを使用したレート制限記録リポジトリ。
// 件数の確認と記録は別々のクエリであり、同一(ip, endpoint)への同時リクエストでは
// 上限をわずかに超えて記録されうる。
type PostgresRateLimitRepo struct {
	db *sql.DB
}

// NewPostgresRateLimitRepo はPostgresRateLimitRepoを生成する。
func NewPostgresRateLimitRepo(db *sql.DB) *PostgresRateLimitRepo {
	return &PostgresRateLimitRepo{db: db}
}

// CountSince は since より後のリクエスト数を返す。
func (r *PostgresRateLimitRepo) CountSince(ctx context.Context, ip, endpoint string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limits
		 WHERE ip = $1 AND endpoint = $2 AND timestamp > $3`,
		ip, endpoint, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit records: %w", err)
	}
	return count, nil
}

// Record はリクエスト1件を記録する。
func (r *PostgresRateLimitRepo) Record(ctx context.Context, ip, endpoint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_limits (ip, endpoint, timestamp) VALUES ($1, $2, $3)`,
		ip, endpoint, at,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate limit record: %w", err)
	}
	return nil
}

// DeleteOlderThan は before より前の記録を削除する。
func (r *PostgresRateLimitRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE timestamp < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rate limit records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ RateLimitRepository = (*PostgresRateLimitRepo)(nil)
