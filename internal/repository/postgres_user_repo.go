package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/matchday/internal/model"
)

const userColumns = `user_id, google_id, access_token, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalID はGoogleのsubでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`,
		externalID,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。user_idはデータベースで採番する。
// 同じgoogle_idの行が並行して作成済みの場合はトークンを上書きし、その行を返す。
func (r *PostgresUserRepo) Create(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (google_id, access_token)
		 VALUES ($1, $2)
		 ON CONFLICT (google_id) DO UPDATE
		 SET access_token = EXCLUDED.access_token, updated_at = now()
		 RETURNING `+userColumns,
		externalID, encryptedToken,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("failed to insert user: no row returned")
	}
	return user, nil
}

// UpdateAccessToken はトークンを置き換える。再認証のたびにローテーションされる。
func (r *PostgresUserRepo) UpdateAccessToken(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET access_token = $1, updated_at = now()
		 WHERE google_id = $2
		 RETURNING `+userColumns,
		encryptedToken, externalID,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update user token: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("failed to update user token: user not found: %s", externalID)
	}
	return user, nil
}

// scanUser は1行をUserに読み込む。行が無い場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.ExternalID, &user.EncryptedAccessToken, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
