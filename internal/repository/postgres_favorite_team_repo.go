package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/matchday/internal/model"
)

// PostgresFavoriteTeamRepo はPostgreSQLを使用したお気に入りチームリポジトリ。
type PostgresFavoriteTeamRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteTeamRepo はPostgresFavoriteTeamRepoを生成する。
func NewPostgresFavoriteTeamRepo(db *sql.DB) *PostgresFavoriteTeamRepo {
	return &PostgresFavoriteTeamRepo{db: db}
}

// ListTeamIDs はユーザーのお気に入りチームIDを登録順に返す。
func (r *PostgresFavoriteTeamRepo) ListTeamIDs(ctx context.Context, userID int64) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT team_id FROM favorite_teams WHERE user_id = $1 ORDER BY created_at, team_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorite teams: %w", err)
	}
	defer rows.Close()

	teamIDs := []int{}
	for rows.Next() {
		var teamID int
		if err := rows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("failed to scan favorite team: %w", err)
		}
		teamIDs = append(teamIDs, teamID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorite teams: %w", err)
	}

	return teamIDs, nil
}

// Exists はユーザーがチームをお気に入り登録済みかを返す。
func (r *PostgresFavoriteTeamRepo) Exists(ctx context.Context, userID int64, teamID int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorite_teams WHERE user_id = $1 AND team_id = $2)`,
		userID, teamID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check favorite team: %w", err)
	}
	return exists, nil
}

// Add はお気に入りを追加する。既に登録済みの場合はnilを返す。
func (r *PostgresFavoriteTeamRepo) Add(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error) {
	fav := &model.FavoriteTeam{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO favorite_teams (user_id, team_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, team_id) DO NOTHING
		 RETURNING user_id, team_id, created_at`,
		userID, teamID,
	).Scan(&fav.UserID, &fav.TeamID, &fav.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add favorite team: %w", err)
	}
	return fav, nil
}

// Delete はお気に入りを削除する。
func (r *PostgresFavoriteTeamRepo) Delete(ctx context.Context, userID int64, teamID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM favorite_teams WHERE user_id = $1 AND team_id = $2`,
		userID, teamID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete favorite team: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FavoriteTeamRepository = (*PostgresFavoriteTeamRepo)(nil)
