package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

type WeeklyStandingRepository interface {
	Upsert(ctx context.Context, exec SQLExecutor, standing *models.WeeklyStanding) error
	// ListByPoolWeek возвращает таблицу недели, отсортированную по rank.
	ListByPoolWeek(ctx context.Context, poolID, weekID int) ([]*models.WeeklyStanding, error)
	// ListByPoolUser возвращает недельные результаты участника в хронологическом порядке.
	ListByPoolUser(ctx context.Context, exec SQLExecutor, poolID, userID int) ([]*models.WeeklyStanding, error)
}

type postgresWeeklyStandingRepository struct {
	db *sql.DB
}

func NewPostgresWeeklyStandingRepository(db *sql.DB) WeeklyStandingRepository {
	return &postgresWeeklyStandingRepository{db: db}
}

func (r *postgresWeeklyStandingRepository) Upsert(ctx context.Context, exec SQLExecutor, standing *models.WeeklyStanding) error {
	query := `
		INSERT INTO pool_weekly_standings (pool_id, user_id, week_id, correct_picks, total_picks, points, is_perfect, rank, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (pool_id, user_id, week_id) DO UPDATE SET
			correct_picks = EXCLUDED.correct_picks,
			total_picks = EXCLUDED.total_picks,
			points = EXCLUDED.points,
			is_perfect = EXCLUDED.is_perfect,
			rank = EXCLUDED.rank,
			updated_at = NOW()
		RETURNING updated_at`

	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		standing.PoolID, standing.UserID, standing.WeekID,
		standing.CorrectPicks, standing.TotalPicks, standing.Points, standing.IsPerfect, standing.Rank,
	).Scan(&standing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert standing p:%d u:%d w:%d: %w", standing.PoolID, standing.UserID, standing.WeekID, err)
	}
	return nil
}

func (r *postgresWeeklyStandingRepository) ListByPoolWeek(ctx context.Context, poolID, weekID int) ([]*models.WeeklyStanding, error) {
	query := `
		SELECT s.pool_id, s.user_id, s.week_id, s.correct_picks, s.total_picks, s.points, s.is_perfect, s.rank, s.updated_at,
		       m.display_name
		FROM pool_weekly_standings s
		JOIN pool_memberships m ON m.pool_id = s.pool_id AND m.user_id = s.user_id
		WHERE s.pool_id = $1 AND s.week_id = $2
		ORDER BY s.rank ASC, m.joined_at ASC`

	rows, err := r.db.QueryContext(ctx, query, poolID, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := make([]*models.WeeklyStanding, 0)
	for rows.Next() {
		var s models.WeeklyStanding
		if scanErr := rows.Scan(
			&s.PoolID, &s.UserID, &s.WeekID, &s.CorrectPicks, &s.TotalPicks, &s.Points, &s.IsPerfect, &s.Rank, &s.UpdatedAt,
			&s.DisplayName,
		); scanErr != nil {
			return nil, scanErr
		}
		standings = append(standings, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}

func (r *postgresWeeklyStandingRepository) ListByPoolUser(ctx context.Context, exec SQLExecutor, poolID, userID int) ([]*models.WeeklyStanding, error) {
	query := `
		SELECT s.pool_id, s.user_id, s.week_id, s.correct_picks, s.total_picks, s.points, s.is_perfect, s.rank, s.updated_at
		FROM pool_weekly_standings s
		JOIN nfl_weeks w ON w.id = s.week_id
		WHERE s.pool_id = $1 AND s.user_id = $2
		ORDER BY w.season_year ASC, w.week_number ASC`

	rows, err := executorOr(exec, r.db).QueryContext(ctx, query, poolID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := make([]*models.WeeklyStanding, 0)
	for rows.Next() {
		var s models.WeeklyStanding
		if scanErr := rows.Scan(
			&s.PoolID, &s.UserID, &s.WeekID, &s.CorrectPicks, &s.TotalPicks, &s.Points, &s.IsPerfect, &s.Rank, &s.UpdatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		standings = append(standings, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}
