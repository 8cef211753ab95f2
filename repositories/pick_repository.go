package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

var (
	ErrPickNotFound   = errors.New("pick not found")
	ErrPickRefInvalid = errors.New("pick pool, user or game conflict or invalid")
)

type PickRepository interface {
	// Upsert вставляет пик или обновляет существующий по (pool_id, user_id, game_id).
	// Возвращает true, если пик был создан.
	Upsert(ctx context.Context, exec SQLExecutor, pick *models.Pick) (bool, error)
	ListByPoolUserWeek(ctx context.Context, poolID, userID, weekID int) ([]*models.Pick, error)
	ListByPoolWeek(ctx context.Context, exec SQLExecutor, poolID, weekID int) ([]*models.Pick, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, pickID int, isCorrect bool, points int) error
}

type postgresPickRepository struct {
	db *sql.DB
}

func NewPostgresPickRepository(db *sql.DB) PickRepository {
	return &postgresPickRepository{db: db}
}

const pickColumns = `p.id, p.pool_id, p.user_id, p.game_id, p.predicted_winner, p.confidence,
		p.is_correct, p.points_earned, p.created_at, p.updated_at`

func scanPick(row rowScanner, extra ...interface{}) (*models.Pick, error) {
	var p models.Pick
	dest := []interface{}{
		&p.ID, &p.PoolID, &p.UserID, &p.GameID, &p.PredictedWinner, &p.Confidence,
		&p.IsCorrect, &p.PointsEarned, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPickNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresPickRepository) Upsert(ctx context.Context, exec SQLExecutor, pick *models.Pick) (bool, error) {
	query := `
		INSERT INTO pool_picks (pool_id, user_id, game_id, predicted_winner, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pool_id, user_id, game_id) DO UPDATE SET
			predicted_winner = EXCLUDED.predicted_winner,
			confidence = EXCLUDED.confidence,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	var inserted bool
	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		pick.PoolID, pick.UserID, pick.GameID, pick.PredictedWinner, pick.Confidence,
	).Scan(&pick.ID, &pick.CreatedAt, &pick.UpdatedAt, &inserted)
	if err != nil {
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return false, ErrPickRefInvalid
		}
		return false, fmt.Errorf("failed to upsert pick for game %d: %w", pick.GameID, err)
	}
	return inserted, nil
}

func (r *postgresPickRepository) ListByPoolUserWeek(ctx context.Context, poolID, userID, weekID int) ([]*models.Pick, error) {
	query := `
		SELECT ` + pickColumns + `, ` + gameColumns + `
		FROM pool_picks p
		JOIN nfl_games g ON g.id = p.game_id
		WHERE p.pool_id = $1 AND p.user_id = $2 AND g.week_id = $3
		ORDER BY g.scheduled_at, g.id`

	rows, err := r.db.QueryContext(ctx, query, poolID, userID, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	picks := make([]*models.Pick, 0)
	for rows.Next() {
		var g models.Game
		p, scanErr := scanPick(rows,
			&g.ID, &g.WeekID, &g.ProviderID, &g.HomeTeam, &g.AwayTeam, &g.HomeTeamName, &g.AwayTeamName,
			&g.ScheduledAt, &g.Status, &g.Winner, &g.HomeScore, &g.AwayScore, &g.HomeSpread,
		)
		if scanErr != nil {
			return nil, scanErr
		}
		p.Game = &g
		picks = append(picks, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return picks, nil
}

func (r *postgresPickRepository) ListByPoolWeek(ctx context.Context, exec SQLExecutor, poolID, weekID int) ([]*models.Pick, error) {
	query := `
		SELECT ` + pickColumns + `
		FROM pool_picks p
		JOIN nfl_games g ON g.id = p.game_id
		WHERE p.pool_id = $1 AND g.week_id = $2
		ORDER BY p.user_id, p.game_id`

	rows, err := executorOr(exec, r.db).QueryContext(ctx, query, poolID, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	picks := make([]*models.Pick, 0)
	for rows.Next() {
		p, scanErr := scanPick(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		picks = append(picks, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return picks, nil
}

func (r *postgresPickRepository) UpdateResult(ctx context.Context, exec SQLExecutor, pickID int, isCorrect bool, points int) error {
	query := `UPDATE pool_picks SET is_correct = $1, points_earned = $2 WHERE id = $3`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query, isCorrect, points, pickID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPickNotFound)
}
