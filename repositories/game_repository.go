package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/prizmbets/pickem/models"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameWeekInvalid = errors.New("game week conflict or invalid")
)

type GameRepository interface {
	// Upsert ищет матч по (week_id, home_team, away_team). Завершенный матч не откатывается
	// обратно в scheduled/in_progress. Возвращает true, если строка была создана.
	Upsert(ctx context.Context, exec SQLExecutor, game *models.Game) (bool, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Game, error)
	GetByIDs(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.Game, error)
	ListByWeek(ctx context.Context, exec SQLExecutor, weekID int) ([]*models.Game, error)
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

const gameColumns = `g.id, g.week_id, g.provider_id, g.home_team, g.away_team, g.home_team_name, g.away_team_name,
		g.scheduled_at, g.status, g.winner, g.home_score, g.away_score, g.home_spread`

func scanGame(row rowScanner) (*models.Game, error) {
	var g models.Game
	err := row.Scan(
		&g.ID, &g.WeekID, &g.ProviderID, &g.HomeTeam, &g.AwayTeam, &g.HomeTeamName, &g.AwayTeamName,
		&g.ScheduledAt, &g.Status, &g.Winner, &g.HomeScore, &g.AwayScore, &g.HomeSpread,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return &g, nil
}

// Завершенный матч не меняется: результат, счет и фора остаются прежними.
const gameUpsertQuery = `
		INSERT INTO nfl_games (week_id, provider_id, home_team, away_team, home_team_name, away_team_name,
		                       scheduled_at, status, winner, home_score, away_score, home_spread)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (week_id, home_team, away_team) DO UPDATE SET
			provider_id = COALESCE(EXCLUDED.provider_id, nfl_games.provider_id),
			home_team_name = EXCLUDED.home_team_name,
			away_team_name = EXCLUDED.away_team_name,
			scheduled_at = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.scheduled_at ELSE EXCLUDED.scheduled_at END,
			status = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.status ELSE EXCLUDED.status END,
			winner = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.winner ELSE EXCLUDED.winner END,
			home_score = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.home_score
				ELSE COALESCE(EXCLUDED.home_score, nfl_games.home_score) END,
			away_score = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.away_score
				ELSE COALESCE(EXCLUDED.away_score, nfl_games.away_score) END,
			home_spread = CASE WHEN nfl_games.status = 'completed' THEN nfl_games.home_spread
				ELSE COALESCE(EXCLUDED.home_spread, nfl_games.home_spread) END
		RETURNING id, status, winner, (xmax = 0) AS inserted`

func (r *postgresGameRepository) Upsert(ctx context.Context, exec SQLExecutor, game *models.Game) (bool, error) {
	var inserted bool
	err := executorOr(exec, r.db).QueryRowContext(ctx, gameUpsertQuery,
		game.WeekID, game.ProviderID, game.HomeTeam, game.AwayTeam, game.HomeTeamName, game.AwayTeamName,
		game.ScheduledAt, game.Status, game.Winner, game.HomeScore, game.AwayScore, game.HomeSpread,
	).Scan(&game.ID, &game.Status, &game.Winner, &inserted)
	if err != nil {
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return false, ErrGameWeekInvalid
		}
		return false, fmt.Errorf("failed to upsert game %s@%s: %w", game.AwayTeam, game.HomeTeam, err)
	}
	return inserted, nil
}

func (r *postgresGameRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM nfl_games g WHERE g.id = $1`
	return scanGame(executorOr(exec, r.db).QueryRowContext(ctx, query, id))
}

func (r *postgresGameRepository) GetByIDs(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.Game, error) {
	games := make(map[int]*models.Game, len(ids))
	if len(ids) == 0 {
		return games, nil
	}
	ids64 := make([]int64, len(ids))
	for i, id := range ids {
		ids64[i] = int64(id)
	}

	query := `SELECT ` + gameColumns + ` FROM nfl_games g WHERE g.id = ANY($1)`
	rows, err := executorOr(exec, r.db).QueryContext(ctx, query, pq.Array(ids64))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		g, scanErr := scanGame(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		games[g.ID] = g
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return games, nil
}

func (r *postgresGameRepository) ListByWeek(ctx context.Context, exec SQLExecutor, weekID int) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM nfl_games g WHERE g.week_id = $1 ORDER BY g.scheduled_at, g.id`
	rows, err := executorOr(exec, r.db).QueryContext(ctx, query, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := make([]*models.Game, 0)
	for rows.Next() {
		g, scanErr := scanGame(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		games = append(games, g)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return games, nil
}
