package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

var ErrWeekNotFound = errors.New("week not found")

type WeekRepository interface {
	// Upsert создает неделю или обновляет границы существующей по (week_number, season_year).
	// Дедлайн может только сдвигаться раньше.
	Upsert(ctx context.Context, exec SQLExecutor, week *models.Week) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Week, error)
	GetByNumber(ctx context.Context, exec SQLExecutor, seasonYear, weekNumber int) (*models.Week, error)
	// GetActive возвращает активную неделю самого позднего сезона.
	GetActive(ctx context.Context, seasonYear *int) (*models.Week, error)
	ListBySeason(ctx context.Context, exec SQLExecutor, seasonYear int) ([]*models.Week, error)
	SetActive(ctx context.Context, exec SQLExecutor, seasonYear, weekID int) error
	MarkCompleted(ctx context.Context, exec SQLExecutor, weekID int) error
	// ListReadyToComplete возвращает незавершенные недели, все матчи которых сыграны.
	ListReadyToComplete(ctx context.Context) ([]*models.Week, error)
}

type postgresWeekRepository struct {
	db *sql.DB
}

func NewPostgresWeekRepository(db *sql.DB) WeekRepository {
	return &postgresWeekRepository{db: db}
}

const weekColumns = `w.id, w.week_number, w.season_year, w.start_date, w.end_date, w.pick_deadline, w.is_active, w.is_completed`

func scanWeek(row rowScanner) (*models.Week, error) {
	var w models.Week
	err := row.Scan(&w.ID, &w.WeekNumber, &w.SeasonYear, &w.StartDate, &w.EndDate, &w.PickDeadline, &w.IsActive, &w.IsCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWeekNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *postgresWeekRepository) Upsert(ctx context.Context, exec SQLExecutor, week *models.Week) error {
	query := `
		INSERT INTO nfl_weeks (week_number, season_year, start_date, end_date, pick_deadline)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (week_number, season_year) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			pick_deadline = LEAST(nfl_weeks.pick_deadline, EXCLUDED.pick_deadline)
		RETURNING id, pick_deadline, is_active, is_completed`

	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		week.WeekNumber, week.SeasonYear, week.StartDate, week.EndDate, week.PickDeadline,
	).Scan(&week.ID, &week.PickDeadline, &week.IsActive, &week.IsCompleted)
	if err != nil {
		return fmt.Errorf("failed to upsert week %d/%d: %w", week.SeasonYear, week.WeekNumber, err)
	}
	return nil
}

func (r *postgresWeekRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Week, error) {
	query := `SELECT ` + weekColumns + ` FROM nfl_weeks w WHERE w.id = $1`
	return scanWeek(executorOr(exec, r.db).QueryRowContext(ctx, query, id))
}

func (r *postgresWeekRepository) GetByNumber(ctx context.Context, exec SQLExecutor, seasonYear, weekNumber int) (*models.Week, error) {
	query := `SELECT ` + weekColumns + ` FROM nfl_weeks w WHERE w.season_year = $1 AND w.week_number = $2`
	return scanWeek(executorOr(exec, r.db).QueryRowContext(ctx, query, seasonYear, weekNumber))
}

func (r *postgresWeekRepository) GetActive(ctx context.Context, seasonYear *int) (*models.Week, error) {
	if seasonYear != nil {
		query := `SELECT ` + weekColumns + ` FROM nfl_weeks w WHERE w.is_active AND w.season_year = $1`
		return scanWeek(r.db.QueryRowContext(ctx, query, *seasonYear))
	}
	query := `SELECT ` + weekColumns + ` FROM nfl_weeks w WHERE w.is_active ORDER BY w.season_year DESC LIMIT 1`
	return scanWeek(r.db.QueryRowContext(ctx, query))
}

func (r *postgresWeekRepository) ListBySeason(ctx context.Context, exec SQLExecutor, seasonYear int) ([]*models.Week, error) {
	query := `SELECT ` + weekColumns + ` FROM nfl_weeks w WHERE w.season_year = $1 ORDER BY w.week_number`
	return r.list(ctx, executorOr(exec, r.db), query, seasonYear)
}

func (r *postgresWeekRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Week, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := make([]*models.Week, 0)
	for rows.Next() {
		w, scanErr := scanWeek(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		weeks = append(weeks, w)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return weeks, nil
}

func (r *postgresWeekRepository) SetActive(ctx context.Context, exec SQLExecutor, seasonYear, weekID int) error {
	executor := executorOr(exec, r.db)
	// Сначала снимаем флаг: частичный уникальный индекс допускает одну активную неделю на сезон.
	if _, err := executor.ExecContext(ctx,
		`UPDATE nfl_weeks SET is_active = FALSE WHERE season_year = $1 AND is_active AND id <> $2`,
		seasonYear, weekID,
	); err != nil {
		return fmt.Errorf("failed to clear active week for season %d: %w", seasonYear, err)
	}
	result, err := executor.ExecContext(ctx,
		`UPDATE nfl_weeks SET is_active = TRUE WHERE id = $1 AND season_year = $2`,
		weekID, seasonYear,
	)
	if err != nil {
		return fmt.Errorf("failed to activate week %d: %w", weekID, err)
	}
	return checkAffectedRows(result, ErrWeekNotFound)
}

func (r *postgresWeekRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, weekID int) error {
	result, err := executorOr(exec, r.db).ExecContext(ctx, `UPDATE nfl_weeks SET is_completed = TRUE WHERE id = $1`, weekID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrWeekNotFound)
}

func (r *postgresWeekRepository) ListReadyToComplete(ctx context.Context) ([]*models.Week, error) {
	query := `
		SELECT ` + weekColumns + `
		FROM nfl_weeks w
		WHERE NOT w.is_completed
		  AND EXISTS (SELECT 1 FROM nfl_games g WHERE g.week_id = w.id)
		  AND NOT EXISTS (SELECT 1 FROM nfl_games g WHERE g.week_id = w.id AND g.status <> 'completed')
		ORDER BY w.season_year, w.week_number`
	return r.list(ctx, r.db, query)
}
