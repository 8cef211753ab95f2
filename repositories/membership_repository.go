package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

var (
	ErrMembershipNotFound = errors.New("membership not found")
	ErrMembershipConflict = errors.New("membership already exists")
)

type MembershipRepository interface {
	Create(ctx context.Context, exec SQLExecutor, m *models.Membership) error
	Get(ctx context.Context, exec SQLExecutor, poolID, userID int) (*models.Membership, error)
	Reactivate(ctx context.Context, exec SQLExecutor, poolID, userID int, displayName string) error
	Deactivate(ctx context.Context, exec SQLExecutor, poolID, userID int) error
	CountActive(ctx context.Context, exec SQLExecutor, poolID int) (int, error)
	CountActiveAdmins(ctx context.Context, exec SQLExecutor, poolID int) (int, error)
	// ListActiveByPool возвращает участников в порядке вступления.
	ListActiveByPool(ctx context.Context, exec SQLExecutor, poolID int) ([]*models.Membership, error)
	// ListLeaderboard сортирует по верным пикам, затем по очкам и порядку вступления.
	ListLeaderboard(ctx context.Context, poolID int) ([]*models.Membership, error)
	UpdateStats(ctx context.Context, exec SQLExecutor, m *models.Membership) error
}

type postgresMembershipRepository struct {
	db *sql.DB
}

func NewPostgresMembershipRepository(db *sql.DB) MembershipRepository {
	return &postgresMembershipRepository{db: db}
}

const membershipColumns = `pool_id, user_id, display_name, is_admin, is_active, joined_at,
		correct_picks, total_picks, total_points, current_streak, best_week_points`

func scanMembership(row rowScanner) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.PoolID, &m.UserID, &m.DisplayName, &m.IsAdmin, &m.IsActive, &m.JoinedAt,
		&m.CorrectPicks, &m.TotalPicks, &m.TotalPoints, &m.CurrentStreak, &m.BestWeekPoints,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *postgresMembershipRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Membership) error {
	query := `
		INSERT INTO pool_memberships (pool_id, user_id, display_name, is_admin, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING joined_at`

	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		m.PoolID, m.UserID, m.DisplayName, m.IsAdmin,
	).Scan(&m.JoinedAt)
	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			return ErrMembershipConflict
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	m.IsActive = true
	return nil
}

func (r *postgresMembershipRepository) Get(ctx context.Context, exec SQLExecutor, poolID, userID int) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM pool_memberships WHERE pool_id = $1 AND user_id = $2`
	return scanMembership(executorOr(exec, r.db).QueryRowContext(ctx, query, poolID, userID))
}

func (r *postgresMembershipRepository) Reactivate(ctx context.Context, exec SQLExecutor, poolID, userID int, displayName string) error {
	query := `UPDATE pool_memberships SET is_active = TRUE, display_name = $1 WHERE pool_id = $2 AND user_id = $3`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query, displayName, poolID, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMembershipNotFound)
}

func (r *postgresMembershipRepository) Deactivate(ctx context.Context, exec SQLExecutor, poolID, userID int) error {
	query := `UPDATE pool_memberships SET is_active = FALSE WHERE pool_id = $1 AND user_id = $2`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query, poolID, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMembershipNotFound)
}

func (r *postgresMembershipRepository) count(ctx context.Context, exec SQLExecutor, query string, poolID int) (int, error) {
	var n int
	if err := executorOr(exec, r.db).QueryRowContext(ctx, query, poolID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *postgresMembershipRepository) CountActive(ctx context.Context, exec SQLExecutor, poolID int) (int, error) {
	return r.count(ctx, exec, `SELECT COUNT(*) FROM pool_memberships WHERE pool_id = $1 AND is_active`, poolID)
}

func (r *postgresMembershipRepository) CountActiveAdmins(ctx context.Context, exec SQLExecutor, poolID int) (int, error) {
	return r.count(ctx, exec, `SELECT COUNT(*) FROM pool_memberships WHERE pool_id = $1 AND is_active AND is_admin`, poolID)
}

func (r *postgresMembershipRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Membership, error) {
	rows, err := executorOr(exec, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*models.Membership, 0)
	for rows.Next() {
		m, scanErr := scanMembership(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *postgresMembershipRepository) ListActiveByPool(ctx context.Context, exec SQLExecutor, poolID int) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM pool_memberships
		WHERE pool_id = $1 AND is_active
		ORDER BY joined_at ASC, user_id ASC`
	return r.list(ctx, exec, query, poolID)
}

func (r *postgresMembershipRepository) ListLeaderboard(ctx context.Context, poolID int) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM pool_memberships
		WHERE pool_id = $1 AND is_active
		ORDER BY correct_picks DESC, total_points DESC, joined_at ASC, user_id ASC`
	return r.list(ctx, nil, query, poolID)
}

func (r *postgresMembershipRepository) UpdateStats(ctx context.Context, exec SQLExecutor, m *models.Membership) error {
	query := `
		UPDATE pool_memberships SET
			correct_picks = $1, total_picks = $2, total_points = $3, current_streak = $4, best_week_points = $5
		WHERE pool_id = $6 AND user_id = $7`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query,
		m.CorrectPicks, m.TotalPicks, m.TotalPoints, m.CurrentStreak, m.BestWeekPoints,
		m.PoolID, m.UserID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMembershipNotFound)
}
