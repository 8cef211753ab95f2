package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

var (
	ErrPoolNotFound           = errors.New("pool not found")
	ErrPoolInviteCodeConflict = errors.New("pool invite code conflict")
	ErrPoolCreatorInvalid     = errors.New("pool creator conflict or invalid")
)

// PoolRepository определяет интерфейс для работы с пулами.
type PoolRepository interface {
	// Create вставляет пул и заполняет ID, CreatedAt, UpdatedAt.
	Create(ctx context.Context, exec SQLExecutor, pool *models.Pool) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pool, error)
	// GetByInviteCode с forUpdate=true блокирует строку пула до конца транзакции.
	GetByInviteCode(ctx context.Context, exec SQLExecutor, code string, forUpdate bool) (*models.Pool, error)
	ListByMember(ctx context.Context, userID int) ([]*models.Pool, error)
	ListActiveBySeason(ctx context.Context, seasonYear int) ([]*models.Pool, error)
	Update(ctx context.Context, exec SQLExecutor, pool *models.Pool) error
	UpdateInviteCode(ctx context.Context, exec SQLExecutor, id int, code string) error
	SetActive(ctx context.Context, exec SQLExecutor, id int, active bool) error
	UpdateLogoKey(ctx context.Context, id int, logoKey *string) error
}

type postgresPoolRepository struct {
	db *sql.DB
}

func NewPostgresPoolRepository(db *sql.DB) PoolRepository {
	return &postgresPoolRepository{db: db}
}

const poolColumns = `p.id, p.name, p.description, p.invite_code, p.creator_id, p.season_year,
		p.settings, p.max_members, p.is_active, p.logo_key, p.created_at, p.updated_at`

func scanPool(row rowScanner, extra ...interface{}) (*models.Pool, error) {
	var p models.Pool
	dest := []interface{}{
		&p.ID, &p.Name, &p.Description, &p.InviteCode, &p.CreatorID, &p.SeasonYear,
		&p.Settings, &p.MaxMembers, &p.IsActive, &p.LogoKey, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresPoolRepository) Create(ctx context.Context, exec SQLExecutor, pool *models.Pool) error {
	query := `
		INSERT INTO pools (name, description, invite_code, creator_id, season_year, settings, max_members, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		pool.Name,
		pool.Description,
		pool.InviteCode,
		pool.CreatorID,
		pool.SeasonYear,
		pool.Settings,
		pool.MaxMembers,
		pool.IsActive,
	).Scan(&pool.ID, &pool.CreatedAt, &pool.UpdatedAt)
	if err != nil {
		if constraint, ok := constraintViolation(err, pqUniqueViolation); ok && constraint == "pools_invite_code_key" {
			return ErrPoolInviteCodeConflict
		}
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return ErrPoolCreatorInvalid
		}
		return fmt.Errorf("failed to create pool: %w", err)
	}
	return nil
}

func (r *postgresPoolRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools p WHERE p.id = $1`
	return scanPool(executorOr(exec, r.db).QueryRowContext(ctx, query, id))
}

func (r *postgresPoolRepository) GetByInviteCode(ctx context.Context, exec SQLExecutor, code string, forUpdate bool) (*models.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools p WHERE p.invite_code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanPool(executorOr(exec, r.db).QueryRowContext(ctx, query, code))
}

func (r *postgresPoolRepository) listPools(ctx context.Context, query string, args ...interface{}) ([]*models.Pool, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := make([]*models.Pool, 0)
	for rows.Next() {
		var memberCount int
		p, scanErr := scanPool(rows, &memberCount)
		if scanErr != nil {
			return nil, scanErr
		}
		p.MemberCount = memberCount
		pools = append(pools, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return pools, nil
}

func (r *postgresPoolRepository) ListByMember(ctx context.Context, userID int) ([]*models.Pool, error) {
	query := `
		SELECT ` + poolColumns + `,
		       (SELECT COUNT(*) FROM pool_memberships c WHERE c.pool_id = p.id AND c.is_active) AS member_count
		FROM pools p
		JOIN pool_memberships m ON m.pool_id = p.id
		WHERE m.user_id = $1 AND m.is_active AND p.is_active
		ORDER BY p.created_at DESC, p.id DESC`
	return r.listPools(ctx, query, userID)
}

func (r *postgresPoolRepository) ListActiveBySeason(ctx context.Context, seasonYear int) ([]*models.Pool, error) {
	query := `
		SELECT ` + poolColumns + `,
		       (SELECT COUNT(*) FROM pool_memberships c WHERE c.pool_id = p.id AND c.is_active) AS member_count
		FROM pools p
		WHERE p.season_year = $1 AND p.is_active
		ORDER BY p.id`
	return r.listPools(ctx, query, seasonYear)
}

func (r *postgresPoolRepository) Update(ctx context.Context, exec SQLExecutor, pool *models.Pool) error {
	query := `
		UPDATE pools SET name = $1, description = $2, settings = $3, max_members = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`
	err := executorOr(exec, r.db).QueryRowContext(ctx, query,
		pool.Name, pool.Description, pool.Settings, pool.MaxMembers, pool.ID,
	).Scan(&pool.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPoolNotFound
		}
		return fmt.Errorf("failed to update pool %d: %w", pool.ID, err)
	}
	return nil
}

func (r *postgresPoolRepository) UpdateInviteCode(ctx context.Context, exec SQLExecutor, id int, code string) error {
	query := `UPDATE pools SET invite_code = $1, updated_at = NOW() WHERE id = $2`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query, code, id)
	if err != nil {
		if constraint, ok := constraintViolation(err, pqUniqueViolation); ok && constraint == "pools_invite_code_key" {
			return ErrPoolInviteCodeConflict
		}
		return err
	}
	return checkAffectedRows(result, ErrPoolNotFound)
}

func (r *postgresPoolRepository) SetActive(ctx context.Context, exec SQLExecutor, id int, active bool) error {
	query := `UPDATE pools SET is_active = $1, updated_at = NOW() WHERE id = $2`
	result, err := executorOr(exec, r.db).ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPoolNotFound)
}

func (r *postgresPoolRepository) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	query := `UPDATE pools SET logo_key = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, logoKey, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPoolNotFound)
}
