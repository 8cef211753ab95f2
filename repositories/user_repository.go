package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizmbets/pickem/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserEmailConflict    = errors.New("user email conflict")
	ErrUserUsernameConflict = errors.New("user username conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if constraint, ok := constraintViolation(err, pqUniqueViolation); ok {
			switch constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_username_key":
				return ErrUserUsernameConflict
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresUserRepository) scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, email, username, password_hash, role, created_at FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, username, password_hash, role, created_at FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}
