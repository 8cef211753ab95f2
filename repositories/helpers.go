package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLExecutor позволяет репозиториям работать как с *sql.DB, так и внутри *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func executorOr(exec SQLExecutor, db *sql.DB) SQLExecutor {
	if exec != nil {
		return exec
	}
	return db
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

// constraintViolation возвращает имя нарушенного ограничения, если err - ошибка PostgreSQL с данным кодом.
func constraintViolation(err error, code pq.ErrorCode) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == code {
		return pqErr.Constraint, true
	}
	return "", false
}
