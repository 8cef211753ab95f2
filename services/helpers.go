package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
	"github.com/prizmbets/pickem/storage"
)

const (
	inviteCodeLength   = 8
	inviteCodeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeAttempts = 5
)

// generateInviteCode возвращает случайный код из заглавных букв и цифр.
func generateInviteCode() (string, error) {
	randomBytes := make([]byte, inviteCodeLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	b := make([]byte, inviteCodeLength)
	for i, rb := range randomBytes {
		b[i] = inviteCodeCharset[int(rb)%len(inviteCodeCharset)]
	}
	return string(b), nil
}

// normalizeInviteCode приводит код к каноничному виду. Второе значение false, если код не может быть валидным.
func normalizeInviteCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != inviteCodeLength {
		return "", false
	}
	for _, c := range code {
		if !strings.ContainsRune(inviteCodeCharset, c) {
			return "", false
		}
	}
	return code, true
}

// withTx выполняет fn в транзакции: rollback при ошибке или панике, иначе commit.
func withTx(ctx context.Context, db *sql.DB, logger *slog.Logger, fn func(tx *sql.Tx) error) (txErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.ErrorContext(ctx, "Transaction rollback failed", slog.Any("error", rbErr), slog.Any("original_error", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
			}
		}
	}()

	return fn(tx)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func populatePoolLogoURL(pool *models.Pool, uploader storage.FileUploader) {
	if pool != nil && pool.LogoKey != nil && *pool.LogoKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*pool.LogoKey)
		if url != "" {
			pool.LogoURL = &url
		}
	}
}

// GetExtensionFromContentType возвращает расширение файла для поддерживаемых типов изображений.
func GetExtensionFromContentType(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "image/svg+xml":
		return ".svg", nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedFileType, contentType)
	}
}

// loadPoolMember возвращает пул и активное членство пользователя в нем.
func loadPoolMember(
	ctx context.Context,
	poolRepo repositories.PoolRepository,
	membershipRepo repositories.MembershipRepository,
	poolID, userID int,
) (*models.Pool, *models.Membership, error) {
	pool, err := poolRepo.GetByID(ctx, nil, poolID)
	if err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return nil, nil, ErrPoolNotFound
		}
		return nil, nil, fmt.Errorf("failed to get pool %d: %w", poolID, err)
	}
	membership, err := membershipRepo.Get(ctx, nil, poolID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			return nil, nil, ErrNotPoolMember
		}
		return nil, nil, fmt.Errorf("failed to get membership: %w", err)
	}
	if !membership.IsActive {
		return nil, nil, ErrNotPoolMember
	}
	return pool, membership, nil
}
