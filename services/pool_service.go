package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prizmbets/pickem/metrics"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
	"github.com/prizmbets/pickem/storage"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxMembers     = 50
	minMaxMembers         = 2
	maxMaxMembers         = 500
	maxPoolNameLength     = 100
	maxDisplayNameLength  = 50
	poolLogoStoragePrefix = "pools"
)

type PoolService interface {
	CreatePool(ctx context.Context, input CreatePoolInput) (*models.Pool, error)
	JoinPool(ctx context.Context, input JoinPoolInput) (*JoinPoolResult, error)
	ListUserPools(ctx context.Context, userID int) ([]*models.Pool, error)
	GetPoolDetail(ctx context.Context, poolID, userID int) (*PoolDetail, error)
	// EnsureMember возвращает ErrNotPoolMember, если пользователь не состоит в пуле.
	EnsureMember(ctx context.Context, poolID, userID int) error
	UpdateSettings(ctx context.Context, poolID, userID int, input UpdatePoolInput) (*models.Pool, error)
	LeavePool(ctx context.Context, poolID, userID int) error
	DeactivatePool(ctx context.Context, poolID, userID int) error
	RegenerateInviteCode(ctx context.Context, poolID, userID int) (*models.Pool, error)
	UploadLogo(ctx context.Context, poolID, userID int, file io.Reader, contentType string) (*models.Pool, error)
}

type CreatePoolInput struct {
	CreatorID   int                  `json:"-"`
	Name        string               `json:"name"`
	Description *string              `json:"description,omitempty"`
	Settings    *models.PoolSettings `json:"settings,omitempty"`
	MaxMembers  *int                 `json:"max_members,omitempty"`
}

type JoinPoolInput struct {
	UserID      int     `json:"-"`
	InviteCode  string  `json:"invite_code"`
	DisplayName *string `json:"display_name,omitempty"`
}

type UpdatePoolInput struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Settings    *models.PoolSettings `json:"settings,omitempty"`
	MaxMembers  *int                 `json:"max_members,omitempty"`
}

type JoinPoolResult struct {
	Pool       *models.Pool       `json:"pool"`
	Membership *models.Membership `json:"membership"`
	Rejoined   bool               `json:"rejoined"`
}

type PoolDetail struct {
	Pool        *models.Pool         `json:"pool"`
	Members     []*models.Membership `json:"members"`
	CurrentWeek *models.Week         `json:"current_week"`
	IsAdmin     bool                 `json:"is_admin"`
}

type poolService struct {
	db             *sql.DB
	poolRepo       repositories.PoolRepository
	membershipRepo repositories.MembershipRepository
	userRepo       repositories.UserRepository
	weekRepo       repositories.WeekRepository
	uploader       storage.FileUploader
	calendar       SeasonCalendar
	logger         *slog.Logger
	now            func() time.Time
}

func NewPoolService(
	db *sql.DB,
	poolRepo repositories.PoolRepository,
	membershipRepo repositories.MembershipRepository,
	userRepo repositories.UserRepository,
	weekRepo repositories.WeekRepository,
	uploader storage.FileUploader,
	calendar SeasonCalendar,
	logger *slog.Logger,
) PoolService {
	return &poolService{
		db:             db,
		poolRepo:       poolRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		weekRepo:       weekRepo,
		uploader:       uploader,
		calendar:       calendar,
		logger:         logger,
		now:            time.Now,
	}
}

func validatePoolName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrPoolNameRequired
	}
	if utf8.RuneCountInString(name) > maxPoolNameLength {
		return "", ErrPoolNameTooLong
	}
	return name, nil
}

func validatePoolSettings(settings models.PoolSettings) error {
	switch settings.PickType {
	case models.PickTypeStraightUp, models.PickTypeAgainstSpread, models.PickTypeConfidence:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPickType, settings.PickType)
	}
	switch settings.Tiebreaker {
	case models.TiebreakerCorrectPicks, models.TiebreakerEarliestJoin:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTiebreaker, settings.Tiebreaker)
	}
	return nil
}

func validateMaxMembers(n int) error {
	if n < minMaxMembers || n > maxMaxMembers {
		return ErrInvalidMaxMembers
	}
	return nil
}

func normalizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	d := strings.TrimSpace(*description)
	if d == "" {
		return nil
	}
	return &d
}

func (s *poolService) CreatePool(ctx context.Context, input CreatePoolInput) (pool *models.Pool, err error) {
	defer func(start time.Time) { metrics.ObserveOp("create_pool", start, err) }(time.Now())

	name, err := validatePoolName(input.Name)
	if err != nil {
		return nil, err
	}

	settings := models.DefaultPoolSettings()
	if input.Settings != nil {
		if input.Settings.PickType != "" {
			settings.PickType = input.Settings.PickType
		}
		if input.Settings.Tiebreaker != "" {
			settings.Tiebreaker = input.Settings.Tiebreaker
		}
	}
	if err := validatePoolSettings(settings); err != nil {
		return nil, err
	}

	maxMembers := defaultMaxMembers
	if input.MaxMembers != nil {
		maxMembers = *input.MaxMembers
	}
	if err := validateMaxMembers(maxMembers); err != nil {
		return nil, err
	}

	creator, err := s.userRepo.GetByID(ctx, input.CreatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get creator %d: %w", input.CreatorID, err)
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, genErr := generateInviteCode()
		if genErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInviteCodeGeneration, genErr)
		}

		candidate := &models.Pool{
			Name:        name,
			Description: normalizeDescription(input.Description),
			InviteCode:  code,
			CreatorID:   creator.ID,
			SeasonYear:  s.calendar.Year(),
			Settings:    settings,
			MaxMembers:  maxMembers,
			IsActive:    true,
		}
		admin := &models.Membership{
			UserID:      creator.ID,
			DisplayName: creator.Username,
			IsAdmin:     true,
		}

		txErr := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
			if err := s.poolRepo.Create(ctx, tx, candidate); err != nil {
				return err
			}
			admin.PoolID = candidate.ID
			return s.membershipRepo.Create(ctx, tx, admin)
		})
		if txErr == nil {
			candidate.MemberCount = 1
			s.logger.InfoContext(ctx, "Pool created",
				slog.Int("pool_id", candidate.ID),
				slog.Int("creator_id", creator.ID),
				slog.String("pick_type", string(settings.PickType)),
			)
			return candidate, nil
		}
		if errors.Is(txErr, repositories.ErrPoolInviteCodeConflict) {
			s.logger.WarnContext(ctx, "Invite code collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(txErr, repositories.ErrPoolCreatorInvalid) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create pool: %w", txErr)
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrInviteCodeGeneration, inviteCodeAttempts)
}

func (s *poolService) JoinPool(ctx context.Context, input JoinPoolInput) (result *JoinPoolResult, err error) {
	defer func(start time.Time) { metrics.ObserveOp("join_pool", start, err) }(time.Now())

	code, ok := normalizeInviteCode(input.InviteCode)
	if !ok {
		return nil, ErrInvalidInviteCode
	}

	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", input.UserID, err)
	}

	displayName := strings.TrimSpace(derefString(input.DisplayName))
	if displayName == "" {
		displayName = user.Username
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, ErrDisplayNameTooLong
	}

	result = &JoinPoolResult{}
	err = withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		// Блокировка строки пула сериализует конкурентные вступления и проверку вместимости.
		pool, err := s.poolRepo.GetByInviteCode(ctx, tx, code, true)
		if err != nil {
			if errors.Is(err, repositories.ErrPoolNotFound) {
				return ErrInvalidInviteCode
			}
			return fmt.Errorf("failed to get pool by invite code: %w", err)
		}
		if !pool.IsActive {
			return ErrPoolInactive
		}

		existing, err := s.membershipRepo.Get(ctx, tx, pool.ID, user.ID)
		if err != nil && !errors.Is(err, repositories.ErrMembershipNotFound) {
			return fmt.Errorf("failed to get membership: %w", err)
		}
		if existing != nil && existing.IsActive {
			return ErrAlreadyMember
		}

		count, err := s.membershipRepo.CountActive(ctx, tx, pool.ID)
		if err != nil {
			return fmt.Errorf("failed to count pool members: %w", err)
		}
		if count >= pool.MaxMembers {
			return ErrPoolFull
		}

		if existing != nil {
			if err := s.membershipRepo.Reactivate(ctx, tx, pool.ID, user.ID, displayName); err != nil {
				return fmt.Errorf("failed to reactivate membership: %w", err)
			}
			existing.IsActive = true
			existing.DisplayName = displayName
			result.Membership = existing
			result.Rejoined = true
		} else {
			m := &models.Membership{PoolID: pool.ID, UserID: user.ID, DisplayName: displayName}
			if err := s.membershipRepo.Create(ctx, tx, m); err != nil {
				if errors.Is(err, repositories.ErrMembershipConflict) {
					return ErrAlreadyMember
				}
				return fmt.Errorf("failed to create membership: %w", err)
			}
			result.Membership = m
		}

		pool.MemberCount = count + 1
		result.Pool = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	populatePoolLogoURL(result.Pool, s.uploader)
	s.logger.InfoContext(ctx, "User joined pool",
		slog.Int("pool_id", result.Pool.ID),
		slog.Int("user_id", user.ID),
		slog.Bool("rejoined", result.Rejoined),
	)
	return result, nil
}

func (s *poolService) ListUserPools(ctx context.Context, userID int) ([]*models.Pool, error) {
	pools, err := s.poolRepo.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools for user %d: %w", userID, err)
	}
	for _, p := range pools {
		populatePoolLogoURL(p, s.uploader)
	}
	return pools, nil
}

func (s *poolService) EnsureMember(ctx context.Context, poolID, userID int) error {
	_, _, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	return err
}

func (s *poolService) loadPoolForAdmin(ctx context.Context, poolID, userID int) (*models.Pool, error) {
	pool, membership, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	if err != nil {
		return nil, err
	}
	if !membership.IsAdmin {
		return nil, ErrNotPoolAdmin
	}
	return pool, nil
}

func (s *poolService) GetPoolDetail(ctx context.Context, poolID, userID int) (*PoolDetail, error) {
	pool, membership, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	if err != nil {
		return nil, err
	}

	detail := &PoolDetail{Pool: pool, IsAdmin: membership.IsAdmin}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		members, err := s.membershipRepo.ListActiveByPool(gctx, nil, poolID)
		if err != nil {
			return fmt.Errorf("failed to list pool members: %w", err)
		}
		detail.Members = members
		return nil
	})
	g.Go(func() error {
		week, err := s.weekRepo.GetActive(gctx, &pool.SeasonYear)
		if err != nil {
			if errors.Is(err, repositories.ErrWeekNotFound) {
				return nil
			}
			return fmt.Errorf("failed to get active week: %w", err)
		}
		detail.CurrentWeek = week
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pool.MemberCount = len(detail.Members)
	populatePoolLogoURL(pool, s.uploader)
	return detail, nil
}

func (s *poolService) UpdateSettings(ctx context.Context, poolID, userID int, input UpdatePoolInput) (*models.Pool, error) {
	pool, err := s.loadPoolForAdmin(ctx, poolID, userID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name, err := validatePoolName(*input.Name)
		if err != nil {
			return nil, err
		}
		pool.Name = name
	}
	if input.Description != nil {
		pool.Description = normalizeDescription(input.Description)
	}
	if input.Settings != nil {
		settings := pool.Settings
		if input.Settings.PickType != "" {
			settings.PickType = input.Settings.PickType
		}
		if input.Settings.Tiebreaker != "" {
			settings.Tiebreaker = input.Settings.Tiebreaker
		}
		if err := validatePoolSettings(settings); err != nil {
			return nil, err
		}
		pool.Settings = settings
	}

	count, err := s.membershipRepo.CountActive(ctx, nil, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to count pool members: %w", err)
	}
	if input.MaxMembers != nil {
		if err := validateMaxMembers(*input.MaxMembers); err != nil {
			return nil, err
		}
		if *input.MaxMembers < count {
			return nil, ErrMaxMembersBelowCount
		}
		pool.MaxMembers = *input.MaxMembers
	}

	if err := s.poolRepo.Update(ctx, nil, pool); err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to update pool %d: %w", poolID, err)
	}

	pool.MemberCount = count
	populatePoolLogoURL(pool, s.uploader)
	return pool, nil
}

func (s *poolService) LeavePool(ctx context.Context, poolID, userID int) error {
	if _, err := s.poolRepo.GetByID(ctx, nil, poolID); err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return ErrPoolNotFound
		}
		return fmt.Errorf("failed to get pool %d: %w", poolID, err)
	}

	err := withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		membership, err := s.membershipRepo.Get(ctx, tx, poolID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrMembershipNotFound) {
				return ErrNotPoolMember
			}
			return fmt.Errorf("failed to get membership: %w", err)
		}
		if !membership.IsActive {
			return ErrNotPoolMember
		}

		if membership.IsAdmin {
			admins, err := s.membershipRepo.CountActiveAdmins(ctx, tx, poolID)
			if err != nil {
				return fmt.Errorf("failed to count pool admins: %w", err)
			}
			members, err := s.membershipRepo.CountActive(ctx, tx, poolID)
			if err != nil {
				return fmt.Errorf("failed to count pool members: %w", err)
			}
			if admins <= 1 && members > 1 {
				return ErrLastAdminCannotLeave
			}
		}

		if err := s.membershipRepo.Deactivate(ctx, tx, poolID, userID); err != nil {
			return fmt.Errorf("failed to deactivate membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "User left pool", slog.Int("pool_id", poolID), slog.Int("user_id", userID))
	return nil
}

func (s *poolService) DeactivatePool(ctx context.Context, poolID, userID int) error {
	if _, err := s.loadPoolForAdmin(ctx, poolID, userID); err != nil {
		return err
	}
	if err := s.poolRepo.SetActive(ctx, nil, poolID, false); err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return ErrPoolNotFound
		}
		return fmt.Errorf("failed to deactivate pool %d: %w", poolID, err)
	}
	s.logger.InfoContext(ctx, "Pool deactivated", slog.Int("pool_id", poolID), slog.Int("user_id", userID))
	return nil
}

func (s *poolService) RegenerateInviteCode(ctx context.Context, poolID, userID int) (*models.Pool, error) {
	pool, err := s.loadPoolForAdmin(ctx, poolID, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, genErr := generateInviteCode()
		if genErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInviteCodeGeneration, genErr)
		}
		err = s.poolRepo.UpdateInviteCode(ctx, nil, poolID, code)
		if err == nil {
			pool.InviteCode = code
			populatePoolLogoURL(pool, s.uploader)
			return pool, nil
		}
		if !errors.Is(err, repositories.ErrPoolInviteCodeConflict) {
			if errors.Is(err, repositories.ErrPoolNotFound) {
				return nil, ErrPoolNotFound
			}
			return nil, fmt.Errorf("failed to update invite code: %w", err)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrInviteCodeGeneration, inviteCodeAttempts)
}

func (s *poolService) UploadLogo(ctx context.Context, poolID, userID int, file io.Reader, contentType string) (*models.Pool, error) {
	if s.uploader == nil {
		return nil, ErrStorageUnavailable
	}

	pool, err := s.loadPoolForAdmin(ctx, poolID, userID)
	if err != nil {
		return nil, err
	}

	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%d/logo_%d%s", poolLogoStoragePrefix, poolID, s.now().UnixNano(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload pool logo: %w", err)
	}

	if err := s.poolRepo.UpdateLogoKey(ctx, poolID, &key); err != nil {
		if delErr := s.uploader.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to clean up uploaded logo", slog.String("key", key), slog.Any("error", delErr))
		}
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to save pool logo key: %w", err)
	}

	if oldKey := derefString(pool.LogoKey); oldKey != "" && oldKey != key {
		if err := s.uploader.Delete(ctx, oldKey); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete previous pool logo", slog.String("key", oldKey), slog.Any("error", err))
		}
	}

	pool.LogoKey = &key
	populatePoolLogoURL(pool, s.uploader)
	return pool, nil
}
