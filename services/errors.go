package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Валидация и бизнес-правила
	ErrValidationFailed     = errors.New("validation failed")
	ErrPasswordTooShort     = errors.New("password must be at least 8 characters")
	ErrPoolNameRequired     = errors.New("pool name is required")
	ErrPoolNameTooLong      = errors.New("pool name must be at most 100 characters")
	ErrInvalidPickType      = errors.New("invalid pick type")
	ErrInvalidTiebreaker    = errors.New("invalid tiebreaker")
	ErrInvalidMaxMembers    = errors.New("max members must be between 2 and 500")
	ErrMaxMembersBelowCount = errors.New("max members cannot be lower than the current member count")
	ErrInvalidInviteCode    = errors.New("invalid invite code")
	ErrDisplayNameTooLong   = errors.New("display name must be at most 50 characters")
	ErrPoolFull             = errors.New("pool is full")
	ErrPoolInactive         = errors.New("pool is not active")
	ErrNoPicksProvided      = errors.New("at least one pick is required")
	ErrLastAdminCannotLeave = errors.New("the last admin cannot leave while other members remain")
	ErrStorageUnavailable   = errors.New("file storage is not configured")
	ErrUnsupportedFileType  = errors.New("unsupported file type")

	// Конфликты
	ErrAlreadyMember          = errors.New("user is already a member of this pool")
	ErrUserEmailConflict      = errors.New("email address is already in use")
	ErrUserUsernameConflict   = errors.New("username is already in use")
	ErrInviteCodeGeneration   = errors.New("failed to generate unique invite code")
	ErrScheduleProviderFailed = errors.New("schedule provider request failed")

	// Аутентификация и доступ
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotPoolMember      = errors.New("user is not a member of this pool")
	ErrNotPoolAdmin       = errors.New("only pool admins can perform this action")

	// Ошибки, специфичные для сущностей
	ErrUserNotFound = errors.New("user not found")
	ErrPoolNotFound = errors.New("pool not found")
	ErrWeekNotFound = errors.New("week not found")
	ErrGameNotFound = errors.New("game not found")
)
