package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prizmbets/pickem/metrics"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
)

const (
	minConfidence = 1
	maxConfidence = 16
)

// Причины пропуска пика в пакетной отправке.
const (
	SkipReasonGameNotFound       = "game not found"
	SkipReasonInvalidWinner      = "predicted_winner must be 'home' or 'away'"
	SkipReasonInvalidConfidence  = "confidence must be between 1 and 16"
	SkipReasonDuplicateGame      = "duplicate game in request"
	SkipReasonDuplicateConfident = "confidence value already used in request"
	SkipReasonConfidenceTaken    = "confidence value already used this week"
	SkipReasonDeadlinePassed     = "pick deadline has passed"
	SkipReasonGameStarted        = "game has already started"
)

type PickService interface {
	SubmitPicks(ctx context.Context, poolID, userID int, picks []PickInput) (*SubmitPicksResult, error)
	GetPicks(ctx context.Context, poolID, userID int, weekNumber *int) (*UserWeekPicks, error)
}

type PickInput struct {
	GameID          int         `json:"game_id"`
	PredictedWinner models.Side `json:"predicted_winner"`
	Confidence      *int        `json:"confidence,omitempty"`
}

type SkippedPick struct {
	GameID int    `json:"game_id"`
	Reason string `json:"reason"`
}

type SubmitPicksResult struct {
	Submitted int           `json:"submitted"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   []SkippedPick `json:"skipped"`
}

type UserWeekPicks struct {
	Week           *models.Week   `json:"week"`
	Picks          []*models.Pick `json:"picks"`
	DeadlinePassed bool           `json:"deadline_passed"`
}

type pickService struct {
	db             *sql.DB
	poolRepo       repositories.PoolRepository
	membershipRepo repositories.MembershipRepository
	weekRepo       repositories.WeekRepository
	gameRepo       repositories.GameRepository
	pickRepo       repositories.PickRepository
	logger         *slog.Logger
	now            func() time.Time
}

func NewPickService(
	db *sql.DB,
	poolRepo repositories.PoolRepository,
	membershipRepo repositories.MembershipRepository,
	weekRepo repositories.WeekRepository,
	gameRepo repositories.GameRepository,
	pickRepo repositories.PickRepository,
	logger *slog.Logger,
) PickService {
	return &pickService{
		db:             db,
		poolRepo:       poolRepo,
		membershipRepo: membershipRepo,
		weekRepo:       weekRepo,
		gameRepo:       gameRepo,
		pickRepo:       pickRepo,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *pickService) SubmitPicks(ctx context.Context, poolID, userID int, picks []PickInput) (result *SubmitPicksResult, err error) {
	defer func(start time.Time) { metrics.ObserveOp("submit_picks", start, err) }(time.Now())

	if len(picks) == 0 {
		return nil, ErrNoPicksProvided
	}

	pool, _, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive {
		return nil, ErrPoolInactive
	}

	gameIDs := make([]int, 0, len(picks))
	for _, p := range picks {
		gameIDs = append(gameIDs, p.GameID)
	}
	games, err := s.gameRepo.GetByIDs(ctx, nil, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}

	weeks := make(map[int]*models.Week)
	isConfidencePool := pool.Settings.PickType == models.PickTypeConfidence
	now := s.now()

	result = &SubmitPicksResult{Skipped: make([]SkippedPick, 0)}
	skip := func(gameID int, reason string) {
		result.Skipped = append(result.Skipped, SkippedPick{GameID: gameID, Reason: reason})
	}

	accepted := make([]*models.Pick, 0, len(picks))
	seenGames := make(map[int]bool, len(picks))
	seenConfidence := make(map[int]map[int]bool)

	for _, in := range picks {
		game, ok := games[in.GameID]
		if !ok {
			skip(in.GameID, SkipReasonGameNotFound)
			continue
		}
		if seenGames[in.GameID] {
			skip(in.GameID, SkipReasonDuplicateGame)
			continue
		}
		if !in.PredictedWinner.IsPickable() {
			skip(in.GameID, SkipReasonInvalidWinner)
			continue
		}

		var confidence *int
		if isConfidencePool {
			if in.Confidence == nil || *in.Confidence < minConfidence || *in.Confidence > maxConfidence {
				skip(in.GameID, SkipReasonInvalidConfidence)
				continue
			}
			if seenConfidence[game.WeekID][*in.Confidence] {
				skip(in.GameID, SkipReasonDuplicateConfident)
				continue
			}
			c := *in.Confidence
			confidence = &c
		}

		week, ok := weeks[game.WeekID]
		if !ok {
			week, err = s.weekRepo.GetByID(ctx, nil, game.WeekID)
			if err != nil {
				if errors.Is(err, repositories.ErrWeekNotFound) {
					skip(in.GameID, SkipReasonGameNotFound)
					continue
				}
				return nil, fmt.Errorf("failed to get week %d: %w", game.WeekID, err)
			}
			weeks[game.WeekID] = week
		}

		if week.DeadlinePassed(now) {
			skip(in.GameID, SkipReasonDeadlinePassed)
			continue
		}
		if game.HasStarted(now) {
			skip(in.GameID, SkipReasonGameStarted)
			continue
		}

		seenGames[in.GameID] = true
		if confidence != nil {
			if seenConfidence[game.WeekID] == nil {
				seenConfidence[game.WeekID] = make(map[int]bool)
			}
			seenConfidence[game.WeekID][*confidence] = true
		}
		accepted = append(accepted, &models.Pick{
			PoolID:          poolID,
			UserID:          userID,
			GameID:          in.GameID,
			PredictedWinner: in.PredictedWinner,
			Confidence:      confidence,
		})
	}

	if isConfidencePool && len(accepted) > 0 {
		accepted, err = s.dropTakenConfidence(ctx, poolID, userID, accepted, games, skip)
		if err != nil {
			return nil, err
		}
	}

	if len(accepted) > 0 {
		created, updated := 0, 0
		err = withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
			for _, pick := range accepted {
				inserted, err := s.pickRepo.Upsert(ctx, tx, pick)
				if err != nil {
					return fmt.Errorf("failed to save pick for game %d: %w", pick.GameID, err)
				}
				if inserted {
					created++
				} else {
					updated++
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		result.Created = created
		result.Updated = updated
		result.Submitted = created + updated
	}

	metrics.AddPicks(result.Created, result.Updated, len(result.Skipped))
	s.logger.InfoContext(ctx, "Picks submitted",
		slog.Int("pool_id", poolID),
		slog.Int("user_id", userID),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// dropTakenConfidence отбрасывает пики, чья уверенность уже занята сохраненным пиком той же недели.
// Сохраненные пики по матчам, которые перезаписываются этим запросом, не учитываются.
func (s *pickService) dropTakenConfidence(
	ctx context.Context,
	poolID, userID int,
	accepted []*models.Pick,
	games map[int]*models.Game,
	skip func(gameID int, reason string),
) ([]*models.Pick, error) {
	stored := make(map[int][]*models.Pick)
	for _, p := range accepted {
		weekID := games[p.GameID].WeekID
		if _, ok := stored[weekID]; ok {
			continue
		}
		picks, err := s.pickRepo.ListByPoolUserWeek(ctx, poolID, userID, weekID)
		if err != nil {
			return nil, fmt.Errorf("failed to load saved picks for week %d: %w", weekID, err)
		}
		stored[weekID] = picks
	}

	// Отброшенный пик оставляет в силе сохраненное значение, поэтому проверка повторяется до неподвижной точки.
	for {
		overwritten := make(map[int]bool, len(accepted))
		for _, p := range accepted {
			overwritten[p.GameID] = true
		}
		taken := make(map[int]map[int]bool, len(stored))
		for weekID, picks := range stored {
			taken[weekID] = make(map[int]bool, len(picks))
			for _, p := range picks {
				if p.Confidence != nil && !overwritten[p.GameID] {
					taken[weekID][*p.Confidence] = true
				}
			}
		}

		kept := make([]*models.Pick, 0, len(accepted))
		for _, p := range accepted {
			if taken[games[p.GameID].WeekID][*p.Confidence] {
				skip(p.GameID, SkipReasonConfidenceTaken)
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == len(accepted) {
			return kept, nil
		}
		accepted = kept
	}
}

func (s *pickService) GetPicks(ctx context.Context, poolID, userID int, weekNumber *int) (*UserWeekPicks, error) {
	pool, _, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	if err != nil {
		return nil, err
	}

	var week *models.Week
	if weekNumber != nil {
		week, err = s.weekRepo.GetByNumber(ctx, nil, pool.SeasonYear, *weekNumber)
	} else {
		week, err = s.weekRepo.GetActive(ctx, &pool.SeasonYear)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrWeekNotFound) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week: %w", err)
	}

	picks, err := s.pickRepo.ListByPoolUserWeek(ctx, poolID, userID, week.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks: %w", err)
	}

	return &UserWeekPicks{
		Week:           week,
		Picks:          picks,
		DeadlinePassed: week.DeadlinePassed(s.now()),
	}, nil
}
