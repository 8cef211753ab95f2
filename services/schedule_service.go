package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prizmbets/pickem/espn"
	"github.com/prizmbets/pickem/metrics"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
)

const (
	syncLookBehind = 7 * 24 * time.Hour
	syncLookAhead  = 21 * 24 * time.Hour
)

// ScheduleProvider - внешний источник расписания (ESPN).
type ScheduleProvider interface {
	FetchSchedule(ctx context.Context, from, to time.Time) ([]espn.Game, error)
}

type ScheduleService interface {
	// SyncSchedule загружает матчи за окно [from, to] и сохраняет недели и матчи.
	SyncSchedule(ctx context.Context, from, to time.Time) (*SyncResult, error)
	// SyncUpcoming синхронизирует окно вокруг текущей даты.
	SyncUpcoming(ctx context.Context) (*SyncResult, error)
	GetCurrentWeek(ctx context.Context) (*WeekGames, error)
	GetWeekGames(ctx context.Context, seasonYear *int, weekNumber int) (*WeekGames, error)
	FinalizeCompletedWeeks(ctx context.Context) (*FinalizeResult, error)
}

type SyncResult struct {
	GamesFetched  int  `json:"games_fetched"`
	GamesSkipped  int  `json:"games_skipped"`
	WeeksUpserted int  `json:"weeks_upserted"`
	GamesCreated  int  `json:"games_created"`
	GamesUpdated  int  `json:"games_updated"`
	ActiveWeek    *int `json:"active_week,omitempty"`
}

type FinalizeResult struct {
	WeeksCompleted []int `json:"weeks_completed"`
	// WeeksPending - недели, где хотя бы один пул не пересчитан; они повторятся следующим запуском.
	WeeksPending []int `json:"weeks_pending"`
	PoolsScored  int   `json:"pools_scored"`
}

type WeekGames struct {
	Week           *models.Week   `json:"week"`
	Games          []*models.Game `json:"games"`
	DeadlinePassed bool           `json:"deadline_passed"`
}

type scheduleService struct {
	db        *sql.DB
	provider  ScheduleProvider
	weekRepo  repositories.WeekRepository
	gameRepo  repositories.GameRepository
	poolRepo  repositories.PoolRepository
	standings StandingsService
	calendar  SeasonCalendar
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduleService(
	db *sql.DB,
	provider ScheduleProvider,
	weekRepo repositories.WeekRepository,
	gameRepo repositories.GameRepository,
	poolRepo repositories.PoolRepository,
	standings StandingsService,
	calendar SeasonCalendar,
	logger *slog.Logger,
) ScheduleService {
	return &scheduleService{
		db:        db,
		provider:  provider,
		weekRepo:  weekRepo,
		gameRepo:  gameRepo,
		poolRepo:  poolRepo,
		standings: standings,
		calendar:  calendar,
		logger:    logger,
		now:       time.Now,
	}
}

type weekBatch struct {
	week  *models.Week
	games []*models.Game
}

// providerGameToModel переводит матч провайдера в модель. ok=false, если команды не распознаны.
func providerGameToModel(g espn.Game) (*models.Game, bool) {
	home := NormalizeTeam(g.HomeTeamName, g.HomeAbbr)
	away := NormalizeTeam(g.AwayTeamName, g.AwayAbbr)
	if home == "" || away == "" || home == away {
		return nil, false
	}

	game := &models.Game{
		HomeTeam:     home,
		AwayTeam:     away,
		HomeTeamName: g.HomeTeamName,
		AwayTeamName: g.AwayTeamName,
		ScheduledAt:  g.Kickoff.UTC(),
		Status:       models.GameStatusScheduled,
		HomeScore:    g.HomeScore,
		AwayScore:    g.AwayScore,
		HomeSpread:   g.HomeSpread,
	}
	if g.ProviderID != "" {
		id := g.ProviderID
		game.ProviderID = &id
	}

	switch {
	case g.Final():
		if g.HomeScore == nil || g.AwayScore == nil {
			// Финал без счета: результат будет записан следующей синхронизацией.
			game.Status = models.GameStatusInProgress
			break
		}
		game.Status = models.GameStatusCompleted
		winner := models.SideTie
		if *g.HomeScore > *g.AwayScore {
			winner = models.SideHome
		} else if *g.AwayScore > *g.HomeScore {
			winner = models.SideAway
		}
		game.Winner = &winner
	case g.State == espn.StateIn:
		game.Status = models.GameStatusInProgress
	case g.State == espn.StatePost:
		// Перенесен или отменен: матч остается незавершенным, счет не пишется.
		game.HomeScore, game.AwayScore = nil, nil
	}
	return game, true
}

// groupByWeek раскладывает матчи по неделям сезона. Дедлайн недели - самый ранний кикофф.
func (s *scheduleService) groupByWeek(providerGames []espn.Game) (map[int]*weekBatch, int) {
	batches := make(map[int]*weekBatch)
	skipped := 0
	for _, pg := range providerGames {
		game, ok := providerGameToModel(pg)
		if !ok {
			skipped++
			continue
		}
		weekNumber := s.calendar.WeekNumber(game.ScheduledAt)
		if weekNumber < 1 {
			skipped++
			continue
		}

		batch, ok := batches[weekNumber]
		if !ok {
			start, end := s.calendar.WeekBounds(weekNumber)
			batch = &weekBatch{week: &models.Week{
				WeekNumber:   weekNumber,
				SeasonYear:   s.calendar.Year(),
				StartDate:    start,
				EndDate:      end,
				PickDeadline: game.ScheduledAt,
			}}
			batches[weekNumber] = batch
		}
		if game.ScheduledAt.Before(batch.week.PickDeadline) {
			batch.week.PickDeadline = game.ScheduledAt
		}
		batch.games = append(batch.games, game)
	}
	return batches, skipped
}

// selectActiveWeek: неделя, содержащая now; иначе ближайшая будущая; иначе последняя неделя сезона.
func selectActiveWeek(weeks []*models.Week, now time.Time) *models.Week {
	if len(weeks) == 0 {
		return nil
	}
	var upcoming, latest *models.Week
	for _, w := range weeks {
		if w.Contains(now) {
			return w
		}
		if w.StartDate.After(now) && (upcoming == nil || w.StartDate.Before(upcoming.StartDate)) {
			upcoming = w
		}
		if latest == nil || w.WeekNumber > latest.WeekNumber {
			latest = w
		}
	}
	if upcoming != nil {
		return upcoming
	}
	return latest
}

func (s *scheduleService) SyncUpcoming(ctx context.Context) (*SyncResult, error) {
	now := s.now().UTC()
	return s.SyncSchedule(ctx, now.Add(-syncLookBehind), now.Add(syncLookAhead))
}

func (s *scheduleService) SyncSchedule(ctx context.Context, from, to time.Time) (result *SyncResult, err error) {
	defer func(start time.Time) { metrics.ObserveOp("sync_schedule", start, err) }(time.Now())

	if to.Before(from) {
		return nil, fmt.Errorf("%w: sync window end is before start", ErrValidationFailed)
	}

	providerGames, err := s.provider.FetchSchedule(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduleProviderFailed, err)
	}

	batches, skipped := s.groupByWeek(providerGames)
	result = &SyncResult{GamesFetched: len(providerGames), GamesSkipped: skipped}

	weekNumbers := make([]int, 0, len(batches))
	for n := range batches {
		weekNumbers = append(weekNumbers, n)
	}
	sort.Ints(weekNumbers)

	seasonYear := s.calendar.Year()
	err = withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		for _, n := range weekNumbers {
			batch := batches[n]
			if err := s.weekRepo.Upsert(ctx, tx, batch.week); err != nil {
				return err
			}
			result.WeeksUpserted++

			for _, game := range batch.games {
				game.WeekID = batch.week.ID
				created, err := s.gameRepo.Upsert(ctx, tx, game)
				if err != nil {
					return err
				}
				if created {
					result.GamesCreated++
				} else {
					result.GamesUpdated++
				}
			}
		}

		weeks, err := s.weekRepo.ListBySeason(ctx, tx, seasonYear)
		if err != nil {
			return fmt.Errorf("failed to list season weeks: %w", err)
		}
		active := selectActiveWeek(weeks, s.now())
		if active == nil {
			return nil
		}
		if !active.IsActive {
			if err := s.weekRepo.SetActive(ctx, tx, seasonYear, active.ID); err != nil {
				return fmt.Errorf("failed to set active week: %w", err)
			}
		}
		activeNumber := active.WeekNumber
		result.ActiveWeek = &activeNumber
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddSyncedGames(result.GamesCreated, result.GamesUpdated)
	s.logger.InfoContext(ctx, "Schedule synced",
		slog.Int("season", seasonYear),
		slog.Int("fetched", result.GamesFetched),
		slog.Int("skipped", result.GamesSkipped),
		slog.Int("weeks", result.WeeksUpserted),
		slog.Int("created", result.GamesCreated),
		slog.Int("updated", result.GamesUpdated),
	)
	return result, nil
}

func (s *scheduleService) weekGames(ctx context.Context, week *models.Week) (*WeekGames, error) {
	games, err := s.gameRepo.ListByWeek(ctx, nil, week.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games for week %d: %w", week.ID, err)
	}
	now := s.now()
	for _, g := range games {
		g.Status = g.EffectiveStatus(now)
	}
	return &WeekGames{Week: week, Games: games, DeadlinePassed: week.DeadlinePassed(now)}, nil
}

func (s *scheduleService) GetCurrentWeek(ctx context.Context) (*WeekGames, error) {
	season := s.calendar.Year()
	week, err := s.weekRepo.GetActive(ctx, &season)
	if err != nil {
		if errors.Is(err, repositories.ErrWeekNotFound) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get active week: %w", err)
	}
	return s.weekGames(ctx, week)
}

func (s *scheduleService) GetWeekGames(ctx context.Context, seasonYear *int, weekNumber int) (*WeekGames, error) {
	season := s.calendar.Year()
	if seasonYear != nil {
		season = *seasonYear
	}
	week, err := s.weekRepo.GetByNumber(ctx, nil, season, weekNumber)
	if err != nil {
		if errors.Is(err, repositories.ErrWeekNotFound) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week %d/%d: %w", season, weekNumber, err)
	}
	return s.weekGames(ctx, week)
}

func (s *scheduleService) FinalizeCompletedWeeks(ctx context.Context) (result *FinalizeResult, err error) {
	defer func(start time.Time) { metrics.ObserveOp("finalize_weeks", start, err) }(time.Now())

	weeks, err := s.weekRepo.ListReadyToComplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks ready to complete: %w", err)
	}

	result = &FinalizeResult{WeeksCompleted: make([]int, 0, len(weeks)), WeeksPending: make([]int, 0)}
	for _, week := range weeks {
		pools, err := s.poolRepo.ListActiveBySeason(ctx, week.SeasonYear)
		if err != nil {
			return nil, fmt.Errorf("failed to list pools for season %d: %w", week.SeasonYear, err)
		}

		failed := 0
		for _, pool := range pools {
			if _, err := s.standings.RecalculateWeek(ctx, pool.ID, week.ID); err != nil {
				// Остальные пулы считаются дальше, неделя останется незавершенной до следующего запуска.
				s.logger.ErrorContext(ctx, "Failed to recalculate pool standings",
					slog.Int("pool_id", pool.ID),
					slog.Int("week_id", week.ID),
					slog.Any("error", err),
				)
				failed++
				continue
			}
			result.PoolsScored++
		}
		if failed > 0 {
			result.WeeksPending = append(result.WeeksPending, week.WeekNumber)
			s.logger.WarnContext(ctx, "Week left open after scoring failures",
				slog.Int("season", week.SeasonYear),
				slog.Int("week", week.WeekNumber),
				slog.Int("failed_pools", failed),
			)
			continue
		}

		// Неделя закрывается только после пересчета всех пулов.
		if err := s.weekRepo.MarkCompleted(ctx, nil, week.ID); err != nil {
			return nil, fmt.Errorf("failed to mark week %d completed: %w", week.ID, err)
		}
		result.WeeksCompleted = append(result.WeeksCompleted, week.WeekNumber)

		s.logger.InfoContext(ctx, "Week finalized",
			slog.Int("season", week.SeasonYear),
			slog.Int("week", week.WeekNumber),
			slog.Int("pools", len(pools)),
		)
	}
	return result, nil
}
