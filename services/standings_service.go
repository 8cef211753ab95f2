package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prizmbets/pickem/metrics"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
)

const EventLeaderboardUpdated = "leaderboard_updated"

// Broadcaster рассылает события в live-комнату пула.
type Broadcaster interface {
	BroadcastToPool(poolID int, eventType string, payload interface{})
}

type StandingsService interface {
	// RecalculateWeek пересчитывает пики, недельную таблицу и итоги участников пула за неделю.
	RecalculateWeek(ctx context.Context, poolID, weekID int) ([]*models.WeeklyStanding, error)
	GetLeaderboard(ctx context.Context, poolID, userID int) ([]models.LeaderboardEntry, error)
	GetWeeklyStandings(ctx context.Context, poolID, userID, weekNumber int) (*WeeklyStandingsView, error)
}

type WeeklyStandingsView struct {
	Week      *models.Week             `json:"week"`
	Standings []*models.WeeklyStanding `json:"standings"`
}

type LeaderboardUpdatedEvent struct {
	PoolID     int                       `json:"pool_id"`
	WeekID     int                       `json:"week_id"`
	WeekNumber int                       `json:"week_number"`
	Standings  []*models.WeeklyStanding  `json:"standings"`
	Leaders    []models.LeaderboardEntry `json:"leaders,omitempty"`
}

type standingsService struct {
	db             *sql.DB
	poolRepo       repositories.PoolRepository
	membershipRepo repositories.MembershipRepository
	weekRepo       repositories.WeekRepository
	gameRepo       repositories.GameRepository
	pickRepo       repositories.PickRepository
	standingRepo   repositories.WeeklyStandingRepository
	broadcaster    Broadcaster
	logger         *slog.Logger
}

func NewStandingsService(
	db *sql.DB,
	poolRepo repositories.PoolRepository,
	membershipRepo repositories.MembershipRepository,
	weekRepo repositories.WeekRepository,
	gameRepo repositories.GameRepository,
	pickRepo repositories.PickRepository,
	standingRepo repositories.WeeklyStandingRepository,
	broadcaster Broadcaster,
	logger *slog.Logger,
) StandingsService {
	return &standingsService{
		db:             db,
		poolRepo:       poolRepo,
		membershipRepo: membershipRepo,
		weekRepo:       weekRepo,
		gameRepo:       gameRepo,
		pickRepo:       pickRepo,
		standingRepo:   standingRepo,
		broadcaster:    broadcaster,
		logger:         logger,
	}
}

// evaluatePick сравнивает прогноз с результатом. Против спреда используется фора хозяев,
// пуш считается неверным прогнозом. Без спреда ATS оценивается как straight up.
func evaluatePick(pickType models.PickType, predicted models.Side, game *models.Game) bool {
	if game.Winner == nil {
		return false
	}
	if pickType == models.PickTypeAgainstSpread && game.HomeSpread != nil && game.HomeScore != nil && game.AwayScore != nil {
		margin := float64(*game.HomeScore) + *game.HomeSpread - float64(*game.AwayScore)
		switch {
		case margin > 0:
			return predicted == models.SideHome
		case margin < 0:
			return predicted == models.SideAway
		default:
			return false
		}
	}
	return predicted == *game.Winner
}

func pickPoints(pickType models.PickType, pick *models.Pick, correct bool) int {
	if !correct {
		return 0
	}
	if pickType == models.PickTypeConfidence {
		if pick.Confidence == nil {
			return 0
		}
		return *pick.Confidence
	}
	return 1
}

// rankWeeklyStandings сортирует по очкам, затем по верным пикам. Входной порядок (порядок
// вступления) сохраняется для равных, поэтому ранги идут подряд 1..n.
func rankWeeklyStandings(standings []*models.WeeklyStanding) {
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return standings[i].CorrectPicks > standings[j].CorrectPicks
	})
	for i, st := range standings {
		st.Rank = i + 1
	}
}

// aggregateMembership пересобирает итоги участника из всех его недельных результатов.
func aggregateMembership(m *models.Membership, history []*models.WeeklyStanding) {
	m.CorrectPicks, m.TotalPicks, m.TotalPoints, m.BestWeekPoints, m.CurrentStreak = 0, 0, 0, 0, 0
	for _, st := range history {
		m.CorrectPicks += st.CorrectPicks
		m.TotalPicks += st.TotalPicks
		m.TotalPoints += st.Points
		if st.Points > m.BestWeekPoints {
			m.BestWeekPoints = st.Points
		}
		if st.IsPerfect {
			m.CurrentStreak++
		} else {
			m.CurrentStreak = 0
		}
	}
}

func (s *standingsService) RecalculateWeek(ctx context.Context, poolID, weekID int) (standings []*models.WeeklyStanding, err error) {
	defer func(start time.Time) { metrics.ObserveOp("recalculate_week", start, err) }(time.Now())

	pool, err := s.poolRepo.GetByID(ctx, nil, poolID)
	if err != nil {
		if errors.Is(err, repositories.ErrPoolNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to get pool %d: %w", poolID, err)
	}
	week, err := s.weekRepo.GetByID(ctx, nil, weekID)
	if err != nil {
		if errors.Is(err, repositories.ErrWeekNotFound) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week %d: %w", weekID, err)
	}
	games, err := s.gameRepo.ListByWeek(ctx, nil, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games for week %d: %w", weekID, err)
	}
	gamesByID := make(map[int]*models.Game, len(games))
	for _, g := range games {
		gamesByID[g.ID] = g
	}

	pickType := pool.Settings.PickType

	err = withTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		members, err := s.membershipRepo.ListActiveByPool(ctx, tx, poolID)
		if err != nil {
			return fmt.Errorf("failed to list pool members: %w", err)
		}
		picks, err := s.pickRepo.ListByPoolWeek(ctx, tx, poolID, weekID)
		if err != nil {
			return fmt.Errorf("failed to list picks: %w", err)
		}

		byUser := make(map[int]*models.WeeklyStanding, len(members))
		standings = make([]*models.WeeklyStanding, 0, len(members))
		for _, m := range members {
			st := &models.WeeklyStanding{PoolID: poolID, UserID: m.UserID, WeekID: weekID, DisplayName: m.DisplayName}
			byUser[m.UserID] = st
			standings = append(standings, st)
		}

		for _, pick := range picks {
			game, ok := gamesByID[pick.GameID]
			if !ok || !game.IsCompleted() {
				continue
			}
			correct := evaluatePick(pickType, pick.PredictedWinner, game)
			points := pickPoints(pickType, pick, correct)
			if err := s.pickRepo.UpdateResult(ctx, tx, pick.ID, correct, points); err != nil {
				return fmt.Errorf("failed to update pick %d result: %w", pick.ID, err)
			}

			st, ok := byUser[pick.UserID]
			if !ok {
				// Пики вышедших участников оцениваются, но в таблицу не попадают.
				continue
			}
			st.TotalPicks++
			st.Points += points
			if correct {
				st.CorrectPicks++
			}
		}

		for _, st := range standings {
			st.IsPerfect = len(games) > 0 && st.TotalPicks == len(games) && st.CorrectPicks == st.TotalPicks
		}
		rankWeeklyStandings(standings)

		for _, st := range standings {
			if err := s.standingRepo.Upsert(ctx, tx, st); err != nil {
				return err
			}
		}

		for _, m := range members {
			history, err := s.standingRepo.ListByPoolUser(ctx, tx, poolID, m.UserID)
			if err != nil {
				return fmt.Errorf("failed to load standings history for user %d: %w", m.UserID, err)
			}
			aggregateMembership(m, history)
			if err := s.membershipRepo.UpdateStats(ctx, tx, m); err != nil {
				return fmt.Errorf("failed to update membership stats for user %d: %w", m.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Weekly standings recalculated",
		slog.Int("pool_id", poolID),
		slog.Int("week", week.WeekNumber),
		slog.Int("members", len(standings)),
	)

	if s.broadcaster != nil {
		event := LeaderboardUpdatedEvent{
			PoolID:     poolID,
			WeekID:     weekID,
			WeekNumber: week.WeekNumber,
			Standings:  standings,
		}
		if leaders, lbErr := s.leaderboard(ctx, poolID); lbErr == nil {
			event.Leaders = leaders
		} else {
			s.logger.WarnContext(ctx, "Failed to load leaderboard for broadcast", slog.Int("pool_id", poolID), slog.Any("error", lbErr))
		}
		s.broadcaster.BroadcastToPool(poolID, EventLeaderboardUpdated, event)
	}
	return standings, nil
}

func (s *standingsService) leaderboard(ctx context.Context, poolID int) ([]models.LeaderboardEntry, error) {
	members, err := s.membershipRepo.ListLeaderboard(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	entries := make([]models.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		entries = append(entries, models.LeaderboardEntry{
			Rank:           i + 1,
			UserID:         m.UserID,
			DisplayName:    m.DisplayName,
			CorrectPicks:   m.CorrectPicks,
			TotalPicks:     m.TotalPicks,
			TotalPoints:    m.TotalPoints,
			WinPercentage:  m.WinPercentage(),
			CurrentStreak:  m.CurrentStreak,
			BestWeekPoints: m.BestWeekPoints,
		})
	}
	return entries, nil
}

func (s *standingsService) GetLeaderboard(ctx context.Context, poolID, userID int) ([]models.LeaderboardEntry, error) {
	if _, _, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID); err != nil {
		return nil, err
	}
	return s.leaderboard(ctx, poolID)
}

func (s *standingsService) GetWeeklyStandings(ctx context.Context, poolID, userID, weekNumber int) (*WeeklyStandingsView, error) {
	pool, _, err := loadPoolMember(ctx, s.poolRepo, s.membershipRepo, poolID, userID)
	if err != nil {
		return nil, err
	}
	week, err := s.weekRepo.GetByNumber(ctx, nil, pool.SeasonYear, weekNumber)
	if err != nil {
		if errors.Is(err, repositories.ErrWeekNotFound) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week %d: %w", weekNumber, err)
	}
	standings, err := s.standingRepo.ListByPoolWeek(ctx, poolID, week.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list weekly standings: %w", err)
	}
	return &WeeklyStandingsView{Week: week, Standings: standings}, nil
}
