package services

import (
	"context"
	"testing"
	"time"

	"github.com/prizmbets/pickem/models"
	"github.com/stretchr/testify/require"
)

func completedGame(home, away int, spread *float64) *models.Game {
	winner := models.SideTie
	if home > away {
		winner = models.SideHome
	} else if away > home {
		winner = models.SideAway
	}
	return &models.Game{Status: models.GameStatusCompleted, HomeScore: &home, AwayScore: &away, Winner: &winner, HomeSpread: spread}
}

func TestEvaluatePick(t *testing.T) {
	tests := []struct {
		name      string
		pickType  models.PickType
		predicted models.Side
		game      *models.Game
		want      bool
	}{
		{"straight up home win", models.PickTypeStraightUp, models.SideHome, completedGame(24, 20, nil), true},
		{"straight up wrong side", models.PickTypeStraightUp, models.SideAway, completedGame(24, 20, nil), false},
		{"tie loses", models.PickTypeStraightUp, models.SideHome, completedGame(17, 17, nil), false},
		{"no result", models.PickTypeStraightUp, models.SideHome, &models.Game{Status: models.GameStatusInProgress}, false},
		{"ats favorite fails to cover", models.PickTypeAgainstSpread, models.SideAway, completedGame(24, 20, floatPtr(-8.5)), true},
		{"ats favorite covers", models.PickTypeAgainstSpread, models.SideHome, completedGame(31, 20, floatPtr(-8.5)), true},
		{"ats underdog covers in loss", models.PickTypeAgainstSpread, models.SideHome, completedGame(20, 23, floatPtr(3.5)), true},
		{"ats push", models.PickTypeAgainstSpread, models.SideHome, completedGame(23, 20, floatPtr(-3)), false},
		{"ats push other side", models.PickTypeAgainstSpread, models.SideAway, completedGame(23, 20, floatPtr(-3)), false},
		{"ats without spread", models.PickTypeAgainstSpread, models.SideHome, completedGame(23, 20, nil), true},
		{"confidence uses winner", models.PickTypeConfidence, models.SideAway, completedGame(10, 13, floatPtr(-7)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, evaluatePick(tt.pickType, tt.predicted, tt.game))
		})
	}
}

func TestPickPoints(t *testing.T) {
	pick := &models.Pick{Confidence: intPtr(12)}
	require.Equal(t, 12, pickPoints(models.PickTypeConfidence, pick, true))
	require.Equal(t, 0, pickPoints(models.PickTypeConfidence, pick, false))
	require.Equal(t, 1, pickPoints(models.PickTypeStraightUp, pick, true))
	require.Equal(t, 0, pickPoints(models.PickTypeConfidence, &models.Pick{}, true))
}

func TestRankWeeklyStandings(t *testing.T) {
	standings := []*models.WeeklyStanding{
		{UserID: 1, Points: 3, CorrectPicks: 3},
		{UserID: 2, Points: 5, CorrectPicks: 2},
		{UserID: 3, Points: 3, CorrectPicks: 3},
		{UserID: 4, Points: 3, CorrectPicks: 4},
		{UserID: 5, Points: 0, CorrectPicks: 0},
	}
	rankWeeklyStandings(standings)

	order := make([]int, 0, len(standings))
	for i, st := range standings {
		require.Equal(t, i+1, st.Rank)
		order = append(order, st.UserID)
	}
	// Равные сохраняют исходный порядок вступления.
	require.Equal(t, []int{2, 4, 1, 3, 5}, order)
}

func TestAggregateMembership(t *testing.T) {
	m := &models.Membership{CorrectPicks: 99, TotalPoints: 99}
	aggregateMembership(m, []*models.WeeklyStanding{
		{CorrectPicks: 10, TotalPicks: 16, Points: 10},
		{CorrectPicks: 14, TotalPicks: 14, Points: 14, IsPerfect: true},
		{CorrectPicks: 13, TotalPicks: 13, Points: 13, IsPerfect: true},
	})
	require.Equal(t, 37, m.CorrectPicks)
	require.Equal(t, 43, m.TotalPicks)
	require.Equal(t, 37, m.TotalPoints)
	require.Equal(t, 14, m.BestWeekPoints)
	require.Equal(t, 2, m.CurrentStreak)
	require.Equal(t, 86.0, m.WinPercentage())

	aggregateMembership(m, []*models.WeeklyStanding{{IsPerfect: true, TotalPicks: 1, CorrectPicks: 1, Points: 1}, {TotalPicks: 2, CorrectPicks: 1, Points: 1}})
	require.Equal(t, 0, m.CurrentStreak)
}

func TestRecalculateWeekConfidencePool(t *testing.T) {
	st := newMemStore()
	db, mock := newTxDB(t)
	bc := &recordingBroadcaster{}
	svc := NewStandingsService(db, fakePoolRepo{st}, fakeMembershipRepo{st}, fakeWeekRepo{st}, fakeGameRepo{st}, fakePickRepo{st}, fakeStandingRepo{st}, bc, discardLogger())
	ctx := context.Background()

	alice := st.addUser("alice")
	bob := st.addUser("bob")
	carol := st.addUser("carol")
	pool := &models.Pool{Name: "p", InviteCode: "CONF0001", CreatorID: alice.ID, SeasonYear: 2025, MaxMembers: 10, IsActive: true,
		Settings: models.PoolSettings{PickType: models.PickTypeConfidence, Tiebreaker: models.TiebreakerCorrectPicks}}
	require.NoError(t, fakePoolRepo{st}.Create(ctx, nil, pool))
	for _, u := range []*models.User{alice, bob, carol} {
		require.NoError(t, fakeMembershipRepo{st}.Create(ctx, nil, &models.Membership{PoolID: pool.ID, UserID: u.ID, DisplayName: u.Username, IsAdmin: u.ID == alice.ID}))
	}

	start := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	week := st.addWeek(models.Week{WeekNumber: 1, SeasonYear: 2025, StartDate: start, EndDate: start.Add(7*24*time.Hour - time.Second), PickDeadline: start})
	g1 := completedGame(24, 20, nil)
	g1.WeekID, g1.HomeTeam, g1.AwayTeam = week.ID, "PHI", "DAL"
	g1 = st.addGame(*g1)
	g2 := completedGame(10, 27, nil)
	g2.WeekID, g2.HomeTeam, g2.AwayTeam = week.ID, "TB", "ATL"
	g2 = st.addGame(*g2)

	picks := fakePickRepo{st}
	for _, p := range []models.Pick{
		{UserID: alice.ID, GameID: g1.ID, PredictedWinner: models.SideHome, Confidence: intPtr(16)},
		{UserID: alice.ID, GameID: g2.ID, PredictedWinner: models.SideAway, Confidence: intPtr(5)},
		{UserID: bob.ID, GameID: g1.ID, PredictedWinner: models.SideAway, Confidence: intPtr(16)},
		{UserID: bob.ID, GameID: g2.ID, PredictedWinner: models.SideAway, Confidence: intPtr(3)},
	} {
		p := p
		p.PoolID = pool.ID
		_, err := picks.Upsert(ctx, nil, &p)
		require.NoError(t, err)
	}

	expectCommits(mock, 1)
	standings, err := svc.RecalculateWeek(ctx, pool.ID, week.ID)
	require.NoError(t, err)
	require.Len(t, standings, 3)

	require.Equal(t, alice.ID, standings[0].UserID)
	require.Equal(t, 21, standings[0].Points)
	require.True(t, standings[0].IsPerfect)
	require.Equal(t, bob.ID, standings[1].UserID)
	require.Equal(t, 3, standings[1].Points)
	require.Equal(t, 1, standings[1].CorrectPicks)
	require.False(t, standings[1].IsPerfect)
	require.Equal(t, carol.ID, standings[2].UserID)
	require.Equal(t, 0, standings[2].TotalPicks)
	require.Equal(t, 3, standings[2].Rank)

	for _, p := range st.picks {
		require.NotNil(t, p.IsCorrect)
	}
	require.Equal(t, []int{pool.ID}, bc.pools)

	// Повторный пересчет не удваивает итоги участников.
	expectCommits(mock, 1)
	_, err = svc.RecalculateWeek(ctx, pool.ID, week.ID)
	require.NoError(t, err)

	leaderboard, err := svc.GetLeaderboard(ctx, pool.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, leaderboard, 3)
	require.Equal(t, alice.ID, leaderboard[0].UserID)
	require.Equal(t, 21, leaderboard[0].TotalPoints)
	require.Equal(t, 100.0, leaderboard[0].WinPercentage)
	require.Equal(t, 1, leaderboard[0].CurrentStreak)
	require.Equal(t, 50.0, leaderboard[1].WinPercentage)
	require.Equal(t, 3, leaderboard[2].Rank)

	view, err := svc.GetWeeklyStandings(ctx, pool.ID, carol.ID, 1)
	require.NoError(t, err)
	require.Equal(t, week.ID, view.Week.ID)
	require.Len(t, view.Standings, 3)

	_, err = svc.GetWeeklyStandings(ctx, pool.ID, carol.ID, 2)
	require.ErrorIs(t, err, ErrWeekNotFound)

	outsider := st.addUser("eve")
	_, err = svc.GetLeaderboard(ctx, pool.ID, outsider.ID)
	require.ErrorIs(t, err, ErrNotPoolMember)

	require.NoError(t, mock.ExpectationsWereMet())
}
