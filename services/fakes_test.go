package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/repositories"
	"github.com/stretchr/testify/require"
)

// memStore - общее in-memory состояние для фейковых репозиториев.
// Транзакции не моделируются: exec игнорируется.
type memStore struct {
	mu          sync.Mutex
	nextID      int
	clock       time.Time
	users       map[int]*models.User
	pools       map[int]*models.Pool
	memberships map[[2]int]*models.Membership
	weeks       map[int]*models.Week
	games       map[int]*models.Game
	picks       map[int]*models.Pick
	standings   map[[3]int]*models.WeeklyStanding
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
		users:       make(map[int]*models.User),
		pools:       make(map[int]*models.Pool),
		memberships: make(map[[2]int]*models.Membership),
		weeks:       make(map[int]*models.Week),
		games:       make(map[int]*models.Game),
		picks:       make(map[int]*models.Pick),
		standings:   make(map[[3]int]*models.WeeklyStanding),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

// tick возвращает монотонно растущее время для created_at / joined_at.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(username string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:        s.id(),
		Email:     strings.ToLower(username) + "@example.com",
		Username:  username,
		Role:      models.RoleUser,
		CreatedAt: s.tick(),
	}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addWeek(w models.Week) *models.Week {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.id()
	cp := w
	s.weeks[w.ID] = &cp
	return &w
}

func (s *memStore) addGame(g models.Game) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	cp := g
	s.games[g.ID] = &cp
	return &g
}

func (s *memStore) membership(poolID, userID int) *models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[[2]int{poolID, userID}]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (s *memStore) activeCount(poolID int) int {
	n := 0
	for k, m := range s.memberships {
		if k[0] == poolID && m.IsActive {
			n++
		}
	}
	return n
}

func (s *memStore) pickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.picks)
}

// --- users ---

type fakeUserRepo struct{ *memStore }

func (r fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
		if u.Username == user.Username {
			return repositories.ErrUserUsernameConflict
		}
	}
	user.ID = r.id()
	user.CreatedAt = r.tick()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

// --- pools ---

type fakePoolRepo struct{ *memStore }

func (r fakePoolRepo) Create(_ context.Context, _ repositories.SQLExecutor, pool *models.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		if p.InviteCode == pool.InviteCode {
			return repositories.ErrPoolInviteCodeConflict
		}
	}
	if _, ok := r.users[pool.CreatorID]; !ok {
		return repositories.ErrPoolCreatorInvalid
	}
	pool.ID = r.id()
	pool.CreatedAt = r.tick()
	pool.UpdatedAt = pool.CreatedAt
	cp := *pool
	r.pools[pool.ID] = &cp
	return nil
}

func (r fakePoolRepo) get(id int) (*models.Pool, error) {
	p, ok := r.pools[id]
	if !ok {
		return nil, repositories.ErrPoolNotFound
	}
	cp := *p
	cp.MemberCount = r.activeCount(id)
	return &cp, nil
}

func (r fakePoolRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r fakePoolRepo) GetByInviteCode(_ context.Context, _ repositories.SQLExecutor, code string, _ bool) (*models.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pools {
		if p.InviteCode == code {
			return r.get(id)
		}
	}
	return nil, repositories.ErrPoolNotFound
}

func (r fakePoolRepo) ListByMember(_ context.Context, userID int) ([]*models.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pools := make([]*models.Pool, 0)
	for k, m := range r.memberships {
		if k[1] != userID || !m.IsActive {
			continue
		}
		p, err := r.get(k[0])
		if err != nil || !p.IsActive {
			continue
		}
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID > pools[j].ID })
	return pools, nil
}

func (r fakePoolRepo) ListActiveBySeason(_ context.Context, seasonYear int) ([]*models.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pools := make([]*models.Pool, 0)
	for id, p := range r.pools {
		if p.SeasonYear == seasonYear && p.IsActive {
			cp, _ := r.get(id)
			pools = append(pools, cp)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (r fakePoolRepo) Update(_ context.Context, _ repositories.SQLExecutor, pool *models.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[pool.ID]
	if !ok {
		return repositories.ErrPoolNotFound
	}
	p.Name, p.Description, p.Settings, p.MaxMembers = pool.Name, pool.Description, pool.Settings, pool.MaxMembers
	return nil
}

func (r fakePoolRepo) UpdateInviteCode(_ context.Context, _ repositories.SQLExecutor, id int, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		if p.InviteCode == code && p.ID != id {
			return repositories.ErrPoolInviteCodeConflict
		}
	}
	p, ok := r.pools[id]
	if !ok {
		return repositories.ErrPoolNotFound
	}
	p.InviteCode = code
	return nil
}

func (r fakePoolRepo) SetActive(_ context.Context, _ repositories.SQLExecutor, id int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[id]
	if !ok {
		return repositories.ErrPoolNotFound
	}
	p.IsActive = active
	return nil
}

func (r fakePoolRepo) UpdateLogoKey(_ context.Context, id int, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[id]
	if !ok {
		return repositories.ErrPoolNotFound
	}
	p.LogoKey = logoKey
	return nil
}

// --- memberships ---

type fakeMembershipRepo struct{ *memStore }

func (r fakeMembershipRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int{m.PoolID, m.UserID}
	if _, ok := r.memberships[key]; ok {
		return repositories.ErrMembershipConflict
	}
	m.IsActive = true
	m.JoinedAt = r.tick()
	cp := *m
	r.memberships[key] = &cp
	return nil
}

func (r fakeMembershipRepo) Get(_ context.Context, _ repositories.SQLExecutor, poolID, userID int) (*models.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[[2]int{poolID, userID}]
	if !ok {
		return nil, repositories.ErrMembershipNotFound
	}
	cp := *m
	return &cp, nil
}

func (r fakeMembershipRepo) Reactivate(_ context.Context, _ repositories.SQLExecutor, poolID, userID int, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[[2]int{poolID, userID}]
	if !ok {
		return repositories.ErrMembershipNotFound
	}
	m.IsActive = true
	m.DisplayName = displayName
	return nil
}

func (r fakeMembershipRepo) Deactivate(_ context.Context, _ repositories.SQLExecutor, poolID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[[2]int{poolID, userID}]
	if !ok {
		return repositories.ErrMembershipNotFound
	}
	m.IsActive = false
	return nil
}

func (r fakeMembershipRepo) CountActive(_ context.Context, _ repositories.SQLExecutor, poolID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount(poolID), nil
}

func (r fakeMembershipRepo) CountActiveAdmins(_ context.Context, _ repositories.SQLExecutor, poolID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, m := range r.memberships {
		if k[0] == poolID && m.IsActive && m.IsAdmin {
			n++
		}
	}
	return n, nil
}

func (r fakeMembershipRepo) active(poolID int) []*models.Membership {
	members := make([]*models.Membership, 0)
	for k, m := range r.memberships {
		if k[0] == poolID && m.IsActive {
			cp := *m
			members = append(members, &cp)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].UserID < members[j].UserID
	})
	return members
}

func (r fakeMembershipRepo) ListActiveByPool(_ context.Context, _ repositories.SQLExecutor, poolID int) ([]*models.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active(poolID), nil
}

func (r fakeMembershipRepo) ListLeaderboard(_ context.Context, poolID int) ([]*models.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.active(poolID)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].CorrectPicks != members[j].CorrectPicks {
			return members[i].CorrectPicks > members[j].CorrectPicks
		}
		return members[i].TotalPoints > members[j].TotalPoints
	})
	return members, nil
}

func (r fakeMembershipRepo) UpdateStats(_ context.Context, _ repositories.SQLExecutor, m *models.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.memberships[[2]int{m.PoolID, m.UserID}]
	if !ok {
		return repositories.ErrMembershipNotFound
	}
	stored.CorrectPicks = m.CorrectPicks
	stored.TotalPicks = m.TotalPicks
	stored.TotalPoints = m.TotalPoints
	stored.CurrentStreak = m.CurrentStreak
	stored.BestWeekPoints = m.BestWeekPoints
	return nil
}

// --- weeks ---

type fakeWeekRepo struct{ *memStore }

func (r fakeWeekRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, week *models.Week) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.weeks {
		if w.SeasonYear == week.SeasonYear && w.WeekNumber == week.WeekNumber {
			w.StartDate, w.EndDate = week.StartDate, week.EndDate
			if week.PickDeadline.Before(w.PickDeadline) {
				w.PickDeadline = week.PickDeadline
			}
			*week = *w
			return nil
		}
	}
	week.ID = r.id()
	cp := *week
	r.weeks[week.ID] = &cp
	return nil
}

func (r fakeWeekRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Week, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.weeks[id]
	if !ok {
		return nil, repositories.ErrWeekNotFound
	}
	cp := *w
	return &cp, nil
}

func (r fakeWeekRepo) GetByNumber(_ context.Context, _ repositories.SQLExecutor, seasonYear, weekNumber int) (*models.Week, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.weeks {
		if w.SeasonYear == seasonYear && w.WeekNumber == weekNumber {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repositories.ErrWeekNotFound
}

func (r fakeWeekRepo) GetActive(_ context.Context, seasonYear *int) (*models.Week, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.Week
	for _, w := range r.weeks {
		if !w.IsActive || (seasonYear != nil && w.SeasonYear != *seasonYear) {
			continue
		}
		if found == nil || w.SeasonYear > found.SeasonYear {
			found = w
		}
	}
	if found == nil {
		return nil, repositories.ErrWeekNotFound
	}
	cp := *found
	return &cp, nil
}

func (r fakeWeekRepo) ListBySeason(_ context.Context, _ repositories.SQLExecutor, seasonYear int) ([]*models.Week, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	weeks := make([]*models.Week, 0)
	for _, w := range r.weeks {
		if w.SeasonYear == seasonYear {
			cp := *w
			weeks = append(weeks, &cp)
		}
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekNumber < weeks[j].WeekNumber })
	return weeks, nil
}

func (r fakeWeekRepo) SetActive(_ context.Context, _ repositories.SQLExecutor, seasonYear, weekID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.weeks[weekID]
	if !ok || target.SeasonYear != seasonYear {
		return repositories.ErrWeekNotFound
	}
	for _, w := range r.weeks {
		if w.SeasonYear == seasonYear {
			w.IsActive = w.ID == weekID
		}
	}
	return nil
}

func (r fakeWeekRepo) MarkCompleted(_ context.Context, _ repositories.SQLExecutor, weekID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.weeks[weekID]
	if !ok {
		return repositories.ErrWeekNotFound
	}
	w.IsCompleted = true
	return nil
}

func (r fakeWeekRepo) ListReadyToComplete(_ context.Context) ([]*models.Week, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	weeks := make([]*models.Week, 0)
	for _, w := range r.weeks {
		if w.IsCompleted {
			continue
		}
		total, done := 0, 0
		for _, g := range r.games {
			if g.WeekID == w.ID {
				total++
				if g.Status == models.GameStatusCompleted {
					done++
				}
			}
		}
		if total > 0 && total == done {
			cp := *w
			weeks = append(weeks, &cp)
		}
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekNumber < weeks[j].WeekNumber })
	return weeks, nil
}

// --- games ---

type fakeGameRepo struct{ *memStore }

func (r fakeGameRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, game *models.Game) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.weeks[game.WeekID]; !ok {
		return false, repositories.ErrGameWeekInvalid
	}
	for _, g := range r.games {
		if g.WeekID == game.WeekID && g.HomeTeam == game.HomeTeam && g.AwayTeam == game.AwayTeam {
			if g.Status != models.GameStatusCompleted {
				g.ScheduledAt, g.Status, g.Winner = game.ScheduledAt, game.Status, game.Winner
				if game.HomeScore != nil {
					g.HomeScore = game.HomeScore
				}
				if game.AwayScore != nil {
					g.AwayScore = game.AwayScore
				}
				if game.HomeSpread != nil {
					g.HomeSpread = game.HomeSpread
				}
			}
			game.ID, game.Status, game.Winner = g.ID, g.Status, g.Winner
			return false, nil
		}
	}
	game.ID = r.id()
	cp := *game
	r.games[game.ID] = &cp
	return true, nil
}

func (r fakeGameRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (r fakeGameRepo) GetByIDs(_ context.Context, _ repositories.SQLExecutor, ids []int) (map[int]*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	games := make(map[int]*models.Game, len(ids))
	for _, id := range ids {
		if g, ok := r.games[id]; ok {
			cp := *g
			games[id] = &cp
		}
	}
	return games, nil
}

func (r fakeGameRepo) ListByWeek(_ context.Context, _ repositories.SQLExecutor, weekID int) ([]*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	games := make([]*models.Game, 0)
	for _, g := range r.games {
		if g.WeekID == weekID {
			cp := *g
			games = append(games, &cp)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if !games[i].ScheduledAt.Equal(games[j].ScheduledAt) {
			return games[i].ScheduledAt.Before(games[j].ScheduledAt)
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

// --- picks ---

type fakePickRepo struct{ *memStore }

func (r fakePickRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, pick *models.Pick) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.picks {
		if p.PoolID == pick.PoolID && p.UserID == pick.UserID && p.GameID == pick.GameID {
			p.PredictedWinner, p.Confidence = pick.PredictedWinner, pick.Confidence
			p.UpdatedAt = r.tick()
			pick.ID, pick.CreatedAt, pick.UpdatedAt = p.ID, p.CreatedAt, p.UpdatedAt
			return false, nil
		}
	}
	pick.ID = r.id()
	pick.CreatedAt = r.tick()
	pick.UpdatedAt = pick.CreatedAt
	cp := *pick
	r.picks[pick.ID] = &cp
	return true, nil
}

func (r fakePickRepo) list(poolID, weekID int, userID *int) []*models.Pick {
	picks := make([]*models.Pick, 0)
	for _, p := range r.picks {
		g, ok := r.games[p.GameID]
		if !ok || p.PoolID != poolID || g.WeekID != weekID || (userID != nil && p.UserID != *userID) {
			continue
		}
		cp := *p
		picks = append(picks, &cp)
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].UserID != picks[j].UserID {
			return picks[i].UserID < picks[j].UserID
		}
		return picks[i].GameID < picks[j].GameID
	})
	return picks
}

func (r fakePickRepo) ListByPoolUserWeek(_ context.Context, poolID, userID, weekID int) ([]*models.Pick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	picks := r.list(poolID, weekID, &userID)
	for _, p := range picks {
		g := *r.games[p.GameID]
		p.Game = &g
	}
	return picks, nil
}

func (r fakePickRepo) ListByPoolWeek(_ context.Context, _ repositories.SQLExecutor, poolID, weekID int) ([]*models.Pick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(poolID, weekID, nil), nil
}

func (r fakePickRepo) UpdateResult(_ context.Context, _ repositories.SQLExecutor, pickID int, isCorrect bool, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.picks[pickID]
	if !ok {
		return repositories.ErrPickNotFound
	}
	c := isCorrect
	p.IsCorrect = &c
	p.PointsEarned = points
	return nil
}

// --- standings ---

type fakeStandingRepo struct{ *memStore }

func (r fakeStandingRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, st *models.WeeklyStanding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st.UpdatedAt = r.tick()
	cp := *st
	r.standings[[3]int{st.PoolID, st.UserID, st.WeekID}] = &cp
	return nil
}

func (r fakeStandingRepo) ListByPoolWeek(_ context.Context, poolID, weekID int) ([]*models.WeeklyStanding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.WeeklyStanding, 0)
	for k, st := range r.standings {
		if k[0] == poolID && k[2] == weekID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (r fakeStandingRepo) ListByPoolUser(_ context.Context, _ repositories.SQLExecutor, poolID, userID int) ([]*models.WeeklyStanding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.WeeklyStanding, 0)
	for k, st := range r.standings {
		if k[0] == poolID && k[1] == userID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.weeks[out[i].WeekID].WeekNumber < r.weeks[out[j].WeekID].WeekNumber
	})
	return out, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTxDB возвращает sqlmock-базу для withTx. Ожидания Begin/Commit/Rollback задает тест.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	pools  []int
}

func (b *recordingBroadcaster) BroadcastToPool(poolID int, eventType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	b.pools = append(b.pools, poolID)
}

func intPtr(v int) *int { return &v }

func sidePtr(s models.Side) *models.Side { return &s }
