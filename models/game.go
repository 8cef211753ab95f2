package models

import "time"

type GameStatus string

const (
	GameStatusScheduled  GameStatus = "scheduled"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
)

// Side обозначает сторону матча: хозяева или гости.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
	SideTie  Side = "tie"
)

func (s Side) IsPickable() bool {
	return s == SideHome || s == SideAway
}

type Game struct {
	ID           int        `json:"id" db:"id"`
	WeekID       int        `json:"week_id" db:"week_id"`
	ProviderID   *string    `json:"provider_id,omitempty" db:"provider_id"`
	HomeTeam     string     `json:"home_team" db:"home_team"`
	AwayTeam     string     `json:"away_team" db:"away_team"`
	HomeTeamName string     `json:"home_team_name" db:"home_team_name"`
	AwayTeamName string     `json:"away_team_name" db:"away_team_name"`
	ScheduledAt  time.Time  `json:"scheduled_at" db:"scheduled_at"`
	Status       GameStatus `json:"status" db:"status"`
	Winner       *Side      `json:"winner,omitempty" db:"winner"`
	HomeScore    *int       `json:"home_score,omitempty" db:"home_score"`
	AwayScore    *int       `json:"away_score,omitempty" db:"away_score"`
	HomeSpread   *float64   `json:"home_spread,omitempty" db:"home_spread"`
}

// HasStarted: матч считается начавшимся в момент кикоффа.
func (g Game) HasStarted(now time.Time) bool {
	return g.Status != GameStatusScheduled || !now.Before(g.ScheduledAt)
}

func (g Game) IsCompleted() bool {
	return g.Status == GameStatusCompleted
}

// EffectiveStatus учитывает переход scheduled -> in_progress по времени кикоффа.
func (g Game) EffectiveStatus(now time.Time) GameStatus {
	if g.Status == GameStatusScheduled && !now.Before(g.ScheduledAt) {
		return GameStatusInProgress
	}
	return g.Status
}
