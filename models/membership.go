package models

import "time"

type Membership struct {
	PoolID         int       `json:"pool_id" db:"pool_id"`
	UserID         int       `json:"user_id" db:"user_id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	IsAdmin        bool      `json:"is_admin" db:"is_admin"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
	CorrectPicks   int       `json:"correct_picks" db:"correct_picks"`
	TotalPicks     int       `json:"total_picks" db:"total_picks"`
	TotalPoints    int       `json:"total_points" db:"total_points"`
	CurrentStreak  int       `json:"current_streak" db:"current_streak"`
	BestWeekPoints int       `json:"best_week_points" db:"best_week_points"`
}

// WinPercentage возвращает процент верных пиков с одним знаком после запятой.
func (m Membership) WinPercentage() float64 {
	if m.TotalPicks == 0 {
		return 0
	}
	pct := float64(m.CorrectPicks) / float64(m.TotalPicks) * 100
	return float64(int(pct*10+0.5)) / 10
}
