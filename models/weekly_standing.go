package models

import "time"

type WeeklyStanding struct {
	PoolID       int       `json:"pool_id" db:"pool_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	WeekID       int       `json:"week_id" db:"week_id"`
	CorrectPicks int       `json:"correct_picks" db:"correct_picks"`
	TotalPicks   int       `json:"total_picks" db:"total_picks"`
	Points       int       `json:"points" db:"points"`
	IsPerfect    bool      `json:"is_perfect" db:"is_perfect"`
	Rank         int       `json:"rank" db:"rank"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	DisplayName string `json:"display_name,omitempty" db:"-"`
}

// LeaderboardEntry - строка сезонной таблицы пула.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	UserID         int     `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	CorrectPicks   int     `json:"correct_picks"`
	TotalPicks     int     `json:"total_picks"`
	TotalPoints    int     `json:"total_points"`
	WinPercentage  float64 `json:"win_percentage"`
	CurrentStreak  int     `json:"current_streak"`
	BestWeekPoints int     `json:"best_week_points"`
}
