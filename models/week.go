package models

import "time"

type Week struct {
	ID           int       `json:"id" db:"id"`
	WeekNumber   int       `json:"week_number" db:"week_number"`
	SeasonYear   int       `json:"season_year" db:"season_year"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`
	PickDeadline time.Time `json:"pick_deadline" db:"pick_deadline"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	IsCompleted  bool      `json:"is_completed" db:"is_completed"`
}

func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.StartDate) && !t.After(w.EndDate)
}

func (w Week) DeadlinePassed(now time.Time) bool {
	return !now.Before(w.PickDeadline)
}
