package models

import "time"

type Pick struct {
	ID              int       `json:"id" db:"id"`
	PoolID          int       `json:"pool_id" db:"pool_id"`
	UserID          int       `json:"user_id" db:"user_id"`
	GameID          int       `json:"game_id" db:"game_id"`
	PredictedWinner Side      `json:"predicted_winner" db:"predicted_winner"`
	Confidence      *int      `json:"confidence,omitempty" db:"confidence"`
	IsCorrect       *bool     `json:"is_correct" db:"is_correct"`
	PointsEarned    int       `json:"points_earned" db:"points_earned"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`

	Game *Game `json:"game,omitempty" db:"-"`
}

func (p Pick) IsEvaluated() bool {
	return p.IsCorrect != nil
}
