package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PickType определяет, как оцениваются пики пула.
type PickType string

const (
	PickTypeStraightUp    PickType = "straight_up"
	PickTypeAgainstSpread PickType = "against_spread"
	PickTypeConfidence    PickType = "confidence"
)

type TiebreakerMethod string

const (
	TiebreakerCorrectPicks TiebreakerMethod = "correct_picks"
	TiebreakerEarliestJoin TiebreakerMethod = "earliest_join"
)

// PoolSettings хранится в колонке pools.settings (JSONB).
type PoolSettings struct {
	PickType   PickType         `json:"pick_type"`
	Tiebreaker TiebreakerMethod `json:"tiebreaker"`
}

func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		PickType:   PickTypeStraightUp,
		Tiebreaker: TiebreakerCorrectPicks,
	}
}

func (s PoolSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *PoolSettings) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*s = DefaultPoolSettings()
		return nil
	default:
		return errors.New("pool settings: unsupported scan type")
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return err
	}
	if s.PickType == "" {
		s.PickType = PickTypeStraightUp
	}
	if s.Tiebreaker == "" {
		s.Tiebreaker = TiebreakerCorrectPicks
	}
	return nil
}

type Pool struct {
	ID          int          `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Description *string      `json:"description,omitempty" db:"description"`
	InviteCode  string       `json:"invite_code" db:"invite_code"`
	CreatorID   int          `json:"creator_id" db:"creator_id"`
	SeasonYear  int          `json:"season_year" db:"season_year"`
	Settings    PoolSettings `json:"settings" db:"settings"`
	MaxMembers  int          `json:"max_members" db:"max_members"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
	LogoKey     *string      `json:"-" db:"logo_key"`
	LogoURL     *string      `json:"logo_url,omitempty" db:"-"`

	MemberCount int `json:"member_count" db:"-"`
}
