package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema создает все таблицы. Можно вызывать повторно - везде IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    username TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT users_email_key UNIQUE (email),
    CONSTRAINT users_username_key UNIQUE (username)
);

CREATE TABLE IF NOT EXISTS pools (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    invite_code CHAR(8) NOT NULL,
    creator_id INTEGER NOT NULL REFERENCES users(id),
    season_year INTEGER NOT NULL,
    settings JSONB NOT NULL DEFAULT '{}'::jsonb,
    max_members INTEGER NOT NULL DEFAULT 50 CHECK (max_members > 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    logo_key TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT pools_invite_code_key UNIQUE (invite_code)
);

CREATE TABLE IF NOT EXISTS pool_memberships (
    pool_id INTEGER NOT NULL REFERENCES pools(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    display_name TEXT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    correct_picks INTEGER NOT NULL DEFAULT 0,
    total_picks INTEGER NOT NULL DEFAULT 0,
    total_points INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    best_week_points INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (pool_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_pool_memberships_user ON pool_memberships(user_id);

CREATE TABLE IF NOT EXISTS nfl_weeks (
    id SERIAL PRIMARY KEY,
    week_number INTEGER NOT NULL,
    season_year INTEGER NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    pick_deadline TIMESTAMPTZ NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT nfl_weeks_week_season_key UNIQUE (week_number, season_year)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nfl_weeks_one_active
    ON nfl_weeks(season_year) WHERE is_active;

CREATE TABLE IF NOT EXISTS nfl_games (
    id SERIAL PRIMARY KEY,
    week_id INTEGER NOT NULL REFERENCES nfl_weeks(id),
    provider_id TEXT,
    home_team TEXT NOT NULL,
    away_team TEXT NOT NULL,
    home_team_name TEXT NOT NULL,
    away_team_name TEXT NOT NULL,
    scheduled_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'scheduled' CHECK (status IN ('scheduled', 'in_progress', 'completed')),
    winner TEXT CHECK (winner IN ('home', 'away', 'tie')),
    home_score INTEGER,
    away_score INTEGER,
    home_spread NUMERIC(5,1),
    CONSTRAINT nfl_games_week_home_away_key UNIQUE (week_id, home_team, away_team)
);

CREATE TABLE IF NOT EXISTS pool_picks (
    id SERIAL PRIMARY KEY,
    pool_id INTEGER NOT NULL REFERENCES pools(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    game_id INTEGER NOT NULL REFERENCES nfl_games(id),
    predicted_winner TEXT NOT NULL CHECK (predicted_winner IN ('home', 'away')),
    confidence INTEGER,
    is_correct BOOLEAN,
    points_earned INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT pool_picks_pool_user_game_key UNIQUE (pool_id, user_id, game_id)
);

CREATE INDEX IF NOT EXISTS idx_pool_picks_game ON pool_picks(game_id);

CREATE TABLE IF NOT EXISTS pool_weekly_standings (
    pool_id INTEGER NOT NULL REFERENCES pools(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    week_id INTEGER NOT NULL REFERENCES nfl_weeks(id),
    correct_picks INTEGER NOT NULL DEFAULT 0,
    total_picks INTEGER NOT NULL DEFAULT 0,
    points INTEGER NOT NULL DEFAULT 0,
    is_perfect BOOLEAN NOT NULL DEFAULT FALSE,
    rank INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (pool_id, user_id, week_id)
);
`
