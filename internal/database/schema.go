package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id                 UUID PRIMARY KEY,
		status             TEXT NOT NULL DEFAULT 'in_progress',
		start_time         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time           TIMESTAMPTZ,
		initial_game_state JSONB,
		final_game_state   JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		game_id        UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		action_index   INTEGER NOT NULL,
		actor_seat     TEXT,
		action_type    TEXT NOT NULL,
		action_payload JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (game_id, action_index)
	)`,
	`CREATE TABLE IF NOT EXISTS game_results (
		game_id      UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		seat         TEXT NOT NULL,
		character_id TEXT NOT NULL,
		final_time   INTEGER NOT NULL,
		cards_owned  INTEGER[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (game_id, seat)
	)`,
}

// Migrate creates the history tables if they do not exist yet.
func Migrate(ctx context.Context) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
