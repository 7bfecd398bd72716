package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/timebid/internal/cache"
)

// GameOverAction is the action type that closes a game's history.
const GameOverAction = "game_over"

// InsertGameActions writes a batch of records in one transaction.
func InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertGameActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
}

// insertGameActionTx inserts a single action record and upserts the game row.
// A game over record finalizes the game.
func insertGameActionTx(ctx context.Context, tx pgx.Tx, rec cache.GameActionRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID); err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	var actor *string
	if rec.ActorSeat != "" {
		actor = &rec.ActorSeat
	}
	actionInsertQ := `
		INSERT INTO game_actions (game_id, action_index, actor_seat, action_type, action_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	if _, err = tx.Exec(ctx, actionInsertQ, rec.GameID, rec.ActionIndex, actor, rec.ActionType, jsonPayload); err != nil {
		return err
	}

	if rec.ActionType == GameOverAction {
		finalizeQ := `
			UPDATE games
			SET status = 'completed', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err = tx.Exec(ctx, finalizeQ, rec.GameID); err != nil {
			return err
		}
	}
	return nil
}

// MarkGameAbandoned marks a game still in progress as abandoned.
func MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	tag, err := DB.Exec(ctx, `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, gameID)
	if err != nil {
		return false, fmt.Errorf("mark game %v abandoned: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountGameActions returns how many actions are stored for a game.
func CountGameActions(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := DB.QueryRow(ctx, `SELECT COUNT(*) FROM game_actions WHERE game_id = $1`, gameID).Scan(&n)
	return n, err
}

// GameStatus returns the status column of a game.
func GameStatus(ctx context.Context, gameID uuid.UUID) (string, error) {
	var status string
	err := DB.QueryRow(ctx, `SELECT status FROM games WHERE id = $1`, gameID).Scan(&status)
	return status, err
}
