// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GameResult is one seat's final line.
type GameResult struct {
	Seat        string
	CharacterID string
	FinalTime   int
	Cards       []int32
}

// UpsertInitialGameState records a new game with the setup it started from.
func UpsertInitialGameState(ctx context.Context, gameID uuid.UUID, initialData interface{}) error {
	dataBytes, err := json.Marshal(initialData)
	if err != nil {
		return fmt.Errorf("failed to marshal initial game state: %w", err)
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO games (id, status, initial_game_state, start_time)
			VALUES ($1, 'in_progress', $2, NOW())
			ON CONFLICT (id)
			DO UPDATE SET initial_game_state = EXCLUDED.initial_game_state
		`
		_, e := tx.Exec(ctx, q, gameID, dataBytes)
		return e
	})
}

// RecordGameResults marks the game completed and stores every seat's result
// along with the final snapshot.
func RecordGameResults(ctx context.Context, gameID uuid.UUID, results []GameResult, finalSnapshot interface{}) error {
	jsonData, err := json.Marshal(finalSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status, end_time, final_game_state)
			VALUES ($1, 'completed', NOW(), $2)
			ON CONFLICT (id) DO UPDATE
			SET status = 'completed', end_time = NOW(), final_game_state = EXCLUDED.final_game_state
		`
		if _, e := tx.Exec(ctx, upsertGame, gameID, jsonData); e != nil {
			return e
		}

		q := `
			INSERT INTO game_results (game_id, seat, character_id, final_time, cards_owned)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (game_id, seat)
			DO UPDATE SET character_id = $3, final_time = $4, cards_owned = $5
		`
		for _, r := range results {
			cards := r.Cards
			if cards == nil {
				cards = []int32{}
			}
			if _, e := tx.Exec(ctx, q, gameID, r.Seat, r.CharacterID, r.FinalTime, cards); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}

// GetGameResults returns the stored results of a game in seat order.
func GetGameResults(ctx context.Context, gameID uuid.UUID) ([]GameResult, error) {
	rows, err := DB.Query(ctx, `
		SELECT seat, character_id, final_time, cards_owned
		FROM game_results
		WHERE game_id = $1
		ORDER BY seat
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query game results: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameResult, error) {
		var r GameResult
		err := row.Scan(&r.Seat, &r.CharacterID, &r.FinalTime, &r.Cards)
		return r, err
	})
}
