// internal/game/game_store.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type storedGame struct {
	game    *TimeBidGame
	touched time.Time
}

// GameStore keeps every live table in memory.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*storedGame
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[uuid.UUID]*storedGame),
	}
}

func (s *GameStore) AddGame(game *TimeBidGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = &storedGame{game: game, touched: time.Now()}
}

// GetGame returns the game and marks it as recently used.
func (s *GameStore) GetGame(id uuid.UUID) (*TimeBidGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, exists := s.games[id]
	if !exists {
		return nil, false
	}
	sg.touched = time.Now()
	return sg.game, true
}

// Touch marks the game as recently used without fetching it.
func (s *GameStore) Touch(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg, ok := s.games[id]; ok {
		sg.touched = time.Now()
	}
}

func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// Len returns the number of live games.
func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// EvictIdle drops games not fetched since before cutoff and returns their ids.
func (s *GameStore) EvictIdle(cutoff time.Time) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []uuid.UUID
	for id, sg := range s.games {
		if sg.touched.Before(cutoff) {
			delete(s.games, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
