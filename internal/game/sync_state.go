// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/models"
)

// PlayerState is one seat as shown on the table display.
type PlayerState struct {
	PlayerID      models.PlayerID `json:"player_id"`
	CharacterID   string          `json:"characterId"`
	CharacterName string          `json:"characterName"`
	Skill         *models.Skill   `json:"skill,omitempty"`
	Time          int             `json:"time"`
	Cards         []models.CardID `json:"cards"`
	ChoiceStage   ChoiceStage     `json:"choiceStage"`
	Action        *Action         `json:"action,omitempty"`
}

// GameState is the full table view sent on connect and after every change.
// Bids of an auction in progress are not part of it.
type GameState struct {
	GameID       uuid.UUID       `json:"game_id"`
	Round        int             `json:"round"`
	Phase        Phase           `json:"phase"`
	GameOver     bool            `json:"gameOver"`
	Rules        HouseRules      `json:"rules"`
	MarketSize   int             `json:"marketSize"`
	Market       []*EventCard    `json:"market"`
	PoolSize     int             `json:"poolSize"`
	DiscardSize  int             `json:"discardSize"`
	InitialCards int             `json:"initialCards"`
	Players      []PlayerState   `json:"players"`
	Prompt       *Prompt         `json:"prompt,omitempty"`
	Standings    []Standing      `json:"standings,omitempty"`
	Discarded    []models.CardID `json:"discarded,omitempty"`
}

// GetState builds the current table view.
// Assumes lock is held by caller.
func (g *TimeBidGame) GetState() GameState {
	st := GameState{
		GameID:       g.ID,
		Round:        g.Round,
		Phase:        g.Phase,
		GameOver:     g.GameOver,
		Rules:        g.HouseRules,
		Market:       make([]*EventCard, 0, len(g.Market)),
		PoolSize:     len(g.AvailablePool),
		DiscardSize:  len(g.Discarded),
		InitialCards: g.initialCards,
		Prompt:       g.CurrentPrompt(),
		Discarded:    cloneCardIDs(g.Discarded),
	}
	if !g.GameOver {
		st.MarketSize = g.RequiredMarketSize()
	}
	for _, id := range g.Market {
		st.Market = append(st.Market, buildEventCard(g.cardInfo(id)))
	}
	for _, p := range g.Players {
		ps := PlayerState{
			PlayerID:      p.ID,
			CharacterID:   p.Character.ID,
			CharacterName: p.Character.Name,
			Skill:         p.Skill(),
			Time:          p.Time,
			Cards:         g.CardsOwnedBy(p.ID),
			ChoiceStage:   g.PendingStage(p.ID),
		}
		if pc, ok := g.pending[p.ID]; ok {
			a := pc.Action
			ps.Action = &a
		}
		st.Players = append(st.Players, ps)
	}
	if g.GameOver {
		st.Standings = g.Standings()
	}
	return st
}

// BroadcastSyncState pushes the full table view to every listener.
// Assumes lock is held by caller.
func (g *TimeBidGame) BroadcastSyncState() {
	st := g.GetState()
	g.fireEvent(GameEvent{Type: EventSyncState, Round: g.Round, State: &st})
}
