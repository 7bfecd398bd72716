// internal/game/events.go
package game

import (
	"context"
	"time"

	"github.com/jason-s-yu/timebid/internal/cache"
	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// GameEventType is an enum-like type for broadcasting table events.
type GameEventType string

const (
	EventMarketOpened       GameEventType = "market_opened"
	EventMarketReset        GameEventType = "market_reset"
	EventActionChosen       GameEventType = "action_chosen"
	EventActionCleared      GameEventType = "action_cleared"
	EventRoundResolving     GameEventType = "round_resolving"
	EventLedgerAppended     GameEventType = "ledger_appended"
	EventAuctionStarted     GameEventType = "auction_started"
	EventAuctionBid         GameEventType = "auction_bid_recorded"
	EventAuctionStepBack    GameEventType = "auction_step_back"
	EventAuctionSettled     GameEventType = "auction_settled"
	EventConsolationStarted GameEventType = "consolation_started"
	EventConsolationPick    GameEventType = "consolation_pick"
	EventAwaitingInput      GameEventType = "awaiting_input"
	EventRoundCommitted     GameEventType = "round_committed"
	EventRoundAborted       GameEventType = "round_aborted"
	EventTimeAdjusted       GameEventType = "time_adjusted"
	EventSyncState          GameEventType = "sync_state"
	EventGameEnd            GameEventType = "game_end"
)

// EventCard identifies a card inside an event.
type EventCard struct {
	ID    models.CardID `json:"id"`
	Name  string        `json:"name,omitempty"`
	Price int           `json:"price"`
}

// GameEvent is broadcast to every connection watching the table.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Player  models.PlayerID        `json:"player,omitempty"`
	Card    *EventCard             `json:"card,omitempty"`
	Round   int                    `json:"round,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *GameState             `json:"state,omitempty"`
}

func buildEventCard(c *models.Card) *EventCard {
	if c == nil {
		return nil
	}
	return &EventCard{ID: c.ID, Name: c.Name, Price: c.Price}
}

// fireEvent hands ev to the broadcaster.
// Assumes lock is held by caller.
func (g *TimeBidGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn == nil {
		g.log.WithField("event", ev.Type).Trace("no broadcaster attached, dropping event")
		return
	}
	g.BroadcastFn(ev)
}

// logAction sends the action details to the historian service via Redis.
// Assumes lock is held by caller.
func (g *TimeBidGame) logAction(actor models.PlayerID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorSeat:     string(actor),
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	if cache.Rdb == nil {
		return
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			logrus.WithFields(logrus.Fields{
				"game":   rec.GameID,
				"action": rec.ActionIndex,
			}).WithError(err).Error("failed to publish game action")
		}
	}(record)
}
