// internal/handlers/table_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/auth"
	"github.com/jason-s-yu/timebid/internal/game"
	"github.com/jason-s-yu/timebid/internal/middleware"
	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// TableSubprotocol is the only WebSocket subprotocol the table endpoint speaks.
const TableSubprotocol = "table"

var (
	ErrReadOnly       = errors.New("spectators cannot control the table")
	ErrUnknownMessage = errors.New("unknown message type")
)

// TableMessage is an incoming WebSocket message. Only the fields the
// message type needs are read.
type TableMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"` // echoed back in the reply

	Player models.PlayerID `json:"player,omitempty"`
	Rest   bool            `json:"rest,omitempty"`
	Cards  []models.CardID `json:"cards,omitempty"`
	Card   *models.CardID  `json:"card,omitempty"`
	Amount int             `json:"amount,omitempty"`
	Delta  int             `json:"delta,omitempty"`
	Buy    bool            `json:"buy,omitempty"`

	// Actions resolves the round with an explicit action set instead of
	// the pending choices.
	Actions map[models.PlayerID]game.Action `json:"actions,omitempty"`
}

// readOnlyMessages are the types a spectator may send.
var readOnlyMessages = map[string]bool{
	"sync": true,
	"ping": true,
}

// TableWSHandler upgrades the HTTP connection to WebSocket for one table.
// Connections presenting a valid controller token may drive the game; all
// others are read-only spectators.
func TableWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := uuid.Parse(r.PathValue("game_id"))
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}
		t, ok := gs.getTable(gameID)
		if !ok {
			http.Error(w, "Table not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{TableSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			gs.Logger.Warnf("WebSocket accept error for table %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != TableSubprotocol {
			c.Close(BadSubprotocolError, "Client must use the 'table' subprotocol.")
			return
		}

		controller := false
		if tok := tableToken(r); tok != "" {
			tokenGame, err := auth.AuthenticateTableToken(tok)
			if err != nil || tokenGame != gameID {
				gs.Logger.WithField("game", gameID).Warn("rejecting table connection with bad token")
				c.Close(InvalidAuthTokenError, "Invalid table token.")
				return
			}
			controller = true
		}

		middleware.LogWebSocketConnect(gs.Logger, r.RemoteAddr, r.URL.Path, controller)
		logger := gs.Logger.WithFields(logrus.Fields{"game": gameID, "controller": controller})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl := newClient(c, controller)
		go cl.writeLoop(ctx, logger)

		// register and send the opening state under the game lock so no
		// event slips in between
		t.game.Mu.Lock()
		t.addClient(cl)
		st := t.game.GetState()
		cl.enqueue(game.EncodeEvent(game.GameEvent{Type: game.EventSyncState, Round: st.Round, State: &st}))
		t.game.Mu.Unlock()

		err = readTableMessages(ctx, gs, t, cl, logger)

		t.removeClient(cl)
		middleware.LogWebSocketDisconnect(gs.Logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readTableMessages reads until the connection closes, running each message
// against the game and replying through the client's queue.
func readTableMessages(ctx context.Context, gs *GameServer, t *table, cl *client, logger *logrus.Entry) error {
	g := t.game
	for {
		msgType, data, err := cl.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Ignoring non-text message type %d.", msgType)
			continue
		}

		var msg TableMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(cl, "", "", "Invalid JSON format.")
			continue
		}
		gs.GameStore.Touch(g.ID)

		if msg.Type == "ping" {
			sendWsMessage(cl, map[string]interface{}{"type": "pong", "id": msg.ID})
			continue
		}
		if !cl.controller && !readOnlyMessages[msg.Type] {
			sendWsError(cl, msg.Type, msg.ID, ErrReadOnly.Error())
			continue
		}

		logger.Debugf("Received table message '%s'.", msg.Type)

		// replies are encoded under the lock; they may share slices with
		// the game state
		g.Mu.Lock()
		reply, changed, err := applyTableMessage(g, msg)
		var out []byte
		if err == nil {
			if changed {
				g.BroadcastSyncState()
			}
			reply["type"] = "ack"
			reply["request"] = msg.Type
			if msg.ID != "" {
				reply["id"] = msg.ID
			}
			out, err = json.Marshal(reply)
		}
		g.Mu.Unlock()

		if err != nil {
			logger.WithError(err).Debugf("Table message '%s' rejected.", msg.Type)
			sendWsError(cl, msg.Type, msg.ID, err.Error())
			continue
		}
		if !cl.enqueue(out) {
			logger.Warn("Dropping WebSocket reply, client queue is full")
		}
	}
}

// applyTableMessage routes msg to the engine. changed reports whether the
// table state may have moved and a fresh sync_state is due.
// Assumes lock is held by caller.
func applyTableMessage(g *game.TimeBidGame, msg TableMessage) (reply map[string]interface{}, changed bool, err error) {
	reply = map[string]interface{}{}

	outcome := func(o game.RoundOutcome, err error) (map[string]interface{}, bool, error) {
		if err != nil {
			return nil, false, err
		}
		reply["outcome"] = o
		return reply, true, nil
	}

	switch msg.Type {
	case "sync":
		reply["state"] = g.GetState()
		return reply, false, nil

	case "open_market":
		if err := g.OpenMarket(msg.Cards); err != nil {
			return nil, false, err
		}
		reply["market"] = g.Market
		return reply, true, nil

	case "draw_market":
		ids, err := g.DrawMarket()
		if err != nil {
			return nil, false, err
		}
		reply["market"] = ids
		return reply, true, nil

	case "reset_market":
		if err := g.ResetMarket(); err != nil {
			return nil, false, err
		}
		return reply, true, nil

	case "submit_action":
		a := game.Action{Rest: msg.Rest, Cards: msg.Cards}
		if err := g.SubmitAction(msg.Player, a); err != nil {
			return nil, false, err
		}
		reply["player"] = msg.Player
		reply["stage"] = g.PendingStage(msg.Player)
		return reply, true, nil

	case "clear_action":
		if err := requireSeat(g, msg.Player); err != nil {
			return nil, false, err
		}
		g.ClearAction(msg.Player)
		reply["player"] = msg.Player
		return reply, true, nil

	case "finish_choice":
		if err := g.FinishChoice(msg.Player); err != nil {
			return nil, false, err
		}
		reply["player"] = msg.Player
		reply["stage"] = g.PendingStage(msg.Player)
		return reply, true, nil

	case "resolve_round":
		if len(msg.Actions) > 0 {
			return outcome(g.ResolveRound(msg.Actions))
		}
		return outcome(g.ResolvePending())

	case "bid":
		return outcome(g.SubmitBid(msg.Amount))

	case "step_back":
		return outcome(g.StepBackBid())

	case "cancel_auction":
		return outcome(g.CancelAuction())

	case "cancel_round":
		return outcome(g.CancelRound())

	case "consolation_choice":
		return outcome(g.SubmitConsolationChoice(msg.Card))

	case "consolation_decision":
		return outcome(g.SubmitConsolationPurchaseDecision(msg.Buy))

	case "adjust_time":
		newTime, err := g.AdjustPlayerTimeManually(msg.Player, msg.Delta)
		if err != nil {
			return nil, false, err
		}
		reply["player"] = msg.Player
		reply["time"] = newTime
		return reply, true, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
}

// requireSeat rejects seats not at the table.
// Assumes lock is held by caller.
func requireSeat(g *game.TimeBidGame, seat models.PlayerID) error {
	for _, p := range g.Players {
		if p.ID == seat {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", game.ErrUnknownPlayer, seat)
}

// sendWsMessage marshals a message and queues it for the client.
func sendWsMessage(cl *client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Error marshaling WebSocket message")
		return
	}
	if !cl.enqueue(data) {
		logrus.Warn("Dropping WebSocket reply, client queue is full")
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(cl *client, request, id, errorMsg string) {
	msg := map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	}
	if request != "" {
		msg["request"] = request
	}
	if id != "" {
		msg["id"] = id
	}
	sendWsMessage(cl, msg)
}
