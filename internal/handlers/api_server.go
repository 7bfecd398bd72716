// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/auth"
	"github.com/jason-s-yu/timebid/internal/game"
	"github.com/jason-s-yu/timebid/internal/middleware"
	"github.com/jason-s-yu/timebid/internal/models"
)

// TableTokenCookie carries the controller token for browsers.
const TableTokenCookie = "table_token"

type createTableRequest struct {
	Characters []string               `json:"characters"`
	Rules      map[string]interface{} `json:"rules,omitempty"`
	Seed       int64                  `json:"seed,omitempty"`
	PIN        string                 `json:"pin,omitempty"`
}

type createTableResponse struct {
	GameID uuid.UUID         `json:"game_id"`
	Token  string            `json:"token"`
	Seats  []models.PlayerID `json:"seats"`
	State  game.GameState    `json:"state"`
}

// Routes mounts every HTTP and WebSocket endpoint.
func (gs *GameServer) Routes() http.Handler {
	logged := middleware.LogMiddleware(gs.Logger)
	mux := http.NewServeMux()

	mux.Handle("GET /catalog", logged(CatalogHandler(gs)))
	mux.Handle("POST /table/create", logged(CreateTableHandler(gs)))
	mux.Handle("POST /table/token/{game_id}", logged(ReissueTokenHandler(gs)))
	mux.Handle("GET /table/ledger/{game_id}", logged(LedgerHandler(gs)))
	mux.Handle("GET /table/ws/{game_id}", logged(TableWSHandler(gs)))
	return mux
}

// CatalogHandler returns both registries in id order.
func CatalogHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards := make([]*models.Card, 0, len(gs.Registry.Cards))
		for _, id := range gs.Registry.CardIDs() {
			c, _ := gs.Registry.Card(id)
			cards = append(cards, c)
		}
		chars := make([]*models.Character, 0, len(gs.Registry.Characters))
		for _, id := range gs.Registry.CharacterIDs() {
			c, _ := gs.Registry.Character(id)
			chars = append(chars, c)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cards":      cards,
			"characters": chars,
		})
	}
}

// CreateTableHandler builds a new in-memory game and hands back a controller token.
func CreateTableHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad table request payload", http.StatusBadRequest)
			return
		}

		rules, err := game.ParseRules(req.Rules, game.DefaultHouseRules())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var pinHash string
		if req.PIN != "" {
			pinHash, err = auth.HashPIN(req.PIN)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		g, err := game.NewTimeBidGame(gs.Registry, req.Characters, rules, req.Seed)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		token, err := auth.CreateTableToken(g.ID)
		if err != nil {
			gs.Logger.WithError(err).Error("failed to sign table token")
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}

		gs.AddTable(g, pinHash)
		gs.recordInitialState(r.Context(), g)

		g.Mu.Lock()
		resp := createTableResponse{
			GameID: g.ID,
			Token:  token,
			Seats:  seatsOf(g),
			State:  g.GetState(),
		}
		g.Mu.Unlock()

		http.SetCookie(w, &http.Cookie{
			Name:     TableTokenCookie,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReissueTokenHandler trades the table PIN for a fresh controller token.
func ReissueTokenHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := tableFromPath(gs, w, r)
		if !ok {
			return
		}
		if t.pinHash == "" {
			http.Error(w, "table has no PIN", http.StatusForbidden)
			return
		}

		var req struct {
			PIN string `json:"pin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad token request payload", http.StatusBadRequest)
			return
		}
		match, err := auth.CheckPIN(req.PIN, t.pinHash)
		if err != nil {
			gs.Logger.WithError(err).Error("stored table PIN hash is unreadable")
			http.Error(w, "failed to check PIN", http.StatusInternalServerError)
			return
		}
		if !match {
			http.Error(w, "wrong PIN", http.StatusForbidden)
			return
		}

		token, err := auth.CreateTableToken(t.game.ID)
		if err != nil {
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     TableTokenCookie,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

// LedgerHandler exports every player's timeline.
func LedgerHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := tableFromPath(gs, w, r)
		if !ok {
			return
		}
		g := t.game

		g.Mu.Lock()
		data, err := json.Marshal(map[string]interface{}{
			"game_id":  g.ID,
			"round":    g.Round,
			"gameOver": g.GameOver,
			"ledger":   g.Ledger,
		})
		g.Mu.Unlock()
		if err != nil {
			http.Error(w, "failed to encode ledger", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// tableFromPath resolves {game_id}, writing the HTTP error itself on failure.
func tableFromPath(gs *GameServer, w http.ResponseWriter, r *http.Request) (*table, bool) {
	gameID, err := uuid.Parse(r.PathValue("game_id"))
	if err != nil {
		http.Error(w, "invalid game_id format", http.StatusBadRequest)
		return nil, false
	}
	t, ok := gs.getTable(gameID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return nil, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
