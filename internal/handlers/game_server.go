// internal/handlers/game_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/catalog"
	"github.com/jason-s-yu/timebid/internal/database"
	"github.com/jason-s-yu/timebid/internal/game"
	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// clientBuffer is how many outgoing messages a slow connection may lag
// behind before it is dropped.
const clientBuffer = 64

// GameServer is a high-level struct that holds a reference to a GameStore
// and the connections watching each table.
type GameServer struct {
	GameStore *game.GameStore
	Registry  *catalog.Registry
	Logger    *logrus.Logger

	// PersistResults writes final standings to PostgreSQL on game over.
	PersistResults bool

	mu     sync.Mutex
	tables map[uuid.UUID]*table
}

// table is the connection side of one live game.
type table struct {
	game    *game.TimeBidGame
	pinHash string // empty when the table was created without a PIN

	mu      sync.Mutex
	clients map[*client]struct{}
}

// client is one WebSocket watching a table. Every outgoing message goes
// through send so events and replies keep their order.
type client struct {
	conn       *websocket.Conn
	controller bool
	send       chan []byte
}

func NewGameServer(reg *catalog.Registry, logger *logrus.Logger) *GameServer {
	return &GameServer{
		GameStore: game.NewGameStore(),
		Registry:  reg,
		Logger:    logger,
		tables:    make(map[uuid.UUID]*table),
	}
}

// AddTable registers g, wires its broadcaster and end-of-game hook, and
// stores it.
func (gs *GameServer) AddTable(g *game.TimeBidGame, pinHash string) {
	t := &table{
		game:    g,
		pinHash: pinHash,
		clients: make(map[*client]struct{}),
	}

	g.Mu.Lock()
	g.SetLogger(gs.Logger)
	g.BroadcastFn = t.broadcast(gs.Logger)
	g.OnGameEnd = gs.onGameEnd(g)
	g.Mu.Unlock()

	gs.mu.Lock()
	gs.tables[g.ID] = t
	gs.mu.Unlock()
	gs.GameStore.AddGame(g)
}

func (gs *GameServer) getTable(id uuid.UUID) (*table, bool) {
	if _, ok := gs.GameStore.GetGame(id); !ok {
		return nil, false
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	t, ok := gs.tables[id]
	return t, ok
}

// broadcast returns a function suitable for TimeBidGame.BroadcastFn.
// It runs while the game lock is held, so it only encodes and queues.
func (t *table) broadcast(logger *logrus.Logger) func(ev game.GameEvent) {
	return func(ev game.GameEvent) {
		data := game.EncodeEvent(ev)

		t.mu.Lock()
		defer t.mu.Unlock()
		for c := range t.clients {
			if !c.enqueue(data) {
				logger.WithField("game", t.game.ID).Warn("dropping slow table connection")
				delete(t.clients, c)
				go c.conn.Close(websocket.StatusPolicyViolation, "Connection too slow.")
			}
		}
	}
}

func (t *table) addClient(c *client) {
	t.mu.Lock()
	t.clients[c] = struct{}{}
	t.mu.Unlock()
}

func (t *table) removeClient(c *client) {
	t.mu.Lock()
	delete(t.clients, c)
	t.mu.Unlock()
}

// closeAll disconnects every client, e.g. when the table is evicted.
func (t *table) closeAll(code websocket.StatusCode, reason string) {
	t.mu.Lock()
	clients := t.clients
	t.clients = make(map[*client]struct{})
	t.mu.Unlock()
	for c := range clients {
		go c.conn.Close(code, reason)
	}
}

func newClient(conn *websocket.Conn, controller bool) *client {
	return &client{conn: conn, controller: controller, send: make(chan []byte, clientBuffer)}
}

// enqueue reports false when the client's buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains the send queue until ctx ends.
func (c *client) writeLoop(ctx context.Context, logger *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("table write failed")
				return
			}
		}
	}
}

// onGameEnd persists the final standings when a database is attached.
// It is called with the game lock held.
func (gs *GameServer) onGameEnd(g *game.TimeBidGame) game.OnGameEndFunc {
	return func(gameID uuid.UUID, standings []game.Standing) {
		gs.Logger.WithFields(logrus.Fields{"game": gameID, "players": len(standings)}).Info("game over")
		if !gs.PersistResults || database.DB == nil {
			return
		}
		results := standingsToResults(standings)
		final := g.GetState()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := database.RecordGameResults(ctx, gameID, results, final); err != nil {
				gs.Logger.WithField("game", gameID).WithError(err).Error("failed to record game results")
			}
		}()
	}
}

func standingsToResults(standings []game.Standing) []database.GameResult {
	results := make([]database.GameResult, 0, len(standings))
	for _, s := range standings {
		cards := make([]int32, len(s.Cards))
		for i, id := range s.Cards {
			cards[i] = int32(id)
		}
		results = append(results, database.GameResult{
			Seat:        string(s.Player),
			CharacterID: s.CharacterID,
			FinalTime:   s.Time,
			Cards:       cards,
		})
	}
	return results
}

// recordInitialState stores the table's setup when a database is attached.
func (gs *GameServer) recordInitialState(ctx context.Context, g *game.TimeBidGame) {
	if !gs.PersistResults || database.DB == nil {
		return
	}
	g.Mu.Lock()
	initial := g.GetState()
	g.Mu.Unlock()
	if err := database.UpsertInitialGameState(ctx, g.ID, initial); err != nil {
		gs.Logger.WithField("game", g.ID).WithError(err).Warn("failed to record initial game state")
	}
}

// EvictIdle drops tables untouched since cutoff and disconnects their clients.
func (gs *GameServer) EvictIdle(cutoff time.Time) []uuid.UUID {
	evicted := gs.GameStore.EvictIdle(cutoff)
	for _, id := range evicted {
		gs.mu.Lock()
		t, ok := gs.tables[id]
		delete(gs.tables, id)
		gs.mu.Unlock()
		if ok {
			t.closeAll(TableClosedError, "Table closed after inactivity.")
		}
		gs.Logger.WithField("game", id).Info("evicted idle table")
	}
	return evicted
}

// RunEvictor evicts tables idle for longer than ttl until ctx ends.
func (gs *GameServer) RunEvictor(ctx context.Context, ttl time.Duration) error {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			gs.EvictIdle(time.Now().Add(-ttl))
		}
	}
}

// CloseAll disconnects every client of every table.
func (gs *GameServer) CloseAll() {
	gs.mu.Lock()
	tables := make([]*table, 0, len(gs.tables))
	for _, t := range gs.tables {
		tables = append(tables, t)
	}
	gs.mu.Unlock()
	for _, t := range tables {
		t.closeAll(websocket.StatusGoingAway, "Server shutting down.")
	}
}

// seatsOf lists the seats at g.
// Assumes lock is held by caller.
func seatsOf(g *game.TimeBidGame) []models.PlayerID {
	seats := make([]models.PlayerID, len(g.Players))
	for i, p := range g.Players {
		seats[i] = p.ID
	}
	return seats
}
