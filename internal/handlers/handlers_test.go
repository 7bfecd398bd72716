package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/auth"
	"github.com/jason-s-yu/timebid/internal/catalog"
	"github.com/jason-s-yu/timebid/internal/game"
	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCards = `{
	"1": {"name": "Lantern", "price": 2},
	"2": {"name": "Compass", "price": 3},
	"3": {"name": "Map", "price": 1},
	"4": {"name": "Rope", "price": 2},
	"5": {"name": "Kettle", "price": 4},
	"6": {"name": "Mirror", "price": 0}
}`

const testCharacters = `{
	"ada": {"name": "Ada", "startTime": 10},
	"bo": {"name": "Bo", "startTime": 8}
}`

func TestMain(m *testing.M) {
	if err := auth.Init("1h"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *GameServer {
	t.Helper()
	reg, err := catalog.Parse([]byte(testCards), []byte(testCharacters))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return NewGameServer(reg, logger)
}

func createTable(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, createTableResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/table/create", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp createTableResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestCatalogHandler(t *testing.T) {
	gs := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	w := httptest.NewRecorder()
	gs.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Cards      []models.Card      `json:"cards"`
		Characters []models.Character `json:"characters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Cards, 6)
	assert.Equal(t, models.CardID(1), body.Cards[0].ID)
	assert.Equal(t, "Lantern", body.Cards[0].Name)
	require.Len(t, body.Characters, 2)
	assert.Equal(t, "ada", body.Characters[0].ID)
}

func TestCreateTable(t *testing.T) {
	gs := newTestServer(t)
	w, resp := createTable(t, gs.Routes(), `{"characters":["ada","bo"],"rules":{"maxTime":10},"seed":7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.NotEqual(t, uuid.Nil, resp.GameID)
	assert.Equal(t, []models.PlayerID{"A", "B"}, resp.Seats)
	assert.Equal(t, 10, resp.State.Rules.MaxTime)
	assert.Equal(t, game.PhaseMarketSelection, resp.State.Phase)

	gameID, err := auth.AuthenticateTableToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.GameID, gameID)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == TableTokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, resp.Token, cookie.Value)

	_, ok := gs.GameStore.GetGame(resp.GameID)
	assert.True(t, ok)
}

func TestCreateTableRejectsBadRequests(t *testing.T) {
	gs := newTestServer(t)
	h := gs.Routes()
	for name, body := range map[string]string{
		"not json":            `{`,
		"duplicate character": `{"characters":["ada","ada"]}`,
		"unknown character":   `{"characters":["zed"]}`,
		"no players":          `{"characters":[]}`,
		"bad rule type":       `{"characters":["ada"],"rules":{"maxTime":"lots"}}`,
		"short pin":           `{"characters":["ada"],"pin":"12"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w, _ := createTable(t, h, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Zero(t, gs.GameStore.Len())
}

func TestReissueToken(t *testing.T) {
	gs := newTestServer(t)
	h := gs.Routes()

	reissue := func(gameID uuid.UUID, pin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/table/token/"+gameID.String(), strings.NewReader(`{"pin":"`+pin+`"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	_, noPin := createTable(t, h, `{"characters":["ada","bo"]}`)
	assert.Equal(t, http.StatusForbidden, reissue(noPin.GameID, "4821").Code)

	_, withPin := createTable(t, h, `{"characters":["ada","bo"],"pin":"4821"}`)
	assert.Equal(t, http.StatusForbidden, reissue(withPin.GameID, "0000").Code)
	assert.Equal(t, http.StatusNotFound, reissue(uuid.New(), "4821").Code)

	w := reissue(withPin.GameID, "4821")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	gameID, err := auth.AuthenticateTableToken(body["token"])
	require.NoError(t, err)
	assert.Equal(t, withPin.GameID, gameID)
}

func TestLedgerHandler(t *testing.T) {
	gs := newTestServer(t)
	h := gs.Routes()
	_, resp := createTable(t, h, `{"characters":["ada","bo"],"seed":3}`)

	g, ok := gs.GameStore.GetGame(resp.GameID)
	require.True(t, ok)
	g.Mu.Lock()
	_, err := g.AdjustPlayerTimeManually("A", -2)
	g.Mu.Unlock()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/table/ledger/"+resp.GameID.String(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Round  int                                       `json:"round"`
		Ledger map[models.PlayerID][]game.TimelineEvent `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Round)
	require.Len(t, body.Ledger["A"], 1)
	assert.Equal(t, game.LedgerManualAdjust, body.Ledger["A"][0].Type)
	assert.Equal(t, -2, body.Ledger["A"][0].TimeChange)

	req = httptest.NewRequest(http.MethodGet, "/table/ledger/not-a-uuid", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyTableMessage(t *testing.T) {
	gs := newTestServer(t)
	g, err := game.NewTimeBidGame(gs.Registry, []string{"ada", "bo"}, game.DefaultHouseRules(), 11)
	require.NoError(t, err)
	gs.AddTable(g, "")

	g.Mu.Lock()
	defer g.Mu.Unlock()

	_, _, err = applyTableMessage(g, TableMessage{Type: "submit_action", Player: "A", Rest: true})
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	reply, changed, err := applyTableMessage(g, TableMessage{Type: "open_market", Cards: []models.CardID{1, 2, 3}})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []models.CardID{1, 2, 3}, reply["market"])

	reply, _, err = applyTableMessage(g, TableMessage{Type: "submit_action", Player: "A", Cards: []models.CardID{1}})
	require.NoError(t, err)
	assert.Equal(t, game.ChoiceDone, reply["stage"])

	_, _, err = applyTableMessage(g, TableMessage{Type: "clear_action", Player: "F"})
	assert.ErrorIs(t, err, game.ErrUnknownPlayer)

	_, _, err = applyTableMessage(g, TableMessage{Type: "resolve_round"})
	assert.ErrorIs(t, err, game.ErrActionsIncomplete)

	_, _, err = applyTableMessage(g, TableMessage{Type: "submit_action", Player: "B", Rest: true})
	require.NoError(t, err)

	reply, changed, err = applyTableMessage(g, TableMessage{Type: "resolve_round"})
	require.NoError(t, err)
	assert.True(t, changed)
	out := reply["outcome"].(game.RoundOutcome)
	assert.Equal(t, game.OutcomeCommitted, out.Status)
	assert.Equal(t, "A", string(g.Owned[1]))

	reply, changed, err = applyTableMessage(g, TableMessage{Type: "sync"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, reply["state"].(game.GameState).Round)

	_, _, err = applyTableMessage(g, TableMessage{Type: "bid", Amount: 1})
	assert.ErrorIs(t, err, game.ErrNoResolution)

	_, _, err = applyTableMessage(g, TableMessage{Type: "shuffle"})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestEvictIdleClosesTables(t *testing.T) {
	gs := newTestServer(t)
	_, resp := createTable(t, gs.Routes(), `{"characters":["ada"]}`)

	assert.Empty(t, gs.EvictIdle(time.Now().Add(-time.Hour)))
	assert.Equal(t, []uuid.UUID{resp.GameID}, gs.EvictIdle(time.Now().Add(time.Second)))
	_, ok := gs.getTable(resp.GameID)
	assert.False(t, ok)
}

func TestStandingsToResults(t *testing.T) {
	results := standingsToResults([]game.Standing{
		{Player: "A", CharacterID: "ada", Time: 4, Cards: []models.CardID{2, 5}},
		{Player: "B", CharacterID: "bo", Time: 0, Cards: []models.CardID{}},
	})
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Seat)
	assert.Equal(t, []int32{2, 5}, results[0].Cards)
	assert.Equal(t, 4, results[0].FinalTime)
	assert.Empty(t, results[1].Cards)
}

// wsHarness dials the table endpoint of a live test server.
type wsHarness struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context
}

func dialTable(t *testing.T, srv *httptest.Server, gameID uuid.UUID, token string) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/table/ws/" + gameID.String()
	if token != "" {
		url += "?token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{TableSubprotocol}})
	return c, err
}

func newHarness(t *testing.T, srv *httptest.Server, gameID uuid.UUID, token string) *wsHarness {
	c, err := dialTable(t, srv, gameID, token)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(func() {
		cancel()
		c.Close(websocket.StatusNormalClosure, "")
	})
	return &wsHarness{t: t, conn: c, ctx: ctx}
}

func (h *wsHarness) send(msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	require.NoError(h.t, err)
	require.NoError(h.t, h.conn.Write(h.ctx, websocket.MessageText, data))
}

// readUntil reads messages until one of the given type arrives.
func (h *wsHarness) readUntil(typ string) map[string]interface{} {
	for {
		_, data, err := h.conn.Read(h.ctx)
		require.NoError(h.t, err)
		var msg map[string]interface{}
		require.NoError(h.t, json.Unmarshal(data, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestTableWebSocketController(t *testing.T) {
	gs := newTestServer(t)
	srv := httptest.NewServer(gs.Routes())
	defer srv.Close()
	_, resp := createTable(t, gs.Routes(), `{"characters":["ada","bo"],"seed":5}`)

	h := newHarness(t, srv, resp.GameID, resp.Token)
	first := h.readUntil(string(game.EventSyncState))
	assert.Equal(t, "market_selection", first["state"].(map[string]interface{})["phase"])

	h.send(map[string]interface{}{"type": "ping", "id": "p1"})
	assert.Equal(t, "p1", h.readUntil("pong")["id"])

	h.send(map[string]interface{}{"type": "draw_market", "id": "m1"})
	ack := h.readUntil("ack")
	assert.Equal(t, "draw_market", ack["request"])
	assert.Equal(t, "m1", ack["id"])
	market := ack["market"].([]interface{})
	require.Len(t, market, 3)

	h.send(map[string]interface{}{"type": "submit_action", "player": "A", "cards": []interface{}{market[0]}})
	h.readUntil("ack")
	h.send(map[string]interface{}{"type": "submit_action", "player": "B", "rest": true})
	h.readUntil("ack")

	h.send(map[string]interface{}{"type": "resolve_round"})
	ack = h.readUntil("ack")
	outcome := ack["outcome"].(map[string]interface{})
	assert.Equal(t, string(game.OutcomeCommitted), outcome["status"])

	h.send(map[string]interface{}{"type": "step_back"})
	errMsg := h.readUntil("error")
	assert.Equal(t, "step_back", errMsg["request"])
	assert.Contains(t, errMsg["message"], game.ErrNoResolution.Error())
}

func TestTableWebSocketSpectatorIsReadOnly(t *testing.T) {
	gs := newTestServer(t)
	srv := httptest.NewServer(gs.Routes())
	defer srv.Close()
	_, resp := createTable(t, gs.Routes(), `{"characters":["ada","bo"]}`)

	ctrl := newHarness(t, srv, resp.GameID, resp.Token)
	ctrl.readUntil(string(game.EventSyncState))
	viewer := newHarness(t, srv, resp.GameID, "")
	viewer.readUntil(string(game.EventSyncState))

	viewer.send(map[string]interface{}{"type": "draw_market"})
	assert.Equal(t, ErrReadOnly.Error(), viewer.readUntil("error")["message"])

	viewer.send(map[string]interface{}{"type": "sync"})
	assert.Equal(t, "sync", viewer.readUntil("ack")["request"])

	// the spectator still sees what the controller does
	ctrl.send(map[string]interface{}{"type": "draw_market"})
	ctrl.readUntil("ack")
	opened := viewer.readUntil(string(game.EventMarketOpened))
	assert.NotNil(t, opened["payload"])
}

func TestTableWebSocketRejectsForeignToken(t *testing.T) {
	gs := newTestServer(t)
	srv := httptest.NewServer(gs.Routes())
	defer srv.Close()
	_, resp := createTable(t, gs.Routes(), `{"characters":["ada","bo"]}`)

	other, err := auth.CreateTableToken(uuid.New())
	require.NoError(t, err)

	c, err := dialTable(t, srv, resp.GameID, other)
	require.NoError(t, err)
	defer c.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, InvalidAuthTokenError, websocket.CloseStatus(err))
}

func TestTableWebSocketUnknownTable(t *testing.T) {
	gs := newTestServer(t)
	srv := httptest.NewServer(gs.Routes())
	defer srv.Close()

	_, err := dialTable(t, srv, uuid.New(), "")
	assert.Error(t, err)
}
