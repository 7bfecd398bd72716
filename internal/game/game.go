// internal/game/game.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/catalog"
	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// OnGameEndFunc handles a finished game, e.g. persisting the standings.
type OnGameEndFunc func(gameID uuid.UUID, standings []Standing)

// Phase is the table's position in the round cycle.
type Phase string

const (
	PhaseMarketSelection Phase = "market_selection"
	PhaseActionSelection Phase = "action_selection"
	PhaseResolving       Phase = "resolving"
	PhaseGameOver        Phase = "game_over"
)

var (
	ErrWrongPhase           = errors.New("operation not allowed in the current phase")
	ErrGameOver             = errors.New("game is over")
	ErrUnknownPlayer        = errors.New("unknown player")
	ErrUnknownCard          = errors.New("unknown card id")
	ErrCardUnavailable      = errors.New("card is no longer in the pool")
	ErrCardNotOffered       = errors.New("card is not on this round's market")
	ErrInvalidAction        = errors.New("invalid action")
	ErrActionsIncomplete    = errors.New("not every player has chosen an action")
	ErrPlayerCount          = errors.New("unsupported number of players")
	ErrUnknownCharacter     = errors.New("unknown character")
	ErrDuplicateCharacter   = errors.New("character already taken")
	ErrMarketSize           = errors.New("market has the wrong number of cards")
	ErrNoResolution         = errors.New("no round resolution in progress")
	ErrNoActiveAuction      = errors.New("no auction is awaiting a bid")
	ErrUnexpectedInput      = errors.New("input does not match the awaited prompt")
	ErrNotCandidate         = errors.New("card is not a consolation candidate")
	ErrResolutionInProgress = errors.New("a round resolution is in progress")
	ErrManualAdjustDisabled = errors.New("manual time adjustment is disabled")
)

// Resolution describes what happened to one claimed card.
type Resolution string

const (
	ResolutionDirectBuy     Resolution = "direct_buy"
	ResolutionDirectFailed  Resolution = "direct_failed"
	ResolutionAuctionWon    Resolution = "auction_won"
	ResolutionSkillWon      Resolution = "skill_won"
	ResolutionAuctionFailed Resolution = "auction_failed"
	ResolutionAllPassed     Resolution = "all_passed"
	ResolutionTieUnresolved Resolution = "tie_unresolved"
	ResolutionConsolation   Resolution = "consolation"
)

// CardResult is one line of a round's outcome.
type CardResult struct {
	CardID     models.CardID     `json:"cardId"`
	Resolution Resolution        `json:"resolution"`
	Winner     models.PlayerID   `json:"winner,omitempty"`
	Cost       int               `json:"cost,omitempty"`
	Tied       []models.PlayerID `json:"tied,omitempty"`
}

// OutcomeStatus says whether a round finished, paused or was rolled back.
type OutcomeStatus string

const (
	OutcomeAwaitingInput OutcomeStatus = "awaiting_input"
	OutcomeCommitted     OutcomeStatus = "committed"
	OutcomeAborted       OutcomeStatus = "aborted"
)

// RoundOutcome is returned by every call that drives a resolution.
type RoundOutcome struct {
	Status    OutcomeStatus   `json:"status"`
	Round     int             `json:"round"`
	Prompt    *Prompt         `json:"prompt,omitempty"`
	Results   []CardResult    `json:"results,omitempty"`
	Discarded []models.CardID `json:"discarded,omitempty"`
	GameOver  bool            `json:"gameOver"`
}

// PromptKind is the kind of human input a paused resolution waits for.
type PromptKind string

const (
	PromptBid                PromptKind = "bid"
	PromptConsolationChoice  PromptKind = "consolation_choice"
	PromptConsolationConfirm PromptKind = "consolation_confirm"
)

// Prompt describes the awaited input. MinBid and MaxBid are what the UI
// should offer; the engine only rejects negative bids.
type Prompt struct {
	Kind        PromptKind        `json:"kind"`
	Player      models.PlayerID   `json:"player"`
	CardID      models.CardID     `json:"cardId"`
	CardName    string            `json:"cardName,omitempty"`
	MinBid      int               `json:"minBid,omitempty"`
	MaxBid      int               `json:"maxBid,omitempty"`
	Step        int               `json:"step"`
	Bidders     []models.PlayerID `json:"bidders,omitempty"`
	CanStepBack bool              `json:"canStepBack,omitempty"`
	Candidates  []models.CardID   `json:"candidates,omitempty"`
	Cost        int               `json:"cost,omitempty"`
	Affordable  bool              `json:"affordable,omitempty"`
}

// InputKind selects the branch of Resume.
type InputKind string

const (
	InputBid                InputKind = "bid"
	InputStepBack           InputKind = "step_back"
	InputCancel             InputKind = "cancel"
	InputConsolationChoice  InputKind = "consolation_choice"
	InputConsolationConfirm InputKind = "consolation_confirm"
)

// Input is a human answer to a Prompt.
type Input struct {
	Kind   InputKind      `json:"kind"`
	Amount int            `json:"amount,omitempty"`
	Card   *models.CardID `json:"card,omitempty"` // nil declines a consolation pick
	Buy    bool           `json:"buy,omitempty"`
}

// Standing is a player's final position.
type Standing struct {
	Player        models.PlayerID `json:"player"`
	CharacterID   string          `json:"characterId"`
	CharacterName string          `json:"characterName"`
	Time          int             `json:"time"`
	Cards         []models.CardID `json:"cards"`
}

// claim is one card and everyone who wants it, in seat order.
type claim struct {
	CardID  models.CardID
	Bidders []models.PlayerID
}

// resolution is the paused state of a round being resolved.
type resolution struct {
	snapshot     *RoundSnapshot
	market       []models.CardID // market as it was when resolution began
	claims       []claim
	next         int
	auction      *AuctionSession
	placeholders map[models.PlayerID]int
	consolation  *ConsolationDrawSession
	prompt       *Prompt
	results      []CardResult
}

func (r *resolution) addResult(c CardResult) {
	r.results = append(r.results, c)
}

// TimeBidGame holds the entire state for a single table in memory.
type TimeBidGame struct {
	ID         uuid.UUID
	HouseRules HouseRules
	Registry   *catalog.Registry

	Players       []*models.Player // seat order
	AvailablePool []models.CardID
	Market        []models.CardID
	Owned         map[models.CardID]models.PlayerID
	Discarded     []models.CardID
	Ledger        *Ledger
	Round         int
	Phase         Phase
	GameOver      bool

	pending      map[models.PlayerID]*PendingChoice
	bonusRound   int // last round the round-start bonus was granted for
	res          *resolution
	initialCards int

	rng         *rand.Rand
	actionIndex int
	log         *logrus.Entry

	Mu sync.Mutex

	BroadcastFn func(ev GameEvent)
	OnGameEnd   OnGameEndFunc
}

// NewTimeBidGame seats one player per character, in seat order A, B, C...
// A zero seed picks one from the clock.
func NewTimeBidGame(reg *catalog.Registry, characterIDs []string, rules HouseRules, seed int64) (*TimeBidGame, error) {
	if len(characterIDs) == 0 || len(characterIDs) > len(models.SeatOrder) {
		return nil, fmt.Errorf("%w: %d (want 1-%d)", ErrPlayerCount, len(characterIDs), len(models.SeatOrder))
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id, _ := uuid.NewRandom()
	g := &TimeBidGame{
		ID:         id,
		HouseRules: rules,
		Registry:   reg,
		Owned:      make(map[models.CardID]models.PlayerID),
		Ledger:     NewLedger(),
		Round:      1,
		Phase:      PhaseMarketSelection,
		pending:    make(map[models.PlayerID]*PendingChoice),
		rng:        rand.New(rand.NewSource(seed)),
		log:        logrus.WithField("game", id),
	}

	taken := make(map[string]bool, len(characterIDs))
	for i, cid := range characterIDs {
		ch, ok := reg.Character(cid)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, cid)
		}
		if taken[cid] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCharacter, cid)
		}
		taken[cid] = true
		g.Players = append(g.Players, &models.Player{
			ID:        models.SeatOrder[i],
			Time:      clampTime(ch.StartTime, rules.MaxTime),
			Character: ch,
		})
	}

	g.AvailablePool = reg.CardIDs()
	g.initialCards = len(g.AvailablePool)
	g.log.WithFields(logrus.Fields{"players": len(g.Players), "cards": g.initialCards, "seed": seed}).Info("table created")
	g.logAction("", "game_create", map[string]interface{}{"characters": characterIDs, "seed": seed})
	return g, nil
}

// SetLogger replaces the engine's logger, keeping the game field.
func (g *TimeBidGame) SetLogger(l *logrus.Logger) {
	g.log = l.WithField("game", g.ID)
}

// InitialCardCount is the pool size the game started with.
func (g *TimeBidGame) InitialCardCount() int {
	return g.initialCards
}

// RequiredMarketSize is how many cards the next market must hold.
// Assumes lock is held by caller.
func (g *TimeBidGame) RequiredMarketSize() int {
	return MarketSize(g.Players, g.HouseRules, len(g.AvailablePool))
}

// OpenMarket puts the hand-picked cards on offer and opens action selection.
// Assumes lock is held by caller.
func (g *TimeBidGame) OpenMarket(ids []models.CardID) error {
	if err := g.requirePhase(PhaseMarketSelection); err != nil {
		return err
	}
	if want := g.RequiredMarketSize(); len(ids) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrMarketSize, len(ids), want)
	}
	seen := make(map[models.CardID]bool, len(ids))
	for _, id := range ids {
		if _, ok := g.Registry.Card(id); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownCard, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: card %d listed twice", ErrMarketSize, id)
		}
		seen[id] = true
		if !containsCard(g.AvailablePool, id) {
			return fmt.Errorf("%w: %d", ErrCardUnavailable, id)
		}
	}
	g.Market = cloneCardIDs(ids)
	g.Phase = PhaseActionSelection

	cards := make([]*EventCard, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, buildEventCard(g.cardInfo(id)))
	}
	g.fireEvent(GameEvent{Type: EventMarketOpened, Round: g.Round, Payload: map[string]interface{}{"cards": cards}})
	g.logAction("", string(EventMarketOpened), map[string]interface{}{"cards": ids})
	return nil
}

// DrawMarket opens a market drawn at random from the pool.
// Assumes lock is held by caller.
func (g *TimeBidGame) DrawMarket() ([]models.CardID, error) {
	if err := g.requirePhase(PhaseMarketSelection); err != nil {
		return nil, err
	}
	pool := cloneCardIDs(g.AvailablePool)
	g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	ids := pool[:g.RequiredMarketSize()]
	if err := g.OpenMarket(ids); err != nil {
		return nil, err
	}
	return cloneCardIDs(ids), nil
}

// ResetMarket takes the market back and forgets every pending action.
// Assumes lock is held by caller.
func (g *TimeBidGame) ResetMarket() error {
	if err := g.requirePhase(PhaseActionSelection); err != nil {
		return err
	}
	g.Market = nil
	g.pending = make(map[models.PlayerID]*PendingChoice)
	g.Phase = PhaseMarketSelection
	g.fireEvent(GameEvent{Type: EventMarketReset, Round: g.Round})
	g.logAction("", string(EventMarketReset), nil)
	return nil
}

// ResolveRound resolves the round for the given actions. Players missing
// from actions take no action. It returns at the first point that needs a
// human answer; continue with Resume or its wrappers.
// Assumes lock is held by caller.
func (g *TimeBidGame) ResolveRound(actions map[models.PlayerID]Action) (RoundOutcome, error) {
	if err := g.requirePhase(PhaseActionSelection); err != nil {
		return RoundOutcome{}, err
	}
	if err := g.validateActions(actions); err != nil {
		g.log.WithError(err).Warn("round rejected before resolution")
		return RoundOutcome{}, err
	}

	g.applyRoundStartBonus()

	r := &resolution{
		snapshot: g.takeSnapshot(),
		market:   cloneCardIDs(g.Market),
	}
	g.res = r
	g.Phase = PhaseResolving
	g.fireEvent(GameEvent{Type: EventRoundResolving, Round: g.Round})
	g.logAction("", string(EventRoundResolving), map[string]interface{}{"actions": actions})

	for _, p := range g.Players {
		if a, ok := actions[p.ID]; ok && a.Rest {
			g.applyRest(p)
		}
	}
	r.claims = groupClaims(g.Players, actions, r.market)
	g.log.WithFields(logrus.Fields{"round": g.Round, "claims": len(r.claims)}).Debug("resolving round")

	return g.advance(), nil
}

// Resume feeds a human answer into the paused resolution.
// Assumes lock is held by caller.
func (g *TimeBidGame) Resume(in Input) (RoundOutcome, error) {
	r := g.res
	if r == nil {
		return RoundOutcome{}, ErrNoResolution
	}

	var err error
	switch in.Kind {
	case InputCancel:
		return g.rollback(), nil
	case InputBid:
		if r.auction == nil {
			return RoundOutcome{}, fmt.Errorf("%w: no auction running", ErrUnexpectedInput)
		}
		bidder, _ := r.auction.CurrentBidder()
		if err = r.auction.SubmitBid(bidder, in.Amount); err == nil {
			g.fireEvent(GameEvent{
				Type:    EventAuctionBid,
				Player:  bidder,
				Card:    buildEventCard(g.cardInfo(r.auction.CardID)),
				Round:   g.Round,
				Payload: map[string]interface{}{"step": r.auction.Step()},
			})
		}
	case InputStepBack:
		if r.auction == nil {
			return RoundOutcome{}, fmt.Errorf("%w: no auction running", ErrUnexpectedInput)
		}
		if err = r.auction.StepBack(); err == nil {
			bidder, _ := r.auction.CurrentBidder()
			g.fireEvent(GameEvent{Type: EventAuctionStepBack, Player: bidder, Round: g.Round})
		}
	case InputConsolationChoice:
		if r.consolation == nil {
			return RoundOutcome{}, fmt.Errorf("%w: no consolation draw running", ErrUnexpectedInput)
		}
		err = g.chooseConsolation(in.Card)
	case InputConsolationConfirm:
		if r.consolation == nil {
			return RoundOutcome{}, fmt.Errorf("%w: no consolation draw running", ErrUnexpectedInput)
		}
		err = g.decideConsolation(in.Buy)
	default:
		return RoundOutcome{}, fmt.Errorf("%w: %q", ErrUnexpectedInput, in.Kind)
	}
	if err != nil {
		return RoundOutcome{}, err
	}
	return g.advance(), nil
}

// SubmitBid answers the current bid prompt. Zero passes.
func (g *TimeBidGame) SubmitBid(amount int) (RoundOutcome, error) {
	return g.Resume(Input{Kind: InputBid, Amount: amount})
}

// StepBackBid reopens the previous bidder's bid.
func (g *TimeBidGame) StepBackBid() (RoundOutcome, error) {
	return g.Resume(Input{Kind: InputStepBack})
}

// CancelAuction cancels the running auction, which rolls back the round.
func (g *TimeBidGame) CancelAuction() (RoundOutcome, error) {
	if g.res == nil || g.res.auction == nil || g.res.auction.State() != AuctionAwaitingBid {
		return RoundOutcome{}, ErrNoActiveAuction
	}
	return g.Resume(Input{Kind: InputCancel})
}

// CancelRound rolls back the round from any pause.
func (g *TimeBidGame) CancelRound() (RoundOutcome, error) {
	return g.Resume(Input{Kind: InputCancel})
}

// SubmitConsolationChoice picks a consolation card, or declines with nil.
func (g *TimeBidGame) SubmitConsolationChoice(card *models.CardID) (RoundOutcome, error) {
	return g.Resume(Input{Kind: InputConsolationChoice, Card: card})
}

// SubmitConsolationPurchaseDecision confirms or declines buying the pick.
func (g *TimeBidGame) SubmitConsolationPurchaseDecision(buy bool) (RoundOutcome, error) {
	return g.Resume(Input{Kind: InputConsolationConfirm, Buy: buy})
}

// CurrentPrompt returns the input the paused resolution waits for.
// Assumes lock is held by caller.
func (g *TimeBidGame) CurrentPrompt() *Prompt {
	if g.res == nil {
		return nil
	}
	return g.res.prompt
}

// advance runs the resolution until it needs input or the round is done.
// Assumes lock is held by caller.
func (g *TimeBidGame) advance() RoundOutcome {
	r := g.res
	for {
		if r.consolation != nil {
			g.pumpConsolation()
			if r.consolation.Stage() != ConsolationDone {
				return g.pause(g.consolationPrompt())
			}
			r.consolation = nil
			r.next++
			continue
		}

		if r.auction != nil {
			if r.auction.State() == AuctionAwaitingBid {
				return g.pause(g.bidPrompt())
			}
			out, _ := r.auction.Outcome()
			r.auction = nil
			verdict := g.settleAuction(out)
			if verdict.Unresolved {
				g.startConsolation(out.CardID, verdict.Tied)
				continue
			}
			r.next++
			continue
		}

		if r.next >= len(r.claims) {
			return g.commitRound()
		}

		c := r.claims[r.next]
		if len(c.Bidders) == 1 {
			g.directPurchase(c)
			r.next++
			continue
		}
		g.startAuction(c)
	}
}

func (g *TimeBidGame) pause(p *Prompt) RoundOutcome {
	g.res.prompt = p
	g.fireEvent(GameEvent{
		Type:    EventAwaitingInput,
		Player:  p.Player,
		Round:   g.Round,
		Payload: map[string]interface{}{"prompt": p},
	})
	return RoundOutcome{Status: OutcomeAwaitingInput, Round: g.Round, Prompt: p, Results: g.res.results}
}

func (g *TimeBidGame) bidPrompt() *Prompt {
	a := g.res.auction
	bidder, _ := a.CurrentBidder()
	card := g.cardInfo(a.CardID)
	return &Prompt{
		Kind:        PromptBid,
		Player:      bidder,
		CardID:      card.ID,
		CardName:    card.Name,
		MinBid:      card.Price,
		MaxBid:      g.getPlayerByID(bidder).Time,
		Step:        a.Step(),
		Bidders:     append([]models.PlayerID(nil), a.Bidders...),
		CanStepBack: a.Step() > 0,
	}
}

func (g *TimeBidGame) consolationPrompt() *Prompt {
	s := g.res.consolation
	pid, _ := s.CurrentPlayer()
	p := &Prompt{Player: pid, CardID: s.SourceCard, Step: s.current, Bidders: append([]models.PlayerID(nil), s.Players...)}
	if id, ok := s.Selected(); ok {
		card := g.cardInfo(id)
		cost := AdjustedCost(g.getPlayerByID(pid), card.Price, ContextConsolationDraw)
		p.Kind = PromptConsolationConfirm
		p.CardID = id
		p.CardName = card.Name
		p.Cost = cost
		p.Affordable = g.getPlayerByID(pid).Time >= cost
		return p
	}
	p.Kind = PromptConsolationChoice
	p.Candidates = s.Candidates()
	return p
}

// directPurchase settles a card claimed by a single player.
func (g *TimeBidGame) directPurchase(c claim) {
	p := g.getPlayerByID(c.Bidders[0])
	card := g.cardInfo(c.CardID)
	cost := AdjustedCost(p, card.Price, ContextDirectBuy)
	if p.Time < cost {
		g.record(p.ID, LedgerBuyFail, SubtypeInsufficientDirect, 0,
			fmt.Sprintf("cannot afford %s (needs %d, has %d)", card.Name, cost, p.Time))
		g.res.addResult(CardResult{CardID: card.ID, Resolution: ResolutionDirectFailed, Winner: p.ID, Cost: cost})
		return
	}
	p.Time -= cost
	g.record(p.ID, LedgerBuy, SubtypeDirect, -cost,
		fmt.Sprintf("bought %s (paid %d, price %d)", card.Name, cost, card.Price))
	g.claimCard(card.ID, p.ID)
	g.res.addResult(CardResult{CardID: card.ID, Resolution: ResolutionDirectBuy, Winner: p.ID, Cost: cost})
}

// startAuction opens bidding on a contested card. Each bidder gets a
// placeholder entry that settlement later rewrites or retracts.
func (g *TimeBidGame) startAuction(c claim) {
	r := g.res
	card := g.cardInfo(c.CardID)
	r.placeholders = make(map[models.PlayerID]int, len(c.Bidders))
	for _, pid := range c.Bidders {
		p := g.getPlayerByID(pid)
		r.placeholders[pid] = g.Ledger.Append(pid, TimelineEvent{
			Type:      LedgerBidding,
			Subtype:   SubtypePlaceholder,
			Detail:    fmt.Sprintf("bidding on %s", card.Name),
			TimeAfter: p.Time,
			Round:     g.Round,
		})
	}
	r.auction = NewAuctionSession(c.CardID, c.Bidders)
	g.fireEvent(GameEvent{
		Type:    EventAuctionStarted,
		Card:    buildEventCard(card),
		Round:   g.Round,
		Payload: map[string]interface{}{"bidders": c.Bidders},
	})
	g.logAction("", string(EventAuctionStarted), map[string]interface{}{"cardId": c.CardID, "bidders": c.Bidders})
}

// commitRound discards the unclaimed market, advances the round counter and
// drops the snapshot.
func (g *TimeBidGame) commitRound() RoundOutcome {
	r := g.res
	var discarded []models.CardID
	for _, id := range r.market {
		if containsCard(g.AvailablePool, id) {
			g.spendCard(id)
			discarded = append(discarded, id)
		}
	}

	out := RoundOutcome{Status: OutcomeCommitted, Round: g.Round, Results: r.results, Discarded: discarded}
	g.Round++
	g.Market = nil
	g.pending = make(map[models.PlayerID]*PendingChoice)
	g.res = nil
	g.Phase = PhaseMarketSelection

	g.fireEvent(GameEvent{
		Type:    EventRoundCommitted,
		Round:   out.Round,
		Payload: map[string]interface{}{"results": out.Results, "discarded": discarded},
	})
	g.logAction("", string(EventRoundCommitted), map[string]interface{}{"round": out.Round, "results": out.Results, "discarded": discarded})
	g.log.WithFields(logrus.Fields{"round": out.Round, "pool": len(g.AvailablePool)}).Debug("round committed")

	if len(g.AvailablePool) == 0 {
		g.endGame()
		out.GameOver = true
	}
	return out
}

// rollback restores the pre-round snapshot and drops all resolution state.
func (g *TimeBidGame) rollback() RoundOutcome {
	r := g.res
	if r.auction != nil && r.auction.State() == AuctionAwaitingBid {
		_ = r.auction.Cancel()
	}
	g.restoreSnapshot(r.snapshot)
	g.res = nil
	g.pending = make(map[models.PlayerID]*PendingChoice)
	g.Phase = PhaseActionSelection

	g.fireEvent(GameEvent{Type: EventRoundAborted, Round: g.Round})
	g.logAction("", string(EventRoundAborted), nil)
	g.log.WithField("round", g.Round).Info("round cancelled and rolled back")
	return RoundOutcome{Status: OutcomeAborted, Round: g.Round}
}

// endGame marks the game over and hands the standings to OnGameEnd.
func (g *TimeBidGame) endGame() {
	g.GameOver = true
	g.Phase = PhaseGameOver
	standings := g.Standings()

	g.fireEvent(GameEvent{Type: EventGameEnd, Payload: map[string]interface{}{"standings": standings}})
	g.logAction("", "game_over", map[string]interface{}{"standings": standings, "rounds": g.Round - 1})
	g.log.Info("card pool exhausted, game over")

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.ID, standings)
	}
}

// Standings lists every player's time and cards in seat order.
// Assumes lock is held by caller.
func (g *TimeBidGame) Standings() []Standing {
	out := make([]Standing, 0, len(g.Players))
	for _, p := range g.Players {
		out = append(out, Standing{
			Player:        p.ID,
			CharacterID:   p.Character.ID,
			CharacterName: p.Character.Name,
			Time:          p.Time,
			Cards:         g.CardsOwnedBy(p.ID),
		})
	}
	return out
}

// CardsOwnedBy returns player's cards in ascending id order.
// Assumes lock is held by caller.
func (g *TimeBidGame) CardsOwnedBy(player models.PlayerID) []models.CardID {
	cards := []models.CardID{}
	for id, owner := range g.Owned {
		if owner == player {
			cards = append(cards, id)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i] < cards[j] })
	return cards
}

// AdjustPlayerTimeManually corrects a player's time outside the rules.
// The result is clamped to [0, MaxTime]; a real change is recorded and
// drops the player's pending action.
// Assumes lock is held by caller.
func (g *TimeBidGame) AdjustPlayerTimeManually(player models.PlayerID, delta int) (int, error) {
	if g.GameOver {
		return 0, ErrGameOver
	}
	if g.res != nil {
		return 0, ErrResolutionInProgress
	}
	if !g.HouseRules.AllowManualAdjust {
		return 0, ErrManualAdjustDisabled
	}
	p := g.getPlayerByID(player)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}

	before := p.Time
	p.Time = clampTime(p.Time+delta, g.HouseRules.MaxTime)
	change := p.Time - before
	if change == 0 {
		return p.Time, nil
	}

	subtype := SubtypePlus
	if change < 0 {
		subtype = SubtypeMinus
	}
	g.record(player, LedgerManualAdjust, subtype, change, fmt.Sprintf("manual adjustment %+d", change))
	g.ClearAction(player)
	g.fireEvent(GameEvent{
		Type:    EventTimeAdjusted,
		Player:  player,
		Round:   g.Round,
		Payload: map[string]interface{}{"change": change, "time": p.Time},
	})
	return p.Time, nil
}

// applyRoundStartBonus grants the round-start skill bonus once per round
// number, so a rolled back round does not grant it twice.
func (g *TimeBidGame) applyRoundStartBonus() {
	if g.bonusRound == g.Round {
		return
	}
	g.bonusRound = g.Round
	bonus := RoundStartBonus(g.Players)
	if bonus == 0 {
		return
	}
	for _, p := range g.Players {
		before := p.Time
		p.Time = clampTime(p.Time+bonus, g.HouseRules.MaxTime)
		g.record(p.ID, LedgerSkill, SubtypeRoundStartBonus, p.Time-before,
			fmt.Sprintf("round start bonus +%d", bonus))
	}
}

func (g *TimeBidGame) applyRest(p *models.Player) {
	recovery := RestRecovery(p, g.HouseRules)
	before := p.Time
	p.Time = clampTime(p.Time+recovery, g.HouseRules.MaxTime)
	g.record(p.ID, LedgerRest, SubtypeRecover, p.Time-before, fmt.Sprintf("rested, recovery +%d", recovery))
}

// groupClaims collects the claimed cards with their bidders in seat order,
// ordered by position in market. Cards outside market go last, by id.
func groupClaims(players []*models.Player, actions map[models.PlayerID]Action, market []models.CardID) []claim {
	byCard := make(map[models.CardID]*claim)
	var claims []*claim
	for _, p := range players {
		a, ok := actions[p.ID]
		if !ok || a.Rest {
			continue
		}
		for _, id := range a.Cards {
			c, ok := byCard[id]
			if !ok {
				c = &claim{CardID: id}
				byCard[id] = c
				claims = append(claims, c)
			}
			c.Bidders = append(c.Bidders, p.ID)
		}
	}

	position := func(id models.CardID) int {
		for i, m := range market {
			if m == id {
				return i
			}
		}
		return len(market)
	}
	sort.SliceStable(claims, func(i, j int) bool {
		pi, pj := position(claims[i].CardID), position(claims[j].CardID)
		if pi != pj {
			return pi < pj
		}
		return claims[i].CardID < claims[j].CardID
	})

	out := make([]claim, len(claims))
	for i, c := range claims {
		out[i] = *c
	}
	return out
}

// record appends a ledger entry for player and broadcasts it.
func (g *TimeBidGame) record(player models.PlayerID, typ, subtype string, change int, detail string) {
	p := g.getPlayerByID(player)
	ev := TimelineEvent{
		Type:       typ,
		Subtype:    subtype,
		Detail:     detail,
		TimeChange: change,
		TimeAfter:  p.Time,
		Round:      g.Round,
	}
	g.Ledger.Append(player, ev)
	g.fireEvent(GameEvent{
		Type:    EventLedgerAppended,
		Player:  player,
		Round:   g.Round,
		Payload: map[string]interface{}{"entry": ev},
	})
	g.logAction(player, typ, map[string]interface{}{"subtype": subtype, "detail": detail, "change": change, "after": p.Time})
}

func (g *TimeBidGame) requirePhase(want Phase) error {
	if g.GameOver {
		return ErrGameOver
	}
	if g.Phase != want {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, g.Phase, want)
	}
	return nil
}

// claimCard moves id from the pool to player.
func (g *TimeBidGame) claimCard(id models.CardID, player models.PlayerID) {
	g.AvailablePool = removeCard(g.AvailablePool, id)
	g.Owned[id] = player
}

// spendCard moves id from the pool to the discard pile.
func (g *TimeBidGame) spendCard(id models.CardID) {
	g.AvailablePool = removeCard(g.AvailablePool, id)
	g.Discarded = append(g.Discarded, id)
}

// unspendCard moves a just-spent id from the discard pile to player.
func (g *TimeBidGame) unspendCard(id models.CardID, player models.PlayerID) {
	g.Discarded = removeCard(g.Discarded, id)
	g.Owned[id] = player
}

func (g *TimeBidGame) cardInfo(id models.CardID) *models.Card {
	c, ok := g.Registry.Card(id)
	if !ok {
		return &models.Card{ID: id, Name: fmt.Sprintf("card %d", id)}
	}
	return c
}

func (g *TimeBidGame) getPlayerByID(id models.PlayerID) *models.Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func removeCard(ids []models.CardID, id models.CardID) []models.CardID {
	for i, c := range ids {
		if c == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func clampTime(t, maxTime int) int {
	if t < 0 {
		return 0
	}
	if t > maxTime {
		return maxTime
	}
	return t
}
