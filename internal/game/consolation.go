// internal/game/consolation.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// ConsolationStage tracks where the current player is in a consolation draw.
type ConsolationStage int

const (
	ConsolationAwaitingChoice ConsolationStage = iota
	ConsolationAwaitingConfirm
	ConsolationDone
)

func (s ConsolationStage) String() string {
	switch s {
	case ConsolationAwaitingChoice:
		return "awaiting_choice"
	case ConsolationAwaitingConfirm:
		return "awaiting_confirm"
	case ConsolationDone:
		return "done"
	}
	return "unknown"
}

// ConsolationDrawSession lets each bidder of an unresolved tie, in seat
// order, pick one card from the remaining pool and decide whether to buy it.
type ConsolationDrawSession struct {
	SourceCard models.CardID
	Players    []models.PlayerID
	candidates []models.CardID
	current    int
	selected   models.CardID
	stage      ConsolationStage
}

func newConsolationSession(source models.CardID, players []models.PlayerID, candidates []models.CardID) *ConsolationDrawSession {
	s := &ConsolationDrawSession{
		SourceCard: source,
		Players:    append([]models.PlayerID(nil), players...),
		candidates: candidates,
	}
	if len(s.Players) == 0 {
		s.stage = ConsolationDone
	}
	return s
}

// Stage returns the current stage.
func (s *ConsolationDrawSession) Stage() ConsolationStage {
	return s.stage
}

// CurrentPlayer returns the player being served, if any.
func (s *ConsolationDrawSession) CurrentPlayer() (models.PlayerID, bool) {
	if s.stage == ConsolationDone {
		return "", false
	}
	return s.Players[s.current], true
}

// Candidates returns a copy of the cards still on offer.
func (s *ConsolationDrawSession) Candidates() []models.CardID {
	return append([]models.CardID{}, s.candidates...)
}

// Selected returns the card awaiting a purchase decision.
func (s *ConsolationDrawSession) Selected() (models.CardID, bool) {
	if s.stage != ConsolationAwaitingConfirm {
		return 0, false
	}
	return s.selected, true
}

func (s *ConsolationDrawSession) hasCandidate(id models.CardID) bool {
	for _, c := range s.candidates {
		if c == id {
			return true
		}
	}
	return false
}

func (s *ConsolationDrawSession) removeCandidate(id models.CardID) {
	for i, c := range s.candidates {
		if c == id {
			s.candidates = append(s.candidates[:i:i], s.candidates[i+1:]...)
			return
		}
	}
}

func (s *ConsolationDrawSession) nextPlayer() {
	s.current++
	s.selected = 0
	s.stage = ConsolationAwaitingChoice
	if s.current >= len(s.Players) {
		s.stage = ConsolationDone
	}
}

// startConsolation opens a draw for the tied bidders of source. The
// candidates are the remaining pool minus the round's market and minus every
// card claimed this round, fixed at the moment the draw opens.
// Assumes lock is held by caller.
func (g *TimeBidGame) startConsolation(source models.CardID, tied []models.PlayerID) {
	r := g.res
	excluded := make(map[models.CardID]bool, len(r.market)+len(r.claims))
	for _, id := range r.market {
		excluded[id] = true
	}
	for _, c := range r.claims {
		excluded[c.CardID] = true
	}
	candidates := make([]models.CardID, 0, len(g.AvailablePool))
	for _, id := range g.AvailablePool {
		if !excluded[id] {
			candidates = append(candidates, id)
		}
	}
	r.consolation = newConsolationSession(source, tied, candidates)

	g.log.WithFields(logrus.Fields{"source": source, "players": tied, "candidates": len(candidates)}).
		Debug("consolation draw opened")
	g.fireEvent(GameEvent{
		Type:    EventConsolationStarted,
		Card:    buildEventCard(g.cardInfo(source)),
		Round:   g.Round,
		Payload: map[string]interface{}{"players": tied, "candidates": len(candidates)},
	})
}

// pumpConsolation skips players who have nothing left to choose from.
// Assumes lock is held by caller.
func (g *TimeBidGame) pumpConsolation() {
	s := g.res.consolation
	for s.stage == ConsolationAwaitingChoice && len(s.candidates) == 0 {
		pid, _ := s.CurrentPlayer()
		g.record(pid, LedgerConsolation, SubtypeNoCards, 0, "consolation draw: no cards left to choose from")
		s.nextPlayer()
	}
}

// chooseConsolation applies the current player's pick. A nil card declines.
// A chosen card leaves the pool at once, whatever the player then decides.
// Assumes lock is held by caller.
func (g *TimeBidGame) chooseConsolation(card *models.CardID) error {
	s := g.res.consolation
	pid, ok := s.CurrentPlayer()
	if !ok || s.stage != ConsolationAwaitingChoice {
		return ErrUnexpectedInput
	}
	if card == nil {
		g.record(pid, LedgerConsolation, SubtypeDeclinedSelection, 0, "consolation draw: declined to pick a card")
		s.nextPlayer()
		return nil
	}
	if !s.hasCandidate(*card) {
		return fmt.Errorf("%w: %d", ErrNotCandidate, *card)
	}

	s.removeCandidate(*card)
	g.spendCard(*card)

	info, known := g.Registry.Card(*card)
	if !known {
		g.log.WithFields(logrus.Fields{"player": pid, "card": *card}).
			Warn("consolation pick refers to a card missing from the registry, skipping player")
		g.record(pid, LedgerConsolation, SubtypeSkipped, 0,
			fmt.Sprintf("consolation draw skipped: card %d is not in the registry", *card))
		s.nextPlayer()
		return nil
	}

	s.selected = *card
	s.stage = ConsolationAwaitingConfirm
	g.fireEvent(GameEvent{
		Type:   EventConsolationPick,
		Player: pid,
		Card:   buildEventCard(info),
		Round:  g.Round,
	})
	return nil
}

// decideConsolation settles the purchase of the current player's pick.
// Assumes lock is held by caller.
func (g *TimeBidGame) decideConsolation(buy bool) error {
	s := g.res.consolation
	id, ok := s.Selected()
	if !ok {
		return ErrUnexpectedInput
	}
	pid, _ := s.CurrentPlayer()
	p := g.getPlayerByID(pid)
	card := g.cardInfo(id)
	cost := AdjustedCost(p, card.Price, ContextConsolationDraw)

	switch {
	case buy && p.Time >= cost:
		p.Time -= cost
		g.unspendCard(id, pid)
		g.record(pid, LedgerConsolation, SubtypeAcquired, -cost,
			fmt.Sprintf("consolation draw: bought %s (paid %d, price %d)", card.Name, cost, card.Price))
		g.res.addResult(CardResult{CardID: id, Resolution: ResolutionConsolation, Winner: pid, Cost: cost})
	case buy:
		g.record(pid, LedgerConsolation, SubtypeDeclinedPurchase, 0,
			fmt.Sprintf("consolation draw: cannot afford %s (needs %d, has %d)", card.Name, cost, p.Time))
	default:
		g.record(pid, LedgerConsolation, SubtypeDeclinedPurchase, 0,
			fmt.Sprintf("consolation draw: passed on %s", card.Name))
	}
	s.nextPlayer()
	return nil
}
