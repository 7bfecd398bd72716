// internal/game/actions.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/timebid/internal/models"
)

// Action is what a player does in a round: rest, or claim one card (two
// with the double choice skill). The zero Action means no action.
type Action struct {
	Rest  bool            `json:"rest,omitempty"`
	Cards []models.CardID `json:"cards,omitempty"`
}

// RestAction returns a rest.
func RestAction() Action {
	return Action{Rest: true}
}

// ClaimAction returns a claim on the given cards.
func ClaimAction(cards ...models.CardID) Action {
	return Action{Cards: cards}
}

// IsZero reports whether the action is empty.
func (a Action) IsZero() bool {
	return !a.Rest && len(a.Cards) == 0
}

func (a Action) equal(b Action) bool {
	if a.Rest != b.Rest || len(a.Cards) != len(b.Cards) {
		return false
	}
	for i := range a.Cards {
		if a.Cards[i] != b.Cards[i] {
			return false
		}
	}
	return true
}

// ChoiceStage is how far a player has got choosing this round's action.
type ChoiceStage string

const (
	ChoiceNone ChoiceStage = "none"
	// ChoiceFirstMade is reported only transiently: a first card from a
	// double choice holder moves straight on to ChoiceAwaitingSecond.
	ChoiceFirstMade      ChoiceStage = "first_choice_made"
	ChoiceAwaitingSecond ChoiceStage = "awaiting_second"
	ChoiceDone           ChoiceStage = "done"
)

// PendingChoice is a player's action while the table is still choosing.
type PendingChoice struct {
	Stage  ChoiceStage `json:"stage"`
	Action Action      `json:"action"`
}

// PendingStage returns the choice stage of player.
// Assumes lock is held by caller.
func (g *TimeBidGame) PendingStage(player models.PlayerID) ChoiceStage {
	if pc, ok := g.pending[player]; ok {
		return pc.Stage
	}
	return ChoiceNone
}

// SubmitAction records player's action for the round. Submitting the action
// already recorded toggles it off. A double choice holder who names a single
// card stays open for a second one until FinishChoice.
// Assumes lock is held by caller.
func (g *TimeBidGame) SubmitAction(player models.PlayerID, a Action) error {
	if err := g.requirePhase(PhaseActionSelection); err != nil {
		return err
	}
	p := g.getPlayerByID(player)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if err := g.checkAction(p, a); err != nil {
		return err
	}
	for _, id := range a.Cards {
		if !containsCard(g.Market, id) {
			return fmt.Errorf("%w: %d", ErrCardNotOffered, id)
		}
	}

	if a.IsZero() {
		g.ClearAction(player)
		return nil
	}

	cur, had := g.pending[player]
	if had && cur.Action.equal(a) {
		g.ClearAction(player)
		return nil
	}

	stage := ChoiceDone
	if len(a.Cards) == 1 && canDoubleChoice(p) {
		stage = ChoiceAwaitingSecond
		if had && cur.Stage == ChoiceAwaitingSecond {
			a = ClaimAction(cur.Action.Cards[0], a.Cards[0])
			stage = ChoiceDone
		}
	}
	g.pending[player] = &PendingChoice{Stage: stage, Action: a}
	g.fireEvent(GameEvent{
		Type:    EventActionChosen,
		Player:  player,
		Round:   g.Round,
		Payload: map[string]interface{}{"stage": stage, "rest": a.Rest, "cards": a.Cards},
	})
	g.logAction(player, string(EventActionChosen), map[string]interface{}{"stage": stage, "rest": a.Rest, "cards": a.Cards})
	return nil
}

// FinishChoice closes a double choice holder's pick after a single card.
// Assumes lock is held by caller.
func (g *TimeBidGame) FinishChoice(player models.PlayerID) error {
	if err := g.requirePhase(PhaseActionSelection); err != nil {
		return err
	}
	pc, ok := g.pending[player]
	if !ok || pc.Stage != ChoiceAwaitingSecond {
		return fmt.Errorf("%w: %s is not choosing a second card", ErrInvalidAction, player)
	}
	pc.Stage = ChoiceDone
	g.fireEvent(GameEvent{
		Type:    EventActionChosen,
		Player:  player,
		Round:   g.Round,
		Payload: map[string]interface{}{"stage": pc.Stage, "cards": pc.Action.Cards},
	})
	return nil
}

// ClearAction forgets player's pending action.
// Assumes lock is held by caller.
func (g *TimeBidGame) ClearAction(player models.PlayerID) {
	if _, ok := g.pending[player]; !ok {
		return
	}
	delete(g.pending, player)
	g.fireEvent(GameEvent{Type: EventActionCleared, Player: player, Round: g.Round})
}

// PendingActions returns the actions chosen so far.
// Assumes lock is held by caller.
func (g *TimeBidGame) PendingActions() map[models.PlayerID]Action {
	out := make(map[models.PlayerID]Action, len(g.pending))
	for pid, pc := range g.pending {
		out[pid] = pc.Action
	}
	return out
}

// ResolvePending resolves the round with the pending actions once every
// player has chosen.
// Assumes lock is held by caller.
func (g *TimeBidGame) ResolvePending() (RoundOutcome, error) {
	if err := g.requirePhase(PhaseActionSelection); err != nil {
		return RoundOutcome{}, err
	}
	var missing []models.PlayerID
	for _, p := range g.Players {
		switch g.PendingStage(p.ID) {
		case ChoiceDone, ChoiceAwaitingSecond:
		default:
			missing = append(missing, p.ID)
		}
	}
	if len(missing) > 0 {
		return RoundOutcome{}, fmt.Errorf("%w: waiting on %v", ErrActionsIncomplete, missing)
	}
	return g.ResolveRound(g.PendingActions())
}

// checkAction validates the shape of a against p's skills and the pool.
func (g *TimeBidGame) checkAction(p *models.Player, a Action) error {
	if a.Rest {
		if len(a.Cards) > 0 {
			return fmt.Errorf("%w: %s cannot rest and claim at once", ErrInvalidAction, p.ID)
		}
		return nil
	}
	switch len(a.Cards) {
	case 0, 1:
	case 2:
		if !canDoubleChoice(p) {
			return fmt.Errorf("%w: %s may claim only one card", ErrInvalidAction, p.ID)
		}
		if a.Cards[0] == a.Cards[1] {
			return fmt.Errorf("%w: %s claimed card %d twice", ErrInvalidAction, p.ID, a.Cards[0])
		}
	default:
		return fmt.Errorf("%w: %s claimed %d cards", ErrInvalidAction, p.ID, len(a.Cards))
	}
	for _, id := range a.Cards {
		if _, ok := g.Registry.Card(id); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownCard, id)
		}
		if !containsCard(g.AvailablePool, id) {
			return fmt.Errorf("%w: %d", ErrCardUnavailable, id)
		}
	}
	return nil
}

// validateActions checks every submitted action before anything is mutated.
func (g *TimeBidGame) validateActions(actions map[models.PlayerID]Action) error {
	for pid := range actions {
		if g.getPlayerByID(pid) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, pid)
		}
	}
	for _, p := range g.Players {
		a, ok := actions[p.ID]
		if !ok {
			continue
		}
		if err := g.checkAction(p, a); err != nil {
			return err
		}
	}
	return nil
}

func containsCard(ids []models.CardID, id models.CardID) bool {
	for _, c := range ids {
		if c == id {
			return true
		}
	}
	return false
}
