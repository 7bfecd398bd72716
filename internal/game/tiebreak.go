// internal/game/tiebreak.go
package game

import (
	"fmt"
	"sort"

	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/sirupsen/logrus"
)

// TieBreakResult is the verdict on a finished auction.
type TieBreakResult struct {
	Winner     models.PlayerID
	HasWinner  bool
	BySkill    bool              // winner chosen by tie-break priority
	Unresolved bool              // tie that goes to a consolation draw
	Tied       []models.PlayerID // potential winners in seat order
}

// BreakTie decides who, if anyone, takes the card. Several tie-break skill
// holders among the tied bidders cancel each other out.
func BreakTie(out BiddingOutcome, lookup func(models.PlayerID) *models.Player) TieBreakResult {
	if out.AllPassed || len(out.PotentialWinners) == 0 {
		return TieBreakResult{}
	}
	if len(out.PotentialWinners) == 1 {
		return TieBreakResult{Winner: out.PotentialWinners[0], HasWinner: true}
	}

	tied := append([]models.PlayerID(nil), out.PotentialWinners...)
	sort.SliceStable(tied, func(i, j int) bool {
		return models.SeatIndex(tied[i]) < models.SeatIndex(tied[j])
	})

	holders := tieBreakHolders(tied, lookup)
	if len(holders) == 1 {
		return TieBreakResult{Winner: holders[0], HasWinner: true, BySkill: true, Tied: tied}
	}
	return TieBreakResult{Unresolved: true, Tied: tied}
}

// settleAuction applies a finished auction: deducts the winner's time,
// writes every bidder's ledger entry and closes the participation markers.
// Assumes lock is held by caller.
func (g *TimeBidGame) settleAuction(out BiddingOutcome) TieBreakResult {
	r := g.res
	card := g.cardInfo(out.CardID)
	verdict := BreakTie(out, g.getPlayerByID)

	fields := logrus.Fields{"card": card.ID, "maxBid": out.MaxBid, "tied": verdict.Tied}

	switch {
	case out.AllPassed:
		for _, b := range out.Bids {
			g.record(b.Player, LedgerBidding, SubtypePassAll, 0,
				fmt.Sprintf("everyone passed: %s (price %d)", card.Name, card.Price))
		}
		g.closePlaceholders("", card)
		r.addResult(CardResult{CardID: card.ID, Resolution: ResolutionAllPassed})
		g.log.WithFields(fields).Debug("auction ended with every bidder passing")

	case verdict.HasWinner:
		w := g.getPlayerByID(verdict.Winner)
		cost := AdjustedCost(w, out.MaxBid, ContextBidWin)
		won := w.Time >= cost
		if won {
			subtype, how := SubtypeWin, "won auction"
			if verdict.BySkill {
				subtype, how = SubtypeSkillWin, "won tie by skill"
			}
			w.Time -= cost
			g.record(w.ID, LedgerBidding, subtype, -cost,
				fmt.Sprintf("%s: %s (bid %d, paid %d, price %d)", how, card.Name, out.MaxBid, cost, card.Price))
			g.claimCard(card.ID, w.ID)
			g.closePlaceholders(w.ID, card)
			resolution := ResolutionAuctionWon
			if verdict.BySkill {
				resolution = ResolutionSkillWon
			}
			r.addResult(CardResult{CardID: card.ID, Resolution: resolution, Winner: w.ID, Cost: cost})
		} else {
			g.record(w.ID, LedgerBidding, SubtypeInsufficientBid, 0,
				fmt.Sprintf("winning bid failed: %s (needs %d, has %d)", card.Name, cost, w.Time))
			g.closePlaceholders("", card)
			r.addResult(CardResult{CardID: card.ID, Resolution: ResolutionAuctionFailed, Winner: w.ID, Cost: cost})
		}
		for _, b := range out.Bids {
			if b.Player == w.ID {
				continue
			}
			if verdict.BySkill && containsPlayer(verdict.Tied, b.Player) {
				g.record(b.Player, LedgerBidding, SubtypeLostBySkill, 0,
					fmt.Sprintf("lost tie by skill: %s (bid %d)", card.Name, b.Amount))
				continue
			}
			g.recordLoseOrPass(b, card)
		}
		g.log.WithFields(fields).WithField("winner", w.ID).WithField("paid", won).Debug("auction settled")

	default:
		for _, b := range out.Bids {
			if containsPlayer(verdict.Tied, b.Player) {
				g.record(b.Player, LedgerBidding, SubtypeTieUnresolved, 0,
					fmt.Sprintf("tie unresolved: %s (bid %d)", card.Name, out.MaxBid))
				continue
			}
			g.recordLoseOrPass(b, card)
		}
		g.closePlaceholders("", card)
		r.addResult(CardResult{CardID: card.ID, Resolution: ResolutionTieUnresolved, Tied: verdict.Tied})
		g.log.WithFields(fields).Debug("auction tied without a skill winner")
	}

	g.fireEvent(GameEvent{
		Type:  EventAuctionSettled,
		Card:  buildEventCard(card),
		Round: g.Round,
		Payload: map[string]interface{}{
			"allPassed":  out.AllPassed,
			"maxBid":     out.MaxBid,
			"winner":     verdict.Winner,
			"bySkill":    verdict.BySkill,
			"unresolved": verdict.Unresolved,
			"tied":       verdict.Tied,
		},
	})
	g.logAction("", "auction_settled", map[string]interface{}{
		"cardId": card.ID, "bids": out.Bids, "winner": verdict.Winner, "unresolved": verdict.Unresolved,
	})
	return verdict
}

func (g *TimeBidGame) recordLoseOrPass(b Bid, card *models.Card) {
	if b.Amount > 0 {
		g.record(b.Player, LedgerBidding, SubtypeLose, 0, fmt.Sprintf("lost auction: %s (bid %d)", card.Name, b.Amount))
		return
	}
	g.record(b.Player, LedgerBidding, SubtypePass, 0, fmt.Sprintf("passed: %s", card.Name))
}

// closePlaceholders turns the winner's placeholder into a participation
// marker and drops everyone else's.
func (g *TimeBidGame) closePlaceholders(winner models.PlayerID, card *models.Card) {
	r := g.res
	for pid, idx := range r.placeholders {
		var err error
		if pid == winner {
			ev := g.Ledger.Events(pid)[idx]
			ev.Subtype = SubtypeAuctionMarker
			ev.Detail = fmt.Sprintf("auction won: %s", card.Name)
			err = g.Ledger.Rewrite(pid, idx, ev)
		} else {
			err = g.Ledger.Retract(pid, idx)
		}
		if err != nil {
			g.log.WithError(err).WithField("player", pid).Warn("could not close auction placeholder")
		}
	}
	r.placeholders = nil
}

func containsPlayer(ids []models.PlayerID, id models.PlayerID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
