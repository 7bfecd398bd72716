// internal/game/snapshot.go
package game

import "github.com/jason-s-yu/timebid/internal/models"

// RoundSnapshot is a deep copy of every piece of state a round may touch.
// It is taken once per round before the first mutation and is either
// discarded on commit or consumed by a rollback.
type RoundSnapshot struct {
	PlayerTimes   map[models.PlayerID]int
	Ledger        *Ledger
	Round         int
	AvailablePool []models.CardID
	Market        []models.CardID
	Owned         map[models.CardID]models.PlayerID
	Discarded     []models.CardID
}

// takeSnapshot captures the current round state.
// Assumes lock is held by caller.
func (g *TimeBidGame) takeSnapshot() *RoundSnapshot {
	snap := &RoundSnapshot{
		PlayerTimes:   make(map[models.PlayerID]int, len(g.Players)),
		Ledger:        g.Ledger.Clone(),
		Round:         g.Round,
		AvailablePool: cloneCardIDs(g.AvailablePool),
		Market:        cloneCardIDs(g.Market),
		Owned:         make(map[models.CardID]models.PlayerID, len(g.Owned)),
		Discarded:     cloneCardIDs(g.Discarded),
	}
	for _, p := range g.Players {
		snap.PlayerTimes[p.ID] = p.Time
	}
	for c, p := range g.Owned {
		snap.Owned[c] = p
	}
	return snap
}

// restoreSnapshot puts every captured value back. The snapshot must not be
// reused afterwards since its containers now back the live state.
// Assumes lock is held by caller.
func (g *TimeBidGame) restoreSnapshot(snap *RoundSnapshot) {
	for _, p := range g.Players {
		if t, ok := snap.PlayerTimes[p.ID]; ok {
			p.Time = t
		}
	}
	g.Ledger = snap.Ledger
	g.Round = snap.Round
	g.AvailablePool = snap.AvailablePool
	g.Market = snap.Market
	g.Owned = snap.Owned
	g.Discarded = snap.Discarded
}

// cloneCardIDs copies ids, preserving nil.
func cloneCardIDs(ids []models.CardID) []models.CardID {
	if ids == nil {
		return nil
	}
	out := make([]models.CardID, len(ids))
	copy(out, ids)
	return out
}
