// internal/game/ledger.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/timebid/internal/models"
)

// Ledger event types. Subtypes below narrow them down for the renderer.
const (
	LedgerRest         = "rest"
	LedgerBuy          = "buy"
	LedgerBuyFail      = "buy_fail"
	LedgerBidding      = "bidding"
	LedgerPhaseTick    = "phase_tick"
	LedgerManualAdjust = "manual_adjust"
	LedgerConsolation  = "consolation"
	LedgerSkill        = "skill"
)

const (
	SubtypeRecover            = "recover"
	SubtypeDirect             = "direct"
	SubtypeInsufficientDirect = "insufficient_funds_direct"
	SubtypeWin                = "win"
	SubtypeSkillWin           = "skill_win"
	SubtypeLose               = "lose"
	SubtypeLostBySkill        = "lost_by_skill"
	SubtypePass               = "pass"
	SubtypePassAll            = "pass_all"
	SubtypeTieUnresolved      = "tie_fail"
	SubtypeInsufficientBid    = "insufficient_funds_bid"
	SubtypePlaceholder        = "pre_bidding_placeholder"
	SubtypeAuctionMarker      = "auction_marker"
	SubtypePlus               = "plus"
	SubtypeMinus              = "minus"
	SubtypeNoCards            = "no_cards_available"
	SubtypeDeclinedSelection  = "declined_selection"
	SubtypeAcquired           = "acquired"
	SubtypeDeclinedPurchase   = "declined_purchase"
	SubtypeSkipped            = "skipped"
	SubtypeRoundStartBonus    = "round_start_bonus"
)

var (
	ErrLedgerIndex    = errors.New("ledger index out of range")
	ErrNotPlaceholder = errors.New("ledger entry is not a placeholder")
)

// TimelineEvent is one entry in a player's ledger.
type TimelineEvent struct {
	Type       string `json:"type"`
	Subtype    string `json:"subtype"`
	Detail     string `json:"detail"`
	TimeChange int    `json:"timeChange"`
	TimeAfter  int    `json:"timeAfter"`
	Round      int    `json:"round"`
}

// Ledger is an append-only log of timeline events per player. The only
// in-place edits allowed are on auction placeholders, which are either
// rewritten to their final marker or retracted once the auction settles.
type Ledger struct {
	entries map[models.PlayerID][]TimelineEvent
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[models.PlayerID][]TimelineEvent)}
}

// Append adds ev to p's timeline and returns its index.
func (l *Ledger) Append(p models.PlayerID, ev TimelineEvent) int {
	l.entries[p] = append(l.entries[p], ev)
	return len(l.entries[p]) - 1
}

// Rewrite replaces the placeholder at idx with its final form.
func (l *Ledger) Rewrite(p models.PlayerID, idx int, ev TimelineEvent) error {
	if err := l.checkPlaceholder(p, idx); err != nil {
		return err
	}
	l.entries[p][idx] = ev
	return nil
}

// Retract removes the placeholder at idx.
func (l *Ledger) Retract(p models.PlayerID, idx int) error {
	if err := l.checkPlaceholder(p, idx); err != nil {
		return err
	}
	evs := l.entries[p]
	l.entries[p] = append(evs[:idx:idx], evs[idx+1:]...)
	return nil
}

func (l *Ledger) checkPlaceholder(p models.PlayerID, idx int) error {
	evs := l.entries[p]
	if idx < 0 || idx >= len(evs) {
		return fmt.Errorf("%w: player %s index %d", ErrLedgerIndex, p, idx)
	}
	if evs[idx].Subtype != SubtypePlaceholder {
		return fmt.Errorf("%w: player %s index %d is %s/%s", ErrNotPlaceholder, p, idx, evs[idx].Type, evs[idx].Subtype)
	}
	return nil
}

// Events returns a copy of p's timeline.
func (l *Ledger) Events(p models.PlayerID) []TimelineEvent {
	evs := l.entries[p]
	out := make([]TimelineEvent, len(evs))
	copy(out, evs)
	return out
}

// Len returns the number of entries in p's timeline.
func (l *Ledger) Len(p models.PlayerID) int {
	return len(l.entries[p])
}

// Last returns the most recent entry of p's timeline.
func (l *Ledger) Last(p models.PlayerID) (TimelineEvent, bool) {
	evs := l.entries[p]
	if len(evs) == 0 {
		return TimelineEvent{}, false
	}
	return evs[len(evs)-1], true
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := NewLedger()
	for p, evs := range l.entries {
		cp := make([]TimelineEvent, len(evs))
		copy(cp, evs)
		c.entries[p] = cp
	}
	return c
}

// MarshalJSON exports the ledger as {"A": [...], "B": [...]}.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries)
}
