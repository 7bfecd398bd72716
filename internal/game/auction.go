// internal/game/auction.go
package game

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/timebid/internal/models"
)

// AuctionState is the phase of a single-card auction.
type AuctionState int

const (
	AuctionAwaitingBid AuctionState = iota
	AuctionAllCollected
	AuctionCancelled
)

func (s AuctionState) String() string {
	switch s {
	case AuctionAwaitingBid:
		return "awaiting_bid"
	case AuctionAllCollected:
		return "all_collected"
	case AuctionCancelled:
		return "cancelled"
	}
	return "unknown"
}

var (
	ErrAuctionClosed  = errors.New("auction is no longer accepting input")
	ErrWrongBidder    = errors.New("bid submitted out of turn")
	ErrNegativeBid    = errors.New("bid amount must not be negative")
	ErrCannotStepBack = errors.New("no earlier bidder to step back to")
	ErrBidsIncomplete = errors.New("auction has not collected every bid")
)

// Bid is one bidder's offer. An amount of zero is a pass.
type Bid struct {
	Player models.PlayerID `json:"player"`
	CardID models.CardID   `json:"cardId"`
	Amount int             `json:"amount"`
}

// BiddingOutcome summarises a finished auction.
type BiddingOutcome struct {
	CardID           models.CardID
	Bids             []Bid
	AllPassed        bool
	MaxBid           int
	PotentialWinners []models.PlayerID // bidders at MaxBid, in bidding order
}

// AuctionSession collects one bid from each bidder in a fixed order. Bids are
// not escrowed: nothing here touches player time.
type AuctionSession struct {
	CardID  models.CardID
	Bidders []models.PlayerID
	bids    []Bid
	state   AuctionState
}

// NewAuctionSession opens an auction over cardID for bidders, in the given order.
func NewAuctionSession(cardID models.CardID, bidders []models.PlayerID) *AuctionSession {
	a := &AuctionSession{
		CardID:  cardID,
		Bidders: append([]models.PlayerID(nil), bidders...),
		bids:    make([]Bid, 0, len(bidders)),
	}
	if len(bidders) == 0 {
		a.state = AuctionAllCollected
	}
	return a
}

// State returns the current phase.
func (a *AuctionSession) State() AuctionState {
	return a.state
}

// Step is the index of the bidder being waited on (AwaitingBid(i)).
func (a *AuctionSession) Step() int {
	return len(a.bids)
}

// CurrentBidder returns the bidder whose input is awaited.
func (a *AuctionSession) CurrentBidder() (models.PlayerID, bool) {
	if a.state != AuctionAwaitingBid {
		return "", false
	}
	return a.Bidders[len(a.bids)], true
}

// Bids returns a copy of the bids collected so far.
func (a *AuctionSession) Bids() []Bid {
	return append([]Bid(nil), a.bids...)
}

// SubmitBid records player's bid. Only the current bidder may bid.
func (a *AuctionSession) SubmitBid(player models.PlayerID, amount int) error {
	cur, ok := a.CurrentBidder()
	if !ok {
		return fmt.Errorf("%w (state %s)", ErrAuctionClosed, a.state)
	}
	if player != cur {
		return fmt.Errorf("%w: expected %s, got %s", ErrWrongBidder, cur, player)
	}
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeBid, amount)
	}
	a.bids = append(a.bids, Bid{Player: player, CardID: a.CardID, Amount: amount})
	if len(a.bids) == len(a.Bidders) {
		a.state = AuctionAllCollected
	}
	return nil
}

// StepBack discards the previous bidder's bid so they can bid again.
func (a *AuctionSession) StepBack() error {
	if a.state != AuctionAwaitingBid {
		return fmt.Errorf("%w (state %s)", ErrAuctionClosed, a.state)
	}
	if len(a.bids) == 0 {
		return ErrCannotStepBack
	}
	a.bids = a.bids[:len(a.bids)-1]
	return nil
}

// Cancel aborts the auction. Rolling back the round is the caller's job.
func (a *AuctionSession) Cancel() error {
	if a.state != AuctionAwaitingBid {
		return fmt.Errorf("%w (state %s)", ErrAuctionClosed, a.state)
	}
	a.state = AuctionCancelled
	return nil
}

// Outcome computes the result once every bid is in. It is a pure function
// of the collected bids.
func (a *AuctionSession) Outcome() (BiddingOutcome, error) {
	if a.state != AuctionAllCollected {
		return BiddingOutcome{}, ErrBidsIncomplete
	}
	out := BiddingOutcome{CardID: a.CardID, Bids: a.Bids()}
	for _, b := range a.bids {
		if b.Amount <= 0 {
			continue
		}
		switch {
		case b.Amount > out.MaxBid:
			out.MaxBid = b.Amount
			out.PotentialWinners = []models.PlayerID{b.Player}
		case b.Amount == out.MaxBid:
			out.PotentialWinners = append(out.PotentialWinners, b.Player)
		}
	}
	out.AllPassed = len(out.PotentialWinners) == 0
	return out, nil
}
