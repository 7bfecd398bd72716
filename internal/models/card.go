// internal/models/card.go
package models

import (
	"fmt"
	"strconv"
)

// CardID identifies a card in the registry. Registry files key cards by the decimal form.
type CardID int

// String returns the decimal form used as the registry key.
func (id CardID) String() string {
	return strconv.Itoa(int(id))
}

// ParseCardID converts a registry key ("12") into a CardID.
func ParseCardID(s string) (CardID, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid card id %q: %w", s, err)
	}
	return CardID(v), nil
}

// Card is immutable reference data loaded once at startup.
type Card struct {
	ID     CardID `json:"id"`
	Name   string `json:"name"`
	Price  int    `json:"price"`            // time cost, never negative
	Effect string `json:"effect,omitempty"` // free-form effect text shown on the card
}
