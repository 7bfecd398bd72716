// internal/models/character.go
package models

// SkillKind is the closed set of effects a character skill may carry.
type SkillKind string

const (
	// SkillCostReduction lowers the price of every purchase (direct, auction, consolation).
	SkillCostReduction SkillKind = "cost_reduction"
	// SkillConsolationDiscount lowers the price of consolation draws only.
	SkillConsolationDiscount SkillKind = "consolation_discount"
	// SkillRestBoost replaces the default rest recovery amount.
	SkillRestBoost SkillKind = "rest_boost"
	// SkillExtraMarketSlot adds one card to every market.
	SkillExtraMarketSlot SkillKind = "extra_market_slot"
	// SkillTieBreakPriority wins a tied auction, provided no other tied bidder holds it.
	SkillTieBreakPriority SkillKind = "tie_break_priority"
	// SkillRoundStartBonus grants time to every player at the start of each round.
	SkillRoundStartBonus SkillKind = "round_start_bonus"
	// SkillDoubleChoice lets the holder claim up to two market cards in one round.
	SkillDoubleChoice SkillKind = "double_choice"
)

// Valid reports whether k is one of the known skill kinds.
func (k SkillKind) Valid() bool {
	switch k {
	case SkillCostReduction, SkillConsolationDiscount, SkillRestBoost, SkillExtraMarketSlot,
		SkillTieBreakPriority, SkillRoundStartBonus, SkillDoubleChoice:
		return true
	}
	return false
}

// Skill is the single optional ability attached to a character.
type Skill struct {
	Kind        SkillKind `json:"type"`
	Value       *int      `json:"value,omitempty"` // nil when the skill carries no number
	Description string    `json:"description"`
}

// ValueOr returns the skill's numeric value, or def when none was configured.
func (s *Skill) ValueOr(def int) int {
	if s == nil || s.Value == nil {
		return def
	}
	return *s.Value
}

// Character is a selectable persona. No two players in one game may share one.
type Character struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartTime int    `json:"startTime"`
	Skill     *Skill `json:"skill,omitempty"`
}

// HasSkill reports whether the character holds a skill of the given kind.
func (c *Character) HasSkill(kind SkillKind) bool {
	return c != nil && c.Skill != nil && c.Skill.Kind == kind
}
