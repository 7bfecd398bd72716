// internal/game/skills.go
package game

import "github.com/jason-s-yu/timebid/internal/models"

// EffectContext names the moment at which a skill may take effect.
type EffectContext string

const (
	ContextDirectBuy       EffectContext = "direct_buy"
	ContextBidWin          EffectContext = "bid_win"
	ContextConsolationDraw EffectContext = "consolation_draw"
	ContextRest            EffectContext = "rest"
	ContextRoundStart      EffectContext = "round_start"
	ContextTieBreak        EffectContext = "tie_break"
	ContextMarketSize      EffectContext = "market_size"
	ContextTwoChoice       EffectContext = "two_choice"
)

// skillDispatch lists, per context, the skill kinds that take effect there.
// Every skill lookup in the engine goes through this table.
var skillDispatch = map[EffectContext][]models.SkillKind{
	ContextDirectBuy:       {models.SkillCostReduction},
	ContextBidWin:          {models.SkillCostReduction},
	ContextConsolationDraw: {models.SkillCostReduction, models.SkillConsolationDiscount},
	ContextRest:            {models.SkillRestBoost},
	ContextRoundStart:      {models.SkillRoundStartBonus},
	ContextTieBreak:        {models.SkillTieBreakPriority},
	ContextMarketSize:      {models.SkillExtraMarketSlot},
	ContextTwoChoice:       {models.SkillDoubleChoice},
}

// Fallback values for skills configured without a number.
const (
	defaultDiscount         = 1
	defaultRoundStartBonus  = 1
	defaultExtraMarketSlots = 1
)

// skillFor returns the player's skill when it takes effect in ctx, otherwise nil.
func skillFor(p *models.Player, ctx EffectContext) *models.Skill {
	s := p.Skill()
	if s == nil {
		return nil
	}
	for _, kind := range skillDispatch[ctx] {
		if s.Kind == kind {
			return s
		}
	}
	return nil
}

func isPurchaseContext(ctx EffectContext) bool {
	return ctx == ContextDirectBuy || ctx == ContextBidWin || ctx == ContextConsolationDraw
}

// AdjustedCost is the price p actually pays for something listed at basePrice.
// At most one discount applies, and the result never drops below zero.
func AdjustedCost(p *models.Player, basePrice int, ctx EffectContext) int {
	if basePrice < 0 {
		basePrice = 0
	}
	if !isPurchaseContext(ctx) {
		return basePrice
	}
	s := skillFor(p, ctx)
	if s == nil {
		return basePrice
	}
	discount := s.ValueOr(defaultDiscount)
	if discount < 0 {
		discount = 0
	}
	cost := basePrice - discount
	if cost < 0 {
		cost = 0
	}
	return cost
}

// RestRecovery returns how much time a rest restores for p.
func RestRecovery(p *models.Player, rules HouseRules) int {
	if s := skillFor(p, ContextRest); s != nil {
		if v := s.ValueOr(rules.RestRecovery); v >= 0 {
			return v
		}
	}
	return rules.RestRecovery
}

// RoundStartBonus sums the round-start grants of every skill holder at the table.
// Each player receives the whole amount.
func RoundStartBonus(players []*models.Player) int {
	total := 0
	for _, p := range players {
		if s := skillFor(p, ContextRoundStart); s != nil {
			if v := s.ValueOr(defaultRoundStartBonus); v > 0 {
				total += v
			}
		}
	}
	return total
}

// MarketSize is the number of cards offered in a round: one per player plus
// the house bonus, plus extra slots from skills, capped by what is left.
func MarketSize(players []*models.Player, rules HouseRules, poolSize int) int {
	size := len(players) + rules.MarketBonus
	for _, p := range players {
		if s := skillFor(p, ContextMarketSize); s != nil {
			if v := s.ValueOr(defaultExtraMarketSlots); v > 0 {
				size += v
			}
		}
	}
	if size > poolSize {
		size = poolSize
	}
	return size
}

// tieBreakHolders filters ids down to those whose skill grants tie-break priority.
func tieBreakHolders(ids []models.PlayerID, lookup func(models.PlayerID) *models.Player) []models.PlayerID {
	var holders []models.PlayerID
	for _, id := range ids {
		if skillFor(lookup(id), ContextTieBreak) != nil {
			holders = append(holders, id)
		}
	}
	return holders
}

// canDoubleChoice reports whether p may claim two cards in one round.
func canDoubleChoice(p *models.Player) bool {
	return skillFor(p, ContextTwoChoice) != nil
}
