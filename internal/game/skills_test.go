package game

import (
	"testing"

	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func playerWith(kind models.SkillKind, value *int) *models.Player {
	var skill *models.Skill
	if kind != "" {
		skill = &models.Skill{Kind: kind, Value: value}
	}
	return &models.Player{ID: "A", Time: 10, Character: &models.Character{ID: "c", Skill: skill}}
}

func TestAdjustedCost(t *testing.T) {
	tests := []struct {
		name   string
		player *models.Player
		price  int
		ctx    EffectContext
		want   int
	}{
		{"no skill", playerWith("", nil), 4, ContextDirectBuy, 4},
		{"general discount on direct buy", playerWith(models.SkillCostReduction, intPtr(1)), 4, ContextDirectBuy, 3},
		{"general discount on auction win", playerWith(models.SkillCostReduction, intPtr(2)), 5, ContextBidWin, 3},
		{"general discount on consolation", playerWith(models.SkillCostReduction, intPtr(1)), 3, ContextConsolationDraw, 2},
		{"consolation discount on consolation", playerWith(models.SkillConsolationDiscount, intPtr(2)), 3, ContextConsolationDraw, 1},
		{"consolation discount ignored elsewhere", playerWith(models.SkillConsolationDiscount, intPtr(2)), 3, ContextDirectBuy, 3},
		{"default discount value", playerWith(models.SkillCostReduction, nil), 3, ContextBidWin, 2},
		{"clamped at zero", playerWith(models.SkillCostReduction, intPtr(5)), 2, ContextDirectBuy, 0},
		{"negative discount ignored", playerWith(models.SkillCostReduction, intPtr(-3)), 2, ContextDirectBuy, 2},
		{"unrelated skill", playerWith(models.SkillRestBoost, intPtr(9)), 4, ContextDirectBuy, 4},
		{"not a purchase", playerWith(models.SkillCostReduction, intPtr(1)), 4, ContextRest, 4},
		{"no character", &models.Player{ID: "A"}, 4, ContextDirectBuy, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdjustedCost(tt.player, tt.price, tt.ctx))
		})
	}
}

func TestAdjustedCostNeverExceedsPrice(t *testing.T) {
	players := []*models.Player{
		playerWith("", nil),
		playerWith(models.SkillCostReduction, intPtr(1)),
		playerWith(models.SkillCostReduction, intPtr(4)),
		playerWith(models.SkillConsolationDiscount, intPtr(2)),
		playerWith(models.SkillTieBreakPriority, nil),
	}
	for _, p := range players {
		for price := 0; price <= 12; price++ {
			for _, ctx := range []EffectContext{ContextDirectBuy, ContextBidWin, ContextConsolationDraw} {
				cost := AdjustedCost(p, price, ctx)
				assert.LessOrEqual(t, cost, price)
				assert.GreaterOrEqual(t, cost, 0)
				if skillFor(p, ctx) == nil {
					assert.Equal(t, price, cost)
				}
			}
		}
	}
}

func TestRestRecovery(t *testing.T) {
	rules := DefaultHouseRules()
	assert.Equal(t, 6, RestRecovery(playerWith("", nil), rules))
	assert.Equal(t, 8, RestRecovery(playerWith(models.SkillRestBoost, intPtr(8)), rules))
	assert.Equal(t, 6, RestRecovery(playerWith(models.SkillRestBoost, nil), rules))
	assert.Equal(t, 6, RestRecovery(playerWith(models.SkillCostReduction, intPtr(8)), rules))
}

func TestRoundStartBonus(t *testing.T) {
	assert.Equal(t, 0, RoundStartBonus([]*models.Player{playerWith("", nil)}))
	assert.Equal(t, 3, RoundStartBonus([]*models.Player{
		playerWith(models.SkillRoundStartBonus, intPtr(2)),
		playerWith(models.SkillRoundStartBonus, nil),
		playerWith(models.SkillCostReduction, intPtr(4)),
	}))
}

func TestMarketSize(t *testing.T) {
	rules := DefaultHouseRules()
	plain := []*models.Player{playerWith("", nil), playerWith("", nil)}
	assert.Equal(t, 3, MarketSize(plain, rules, 20))
	assert.Equal(t, 2, MarketSize(plain, rules, 2))

	withScouts := append(plain, playerWith(models.SkillExtraMarketSlot, nil), playerWith(models.SkillExtraMarketSlot, intPtr(2)))
	assert.Equal(t, 8, MarketSize(withScouts, rules, 20))

	rules.MarketBonus = 0
	assert.Equal(t, 2, MarketSize(plain, rules, 20))
}

func TestSkillDispatchCoversEveryKind(t *testing.T) {
	covered := map[models.SkillKind]bool{}
	for _, kinds := range skillDispatch {
		for _, k := range kinds {
			covered[k] = true
		}
	}
	for _, k := range []models.SkillKind{
		models.SkillCostReduction, models.SkillConsolationDiscount, models.SkillRestBoost,
		models.SkillExtraMarketSlot, models.SkillTieBreakPriority, models.SkillRoundStartBonus,
		models.SkillDoubleChoice,
	} {
		assert.True(t, covered[k], "skill %s has no context", k)
	}
}
