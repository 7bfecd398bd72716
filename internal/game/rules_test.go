package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRulesKeepsUnsetValues(t *testing.T) {
	rules, err := ParseRules(map[string]interface{}{
		"maxTime":           float64(15),
		"allowManualAdjust": false,
	}, DefaultHouseRules())
	require.NoError(t, err)

	assert.Equal(t, 15, rules.MaxTime)
	assert.False(t, rules.AllowManualAdjust)
	assert.Equal(t, 6, rules.RestRecovery)
	assert.Equal(t, 1, rules.MarketBonus)
}

func TestParseRulesValidation(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]interface{}
	}{
		{"zero max time", map[string]interface{}{"maxTime": float64(0)}},
		{"negative recovery", map[string]interface{}{"restRecovery": -1}},
		{"fractional bonus", map[string]interface{}{"marketBonus": 1.5}},
		{"string int", map[string]interface{}{"maxTime": "12"}},
		{"non bool", map[string]interface{}{"allowManualAdjust": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := DefaultHouseRules()
			_, err := ParseRules(tt.input, current)
			assert.Error(t, err)
			assert.Equal(t, DefaultHouseRules(), current)
		})
	}
}
