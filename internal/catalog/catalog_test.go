package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jason-s-yu/timebid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCards = `{
	"1": {"name": "Lantern", "price": 2},
	"2": {"name": "Compass", "price": 4, "effect": "peek the next market"},
	"10": {"name": "Map", "price": 0}
}`

const testCharacters = `{
	"merchant": {"name": "Merchant", "startTime": 10, "skill": {"type": "cost_reduction", "value": 1, "description": "-1 on every purchase"}},
	"monk": {"name": "Monk", "startTime": 8}
}`

func TestParseRegistry(t *testing.T) {
	reg, err := Parse([]byte(testCards), []byte(testCharacters))
	require.NoError(t, err)

	assert.Equal(t, []models.CardID{1, 2, 10}, reg.CardIDs())
	c, ok := reg.Card(2)
	require.True(t, ok)
	assert.Equal(t, "Compass", c.Name)
	assert.Equal(t, 4, c.Price)
	assert.Equal(t, "peek the next market", c.Effect)

	m, ok := reg.Character("merchant")
	require.True(t, ok)
	assert.True(t, m.HasSkill(models.SkillCostReduction))
	assert.Equal(t, 1, m.Skill.ValueOr(0))

	monk, ok := reg.Character("monk")
	require.True(t, ok)
	assert.Nil(t, monk.Skill)
	assert.Equal(t, []string{"merchant", "monk"}, reg.CharacterIDs())
}

func TestParseRejectsBadData(t *testing.T) {
	tests := []struct {
		name  string
		cards string
		chars string
	}{
		{"empty cards", `{}`, testCharacters},
		{"empty characters", testCards, `{}`},
		{"negative price", `{"1": {"name": "x", "price": -1}}`, testCharacters},
		{"non numeric id", `{"abc": {"name": "x", "price": 1}}`, testCharacters},
		{"unknown skill", testCards, `{"x": {"name": "x", "startTime": 1, "skill": {"type": "teleport"}}}`},
		{"negative start", testCards, `{"x": {"name": "x", "startTime": -3}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.cards), []byte(tt.chars))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CardsFile), []byte(testCards), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CharactersFile), []byte(testCharacters), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, reg.Cards, 3)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestBundledCatalog(t *testing.T) {
	reg, err := Load(filepath.Join("..", "..", "data"))
	require.NoError(t, err)
	assert.Len(t, reg.Cards, 16)

	kinds := map[models.SkillKind]bool{}
	for _, ch := range reg.Characters {
		if ch.Skill != nil {
			kinds[ch.Skill.Kind] = true
		}
	}
	// every skill kind has a character to play it with
	assert.Len(t, kinds, 7)
}
