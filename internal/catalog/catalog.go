// Package catalog loads the immutable card and character registries that a
// game is built from.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jason-s-yu/timebid/internal/models"
)

const (
	CardsFile      = "cards.json"
	CharactersFile = "characters.json"
)

var (
	ErrEmptyCards      = errors.New("card registry is empty")
	ErrEmptyCharacters = errors.New("character registry is empty")
)

// Registry holds the reference data for a session. It is never mutated after Parse.
type Registry struct {
	Cards      map[models.CardID]*models.Card
	Characters map[string]*models.Character
}

type cardEntry struct {
	Name   string `json:"name"`
	Price  int    `json:"price"`
	Effect string `json:"effect,omitempty"`
}

type characterEntry struct {
	Name      string        `json:"name"`
	StartTime int           `json:"startTime"`
	Skill     *models.Skill `json:"skill,omitempty"`
}

// Load reads cards.json and characters.json from dir.
func Load(dir string) (*Registry, error) {
	cardsData, err := os.ReadFile(filepath.Join(dir, CardsFile))
	if err != nil {
		return nil, fmt.Errorf("read card registry: %w", err)
	}
	charsData, err := os.ReadFile(filepath.Join(dir, CharactersFile))
	if err != nil {
		return nil, fmt.Errorf("read character registry: %w", err)
	}
	return Parse(cardsData, charsData)
}

// Parse decodes and validates both registries.
func Parse(cardsData, charactersData []byte) (*Registry, error) {
	var rawCards map[string]cardEntry
	if err := json.Unmarshal(cardsData, &rawCards); err != nil {
		return nil, fmt.Errorf("decode card registry: %w", err)
	}
	if len(rawCards) == 0 {
		return nil, ErrEmptyCards
	}
	var rawChars map[string]characterEntry
	if err := json.Unmarshal(charactersData, &rawChars); err != nil {
		return nil, fmt.Errorf("decode character registry: %w", err)
	}
	if len(rawChars) == 0 {
		return nil, ErrEmptyCharacters
	}

	reg := &Registry{
		Cards:      make(map[models.CardID]*models.Card, len(rawCards)),
		Characters: make(map[string]*models.Character, len(rawChars)),
	}
	for key, c := range rawCards {
		id, err := models.ParseCardID(key)
		if err != nil {
			return nil, err
		}
		if c.Price < 0 {
			return nil, fmt.Errorf("card %d (%s) has negative price %d", id, c.Name, c.Price)
		}
		reg.Cards[id] = &models.Card{ID: id, Name: c.Name, Price: c.Price, Effect: c.Effect}
	}
	for key, ch := range rawChars {
		if ch.StartTime < 0 {
			return nil, fmt.Errorf("character %s has negative start time %d", key, ch.StartTime)
		}
		if ch.Skill != nil && !ch.Skill.Kind.Valid() {
			return nil, fmt.Errorf("character %s has unknown skill type %q", key, ch.Skill.Kind)
		}
		reg.Characters[key] = &models.Character{ID: key, Name: ch.Name, StartTime: ch.StartTime, Skill: ch.Skill}
	}
	return reg, nil
}

// Card looks a card up by id.
func (r *Registry) Card(id models.CardID) (*models.Card, bool) {
	c, ok := r.Cards[id]
	return c, ok
}

// Character looks a character up by id.
func (r *Registry) Character(id string) (*models.Character, bool) {
	c, ok := r.Characters[id]
	return c, ok
}

// CardIDs returns every card id in ascending order. This is the initial
// available pool of a new game.
func (r *Registry) CardIDs() []models.CardID {
	ids := make([]models.CardID, 0, len(r.Cards))
	for id := range r.Cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CharacterIDs returns every character id in sorted order.
func (r *Registry) CharacterIDs() []string {
	ids := make([]string, 0, len(r.Characters))
	for id := range r.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
