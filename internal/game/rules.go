// internal/game/rules.go
package game

import "fmt"

// HouseRules holds the table-level constants a game is played with.
type HouseRules struct {
	MaxTime           int  `json:"maxTime"`           // upper bound of every player's time budget
	RestRecovery      int  `json:"restRecovery"`      // time restored by a rest action without skills
	MarketBonus       int  `json:"marketBonus"`       // market cards offered beyond one per player
	AllowManualAdjust bool `json:"allowManualAdjust"` // enable the out-of-band +/- time correction tool
}

// DefaultHouseRules returns the rules printed on the box.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		MaxTime:           12,
		RestRecovery:      6,
		MarketBonus:       1,
		AllowManualAdjust: true,
	}
}

// Update will update the house rules with the new rules provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	assignBool := func(field *bool, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var v int
		switch n := val.(type) {
		case float64: // JSON numbers decode as float64
			if n != float64(int(n)) {
				return fmt.Errorf("%s must be a whole number", key)
			}
			v = int(n)
		case int:
			v = n
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if v < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = v
		return nil
	}

	if err := assignInt(&rules.MaxTime, "maxTime", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.RestRecovery, "restRecovery", 0); err != nil {
		return err
	}
	if err := assignInt(&rules.MarketBonus, "marketBonus", 0); err != nil {
		return err
	}
	if err := assignBool(&rules.AllowManualAdjust, "allowManualAdjust"); err != nil {
		return err
	}
	return nil
}

// ParseRules converts a map of rules to a HouseRules struct. It will ensure the types are valid.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}
