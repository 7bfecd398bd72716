package models

// PlayerID is a seat label drawn from the fixed, ordered SeatOrder.
type PlayerID string

// SeatOrder is the fixed seat sequence. Consolation draws and every other
// per-player loop walk players in this order.
var SeatOrder = []PlayerID{"A", "B", "C", "D", "E", "F"}

// SeatIndex returns the position of id in SeatOrder, or -1 when unknown.
func SeatIndex(id PlayerID) int {
	for i, s := range SeatOrder {
		if s == id {
			return i
		}
	}
	return -1
}

type Player struct {
	ID        PlayerID   `json:"id"`
	Time      int        `json:"time"`
	Character *Character `json:"character"`
}

// Skill returns the player's derived skill, or nil.
func (p *Player) Skill() *Skill {
	if p == nil || p.Character == nil {
		return nil
	}
	return p.Character.Skill
}

// HasSkill reports whether the player's character holds a skill of the given kind.
func (p *Player) HasSkill(kind SkillKind) bool {
	return p != nil && p.Character.HasSkill(kind)
}
