// internal/game/utils.go
package game

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// EncodeEvent marshals a GameEvent into JSON bytes.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func EncodeEvent(ev GameEvent) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithField("event", ev.Type).WithError(err).Warn("failed to marshal game event")
		return []byte("{}")
	}
	return data
}
