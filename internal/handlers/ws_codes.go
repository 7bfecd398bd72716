// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the table handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Token was invalid, expired or issued for another table.
	TableClosedError      websocket.StatusCode = 3004 // The table was evicted after inactivity.
)
