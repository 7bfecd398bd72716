package handlers

import (
	"net/http"
	"strings"
)

// tableToken returns the controller token of r from the "token" query
// parameter or the table_token cookie, or "" when neither is set.
func tableToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	if c, err := r.Cookie(TableTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
