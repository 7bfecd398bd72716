// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader echoes the id each request is logged under.
const RequestIDHeader = "X-Request-ID"

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Every request gets an id, taken from X-Request-ID when the client sent one.
// The ResponseWriter is passed through untouched so WebSocket upgrades still work.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"duration":   time.Since(start),
				"remote":     r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a message when a table client connects.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, path string, controller bool) {
	logger.WithFields(logrus.Fields{
		"remote":     remoteAddr,
		"path":       path,
		"controller": controller,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a message when a table client disconnects.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, path string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
