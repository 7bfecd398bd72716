package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/catalog", entry.Data["path"])
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), entry.Data["request_id"])
}

func TestLogMiddlewareKeepsClientRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/table/create", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", hook.LastEntry().Data["request_id"])
}

func TestLogWebSocketDisconnect(t *testing.T) {
	logger, hook := test.NewNullLogger()
	LogWebSocketConnect(logger, "1.2.3.4:5", "/table/ws/x", true)
	assert.Equal(t, true, hook.LastEntry().Data["controller"])

	LogWebSocketDisconnect(logger, "1.2.3.4:5", "/table/ws/x", assert.AnError)
	assert.Equal(t, assert.AnError, hook.LastEntry().Data["error"])
}
