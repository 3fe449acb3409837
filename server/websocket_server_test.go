package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/voicegate/config"
	"github.com/relaymesh/voicegate/session"
)

func newTestServer(t *testing.T, origins []string) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:           8123,
		Host:           "127.0.0.1",
		RedisURL:       "127.0.0.1:1", // unreachable; manager runs without Redis
		MaxSessions:    10,
		SessionTimeout: time.Minute,
		AllowedOrigins: origins,
	}
	mgr, err := session.NewManager(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	return NewServerWebsocket(cfg, mgr)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, []string{"*"})

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())
}

func TestCheckOrigin(t *testing.T) {
	t.Run("wildcard allows anything", func(t *testing.T) {
		srv := newTestServer(t, []string{"*"})
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", "https://anywhere.example")
		assert.True(t, srv.upgrader.CheckOrigin(r))
	})

	t.Run("allow-list matches exactly", func(t *testing.T) {
		srv := newTestServer(t, []string{"https://ok.example"})

		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", "https://ok.example")
		assert.True(t, srv.upgrader.CheckOrigin(r))

		r.Header.Set("Origin", "https://evil.example")
		assert.False(t, srv.upgrader.CheckOrigin(r))
	})
}
