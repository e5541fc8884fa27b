package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/signalrelay/internal/config"
	"github.com/vikasavnish/signalrelay/internal/services"
	"github.com/vikasavnish/signalrelay/internal/supervisor"
	"github.com/vikasavnish/signalrelay/internal/websocket"
)

type staticBots []supervisor.Status

func (s staticBots) Register(context.Context, supervisor.BotConfig) (supervisor.Status, error) {
	return supervisor.Status{}, supervisor.ErrValidation
}
func (s staticBots) Toggle(context.Context, string) (bool, error) { return false, nil }
func (s staticBots) List(string) []supervisor.Status              { return s }
func (s staticBots) Get(string) (supervisor.Status, error) {
	return supervisor.Status{}, supervisor.ErrNotFound
}

func newTestRouter() http.Handler {
	bots := staticBots{{Name: "a", Status: "running"}, {Name: "b", Status: "paused"}}
	sup := supervisor.New(supervisor.Options{})
	return SetupRouter(bots, services.NewLogHistory(nil, 0), websocket.NewStreamer(sup), &config.Config{
		JWT: config.JWTConfig{SecretKey: []byte("k")},
	})
}

func TestHealthIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string         `json:"status"`
		Bots       map[string]int `json:"bots"`
		LogClients int            `json:"logClients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Bots["running"])
	assert.Equal(t, 1, body.Bots["paused"])
	assert.Equal(t, 0, body.LogClients)
}

func TestMetricsIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBotRoutesRequireToken(t *testing.T) {
	for _, path := range []string{"/api/bots", "/api/routes", "/ws/logs/a"} {
		rec := httptest.NewRecorder()
		newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}
