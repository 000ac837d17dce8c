package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/config"
	"github.com/sentineltrading/execution-core/internal/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	eng, err := engine.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(eng.Stop)

	return New(Config{Port: cfg.Port, Engine: eng, Log: zerolog.Nop(), DevMode: true})
}

func TestHealthzReportsHealthyOnFreshEngine(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAssetsReturnsEmptySetWithNoAssets(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body["assets"])
}

func TestBuyRejectedWhenBrakeIsActive(t *testing.T) {
	s := newTestServer(t)
	s.engine.Brake().Trip()

	payload, _ := json.Marshal(map[string]string{"userId": "user-1", "amount": "100"})
	req := httptest.NewRequest(http.MethodPost, "/assets/AAPL/buy", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "brake_active", body["code"])
}

func TestReleaseBrakeRequiresExactConfirmationPhrase(t *testing.T) {
	s := newTestServer(t)
	s.engine.Brake().Trip()

	payload, _ := json.Marshal(map[string]string{"confirmation": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/emergency/release", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, s.engine.Brake().Active())
}

func TestReleaseBrakeSucceedsWithCorrectConfirmationPhrase(t *testing.T) {
	s := newTestServer(t)
	s.engine.Brake().Trip()

	payload, _ := json.Marshal(map[string]string{"confirmation": releaseConfirmationPhrase})
	req := httptest.NewRequest(http.MethodPost, "/emergency/release", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.engine.Brake().Active())
}
