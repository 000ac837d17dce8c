package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPortfolioSumsPendingYieldAcrossPositions(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.engine.Store().CreditPendingYield("user-1", "AAPL", decimal.NewFromInt(3)))
	require.NoError(t, s.engine.Store().CreditPendingYield("user-1", "MSFT", decimal.NewFromInt(2)))

	req := httptest.NewRequest(http.MethodGet, "/portfolio/user-1", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	summary := body["yield_summary"].(map[string]interface{})
	assert.Equal(t, "5", summary["pending"])
}

func TestGetPortfolioEmptyForUnknownUser(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/portfolio/nobody", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body["positions"])
}
