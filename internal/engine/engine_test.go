package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/config"
	"github.com/sentineltrading/execution-core/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func TestNewWiresEveryComponent(t *testing.T) {
	e := newTestEngine(t)

	assert.NotNil(t, e.Bots())
	assert.NotNil(t, e.Strategies())
	assert.NotNil(t, e.Scheduler())
	assert.NotNil(t, e.Evaluator())
	assert.NotNil(t, e.Yield())
	assert.NotNil(t, e.Book())
	assert.NotNil(t, e.Brake())
}

func TestStartReconcilesAndRehydratesRegisteredBots(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.bots.Register(&domain.Bot{
		BotID:      "bot-1",
		StrategyID: "strat-1",
		Symbols:    []string{"AAPL"},
		Timeframes: []string{"1h"},
	}))
	require.NoError(t, e.strategies.Upsert(&domain.Strategy{StrategyID: "strat-1", Name: "trend"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))

	_, ok := e.Scheduler().State("bot-1")
	assert.True(t, ok)

	_, err := e.Evaluator().Evaluate(&domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}, &domain.BotState{}, "AAPL", "1h", time.Now())
	// A nil signal with no error is the expected "no rule fired" outcome;
	// any error here would mean the strategy was never actually registered.
	assert.NoError(t, err)
}

func TestHealthCheckPassesOnFreshDatabases(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.HealthCheck())
}
