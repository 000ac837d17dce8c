package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/knowledge"
)

func warmUpSMA(t *testing.T, cache *indicators.Cache, symbol, timeframe string, start time.Time, closes []float64) {
	t.Helper()
	cache.Subscribe(symbol, timeframe, indicators.SMA, 3)
	for i, c := range closes {
		require.NoError(t, cache.OnCandle(domain.Candle{
			Symbol: symbol, Timeframe: timeframe, OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}))
	}
}

func alwaysTrueLeaf() domain.Condition {
	return domain.Condition{Kind: domain.ConditionConsecutiveWins, Threshold: &domain.ThresholdParams{Value: 0}}
}

func priceAboveSMALeaf() domain.Condition {
	return domain.Condition{Kind: domain.ConditionPriceAbove, PriceIndicator: &domain.IndicatorRef{Indicator: string(indicators.SMA), Period: 3}}
}

func newTestEvaluator() (*Evaluator, *indicators.Cache, *knowledge.Base) {
	cache := indicators.New(nil, zerolog.Nop())
	kb := knowledge.New()
	return New(cache, kb, zerolog.Nop()), cache, kb
}

func TestEvaluateEmitsSignalWhenTreeMatches(t *testing.T) {
	e, cache, _ := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{10, 20, 30})

	strat := &domain.Strategy{
		StrategyID: "strat-1",
		EntryRules: []domain.Rule{{
			RuleID: "rule-1",
			Side:   domain.SideBuy,
			Tree: domain.Condition{
				Kind:  domain.ConditionGroup,
				Group: &domain.GroupParams{Logic: domain.LogicAnd, Children: []domain.Condition{priceAboveSMALeaf(), alwaysTrueLeaf()}},
			},
		}},
	}
	e.RegisterStrategy(strat)

	bot := &domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}
	state := &domain.BotState{}

	sig, err := e.Evaluate(bot, state, "AAPL", "1m", start.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.Equal(t, domain.SignalStatusPending, sig.Status)
}

func TestEvaluateReturnsNilWhenTreeDoesNotMatch(t *testing.T) {
	e, cache, _ := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{30, 20, 10}) // close(10) below SMA

	strat := &domain.Strategy{
		StrategyID: "strat-1",
		EntryRules: []domain.Rule{{
			RuleID: "rule-1",
			Side:   domain.SideBuy,
			Tree:   priceAboveSMALeaf(),
		}},
	}
	e.RegisterStrategy(strat)

	sig, err := e.Evaluate(&domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}, &domain.BotState{}, "AAPL", "1m", start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluateDropsSignalBelowConfidenceFloor(t *testing.T) {
	e, cache, kb := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{10, 20, 30})

	rule := domain.Rule{
		RuleID: "rule-1",
		Side:   domain.SideBuy,
		Tree: domain.Condition{
			Kind: domain.ConditionGroup,
			Group: &domain.GroupParams{Logic: domain.LogicOr, Children: []domain.Condition{
				priceAboveSMALeaf(),
				{Kind: domain.ConditionConsecutiveWins, Threshold: &domain.ThresholdParams{Value: 99}},
			}},
		},
	}
	strat := &domain.Strategy{StrategyID: "strat-1", EntryRules: []domain.Rule{rule}}
	e.RegisterStrategy(strat)

	bot := &domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}
	kb.RecordOutcome(patternKeyFor(bot, rule), -100)

	sig, err := e.Evaluate(bot, &domain.BotState{}, "AAPL", "1m", start.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	e, cache, _ := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{10, 20, 30})

	strat := &domain.Strategy{
		StrategyID: "strat-1",
		EntryRules: []domain.Rule{{
			RuleID:          "rule-1",
			Side:            domain.SideBuy,
			Tree:            priceAboveSMALeaf(),
			CooldownMinutes: 60,
		}},
	}
	e.RegisterStrategy(strat)

	bot := &domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}
	state := &domain.BotState{}
	ts := start.Add(3 * time.Minute)

	first, err := e.Evaluate(bot, state, "AAPL", "1m", ts)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := e.Evaluate(bot, state, "AAPL", "1m", ts.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestEvaluateRespectsDailyCap(t *testing.T) {
	e, cache, _ := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{10, 20, 30})

	strat := &domain.Strategy{
		StrategyID: "strat-1",
		EntryRules: []domain.Rule{{
			RuleID:              "rule-1",
			Side:                domain.SideBuy,
			Tree:                priceAboveSMALeaf(),
			MaxExecutionsPerDay: 1,
		}},
	}
	e.RegisterStrategy(strat)

	bot := &domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}
	state := &domain.BotState{}
	ts := start.Add(3 * time.Minute)

	first, err := e.Evaluate(bot, state, "AAPL", "1m", ts)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := e.Evaluate(bot, state, "AAPL", "1m", ts.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestEvaluateUnknownStrategyReturnsError(t *testing.T) {
	e, _, _ := newTestEvaluator()
	_, err := e.Evaluate(&domain.Bot{BotID: "bot-1", StrategyID: "missing"}, &domain.BotState{}, "AAPL", "1m", time.Now())
	require.Error(t, err)
	var domErr *domain.Error
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.ErrUnknownStrategy, domErr.Code)
}

func TestEvaluateExitRunsExitRulesOnly(t *testing.T) {
	e, cache, _ := newTestEvaluator()
	start := time.Now().UTC().Truncate(time.Minute)
	warmUpSMA(t, cache, "AAPL", "1m", start, []float64{10, 20, 30})

	strat := &domain.Strategy{
		StrategyID: "strat-1",
		ExitRules: []domain.Rule{{
			RuleID: "exit-1",
			Side:   domain.SideSell,
			Tree:   priceAboveSMALeaf(),
		}},
	}
	e.RegisterStrategy(strat)

	bot := &domain.Bot{BotID: "bot-1", StrategyID: "strat-1"}
	sig, err := e.EvaluateExit(bot, &domain.BotState{}, "AAPL", "1m", start.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SideSell, sig.Side)
}
