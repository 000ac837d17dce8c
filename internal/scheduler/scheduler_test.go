package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/knowledge"
	"github.com/sentineltrading/execution-core/internal/strategy"
)

type recordingSink struct {
	mu      sync.Mutex
	signals []*domain.Signal
}

func (r *recordingSink) Submit(_ context.Context, _ *domain.Bot, _ *domain.BotState, signal *domain.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func newTestScheduler(t *testing.T) (*Scheduler, *recordingSink, *indicators.Cache) {
	t.Helper()
	cache := indicators.New(nil, zerolog.Nop())
	kb := knowledge.New()
	eval := strategy.New(cache, kb, zerolog.Nop())
	eval.RegisterStrategy(&domain.Strategy{
		StrategyID: "strat-1",
		EntryRules: []domain.Rule{{
			RuleID: "rule-always",
			Side:   domain.SideBuy,
			Tree:   domain.Condition{Kind: domain.ConditionConsecutiveWins, Threshold: &domain.ThresholdParams{Value: 0}},
		}},
	})

	sink := &recordingSink{}
	bus := eventbus.New(zerolog.Nop())
	sched := New(eval, sink, bus, domain.ModeAggressive, 2, decimal.NewFromInt(500), zerolog.Nop())
	return sched, sink, cache
}

func TestBuildTasksInterleavesRoundRobin(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1", Symbols: []string{"AAPL", "MSFT"}, Timeframes: []string{"1m"}})
	sched.RegisterBot(&domain.Bot{BotID: "b2", StrategyID: "strat-1", Symbols: []string{"GOOG"}, Timeframes: []string{"1m"}})

	tasks := sched.buildTasks()
	require.Len(t, tasks, 3)
	// first column interleaves b1 and b2 before b1's second symbol appears
	firstTwoBots := map[string]bool{tasks[0].bot.BotID: true, tasks[1].bot.BotID: true}
	assert.True(t, firstTwoBots["b1"])
	assert.True(t, firstTwoBots["b2"])
	assert.Equal(t, "b1", tasks[2].bot.BotID)
}

func TestBuildTasksSkipsPausedBots(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1", Symbols: []string{"AAPL"}, Timeframes: []string{"1m"}})
	sched.Pause("b1")

	assert.Empty(t, sched.buildTasks())
}

func TestRunCycleDispatchesSignalsToSink(t *testing.T) {
	sched, sink, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1", Symbols: []string{"AAPL"}, Timeframes: []string{"1m"}})

	sched.runCycle(context.Background(), time.Now().UTC())
	assert.Equal(t, 1, sink.count())
}

func TestEnableDisablePauseResume(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1"})

	sched.Disable("b1")
	st, ok := sched.State("b1")
	require.True(t, ok)
	assert.Equal(t, domain.BotStatusPaused, st.Status)

	sched.Enable("b1")
	st, _ = sched.State("b1")
	assert.Equal(t, domain.BotStatusActive, st.Status)
}

func TestCheckDailyTripPausesAllActiveBots(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1"})
	sched.RegisterBot(&domain.Bot{BotID: "b2", StrategyID: "strat-1"})

	sched.mu.Lock()
	sched.states["b1"].DailyPnL = decimal.NewFromInt(-501)
	sched.mu.Unlock()

	sched.checkDailyTrip(time.Now().UTC())

	st1, _ := sched.State("b1")
	st2, _ := sched.State("b2")
	assert.Equal(t, domain.BotStatusPaused, st1.Status)
	assert.True(t, st1.TripPaused)
	assert.Equal(t, domain.BotStatusPaused, st2.Status)
}

func TestCheckDailyTripRearmsOnNewDay(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1"})

	sched.mu.Lock()
	sched.states["b1"].DailyPnL = decimal.NewFromInt(-501)
	sched.mu.Unlock()

	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched.checkDailyTrip(day1)
	st, _ := sched.State("b1")
	require.Equal(t, domain.BotStatusPaused, st.Status)

	day2 := time.Date(2026, 1, 2, 0, 5, 0, 0, time.UTC)
	sched.checkDailyTrip(day2)
	st, _ = sched.State("b1")
	assert.Equal(t, domain.BotStatusActive, st.Status)
	assert.False(t, st.TripPaused)
}

func TestCheckDailyTripDoesNotResumeUserPausedBot(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1"})
	sched.Pause("b1")

	sched.checkDailyTrip(time.Now().UTC())
	st, _ := sched.State("b1")
	assert.Equal(t, domain.BotStatusPaused, st.Status)
	assert.False(t, st.TripPaused)
}

func TestRecordFillUpdatesTradesTodayAndDailyPnL(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1"})

	sched.recordFill(eventbus.OrderFilledEvent{
		Order:       domain.Order{BotID: "b1"},
		RealisedPnL: decimal.NewFromInt(-25),
	})

	st, ok := sched.State("b1")
	require.True(t, ok)
	assert.Equal(t, 1, st.TradesToday)
	assert.True(t, st.DailyPnL.Equal(decimal.NewFromInt(-25)))
}

func TestRecordFillIgnoresUnknownBot(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.recordFill(eventbus.OrderFilledEvent{Order: domain.Order{BotID: "ghost"}})
	_, ok := sched.State("ghost")
	assert.False(t, ok)
}

func TestUpdateConfigMutatesBot(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sched.RegisterBot(&domain.Bot{BotID: "b1", StrategyID: "strat-1", Symbols: []string{"AAPL"}})

	sched.UpdateConfig("b1", func(b *domain.Bot) { b.Symbols = []string{"AAPL", "MSFT"} })

	sched.mu.Lock()
	symbols := sched.bots["b1"].Symbols
	sched.mu.Unlock()
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}
