// Package scheduler owns the population of configured bots and drives
// their evaluator ticks with bounded, fair concurrency: a trigger-driven,
// single-owner-per-mutable-state design generalized from "one item at a
// time" to "W concurrent workers, one task per (bot, symbol, timeframe)
// per cycle".
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/strategy"
)

// SignalSink is the scheduler's only outbound dependency: it forwards a
// produced signal, along with the bot's live mutable state, on to the risk
// pipeline. Defined here (rather than imported from the risk package) so
// the scheduler has no compile-time dependency on C5. The scheduler is the
// sole owner/mutator of state; a sink must treat it as read-only.
type SignalSink interface {
	Submit(ctx context.Context, bot *domain.Bot, state *domain.BotState, signal *domain.Signal)
}

// task is one (bot, symbol, timeframe) evaluation unit for a cycle.
type task struct {
	bot       *domain.Bot
	state     *domain.BotState
	symbol    string
	timeframe string
}

// Scheduler drives evaluator ticks for every active bot on a cadence
// fixed by its SchedulerMode (aggressive/balanced/conservative), each
// mapping to a different wall-clock cycle period.
type Scheduler struct {
	mu     sync.Mutex
	bots   map[string]*domain.Bot
	states map[string]*domain.BotState

	evaluator *strategy.Evaluator
	sink      SignalSink
	bus       *eventbus.Bus
	log       zerolog.Logger

	mode           domain.SchedulerMode
	workers        int
	dailyLossLimit decimal.Decimal

	stop chan struct{}
	done chan struct{}
}

// New creates a Scheduler. workers <= 0 defaults to runtime.NumCPU()*2 at
// Run time, left to the caller via config as a configurable pool size.
func New(evaluator *strategy.Evaluator, sink SignalSink, bus *eventbus.Bus, mode domain.SchedulerMode, workers int, dailyLossLimit decimal.Decimal, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		bots:           make(map[string]*domain.Bot),
		states:         make(map[string]*domain.BotState),
		evaluator:      evaluator,
		sink:           sink,
		bus:            bus,
		log:            log.With().Str("component", "scheduler").Logger(),
		mode:           mode,
		workers:        workers,
		dailyLossLimit: dailyLossLimit,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// RegisterBot adds a bot under scheduler management with a fresh state.
// Re-registering an existing bot ID replaces its config but preserves its
// mutable state (cooldowns, counters, status).
func (s *Scheduler) RegisterBot(bot *domain.Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.BotID] = bot
	if _, ok := s.states[bot.BotID]; !ok {
		s.states[bot.BotID] = &domain.BotState{Status: domain.BotStatusActive}
	}
}

// RemoveBot drops a bot from scheduling entirely (archival).
func (s *Scheduler) RemoveBot(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, botID)
	delete(s.states, botID)
}

// State returns a copy of a bot's current mutable state, or false if the
// bot isn't registered. Intended for API/read-model consumers; the
// scheduler's own cycle logic reads the live pointer.
func (s *Scheduler) State(botID string) (domain.BotState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[botID]
	if !ok {
		return domain.BotState{}, false
	}
	return *st, true
}

// Run blocks, driving one cycle per the configured mode's cadence, until
// ctx is cancelled or Stop is called. It also drains fill notifications to
// keep each bot's daily trade count and P&L current for checkDailyTrip.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.mode.CyclePeriod())
	defer ticker.Stop()

	fills := s.bus.OrderFilled.Subscribe(64)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.runCycle(ctx, now.UTC())
		case evt := <-fills:
			s.recordFill(evt)
		}
	}
}

// recordFill rolls a settled fill into its bot's daily counters. Only a
// fill that actually belongs to a scheduled bot (resting maker fills and
// synthetic reinvestment fills carry no scheduler-tracked BotID) moves
// anything.
func (s *Scheduler) recordFill(evt eventbus.OrderFilledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[evt.Order.BotID]
	if !ok {
		return
	}
	st.TradesToday++
	st.DailyPnL = st.DailyPnL.Add(evt.RealisedPnL)
}

// Stop requests the run loop to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// runCycle executes steps 1-4 of the scheduling model: snapshot active
// bots, check the daily risk trip, build a round-robin task list, and
// dispatch it to a bounded worker pool with a deadline matching the
// cycle's own cadence.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) {
	s.checkDailyTrip(now)

	tasks := s.buildTasks()
	if len(tasks) == 0 {
		return
	}

	deadline := now.Add(s.mode.CyclePeriod())
	cycleCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	g, gctx := errgroup.WithContext(cycleCtx)
	workers := s.workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	g.SetLimit(workers)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			select {
			case <-gctx.Done():
				s.recordMissedTick(t.bot.BotID)
				return nil
			default:
			}
			s.runTask(gctx, t, now)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, t task, now time.Time) {
	signal, err := s.evaluator.Evaluate(t.bot, t.state, t.symbol, t.timeframe, now)
	if err != nil {
		s.log.Warn().Err(err).Str("bot_id", t.bot.BotID).Str("symbol", t.symbol).Msg("evaluator error")
		return
	}
	if signal == nil {
		return
	}
	select {
	case <-ctx.Done():
		s.recordMissedTick(t.bot.BotID)
		return
	default:
	}
	s.sink.Submit(ctx, t.bot, t.state, signal)
}

func (s *Scheduler) recordMissedTick(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[botID]; ok {
		st.MissedTicks++
	}
}
