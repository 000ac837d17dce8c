// Package engine wires every component into one runnable process: market
// data, indicators, strategy evaluation, scheduling, risk, matching, yield,
// and the reliability layer that keeps them all honest across a restart. It
// owns nothing domain-specific itself — it is purely composition root and
// lifecycle.
package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/book"
	"github.com/sentineltrading/execution-core/internal/catalog"
	"github.com/sentineltrading/execution-core/internal/config"
	"github.com/sentineltrading/execution-core/internal/database"
	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/knowledge"
	"github.com/sentineltrading/execution-core/internal/ledger"
	"github.com/sentineltrading/execution-core/internal/marketdata"
	"github.com/sentineltrading/execution-core/internal/reliability"
	"github.com/sentineltrading/execution-core/internal/repositories"
	"github.com/sentineltrading/execution-core/internal/risk"
	"github.com/sentineltrading/execution-core/internal/scheduler"
	"github.com/sentineltrading/execution-core/internal/strategy"
	"github.com/sentineltrading/execution-core/internal/yield"
)

// signalRouter adapts risk.Pipeline to scheduler.SignalSink. The scheduler
// never sees a risk.Pipeline directly so it stays free of C5's dependency
// surface (marketdata, indicators, the asset/position/account stores).
type signalRouter struct {
	pipeline *risk.Pipeline
	log      zerolog.Logger
}

func (r *signalRouter) Submit(ctx context.Context, bot *domain.Bot, state *domain.BotState, signal *domain.Signal) {
	order, err := r.pipeline.Submit(ctx, bot, state, signal)
	if err != nil {
		r.log.Warn().Err(err).Str("bot_id", bot.BotID).Str("signal_id", signal.SignalID).Msg("signal rejected by risk pipeline")
		return
	}
	r.log.Info().Str("bot_id", bot.BotID).Str("order_id", order.OrderID).Msg("order accepted")
}

// Engine is the composition root: every long-lived component the process
// needs, wired once at startup and torn down once at shutdown.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	ledgerDB   *database.DB
	universeDB *database.DB
	configDB   *database.DB
	historyDB  *database.DB

	bus    *eventbus.Bus
	ledger *ledger.Ledger

	store         *repositories.Store
	settings      *repositories.SettingsStore
	candleHistory *repositories.CandleHistoryStore

	market     *marketdata.Aggregator
	indicators *indicators.Cache
	knowledge  *knowledge.Base
	evaluator  *strategy.Evaluator

	bookManager *book.Manager
	brake       *risk.Brake
	pipeline    *risk.Pipeline

	bots       *catalog.Bots
	strategies *catalog.Strategies

	scheduler   *scheduler.Scheduler
	yieldEngine *yield.Engine

	reconciler     *reliability.Reconciler
	ledgerHealth   *reliability.HealthService
	universeHealth *reliability.HealthService

	feed            *candleFeed
	primaryProvider string

	cancel context.CancelFunc
}

// New opens every database, runs migrations, and wires every component.
// Apart from the ledger's single writer goroutine, it starts no background
// loop — call Start for the scheduler, candle feed, and yield engine.
func New(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, log: log}

	var err error
	if e.ledgerDB, err = openDB(cfg, "ledger", database.ProfileLedger); err != nil {
		return nil, err
	}
	if e.universeDB, err = openDB(cfg, "universe", database.ProfileStandard); err != nil {
		return nil, err
	}
	if e.configDB, err = openDB(cfg, "config", database.ProfileCache); err != nil {
		return nil, err
	}
	if e.historyDB, err = openDB(cfg, "history", database.ProfileCache); err != nil {
		return nil, err
	}

	e.bus = eventbus.New(log)
	e.ledger = ledger.New(e.ledgerDB, log)

	e.store = repositories.New(e.universeDB, log)
	e.settings = repositories.NewSettingsStore(e.configDB, log)
	e.candleHistory = repositories.NewCandleHistoryStore(e.historyDB, log)

	if err := cfg.UpdateFromSettings(e.settings); err != nil {
		return nil, fmt.Errorf("engine: apply settings overrides: %w", err)
	}

	e.market = marketdata.New(log)
	primaryProvider := e.registerProviders()
	e.primaryProvider = primaryProvider

	e.indicators = indicators.New(e.bus, log)
	e.knowledge = knowledge.New()
	e.evaluator = strategy.New(e.indicators, e.knowledge, log)

	e.brake = &risk.Brake{}
	e.bookManager = book.NewManager(cfg.FeeBps, e.ledger, e.store, e.store, e.bus, log)
	stopLossPct, _ := cfg.DefaultStopLossPct.Float64()
	takeProfitPct, _ := cfg.DefaultTakeProfitPct.Float64()
	e.pipeline = risk.New(e.market, e.indicators, e.ledger, e.store, e.store, e.store, e.store, e.bookManager, e.brake, risk.Config{
		FeeBps:               cfg.FeeBps,
		DefaultStopLossPct:   stopLossPct,
		DefaultTakeProfitPct: takeProfitPct,
	}, log)

	e.bots = catalog.NewBots(e.ledger, log)
	e.strategies = catalog.NewStrategies(e.ledger, log)

	router := &signalRouter{pipeline: e.pipeline, log: log}
	workers := cfg.SchedulerWorkerCount
	e.scheduler = scheduler.New(e.evaluator, router, e.bus, cfg.Mode, workers, cfg.DailyLossLimit, log)

	e.yieldEngine = yield.New(e.store, e.store, e.ledger, e.bus, log)

	e.reconciler = reliability.New(e.ledger, e.store, e.bots, e.strategies, e.bookManager, e.brake, e.bus, log)
	e.ledgerHealth = reliability.NewHealthService(e.ledgerDB, "ledger", log)
	e.universeHealth = reliability.NewHealthService(e.universeDB, "universe", log)

	e.feed = newCandleFeed(e.market, primaryProvider, e.indicators, e.candleHistory, e.bots, log)

	return e, nil
}

func openDB(cfg *config.Config, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("engine: migrate %s database: %w", name, err)
	}
	return db, nil
}

// registerProviders wires one HTTP vendor per configured API key, falling
// back to a simulated feed so the engine is runnable with no credentials
// at all (local development, the reconciliation smoke test). It returns
// the name of the first provider registered, which the candle feed polls.
func (e *Engine) registerProviders() string {
	var primary string
	register := func(name string, p marketdata.Provider) {
		e.market.RegisterProvider(p)
		if primary == "" {
			primary = name
		}
	}
	if e.cfg.Providers.PolygonKey != "" {
		register("polygon", marketdata.NewHTTPProvider(marketdata.HTTPConfig{
			Name: "polygon", BaseURL: "https://api.polygon.io", APIKey: e.cfg.Providers.PolygonKey, RPM: 300,
		}, e.log))
	}
	if e.cfg.Providers.TwelveDataKey != "" {
		register("twelvedata", marketdata.NewHTTPProvider(marketdata.HTTPConfig{
			Name: "twelvedata", BaseURL: "https://api.twelvedata.com", APIKey: e.cfg.Providers.TwelveDataKey, RPM: 800,
		}, e.log))
	}
	if primary == "" {
		register("simulated", marketdata.NewSimulatedProvider("simulated", 100, 0.02))
	}
	return primary
}

// Start reconciles in-memory state against the ledger, rehydrates the
// scheduler and evaluator with the recovered bot/strategy catalogs, then
// starts every background loop. It must be called exactly once.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.reconciler.Reconcile(ctx); err != nil {
		return fmt.Errorf("engine: startup reconciliation: %w", err)
	}

	for _, strat := range e.strategies.All() {
		e.evaluator.RegisterStrategy(strat)
	}
	for _, bot := range e.bots.All() {
		e.scheduler.RegisterBot(bot)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.yieldEngine.Start(); err != nil {
		cancel()
		return fmt.Errorf("engine: start yield engine: %w", err)
	}

	go e.scheduler.Run(runCtx)
	go e.feed.Run(runCtx)

	e.log.Info().Int("bots", len(e.bots.All())).Int("strategies", len(e.strategies.All())).Msg("engine started")
	return nil
}

// Stop tears down every background loop and closes every database handle,
// in roughly the reverse order Start brought them up. Calling Stop
// without a prior Start skips the scheduler and yield engine: Scheduler.Stop
// and Engine.yieldEngine.Stop both block waiting for a run loop that was
// never started.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		e.scheduler.Stop()
		e.yieldEngine.Stop()
	}
	e.bookManager.Stop()
	e.ledger.Close()

	for _, db := range []*database.DB{e.historyDB, e.configDB, e.universeDB, e.ledgerDB} {
		if err := db.Close(); err != nil {
			e.log.Warn().Err(err).Msg("error closing database during shutdown")
		}
	}
	e.log.Info().Msg("engine stopped")
}

// Bots exposes the durable bot catalog to the REST surface.
func (e *Engine) Bots() *catalog.Bots { return e.bots }

// Strategies exposes the durable strategy catalog to the REST surface.
func (e *Engine) Strategies() *catalog.Strategies { return e.strategies }

// Scheduler exposes bot lifecycle controls (enable/disable/pause/resume)
// to the REST surface.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// Evaluator exposes strategy registration to the REST surface, kept in
// sync with the Strategies catalog by the caller.
func (e *Engine) Evaluator() *strategy.Evaluator { return e.evaluator }

// Yield exposes on-demand claim handling to the REST surface.
func (e *Engine) Yield() *yield.Engine { return e.yieldEngine }

// Book exposes per-asset order book snapshots to the REST surface.
func (e *Engine) Book() *book.Manager { return e.bookManager }

// Brake exposes the emergency stop to the REST surface.
func (e *Engine) Brake() *risk.Brake { return e.brake }

// Pipeline exposes the risk pre-trade chain to the REST surface's manual
// buy/sell endpoints, which submit signals on behalf of a synthetic
// per-user account rather than a scheduled bot.
func (e *Engine) Pipeline() *risk.Pipeline { return e.pipeline }

// Store exposes the asset/position/account reference data to the REST
// surface's listing and portfolio endpoints.
func (e *Engine) Store() *repositories.Store { return e.store }

// Market exposes live quotes and candle history to the REST surface's
// market-data endpoints.
func (e *Engine) Market() *marketdata.Aggregator { return e.market }

// PrimaryProvider is the market data vendor GetCandles/GetQuote calls
// should pass as providerName, chosen once at startup by
// registerProviders.
func (e *Engine) PrimaryProvider() string { return e.primaryProvider }

// Config exposes the resolved engine configuration, read-only, to the
// REST surface (default risk parameters for manual orders, trading
// hours for market-status checks).
func (e *Engine) Config() *config.Config { return e.cfg }

// HealthCheck runs integrity checks against the ledger and universe
// databases; the config and history databases are not checked.
func (e *Engine) HealthCheck() error {
	if err := e.ledgerHealth.CheckIntegrity(); err != nil {
		return err
	}
	return e.universeHealth.CheckIntegrity()
}
