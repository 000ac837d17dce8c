// Package catalog owns the two purely-configuration collections the
// ledger doc comment lists as caches alongside positions: bot definitions
// and strategy definitions. Neither is SQL-backed for the same reason
// positions aren't (internal/repositories): the ledger is the only
// durable copy, and both are rebuilt from it by internal/reliability at
// startup. A catalog's job during normal operation is simply to append
// the durable record and keep an in-memory map current for callers that
// need a synchronous read (the REST surface, the scheduler at
// registration time).
package catalog

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/ledger"
)

// Bots is the in-memory, ledger-backed bot registry.
type Bots struct {
	mu     sync.RWMutex
	bots   map[string]*domain.Bot
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewBots creates an empty bot catalog. Call Restore* from
// internal/reliability before serving traffic on a resumed run.
func NewBots(led *ledger.Ledger, log zerolog.Logger) *Bots {
	return &Bots{bots: make(map[string]*domain.Bot), ledger: led, log: log.With().Str("component", "bot_catalog").Logger()}
}

func toPayload(bot *domain.Bot) ledger.BotConfigPayload {
	return ledger.BotConfigPayload{
		BotID: bot.BotID, OwnerID: bot.OwnerID, StrategyID: bot.StrategyID,
		Symbols: bot.Symbols, Timeframes: bot.Timeframes, Risk: bot.Risk,
		Fingerprint: bot.Fingerprint, AutoExecute: bot.AutoExecute, CreatedAt: bot.CreatedAt,
	}
}

// Register durably records a new bot and makes it visible to readers.
// Registering an existing BotID behaves like Update.
func (b *Bots) Register(bot *domain.Bot) error {
	if err := b.ledger.Append(ledger.KindBotRegistered, toPayload(bot)); err != nil {
		return fmt.Errorf("catalog: append BotRegistered: %w", err)
	}
	b.mu.Lock()
	b.bots[bot.BotID] = bot
	b.mu.Unlock()
	return nil
}

// Update durably records a config change to an already-registered bot.
func (b *Bots) Update(bot *domain.Bot) error {
	if err := b.ledger.Append(ledger.KindBotConfigUpdated, toPayload(bot)); err != nil {
		return fmt.Errorf("catalog: append BotConfigUpdated: %w", err)
	}
	b.mu.Lock()
	b.bots[bot.BotID] = bot
	b.mu.Unlock()
	return nil
}

// Archive durably removes a bot from the catalog.
func (b *Bots) Archive(botID string) error {
	if err := b.ledger.Append(ledger.KindBotArchived, ledger.BotArchivedPayload{BotID: botID}); err != nil {
		return fmt.Errorf("catalog: append BotArchived: %w", err)
	}
	b.mu.Lock()
	delete(b.bots, botID)
	b.mu.Unlock()
	return nil
}

// Get returns a bot by id.
func (b *Bots) Get(botID string) (*domain.Bot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bot, ok := b.bots[botID]
	return bot, ok
}

// All returns every currently-registered bot, in no particular order.
func (b *Bots) All() []*domain.Bot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Bot, 0, len(b.bots))
	for _, bot := range b.bots {
		out = append(out, bot)
	}
	return out
}

// RestoreRegistered applies a BotConfigPayload read back from the ledger
// during replay, without appending anything (the entry already exists).
func (b *Bots) RestoreRegistered(p ledger.BotConfigPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bots[p.BotID] = &domain.Bot{
		BotID: p.BotID, OwnerID: p.OwnerID, StrategyID: p.StrategyID,
		Symbols: p.Symbols, Timeframes: p.Timeframes, Risk: p.Risk,
		Fingerprint: p.Fingerprint, AutoExecute: p.AutoExecute, CreatedAt: p.CreatedAt,
	}
}

// RestoreArchived removes a bot during replay.
func (b *Bots) RestoreArchived(botID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bots, botID)
}

// Reset clears the catalog. Only the reconciler should call this,
// immediately before a full ledger replay.
func (b *Bots) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bots = make(map[string]*domain.Bot)
}

// Strategies is the in-memory, ledger-backed strategy registry.
type Strategies struct {
	mu         sync.RWMutex
	strategies map[string]*domain.Strategy
	ledger     *ledger.Ledger
	log        zerolog.Logger
}

// NewStrategies creates an empty strategy catalog.
func NewStrategies(led *ledger.Ledger, log zerolog.Logger) *Strategies {
	return &Strategies{strategies: make(map[string]*domain.Strategy), ledger: led, log: log.With().Str("component", "strategy_catalog").Logger()}
}

// Upsert durably records a strategy definition, new or updated.
func (s *Strategies) Upsert(strategy *domain.Strategy) error {
	if err := s.ledger.Append(ledger.KindStrategyUpserted, ledger.StrategyUpsertedPayload{Strategy: *strategy}); err != nil {
		return fmt.Errorf("catalog: append StrategyUpserted: %w", err)
	}
	s.mu.Lock()
	s.strategies[strategy.StrategyID] = strategy
	s.mu.Unlock()
	return nil
}

// Get returns a strategy by id.
func (s *Strategies) Get(strategyID string) (*domain.Strategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strat, ok := s.strategies[strategyID]
	return strat, ok
}

// All returns every currently-registered strategy, in no particular order.
func (s *Strategies) All() []*domain.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Strategy, 0, len(s.strategies))
	for _, strat := range s.strategies {
		out = append(out, strat)
	}
	return out
}

// RestoreUpserted applies a StrategyUpsertedPayload read back from the
// ledger during replay.
func (s *Strategies) RestoreUpserted(strategy domain.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := strategy
	s.strategies[strategy.StrategyID] = &cp
}

// Reset clears the catalog. Only the reconciler should call this,
// immediately before a full ledger replay.
func (s *Strategies) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = make(map[string]*domain.Strategy)
}
