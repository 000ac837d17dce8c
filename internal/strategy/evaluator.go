// Package strategy evaluates a bot's strategy condition tree against live
// market data and indicator state, producing signals the risk pipeline can
// then approve or reject. The condition tree is a tagged union rather than
// a duck-typed map, and regime detection reuses an ATR/trend-slope
// classifier over in-memory candle windows.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/indicators"
	"github.com/sentineltrading/execution-core/internal/knowledge"
)

const confidenceFloor = 0.70

// Evaluator runs a bot's strategy against one (symbol, timeframe) tick and
// produces at most one signal, honoring per-rule cooldowns and daily caps.
type Evaluator struct {
	log zerolog.Logger

	cache      *indicators.Cache
	knowledge  *knowledge.Base
	classifier *regimeClassifier

	mu         sync.Mutex
	crosses    *crossTracker
	strategies map[string]*domain.Strategy
}

// New creates an Evaluator. cache and knowledge must both be non-nil;
// strategies are registered separately via RegisterStrategy so the
// scheduler can add them as bots are created.
func New(cache *indicators.Cache, kb *knowledge.Base, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		log:        log.With().Str("component", "strategy_evaluator").Logger(),
		cache:      cache,
		knowledge:  kb,
		classifier: newRegimeClassifier(),
		crosses:    newCrossTracker(),
		strategies: make(map[string]*domain.Strategy),
	}
}

// RegisterStrategy makes a strategy available to Evaluate by StrategyID.
func (e *Evaluator) RegisterStrategy(s *domain.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.StrategyID] = s
}

// Evaluate runs bot's strategy entry rules against (symbol, timeframe) at
// ts, returning the first rule that fires a signal clearing the
// confidence floor. A nil, nil return means no rule fired; rejections
// (cooldown, cap, confidence floor) are logged and simply produce no
// signal. The only error is ErrUnknownStrategy, returned with a nil
// signal when bot's strategy is not registered.
func (e *Evaluator) Evaluate(bot *domain.Bot, state *domain.BotState, symbol, timeframe string, ts time.Time) (*domain.Signal, error) {
	return e.evaluateRules(bot, state, symbol, timeframe, ts, func(s *domain.Strategy) []domain.Rule { return s.EntryRules })
}

// EvaluateExit runs bot's strategy exit rules the same way Evaluate runs
// entry rules. Callers holding an open position for (bot, symbol) invoke
// this instead of (or in addition to) Evaluate; the evaluator itself has
// no notion of open positions.
func (e *Evaluator) EvaluateExit(bot *domain.Bot, state *domain.BotState, symbol, timeframe string, ts time.Time) (*domain.Signal, error) {
	return e.evaluateRules(bot, state, symbol, timeframe, ts, func(s *domain.Strategy) []domain.Rule { return s.ExitRules })
}

func (e *Evaluator) evaluateRules(bot *domain.Bot, state *domain.BotState, symbol, timeframe string, ts time.Time, pick func(*domain.Strategy) []domain.Rule) (*domain.Signal, error) {
	e.mu.Lock()
	strategy, ok := e.strategies[bot.StrategyID]
	e.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.ErrUnknownStrategy, fmt.Sprintf("strategy %s not registered", bot.StrategyID), false)
	}

	if state.RuleStates == nil {
		state.RuleStates = make(map[string]*domain.RuleState)
	}

	ctx := &evalContext{
		cache:      e.cache,
		classifier: e.classifier,
		crosses:    e.crosses,
		symbol:     symbol,
		timeframe:  timeframe,
		ts:         ts,
		bot:        bot,
		botState:   state,
	}

	for _, rule := range pick(strategy) {
		signal, fired := e.tryRule(ctx, bot, state, rule, symbol, ts)
		if fired {
			return signal, nil
		}
	}
	return nil, nil
}

func (e *Evaluator) tryRule(ctx *evalContext, bot *domain.Bot, state *domain.BotState, rule domain.Rule, symbol string, ts time.Time) (*domain.Signal, bool) {
	if reason, eligible := e.ruleEligible(state, rule, ts); !eligible {
		e.log.Debug().Str("bot_id", bot.BotID).Str("rule_id", rule.RuleID).Str("reason", reason).Msg("rule fire skipped")
		return nil, false
	}

	var stat leafStat
	matched := evaluateTree(ctx, rule.Tree, &stat)
	if !matched {
		return nil, false
	}

	depthMatch := 0.0
	if stat.total > 0 {
		depthMatch = float64(stat.trueCount) / float64(stat.total)
	}
	baseConf := 0.5 + 0.5*depthMatch

	patternKey := patternKeyFor(bot, rule)
	kbSnapshot := e.knowledge.Snapshot(patternKey)
	confidence := baseConf * kbSnapshot.ConfidenceModifier
	if confidence > 1 {
		confidence = 1
	}

	if confidence < confidenceFloor {
		e.log.Debug().Str("bot_id", bot.BotID).Str("rule_id", rule.RuleID).
			Float64("confidence", confidence).Msg("signal dropped below confidence floor")
		return nil, false
	}

	e.markFired(state, rule, ts)

	signal := &domain.Signal{
		SignalID:   uuid.NewString(),
		BotID:      bot.BotID,
		AssetID:    symbol,
		Side:       rule.Side,
		Confidence: confidence,
		Rationale:  rationale(ctx, rule, depthMatch, patternKey, kbSnapshot.ConfidenceModifier),
		PatternKey: patternKey,
		Status:     domain.SignalStatusPending,
		CreatedAt:  ts,
	}
	return signal, true
}

// ruleEligible applies the cooldown and daily-cap checks before the tree
// is even walked, since a rule on cooldown should not pay for evaluation.
// The returned reason ("cooldown" or "cap") is for logging only.
func (e *Evaluator) ruleEligible(state *domain.BotState, rule domain.Rule, ts time.Time) (reason string, ok bool) {
	rs, exists := state.RuleStates[rule.RuleID]
	if !exists {
		return "", true
	}

	today := ts.UTC().Format("2006-01-02")
	if rs.FireDay != today {
		return "", true
	}
	if rule.MaxExecutionsPerDay > 0 && rs.FiresToday >= rule.MaxExecutionsPerDay {
		return "cap", false
	}
	if rule.CooldownMinutes > 0 && ts.Sub(rs.LastFiredAt) < time.Duration(rule.CooldownMinutes)*time.Minute {
		return "cooldown", false
	}
	return "", true
}

func (e *Evaluator) markFired(state *domain.BotState, rule domain.Rule, ts time.Time) {
	today := ts.UTC().Format("2006-01-02")
	rs, ok := state.RuleStates[rule.RuleID]
	if !ok || rs.FireDay != today {
		rs = &domain.RuleState{FireDay: today}
		state.RuleStates[rule.RuleID] = rs
	}
	rs.LastFiredAt = ts
	rs.FiresToday++
}

func patternKeyFor(bot *domain.Bot, rule domain.Rule) string {
	return fmt.Sprintf("%s:%s", bot.StrategyID, rule.RuleID)
}

// rationale renders the structured "<rule_name> | <indicator snapshot> |
// KB:<pattern_key>+<modifier>" string every signal carries for later
// human/knowledge-base review.
func rationale(ctx *evalContext, rule domain.Rule, depthMatch float64, patternKey string, kbModifier float64) string {
	snapshot := "indicators unavailable"
	if close, err := ctx.cache.LastClose(ctx.symbol, ctx.timeframe); err == nil {
		snapshot = fmt.Sprintf("close=%.4f depth_match=%.2f", close, depthMatch)
	}
	return fmt.Sprintf("%s | %s | KB:%s+%.2f", rule.RuleID, snapshot, patternKey, kbModifier)
}
